package partitioner

import (
	"fmt"
	"strings"
)

// Storage renders the Python statements the generated scripts use to
// move serialized values through an artifact store. key is a Python
// expression evaluating to the object key.
type Storage interface {
	Name() string
	Preamble() []string
	Upload(variable, key string) []string
	Download(variable, key string) []string
}

// S3Storage keeps artifacts in an S3 bucket through boto3.
type S3Storage struct {
	Bucket string
}

func (s S3Storage) Name() string { return "s3" }

func (s S3Storage) Preamble() []string {
	return []string{
		"import boto3 as _boto3",
		"import pickle as _pickle",
		"import os as _os",
		"from io import BytesIO as _BytesIO",
		"_artifact_store = _boto3.client('s3')",
	}
}

func (s S3Storage) Upload(variable, key string) []string {
	return []string{
		"_artifact_buffer = _BytesIO()",
		fmt.Sprintf("_pickle.dump(%s, _artifact_buffer)", variable),
		"_artifact_buffer.seek(0)",
		fmt.Sprintf("_artifact_store.upload_fileobj(_artifact_buffer, %s, %s)", pyQuote(s.Bucket), key),
	}
}

func (s S3Storage) Download(variable, key string) []string {
	return []string{
		"_artifact_buffer = _BytesIO()",
		fmt.Sprintf("_artifact_store.download_fileobj(%s, %s, _artifact_buffer)", pyQuote(s.Bucket), key),
		"_artifact_buffer.seek(0)",
		fmt.Sprintf("%s = %s(_artifact_buffer).load()", variable, unpicklerName),
	}
}

// LocalStorage keeps artifacts under a directory of the machine running
// the generated scripts.
type LocalStorage struct {
	Dir string
}

func (s LocalStorage) Name() string { return "local" }

func (s LocalStorage) Preamble() []string {
	return []string{
		"import pickle as _pickle",
		"import os as _os",
		fmt.Sprintf("_artifact_root = %s", pyQuote(s.Dir)),
	}
}

func (s LocalStorage) Upload(variable, key string) []string {
	return []string{
		fmt.Sprintf("_artifact_path = _os.path.join(_artifact_root, %s)", key),
		"_os.makedirs(_os.path.dirname(_artifact_path), exist_ok=True)",
		"with open(_artifact_path, 'wb') as _artifact_file:",
		fmt.Sprintf("    _pickle.dump(%s, _artifact_file)", variable),
	}
}

func (s LocalStorage) Download(variable, key string) []string {
	return []string{
		fmt.Sprintf("with open(_os.path.join(_artifact_root, %s), 'rb') as _artifact_file:", key),
		fmt.Sprintf("    %s = %s(_artifact_file).load()", variable, unpicklerName),
	}
}

const unpicklerName = "_RemappingUnpickler"

// unpickler renders a pickle.Unpickler that loads classes pickled under
// from as if they were defined in to.
func unpickler(from, to string) []string {
	return []string{
		fmt.Sprintf("class %s(_pickle.Unpickler):", unpicklerName),
		"    def find_class(self, module, name):",
		fmt.Sprintf("        if module == %s:", pyQuote(from)),
		fmt.Sprintf("            module = %s", pyQuote(to)),
		"        return super().find_class(module, name)",
	}
}

// keyExpr renders the object key of variable as a Python expression.
// The version is read from the environment when the script runs.
func keyExpr(prefix, versionEnv, variable string) string {
	version := fmt.Sprintf("_os.environ[%s]", pyQuote(versionEnv))
	before, after, found := strings.Cut(prefix, "{version}")
	if !found && before != "" && !strings.HasSuffix(before, "/") {
		before += "/"
	}
	if !strings.HasSuffix(after, "/") {
		after += "/"
	}
	after += variable + ".pkl"

	parts := []string{}
	if before != "" {
		parts = append(parts, pyQuote(before))
	}
	parts = append(parts, version, pyQuote(after))
	return strings.Join(parts, " + ")
}

// pyQuote renders s as a single-quoted Python string literal.
func pyQuote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
