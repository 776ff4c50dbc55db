package partitioner

import (
	"fmt"
	"strings"

	"github.com/don7panic/script-partitioner/analyzer"
	"github.com/don7panic/script-partitioner/pyast"
)

// inferenceScript emits, in order: every import of the script, the
// inlined classes, the restore block and the inlined functions.
// Declarations keep their source order within each section.
func (o options) inferenceScript(s *analyzer.Script, cl *closure) string {
	var sections []string

	if len(s.ImportStmts) > 0 {
		imports := make([]string, 0, len(s.ImportStmts))
		for _, st := range s.ImportStmts {
			imports = append(imports, renderImport(st))
		}
		sections = append(sections, strings.Join(imports, "\n"))
	}

	ordered := s.Ordered()
	for _, d := range ordered {
		if d.Kind == analyzer.KindClass && cl.inlined[d.Name] {
			sections = append(sections, pyast.Segment(s.Module.Source, d.Stmt))
		}
	}

	if externals := cl.externalNames(); len(externals) > 0 {
		lines := append([]string{}, o.storage.Preamble()...)
		lines = append(lines, "", "")
		lines = append(lines, unpickler(o.trainingModule, o.inferenceModule)...)
		lines = append(lines, "", "")
		for _, name := range externals {
			lines = append(lines, o.storage.Download(name, keyExpr(o.keyPrefix, o.versionEnv, name))...)
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	for _, d := range ordered {
		if d.Kind == analyzer.KindFunction && cl.inlined[d.Name] {
			sections = append(sections, pyast.Segment(s.Module.Source, d.Stmt))
		}
	}

	return strings.Join(sections, "\n\n\n") + "\n"
}

// uploadBlock serializes every external name.
func (o options) uploadBlock(externals []string) string {
	lines := append([]string{}, o.storage.Preamble()...)
	for _, name := range externals {
		lines = append(lines, o.storage.Upload(name, keyExpr(o.keyPrefix, o.versionEnv, name))...)
	}
	return strings.Join(lines, "\n")
}

// trainingScript returns the original text with the upload block placed
// before the entry-point definition, or after the last statement with
// PlacementEnd. Nothing is added when there is nothing to serialize.
func (o options) trainingScript(s *analyzer.Script, entry *analyzer.Declaration, externals []string) (string, error) {
	src := s.Module.Source
	if len(externals) == 0 {
		return string(src), nil
	}
	block := o.uploadBlock(externals)

	switch o.placement {
	case PlacementEnd:
		text := strings.TrimRight(string(src), "\n")
		if text == "" {
			return block + "\n", nil
		}
		return text + "\n\n" + block + "\n", nil
	case PlacementInline:
		at := pyast.LineStart(src, entry.Stmt.Pos().StartByte)
		indent := pyast.Leading(src, entry.Stmt.Pos().StartByte)
		var b strings.Builder
		b.Write(src[:at])
		b.WriteString(pyast.Indent(block, indent))
		b.WriteString("\n")
		b.Write(src[at:])
		return b.String(), nil
	}
	return "", fmt.Errorf("partitioner: unknown placement %d", o.placement)
}

// renderImport renders an import statement on one line.
func renderImport(st pyast.Stmt) string {
	switch st := st.(type) {
	case *pyast.Import:
		return "import " + aliases(st.Names)
	case *pyast.ImportFrom:
		module := strings.Repeat(".", st.Level) + st.Module
		if st.Wildcard {
			return "from " + module + " import *"
		}
		return "from " + module + " import " + aliases(st.Names)
	}
	return ""
}

func aliases(names []pyast.Alias) string {
	parts := make([]string, len(names))
	for i, a := range names {
		parts[i] = a.Name
		if a.AsName != "" {
			parts[i] += " as " + a.AsName
		}
	}
	return strings.Join(parts, ", ")
}
