package partitioner

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/tools/txtar"
	"gopkg.in/yaml.v3"

	"github.com/don7panic/script-partitioner/analyzer"
	"github.com/don7panic/script-partitioner/models"
	"github.com/don7panic/script-partitioner/pyast"
)

const testPrefix = "user/model/objects/"

type expectation struct {
	EntryPoint        string             `yaml:"entry_point"`
	Inlined           []string           `yaml:"inlined"`
	External          []string           `yaml:"external"`
	RequiredLibraries []string           `yaml:"required_libraries"`
	LoopLines         []int              `yaml:"loop_lines"`
	InputSchema       models.InputSchema `yaml:"input_schema"`
}

func sameStrings(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func sameInts(a, b []int) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func TestPartitionFixtures(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no fixtures found")
	}

	for _, path := range paths {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".txtar"), func(t *testing.T) {
			ar, err := txtar.ParseFile(path)
			if err != nil {
				t.Fatalf("Failed to read fixture: %v", err)
			}
			files := map[string][]byte{}
			for _, f := range ar.Files {
				files[f.Name] = f.Data
			}

			var want expectation
			if err := yaml.Unmarshal(files["expect.yaml"], &want); err != nil {
				t.Fatalf("Failed to decode expect.yaml: %v", err)
			}

			got, err := Partition(context.Background(), files["script.py"], want.EntryPoint, WithKeyPrefix(testPrefix))
			if err != nil {
				t.Fatalf("Partition failed: %v", err)
			}

			if !sameStrings(got.Inlined, want.Inlined) {
				t.Errorf("Expected inlined %v, got %v", want.Inlined, got.Inlined)
			}
			if !sameStrings(got.External, want.External) {
				t.Errorf("Expected external %v, got %v", want.External, got.External)
			}
			if !sameStrings(got.RequiredLibraries, want.RequiredLibraries) {
				t.Errorf("Expected libraries %v, got %v", want.RequiredLibraries, got.RequiredLibraries)
			}
			if !sameInts(got.LoopLines, want.LoopLines) {
				t.Errorf("Expected loop lines %v, got %v", want.LoopLines, got.LoopLines)
			}
			if !reflect.DeepEqual(got.InputSchema, want.InputSchema) {
				t.Errorf("Expected input schema %v, got %v", want.InputSchema, got.InputSchema)
			}

			if golden, ok := files["training.py"]; ok && got.TrainingScript != string(golden) {
				t.Errorf("Training script mismatch.\nExpected:\n%s\nGot:\n%s", golden, got.TrainingScript)
			}
			if golden, ok := files["inference.py"]; ok && got.InferenceScript != string(golden) {
				t.Errorf("Inference script mismatch.\nExpected:\n%s\nGot:\n%s", golden, got.InferenceScript)
			}

			// both generated scripts must be valid Python
			for name, text := range map[string]string{
				"training":  got.TrainingScript,
				"inference": got.InferenceScript,
			} {
				if _, err := pyast.Parse(context.Background(), []byte(text)); err != nil {
					t.Errorf("Generated %s script does not parse: %v", name, err)
				}
			}
		})
	}
}

func TestPartitionEntryPointNotFound(t *testing.T) {
	content := "def predict(x):\n    return x\n"
	_, err := Partition(context.Background(), []byte(content), "serve")
	if !errors.Is(err, ErrEntryPointNotFound) {
		t.Fatalf("Expected ErrEntryPointNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), `"serve"`) {
		t.Errorf("Expected error to name the entry point, got %q", err.Error())
	}
}

func TestPartitionEntryPointIsClass(t *testing.T) {
	content := "class predict:\n    pass\n"
	_, err := Partition(context.Background(), []byte(content), "predict")
	if !errors.Is(err, ErrEntryPointNotFunction) {
		t.Fatalf("Expected ErrEntryPointNotFunction, got %v", err)
	}
}

func TestPartitionSyntaxError(t *testing.T) {
	_, err := Partition(context.Background(), []byte("def predict(x:\n"), "predict")
	if !errors.Is(err, pyast.ErrSyntax) {
		t.Fatalf("Expected pyast.ErrSyntax, got %v", err)
	}
}

func TestPartitionDeterministic(t *testing.T) {
	content := `import numpy as np

class A:
    pass

class B:
    pass

a, b = A(), B()
c = 3
d = np.zeros(3)

def g(v):
    return v + c + d

def predict(x):
    return g(x) + a.f() + b.f()
`
	p := New(WithKeyPrefix(testPrefix))
	first, err := p.Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := p.Partition(context.Background(), []byte(content), "predict")
		if err != nil {
			t.Fatalf("Partition failed: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("Expected identical results on run %d", i+2)
		}
		a, _ := json.Marshal(first)
		b, _ := json.Marshal(again)
		if string(a) != string(b) {
			t.Fatalf("Expected byte-identical JSON on run %d", i+2)
		}
	}
}

func TestPartitionClosureCompleteness(t *testing.T) {
	content := `class Model:
    def run(self, x):
        return x * weight

model = Model()
weight = 3
offset = 1

def step(x):
    return model.run(x) + offset

def predict(x):
    return step(x)
`
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	if want := []string{"Model", "predict", "step"}; !reflect.DeepEqual(res.Inlined, want) {
		t.Errorf("Expected inlined %v, got %v", want, res.Inlined)
	}
	// weight is read by Model.run, which is inlined through the constructor
	if want := []string{"model", "offset", "weight"}; !reflect.DeepEqual(res.External, want) {
		t.Errorf("Expected external %v, got %v", want, res.External)
	}

	inlined := map[string]bool{}
	for _, n := range res.Inlined {
		inlined[n] = true
	}
	for _, n := range res.External {
		if inlined[n] {
			t.Errorf("Expected %s to be either inlined or external, not both", n)
		}
	}

	var kinds []string
	for _, d := range res.Dependencies {
		if d.From == "model" && d.To == "Model" {
			kinds = append(kinds, d.Kind)
		}
	}
	if !reflect.DeepEqual(kinds, []string{models.DependencyConstructor}) {
		t.Errorf("Expected one constructor dependency model -> Model, got %v", kinds)
	}
}

func TestPartitionConstructorTypeInclusion(t *testing.T) {
	content := `class Scaler:
    def __init__(self, k):
        self.k = k

class Unused:
    pass

scaler = Scaler(2)
other = Unused()

def predict(x):
    return x * scaler.k
`
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if !strings.Contains(res.InferenceScript, "class Scaler:") {
		t.Error("Expected Scaler to be emitted in the inference script")
	}
	if strings.Contains(res.InferenceScript, "class Unused") {
		t.Error("Expected Unused not to be emitted")
	}
}

func TestPartitionConstructorSurvivesRebinding(t *testing.T) {
	content := `class M:
    def fit(self):
        return self

    def run(self, x):
        return x

m = M()
m = m.fit()

def predict(x):
    return m.run(x)
`
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if !sameStrings(res.External, []string{"m"}) {
		t.Errorf("Expected external [m], got %v", res.External)
	}
	found := false
	for _, name := range res.Inlined {
		if name == "M" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected M to be inlined, got %v", res.Inlined)
	}
	if !strings.Contains(res.InferenceScript, "class M:") {
		t.Errorf("Expected class M in the inference script, got:\n%s", res.InferenceScript)
	}
}

func TestPartitionGenericEntryPoint(t *testing.T) {
	content := `from typing import List

def predict[T](x: T, rows: List[str]) -> T:
    return x
`
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(res.External) != 0 {
		t.Errorf("Expected no externals, got %v", res.External)
	}
	if typ, ok := res.InputSchema.Lookup("rows"); !ok || typ != "List[str]" {
		t.Errorf("Expected rows: List[str], got %v", res.InputSchema)
	}
	if typ, ok := res.InputSchema.Lookup("x"); !ok || typ != "T" {
		t.Errorf("Expected x: T, got %v", res.InputSchema)
	}
}

func TestInputSchemaGenerics(t *testing.T) {
	content := `from typing import Dict, List, Optional

def predict(a: int, b: List[str], c: Dict[str, int], d: Optional[List[str]], e, *rest: int, f: float = 1.0):
    return a
`
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	want := models.InputSchema{
		{Name: "a", Type: "int"},
		{Name: "b", Type: "List[str]"},
		{Name: "c", Type: "Dict[str][int]"},
		{Name: "d", Type: unknownType},
		{Name: "e", Type: unknownType},
		{Name: "f", Type: "float"},
	}
	if !reflect.DeepEqual(res.InputSchema, want) {
		t.Errorf("Expected %v, got %v", want, res.InputSchema)
	}
}

func TestPartitionInferenceOrdering(t *testing.T) {
	content := `import json

def helper(v):
    return json.dumps(v)

class Late:
    pass

late = Late()

def predict(x):
    return helper(x), late
`
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	script := res.InferenceScript
	order := []string{
		"import json",
		"class Late:",
		"class _RemappingUnpickler",
		"late = _RemappingUnpickler",
		"def helper(v):",
		"def predict(x):",
	}
	last := -1
	for _, marker := range order {
		i := strings.Index(script, marker)
		if i < 0 {
			t.Fatalf("Expected %q in inference script:\n%s", marker, script)
		}
		if i < last {
			t.Errorf("Expected %q to come later in inference script:\n%s", marker, script)
		}
		last = i
	}
}

func TestPartitionNestedEntryPoint(t *testing.T) {
	content := `limit = 10
if True:
    def predict(x):
        return min(x, limit)
`
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if !strings.Contains(res.TrainingScript, "    _pickle.dump(limit, _artifact_buffer)\n") {
		t.Errorf("Expected upload block indented like the definition, got:\n%s", res.TrainingScript)
	}
	if !strings.Contains(res.InferenceScript, "\ndef predict(x):\n    return min(x, limit)\n") {
		t.Errorf("Expected entry point dedented in inference script, got:\n%s", res.InferenceScript)
	}
	if _, err := pyast.Parse(context.Background(), []byte(res.TrainingScript)); err != nil {
		t.Errorf("Expected training script to parse: %v", err)
	}
}

func TestPartitionPlacementEnd(t *testing.T) {
	content := `def predict(x):
    return x + bias

bias = 1
`
	res, err := Partition(context.Background(), []byte(content), "predict", WithPlacement(PlacementEnd))
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if !strings.HasPrefix(res.TrainingScript, content[:len(content)-1]) {
		t.Errorf("Expected original script to be kept intact, got:\n%s", res.TrainingScript)
	}
	if i, j := strings.Index(res.TrainingScript, "bias = 1"), strings.Index(res.TrainingScript, "_pickle.dump(bias"); j < i {
		t.Errorf("Expected upload after the last statement, got:\n%s", res.TrainingScript)
	}
}

func TestPartitionNoExternals(t *testing.T) {
	content := "def predict(x):\n    return x\n"
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if res.TrainingScript != content {
		t.Errorf("Expected training script unchanged, got:\n%s", res.TrainingScript)
	}
	if strings.Contains(res.InferenceScript, "_RemappingUnpickler") {
		t.Errorf("Expected no restore block, got:\n%s", res.InferenceScript)
	}
}

func TestPartitionStrictDeclarations(t *testing.T) {
	content := `def predict(x):
    return 1

def predict(x):
    return 2
`
	_, err := Partition(context.Background(), []byte(content), "predict", WithStrictDeclarations(true))
	if !errors.Is(err, analyzer.ErrDuplicateDeclaration) {
		t.Fatalf("Expected ErrDuplicateDeclaration, got %v", err)
	}

	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if !strings.Contains(res.InferenceScript, "return 2") || strings.Contains(res.InferenceScript, "return 1") {
		t.Errorf("Expected the last definition to win, got:\n%s", res.InferenceScript)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "shadowed") {
		t.Errorf("Expected a shadowing warning, got %v", res.Warnings)
	}
}

func TestPartitionUnboundExternalWarning(t *testing.T) {
	content := "def predict(x):\n    return x + missing\n"
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], `"missing"`) {
		t.Errorf("Expected a warning about missing, got %v", res.Warnings)
	}
}

func TestPartitionLocalStorage(t *testing.T) {
	content := "k = 2\n\ndef predict(x):\n    return x * k\n"
	res, err := Partition(context.Background(), []byte(content), "predict",
		WithStorage(LocalStorage{Dir: "/var/artifacts"}),
		WithKeyPrefix("models/{version}/objects"),
		WithVersionEnv("MODEL_VERSION"),
		WithModuleRemap("__main__", "app.inference"),
	)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	key := `'models/' + _os.environ['MODEL_VERSION'] + '/objects/k.pkl'`
	if !strings.Contains(res.TrainingScript, "_artifact_path = _os.path.join(_artifact_root, "+key+")") {
		t.Errorf("Expected local upload of k, got:\n%s", res.TrainingScript)
	}
	if !strings.Contains(res.InferenceScript, "with open(_os.path.join(_artifact_root, "+key+"), 'rb') as _artifact_file:") {
		t.Errorf("Expected local download of k, got:\n%s", res.InferenceScript)
	}
	if !strings.Contains(res.InferenceScript, "if module == '__main__':") ||
		!strings.Contains(res.InferenceScript, "module = 'app.inference'") {
		t.Errorf("Expected remapped module names, got:\n%s", res.InferenceScript)
	}
	if strings.Contains(res.InferenceScript, "boto3") {
		t.Error("Expected no boto3 with local storage")
	}
}

func TestKeyExpr(t *testing.T) {
	type When struct {
		prefix string
	}
	type Then struct {
		expr string
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			got := keyExpr(when.prefix, "VERSION", "m")
			if got != then.expr {
				t.Errorf("Expected %s, got %s", then.expr, got)
			}
		}
	}

	t.Run("prefix with trailing slash", theory(
		When{prefix: "user/model/objects/"},
		Then{expr: `'user/model/objects/' + _os.environ['VERSION'] + '/m.pkl'`},
	))
	t.Run("prefix without trailing slash", theory(
		When{prefix: "objects"},
		Then{expr: `'objects/' + _os.environ['VERSION'] + '/m.pkl'`},
	))
	t.Run("empty prefix", theory(
		When{prefix: ""},
		Then{expr: `_os.environ['VERSION'] + '/m.pkl'`},
	))
	t.Run("version placeholder", theory(
		When{prefix: "models/{version}/objects/"},
		Then{expr: `'models/' + _os.environ['VERSION'] + '/objects/m.pkl'`},
	))
	t.Run("quotes are escaped", theory(
		When{prefix: "it's/"},
		Then{expr: `'it\'s/' + _os.environ['VERSION'] + '/m.pkl'`},
	))
}

func TestInputSchemaJSONOrder(t *testing.T) {
	content := "from typing import List\n\ndef predict(z: int, a: List[str]):\n    return z\n"
	res, err := Partition(context.Background(), []byte(content), "predict")
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	b, err := json.Marshal(res.InputSchema)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"z":"int","a":"List[str]"}`; string(b) != want {
		t.Errorf("Expected %s, got %s", want, b)
	}
}
