package models

import (
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInputSchemaKeepsOrder(t *testing.T) {
	schema := InputSchema{
		{Name: "zeta", Type: "int"},
		{Name: "alpha", Type: "List[str]"},
		{Name: "mid", Type: "Unknown Type"},
	}

	out, err := json.Marshal(schema)
	if err != nil {
		t.Fatalf("Failed to marshal schema: %v", err)
	}
	want := `{"zeta":"int","alpha":"List[str]","mid":"Unknown Type"}`
	if string(out) != want {
		t.Errorf("Expected %s, got %s", want, out)
	}

	var decoded InputSchema
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal schema: %v", err)
	}
	if len(decoded) != 3 || decoded[0].Name != "zeta" || decoded[2].Name != "mid" {
		t.Errorf("Expected order zeta, alpha, mid, got %v", decoded)
	}

	y, err := yaml.Marshal(schema)
	if err != nil {
		t.Fatalf("Failed to marshal YAML: %v", err)
	}
	if strings.Index(string(y), "zeta") > strings.Index(string(y), "alpha") {
		t.Errorf("Expected zeta before alpha, got:\n%s", y)
	}

	var fromYAML InputSchema
	if err := yaml.Unmarshal(y, &fromYAML); err != nil {
		t.Fatalf("Failed to unmarshal YAML: %v", err)
	}
	if typ, ok := fromYAML.Lookup("alpha"); !ok || typ != "List[str]" {
		t.Errorf("Expected alpha: List[str], got %v", fromYAML)
	}
}

func TestEmptyInputSchema(t *testing.T) {
	out, err := json.Marshal(InputSchema{})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "{}" {
		t.Errorf("Expected {}, got %s", out)
	}
	if _, ok := InputSchema(nil).Lookup("x"); ok {
		t.Error("Expected lookup on an empty schema to fail")
	}
}
