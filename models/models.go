// Package models contains the data structures produced by the partitioner.
package models

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Declaration describes one module-level function or class of the input script.
type Declaration struct {
	Name       string   `json:"name" yaml:"name"`
	Kind       string   `json:"kind" yaml:"kind"`
	StartLine  int      `json:"start_line" yaml:"start_line"`
	EndLine    int      `json:"end_line" yaml:"end_line"`
	Parameters []string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Inlined    bool     `json:"inlined" yaml:"inlined"`
}

// Dependency kinds.
const (
	DependencyInline      = "inline"
	DependencyExternal    = "external"
	DependencyConstructor = "constructor"
)

// Dependency is one edge of the closure computed from the entry point.
type Dependency struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
	Kind string `json:"kind" yaml:"kind"`
	Line int    `json:"line,omitempty" yaml:"line,omitempty"`
}

type SchemaField struct {
	Name string
	Type string
}

// InputSchema maps entry-point parameter names to type names. It keeps
// parameter order when encoded as a JSON or YAML object.
type InputSchema []SchemaField

func (s InputSchema) Lookup(name string) (string, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Type, true
		}
	}
	return "", false
}

func (s InputSchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Type)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *InputSchema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	out := InputSchema{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		var typ string
		if err := dec.Decode(&typ); err != nil {
			return err
		}
		out = append(out, SchemaField{Name: tok.(string), Type: typ})
	}
	*s = out
	return nil
}

func (s InputSchema) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range s {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Type},
		)
	}
	return node, nil
}

func (s *InputSchema) UnmarshalYAML(node *yaml.Node) error {
	out := InputSchema{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, SchemaField{Name: node.Content[i].Value, Type: node.Content[i+1].Value})
	}
	*s = out
	return nil
}

// PartitionResult is the output of one partition run.
type PartitionResult struct {
	EntryPoint        string        `json:"entry_point" yaml:"entry_point"`
	TrainingScript    string        `json:"training_script" yaml:"training_script"`
	InferenceScript   string        `json:"inference_script" yaml:"inference_script"`
	RequiredLibraries []string      `json:"required_libraries" yaml:"required_libraries"`
	InputSchema       InputSchema   `json:"input_schema" yaml:"input_schema"`
	LoopLines         []int         `json:"loop_lines" yaml:"loop_lines"`
	Inlined           []string      `json:"inlined" yaml:"inlined"`
	External          []string      `json:"external" yaml:"external"`
	Declarations      []Declaration `json:"declarations,omitempty" yaml:"declarations,omitempty"`
	Dependencies      []Dependency  `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Warnings          []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
