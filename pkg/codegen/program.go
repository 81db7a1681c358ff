// Package codegen turns a verified-to-be plan into an ActionProgram: a
// typed, JSON-serialized op sequence the executor interprets against the
// cloud client factory. The LM authors the program; post-processing pins
// it down to canonical services and literal parameters.
package codegen

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/potto-labs/potto/pkg/models"
)

// Op names the executor understands.
const (
	OpListResources = "list_resources"
	OpCall          = "call"
	OpFilter        = "filter"
	OpForEach       = "for_each"
)

// Step is one op of an ActionProgram. Fields are op-specific: service,
// operation and params drive list_resources and call; input and conditions
// drive filter; over and ops drive for_each.
type Step struct {
	Op              string          `json:"op"`
	Service         string          `json:"service,omitempty"`
	Operation       string          `json:"operation,omitempty"`
	Params          map[string]any  `json:"params,omitempty"`
	AllCompartments bool            `json:"all_compartments,omitempty"`
	SaveAs          string          `json:"save_as,omitempty"`
	Input           string          `json:"input,omitempty"`
	Conditions      []models.Filter `json:"conditions,omitempty"`
	Over            string          `json:"over,omitempty"`
	Ops             []Step          `json:"ops,omitempty"`
}

// Program is the serialized artifact attached to a plan step.
type Program struct {
	Ops []Step `json:"ops"`
}

// Marshal serializes the program for the plan artifact.
func (p *Program) Marshal() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("serializing action program: %w", err)
	}
	return string(raw), nil
}

// Parse deserializes an artifact.
func Parse(artifact string) (*Program, error) {
	var p Program
	if err := json.Unmarshal([]byte(artifact), &p); err != nil {
		return nil, fmt.Errorf("parsing action program: %w", err)
	}
	return &p, nil
}

// programSchema is the JSON Schema the verifier checks artifacts against.
const programSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["ops"],
  "additionalProperties": false,
  "properties": {
    "ops": {"type": "array", "minItems": 1, "items": {"$ref": "#/$defs/step"}}
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["op"],
      "additionalProperties": false,
      "properties": {
        "op": {"enum": ["list_resources", "call", "filter", "for_each"]},
        "service": {"type": "string"},
        "operation": {"type": "string"},
        "params": {"type": "object"},
        "all_compartments": {"type": "boolean"},
        "save_as": {"type": "string"},
        "input": {"type": "string"},
        "conditions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["field"],
            "properties": {
              "field": {"type": "string"},
              "operator": {"type": "string"},
              "value": {}
            }
          }
        },
        "over": {"type": "string"},
        "ops": {"type": "array", "items": {"$ref": "#/$defs/step"}}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Schema compiles the ActionProgram schema once and caches it.
func Schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(programSchema), &doc); err != nil {
			schemaErr = fmt.Errorf("unmarshal program schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("program.json", doc); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile("program.json")
	})
	return compiledSchema, schemaErr
}

// ValidateArtifact checks a serialized program against the schema.
func ValidateArtifact(artifact string) error {
	schema, err := Schema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal([]byte(artifact), &doc); err != nil {
		return fmt.Errorf("artifact is not valid JSON: %w", err)
	}
	return schema.Validate(doc)
}
