// Package tools defines the closed tool surface exposed to the agent and
// validates tool arguments against per-tool schemas before the executor
// touches them.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Field types understood by the sanitizer and emitted into the generated
// JSON schema.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Field declares one argument. The declaration is the single source of
// truth: the JSON schema is generated from it and the sanitizer reads it
// directly.
type Field struct {
	Name     string
	Type     string
	Required bool
	Default  any
	Enum     []string
	Min      *float64
	Max      *float64
	Color    bool    // normalize as a color string
	Items    []Field // object fields for arrays of objects
}

// Spec declares one tool: its name and its argument fields. The argument
// surface is snake_case only; camelCase keys count as unknown and are
// dropped.
type Spec struct {
	Name        string
	Description string
	Fields      []Field

	schema *jsonschema.Schema
}

// Registry maps tool names to compiled specs.
type Registry struct {
	specs map[string]*Spec
	order []string
}

// NewRegistry compiles every spec's generated schema. Compilation failures
// are programmer errors and panic at startup.
func NewRegistry(specs []*Spec) *Registry {
	r := &Registry{specs: make(map[string]*Spec, len(specs))}
	compiler := jsonschema.NewCompiler()

	for _, spec := range specs {
		raw, err := json.Marshal(generateSchema(spec))
		if err != nil {
			panic(fmt.Sprintf("tools: marshal schema for %s: %v", spec.Name, err))
		}
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
		if err != nil {
			panic(fmt.Sprintf("tools: parse schema for %s: %v", spec.Name, err))
		}
		url := "bridge:///tools/" + spec.Name + ".json"
		if err := compiler.AddResource(url, doc); err != nil {
			panic(fmt.Sprintf("tools: add schema for %s: %v", spec.Name, err))
		}
		spec.schema = compiler.MustCompile(url)

		r.specs[spec.Name] = spec
		r.order = append(r.order, spec.Name)
	}
	return r
}

// Get returns the spec for a tool name.
func (r *Registry) Get(name string) (*Spec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the tool surface in the chat-completions function
// format sent to LLM providers.
func (r *Registry) Definitions() []map[string]any {
	defs := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		spec := r.specs[name]
		defs = append(defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        spec.Name,
				"description": spec.Description,
				"parameters":  generateSchema(spec),
			},
		})
	}
	return defs
}

// generateSchema builds the JSON-Schema document for a spec.
func generateSchema(spec *Spec) map[string]any {
	return objectSchema(spec.Fields)
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	var required []string
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fieldSchema(f Field) map[string]any {
	schema := map[string]any{"type": f.Type}
	if len(f.Enum) > 0 {
		schema["enum"] = f.Enum
	}
	if f.Min != nil {
		schema["minimum"] = *f.Min
	}
	if f.Max != nil {
		schema["maximum"] = *f.Max
	}
	if f.Type == TypeArray {
		if len(f.Items) > 0 {
			schema["items"] = objectSchema(f.Items)
		} else {
			schema["items"] = map[string]any{"type": TypeString}
		}
	}
	return schema
}
