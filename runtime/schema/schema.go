// Package schema validates agent/LLM JSON output against a compiled
// workflow.SchemaSpec, using github.com/santhosh-tekuri/jsonschema/v6 as the
// validation engine instead of hand-rolling type checks, grounded on
// described algorithm (strip fences, parse, recursively
// unwrap string-encoded JSON, validate, retry-once-then-fallback).
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/streetrace-ai/streetrace/compiler/workflow"
)

// ErrorKind classifies why validation failed.
type ErrorKind string

const (
	KindJSONParse ErrorKind = "JsonParse"
	KindValidation ErrorKind = "Validation"
)

// ValidationError is returned by Validate when text fails to satisfy spec.
type ValidationError struct {
	Kind ErrorKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Kind, e.Message)
}

// Compiled wraps a jsonschema.Schema compiled from a named
// workflow.SchemaSpec, either as a single object or as a list of them.
type Compiled struct {
	schema *jsonschema.Schema
	isArray bool
	registry map[string]workflow.SchemaSpec
}

// Compile builds a Compiled validator for the named schema (or, if isList is
// true, for a list of that schema). registry resolves RefType fields to
// their SchemaSpec definitions — typically workflow.Workflow.Schemas.
func Compile(specName string, isList bool, registry map[string]workflow.SchemaSpec) (*Compiled, error) {
	def, ok := registry[specName]
	if !ok {
		return nil, fmt.Errorf("schema: unknown schema %q", specName)
	}
	doc := schemaSpecToJSONSchema(def, registry)
	root := doc
	if isList {
		root = map[string]any{
			"type": "array",
			"items": doc,
		}
	}
	compiler := jsonschema.NewCompiler()
	const resourceURL = "mem://streetrace/schema.json"
	if err := compiler.AddResource(resourceURL, root); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return &Compiled{schema: compiled, isArray: isList, registry: registry}, nil
}

// Validate runs the full validation pipeline against raw agent/LLM
// output text: fence-stripping, JSON parse, recursive string-JSON unwrap,
// then schema validation. On success it returns the normalized value (a
// []any or map[string]any). On failure it returns a *ValidationError
// describing whether parsing or validation failed.
func (c *Compiled) Validate(text string) (any, error) {
	cleaned := stripFence(text)
	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, &ValidationError{Kind: KindJSONParse, Message: err.Error()}
	}
	parsed = unwrapNestedJSON(parsed)
	if err := c.schema.Validate(parsed); err != nil {
		return nil, &ValidationError{Kind: KindValidation, Message: err.Error()}
	}
	return parsed, nil
}

// Fallback returns the fallback value substituted after validation exhausts
// its retries: "[]" for array schemas, "{}" for object schemas.
func (c *Compiled) Fallback() any {
	if c.isArray {
		return []any{}
	}
	return map[string]any{}
}

// stripFence implements step 1: trim whitespace, then strip a leading and
// trailing triple-backtick fenced-line wrapper if present.
func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	if strings.TrimSpace(lines[len(lines)-1]) != "```" {
		return s
	}
	inner := lines[1 : len(lines)-1]
	return strings.TrimSpace(strings.Join(inner, "\n"))
}

// unwrapNestedJSON implements step 3: recursively descend the parsed value;
// any string that itself parses as JSON is replaced by the parsed form.
func unwrapNestedJSON(v any) any {
	switch val := v.(type) {
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return v
		}
		if trimmed[0] != '{' && trimmed[0] != '[' {
			return v
		}
		var nested any
		dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
		if err := dec.Decode(&nested); err != nil {
			return v
		}
		return unwrapNestedJSON(nested)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = unwrapNestedJSON(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = unwrapNestedJSON(elem)
		}
		return out
	default:
		return v
	}
}

// schemaSpecToJSONSchema synthesizes a JSON Schema document (as a plain
// map, the shape jsonschema.Compiler.AddResource accepts) from a compiled
// workflow.SchemaSpec.
func schemaSpecToJSONSchema(def workflow.SchemaSpec, registry map[string]workflow.SchemaSpec) map[string]any {
	props := map[string]any{}
	required := []string{}
	for _, f := range def.Fields {
		fieldSchema := fieldTypeToJSONSchema(&f.Type, registry)
		if f.Optional {
			fieldSchema = withNullable(fieldSchema)
		}
		props[f.Name] = fieldSchema
		if !f.Optional {
			required = append(required, f.Name)
		}
	}
	doc := map[string]any{
		"type": "object",
		"properties": props,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

// withNullable widens a field's "type" keyword to also accept null, so a
// present-but-null optional field (spec §4.5.3: optional fields "may be
// absent or null") still validates. A field with no "type" keyword at all
// (the "any" kind) already accepts null and is left untouched.
func withNullable(fieldSchema map[string]any) map[string]any {
	t, ok := fieldSchema["type"]
	if !ok {
		return fieldSchema
	}
	switch v := t.(type) {
	case string:
		fieldSchema["type"] = []any{v, "null"}
	case []any:
		for _, existing := range v {
			if existing == "null" {
				return fieldSchema
			}
		}
		fieldSchema["type"] = append(v, "null")
	}
	return fieldSchema
}

func fieldTypeToJSONSchema(ft *workflow.FieldType, registry map[string]workflow.SchemaSpec) map[string]any {
	if ft == nil {
		return map[string]any{}
	}
	switch ft.Kind {
	case "string":
		return map[string]any{"type": "string"}
	case "int":
		return map[string]any{"type": "integer"}
	case "float":
		return map[string]any{"type": "number"}
	case "bool":
		return map[string]any{"type": "boolean"}
	case "list":
		return map[string]any{"type": "array", "items": fieldTypeToJSONSchema(ft.Elem, registry)}
	case "ref":
		if def, ok := registry[ft.Ref]; ok {
			return schemaSpecToJSONSchema(def, registry)
		}
		return map[string]any{}
	default: // "any"
		return map[string]any{}
	}
}
