package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

// JSONSchema describes a normalized payload: every key present, each with
// the type of its default, nothing else.
func JSONSchema() map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		var typ string
		switch f.kind {
		case kindObject:
			typ = "object"
		case kindArray:
			typ = "array"
		default:
			typ = "string"
		}
		props[f.key] = map[string]any{"type": typ}
		required = append(required, f.key)
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := json.Marshal(JSONSchema())
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("history.json", strings.NewReader(string(raw))); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("history.json")
	})
	return schemaCompiled, schemaErr
}

// Validate checks a normalized payload against JSONSchema. Normalize keeps
// whatever type the model produced, so callers treat a failure as drift to
// log, not as a reason to reject the record.
func Validate(data map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile history schema: %w", err)
	}
	// Round-trip so nested values are plain JSON types.
	buf, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode history data: %w", err)
	}
	var doc any
	if err := json.Unmarshal(buf, &doc); err != nil {
		return fmt.Errorf("decode history data: %w", err)
	}
	return schema.Validate(doc)
}
