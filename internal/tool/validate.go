package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"toolhost/internal/domain"
)

// Validate checks args against the tool's declared parameter schema.
// A schema that cannot be compiled degrades to a required-keys check.
func Validate(desc domain.ToolDescriptor, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	instance, err := normalizeArgs(args)
	if err != nil {
		return invalid(desc.Name, []string{err.Error()})
	}

	resolved, err := compileSchema(desc.Parameters)
	if err != nil {
		return checkRequired(desc, instance)
	}
	if err := resolved.Validate(instance); err != nil {
		return invalid(desc.Name, splitViolations(err))
	}
	return nil
}

func compileSchema(raw json.RawMessage) (*jsonschema.Resolved, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty schema")
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return s.Resolve(nil)
}

// normalizeArgs round-trips args through JSON so Go numeric and slice types
// become the float64/[]any/map[string]any shapes the validator expects.
func normalizeArgs(args map[string]any) (map[string]any, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("arguments are not JSON-encodable: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("arguments must be an object: %w", err)
	}
	return out, nil
}

func checkRequired(desc domain.ToolDescriptor, args map[string]any) error {
	var schema struct {
		Required []string `json:"required"`
	}
	_ = json.Unmarshal(desc.Parameters, &schema)

	var missing []string
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			missing = append(missing, fmt.Sprintf("missing required argument %q", key))
		}
	}
	if len(missing) > 0 {
		return invalid(desc.Name, missing)
	}
	return nil
}

func splitViolations(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func invalid(tool string, violations []string) error {
	return &domain.ToolError{
		Kind:    domain.KindInvalidArguments,
		Message: fmt.Sprintf("invalid arguments for %s: %s", tool, strings.Join(violations, "; ")),
		Details: violations,
	}
}
