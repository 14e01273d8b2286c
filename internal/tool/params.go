package tool

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Param describes a single tool parameter.
type Param struct {
	Type        string
	Description string
	Enum        []string
	Default     any
	Minimum     *float64
}

// ToolParameters builds a JSON Schema object for a tool's arguments.
// Properties are emitted in name order so the encoding is stable.
func ToolParameters(properties map[string]Param, required []string) json.RawMessage {
	names := make([]string, 0, len(properties))
	for n := range properties {
		names = append(names, n)
	}
	sort.Strings(names)

	props := make(map[string]any, len(properties))
	for _, name := range names {
		p := properties[name]
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		props[name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	b, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tool parameters: %v", err))
	}
	return b
}

// Min is a convenience for Param.Minimum.
func Min(v float64) *float64 { return &v }

func ArgsString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// ArgsInt returns an integer argument, or def when absent or not numeric.
func ArgsInt(args map[string]any, key string, def int) int {
	if args == nil {
		return def
	}
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

// ArgsBool returns a boolean argument, or def when absent.
func ArgsBool(args map[string]any, key string, def bool) bool {
	if args == nil {
		return def
	}
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}
