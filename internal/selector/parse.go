package selector

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"toolhost/internal/domain"
)

var errNoJSON = errors.New("no JSON object in planner output")

// parseDecision extracts a tool call from free-form planner output.
// It returns (nil, nil) for an explicit empty object, which means no tool
// applies. Anything it cannot read as a decision is an error.
func parseDecision(content string) (*domain.ToolCall, error) {
	content = stripCodeFences(stripRolePrefix(strings.TrimSpace(content)))
	if content == "" {
		return nil, errNoJSON
	}

	obj, err := decodeObject(content)
	if err != nil {
		start, end := findJSONBounds(content)
		if start < 0 {
			return nil, errNoJSON
		}
		if obj, err = decodeObject(content[start:end]); err != nil {
			return nil, err
		}
	}
	if len(obj) == 0 {
		return nil, nil
	}

	call := &domain.ToolCall{
		Provider: firstString(obj, "server_name", "provider_name", "provider", "server"),
		Tool:     firstString(obj, "tool_name", "tool", "name"),
	}
	if call.Tool == "" {
		return nil, fmt.Errorf("planner output has no tool name")
	}

	args, err := firstObject(obj, "args", "arguments", "parameters")
	if err != nil {
		return nil, err
	}
	call.Args = args
	return call, nil
}

// decodeObject parses raw as a JSON object, retrying once with invalid
// escapes repaired. A single-element array is unwrapped.
func decodeObject(raw string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	err := json.Unmarshal([]byte(raw), &obj)
	if err != nil {
		err = json.Unmarshal([]byte(sanitizeJSONEscapes(raw)), &obj)
	}
	if err == nil {
		return obj, nil
	}

	var arr []map[string]json.RawMessage
	if json.Unmarshal([]byte(raw), &arr) == nil && len(arr) == 1 {
		return arr[0], nil
	}
	return nil, fmt.Errorf("decode planner output: %w", err)
}

func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// firstObject returns the first present args-like field. Absent or null
// args become an empty map; a non-object value is an error.
func firstObject(obj map[string]json.RawMessage, keys ...string) (map[string]any, error) {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok || string(raw) == "null" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("planner %q is not an object", k)
		}
		if m == nil {
			m = map[string]any{}
		}
		return m, nil
	}
	return map[string]any{}, nil
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimPrefix(content, "json")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// stripRolePrefix removes role-name prefixes that some models leak into
// their output, e.g. "assistant\n{...}".
func stripRolePrefix(content string) string {
	prefixes := []string{
		"assistant\n",
		"Assistant\n",
		"assistant:\n",
		"Assistant:\n",
		"assistant: ",
		"Assistant: ",
	}
	for _, p := range prefixes {
		if strings.HasPrefix(content, p) {
			return strings.TrimSpace(content[len(p):])
		}
	}
	return content
}

// findJSONBounds locates the first top-level JSON object in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findJSONBounds(s string) (int, int) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

// sanitizeJSONEscapes fixes invalid JSON escape sequences produced by some
// models. Invalid escapes such as \% are repaired by dropping the backslash.
func sanitizeJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' {
			inString = !inString
			buf.WriteByte(ch)
			continue
		}
		if inString && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
				buf.WriteByte(s[i+1])
				i++
			}
			continue
		}
		buf.WriteByte(ch)
	}
	return buf.String()
}
