package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// tree is the generic JSON view of a Config used for path access.
type tree = map[string]any

func toTree(cfg *Config) (tree, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var t tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}

func fromTree(t tree, cfg *Config) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func splitPath(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("empty path")
	}
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("malformed path %q", path)
		}
	}
	return segs, nil
}

// step descends one segment into node. Array segments must be integer indices.
func step(node any, seg string) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		if !ok {
			return nil, fmt.Errorf("no key %q", seg)
		}
		return v, nil
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(n) {
			return nil, fmt.Errorf("index %q out of range", seg)
		}
		return n[i], nil
	default:
		return nil, fmt.Errorf("%q is a leaf, not a container", seg)
	}
}

// GetByPath returns the value at a dot path such as "http.port" or
// "planner.failoverChain.0". Keys use the JSON field names.
func GetByPath(cfg *Config, path string) (any, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	t, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	var node any = t
	for _, seg := range segs {
		if node, err = step(node, seg); err != nil {
			return nil, fmt.Errorf("config path %s: %w", path, err)
		}
	}
	return node, nil
}

// SetByPath writes value at path, creating intermediate objects as needed.
// String values are coerced to bool or number when they parse as one.
func SetByPath(cfg *Config, path string, value any) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	t, err := toTree(cfg)
	if err != nil {
		return err
	}
	if err := assign(t, segs, coerce(value)); err != nil {
		return fmt.Errorf("config path %s: %w", path, err)
	}
	return fromTree(t, cfg)
}

func assign(node any, segs []string, value any) error {
	seg, rest := segs[0], segs[1:]
	switch n := node.(type) {
	case map[string]any:
		if len(rest) == 0 {
			n[seg] = value
			return nil
		}
		child, ok := n[seg]
		if !ok || child == nil {
			child = map[string]any{}
			n[seg] = child
		}
		return assign(child, rest, value)
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(n) {
			return fmt.Errorf("index %q out of range", seg)
		}
		if len(rest) == 0 {
			n[i] = value
			return nil
		}
		return assign(n[i], rest, value)
	default:
		return fmt.Errorf("%q is a leaf, not a container", seg)
	}
}

func coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a deep copy of cfg with credentials masked. On a copy
// failure the original is returned unchanged.
func Sanitize(cfg *Config) *Config {
	t, err := toTree(cfg)
	if err != nil {
		return cfg
	}
	out := &Config{}
	if err := fromTree(t, out); err != nil {
		return cfg
	}
	for name, p := range out.Planner.Providers {
		p.APIKey = mask(p.APIKey)
		out.Planner.Providers[name] = p
	}
	out.Telegram.Token = mask(out.Telegram.Token)
	out.Capabilities.GitHub.Token = mask(out.Capabilities.GitHub.Token)
	return out
}

// mask keeps four characters at each end of long secrets.
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// ListPaths flattens cfg into dot paths mapped to leaf values. Arrays are
// leaves.
func ListPaths(cfg *Config) map[string]any {
	t, err := toTree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok && len(child) > 0 {
				walk(p, child)
				continue
			}
			out[p] = v
		}
	}
	walk("", t)
	return out
}
