package selector

import (
	"strings"

	"toolhost/internal/domain"
)

// Normalize fills in a missing provider and tool prefix. It never drops a
// call: a provider that is not in the catalogue is left for dispatch to
// report. An unprefixed tool with no provider is resolved only when exactly
// one catalogue tool has that action name.
func Normalize(call *domain.ToolCall, catalogue map[string][]domain.ToolDescriptor) *domain.ToolCall {
	if call == nil {
		return nil
	}
	out := *call
	if out.Args == nil {
		out.Args = map[string]any{}
	}

	if out.Provider == "" {
		if prefix, _, ok := strings.Cut(out.Tool, "."); ok && prefix != "" {
			out.Provider = prefix
		} else if provider, tool, ok := uniqueAction(out.Tool, catalogue); ok {
			out.Provider, out.Tool = provider, tool
		}
	}

	if out.Provider != "" && out.Tool != "" && !strings.HasPrefix(out.Tool, out.Provider+".") {
		action := out.Tool
		if _, after, ok := strings.Cut(out.Tool, "."); ok {
			action = after
		}
		out.Tool = out.Provider + "." + action
	}
	return &out
}

func uniqueAction(action string, catalogue map[string][]domain.ToolDescriptor) (string, string, bool) {
	if action == "" {
		return "", "", false
	}
	var provider, tool string
	matches := 0
	for p, tools := range catalogue {
		for _, t := range tools {
			if _, a, ok := strings.Cut(t.Name, "."); ok && a == action {
				provider, tool = p, t.Name
				matches++
			}
		}
	}
	return provider, tool, matches == 1
}
