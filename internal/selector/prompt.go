package selector

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"toolhost/internal/domain"
)

// DecisionPrompt formats the catalogue and request for the planner.
func DecisionPrompt(query string, catalogue map[string][]domain.ToolDescriptor) string {
	tools := flatten(catalogue)
	toolsJSON, err := json.MarshalIndent(tools, "", "  ")
	if err != nil {
		toolsJSON = []byte("[]")
	}

	example := "filesystem.read_file"
	if len(tools) > 0 {
		example = tools[0].Name
	}

	var sb strings.Builder
	sb.WriteString("You are an assistant mapping user queries to a single tool call.\n")
	fmt.Fprintf(&sb, "Available tools (JSON): %s\n\n", toolsJSON)
	fmt.Fprintf(&sb, "User query: %q\n\n", query)
	sb.WriteString("Return ONLY a JSON object with one of:\n")
	sb.WriteString(`- { "server_name": "...", "tool_name": "...", "args": {...} }` + "\n")
	sb.WriteString("- {} (if no tool is necessary)\n\n")
	fmt.Fprintf(&sb, "Use existing tool names exactly (e.g. %q). server_name is the part before the first dot.\n", example)
	return sb.String()
}

func flatten(catalogue map[string][]domain.ToolDescriptor) []domain.ToolDescriptor {
	var all []domain.ToolDescriptor
	for _, tools := range catalogue {
		all = append(all, tools...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}
