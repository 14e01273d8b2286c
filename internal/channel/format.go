package channel

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"toolhost/internal/domain"
)

// formatCatalogue renders the tool catalogue as plain text, providers sorted.
func formatCatalogue(catalogue map[string][]domain.ToolDescriptor) string {
	if len(catalogue) == 0 {
		return "No tools loaded."
	}
	providers := make([]string, 0, len(catalogue))
	for p := range catalogue {
		providers = append(providers, p)
	}
	slices.Sort(providers)

	var sb strings.Builder
	for i, p := range providers {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s (%d)\n", p, len(catalogue[p]))
		for _, d := range catalogue[p] {
			fmt.Fprintf(&sb, "  %s - %s\n", d.Name, d.Description)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
