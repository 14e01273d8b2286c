package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolve maps a sandbox-relative path to an absolute one inside the
// sandbox. It rejects empty, absolute and traversing paths, and paths whose
// top-level entry is not allowed.
func (p *Provider) resolve(rel string) (string, error) {
	rel = strings.ReplaceAll(strings.TrimSpace(rel), `\`, "/")
	if rel == "" {
		return "", fmt.Errorf("path is required and cannot be empty")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("absolute paths are not allowed; provide a sandbox-relative path")
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", fmt.Errorf("path traversal detected (.. not allowed)")
		}
	}

	candidate := filepath.Join(p.root, filepath.FromSlash(rel))
	if !p.within(candidate) {
		return "", fmt.Errorf("resolved path is outside the sandbox")
	}
	// A symlink inside the sandbox may still point outside it.
	if real, err := filepath.EvalSymlinks(candidate); err == nil && !p.within(real) {
		return "", fmt.Errorf("resolved path is outside the sandbox")
	}

	if p.allowed != nil {
		top, _, _ := strings.Cut(strings.TrimPrefix(rel, "./"), "/")
		if !p.allowed[top] {
			return "", fmt.Errorf("top level directory %q is not allowed", top)
		}
	}
	return candidate, nil
}

func (p *Provider) within(path string) bool {
	return path == p.root || strings.HasPrefix(path, p.root+string(filepath.Separator))
}

// relative renders an absolute sandbox path back in sandbox-relative form.
func (p *Provider) relative(abs string) (string, bool) {
	r, err := filepath.Rel(p.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// truncateText collapses whitespace and cuts at a word boundary.
func truncateText(text string, maxChars int) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	runes := []rune(cleaned)
	if len(runes) <= maxChars {
		return cleaned
	}
	cut := string(runes[:maxChars])
	if i := strings.LastIndex(cut, " "); i >= 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
