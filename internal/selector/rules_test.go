package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhost/internal/domain"
)

func fullCatalogue() map[string][]domain.ToolDescriptor {
	return map[string][]domain.ToolDescriptor{
		"filesystem": {{Name: "filesystem.read_file"}, {Name: "filesystem.list_dir"}, {Name: "filesystem.write_file"}},
		"browser":    {{Name: "browser.navigate_and_get_text"}, {Name: "browser.perform_google_search"}},
		"github":     {{Name: "github.list_repos"}, {Name: "github.get_repo_contents"}},
	}
}

func TestHeuristic_DefaultRules(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	tests := []struct {
		query string
		tool  string
		args  map[string]any
	}{
		{"search for golang generics", "browser.perform_google_search", map[string]any{"query": "search for golang generics"}},
		{"Find the latest Go release NEWS", "browser.perform_google_search", map[string]any{"query": "Find the latest Go release NEWS"}},
		{"open https://go.dev/doc and summarize", "browser.navigate_and_get_text", map[string]any{"url": "https://go.dev/doc"}},
		{"read file path: Notes/Todo.md please", "filesystem.read_file", map[string]any{"path": "Notes/Todo.md"}},
		{"show file report.txt", "filesystem.read_file", map[string]any{"path": "report.txt"}},
		{"list files in .", "filesystem.list_dir", map[string]any{"path": "."}},
		{"list files in projects", "filesystem.list_dir", map[string]any{"path": "projects"}},
		{"list directory", "filesystem.list_dir", map[string]any{"path": "."}},
		{"show github repo golang/go path: README.md", "github.get_repo_contents", map[string]any{"repo_name": "golang/go", "path": "README.md"}},
		{"list repos", "github.list_repos", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			call, _ := s.Heuristic(tt.query, fullCatalogue())
			require.NotNil(t, call)
			assert.Equal(t, tt.tool, call.Tool)
			assert.Equal(t, tt.args, call.Args)
		})
	}
}

func TestHeuristic_NoMatch(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	for _, q := range []string{
		"hello there",
		"read file",                 // no path to extract
		"github golang/go",          // repo without path, not a listing request
		"open the pod bay doors",    // navigate keyword but no URL
	} {
		call, _ := s.Heuristic(q, fullCatalogue())
		assert.Nil(t, call, q)
	}
}

func TestHeuristic_SkipsToolsNotInCatalogue(t *testing.T) {
	s := New(Config{Logger: testLogger()})
	fsOnly := map[string][]domain.ToolDescriptor{
		"filesystem": {{Name: "filesystem.list_dir"}},
	}
	call, _ := s.Heuristic("find and list files in docs", fsOnly)
	require.NotNil(t, call)
	assert.Equal(t, "filesystem.list_dir", call.Tool)
	assert.Equal(t, map[string]any{"path": "docs"}, call.Args)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
rules:
  - name: weather
    keywords: [weather, forecast]
    tool: browser.perform_google_search
    args:
      query: query
  - name: peek
    keywords: [peek]
    tool: filesystem.read_file
    args:
      path: file
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	s := New(Config{Rules: rules, Logger: testLogger()})
	call, name := s.Heuristic("peek todo.txt", fullCatalogue())
	require.NotNil(t, call)
	assert.Equal(t, "peek", name)
	assert.Equal(t, "filesystem", call.Provider)
	assert.Equal(t, map[string]any{"path": "todo.txt"}, call.Args)

	call, _ = s.Heuristic("search the web", fullCatalogue())
	assert.Nil(t, call, "custom rules replace the defaults")
}

func TestLoadRules_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad extractor": "rules:\n  - tool: a.b\n    keywords: [x]\n    args: {q: nope}\n",
		"no prefix":     "rules:\n  - tool: plain\n    keywords: [x]\n",
		"no keywords":   "rules:\n  - tool: a.b\n",
		"empty":         "rules: []\n",
		"not yaml":      "rules: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := LoadRules(path)
			assert.Error(t, err)
		})
	}
	_, err := LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
