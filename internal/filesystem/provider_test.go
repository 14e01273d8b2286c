package filesystem

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestProvider(t *testing.T, allowed ...string) *Provider {
	t.Helper()
	p, err := New(Config{
		SandboxDir:    filepath.Join(t.TempDir(), "sandbox"),
		MaxWriteBytes: 64,
		AllowedDirs:   allowed,
		Logger:        slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func run(t *testing.T, p *Provider, name string, args map[string]any) map[string]any {
	t.Helper()
	out, err := p.ExecuteBlocking(name, args)
	if err != nil {
		t.Fatalf("%s(%v): %v", name, args, err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("%s returned %T", name, out)
	}
	return m
}

func TestNew_RequiresSandbox(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without sandbox dir")
	}
}

func TestListTools_EveryToolHasHandler(t *testing.T) {
	p := newTestProvider(t)
	tools := p.ListTools()
	if len(tools) != 11 {
		t.Fatalf("expected 11 tools, got %d", len(tools))
	}
	for _, d := range tools {
		if _, ok := p.handlers[d.Name]; !ok {
			t.Errorf("tool %s has no handler", d.Name)
		}
		if !strings.HasPrefix(d.Name, Name+".") {
			t.Errorf("tool %s lacks provider prefix", d.Name)
		}
	}
}

func TestResolve_Rejections(t *testing.T) {
	p := newTestProvider(t)
	for _, rel := range []string{"", "   ", "/etc/passwd", "../escape", "a/../../b", `..\win`} {
		if _, err := p.resolve(rel); err == nil {
			t.Errorf("resolve(%q) should fail", rel)
		}
	}
	if got, err := p.resolve("."); err != nil || got != p.Root() {
		t.Errorf("resolve(.) = %q, %v", got, err)
	}
}

func TestResolve_SymlinkEscape(t *testing.T) {
	p := newTestProvider(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(p.Root(), "link")); err != nil {
		t.Skip("symlinks unsupported:", err)
	}
	if _, err := p.resolve("link"); err == nil {
		t.Fatal("symlink pointing outside sandbox should be rejected")
	}
}

func TestResolve_AllowedDirs(t *testing.T) {
	p := newTestProvider(t, "projects")
	if _, err := p.resolve("projects/a.txt"); err != nil {
		t.Fatalf("allowed dir rejected: %v", err)
	}
	if _, err := p.resolve("uploads/a.txt"); err == nil {
		t.Fatal("disallowed top-level dir accepted")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	w := run(t, p, "filesystem.write_file", map[string]any{"path": "notes/todo.txt", "content": "buy  milk\nand eggs"})
	if w["bytes_written"] != 18 {
		t.Errorf("bytes_written = %v", w["bytes_written"])
	}
	r := run(t, p, "filesystem.read_file", map[string]any{"path": "notes/todo.txt"})
	if r["content"] != "buy milk and eggs" {
		t.Errorf("content = %q", r["content"])
	}

	entries, _ := os.ReadDir(filepath.Join(p.Root(), "notes"))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestWriteFile_TooLarge(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.ExecuteBlocking("filesystem.write_file", map[string]any{"path": "big.txt", "content": strings.Repeat("x", 65)})
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected too large error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(p.Root(), "big.txt")); !os.IsNotExist(err) {
		t.Error("oversized file should not be written")
	}
}

func TestReadFile_Truncates(t *testing.T) {
	p := newTestProvider(t)
	run(t, p, "filesystem.write_file", map[string]any{"path": "a.txt", "content": "alpha beta gamma delta"})
	r := run(t, p, "filesystem.read_file", map[string]any{"path": "a.txt", "max_chars": float64(13)})
	if r["content"] != "alpha beta…" {
		t.Errorf("content = %q", r["content"])
	}
}

func TestReadFile_Errors(t *testing.T) {
	p := newTestProvider(t)
	run(t, p, "filesystem.make_directory", map[string]any{"path": "dir"})
	if _, err := p.ExecuteBlocking("filesystem.read_file", map[string]any{"path": "missing.txt"}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing file: %v", err)
	}
	if _, err := p.ExecuteBlocking("filesystem.read_file", map[string]any{"path": "dir"}); err == nil {
		t.Error("reading a directory should fail")
	}
}

func TestAppendFile(t *testing.T) {
	p := newTestProvider(t)
	run(t, p, "filesystem.append_file", map[string]any{"path": "log.txt", "content": "one\n"})
	run(t, p, "filesystem.append_file", map[string]any{"path": "log.txt", "content": "two\n"})
	data, err := os.ReadFile(filepath.Join(p.Root(), "log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("content = %q", data)
	}
}

func TestListDir_Sorted(t *testing.T) {
	p := newTestProvider(t)
	run(t, p, "filesystem.write_file", map[string]any{"path": "b.txt", "content": "bb"})
	run(t, p, "filesystem.make_directory", map[string]any{"path": "a"})

	out := run(t, p, "filesystem.list_dir", map[string]any{"path": "."})
	items := out["items"].([]dirItem)
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Name != "a" || !items[0].IsDir || items[0].Size != nil {
		t.Errorf("first item = %+v", items[0])
	}
	if items[1].Name != "b.txt" || items[1].Size == nil || *items[1].Size != 2 {
		t.Errorf("second item = %+v", items[1])
	}
}

func TestExistsDeleteMoveCopy(t *testing.T) {
	p := newTestProvider(t)
	run(t, p, "filesystem.write_file", map[string]any{"path": "src/f.txt", "content": "data"})

	if out := run(t, p, "filesystem.file_exists", map[string]any{"path": "src/f.txt"}); out["exists"] != true {
		t.Error("file should exist")
	}
	if out := run(t, p, "filesystem.file_exists", map[string]any{"path": "nope"}); out["exists"] != false {
		t.Error("file should not exist")
	}

	run(t, p, "filesystem.copy", map[string]any{"src": "src", "dst": "backup"})
	if _, err := os.Stat(filepath.Join(p.Root(), "backup", "f.txt")); err != nil {
		t.Errorf("directory copy missing file: %v", err)
	}
	if _, err := p.ExecuteBlocking("filesystem.copy", map[string]any{"src": "src", "dst": "backup"}); err == nil {
		t.Error("directory copy onto existing destination should fail")
	}

	run(t, p, "filesystem.move", map[string]any{"src": "src/f.txt", "dst": "moved/g.txt"})
	if _, err := os.Stat(filepath.Join(p.Root(), "moved", "g.txt")); err != nil {
		t.Errorf("moved file missing: %v", err)
	}

	if _, err := p.ExecuteBlocking("filesystem.delete", map[string]any{"path": "backup"}); err == nil {
		t.Error("non-recursive delete of non-empty dir should fail")
	}
	run(t, p, "filesystem.delete", map[string]any{"path": "backup", "recursive": true})
	if _, err := os.Stat(filepath.Join(p.Root(), "backup")); !os.IsNotExist(err) {
		t.Error("backup should be gone")
	}
	if _, err := p.ExecuteBlocking("filesystem.delete", map[string]any{"path": "."}); err == nil {
		t.Error("deleting the sandbox root should fail")
	}
}

func TestGetMetadata(t *testing.T) {
	p := newTestProvider(t)
	run(t, p, "filesystem.write_file", map[string]any{"path": "m.txt", "content": "12345"})
	out := run(t, p, "filesystem.get_metadata", map[string]any{"path": "m.txt"})
	if out["size_bytes"] != int64(5) || out["is_dir"] != false {
		t.Errorf("metadata = %v", out)
	}
}

func TestSearchFiles(t *testing.T) {
	p := newTestProvider(t)
	for _, f := range []string{"docs/a.md", "docs/sub/b.md", "docs/c.txt"} {
		run(t, p, "filesystem.write_file", map[string]any{"path": f, "content": "x"})
	}

	out := run(t, p, "filesystem.search_files", map[string]any{"path": "docs", "pattern": "**/*.md"})
	matches := out["matches"].([]string)
	if len(matches) != 2 || matches[0] != "docs/a.md" || matches[1] != "docs/sub/b.md" {
		t.Errorf("matches = %v", matches)
	}

	out = run(t, p, "filesystem.search_files", map[string]any{"path": "docs", "pattern": "**/*", "max_results": float64(1)})
	if out["count"] != 1 {
		t.Errorf("count = %v", out["count"])
	}

	if _, err := p.ExecuteBlocking("filesystem.search_files", map[string]any{"path": "docs", "pattern": "[unclosed"}); err == nil {
		t.Error("invalid pattern should fail")
	}
}

func TestExecuteBlocking_UnknownTool(t *testing.T) {
	p := newTestProvider(t)
	if _, err := p.ExecuteBlocking("filesystem.format_disk", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"  a \n b  ", 10, "a b"},
		{"one two three", 9, "one two…"},
		{"abcdefghij", 4, "abcd…"},
	}
	for _, tt := range tests {
		if got := truncateText(tt.in, tt.max); got != tt.want {
			t.Errorf("truncateText(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
