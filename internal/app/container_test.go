package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhost/internal/config"
	"toolhost/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testConfig enables only the filesystem provider, without a planner.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.General.DataDir = t.TempDir()
	cfg.Planner.Enabled = false
	cfg.Capabilities.Browser.Enabled = false
	cfg.Capabilities.GitHub.Enabled = false
	config.Finalize(cfg)
	require.NoError(t, config.Validate(cfg))
	return cfg
}

type stubPlanner struct{ answer string }

func (s stubPlanner) Name() string { return "stub" }

func (s stubPlanner) Decide(context.Context, string) (string, error) { return s.answer, nil }

func TestNew_EndToEndListDir(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(context.Background(), cfg, testLogger(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Capabilities.Filesystem.SandboxDir, "a.txt"), []byte("hi"), 0o644))

	assert.Equal(t, []string{"filesystem"}, c.Registry().Names())
	assert.Equal(t, "heuristic", c.Model())
	assert.Nil(t, c.Planner())

	resp := c.Orchestrator().Handle(context.Background(), domain.Request{UserQuery: "list files", SessionID: "s1"})
	require.Len(t, resp.ToolCallsExecuted, 1)
	assert.Equal(t, "filesystem.list_dir", resp.ToolCallsExecuted[0].Tool)
	assert.Contains(t, resp.FinalAnswer, "a.txt")

	require.NotNil(t, c.Audit())
	entries, err := c.Audit().Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "filesystem.list_dir", entries[0].Tool)
	assert.Equal(t, "ok", entries[0].Outcome)
	assert.NotEmpty(t, entries[0].RequestID)
}

func TestNew_AuditDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Enabled = false
	c, err := New(context.Background(), cfg, testLogger(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.Nil(t, c.Audit())
	resp := c.Orchestrator().Handle(context.Background(), domain.Request{UserQuery: "list files"})
	assert.Len(t, resp.ToolCallsExecuted, 1)
}

func TestNew_OptionsOverrideProvidersAndPlanner(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(context.Background(), cfg, testLogger(), Options{
		Planner:   stubPlanner{answer: "{}"},
		Providers: map[string]domain.Capability{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.Equal(t, 0, c.Registry().Len())
	assert.Equal(t, "stub", c.Model())

	resp := c.Orchestrator().Handle(context.Background(), domain.Request{UserQuery: "list files"})
	assert.Equal(t, "Backend running but no tools loaded.", resp.FinalAnswer)
}

func TestNew_RulesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Selector.RulesFile = filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(cfg.Selector.RulesFile, []byte(`
rules:
  - name: peek
    keywords: ["peek"]
    tool: filesystem.list_dir
    args:
      path: dir
`), 0o644))

	c, err := New(context.Background(), cfg, testLogger(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	require.Len(t, c.Selector().Rules(), 1)
	assert.Equal(t, "peek", c.Selector().Rules()[0].Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.WatchRules(ctx))
}

func TestNew_BadRulesFileFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Selector.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, testLogger(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selector rules")
}

func TestWatchRules_NoFileIsNoop(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(context.Background(), cfg, testLogger(), Options{Providers: map[string]domain.Capability{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	assert.NoError(t, c.WatchRules(context.Background()))
}

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()
	assert.True(t, NewLogger("debug", io.Discard).Enabled(ctx, slog.LevelDebug))
	assert.False(t, NewLogger("warn", io.Discard).Enabled(ctx, slog.LevelInfo))
	assert.True(t, NewLogger("bogus", io.Discard).Enabled(ctx, slog.LevelInfo))
	assert.False(t, NewLogger("error", io.Discard).Enabled(ctx, slog.LevelWarn))
}
