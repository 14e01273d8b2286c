package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"toolhost/internal/domain"
)

// stubProvider is a minimal suspension-style provider with a call counter.
type stubProvider struct {
	tools  []domain.ToolDescriptor
	result any
	err    error
	calls  atomic.Int32
}

func (s *stubProvider) ListTools() []domain.ToolDescriptor { return s.tools }
func (s *stubProvider) Execute(ctx context.Context, tool string, args map[string]any) (any, error) {
	s.calls.Add(1)
	return s.result, s.err
}

// blockingStub is the blocking counterpart of stubProvider.
type blockingStub struct {
	tools []domain.ToolDescriptor
	fn    func(tool string, args map[string]any) (any, error)
	calls atomic.Int32
}

func (s *blockingStub) ListTools() []domain.ToolDescriptor { return s.tools }
func (s *blockingStub) ExecuteBlocking(tool string, args map[string]any) (any, error) {
	s.calls.Add(1)
	return s.fn(tool, args)
}

type panickyProvider struct{ stubProvider }

func (p *panickyProvider) ListTools() []domain.ToolDescriptor { panic("discovery exploded") }

type listOnly struct{}

func (listOnly) ListTools() []domain.ToolDescriptor { return nil }

type shutdownStub struct {
	stubProvider
	shutdowns atomic.Int32
	err       error
}

func (s *shutdownStub) Shutdown(ctx context.Context) error {
	s.shutdowns.Add(1)
	return s.err
}

var (
	_ domain.Executor         = (*stubProvider)(nil)
	_ domain.BlockingExecutor = (*blockingStub)(nil)
	_ domain.Shutdowner       = (*shutdownStub)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func descriptor(name string, required ...string) domain.ToolDescriptor {
	props := map[string]Param{}
	for _, r := range required {
		props[r] = Param{Type: "string", Description: r}
	}
	return domain.ToolDescriptor{
		Name:        name,
		Description: "stub: " + name,
		Parameters:  ToolParameters(props, required),
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	p := &stubProvider{tools: []domain.ToolDescriptor{descriptor("fs.read")}}
	if err := reg.Register("fs", p); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := reg.Get("fs")
	if !ok || got != p {
		t.Fatal("expected to find registered provider")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 provider, got %d", reg.Len())
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := NewRegistry(testLogger())
	if _, ok := reg.Get("nonexistent"); ok {
		t.Fatal("expected miss for unknown provider")
	}
}

func TestRegistry_DuplicateKeepsOriginal(t *testing.T) {
	reg := NewRegistry(testLogger())
	first := &stubProvider{tools: []domain.ToolDescriptor{descriptor("fs.read")}}
	second := &stubProvider{tools: []domain.ToolDescriptor{descriptor("fs.write")}}

	if err := reg.Register("fs", first); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := reg.Register("fs", second)
	if !errors.Is(err, domain.ErrDuplicateProvider) {
		t.Fatalf("expected DuplicateProvider, got %v", err)
	}
	got, _ := reg.Get("fs")
	if got != first {
		t.Fatal("previously registered provider was replaced")
	}
}

func TestRegistry_ToolCollision(t *testing.T) {
	reg := NewRegistry(testLogger())
	_ = reg.Register("a", &stubProvider{tools: []domain.ToolDescriptor{descriptor("shared.tool")}})
	err := reg.Register("b", &stubProvider{tools: []domain.ToolDescriptor{descriptor("shared.tool")}})
	if !errors.Is(err, domain.ErrToolCollision) {
		t.Fatalf("expected ToolCollision, got %v", err)
	}
	if _, ok := reg.Get("b"); ok {
		t.Fatal("colliding provider should not be registered")
	}
}

func TestRegistry_RejectsNonExecutor(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register("x", listOnly{}); err == nil {
		t.Fatal("expected error for provider without execute")
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry(testLogger())
	_ = reg.Register("alpha", &stubProvider{})
	_ = reg.Register("beta", &blockingStub{})

	names := reg.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRegistry_AllToolsIsolatesFailingProvider(t *testing.T) {
	reg := NewRegistry(testLogger())
	_ = reg.Register("fs", &stubProvider{tools: []domain.ToolDescriptor{descriptor("fs.read"), descriptor("fs.write")}})
	_ = reg.Register("web", &stubProvider{tools: []domain.ToolDescriptor{descriptor("web.get")}})
	_ = reg.Register("broken", &panickyProvider{})

	all := reg.AllTools(context.Background())
	if len(all) != 3 {
		t.Fatalf("expected 3 provider entries, got %d", len(all))
	}
	if len(all["fs"]) != 2 || len(all["web"]) != 1 {
		t.Fatalf("healthy providers lost tools: %v", all)
	}
	broken, ok := all["broken"]
	if !ok || broken == nil || len(broken) != 0 {
		t.Fatalf("expected empty non-nil list for broken provider, got %#v", broken)
	}
}

func TestRegistry_AllToolsRoundTripsDescriptors(t *testing.T) {
	desc := domain.ToolDescriptor{
		Name:        "fs.read_file",
		Description: "Read a file, with \"quotes\" and unicode é",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}
	reg := NewRegistry(testLogger())
	_ = reg.Register("fs", &stubProvider{tools: []domain.ToolDescriptor{desc}})

	got := reg.AllTools(context.Background())["fs"][0]
	if got.Name != desc.Name || got.Description != desc.Description {
		t.Fatalf("descriptor changed: %+v", got)
	}
	if string(got.Parameters) != string(desc.Parameters) {
		t.Fatalf("schema bytes changed:\n%s\n%s", got.Parameters, desc.Parameters)
	}
}

func TestRegistry_ShutdownOnce(t *testing.T) {
	reg := NewRegistry(testLogger())
	ok := &shutdownStub{}
	bad := &shutdownStub{err: errors.New("close failed")}
	_ = reg.Register("ok", ok)
	_ = reg.Register("bad", bad)

	reg.Shutdown(context.Background())
	reg.Shutdown(context.Background())

	if ok.shutdowns.Load() != 1 || bad.shutdowns.Load() != 1 {
		t.Fatalf("expected exactly one shutdown each, got %d and %d", ok.shutdowns.Load(), bad.shutdowns.Load())
	}
}

// --- ToolParameters ---

func TestToolParameters_WithRequired(t *testing.T) {
	raw := ToolParameters(
		map[string]Param{
			"name": {Type: "string", Description: "The name"},
			"age":  {Type: "integer", Description: "The age in years", Minimum: Min(0)},
		},
		[]string{"name"},
	)

	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if params["type"] != "object" {
		t.Fatal("expected type=object")
	}
	props := params["properties"].(map[string]any)
	if len(props) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(props))
	}
	nameParam := props["name"].(map[string]any)
	if nameParam["description"] != "The name" {
		t.Fatalf("expected 'The name', got %q", nameParam["description"])
	}
	required := params["required"].([]any)
	if len(required) != 1 || required[0] != "name" {
		t.Fatalf("unexpected required: %v", required)
	}
}

func TestToolParameters_NoRequired(t *testing.T) {
	var params map[string]any
	_ = json.Unmarshal(ToolParameters(map[string]Param{"query": {Type: "string"}}, nil), &params)
	if _, ok := params["required"]; ok {
		t.Fatal("should not have 'required' key when nil")
	}
}

// --- Args helpers ---

func TestArgsString(t *testing.T) {
	args := map[string]any{"key": "value", "num": 42.0}
	if got := ArgsString(args, "key"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
	if got := ArgsString(args, "missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if got := ArgsString(nil, "key"); got != "" {
		t.Fatalf("expected empty for nil args, got %q", got)
	}
	if got := ArgsString(args, "num"); got != "42" {
		t.Fatalf("expected '42', got %q", got)
	}
}

func TestArgsIntAndBool(t *testing.T) {
	args := map[string]any{"n": 5.0, "b": true, "s": "x"}
	if ArgsInt(args, "n", 1) != 5 || ArgsInt(args, "s", 1) != 1 || ArgsInt(nil, "n", 7) != 7 {
		t.Fatal("ArgsInt mismatch")
	}
	if !ArgsBool(args, "b", false) || ArgsBool(args, "s", false) {
		t.Fatal("ArgsBool mismatch")
	}
}
