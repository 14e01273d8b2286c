package tool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhost/internal/domain"
)

type recordingObserver struct {
	mu   sync.Mutex
	seen []Invocation
}

func (o *recordingObserver) ObserveInvocation(_ context.Context, inv Invocation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, inv)
}

func newTestBridge(t *testing.T, providers map[string]domain.Capability) (*Bridge, *recordingObserver) {
	t.Helper()
	reg := NewRegistry(testLogger())
	for name, p := range providers {
		require.NoError(t, reg.Register(name, p))
	}
	obs := &recordingObserver{}
	return NewBridge(BridgeConfig{Registry: reg, MaxConcurrentBlocking: 2, Observer: obs, Logger: testLogger()}), obs
}

func TestBridge_UnknownToolNeverExecutes(t *testing.T) {
	p := &stubProvider{tools: []domain.ToolDescriptor{descriptor("fs.read", "path")}}
	b, _ := newTestBridge(t, map[string]domain.Capability{"fs": p})

	res := b.Call(context.Background(), domain.ToolCall{Provider: "fs", Tool: "fs.delete", Args: map[string]any{}})
	require.False(t, res.OK())
	assert.Equal(t, domain.KindNotFound, res.Err.Kind)
	assert.Nil(t, res.Payload)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestBridge_MissingRequiredNeverExecutes(t *testing.T) {
	p := &stubProvider{tools: []domain.ToolDescriptor{descriptor("fs.read", "path")}}
	blk := &blockingStub{
		tools: []domain.ToolDescriptor{descriptor("disk.read", "path")},
		fn:    func(string, map[string]any) (any, error) { return "x", nil },
	}
	b, _ := newTestBridge(t, map[string]domain.Capability{"fs": p, "disk": blk})

	res := b.Call(context.Background(), domain.ToolCall{Provider: "fs", Tool: "fs.read", Args: map[string]any{}})
	require.False(t, res.OK())
	assert.Equal(t, domain.KindInvalidArguments, res.Err.Kind)
	assert.Equal(t, int32(0), p.calls.Load())

	res = b.Call(context.Background(), domain.ToolCall{Provider: "disk", Tool: "disk.read"})
	require.False(t, res.OK())
	assert.Equal(t, domain.KindInvalidArguments, res.Err.Kind)
	assert.Equal(t, int32(0), blk.calls.Load())
}

func TestBridge_ExecutorSuccess(t *testing.T) {
	p := &stubProvider{
		tools:  []domain.ToolDescriptor{descriptor("fs.read", "path")},
		result: map[string]any{"content": "hi"},
	}
	b, obs := newTestBridge(t, map[string]domain.Capability{"fs": p})

	res := b.Call(context.Background(), domain.ToolCall{Provider: "fs", Tool: "fs.read", Args: map[string]any{"path": "a"}})
	require.True(t, res.OK())
	assert.Equal(t, map[string]any{"content": "hi"}, res.Payload)
	require.Len(t, obs.seen, 1)
	assert.Equal(t, "ok", obs.seen[0].Outcome())
}

func TestBridge_NilPayloadBecomesEmptyObject(t *testing.T) {
	p := &stubProvider{tools: []domain.ToolDescriptor{descriptor("fs.touch")}}
	b, _ := newTestBridge(t, map[string]domain.Capability{"fs": p})

	res := b.Call(context.Background(), domain.ToolCall{Provider: "fs", Tool: "fs.touch"})
	require.True(t, res.OK())
	assert.Equal(t, map[string]any{}, res.Payload)
}

func TestBridge_ProviderErrorsBecomeExecutionFailed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"plain error", errors.New("disk on fire"), "disk on fire"},
		{"provider tool error", domain.NewToolError(domain.KindInvalidArguments, "path escapes sandbox"), "path escapes sandbox"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProvider{tools: []domain.ToolDescriptor{descriptor("fs.read")}, err: tt.err}
			b, _ := newTestBridge(t, map[string]domain.Capability{"fs": p})

			res := b.Call(context.Background(), domain.ToolCall{Provider: "fs", Tool: "fs.read"})
			require.False(t, res.OK())
			assert.Equal(t, domain.KindExecutionFailed, res.Err.Kind)
			assert.Equal(t, tt.msg, res.Err.Message)
		})
	}
}

func TestBridge_BlockingPanicRecovered(t *testing.T) {
	blk := &blockingStub{
		tools: []domain.ToolDescriptor{descriptor("disk.crash")},
		fn:    func(string, map[string]any) (any, error) { panic("kaboom") },
	}
	b, _ := newTestBridge(t, map[string]domain.Capability{"disk": blk})

	res := b.Call(context.Background(), domain.ToolCall{Provider: "disk", Tool: "disk.crash"})
	require.False(t, res.OK())
	assert.Equal(t, domain.KindExecutionFailed, res.Err.Kind)
	assert.Contains(t, res.Err.Message, "kaboom")
}

func TestBridge_BlockingHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	blk := &blockingStub{
		tools: []domain.ToolDescriptor{descriptor("disk.slow")},
		fn: func(string, map[string]any) (any, error) {
			<-release
			return "late", nil
		},
	}
	defer close(release)
	b, _ := newTestBridge(t, map[string]domain.Capability{"disk": blk})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := b.Call(ctx, domain.ToolCall{Provider: "disk", Tool: "disk.slow"})
	require.False(t, res.OK())
	assert.Equal(t, domain.KindExecutionFailed, res.Err.Kind)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBridge_BlockingRunsConcurrently(t *testing.T) {
	var mu sync.Mutex
	inflight, peak := 0, 0
	blk := &blockingStub{
		tools: []domain.ToolDescriptor{descriptor("disk.wait")},
		fn: func(string, map[string]any) (any, error) {
			mu.Lock()
			inflight++
			if inflight > peak {
				peak = inflight
			}
			mu.Unlock()
			time.Sleep(30 * time.Millisecond)
			mu.Lock()
			inflight--
			mu.Unlock()
			return "ok", nil
		},
	}
	b, _ := newTestBridge(t, map[string]domain.Capability{"disk": blk})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := b.Call(context.Background(), domain.ToolCall{Provider: "disk", Tool: "disk.wait"})
			assert.True(t, res.OK())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(6), blk.calls.Load())
	assert.LessOrEqual(t, peak, 2, "semaphore should cap concurrent blocking work")
}

func TestBridge_UnknownProvider(t *testing.T) {
	b, _ := newTestBridge(t, map[string]domain.Capability{"fs": &stubProvider{}})
	res := b.Call(context.Background(), domain.ToolCall{Provider: "github", Tool: "github.list_repos"})
	require.False(t, res.OK())
	assert.Equal(t, domain.KindProviderNotFound, res.Err.Kind)
}
