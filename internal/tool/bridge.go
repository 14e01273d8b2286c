package tool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/semaphore"

	"toolhost/internal/domain"
	"toolhost/internal/metrics"
)

// Invocation describes one finished tool invocation for observers.
type Invocation struct {
	Provider string
	Tool     string
	Err      *domain.ToolError
	Duration time.Duration
}

// Outcome is "ok" or the failure kind.
func (i Invocation) Outcome() string {
	if i.Err == nil {
		return "ok"
	}
	return string(i.Err.Kind)
}

// Observer receives a record of every invocation the bridge completes.
type Observer interface {
	ObserveInvocation(ctx context.Context, inv Invocation)
}

type BridgeConfig struct {
	Registry *Registry
	// MaxConcurrentBlocking bounds blocking executions across all requests.
	MaxConcurrentBlocking int64
	Observer              Observer
	Logger                *slog.Logger
}

// Bridge is the single entry point for executing a tool on a provider.
type Bridge struct {
	registry *Registry
	sem      *semaphore.Weighted
	observer Observer
	logger   *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.MaxConcurrentBlocking <= 0 {
		cfg.MaxConcurrentBlocking = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Bridge{
		registry: cfg.Registry,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentBlocking),
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
}

// Call resolves the call's provider in the registry and invokes it.
func (b *Bridge) Call(ctx context.Context, call domain.ToolCall) domain.InvocationResult {
	if b.registry == nil {
		return failed(domain.NewToolError(domain.KindProviderNotFound, "no registry configured"))
	}
	c, ok := b.registry.Get(call.Provider)
	if !ok {
		return failed(domain.NewToolError(domain.KindProviderNotFound, "provider %q is not registered", call.Provider))
	}
	return b.Invoke(ctx, call.Provider, c, call.Tool, call.Args)
}

// Invoke resolves tool against the provider's current tool list, validates
// args, then executes. Every failure is returned as a *domain.ToolError of
// kind NotFound, InvalidArguments or ExecutionFailed.
func (b *Bridge) Invoke(ctx context.Context, provider string, c domain.Capability, tool string, args map[string]any) domain.InvocationResult {
	start := time.Now()
	res := b.invoke(ctx, c, tool, args)

	inv := Invocation{Provider: provider, Tool: tool, Err: res.Err, Duration: time.Since(start)}
	metrics.ToolInvocations(provider, tool, inv.Outcome()).Inc()
	metrics.ToolLatency.Observe(inv.Duration.Seconds())
	if b.observer != nil {
		b.observer.ObserveInvocation(ctx, inv)
	}
	if res.Err != nil {
		b.logger.Warn("tool invocation failed", "provider", provider, "tool", tool,
			"kind", res.Err.Kind, "err", res.Err.Message, "duration_ms", inv.Duration.Milliseconds())
	} else {
		b.logger.Info("tool invoked", "provider", provider, "tool", tool, "duration_ms", inv.Duration.Milliseconds())
	}
	return res
}

func (b *Bridge) invoke(ctx context.Context, c domain.Capability, tool string, args map[string]any) domain.InvocationResult {
	tools, err := listTools(c)
	if err != nil {
		return failed(domain.NewToolError(domain.KindExecutionFailed, "%v", err))
	}
	desc, found := findTool(tools, tool)
	if !found {
		return failed(domain.NewToolError(domain.KindNotFound, "tool %q not found", tool))
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := Validate(desc, args); err != nil {
		return failed(domain.AsToolError(err, domain.KindInvalidArguments))
	}

	var payload any
	switch p := c.(type) {
	case domain.Executor:
		payload, err = runExecutor(ctx, p, tool, args)
	case domain.BlockingExecutor:
		payload, err = b.runBlocking(ctx, p, tool, args)
	default:
		err = fmt.Errorf("provider cannot execute tools")
	}
	if err != nil {
		return failed(executionFailed(err))
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return domain.InvocationResult{Payload: payload}
}

func runExecutor(ctx context.Context, p domain.Executor, tool string, args map[string]any) (payload any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError(rec)
		}
	}()
	return p.Execute(ctx, tool, args)
}

type blockingOutcome struct {
	payload any
	err     error
}

// runBlocking executes p on its own goroutine and waits for it or for ctx.
// On cancellation the goroutine runs to completion in the background and
// keeps its semaphore slot until then.
func (b *Bridge) runBlocking(ctx context.Context, p domain.BlockingExecutor, tool string, args map[string]any) (any, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for execution slot: %w", err)
	}
	done := make(chan blockingOutcome, 1)
	metrics.BlockingInFlight.Inc()
	go func() {
		defer metrics.BlockingInFlight.Dec()
		defer b.sem.Release(1)
		var out blockingOutcome
		defer func() {
			if rec := recover(); rec != nil {
				out = blockingOutcome{err: panicError(rec)}
			}
			done <- out
		}()
		out.payload, out.err = p.ExecuteBlocking(tool, args)
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("tool %s abandoned: %w", tool, ctx.Err())
	}
}

func findTool(tools []domain.ToolDescriptor, name string) (domain.ToolDescriptor, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return domain.ToolDescriptor{}, false
}

// executionFailed re-kinds provider errors so provider-specific failure
// types never reach the caller. Message and details are kept.
func executionFailed(err error) *domain.ToolError {
	te := domain.AsToolError(err, domain.KindExecutionFailed)
	return &domain.ToolError{Kind: domain.KindExecutionFailed, Message: te.Message, Details: te.Details}
}

func panicError(rec any) error {
	slog.Debug("provider panic", "stack", string(debug.Stack()))
	return fmt.Errorf("provider panicked: %v", rec)
}

func failed(te *domain.ToolError) domain.InvocationResult {
	return domain.InvocationResult{Err: te}
}
