package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"toolhost/internal/domain"
	"toolhost/internal/metrics"
	"toolhost/internal/selector"
	"toolhost/internal/tool"
)

const (
	healthCheckSession = "health-check"
	healthCheckAnswer  = "Online"
	noCapabilitiesText = "Backend running but no tools loaded."
)

var healthCheckQueries = map[string]bool{
	"status check":      true,
	"host status check": true,
	"health check":      true,
}

// Orchestrator handles one request end to end: discover, select, invoke,
// summarize. It keeps no per-request state, so one instance serves many
// requests concurrently.
type Orchestrator struct {
	registry   *tool.Registry
	bridge     *tool.Bridge
	selector   *selector.Selector
	summarizer *Summarizer
	logger     *slog.Logger
}

// OrchestratorConfig configures the orchestrator.
type OrchestratorConfig struct {
	Registry *tool.Registry
	Bridge   *tool.Bridge
	Selector *selector.Selector
	// Planner backs the summarizer and the chat branch. Nil uses the
	// deterministic fallbacks.
	Planner        domain.Planner
	SummaryTimeout time.Duration
	Logger         *slog.Logger
}

// NewOrchestrator creates an orchestrator over an already populated registry.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Bridge == nil {
		cfg.Bridge = tool.NewBridge(tool.BridgeConfig{Registry: cfg.Registry, Logger: cfg.Logger})
	}
	if cfg.Selector == nil {
		cfg.Selector = selector.New(selector.Config{Logger: cfg.Logger})
	}
	return &Orchestrator{
		registry: cfg.Registry,
		bridge:   cfg.Bridge,
		selector: cfg.Selector,
		summarizer: NewSummarizer(SummarizerConfig{
			Planner: cfg.Planner,
			Timeout: cfg.SummaryTimeout,
			Logger:  cfg.Logger,
		}),
		logger: cfg.Logger,
	}
}

// Handle always returns a response; failures are reported in FinalAnswer.
func (o *Orchestrator) Handle(ctx context.Context, req domain.Request) domain.Response {
	metrics.RequestsTotal.Inc()

	if isHealthCheck(req) {
		return answer(healthCheckAnswer)
	}

	requestID := uuid.NewString()
	ctx = domain.WithRequestID(ctx, requestID)
	log := o.logger.With("request_id", requestID, "session", req.SessionID)
	start := time.Now()
	defer func() {
		log.Debug("request handled", "duration_ms", time.Since(start).Milliseconds())
	}()

	if o.registry == nil || o.registry.Len() == 0 {
		err := domain.NewToolError(domain.KindNoCapabilities, "no capability providers registered")
		log.Warn("request rejected", "err", err)
		return answer(noCapabilitiesText)
	}

	catalogue := o.registry.AllTools(ctx)
	decision := o.selector.Select(ctx, req.UserQuery, catalogue)
	if decision.Call == nil {
		log.Info("no tool selected", "source", decision.Source)
		return answer(o.summarizer.Chat(ctx, req.UserQuery))
	}
	call := *decision.Call
	log.Info("tool selected", "source", decision.Source, "rule", decision.Rule,
		"provider", call.Provider, "tool", call.Tool)

	if _, ok := o.registry.Get(call.Provider); !ok {
		err := domain.NewToolError(domain.KindProviderNotFound, "provider %q is not registered", call.Provider)
		log.Warn("selected provider missing", "err", err)
		return answer(providerNotFoundText(call.Provider))
	}

	res := o.bridge.Call(ctx, call)
	entry := domain.TraceEntry{
		Provider: call.Provider,
		Tool:     call.Tool,
		Args:     call.Args,
		Result:   res.Value(),
	}
	if !res.OK() {
		return domain.Response{
			FinalAnswer:       failureText(res.Err),
			ToolCallsExecuted: []domain.TraceEntry{entry},
		}
	}

	return domain.Response{
		FinalAnswer:       o.summarizer.Summarize(ctx, req.UserQuery, res.Payload),
		ToolCallsExecuted: []domain.TraceEntry{entry},
	}
}

func isHealthCheck(req domain.Request) bool {
	if req.SessionID == healthCheckSession {
		return true
	}
	return healthCheckQueries[strings.ToLower(strings.TrimSpace(req.UserQuery))]
}

func answer(text string) domain.Response {
	return domain.Response{FinalAnswer: text, ToolCallsExecuted: []domain.TraceEntry{}}
}

func providerNotFoundText(provider string) string {
	if provider == "" {
		return "Provider not found."
	}
	return fmt.Sprintf("Provider '%s' not found.", provider)
}

func failureText(err *domain.ToolError) string {
	return fmt.Sprintf("Tool error (%s): %s", err.Kind, err.Message)
}
