// Package app wires the tool host's services using go.uber.org/dig.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/dig"

	"toolhost/internal/agent"
	"toolhost/internal/audit"
	"toolhost/internal/browser"
	"toolhost/internal/config"
	"toolhost/internal/domain"
	"toolhost/internal/filesystem"
	"toolhost/internal/github"
	"toolhost/internal/metrics"
	"toolhost/internal/planner"
	"toolhost/internal/selector"
	"toolhost/internal/tool"
)

// Container holds the resolved service singletons.
// Callers use the typed getters; they never import dig directly.
type Container struct {
	cfg          *config.Config
	logger       *slog.Logger
	registry     *tool.Registry
	bridge       *tool.Bridge
	selector     *selector.Selector
	orchestrator *agent.Orchestrator
	planners     *planner.Factory
	planner      domain.Planner
	audit        *audit.Store
}

func (c *Container) Config() *config.Config { return c.cfg }
func (c *Container) Logger() *slog.Logger { return c.logger }
func (c *Container) Registry() *tool.Registry { return c.registry }
func (c *Container) Bridge() *tool.Bridge { return c.bridge }
func (c *Container) Selector() *selector.Selector { return c.selector }
func (c *Container) Orchestrator() *agent.Orchestrator { return c.orchestrator }
func (c *Container) Planner() domain.Planner { return c.planner }

// Audit returns the audit store, or nil when auditing is disabled.
func (c *Container) Audit() *audit.Store { return c.audit }

// plannerRef wraps the optional planner so dig can carry a nil one.
type plannerRef struct{ domain.Planner }

// auditRef wraps the optional audit store.
type auditRef struct{ *audit.Store }

// Options override services for tests. Zero values build from config.
type Options struct {
	// Planner replaces the planner built from config.
	Planner domain.Planner
	// Providers replaces the built-in capability providers.
	Providers map[string]domain.Capability
}

// New builds and wires all services from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := dig.New()

	provides := []any{
		func() context.Context { return ctx },
		func() *config.Config { return cfg },
		func() *slog.Logger { return logger },
		func() Options { return opts },
		newPlannerFactory,
		newPlanner,
		newRegistry,
		newAuditStore,
		newBridge,
		newSelector,
		newOrchestrator,
	}
	for _, p := range provides {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		registry *tool.Registry,
		bridge *tool.Bridge,
		sel *selector.Selector,
		orch *agent.Orchestrator,
		factory *planner.Factory,
		p plannerRef,
		store auditRef,
	) {
		result = &Container{
			cfg:          cfg,
			logger:       logger,
			registry:     registry,
			bridge:       bridge,
			selector:     sel,
			orchestrator: orch,
			planners:     factory,
			planner:      p.Planner,
			audit:        store.Store,
		}
	})
	if err != nil {
		return nil, fmt.Errorf("wire services: %w", dig.RootCause(err))
	}
	return result, nil
}

// Model names the active planner for health reporting.
func (c *Container) Model() string {
	if c.planner == nil {
		return "heuristic"
	}
	if m, ok := c.planner.(interface{ Model() string }); ok && m.Model() != "" {
		return c.planner.Name() + ":" + m.Model()
	}
	return c.planner.Name()
}

// WatchRules reloads the heuristic rules file on change until ctx is done.
// It is a no-op without a configured rules file.
func (c *Container) WatchRules(ctx context.Context) error {
	if c.cfg.Selector.RulesFile == "" {
		return nil
	}
	return c.selector.WatchRules(ctx, c.cfg.Selector.RulesFile)
}

// Close shuts down providers, planners and the audit store.
func (c *Container) Close(ctx context.Context) error {
	c.registry.Shutdown(ctx)
	var errs []error
	if err := c.planners.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.audit != nil {
		if err := c.audit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newPlannerFactory(cfg *config.Config, logger *slog.Logger) *planner.Factory {
	return planner.NewFactory(cfg.Planner, logger)
}

func newPlanner(ctx context.Context, f *planner.Factory, opts Options) plannerRef {
	if opts.Planner != nil {
		return plannerRef{opts.Planner}
	}
	return plannerRef{f.Build(ctx)}
}

func newRegistry(cfg *config.Config, logger *slog.Logger, opts Options) (*tool.Registry, error) {
	registry := tool.NewRegistry(logger)

	providers := opts.Providers
	if providers == nil {
		var err error
		if providers, err = builtinProviders(cfg, logger); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedKeys(providers) {
		if err := registry.Register(name, providers[name]); err != nil {
			registry.Shutdown(context.Background())
			return nil, err
		}
	}
	metrics.RegisteredProviders.Set(int64(registry.Len()))
	return registry, nil
}

func builtinProviders(cfg *config.Config, logger *slog.Logger) (map[string]domain.Capability, error) {
	caps := cfg.Capabilities
	out := make(map[string]domain.Capability)

	if caps.Filesystem.Enabled {
		fs, err := filesystem.New(filesystem.Config{
			SandboxDir:    caps.Filesystem.SandboxDir,
			MaxReadChars:  caps.Filesystem.MaxReadChars,
			MaxWriteBytes: caps.Filesystem.MaxWriteBytes,
			AllowedDirs:   caps.Filesystem.AllowedDirs,
			Logger:        logger.With("provider", filesystem.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("filesystem provider: %w", err)
		}
		out[filesystem.Name] = fs
	}
	if caps.Browser.Enabled {
		out[browser.Name] = browser.New(browser.Config{
			Headless:     caps.Browser.Headless,
			ProfileDir:   caps.Browser.ProfileDir,
			Timeout:      time.Duration(caps.Browser.TimeoutSeconds) * time.Second,
			MaxTextChars: caps.Browser.MaxTextChars,
			Logger:       logger.With("provider", browser.Name),
		})
	}
	if caps.GitHub.Enabled {
		gh, err := github.New(github.Config{
			Token:   caps.GitHub.Token,
			BaseURL: caps.GitHub.BaseURL,
			Logger:  logger.With("provider", github.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("github provider: %w", err)
		}
		out[github.Name] = gh
	}
	return out, nil
}

func newAuditStore(cfg *config.Config, logger *slog.Logger) (auditRef, error) {
	if !cfg.Audit.Enabled {
		return auditRef{}, nil
	}
	store, err := audit.Open(cfg.Audit.Path, logger)
	if err != nil {
		return auditRef{}, fmt.Errorf("audit store: %w", err)
	}
	return auditRef{store}, nil
}

func newBridge(cfg *config.Config, registry *tool.Registry, store auditRef, logger *slog.Logger) *tool.Bridge {
	bc := tool.BridgeConfig{
		Registry:              registry,
		MaxConcurrentBlocking: int64(cfg.Bridge.MaxConcurrentBlocking),
		Logger:                logger,
	}
	if store.Store != nil {
		bc.Observer = store.Store
	}
	return tool.NewBridge(bc)
}

func newSelector(cfg *config.Config, p plannerRef, logger *slog.Logger) (*selector.Selector, error) {
	var rules []selector.Rule
	if path := cfg.Selector.RulesFile; path != "" {
		loaded, err := selector.LoadRules(path)
		if err != nil {
			return nil, fmt.Errorf("selector rules: %w", err)
		}
		rules = loaded
		logger.Info("heuristic rules loaded", "path", path, "rules", len(rules))
	}
	return selector.New(selector.Config{
		Planner: p.Planner,
		Timeout: time.Duration(cfg.Planner.TimeoutSeconds) * time.Second,
		Rules:   rules,
		Logger:  logger,
	}), nil
}

func newOrchestrator(
	cfg *config.Config,
	registry *tool.Registry,
	bridge *tool.Bridge,
	sel *selector.Selector,
	p plannerRef,
	logger *slog.Logger,
) *agent.Orchestrator {
	return agent.NewOrchestrator(agent.OrchestratorConfig{
		Registry:       registry,
		Bridge:         bridge,
		Selector:       sel,
		Planner:        p.Planner,
		SummaryTimeout: time.Duration(cfg.Planner.SummaryTimeoutSeconds) * time.Second,
		Logger:         logger,
	})
}
