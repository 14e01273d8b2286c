package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"toolhost/internal/config"
	"toolhost/internal/domain"
)

// Constructor creates a planner from a config entry.
type Constructor func(ctx context.Context, name string, pc config.ProviderConfig, logger *slog.Logger) (domain.Planner, error)

// Factory creates and caches planners from config.
type Factory struct {
	cfg          config.PlannerConfig
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.Planner
	mu           sync.RWMutex
}

// NewFactory creates a planner factory with the built-in constructors registered.
func NewFactory(cfg config.PlannerConfig, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.Planner),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a planner constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["gemini"] = func(ctx context.Context, _ string, pc config.ProviderConfig, logger *slog.Logger) (domain.Planner, error) {
		return NewGemini(ctx, GeminiConfig{APIKey: pc.APIKey, Model: pc.Model, Logger: logger})
	}
	f.constructors["openai"] = func(_ context.Context, name string, pc config.ProviderConfig, logger *slog.Logger) (domain.Planner, error) {
		if pc.APIKey == "" && pc.APIBase == "" {
			return nil, errors.New("openai: apiKey is required")
		}
		return NewOpenAI(OpenAIConfig{Name: name, APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.Model, Logger: logger}), nil
	}
	f.constructors["ollama"] = func(_ context.Context, _ string, pc config.ProviderConfig, logger *slog.Logger) (domain.Planner, error) {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, Model: pc.Model, Logger: logger}), nil
	}
}

// Get returns the planner with the given name, or the default if name is empty.
// Created planners are cached so the same instance is reused across calls.
func (f *Factory) Get(ctx context.Context, name string) (domain.Planner, error) {
	if name == "" {
		name = f.cfg.Default
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown planner: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("planner %s is disabled", name)
	}

	var (
		p   domain.Planner
		err error
	)
	if ctor, found := f.constructors[name]; found {
		p, err = ctor(ctx, name, pc, f.logger)
	} else if pc.APIBase != "" {
		// Unknown names are treated as OpenAI-compatible endpoints.
		p = NewOpenAI(OpenAIConfig{Name: name, APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.Model, Logger: f.logger})
	} else {
		err = fmt.Errorf("planner %s: no constructor registered and no apiBase configured", name)
	}
	if err != nil {
		return nil, err
	}

	f.cache[name] = p
	return p, nil
}

// Build returns the configured planner: a failover chain when one is
// configured, otherwise the default. Planners that cannot be constructed
// are skipped with a warning. With rateLimitPerMinute set, the result is
// throttled by a token bucket. It returns nil when planning is disabled or
// nothing could be built; callers then use their deterministic paths.
func (f *Factory) Build(ctx context.Context) domain.Planner {
	if !f.cfg.Enabled {
		return nil
	}
	names := f.cfg.FailoverChain
	if len(names) == 0 {
		names = []string{f.cfg.Default}
	}

	var chain []domain.Planner
	for _, name := range names {
		p, err := f.Get(ctx, name)
		if err != nil {
			f.logger.Warn("planner unavailable", "planner", name, "err", err)
			continue
		}
		chain = append(chain, p)
	}

	var p domain.Planner
	switch len(chain) {
	case 0:
		f.logger.Warn("no planner available; using heuristic selection and plain summaries")
		return nil
	case 1:
		p = chain[0]
	default:
		p = NewFailover(chain, f.logger)
	}
	if f.cfg.RateLimitPerMinute > 0 {
		p = NewLimited(p, NewRateLimiter(f.cfg.RateLimitBurst, float64(f.cfg.RateLimitPerMinute)))
	}
	return p
}

// Close releases every cached planner that holds resources.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for name, p := range f.cache {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	f.cache = make(map[string]domain.Planner)
	return errors.Join(errs...)
}
