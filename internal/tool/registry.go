package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"toolhost/internal/domain"
)

// Registry owns the registered capability providers, keyed by name.
// Providers are registered at startup and read concurrently while serving.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.Capability
	owners    map[string]string // tool name -> provider name
	order     []string
	logger    *slog.Logger

	shutdownOnce sync.Once
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: make(map[string]domain.Capability),
		owners:    make(map[string]string),
		logger:    logger,
	}
}

// Register stores a provider under name. It fails if the name is taken,
// if the provider has no execute method, or if one of its tools is already
// owned by another provider. A failed registration leaves the registry unchanged.
func (r *Registry) Register(name string, c domain.Capability) error {
	if name == "" {
		return fmt.Errorf("register: empty provider name")
	}
	switch c.(type) {
	case domain.Executor, domain.BlockingExecutor:
	default:
		return fmt.Errorf("register %s: provider implements neither Execute nor ExecuteBlocking", name)
	}

	tools := safeList(c)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return domain.NewToolError(domain.KindDuplicateProvider, "provider %q is already registered", name)
	}
	for _, t := range tools {
		if owner, taken := r.owners[t.Name]; taken {
			return domain.NewToolError(domain.KindToolCollision, "tool %q from %q collides with provider %q", t.Name, name, owner)
		}
	}
	r.providers[name] = c
	r.order = append(r.order, name)
	for _, t := range tools {
		r.owners[t.Name] = name
	}
	r.logger.Debug("registered provider", "provider", name, "tools", len(tools))
	return nil
}

func (r *Registry) Get(name string) (domain.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.providers[name]
	return c, ok
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// AllTools discovers every provider's tools in parallel. A provider whose
// discovery panics contributes an empty list.
func (r *Registry) AllTools(ctx context.Context) map[string][]domain.ToolDescriptor {
	r.mu.RLock()
	snapshot := make(map[string]domain.Capability, len(r.providers))
	for n, c := range r.providers {
		snapshot[n] = c
	}
	r.mu.RUnlock()

	var mu sync.Mutex
	out := make(map[string][]domain.ToolDescriptor, len(snapshot))
	g, _ := errgroup.WithContext(ctx)
	for name, c := range snapshot {
		g.Go(func() error {
			tools, err := listTools(c)
			if err != nil {
				r.logger.Warn("tool discovery failed", "provider", name, "err", err)
				tools = []domain.ToolDescriptor{}
			}
			mu.Lock()
			out[name] = tools
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Catalogue flattens AllTools into a name-sorted list.
func (r *Registry) Catalogue(ctx context.Context) []domain.ToolDescriptor {
	var all []domain.ToolDescriptor
	for _, tools := range r.AllTools(ctx) {
		all = append(all, tools...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Shutdown calls Shutdown on every provider that supports it, once.
// Failures are logged and swallowed.
func (r *Registry) Shutdown(ctx context.Context) {
	r.shutdownOnce.Do(func() {
		for _, name := range r.Names() {
			c, _ := r.Get(name)
			s, ok := c.(domain.Shutdowner)
			if !ok {
				continue
			}
			if err := shutdownProvider(ctx, s); err != nil {
				r.logger.Warn("provider shutdown failed", "provider", name, "err", err)
				continue
			}
			r.logger.Debug("provider shut down", "provider", name)
		}
	})
}

func listTools(c domain.Capability) (tools []domain.ToolDescriptor, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("list tools panicked: %v", rec)
		}
	}()
	tools = c.ListTools()
	if tools == nil {
		tools = []domain.ToolDescriptor{}
	}
	return tools, nil
}

func safeList(c domain.Capability) []domain.ToolDescriptor {
	tools, err := listTools(c)
	if err != nil {
		return nil
	}
	return tools
}

func shutdownProvider(ctx context.Context, s domain.Shutdowner) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("shutdown panicked: %v", rec)
		}
	}()
	return s.Shutdown(ctx)
}
