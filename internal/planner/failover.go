package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"toolhost/internal/domain"
)

// Failover tries planners in order, falling back to the next one when the
// current fails.
type Failover struct {
	planners []domain.Planner
	logger   *slog.Logger
}

// NewFailover creates a failover chain from the given planners.
func NewFailover(planners []domain.Planner, logger *slog.Logger) *Failover {
	if logger == nil {
		logger = slog.Default()
	}
	return &Failover{planners: planners, logger: logger}
}

func (f *Failover) Name() string {
	names := make([]string, len(f.planners))
	for i, p := range f.planners {
		names[i] = p.Name()
	}
	return "failover(" + strings.Join(names, "→") + ")"
}

// Decide returns the first successful answer. It stops early when ctx is done.
func (f *Failover) Decide(ctx context.Context, prompt string) (string, error) {
	if len(f.planners) == 0 {
		return "", fmt.Errorf("empty failover chain")
	}
	var lastErr error
	for i, p := range f.planners {
		out, err := p.Decide(ctx, prompt)
		if err == nil {
			if i > 0 {
				f.logger.Info("failover: used fallback planner", "planner", p.Name(), "attempt", i+1)
			}
			return out, nil
		}
		lastErr = err
		f.logger.Warn("failover: planner failed, trying next", "planner", p.Name(), "attempt", i+1, "err", err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("all planners in failover chain failed: %w", lastErr)
}

var _ domain.Planner = (*Failover)(nil)
