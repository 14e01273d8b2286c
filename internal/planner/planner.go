// Package planner provides language-model backed implementations of
// domain.Planner and the bounded call helper used by the selector and
// summarizer.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"toolhost/internal/domain"
	"toolhost/internal/metrics"
)

const defaultHTTPTimeout = 120 * time.Second

// Decide calls p with a bounded wait. The call is abandoned when timeout
// elapses even if p ignores ctx. Every failure, including a nil planner or
// an empty answer, is reported as a PlannerUnavailable *domain.ToolError.
func Decide(ctx context.Context, p domain.Planner, prompt string, timeout time.Duration) (string, error) {
	if p == nil {
		return "", domain.NewToolError(domain.KindPlannerUnavailable, "no planner configured")
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type answer struct {
		text string
		err  error
	}
	done := make(chan answer, 1)
	start := time.Now()
	metrics.PlannerCallsTotal.Inc()
	go func() {
		var a answer
		defer func() {
			if rec := recover(); rec != nil {
				a = answer{err: fmt.Errorf("planner panicked: %v", rec)}
			}
			done <- a
		}()
		a.text, a.err = p.Decide(ctx, prompt)
	}()

	var a answer
	select {
	case a = <-done:
	case <-ctx.Done():
		a.err = ctx.Err()
	}
	metrics.PlannerLatency.Observe(time.Since(start).Seconds())

	if a.err == nil && strings.TrimSpace(a.text) == "" {
		a.err = errors.New("empty answer")
	}
	if a.err != nil {
		metrics.PlannerFailures.Inc()
		return "", &domain.ToolError{
			Kind:    domain.KindPlannerUnavailable,
			Message: fmt.Sprintf("planner %s: %v", p.Name(), a.err),
		}
	}
	return a.text, nil
}
