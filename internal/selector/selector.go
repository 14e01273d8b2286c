// Package selector decides which tool, if any, answers a request. It asks
// the planner first and falls back to ordered keyword rules; its result is
// always a decision, never an error.
package selector

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"toolhost/internal/domain"
	"toolhost/internal/metrics"
	"toolhost/internal/planner"
)

// Source records which path produced a decision.
type Source string

const (
	SourcePlanner   Source = "planner"
	SourceHeuristic Source = "heuristic"
)

// Decision is the selector's output. A nil Call means no tool applies.
type Decision struct {
	Call   *domain.ToolCall
	Source Source
	Rule   string // heuristic rule name, when Source is heuristic
}

type Config struct {
	Planner domain.Planner // nil disables the planner attempt
	Timeout time.Duration
	Rules   []Rule // nil uses DefaultRules
	Logger  *slog.Logger
}

type Selector struct {
	planner domain.Planner
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.RWMutex
	rules []Rule
}

func New(cfg Config) *Selector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Selector{
		planner: cfg.Planner,
		timeout: cfg.Timeout,
		rules:   cfg.Rules,
		logger:  cfg.Logger,
	}
}

// HasPlanner reports whether a planner is configured.
func (s *Selector) HasPlanner() bool { return s.planner != nil }

// Select maps query and catalogue to zero or one normalized tool call.
func (s *Selector) Select(ctx context.Context, query string, catalogue map[string][]domain.ToolDescriptor) Decision {
	if s.planner != nil {
		call, err := s.plan(ctx, query, catalogue)
		if err == nil {
			if call == nil {
				s.logger.Debug("planner chose no tool")
				return Decision{Source: SourcePlanner}
			}
			return Decision{Call: Normalize(call, catalogue), Source: SourcePlanner}
		}
		s.logger.Warn("planner selection failed, using heuristic", "err", err)
	}

	metrics.HeuristicDecisions.Inc()
	call, rule := s.Heuristic(query, catalogue)
	return Decision{Call: Normalize(call, catalogue), Source: SourceHeuristic, Rule: rule}
}

func (s *Selector) plan(ctx context.Context, query string, catalogue map[string][]domain.ToolDescriptor) (*domain.ToolCall, error) {
	out, err := planner.Decide(ctx, s.planner, DecisionPrompt(query, catalogue), s.timeout)
	if err != nil {
		return nil, err
	}
	call, err := parseDecision(out)
	if err != nil {
		return nil, &domain.ToolError{Kind: domain.KindPlannerUnavailable, Message: err.Error()}
	}
	return call, nil
}

// SetRules replaces the heuristic rules; nil restores DefaultRules.
func (s *Selector) SetRules(rules []Rule) {
	if rules == nil {
		rules = DefaultRules()
	}
	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
}

// Rules returns the heuristic rules in use.
func (s *Selector) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Rule(nil), s.rules...)
}

// Heuristic applies the ordered rules to query. Rules whose tool is not in
// the catalogue are skipped. It returns the call and the rule name, or nil.
func (s *Selector) Heuristic(query string, catalogue map[string][]domain.ToolDescriptor) (*domain.ToolCall, string) {
	lower := strings.ToLower(query)
	original := query
	if len(lower) != len(query) {
		original = lower
	}
	available := toolSet(catalogue)

	for _, r := range s.Rules() {
		if !available[r.Tool] {
			continue
		}
		args, ok := r.match(original, lower)
		if !ok {
			continue
		}
		s.logger.Debug("heuristic rule matched", "rule", r.Name, "tool", r.Tool)
		return &domain.ToolCall{Provider: r.Provider(), Tool: r.Tool, Args: args}, r.Name
	}
	return nil, ""
}

func toolSet(catalogue map[string][]domain.ToolDescriptor) map[string]bool {
	set := make(map[string]bool)
	for _, tools := range catalogue {
		for _, t := range tools {
			set[t.Name] = true
		}
	}
	return set
}
