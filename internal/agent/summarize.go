package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"toolhost/internal/domain"
	"toolhost/internal/planner"
)

const (
	summaryLimit     = 1000
	summaryPrefix    = "Tool execution finished. Output (truncated): "
	noCapabilityText = "No matching capability found for this request."
)

// Summarizer turns a tool payload into the final answer. With a planner it
// asks for a short summary; without one, or when the planner fails, it
// renders a truncated JSON dump.
type Summarizer struct {
	planner domain.Planner
	timeout time.Duration
	logger  *slog.Logger
}

type SummarizerConfig struct {
	Planner domain.Planner
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewSummarizer(cfg SummarizerConfig) *Summarizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Summarizer{planner: cfg.Planner, timeout: cfg.Timeout, logger: cfg.Logger}
}

// Summarize never fails.
func (s *Summarizer) Summarize(ctx context.Context, query string, payload any) string {
	if s.planner != nil {
		prompt := summaryPrompt(query, payload)
		out, err := planner.Decide(ctx, s.planner, prompt, s.timeout)
		if err == nil {
			return strings.TrimSpace(out)
		}
		s.logger.Warn("summarization failed, using fallback", "err", err)
	}
	return FallbackSummary(payload)
}

// Chat answers a query that needs no tool.
func (s *Summarizer) Chat(ctx context.Context, query string) string {
	if s.planner == nil {
		return noCapabilityText
	}
	out, err := planner.Decide(ctx, s.planner, query, s.timeout)
	if err != nil {
		s.logger.Warn("chat answer failed", "err", err)
		return noCapabilityText
	}
	return strings.TrimSpace(out)
}

func summaryPrompt(query string, payload any) string {
	return fmt.Sprintf("Query: %s\nTool result (JSON): %s\nProvide a short, user-friendly summary of the result.",
		query, marshalJSON(payload))
}

// FallbackSummary renders the payload's "result" field, or the whole
// payload, as JSON capped at 1000 characters.
func FallbackSummary(payload any) string {
	out := marshalJSON(payload)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &obj); err == nil {
		if inner, ok := obj["result"]; ok {
			out = string(inner)
		}
	}
	return summaryPrefix + truncateRunes(out, summaryLimit)
}

func marshalJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
