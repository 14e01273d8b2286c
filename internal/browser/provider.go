// Package browser is a capability provider for page reading and web search
// through a shared headless Chrome.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"toolhost/internal/domain"
	"toolhost/internal/tool"
)

const (
	Name = "browser"

	defaultTimeout      = 30 * time.Second
	defaultMaxTextChars = 1000
	defaultSearchURL    = "https://www.google.com/search"
	maxSearchResults    = 5
)

type Config struct {
	Renderer     Renderer // nil uses a chromedp Bridge
	Headless     bool
	ProfileDir   string
	Timeout      time.Duration
	MaxTextChars int
	SearchURL    string
	Logger       *slog.Logger
}

// Provider executes browser tools. It honors ctx, so it implements
// domain.Executor.
type Provider struct {
	renderer     Renderer
	timeout      time.Duration
	maxTextChars int
	searchURL    string
	logger       *slog.Logger
}

func New(cfg Config) *Provider {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = defaultMaxTextChars
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = defaultSearchURL
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NewBridge(BridgeConfig{
			ProfileDir: cfg.ProfileDir,
			Headless:   cfg.Headless,
			Logger:     cfg.Logger,
		})
	}
	return &Provider{
		renderer:     cfg.Renderer,
		timeout:      cfg.Timeout,
		maxTextChars: cfg.MaxTextChars,
		searchURL:    cfg.SearchURL,
		logger:       cfg.Logger,
	}
}

func (p *Provider) ListTools() []domain.ToolDescriptor {
	return []domain.ToolDescriptor{
		{
			Name:        "browser.navigate_and_get_text",
			Description: "Navigates to URL and returns text.",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"url": {Type: "string", Description: "Absolute http(s) URL"},
			}, []string{"url"}),
		},
		{
			Name: "browser.perform_google_search",
			Description: "Performs a Google search and returns the top results. " +
				"Use this for general questions like 'latest tech news'.",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"query": {Type: "string", Description: "Search query"},
			}, []string{"query"}),
		},
	}
}

func (p *Provider) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	switch name {
	case "browser.navigate_and_get_text":
		return p.navigate(ctx, tool.ArgsString(args, "url"))
	case "browser.perform_google_search":
		return p.search(ctx, tool.ArgsString(args, "query"))
	default:
		return nil, domain.NewToolError(domain.KindNotFound, "unknown tool: %s", name)
	}
}

// Shutdown stops the shared browser.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.renderer.Close()
	return nil
}

func (p *Provider) navigate(ctx context.Context, rawURL string) (any, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	page, err := p.renderer.Render(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	finalURL := page.URL
	if finalURL == "" {
		finalURL = rawURL
	}
	title, text := extractText(page.HTML, finalURL)
	if title == "" {
		title = page.Title
	}
	p.logger.Debug("page read", "url", finalURL, "chars", len(text))
	return map[string]any{
		"url":   finalURL,
		"title": title,
		"text":  truncateRunes(text, p.maxTextChars),
	}, nil
}

func (p *Provider) search(ctx context.Context, query string) (any, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	u, err := url.Parse(p.searchURL)
	if err != nil {
		return nil, fmt.Errorf("search url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("hl", "en")
	u.RawQuery = q.Encode()

	page, err := p.renderer.Render(ctx, u.String())
	if err != nil {
		return nil, err
	}
	results := parseSearchResults(page.HTML, maxSearchResults)
	p.logger.Debug("search done", "query", query, "results", len(results))
	return map[string]any{"query": query, "top_results": results}, nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http/https allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing domain in URL")
	}
	return nil
}

var (
	_ domain.Executor   = (*Provider)(nil)
	_ domain.Shutdowner = (*Provider)(nil)
)
