package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"toolhost/internal/domain"
)

// GeminiModelPreferences is the model discovery order. When none is
// available the first model supporting generateContent is used.
var GeminiModelPreferences = []string{
	"models/gemini-2.0-flash-lite",
	"models/gemini-1.5-flash",
	"models/gemini-1.5-flash-latest",
	"models/gemini-2.0-flash",
}

// Gemini implements domain.Planner with the Google Generative AI SDK.
type Gemini struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

type GeminiConfig struct {
	APIKey string
	// Model pins a model; empty runs discovery against the API.
	Model  string
	Logger *slog.Logger
	// ClientOptions are appended after the API key (endpoint overrides in tests).
	ClientOptions []option.ClientOption
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: missing API key (GEMINI_API_KEY / GOOGLE_API_KEY)")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := append([]option.ClientOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}, cfg.ClientOptions...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}

	g := &Gemini{client: client, model: cfg.Model, logger: cfg.Logger}
	if g.model == "" {
		model, err := g.discoverModel(ctx)
		if err != nil {
			client.Close()
			return nil, err
		}
		g.model = model
	}
	g.logger.Info("gemini planner ready", "model", g.model)
	return g, nil
}

func (g *Gemini) Name() string  { return "gemini" }
func (g *Gemini) Model() string { return g.model }

func (g *Gemini) Decide(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String(), nil
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) discoverModel(ctx context.Context) (string, error) {
	var available []string
	it := g.client.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("gemini model discovery: %w", err)
		}
		if supports(m.SupportedGenerationMethods, "generateContent") {
			available = append(available, m.Name)
		}
	}
	model := selectModel(available, GeminiModelPreferences)
	if model == "" {
		return "", errors.New("gemini: no model supports generateContent")
	}
	return model, nil
}

// selectModel returns the first preferred model present in available, else
// the first available model.
func selectModel(available, preferences []string) string {
	set := make(map[string]bool, len(available))
	for _, m := range available {
		set[m] = true
	}
	for _, p := range preferences {
		if set[p] {
			return p
		}
	}
	if len(available) > 0 {
		return available[0]
	}
	return ""
}

func supports(methods []string, want string) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}

var _ domain.Planner = (*Gemini)(nil)
