// Package github is a capability provider for the authenticated user's
// GitHub repositories.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	gh "github.com/google/go-github/v66/github"

	"toolhost/internal/domain"
	"toolhost/internal/tool"
)

const (
	Name = "github"

	maxRepos     = 10
	snippetChars = 500
)

type Config struct {
	Token string
	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider executes GitHub tools. Without a token it advertises no tools.
type Provider struct {
	client *gh.Client
	logger *slog.Logger

	mu    sync.Mutex
	login string
}

func New(cfg Config) (*Provider, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &Provider{logger: cfg.Logger}
	if cfg.Token == "" {
		p.logger.Warn("github token not set, provider has no tools")
		return p, nil
	}

	client := gh.NewClient(cfg.HTTPClient).WithAuthToken(cfg.Token)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github: base url: %w", err)
		}
		client.BaseURL = base
	}
	p.client = client
	return p, nil
}

// Configured reports whether the provider has credentials.
func (p *Provider) Configured() bool { return p.client != nil }

func (p *Provider) ListTools() []domain.ToolDescriptor {
	if p.client == nil {
		return []domain.ToolDescriptor{}
	}
	return []domain.ToolDescriptor{
		{
			Name:        "github.list_repos",
			Description: "Lists the names and descriptions of the authenticated user's top 10 public and private GitHub repositories.",
			Parameters:  tool.ToolParameters(map[string]tool.Param{}, nil),
		},
		{
			Name:        "github.get_repo_contents",
			Description: "Retrieves the contents of a specific file from a specified repository owned by the user.",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"repo_name": {Type: "string", Description: "The name of the repository (e.g., 'my-project' or 'owner/my-project')."},
				"path":      {Type: "string", Description: "The path to the file within the repository (e.g., 'src/main.go')."},
			}, []string{"repo_name", "path"}),
		},
	}
}

func (p *Provider) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	if p.client == nil {
		return nil, fmt.Errorf("github provider is not authenticated; set capabilities.github.token or GITHUB_PAT")
	}
	switch name {
	case "github.list_repos":
		return p.listRepos(ctx)
	case "github.get_repo_contents":
		return p.getRepoContents(ctx, tool.ArgsString(args, "repo_name"), tool.ArgsString(args, "path"))
	default:
		return nil, domain.NewToolError(domain.KindNotFound, "unknown tool: %s", name)
	}
}

type repoSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
	URL         string `json:"url"`
}

func (p *Provider) listRepos(ctx context.Context) (any, error) {
	login, err := p.user(ctx)
	if err != nil {
		return nil, err
	}
	repos, _, err := p.client.Repositories.ListByAuthenticatedUser(ctx, &gh.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: maxRepos},
	})
	if err != nil {
		return nil, apiError(err)
	}

	out := make([]repoSummary, 0, min(len(repos), maxRepos))
	for _, r := range repos {
		if len(out) == maxRepos {
			break
		}
		desc := r.GetDescription()
		if desc == "" {
			desc = "No description."
		}
		out = append(out, repoSummary{
			Name:        r.GetName(),
			Description: desc,
			IsPrivate:   r.GetPrivate(),
			URL:         r.GetHTMLURL(),
		})
	}
	return map[string]any{"user": login, "repos_count": len(out), "repos": out}, nil
}

func (p *Provider) getRepoContents(ctx context.Context, repoName, path string) (any, error) {
	owner, repo, ok := strings.Cut(repoName, "/")
	if !ok {
		login, err := p.user(ctx)
		if err != nil {
			return nil, err
		}
		owner, repo = login, repoName
	}

	file, _, _, err := p.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, apiError(err)
	}
	if file == nil || file.GetType() != "file" {
		return nil, fmt.Errorf("path %q is not a file", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	snippet := content
	if runes := []rune(content); len(runes) > snippetChars {
		snippet = string(runes[:snippetChars]) + "..."
	}
	return map[string]any{
		"repo":            repoName,
		"path":            path,
		"sha":             file.GetSHA(),
		"content_length":  len(content),
		"content_snippet": snippet,
	}, nil
}

// user returns the authenticated login, fetched once.
func (p *Provider) user(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.login != "" {
		return p.login, nil
	}
	u, _, err := p.client.Users.Get(ctx, "")
	if err != nil {
		return "", apiError(err)
	}
	p.login = u.GetLogin()
	p.logger.Debug("github user resolved", "login", p.login)
	return p.login, nil
}

func apiError(err error) error {
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return fmt.Errorf("GitHub API error (status %d): %s", ghErr.Response.StatusCode, ghErr.Message)
	}
	return fmt.Errorf("GitHub API: %w", err)
}

var _ domain.Executor = (*Provider)(nil)
