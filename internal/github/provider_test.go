package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}
		fmt.Fprint(w, `{"login":"octo"}`)
	})
	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		var repos []map[string]any
		for i := 0; i < 12; i++ {
			repos = append(repos, map[string]any{
				"name":     fmt.Sprintf("repo-%d", i),
				"private":  i%2 == 0,
				"html_url": fmt.Sprintf("https://github.com/octo/repo-%d", i),
			})
		}
		repos[1]["description"] = "second"
		json.NewEncoder(w).Encode(repos)
	})
	mux.HandleFunc("/repos/octo/hello/contents/README.md", func(w http.ResponseWriter, r *http.Request) {
		body := strings.Repeat("a", 600)
		json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"encoding": "base64",
			"path":     "README.md",
			"sha":      "abc123",
			"content":  base64.StdEncoding.EncodeToString([]byte(body)),
		})
	})
	mux.HandleFunc("/repos/octo/hello/contents/src", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"type":"file","name":"main.go","path":"src/main.go"}]`)
	})
	mux.HandleFunc("/repos/octo/missing/contents/x", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, token string) *Provider {
	t.Helper()
	srv := newTestServer(t)
	p, err := New(Config{
		Token:   token,
		BaseURL: srv.URL,
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestUnconfigured(t *testing.T) {
	p, err := New(Config{})
	if err != nil {
		t.Fatal(err)
	}
	if tools := p.ListTools(); tools == nil || len(tools) != 0 {
		t.Errorf("expected empty non-nil tool list, got %v", tools)
	}
	if _, err := p.Execute(context.Background(), "github.list_repos", nil); err == nil {
		t.Error("expected error when not authenticated")
	}
}

func TestListTools(t *testing.T) {
	p := newTestProvider(t, "test-token")
	tools := p.ListTools()
	if len(tools) != 2 || tools[0].Name != "github.list_repos" || tools[1].Name != "github.get_repo_contents" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}

func TestListRepos(t *testing.T) {
	p := newTestProvider(t, "test-token")
	out, err := p.Execute(context.Background(), "github.list_repos", nil)
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]any)
	if m["user"] != "octo" || m["repos_count"] != maxRepos {
		t.Errorf("unexpected summary: user=%v count=%v", m["user"], m["repos_count"])
	}
	repos := m["repos"].([]repoSummary)
	if repos[0].Description != "No description." || !repos[0].IsPrivate {
		t.Errorf("repo 0 = %+v", repos[0])
	}
	if repos[1].Description != "second" || repos[1].URL != "https://github.com/octo/repo-1" {
		t.Errorf("repo 1 = %+v", repos[1])
	}
}

func TestGetRepoContents(t *testing.T) {
	p := newTestProvider(t, "test-token")
	for _, repo := range []string{"hello", "octo/hello"} {
		out, err := p.Execute(context.Background(), "github.get_repo_contents", map[string]any{"repo_name": repo, "path": "README.md"})
		if err != nil {
			t.Fatalf("%s: %v", repo, err)
		}
		m := out.(map[string]any)
		if m["sha"] != "abc123" || m["content_length"] != 600 {
			t.Errorf("%s: unexpected result %v", repo, m)
		}
		if s := m["content_snippet"].(string); len(s) != snippetChars+3 || !strings.HasSuffix(s, "...") {
			t.Errorf("%s: snippet length %d", repo, len(s))
		}
	}
}

func TestGetRepoContents_Errors(t *testing.T) {
	p := newTestProvider(t, "test-token")
	_, err := p.Execute(context.Background(), "github.get_repo_contents", map[string]any{"repo_name": "octo/hello", "path": "src"})
	if err == nil || !strings.Contains(err.Error(), "not a file") {
		t.Errorf("directory: %v", err)
	}
	_, err = p.Execute(context.Background(), "github.get_repo_contents", map[string]any{"repo_name": "octo/missing", "path": "x"})
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("missing repo: %v", err)
	}
}

func TestBadCredentials(t *testing.T) {
	p := newTestProvider(t, "wrong")
	_, err := p.Execute(context.Background(), "github.list_repos", nil)
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
}
