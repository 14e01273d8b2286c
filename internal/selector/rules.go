package selector

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule maps request keywords to a tool. A rule matches when any keyword
// occurs in the lowercased request and every argument extractor succeeds.
type Rule struct {
	Name     string            `yaml:"name"`
	Keywords []string          `yaml:"keywords"`
	Tool     string            `yaml:"tool"`
	Args     map[string]string `yaml:"args"` // argument name -> extractor
}

// Provider is the rule tool's prefix before the first dot.
func (r Rule) Provider() string {
	p, _, _ := strings.Cut(r.Tool, ".")
	return p
}

// Argument extractors available to rules.
const (
	ExtractQuery = "query" // the whole request
	ExtractURL   = "url"   // first http(s) token
	ExtractPath  = "path"  // token after "path:" or " path "
	ExtractFile  = "file"  // path, else the token after the matched keyword
	ExtractDir   = "dir"   // path, else the token after " in ", else "."
	ExtractRepo  = "repo"  // first owner/repo token
)

var extractors = map[string]bool{
	ExtractQuery: true, ExtractURL: true, ExtractPath: true,
	ExtractFile: true, ExtractDir: true, ExtractRepo: true,
}

// DefaultRules is the built-in ordered rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "navigate",
			Keywords: []string{"open", "visit", "navigate", "browse", "go to", "read", "fetch"},
			Tool:     "browser.navigate_and_get_text",
			Args:     map[string]string{"url": ExtractURL},
		},
		{
			Name:     "search",
			Keywords: []string{"search", "google", "bing", "news", "look up", "find"},
			Tool:     "browser.perform_google_search",
			Args:     map[string]string{"query": ExtractQuery},
		},
		{
			Name:     "read_file",
			Keywords: []string{"read file", "open file", "show file", "cat file"},
			Tool:     "filesystem.read_file",
			Args:     map[string]string{"path": ExtractFile},
		},
		{
			Name:     "list_dir",
			Keywords: []string{"list files", "list dir", "list directory", "list the files", "show files"},
			Tool:     "filesystem.list_dir",
			Args:     map[string]string{"path": ExtractDir},
		},
		{
			Name:     "repo_contents",
			Keywords: []string{"repo", "github"},
			Tool:     "github.get_repo_contents",
			Args:     map[string]string{"repo_name": ExtractRepo, "path": ExtractPath},
		},
		{
			Name:     "list_repos",
			Keywords: []string{"my repos", "list repos", "my repositories", "list repositories"},
			Tool:     "github.list_repos",
		},
	}
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads an ordered rule set from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rules %s: no rules defined", path)
	}
	for i, r := range f.Rules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("rules %s: rule %d: %w", path, i, err)
		}
	}
	return f.Rules, nil
}

func (r Rule) validate() error {
	if r.Tool == "" || !strings.Contains(r.Tool, ".") {
		return fmt.Errorf("tool %q must be <provider>.<action>", r.Tool)
	}
	if len(r.Keywords) == 0 {
		return fmt.Errorf("%s: at least one keyword is required", r.Tool)
	}
	for arg, ex := range r.Args {
		if !extractors[ex] {
			return fmt.Errorf("%s: unknown extractor %q for argument %q", r.Tool, ex, arg)
		}
	}
	return nil
}

// match reports the keyword that fired and the extracted arguments.
func (r Rule) match(query, lower string) (map[string]any, bool) {
	kw := matchedKeyword(lower, r.Keywords)
	if kw == "" {
		return nil, false
	}
	args := make(map[string]any, len(r.Args))
	for name, ex := range r.Args {
		v, ok := extract(ex, query, lower, kw)
		if !ok {
			return nil, false
		}
		args[name] = v
	}
	return args, true
}

func matchedKeyword(lower string, keywords []string) string {
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

func extract(kind, query, lower, keyword string) (string, bool) {
	switch kind {
	case ExtractQuery:
		q := strings.TrimSpace(query)
		return q, q != ""
	case ExtractURL:
		for _, tok := range strings.Fields(query) {
			t := strings.ToLower(tok)
			if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
				return strings.TrimRight(tok, ".,;)\"'"), true
			}
		}
	case ExtractPath:
		return tokenAfter(query, lower, "path:", " path ")
	case ExtractFile:
		if p, ok := tokenAfter(query, lower, "path:", " path "); ok {
			return p, true
		}
		return tokenAfter(query, lower, keyword)
	case ExtractDir:
		if p, ok := tokenAfter(query, lower, "path:", " path ", " in "); ok {
			return p, true
		}
		return ".", true
	case ExtractRepo:
		for _, tok := range strings.Fields(query) {
			t := strings.ToLower(tok)
			if strings.Contains(t, "://") || strings.HasPrefix(t, "path:") {
				continue
			}
			owner, repo, ok := strings.Cut(strings.Trim(tok, ".,;\"'"), "/")
			if ok && owner != "" && repo != "" && !strings.Contains(repo, "/") {
				return owner + "/" + repo, true
			}
		}
	}
	return "", false
}

// tokenAfter returns the first whitespace-delimited token that follows the
// first marker found in lower, taken from the original-case query.
func tokenAfter(query, lower string, markers ...string) (string, bool) {
	for _, m := range markers {
		idx := strings.Index(lower, m)
		if idx < 0 {
			continue
		}
		fields := strings.Fields(query[idx+len(m):])
		if len(fields) == 0 {
			continue
		}
		tok := strings.Trim(fields[0], "\"'`,;")
		if tok != "" {
			return tok, true
		}
	}
	return "", false
}
