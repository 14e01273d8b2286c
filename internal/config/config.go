package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the tool host.
type Config struct {
	General      GeneralConfig      `json:"general"`
	Server       ServerConfig       `json:"server"`
	Planner      PlannerConfig      `json:"planner"`
	Capabilities CapabilitiesConfig `json:"capabilities"`
	Selector     SelectorConfig     `json:"selector"`
	Bridge       BridgeConfig       `json:"bridge"`
	Audit        AuditConfig        `json:"audit"`
	Metrics      MetricsConfig      `json:"metrics"`
	Telegram     TelegramConfig     `json:"telegram"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	DataDir  string `json:"dataDir"`
}

type ServerConfig struct {
	Host                  string   `json:"host"`
	Port                  int      `json:"port"`
	CORSOrigins           []string `json:"corsOrigins,omitempty"`
	RequestTimeoutSeconds int      `json:"requestTimeoutSeconds"`
}

// PlannerConfig selects the language-model planner. With Enabled false, or
// no usable provider, selection and summaries use the deterministic paths.
type PlannerConfig struct {
	Enabled               bool                      `json:"enabled"`
	Default               string                    `json:"default"`
	FailoverChain         []string                  `json:"failoverChain,omitempty"`
	TimeoutSeconds        int                       `json:"timeoutSeconds"`
	SummaryTimeoutSeconds int                       `json:"summaryTimeoutSeconds"`
	RateLimitPerMinute    int                       `json:"rateLimitPerMinute,omitempty"` // 0 = unlimited
	RateLimitBurst        int                       `json:"rateLimitBurst,omitempty"`
	Providers             map[string]ProviderConfig `json:"providers"`
}

type ProviderConfig struct {
	Enabled bool   `json:"enabled"`
	APIBase string `json:"apiBase,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	Model   string `json:"model,omitempty"`
}

type CapabilitiesConfig struct {
	Filesystem FilesystemConfig `json:"filesystem"`
	Browser    BrowserConfig    `json:"browser"`
	GitHub     GitHubConfig     `json:"github"`
}

type FilesystemConfig struct {
	Enabled       bool     `json:"enabled"`
	SandboxDir    string   `json:"sandboxDir"`
	MaxReadChars  int      `json:"maxReadChars"`
	MaxWriteBytes int64    `json:"maxWriteBytes"`
	AllowedDirs   []string `json:"allowedDirs,omitempty"` // optional top-level dirs inside the sandbox
}

type BrowserConfig struct {
	Enabled        bool   `json:"enabled"`
	Headless       bool   `json:"headless"`
	ProfileDir     string `json:"profileDir,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	MaxTextChars   int    `json:"maxTextChars"`
}

type GitHubConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
}

type SelectorConfig struct {
	RulesFile string `json:"rulesFile,omitempty"` // YAML heuristic rules; empty uses the built-in set
}

type BridgeConfig struct {
	MaxConcurrentBlocking int `json:"maxConcurrentBlocking"`
}

type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.toolhost).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolhost"
	}
	return filepath.Join(home, ".toolhost")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML (.yaml/.yml) config file, expands environment
// variables and ~ paths, fills defaults and validates.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	if isYAML(path) {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	Finalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Finalize expands paths, derives data-dir defaults and applies the
// well-known credential environment variables when the file leaves them empty.
func Finalize(cfg *Config) {
	cfg.General.DataDir = ExpandPath(cfg.General.DataDir)
	fs := &cfg.Capabilities.Filesystem
	if fs.SandboxDir == "" {
		fs.SandboxDir = filepath.Join(cfg.General.DataDir, "mcp_sandbox")
	}
	fs.SandboxDir = ExpandPath(fs.SandboxDir)
	cfg.Capabilities.Browser.ProfileDir = ExpandPath(cfg.Capabilities.Browser.ProfileDir)
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(cfg.General.DataDir, "audit.db")
	}
	cfg.Audit.Path = ExpandPath(cfg.Audit.Path)
	cfg.Selector.RulesFile = ExpandPath(cfg.Selector.RulesFile)

	if g, ok := cfg.Planner.Providers["gemini"]; ok && g.APIKey == "" {
		g.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		cfg.Planner.Providers["gemini"] = g
	}
	if cfg.Capabilities.GitHub.Token == "" {
		cfg.Capabilities.GitHub.Token = firstEnv("GITHUB_PAT", "GITHUB_TOKEN")
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON re-encodes a YAML document as JSON so the json tags on Config
// apply to both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return json.Marshal(doc)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.RequestTimeoutSeconds < 1 {
		errs = append(errs, "server.requestTimeoutSeconds must be >= 1")
	}

	if cfg.Planner.TimeoutSeconds < 1 {
		errs = append(errs, "planner.timeoutSeconds must be >= 1")
	}
	if cfg.Planner.SummaryTimeoutSeconds < 1 {
		errs = append(errs, "planner.summaryTimeoutSeconds must be >= 1")
	}
	if cfg.Planner.RateLimitPerMinute < 0 || cfg.Planner.RateLimitBurst < 0 {
		errs = append(errs, "planner.rateLimitPerMinute and planner.rateLimitBurst must be >= 0")
	}
	if cfg.Planner.Enabled && cfg.Planner.Default != "" {
		if _, ok := cfg.Planner.Providers[cfg.Planner.Default]; !ok {
			errs = append(errs, fmt.Sprintf("planner.default references unknown provider: %s", cfg.Planner.Default))
		}
	}
	for _, name := range cfg.Planner.FailoverChain {
		if _, ok := cfg.Planner.Providers[name]; !ok {
			errs = append(errs, fmt.Sprintf("planner.failoverChain references unknown provider: %s", name))
		}
	}
	for name, pc := range cfg.Planner.Providers {
		if !pc.Enabled || isBuiltinPlanner(name) {
			continue
		}
		if pc.APIBase == "" {
			errs = append(errs, fmt.Sprintf("planner.providers.%s: apiBase is required for OpenAI-compatible providers", name))
		}
	}

	fs := cfg.Capabilities.Filesystem
	if fs.MaxReadChars < 1 {
		errs = append(errs, "capabilities.filesystem.maxReadChars must be >= 1")
	}
	if fs.MaxWriteBytes < 1 {
		errs = append(errs, "capabilities.filesystem.maxWriteBytes must be >= 1")
	}
	for _, d := range fs.AllowedDirs {
		if filepath.IsAbs(d) || strings.Contains(d, "..") {
			errs = append(errs, fmt.Sprintf("capabilities.filesystem.allowedDirs: %q must be a relative top-level directory", d))
		}
	}
	if cfg.Capabilities.Browser.TimeoutSeconds < 1 {
		errs = append(errs, "capabilities.browser.timeoutSeconds must be >= 1")
	}
	if cfg.Capabilities.Browser.MaxTextChars < 1 {
		errs = append(errs, "capabilities.browser.maxTextChars must be >= 1")
	}

	if cfg.Bridge.MaxConcurrentBlocking < 1 || cfg.Bridge.MaxConcurrentBlocking > 256 {
		errs = append(errs, "bridge.maxConcurrentBlocking must be between 1 and 256")
	}

	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isBuiltinPlanner(name string) bool {
	switch name {
	case "gemini", "openai", "ollama":
		return true
	}
	return false
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
