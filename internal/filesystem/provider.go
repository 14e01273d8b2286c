// Package filesystem is a capability provider for sandboxed file access.
// Every path is relative to a single sandbox directory; absolute paths,
// ".." segments and anything resolving outside the sandbox are rejected.
package filesystem

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"toolhost/internal/domain"
	"toolhost/internal/tool"
)

const (
	Name = "filesystem"

	defaultMaxReadChars  = 2000
	defaultMaxWriteBytes = 2 << 20
	defaultMaxResults    = 100
)

type Config struct {
	SandboxDir    string
	MaxReadChars  int
	MaxWriteBytes int64
	// AllowedDirs restricts access to these top-level sandbox entries.
	// Empty allows the whole sandbox.
	AllowedDirs []string
	Logger      *slog.Logger
}

// Provider executes filesystem tools. Its operations block, so it implements
// domain.BlockingExecutor and leaves scheduling to the bridge.
type Provider struct {
	root          string
	maxReadChars  int
	maxWriteBytes int64
	allowed       map[string]bool
	handlers      map[string]handler
	logger        *slog.Logger
}

type handler func(args map[string]any) (any, error)

// New creates the sandbox directory if needed.
func New(cfg Config) (*Provider, error) {
	if cfg.SandboxDir == "" {
		return nil, fmt.Errorf("filesystem: sandbox directory is required")
	}
	if cfg.MaxReadChars <= 0 {
		cfg.MaxReadChars = defaultMaxReadChars
	}
	if cfg.MaxWriteBytes <= 0 {
		cfg.MaxWriteBytes = defaultMaxWriteBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	root, err := filepath.Abs(cfg.SandboxDir)
	if err != nil {
		return nil, fmt.Errorf("filesystem: resolve sandbox: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: create sandbox: %w", err)
	}
	// Symlinked sandboxes (e.g. /tmp on macOS) must compare by real path.
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}

	p := &Provider{
		root:          root,
		maxReadChars:  cfg.MaxReadChars,
		maxWriteBytes: cfg.MaxWriteBytes,
		logger:        cfg.Logger,
	}
	if len(cfg.AllowedDirs) > 0 {
		p.allowed = make(map[string]bool, len(cfg.AllowedDirs))
		for _, d := range cfg.AllowedDirs {
			p.allowed[d] = true
		}
	}
	p.handlers = map[string]handler{
		"filesystem.read_file":      p.readFile,
		"filesystem.write_file":     p.writeFile,
		"filesystem.append_file":    p.appendFile,
		"filesystem.list_dir":       p.listDir,
		"filesystem.make_directory": p.makeDirectory,
		"filesystem.file_exists":    p.fileExists,
		"filesystem.delete":         p.delete,
		"filesystem.move":           p.move,
		"filesystem.copy":           p.copy,
		"filesystem.get_metadata":   p.getMetadata,
		"filesystem.search_files":   p.searchFiles,
	}
	p.logger.Info("filesystem provider ready", "sandbox", root)
	return p, nil
}

// Root returns the absolute sandbox directory.
func (p *Provider) Root() string { return p.root }

func (p *Provider) ExecuteBlocking(name string, args map[string]any) (any, error) {
	h, ok := p.handlers[name]
	if !ok {
		return nil, domain.NewToolError(domain.KindNotFound, "unknown tool: %s", name)
	}
	return h(args)
}

func (p *Provider) ListTools() []domain.ToolDescriptor {
	path := tool.Param{Type: "string", Description: "Sandbox-relative path"}
	content := tool.Param{Type: "string", Description: "Text content"}
	return []domain.ToolDescriptor{
		{
			Name:        "filesystem.read_file",
			Description: "Read a file (truncated by default).",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"path":      path,
				"max_chars": {Type: "integer", Description: "Maximum characters returned", Minimum: tool.Min(1)},
			}, []string{"path"}),
		},
		{
			Name:        "filesystem.write_file",
			Description: "Write (overwrite) a file. Performs atomic write and enforces max size.",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"path":      path,
				"content":   content,
				"max_bytes": {Type: "integer", Description: "Maximum content size in bytes", Minimum: tool.Min(0)},
			}, []string{"path", "content"}),
		},
		{
			Name:        "filesystem.append_file",
			Description: "Append content to existing file (creates file if missing).",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"path":             path,
				"content":          content,
				"max_append_bytes": {Type: "integer", Description: "Maximum appended size in bytes", Minimum: tool.Min(0)},
			}, []string{"path", "content"}),
		},
		{
			Name:        "filesystem.list_dir",
			Description: "List directory contents (files and directories).",
			Parameters:  tool.ToolParameters(map[string]tool.Param{"path": path}, []string{"path"}),
		},
		{
			Name:        "filesystem.make_directory",
			Description: "Create directory (recursively).",
			Parameters:  tool.ToolParameters(map[string]tool.Param{"path": path}, []string{"path"}),
		},
		{
			Name:        "filesystem.file_exists",
			Description: "Check if file/directory exists.",
			Parameters:  tool.ToolParameters(map[string]tool.Param{"path": path}, []string{"path"}),
		},
		{
			Name:        "filesystem.delete",
			Description: "Delete a file or empty directory.",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"path":      path,
				"recursive": {Type: "boolean", Description: "Remove non-empty directories", Default: false},
			}, []string{"path"}),
		},
		{
			Name:        "filesystem.move",
			Description: "Move/rename a file or directory inside sandbox.",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"src": {Type: "string", Description: "Source path"},
				"dst": {Type: "string", Description: "Destination path"},
			}, []string{"src", "dst"}),
		},
		{
			Name:        "filesystem.copy",
			Description: "Copy a file inside sandbox.",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"src": {Type: "string", Description: "Source path"},
				"dst": {Type: "string", Description: "Destination path"},
			}, []string{"src", "dst"}),
		},
		{
			Name:        "filesystem.get_metadata",
			Description: "Get file metadata (size, is_dir, modified_time).",
			Parameters:  tool.ToolParameters(map[string]tool.Param{"path": path}, []string{"path"}),
		},
		{
			Name:        "filesystem.search_files",
			Description: "Search files with glob pattern under a directory.",
			Parameters: tool.ToolParameters(map[string]tool.Param{
				"path":        path,
				"pattern":     {Type: "string", Description: "Glob pattern, ** matches across directories"},
				"max_results": {Type: "integer", Description: "Maximum matches returned", Default: defaultMaxResults, Minimum: tool.Min(1)},
			}, []string{"path", "pattern"}),
		},
	}
}

var _ domain.BlockingExecutor = (*Provider)(nil)
