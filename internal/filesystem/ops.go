package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"toolhost/internal/tool"
)

func (p *Provider) readFile(args map[string]any) (any, error) {
	rel := tool.ArgsString(args, "path")
	maxChars := tool.ArgsInt(args, "max_chars", p.maxReadChars)
	abs, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, notFound("file", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file")
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	// Read a margin past the limit so truncation can find a word boundary.
	data, err := io.ReadAll(io.LimitReader(f, int64(maxChars+1024)*4))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text := strings.ToValidUTF8(string(data), "�")
	return map[string]any{"path": rel, "content": truncateText(text, maxChars)}, nil
}

func (p *Provider) writeFile(args map[string]any) (any, error) {
	rel := tool.ArgsString(args, "path")
	content := tool.ArgsString(args, "content")
	maxBytes := int64(tool.ArgsInt(args, "max_bytes", int(p.maxWriteBytes)))
	abs, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > maxBytes {
		return nil, fmt.Errorf("content too large (>%d bytes)", maxBytes)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}
	if err := atomicWriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	p.logger.Debug("file written", "path", rel, "bytes", len(content))
	return map[string]any{"status": "success", "path": rel, "bytes_written": len(content)}, nil
}

func (p *Provider) appendFile(args map[string]any) (any, error) {
	rel := tool.ArgsString(args, "path")
	content := tool.ArgsString(args, "content")
	maxBytes := int64(tool.ArgsInt(args, "max_append_bytes", int(p.maxWriteBytes)))
	abs, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > maxBytes {
		return nil, fmt.Errorf("append content too large (>%d bytes)", maxBytes)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return nil, fmt.Errorf("append: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close: %w", err)
	}
	return map[string]any{"status": "success", "path": rel, "bytes_appended": len(content)}, nil
}

type dirItem struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  *int64 `json:"size"`
}

func (p *Provider) listDir(args map[string]any) (any, error) {
	rel := tool.ArgsString(args, "path")
	abs, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, notFound("directory", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory")
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("list dir: %w", err)
	}

	items := make([]dirItem, 0, len(entries))
	for _, e := range entries {
		item := dirItem{Name: e.Name(), IsDir: e.IsDir()}
		if e.Type().IsRegular() {
			if fi, err := e.Info(); err == nil {
				size := fi.Size()
				item.Size = &size
			}
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return map[string]any{"path": rel, "items": items}, nil
}

func (p *Provider) makeDirectory(args map[string]any) (any, error) {
	rel := tool.ArgsString(args, "path")
	abs, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("make directory: %w", err)
	}
	return map[string]any{"status": "success", "path": rel}, nil
}

func (p *Provider) fileExists(args map[string]any) (any, error) {
	rel := tool.ArgsString(args, "path")
	abs, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	_, err = os.Stat(abs)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat: %w", err)
	}
	return map[string]any{"path": rel, "exists": err == nil}, nil
}

func (p *Provider) delete(args map[string]any) (any, error) {
	rel := tool.ArgsString(args, "path")
	recursive := tool.ArgsBool(args, "recursive", false)
	abs, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	if abs == p.root {
		return nil, fmt.Errorf("refusing to delete the sandbox root")
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, notFound("path", err)
	}
	switch {
	case info.IsDir() && recursive:
		err = os.RemoveAll(abs)
	case info.IsDir():
		// os.Remove only removes empty directories.
		if err = os.Remove(abs); err != nil {
			return nil, fmt.Errorf("directory not empty; use recursive=true to remove")
		}
	default:
		err = os.Remove(abs)
	}
	if err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}
	p.logger.Debug("path deleted", "path", rel, "recursive", recursive)
	return map[string]any{"status": "deleted", "path": rel}, nil
}

func (p *Provider) move(args map[string]any) (any, error) {
	srcRel, dstRel := tool.ArgsString(args, "src"), tool.ArgsString(args, "dst")
	src, dst, err := p.resolvePair(srcRel, dstRel)
	if err != nil {
		return nil, err
	}
	if _, err := os.Lstat(src); err != nil {
		return nil, notFound("source", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return nil, fmt.Errorf("move: %w", err)
	}
	return map[string]any{"status": "moved", "src": srcRel, "dst": dstRel}, nil
}

func (p *Provider) copy(args map[string]any) (any, error) {
	srcRel, dstRel := tool.ArgsString(args, "src"), tool.ArgsString(args, "dst")
	src, dst, err := p.resolvePair(srcRel, dstRel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, notFound("source", err)
	}
	if info.IsDir() {
		if _, err := os.Lstat(dst); err == nil {
			return nil, fmt.Errorf("destination already exists for directory copy")
		}
		if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
			return nil, fmt.Errorf("copy directory: %w", err)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("create parent directory: %w", err)
		}
		if err := copyFile(src, dst, info.Mode().Perm()); err != nil {
			return nil, fmt.Errorf("copy file: %w", err)
		}
	}
	return map[string]any{"status": "copied", "src": srcRel, "dst": dstRel}, nil
}

func (p *Provider) getMetadata(args map[string]any) (any, error) {
	rel := tool.ArgsString(args, "path")
	abs, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, notFound("path", err)
	}
	return map[string]any{
		"path":          rel,
		"is_dir":        info.IsDir(),
		"size_bytes":    info.Size(),
		"mode":          info.Mode().String(),
		"modified_time": info.ModTime().Unix(),
	}, nil
}

func (p *Provider) searchFiles(args map[string]any) (any, error) {
	rel := tool.ArgsString(args, "path")
	pattern := tool.ArgsString(args, "pattern")
	if pattern == "" {
		pattern = "*"
	}
	maxResults := tool.ArgsInt(args, "max_results", defaultMaxResults)
	base, err := p.resolve(rel)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("base directory not found")
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}

	found, err := doublestar.Glob(os.DirFS(base), pattern, doublestar.WithFailOnIOErrors())
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	sort.Strings(found)

	matches := make([]string, 0, min(len(found), maxResults))
	for _, m := range found {
		if len(matches) >= maxResults {
			break
		}
		if r, ok := p.relative(filepath.Join(base, filepath.FromSlash(m))); ok {
			matches = append(matches, path.Clean(r))
		}
	}
	return map[string]any{"base": rel, "pattern": pattern, "matches": matches, "count": len(matches)}, nil
}

func (p *Provider) resolvePair(srcRel, dstRel string) (string, string, error) {
	src, err := p.resolve(srcRel)
	if err != nil {
		return "", "", fmt.Errorf("src: %w", err)
	}
	dst, err := p.resolve(dstRel)
	if err != nil {
		return "", "", fmt.Errorf("dst: %w", err)
	}
	return src, dst, nil
}

func notFound(what string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s not found", what)
	}
	return fmt.Errorf("stat %s: %w", what, err)
}

// atomicWriteFile writes through a temp file in the target directory and
// renames it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp_write_*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	writeErr := func() error {
		if err := tmp.Chmod(perm); err != nil {
			return err
		}
		if _, err := tmp.Write(data); err != nil {
			return err
		}
		if err := tmp.Sync(); err != nil {
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		return os.Rename(tmpName, path)
	}()
	if writeErr != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return writeErr
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
