package selector

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchRules reloads the rules file into s whenever it changes, until ctx
// is done. A file that fails to load keeps the previous rules in place.
// The parent directory is watched so editors that replace the file by
// rename are picked up.
func (s *Selector) WatchRules(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("rules path: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				rules, err := LoadRules(abs)
				if err != nil {
					s.logger.Warn("rules reload failed, keeping previous rules", "path", abs, "err", err)
					continue
				}
				s.SetRules(rules)
				s.logger.Info("heuristic rules reloaded", "path", abs, "rules", len(rules))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("rules watcher error", "err", err)
			}
		}
	}()
	return nil
}
