package dnsmasq

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/pixelpi-co-uk/pixelpi/internal/log"
)

// Watch reports out-of-band edits to the config file until ctx is cancelled.
// The file is shared with operators and other tooling; onChange lets callers
// drop cached state when somebody else rewrites it. The parent directory is
// watched because editors and our own backup-then-write cycle replace the
// file inode.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
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
				if event.Name != s.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				log.Debug("Shared config file changed", "path", s.path, "op", event.Op.String())
				onChange()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("Config file watcher error", "path", s.path, "error", err)
			}
		}
	}()

	return nil
}
