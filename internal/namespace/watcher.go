package namespace

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads the registry whenever the file at path changes. It watches
// the parent directory so editors that replace the file are picked up.
// An invalid or empty file keeps the previous registry. Watch returns when
// ctx is done.
func Watch(ctx context.Context, path string, reg *Registry, onReload func(map[string][]string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create namespace watcher: %w", err)
	}

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					reload(target, reg, onReload)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Namespace watcher error", "error", err)
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				slog.Info("Namespace watcher stopped", "reason", ctx.Err())
				return
			}
		}
	}()

	slog.Info("Watching namespace config", "path", target)
	return nil
}

func reload(path string, reg *Registry, onReload func(map[string][]string)) {
	cfg, err := LoadFile(path)
	if err != nil {
		slog.Error("Namespace config reload failed, keeping previous registry", "path", path, "error", err)
		return
	}
	if len(cfg) == 0 {
		slog.Warn("Namespace config reload has no entries, keeping previous registry", "path", path)
		return
	}
	reg.Replace(cfg)
	slog.Info("Namespace registry reloaded", "path", path, "agents", len(cfg))
	if onReload != nil {
		onReload(cfg)
	}
}
