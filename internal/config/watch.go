package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors produce on save.
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the config file held by h whenever it changes on disk and
// calls onReload with each loaded Config whose settings differ. The parent
// directory is watched because editors replace files by rename. An
// invalid file is logged and the previous config stays in effect. Watch
// blocks until ctx is cancelled.
func Watch(ctx context.Context, h *Holder, logger *slog.Logger, onReload func(*Config)) error {
	path := h.Path()
	if path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(path), err)
	}

	// Stopped until the first relevant event arms it.
	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != filepath.Clean(path) || ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}

			debounce.Reset(reloadDebounce)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error",
				slog.String("error", watchErr.Error()),
			)

		case <-debounce.C:
			cfg, changed, loadErr := h.Reload()
			if loadErr != nil {
				logger.Warn("config reload failed, keeping previous config",
					slog.String("path", path),
					slog.String("error", loadErr.Error()),
				)

				continue
			}

			if !changed {
				logger.Debug("config file touched, settings unchanged",
					slog.String("path", path),
				)

				continue
			}

			logger.Info("config reloaded",
				slog.String("path", path),
				slog.Uint64("generation", h.Generation()),
			)

			if onReload != nil {
				onReload(cfg)
			}
		}
	}
}
