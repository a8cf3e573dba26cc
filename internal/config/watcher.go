package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thornhill6305/zui/internal/logging"
)

var configLog = logging.ForComponent(logging.CompConfig)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads s whenever its file changes until ctx is cancelled.
// onChange, if non-nil, runs after each successful reload. The parent
// directory is watched so editors that replace the file by rename are seen.
func (s *Store) Watch(ctx context.Context, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer w.Close()
		target := filepath.Clean(s.path)
		var debounce *time.Timer
		fire := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return

			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})

			case <-fire:
				cfg, err := s.Reload()
				if err != nil {
					configLog.Warn("config_reload_failed",
						slog.String("path", s.path),
						slog.String("error", err.Error()))
					continue
				}
				configLog.Info("config_reloaded", slog.String("path", s.path))
				if onChange != nil {
					onChange(cfg)
				}

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				configLog.Warn("config_watch_error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}
