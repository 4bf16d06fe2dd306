// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// Watch reloads the config file whenever it changes and hands the result to
// onChange. Reload errors are logged and the previous config stays in effect.
// Watch blocks until ctx is done.
func (l *Loader) Watch(ctx context.Context, onChange func(*AppConfig)) error {
	if l.path == "" {
		<-ctx.Done()
		return nil
	}
	logger := configLogger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	// Editors replace files by rename, so watch the directory.
	dir := filepath.Dir(filepath.Clean(l.path))
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	target := filepath.Base(l.path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				debounce = time.After(watchDebounce)
			}
		case <-debounce:
			debounce = nil
			cfg, err := l.Load()
			if err != nil {
				logger.Warn().Err(err).Str("path", l.path).Msg("config reload failed, keeping previous config")
				continue
			}
			logger.Info().Str("path", l.path).Msg("config reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}
