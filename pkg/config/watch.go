package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/tracker/pkg/observability"
)

// Watcher reloads the overlay file when it changes on disk
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *observability.Logger
}

// NewWatcher starts watching path. The parent directory is watched so
// editors that replace the file on save are still seen.
func NewWatcher(path string, logger *observability.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return &Watcher{path: filepath.Clean(path), watcher: fw, logger: logger}, nil
}

// Run delivers each successfully reloaded configuration to onChange until
// ctx is done. A file that fails to load or validate is logged and skipped;
// the previous configuration stays in effect.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) {
	defer w.watcher.Close()
	defer observability.RecoverPanic(w.logger, "config watcher")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.WithError(err).WithField("path", w.path).Warn("ignoring invalid config reload")
				continue
			}
			w.logger.WithField("path", w.path).Info("configuration reloaded")
			onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("config watcher error")
		}
	}
}

// Watch reloads the log level whenever the overlay at path changes
func Watch(ctx context.Context, path string, logger *observability.Logger) error {
	w, err := NewWatcher(path, logger)
	if err != nil {
		return err
	}
	go w.Run(ctx, func(cfg *Config) {
		logger.SetLevel(cfg.Observability.Level())
	})
	return nil
}
