package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads configuration when the config file changes on disk.
// Only the subscriber decides which settings are safe to apply at runtime;
// the watcher just delivers a freshly validated Config.
type Watcher struct {
	path   string
	logger *zap.Logger
	onLoad func(*Config)
	fs     *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given config file. onLoad is invoked
// with each successfully reloaded configuration.
func NewWatcher(path string, logger *zap.Logger, onLoad func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if onLoad == nil {
		return nil, fmt.Errorf("onLoad callback is required")
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory rather than the file: editors replace files on save.
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch config dir: %w", err)
	}

	return &Watcher{
		path:   path,
		logger: logger,
		onLoad: onLoad,
		fs:     fs,
	}, nil
}

// Run blocks and dispatches reloads until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload failed, keeping previous config",
					zap.String("path", w.path),
					zap.Error(err),
				)
				continue
			}
			w.logger.Info("config reloaded", zap.String("path", w.path))
			w.onLoad(cfg)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
