package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the active config file and invokes onChange with a
// freshly reloaded Config whenever it changes. The prompt override
// directory is not watched. Reload failures are logged and otherwise
// ignored — the process keeps running on the last good config.
type Watcher struct {
	path      string
	loader    *Loader
	fsw       *fsnotify.Watcher
	logger    *slog.Logger
	onChange  func(*Config)
	debounce  time.Duration
}

// NewWatcher creates a Watcher for the config file at path. The file itself
// need not exist yet, but its parent directory must; Start returns an
// error otherwise.
func NewWatcher(path string, loader *Loader, logger *slog.Logger, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		loader:   loader,
		fsw:      fsw,
		logger:   logger,
		onChange: onChange,
		debounce: 300 * time.Millisecond,
	}, nil
}

// Start begins watching. It watches the parent directory rather than the
// file itself so that editors which replace-on-save (unlink+create) are
// still observed.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	go w.run(ctx)
	w.logger.Info("config watcher started", "path", w.path)
	return nil
}

// Stop releases the underlying filesystem watch.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	var pending bool
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			pending = true
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			cfg, err := w.loader.Load()
			if err != nil {
				w.logger.Warn("config reload failed, keeping previous config", "error", err)
				continue
			}
			w.logger.Info("config reloaded", "path", w.path)
			w.onChange(cfg)
		}
	}
}
