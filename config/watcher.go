package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quartzgo/logging"
)

// ReloadHandler is called with the newly loaded configuration whenever the
// watched file changes.
type ReloadHandler func(SchedulerConfig) error

// Watcher reloads a SchedulerConfig from disk on file change, debounced,
// grounded on the fsnotify write/create handling in the pack's config
// watcher examples. It reloads only the ambient worker-pool/check-interval
// knobs SchedulerConfig exposes; spec.md's Non-goals exclude hot
// reconfiguration of fire times, so nothing here ever touches a trigger.
type Watcher struct {
	path     string
	handler  ReloadHandler
	logger   logging.Logger
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu         sync.Mutex
	lastReload time.Time
}

// New builds a Watcher for path. debounce of 0 defaults to one second.
func New(path string, handler ReloadHandler, logger logging.Logger, debounce time.Duration) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config: watch path is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("config: reload handler is required")
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	if debounce <= 0 {
		debounce = time.Second
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create file watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	return &Watcher{path: abs, handler: handler, logger: logger, fsw: fsw, debounce: debounce}, nil
}

// Start watches the config file until the stop channel passed in is
// closed, or Stop is called. It runs in its own
// goroutine and returns immediately.
func (w *Watcher) Start(stop <-chan struct{}) error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config: watch directory: %w", err)
	}
	w.logger.Info("config watcher started", "path", w.path)
	go w.loop(stop)
	return nil
}

func (w *Watcher) loop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			w.logger.Debug("config watcher stopped")
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.handleChange()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if time.Since(w.lastReload) < w.debounce {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed", "error", err)
		return
	}
	if err := w.handler(cfg); err != nil {
		w.logger.Error("config reload handler failed", "error", err)
		return
	}
	w.lastReload = time.Now()
	w.logger.Info("config reloaded", "path", w.path)
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}
