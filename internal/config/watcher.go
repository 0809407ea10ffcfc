package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the configuration file on change and hands validated
// snapshots to subscribers. A reload that fails validation is logged and
// dropped; the previous snapshot stays in effect, so a bad edit can never
// push an invalid threshold ordering into a running engine.
type Watcher struct {
	path     string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu          sync.RWMutex
	current     *Config
	subscribers []func(*Config)

	done chan struct{}
}

// NewWatcher creates a watcher over the given configuration file.
func NewWatcher(path string, initial *Config, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files rather than write in place.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     path,
		logger:   logger.Named("config_watcher"),
		watcher:  fsw,
		debounce: 250 * time.Millisecond,
		current:  initial,
		done:     make(chan struct{}),
	}, nil
}

// Current returns the latest valid configuration snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers a callback invoked with each valid reload.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Start begins watching. Returns immediately; reloads happen in the
// background until Stop is called.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop ends watching and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Debounce bursts of write events from editors.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("ignoring invalid configuration reload",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	w.current = cfg
	subs := make([]func(*Config), len(w.subscribers))
	copy(subs, w.subscribers)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded",
		zap.Float64("duplicateThreshold", cfg.Routing.DuplicateThreshold),
		zap.Float64("highConfidenceThreshold", cfg.Routing.HighConfidenceThreshold),
		zap.Float64("lowConfidenceThreshold", cfg.Routing.LowConfidenceThreshold),
	)

	for _, fn := range subs {
		fn(cfg)
	}
}
