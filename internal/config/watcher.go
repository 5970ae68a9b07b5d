package config

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// pollInterval is the mtime-poll cadence. The simulator's config file is
// edited by hand between sessions, not machine-generated continuously, so
// a 1-second poll is simpler and just as responsive as an inotify watch
// would feel in practice.
const pollInterval = time.Second

// Watcher polls a config file's mtime and atomically swaps in a freshly
// parsed Config whenever it changes. Reads through Get are always
// lock-protected but cheap: a pointer copy, never a deep copy.
type Watcher struct {
	Logger zerolog.Logger

	path string

	mu      sync.Mutex
	current *Config
	modTime time.Time

	onReload func(old, new *Config)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher loads path once synchronously and returns a Watcher primed
// with that initial Config. onReload, if non-nil, is invoked from the
// watcher goroutine every time the file changes and reparses cleanly.
func NewWatcher(path string, logger zerolog.Logger, onReload func(old, new *Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		Logger:   logger,
		path:     path,
		current:  cfg,
		modTime:  info.ModTime(),
		onReload: onReload,
	}, nil
}

// Get returns the current Config. The returned pointer is never mutated
// in place; a reload replaces it wholesale.
func (w *Watcher) Get() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start launches the polling goroutine. Stop must be called to release it.
func (w *Watcher) Start() {
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.loop()
}

// Stop signals the polling goroutine and waits for it to exit.
func (w *Watcher) Stop() {
	if w.stopCh == nil {
		return
	}
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkAndReload()
		}
	}
}

func (w *Watcher) checkAndReload() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.Logger.Warn().Msgf("config: failed to stat %s: %v", w.path, err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.modTime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	newCfg, err := Load(w.path)
	if err != nil {
		w.Logger.Warn().Msgf("config: reload of %s failed, keeping previous config: %v", w.path, err)
		return
	}

	w.mu.Lock()
	oldCfg := w.current
	w.current = newCfg
	w.modTime = info.ModTime()
	w.mu.Unlock()

	w.Logger.Info().Msgf("config: reloaded %s", w.path)
	if w.onReload != nil {
		w.onReload(oldCfg, newCfg)
	}
}
