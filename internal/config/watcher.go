package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"authcore/pkg/logging"
)

// DefaultDebounceInterval is the time to wait after the last file change
// before triggering a reload. Editors often produce bursts of write and
// rename events for a single save.
const DefaultDebounceInterval = 500 * time.Millisecond

// PolicyWatcherConfig holds configuration for the policy watcher.
type PolicyWatcherConfig struct {
	// ConfigPath is the directory containing config.yaml.
	ConfigPath string

	// OnReload is called with the freshly parsed policy list after the
	// configuration file changes and parses cleanly.
	OnReload func([]PolicyConfig)
}

// PolicyWatcher monitors the configuration file and hot-reloads the policy
// list when it changes. Only policies are reloaded; structural settings
// require a restart.
type PolicyWatcher struct {
	mu sync.Mutex

	config    PolicyWatcherConfig
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewPolicyWatcher creates a new policy watcher.
func NewPolicyWatcher(config PolicyWatcherConfig) *PolicyWatcher {
	return &PolicyWatcher{config: config}
}

// Start begins watching the configuration directory for changes.
func (w *PolicyWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(w.config.ConfigPath); err != nil {
		watcher.Close()
		return err
	}

	w.fsWatcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	go w.watchLoop(watcher.Events, watcher.Errors, w.stopCh)

	logging.Info("PolicyWatcher", "Watching %s for policy changes", w.config.ConfigPath)
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *PolicyWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false

	close(w.stopCh)
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()
}

func (w *PolicyWatcher) watchLoop(events <-chan fsnotify.Event, errors <-chan error, stopCh <-chan struct{}) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-errors:
			if !ok {
				return
			}
			logging.Warn("PolicyWatcher", "Watch error: %v", err)

		case <-stopCh:
			return
		}
	}
}

// scheduleReload debounces the reload so a burst of editor events produces
// a single policy swap.
func (w *PolicyWatcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(DefaultDebounceInterval, w.reload)
}

func (w *PolicyWatcher) reload() {
	policies, err := LoadPolicies(w.config.ConfigPath)
	if err != nil {
		logging.Warn("PolicyWatcher", "Policy reload rejected, keeping previous set: %v", err)
		return
	}

	logging.Info("PolicyWatcher", "Reloaded %d policies from %s", len(policies), w.config.ConfigPath)
	if w.config.OnReload != nil {
		w.config.OnReload(policies)
	}
}
