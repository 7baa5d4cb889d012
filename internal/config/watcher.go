package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deskpilot/deskpilot/internal/event"
	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a Source whenever one of its config files changes and
// publishes config.updated on the bus.
type Watcher struct {
	watcher *fsnotify.Watcher
	source  *Source
	bus     *event.Bus
	files   map[string]bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher watches the directories holding source's config files. bus
// may be nil.
func NewWatcher(source *Source, bus *event.Bus) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, f := range Files(source.Dir()) {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	// Watch directories, not files, so atomic-rename saves are seen.
	watched := 0
	for dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.Add(dir); err != nil {
			logging.Warn().Err(err).Str("dir", dir).Msg("config watcher: cannot watch directory")
			continue
		}
		watched++
	}
	logging.Debug().Int("dirs", watched).Msg("config watcher initialized")

	return &Watcher{
		watcher: w,
		source:  source,
		bus:     bus,
		files:   files,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var pending <-chan time.Time
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !w.files[abs] {
				continue
			}
			pending = time.After(reloadDebounce)
		case <-pending:
			pending = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	before := w.source.Model()
	cfg, err := w.source.Reload()
	if err != nil {
		logging.Warn().Err(err).Msg("config reload failed, keeping previous configuration")
		return
	}

	logging.Info().Str("model", cfg.Model).Str("previous", before).Msg("configuration reloaded")
	if w.bus != nil {
		w.bus.PublishSync(event.Event{
			Type: event.ConfigUpdated,
			Data: event.ConfigUpdatedData{Model: cfg.Model},
		})
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
