package dashboard

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces bursts of store writes into one refresh
const DefaultDebounce = 500 * time.Millisecond

// Watcher refreshes the dashboard whenever the store file changes
type Watcher struct {
	gen       *Generator
	storePath string
	debounce  time.Duration
	log       *zap.SugaredLogger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the store at storePath
func NewWatcher(gen *Generator, storePath string, log *zap.SugaredLogger) *Watcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Watcher{gen: gen, storePath: storePath, debounce: DefaultDebounce, log: log}
}

// Run refreshes once, then on every store change until ctx is cancelled.
// The directory is watched because the store is replaced by rename.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating file watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(w.storePath)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "watching %s", dir)
	}

	w.refresh(ctx)
	defer w.stopTimer()

	target := filepath.Base(w.storePath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.refresh(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := w.gen.Refresh(ctx); err != nil {
		w.log.Warnw("Dashboard refresh failed", "error", err)
		return
	}
	w.log.Infow("Dashboard refreshed", "path", w.gen.Path())
}
