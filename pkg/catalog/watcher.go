package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for file events to settle
// before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a catalog when files in its directory change. Bursts of
// events, such as an editor's write-rename-chmod sequence, collapse into one
// reload.
type Watcher struct {
	catalog  *Catalog
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	timer   *time.Timer
	running bool
}

// NewWatcher creates a watcher for c. A debounce of zero uses DefaultDebounce.
func NewWatcher(c *Catalog, debounce time.Duration, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{catalog: c, debounce: debounce, logger: logger}
}

// Watch blocks until ctx is cancelled, reloading the catalog after each burst
// of relevant file events.
func (w *Watcher) Watch(ctx context.Context) error {
	dir := w.catalog.Dir()
	if dir == "" {
		return fmt.Errorf("catalog has no directory to watch")
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info("catalog watcher started",
		zap.String("dir", dir),
		zap.Duration("debounce", w.debounce),
	)

	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.running = false
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("catalog watcher stopped")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("catalog file event",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			w.schedule()

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("catalog watcher error", zap.Error(err))
		}
	}
}

// schedule (re)arms the debounce timer
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		// Reload logs its own failures and keeps the previous set
		_ = w.catalog.Reload()
	})
}

func relevant(event fsnotify.Event) bool {
	if !isCatalogFile(filepath.Base(event.Name)) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}
