package books

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports book-list snapshots whenever the books directory changes
// and on a fixed poll interval, so a missed filesystem event is caught by
// the next tick.
type Watcher struct {
	dir      *Dir
	poll     time.Duration
	onChange func(ctx context.Context, names []string)
	logger   *slog.Logger
}

// NewWatcher creates a watcher. poll <= 0 disables polling.
func NewWatcher(dir *Dir, poll time.Duration, onChange func(ctx context.Context, names []string), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, poll: poll, onChange: onChange, logger: logger}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir.Path()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir.Path(), err)
	}

	var tick <-chan time.Time
	if w.poll > 0 {
		ticker := time.NewTicker(w.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.emit(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !IsBookFile(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.logger.Debug("book directory changed", "op", ev.Op.String(), "path", ev.Name)
				w.emit(ctx)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("book watcher error", "error", err)
		case <-tick:
			w.emit(ctx)
		}
	}
}

func (w *Watcher) emit(ctx context.Context) {
	names, err := w.dir.List(ctx)
	if err != nil {
		w.logger.Warn("failed to list books", "error", err)
		return
	}
	w.onChange(ctx, names)
}
