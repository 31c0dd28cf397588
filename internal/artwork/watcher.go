package artwork

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/sydlexius/cancionero/internal/event"
)

// Watcher invalidates cached pictures when their asset files change on
// disk. The cache never does this on its own; a Watcher is only started
// when configured.
type Watcher struct {
	cache  *Cache
	bus    *event.Bus
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	// notify caps ArtInvalidated events so a retagging run cannot flood
	// the bus. Invalidation itself is never throttled.
	notify     *rate.Limiter
	suppressed int
}

// Default event budget: a burst of 20, then 5 events per second.
const (
	notifyRate  rate.Limit = 5
	notifyBurst            = 20
)

// NewWatcher creates a watcher feeding cache. bus may be nil.
func NewWatcher(cache *Cache, bus *event.Bus, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fs watcher: %w", err)
	}
	return &Watcher{
		cache:  cache,
		bus:    bus,
		logger: logger.With("component", "art-watcher"),
		fsw:    fsw,
		notify: rate.NewLimiter(notifyRate, notifyBurst),
	}, nil
}

// Add starts watching the asset files directly inside dir.
func (w *Watcher) Add(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.logger.Info("watching asset directory", slog.String("dir", dir))
	return nil
}

// Run processes filesystem events until ctx is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fs watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.cache.Invalidate(ev.Name)
	w.logger.Debug("embedded art invalidated", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
	if !w.notify.Allow() {
		w.suppressed++
		return
	}
	data := map[string]any{"path": ev.Name}
	if w.suppressed > 0 {
		// Paths of suppressed events are lost; subscribers only learn how
		// many there were.
		data["suppressed"] = w.suppressed
		w.suppressed = 0
	}
	w.bus.Publish(event.Event{Type: event.ArtInvalidated, Data: data})
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
