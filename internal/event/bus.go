// Package event carries reconciliation notifications, such as ambiguous
// title groups, to whoever presents them.
package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	GroupAmbiguous    Type = "group.ambiguous"
	GroupClassified   Type = "group.classified"
	PerformersUnified Type = "performers.unified"
	PerformerDeleted  Type = "performer.deleted"
	AlbumsSynced      Type = "albums.synced"
	ArtInvalidated    Type = "art.invalidated"
)

// Event represents something that happened in the catalog.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler is a function that processes an event.
type Handler func(Event)

type subscription struct {
	id uint64
	h  Handler
}

// Bus is an in-process event bus backed by a buffered channel. Handlers run
// on the goroutine that called Start, one event at a time.
type Bus struct {
	ch      chan Event
	mu      sync.RWMutex
	subs    map[Type][]subscription
	all     []subscription
	nextID  uint64
	dropped atomic.Uint64
	logger  *slog.Logger
	done    chan struct{}
	stopped bool
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:     make(chan Event, bufSize),
		subs:   make(map[Type][]subscription),
		logger: logger.With(slog.String("component", "event-bus")),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a handler for one event type. The returned function
// removes it again.
func (b *Bus) Subscribe(t Type, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, h: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[t] = without(b.subs[t], id)
	}
}

// SubscribeAll registers a handler that sees every event.
func (b *Bus) SubscribeAll(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, h: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = without(b.all, id)
	}
}

func without(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Publish queues an event without blocking. The event is dropped when the
// buffer is full or the bus has been stopped. A nil bus discards it.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	// The read lock is held through the send so Stop cannot close done
	// between the stopped check and the enqueue; anything enqueued here is
	// still drained by Start.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		b.dropped.Add(1)
		b.logger.Debug("event bus stopped, dropping event", slog.String("type", string(e.Type)))
		return
	}

	select {
	case b.ch <- e:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event bus full, dropping event", slog.String("type", string(e.Type)))
	}
}

// Dropped returns how many events were discarded since the bus was created.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Start dispatches queued events until Stop is called, then delivers what is
// still buffered and returns. Run it in its own goroutine.
func (b *Bus) Start() {
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop asks Start to drain the buffer and return. Safe to call twice.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.stopped = true
		close(b.done)
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := make([]subscription, 0, len(b.subs[e.Type])+len(b.all))
	handlers = append(handlers, b.subs[e.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, s := range handlers {
		b.call(s.h, e)
	}
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", slog.String("type", string(e.Type)), slog.Any("panic", r))
		}
	}()
	h(e)
}
