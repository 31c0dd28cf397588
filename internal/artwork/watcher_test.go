package artwork

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/sydlexius/cancionero/internal/event"
)

func TestWatcher_InvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("writing asset: %v", err)
	}

	r := &countingReader{data: map[string][]byte{path: {1}}}
	c := NewCache(r, testLogger())
	if _, err := c.Picture(path); err != nil {
		t.Fatalf("Picture: %v", err)
	}

	w, err := NewWatcher(c, nil, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close() //nolint:errcheck
	if err := w.Add(dir); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(path, []byte("v2"), 0o600); err != nil {
		t.Fatalf("rewriting asset: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("cache entry not invalidated after asset write")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_InvalidatesUncleanAssetPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.flac")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("writing asset: %v", err)
	}
	// Stored asset paths need not be spelled the way fsnotify reports them.
	stored := dir + "/./song.flac"

	r := &countingReader{data: map[string][]byte{stored: {1}}}
	c := NewCache(r, testLogger())
	if _, err := c.Picture(stored); err != nil {
		t.Fatalf("Picture: %v", err)
	}

	w, err := NewWatcher(c, nil, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close() //nolint:errcheck
	if err := w.Add(dir); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(path, []byte("v2"), 0o600); err != nil {
		t.Fatalf("rewriting asset: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("cache entry not invalidated after asset write")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_ThrottlesEvents(t *testing.T) {
	bus := event.NewBus(testLogger(), 64)
	var mu sync.Mutex
	var got []event.Event
	bus.Subscribe(event.ArtInvalidated, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	c := NewCache(&countingReader{data: map[string][]byte{}}, testLogger())
	w, err := NewWatcher(c, bus, testLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close() //nolint:errcheck

	// Two events, no refill.
	w.notify = rate.NewLimiter(0, 2)
	for i := range 5 {
		c.items.Set("/music/a.flac", []byte{byte(i)}, 0)
		w.handle(fsnotify.Event{Name: "/music/a.flac", Op: fsnotify.Write})
		if c.Len() != 0 {
			t.Fatalf("write %d did not invalidate the cache", i)
		}
	}
	w.notify = rate.NewLimiter(rate.Inf, 1)
	w.handle(fsnotify.Event{Name: "/music/b.flac", Op: fsnotify.Remove})

	done := make(chan struct{})
	go func() {
		bus.Start()
		close(done)
	}()
	bus.Stop()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("published %d events, want 3", len(got))
	}
	if got[2].Data["path"] != "/music/b.flac" || got[2].Data["suppressed"] != 3 {
		t.Errorf("last event data = %v, want b.flac with 3 suppressed", got[2].Data)
	}
}
