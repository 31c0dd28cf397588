// Package testsupport holds fixtures shared by the reconciliation tests.
package testsupport

import (
	"context"
	"database/sql"
	"testing"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/database"
)

// MustOpenDB opens a migrated in-memory database and registers cleanup.
func MustOpenDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Catalog bundles a test database with a store and seeding helpers.
type Catalog struct {
	t     testing.TB
	DB    *sql.DB
	Store *catalog.Store
	next  map[string]int
}

// NewCatalog opens a fresh catalog for one test.
func NewCatalog(t testing.TB) *Catalog {
	t.Helper()
	db := MustOpenDB(t)
	return &Catalog{t: t, DB: db, Store: catalog.NewStore(db), next: make(map[string]int)}
}

// Performer creates a performer with the given name.
func (c *Catalog) Performer(name string) *catalog.Performer {
	c.t.Helper()
	p := &catalog.Performer{Name: name}
	if err := c.Store.CreatePerformer(context.Background(), p); err != nil {
		c.t.Fatalf("creating performer %q: %v", name, err)
	}
	return p
}

// Album creates an album owned by performer.
func (c *Catalog) Album(name string, owner *catalog.Performer, art []byte) *catalog.Album {
	c.t.Helper()
	a := &catalog.Album{Name: name, PerformerID: owner.ID, Art: art}
	if err := c.Store.CreateAlbum(context.Background(), a); err != nil {
		c.t.Fatalf("creating album %q: %v", name, err)
	}
	return a
}

// TrackOption customizes a seeded track.
type TrackOption func(*catalog.Track)

// OnCarrier places the track on the given carrier; positions auto-increment.
func OnCarrier(ref string) TrackOption {
	return func(t *catalog.Track) { t.CarrierRef = ref }
}

// WithAlbum sets the direct album of the track.
func WithAlbum(a *catalog.Album) TrackOption {
	return func(t *catalog.Track) { t.AlbumID = a.ID }
}

// AsOriginal flags the track as the canonical performance.
func AsOriginal() TrackOption {
	return func(t *catalog.Track) { t.IsOriginal = true }
}

// AsCoverOf flags the track as a cover of performerName.
func AsCoverOf(performerName string) TrackOption {
	return func(t *catalog.Track) {
		t.IsCover = true
		t.OriginalPerformerName = performerName
	}
}

// WithArt attaches uploaded art bytes to the track.
func WithArt(art []byte) TrackOption {
	return func(t *catalog.Track) { t.Art = art }
}

// WithAsset links the track to an audio asset path.
func WithAsset(path string) TrackOption {
	return func(t *catalog.Track) { t.AssetPath = path }
}

// WithLink sets the external link of the track.
func WithLink(link string) TrackOption {
	return func(t *catalog.Track) { t.ExternalLink = link }
}

// Track creates a track on a carrier of the given kind.
func (c *Catalog) Track(kind catalog.CarrierKind, title string, performer *catalog.Performer, opts ...TrackOption) *catalog.Track {
	c.t.Helper()
	t := &catalog.Track{
		Kind:        kind,
		Title:       title,
		PerformerID: performer.ID,
		CarrierRef:  string(kind) + "-1",
	}
	for _, opt := range opts {
		opt(t)
	}
	c.next[t.CarrierRef]++
	t.Position = c.next[t.CarrierRef]

	if err := c.Store.CreateTrack(context.Background(), t); err != nil {
		c.t.Fatalf("creating track %q: %v", title, err)
	}
	t.PerformerName = performer.Name
	return t
}

// Reload fetches the current state of a track.
func (c *Catalog) Reload(t *catalog.Track) *catalog.Track {
	c.t.Helper()
	got, err := c.Store.GetTrack(context.Background(), t.Kind, t.ID)
	if err != nil {
		c.t.Fatalf("reloading track %s: %v", t.ID, err)
	}
	if got == nil {
		c.t.Fatalf("track %s vanished", t.ID)
	}
	return got
}
