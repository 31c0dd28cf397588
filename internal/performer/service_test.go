package performer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/event"
	"github.com/sydlexius/cancionero/internal/testsupport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(c *testsupport.Catalog) *Service {
	return NewService(c.DB, c.Store, nil, testLogger())
}

func TestRename_CollisionUnifiesPerformers(t *testing.T) {
	c := testsupport.NewCatalog(t)
	accented := c.Performer("René Pérez")
	plain := c.Performer("Rene Perez")
	c.Track(catalog.KindDisc, "Atrévete", accented)
	c.Track(catalog.KindTape, "Atrevete", accented)
	c.Track(catalog.KindDisc, "Latinoamérica", plain, testsupport.OnCarrier("disc-2"))

	s := newService(c)
	ctx := context.Background()

	survivor, err := s.Rename(ctx, plain.ID, "René Pérez")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if survivor.ID != accented.ID {
		t.Errorf("survivor = %s, want %s", survivor.ID, accented.ID)
	}

	gone, err := s.GetByID(ctx, plain.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if gone != nil {
		t.Error("merged-away performer still resolves")
	}

	n, err := s.TrackCount(ctx, accented.ID)
	if err != nil {
		t.Fatalf("TrackCount: %v", err)
	}
	if n != 3 {
		t.Errorf("survivor track count = %d, want 3", n)
	}
}

func TestRename_PlainUpdate(t *testing.T) {
	c := testsupport.NewCatalog(t)
	p := c.Performer("Rafael")
	c.Performer("Raphael")

	got, err := newService(c).Rename(context.Background(), p.ID, "  Raffaele ")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got.ID != p.ID || got.Name != "Raffaele" {
		t.Errorf("got %s %q, want %s %q", got.ID, got.Name, p.ID, "Raffaele")
	}
}

func TestRename_Errors(t *testing.T) {
	c := testsupport.NewCatalog(t)
	p := c.Performer("Sole")
	s := newService(c)
	ctx := context.Background()

	if _, err := s.Rename(ctx, p.ID, "   "); !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Errorf("blank name err = %v, want ErrInvalidArgument", err)
	}
	if _, err := s.Rename(ctx, "ghost", "Anyone"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("missing performer err = %v, want ErrNotFound", err)
	}
	if _, err := s.Rename(ctx, catalog.UnknownPerformerID, "Someone"); !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Errorf("renaming sentinel err = %v, want ErrInvalidArgument", err)
	}
}

func TestUnify_MovesEverything(t *testing.T) {
	c := testsupport.NewCatalog(t)
	src := c.Performer("Los Bravos")
	dst := c.Performer("Los Bravos (band)")
	singer := c.Performer("Mike Kennedy")
	other := c.Performer("Other Band")
	guest := c.Performer("Guest")

	album := c.Album("Black Is Black", src, nil)
	tape := c.Track(catalog.KindTape, "Black Is Black", src, testsupport.WithAlbum(album))
	disc := c.Track(catalog.KindDisc, "Bring a Little Lovin'", src)
	shared := c.Track(catalog.KindDisc, "I Don't Care", guest, testsupport.OnCarrier("disc-2"))

	s := newService(c)
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	// Credits: both credited on shared, so the copy must not duplicate.
	must(s.AddCredit(ctx, shared.Ref(), src.ID))
	must(s.AddCredit(ctx, shared.Ref(), dst.ID))
	// Memberships in both directions.
	must(s.AddMember(ctx, src.ID, singer.ID))
	must(s.AddMember(ctx, dst.ID, singer.ID))
	must(s.AddMember(ctx, other.ID, src.ID))
	// Genres overlap on one.
	must(s.AddGenre(ctx, src.ID, "Beat"))
	must(s.AddGenre(ctx, src.ID, "pop"))
	must(s.AddGenre(ctx, dst.ID, "pop"))

	res, err := s.Unify(ctx, src.ID, dst.ID)
	if err != nil {
		t.Fatalf("Unify: %v", err)
	}
	if res.Tracks != 2 || res.Albums != 1 {
		t.Errorf("result = %+v, want 2 tracks and 1 album", res)
	}

	for _, tr := range []*catalog.Track{tape, disc} {
		if got := c.Reload(tr).PerformerID; got != dst.ID {
			t.Errorf("%s track performer = %s, want %s", tr.Kind, got, dst.ID)
		}
	}
	a, err := c.Store.GetAlbum(ctx, album.ID)
	if err != nil || a == nil {
		t.Fatalf("GetAlbum: %v, %v", a, err)
	}
	if a.PerformerID != dst.ID {
		t.Errorf("album owner = %s, want %s", a.PerformerID, dst.ID)
	}

	credits, _ := s.Credits(ctx, shared.Ref())
	if !slices.Equal(credits, sortedIDs(dst.ID)) {
		t.Errorf("credits = %v, want only target", credits)
	}
	members, _ := s.Members(ctx, dst.ID)
	if !slices.Equal(members, sortedIDs(singer.ID)) {
		t.Errorf("members = %v, want singer once", members)
	}
	bands, _ := s.Bands(ctx, dst.ID)
	if !slices.Equal(bands, sortedIDs(other.ID)) {
		t.Errorf("bands = %v, want other band", bands)
	}
	genres, _ := s.Genres(ctx, dst.ID)
	if !slices.Equal(genres, []string{"beat", "pop"}) {
		t.Errorf("genres = %v, want [beat pop]", genres)
	}

	if p, _ := s.GetByID(ctx, src.ID); p != nil {
		t.Error("source performer still exists")
	}
	if bands, _ := s.Bands(ctx, src.ID); len(bands) != 0 {
		t.Errorf("source still in bands %v", bands)
	}
}

func TestUnify_BandAbsorbingItsMember(t *testing.T) {
	c := testsupport.NewCatalog(t)
	band := c.Performer("Mecano")
	member := c.Performer("Ana Torroja")
	s := newService(c)
	ctx := context.Background()

	if err := s.AddMember(ctx, band.ID, member.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Unify(ctx, member.ID, band.ID); err != nil {
		t.Fatalf("Unify: %v", err)
	}
	members, _ := s.Members(ctx, band.ID)
	if len(members) != 0 {
		t.Errorf("band became its own member: %v", members)
	}
}

func TestUnify_Errors(t *testing.T) {
	c := testsupport.NewCatalog(t)
	a := c.Performer("Alpha")
	tr := c.Track(catalog.KindDisc, "Song", a)
	s := newService(c)
	ctx := context.Background()

	tests := []struct {
		name     string
		src, dst string
		want     error
	}{
		{"self", a.ID, a.ID, catalog.ErrInvalidArgument},
		{"missing source", "ghost", a.ID, catalog.ErrNotFound},
		{"missing target", a.ID, "ghost", catalog.ErrNotFound},
		{"sentinel source", catalog.UnknownPerformerID, a.ID, catalog.ErrInvalidArgument},
		{"empty", "", a.ID, catalog.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Unify(ctx, tt.src, tt.dst); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if got := c.Reload(tr).PerformerID; got != a.ID {
		t.Errorf("failed unify moved track to %s", got)
	}
}

func TestUnify_FailedDeleteRollsBackEverything(t *testing.T) {
	c := testsupport.NewCatalog(t)
	src := c.Performer("Los Bravos")
	dst := c.Performer("los bravos")
	band := c.Performer("Supergrupo")
	tape := c.Track(catalog.KindTape, "Black Is Black", src)
	disc := c.Track(catalog.KindDisc, "Black Is Black", src)
	album := c.Album("Black Is Black", src, nil)
	s := newService(c)
	ctx := context.Background()

	if err := s.AddMember(ctx, band.ID, src.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.AddGenre(ctx, src.ID, "Beat"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddCredit(ctx, disc.Ref(), src.ID); err != nil {
		t.Fatal(err)
	}
	// Deleting the source is the last step; everything before it has run.
	if _, err := c.DB.ExecContext(ctx, `CREATE TRIGGER keep_performers BEFORE DELETE ON performers
		BEGIN SELECT RAISE(ABORT, 'delete refused'); END`); err != nil {
		t.Fatalf("creating trigger: %v", err)
	}

	if _, err := s.Unify(ctx, src.ID, dst.ID); !errors.Is(err, catalog.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}

	for _, tr := range []*catalog.Track{tape, disc} {
		if got := c.Reload(tr).PerformerID; got != src.ID {
			t.Errorf("%s track performer = %s, want %s", tr.Kind, got, src.ID)
		}
	}
	a, err := c.Store.GetAlbum(ctx, album.ID)
	if err != nil || a == nil {
		t.Fatalf("GetAlbum: %v, %v", a, err)
	}
	if a.PerformerID != src.ID {
		t.Errorf("album performer = %s, want %s", a.PerformerID, src.ID)
	}
	if bands, _ := s.Bands(ctx, src.ID); !slices.Equal(bands, []string{band.ID}) {
		t.Errorf("source bands = %v, want [%s]", bands, band.ID)
	}
	if genres, _ := s.Genres(ctx, src.ID); !slices.Equal(genres, []string{"beat"}) {
		t.Errorf("source genres = %v, want [beat]", genres)
	}
	if credits, _ := s.Credits(ctx, disc.Ref()); !slices.Equal(credits, []string{src.ID}) {
		t.Errorf("credits = %v, want [%s]", credits, src.ID)
	}
	if genres, _ := s.Genres(ctx, dst.ID); len(genres) != 0 {
		t.Errorf("target genres = %v, want none", genres)
	}
}

func TestUnify_PublishesEvent(t *testing.T) {
	c := testsupport.NewCatalog(t)
	src := c.Performer("Camela")
	dst := c.Performer("camela")

	bus := event.NewBus(testLogger(), 8)
	var mu sync.Mutex
	var got []event.Event
	bus.Subscribe(event.PerformersUnified, func(e event.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	go bus.Start()
	defer bus.Stop()

	s := NewService(c.DB, c.Store, bus, testLogger())
	if _, err := s.Unify(context.Background(), src.ID, dst.ID); err != nil {
		t.Fatalf("Unify: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d events, want 1", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got[0].Data["target_id"] != dst.ID {
		t.Errorf("event target = %v, want %s", got[0].Data["target_id"], dst.ID)
	}
}

func TestDelete_ReleasesTracksToUnknown(t *testing.T) {
	c := testsupport.NewCatalog(t)
	p := c.Performer("Gone")
	album := c.Album("Last", p, nil)
	tr := c.Track(catalog.KindTape, "Farewell", p, testsupport.WithAlbum(album))
	s := newService(c)
	ctx := context.Background()
	if err := s.AddGenre(ctx, p.ID, "rock"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := c.Reload(tr).PerformerID; got != catalog.UnknownPerformerID {
		t.Errorf("track performer = %s, want %s", got, catalog.UnknownPerformerID)
	}
	if got, _ := s.GetByID(ctx, p.ID); got != nil {
		t.Error("deleted performer still resolves")
	}

	if err := s.Delete(ctx, p.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, catalog.UnknownPerformerID); !errors.Is(err, catalog.ErrInvalidArgument) {
		t.Errorf("deleting sentinel err = %v, want ErrInvalidArgument", err)
	}
}

func TestGetByName_IgnoresAccentsAndCase(t *testing.T) {
	c := testsupport.NewCatalog(t)
	p := c.Performer("Ana Belén")
	s := newService(c)

	got, err := s.GetByName(context.Background(), "  ana  belen ")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got == nil || got.ID != p.ID {
		t.Errorf("GetByName = %+v, want %s", got, p.ID)
	}
	if got, _ := s.GetByName(context.Background(), "nobody"); got != nil {
		t.Errorf("GetByName(nobody) = %+v, want nil", got)
	}
}

func sortedIDs(ids ...string) []string {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}
