package maintenance

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/database"
)

func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return db, dbPath
}

func newService(db *sql.DB, path string) *Service {
	return NewService(db, path, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStatus(t *testing.T) {
	db, dbPath := setupTestDB(t)
	ctx := context.Background()
	store := catalog.NewStore(db)

	p := &catalog.Performer{Name: "Chavela Vargas"}
	if err := store.CreatePerformer(ctx, p); err != nil {
		t.Fatalf("CreatePerformer: %v", err)
	}
	tr := &catalog.Track{
		Kind: catalog.KindDisc, Title: "Macorina", PerformerID: p.ID,
		CarrierRef: "cd-1", Position: 1,
	}
	if err := store.CreateTrack(ctx, tr); err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}

	st, err := newService(db, dbPath).Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.SchemaVersion != 1 {
		t.Errorf("SchemaVersion = %d, want 1", st.SchemaVersion)
	}
	if st.DBFileSize <= 0 {
		t.Error("expected positive DB file size")
	}
	if st.PageSize <= 0 || st.PageCount <= 0 {
		t.Errorf("pages = %d x %d", st.PageCount, st.PageSize)
	}
	if st.Performers != 1 {
		t.Errorf("Performers = %d, want 1", st.Performers)
	}
	if st.DiscTracks != 1 || st.TapeTracks != 0 {
		t.Errorf("tracks = %d tape, %d disc", st.TapeTracks, st.DiscTracks)
	}
}

func TestOptimize(t *testing.T) {
	db, dbPath := setupTestDB(t)
	if err := newService(db, dbPath).Optimize(context.Background()); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
}

func TestVacuum(t *testing.T) {
	db, dbPath := setupTestDB(t)
	if err := newService(db, dbPath).Vacuum(context.Background()); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
}

func TestCheck_Healthy(t *testing.T) {
	db, dbPath := setupTestDB(t)
	res, err := newService(db, dbPath).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.OK() {
		t.Errorf("Check = %+v, want no problems", res)
	}
}

func TestCheck_DanglingReference(t *testing.T) {
	db, dbPath := setupTestDB(t)
	ctx := context.Background()

	// Foreign keys are enforced per connection; switch them off to plant
	// a dangling reference.
	for _, stmt := range []string{
		"PRAGMA foreign_keys = OFF",
		`INSERT INTO albums (id, name, performer_id) VALUES ('a1', 'Huérfano', 'ghost')`,
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}

	res, err := newService(db, dbPath).Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(res.ForeignKeys) != 1 {
		t.Fatalf("ForeignKeys = %v, want one problem", res.ForeignKeys)
	}
	if res.OK() {
		t.Error("OK() = true, want false")
	}
}
