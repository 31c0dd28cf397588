package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/cancionero/internal/database"
)

// trackColumns is the ordered list of columns for track SELECT queries. The
// performer name is joined in so callers never need a second lookup.
const trackColumns = `t.id, t.title, t.performer_id, COALESCE(p.name, ''), t.carrier_ref, t.position,
	t.album_id, t.is_cover, t.is_original, t.original_performer_name,
	t.art, t.asset_path, t.external_link, t.created_at, t.updated_at`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the catalog repository: two track partitions plus the shared
// performer and album tables.
type Store struct {
	db *sql.DB
	q  queryer
	tx *sql.Tx
}

// NewStore creates a catalog store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// InTx runs fn against a store bound to a single transaction. Nested calls
// reuse the outer transaction, so a whole operation commits or rolls back
// as one unit.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&Store{db: s.db, q: tx, tx: tx})
	})
}

// CreatePerformer inserts a new performer.
func (s *Store) CreatePerformer(ctx context.Context, p *Performer) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: performer name is required", ErrInvalidArgument)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO performers (id, name, photo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, nullableBytes(p.Photo), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating performer: %w", err)
	}
	return nil
}

// GetPerformer retrieves a performer by id. Returns nil when absent.
func (s *Store) GetPerformer(ctx context.Context, id string) (*Performer, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, photo, created_at, updated_at FROM performers WHERE id = ?`, id)
	p, err := scanPerformer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting performer by id: %w", err)
	}
	return p, nil
}

// ListPerformers returns every performer ordered by name.
func (s *Store) ListPerformers(ctx context.Context) ([]Performer, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, photo, created_at, updated_at FROM performers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing performers: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var performers []Performer
	for rows.Next() {
		p, err := scanPerformer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning performer: %w", err)
		}
		performers = append(performers, *p)
	}
	return performers, rows.Err()
}

// CreateAlbum inserts a new album.
func (s *Store) CreateAlbum(ctx context.Context, a *Album) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: album name is required", ErrInvalidArgument)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	var year any
	if a.Year > 0 {
		year = a.Year
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO albums (id, name, performer_id, year, art, is_single, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, a.PerformerID, year, nullableBytes(a.Art), boolToInt(a.IsSingle),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating album: %w", err)
	}
	return nil
}

// GetAlbum retrieves an album by id. Returns nil when absent.
func (s *Store) GetAlbum(ctx context.Context, id string) (*Album, error) {
	var a Album
	var year sql.NullInt64
	var isSingle int
	var createdAt, updatedAt string

	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, performer_id, year, art, is_single, created_at, updated_at
		FROM albums WHERE id = ?
	`, id).Scan(&a.ID, &a.Name, &a.PerformerID, &year, &a.Art, &isSingle, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting album by id: %w", err)
	}

	if year.Valid {
		a.Year = int(year.Int64)
	}
	a.IsSingle = isSingle == 1
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// ListAlbums returns every album ordered by name.
func (s *Store) ListAlbums(ctx context.Context) ([]Album, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, performer_id, year, art, is_single, created_at, updated_at
		FROM albums ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing albums: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var albums []Album
	for rows.Next() {
		var a Album
		var year sql.NullInt64
		var isSingle int
		var createdAt, updatedAt string
		if err := rows.Scan(&a.ID, &a.Name, &a.PerformerID, &year, &a.Art, &isSingle, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning album: %w", err)
		}
		if year.Valid {
			a.Year = int(year.Int64)
		}
		a.IsSingle = isSingle == 1
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		albums = append(albums, a)
	}
	return albums, rows.Err()
}

// CreateTrack inserts a track into the partition named by t.Kind. The
// classification flags are normalized so an original never names another
// performer.
func (s *Store) CreateTrack(ctx context.Context, t *Track) error {
	if _, err := ParseKind(string(t.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: track title is required", ErrInvalidArgument)
	}
	if t.PerformerID == "" {
		t.PerformerID = UnknownPerformerID
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.IsCover, t.IsOriginal, t.OriginalPerformerName = t.Classification().flags()

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO `+t.Kind.Table()+` ( `+ //nolint:gosec // G202: table comes from CarrierKind.Table
		`id, title, performer_id, carrier_ref, position, album_id,
			is_cover, is_original, original_performer_name,
			art, asset_path, external_link, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.Title, t.PerformerID, t.CarrierRef, t.Position, nullableString(t.AlbumID),
		boolToInt(t.IsCover), boolToInt(t.IsOriginal), t.OriginalPerformerName,
		nullableBytes(t.Art), t.AssetPath, t.ExternalLink,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating %s track: %w", t.Kind, err)
	}
	return nil
}

// UpdateTrack persists the editable fields of an existing track.
func (s *Store) UpdateTrack(ctx context.Context, t *Track) error {
	if _, err := ParseKind(string(t.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: track title is required", ErrInvalidArgument)
	}
	t.IsCover, t.IsOriginal, t.OriginalPerformerName = t.Classification().flags()
	t.UpdatedAt = time.Now().UTC()

	result, err := s.q.ExecContext(ctx, `
		UPDATE `+t.Kind.Table()+` SET `+ //nolint:gosec // G202: table comes from CarrierKind.Table
		`title = ?, performer_id = ?, carrier_ref = ?, position = ?, album_id = ?,
			is_cover = ?, is_original = ?, original_performer_name = ?,
			art = ?, asset_path = ?, external_link = ?, updated_at = ?
		WHERE id = ?
	`,
		t.Title, t.PerformerID, t.CarrierRef, t.Position, nullableString(t.AlbumID),
		boolToInt(t.IsCover), boolToInt(t.IsOriginal), t.OriginalPerformerName,
		nullableBytes(t.Art), t.AssetPath, t.ExternalLink, t.UpdatedAt.Format(time.RFC3339),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: updating %s track: %w", ErrStorage, t.Kind, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s track %s", ErrNotFound, t.Kind, t.ID)
	}
	return nil
}

// GetTrack retrieves a track from one partition. Returns nil when absent.
func (s *Store) GetTrack(ctx context.Context, kind CarrierKind, id string) (*Track, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+trackColumns+` FROM `+kind.Table()+ //nolint:gosec // G202: table comes from CarrierKind.Table
		` t LEFT JOIN performers p ON p.id = t.performer_id WHERE t.id = ?`, id)
	t, err := scanTrack(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s track: %w", kind, err)
	}
	return t, nil
}

// FindTrack looks a track up by id in every partition. Returns nil when
// absent from all of them.
func (s *Store) FindTrack(ctx context.Context, id string) (*Track, error) {
	for _, kind := range Kinds {
		t, err := s.GetTrack(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

// ListTracks returns every track of one partition ordered by carrier and
// position.
func (s *Store) ListTracks(ctx context.Context, kind CarrierKind) ([]Track, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+trackColumns+` FROM `+kind.Table()+ //nolint:gosec // G202: table comes from CarrierKind.Table
		` t LEFT JOIN performers p ON p.id = t.performer_id ORDER BY t.carrier_ref, t.position, t.id`)
	if err != nil {
		return nil, fmt.Errorf("listing %s tracks: %w", kind, err)
	}
	defer rows.Close() //nolint:errcheck

	var tracks []Track
	for rows.Next() {
		t, err := scanTrack(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("scanning %s track: %w", kind, err)
		}
		tracks = append(tracks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s tracks: %w", kind, err)
	}
	return tracks, nil
}

// AllTracks returns the tracks of every partition, tapes first.
func (s *Store) AllTracks(ctx context.Context) ([]Track, error) {
	var all []Track
	for _, kind := range Kinds {
		tracks, err := s.ListTracks(ctx, kind)
		if err != nil {
			return nil, err
		}
		all = append(all, tracks...)
	}
	return all, nil
}

// SetClassification rewrites the originality flags of one track.
func (s *Store) SetClassification(ctx context.Context, ref TrackRef, c Classification) error {
	isCover, isOriginal, name := c.flags()
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.q.ExecContext(ctx,
		"UPDATE "+ref.Kind.Table()+" SET is_cover = ?, is_original = ?, original_performer_name = ?, updated_at = ? WHERE id = ?", //nolint:gosec // G202: table comes from CarrierKind.Table
		boolToInt(isCover), boolToInt(isOriginal), name, now, ref.ID,
	)
	if err != nil {
		return fmt.Errorf("classifying %s track %s: %w", ref.Kind, ref.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s track %s", ErrNotFound, ref.Kind, ref.ID)
	}
	return nil
}

// SetAlbum points a track at an album. Only tracks without a direct album
// are touched; the number of rows changed is returned.
func (s *Store) SetAlbum(ctx context.Context, ref TrackRef, albumID string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.q.ExecContext(ctx,
		"UPDATE "+ref.Kind.Table()+" SET album_id = ?, updated_at = ? WHERE id = ? AND (album_id IS NULL OR album_id = '')", //nolint:gosec // G202: table comes from CarrierKind.Table
		albumID, now, ref.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("setting album of %s track %s: %w", ref.Kind, ref.ID, err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// scanPerformer scans a database row into a Performer struct.
func scanPerformer(row interface{ Scan(...any) error }) (*Performer, error) {
	var p Performer
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Photo, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// scanTrack scans a database row into a Track struct.
func scanTrack(row interface{ Scan(...any) error }, kind CarrierKind) (*Track, error) {
	var t Track
	var albumID sql.NullString
	var isCover, isOriginal int
	var createdAt, updatedAt string

	err := row.Scan(
		&t.ID, &t.Title, &t.PerformerID, &t.PerformerName, &t.CarrierRef, &t.Position,
		&albumID, &isCover, &isOriginal, &t.OriginalPerformerName,
		&t.Art, &t.AssetPath, &t.ExternalLink, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = kind
	t.AlbumID = albumID.String
	t.IsCover = isCover == 1
	t.IsOriginal = isOriginal == 1
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// parseTime parses a time string, handling both RFC3339 and SQLite datetime formats.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
