// Package performer manages performer identities: creation, renaming,
// deletion, and merging two identities that name the same artist.
package performer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/database"
	"github.com/sydlexius/cancionero/internal/event"
	"github.com/sydlexius/cancionero/internal/textnorm"
)

// Service provides performer data operations.
type Service struct {
	db     *sql.DB
	store  *catalog.Store
	bus    *event.Bus
	logger *slog.Logger
}

// NewService creates a performer service. bus may be nil.
func NewService(db *sql.DB, store *catalog.Store, bus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		store:  store,
		bus:    bus,
		logger: logger.With("component", "performer"),
	}
}

// Create inserts a new performer.
func (s *Service) Create(ctx context.Context, p *catalog.Performer) error {
	return s.store.CreatePerformer(ctx, p)
}

// GetByID retrieves a performer by primary key. Returns nil when absent.
func (s *Service) GetByID(ctx context.Context, id string) (*catalog.Performer, error) {
	return s.store.GetPerformer(ctx, id)
}

// GetByName finds the performer whose name matches name ignoring case,
// accents and surrounding whitespace. Returns nil when none does.
func (s *Service) GetByName(ctx context.Context, name string) (*catalog.Performer, error) {
	key := textnorm.NameKey(name)
	performers, err := s.store.ListPerformers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range performers {
		if textnorm.NameKey(performers[i].Name) == key {
			return &performers[i], nil
		}
	}
	return nil, nil
}

// List returns every performer ordered by name.
func (s *Service) List(ctx context.Context) ([]catalog.Performer, error) {
	return s.store.ListPerformers(ctx)
}

// TrackCount returns how many tracks credit the performer as their main
// performer, across both partitions.
func (s *Service) TrackCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM tape_tracks WHERE performer_id = ?)
		     + (SELECT COUNT(*) FROM disc_tracks WHERE performer_id = ?)
	`, id, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting tracks of performer %s: %w", id, err)
	}
	return n, nil
}

// UnifyResult counts the rows moved by a merge.
type UnifyResult struct {
	SourceID    string `json:"source_id"`
	TargetID    string `json:"target_id"`
	Tracks      int    `json:"tracks"`
	Albums      int    `json:"albums"`
	Credits     int    `json:"credits"`
	Memberships int    `json:"memberships"`
	Genres      int    `json:"genres"`
}

// Unify merges performer sourceID into targetID: every track, album,
// credit, band membership and genre of the source moves to the target,
// then the source is deleted. Links the target already has are not
// duplicated. All of it commits or none of it does.
func (s *Service) Unify(ctx context.Context, sourceID, targetID string) (*UnifyResult, error) {
	var res *UnifyResult
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		r, err := unify(ctx, tx, sourceID, targetID)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("performers unified",
		slog.String("source_id", sourceID),
		slog.String("target_id", targetID),
		slog.Int("tracks", res.Tracks),
		slog.Int("albums", res.Albums))
	s.bus.Publish(event.Event{
		Type: event.PerformersUnified,
		Data: map[string]any{"source_id": sourceID, "target_id": targetID, "tracks": res.Tracks},
	})
	return res, nil
}

func unify(ctx context.Context, tx *sql.Tx, sourceID, targetID string) (*UnifyResult, error) {
	if sourceID == "" || targetID == "" {
		return nil, fmt.Errorf("%w: source and target performer are required", catalog.ErrInvalidArgument)
	}
	if sourceID == targetID {
		return nil, fmt.Errorf("%w: cannot unify performer %s with itself", catalog.ErrInvalidArgument, sourceID)
	}
	if sourceID == catalog.UnknownPerformerID {
		return nil, fmt.Errorf("%w: the unknown performer cannot be merged away", catalog.ErrInvalidArgument)
	}
	for _, id := range []string{sourceID, targetID} {
		if _, err := performerName(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	res := &UnifyResult{SourceID: sourceID, TargetID: targetID}
	steps := []struct {
		what  string
		query string
		args  []any
		count *int
	}{
		{"moving tape tracks", `UPDATE tape_tracks SET performer_id = ?, updated_at = ? WHERE performer_id = ?`,
			[]any{targetID, now(), sourceID}, &res.Tracks},
		{"moving disc tracks", `UPDATE disc_tracks SET performer_id = ?, updated_at = ? WHERE performer_id = ?`,
			[]any{targetID, now(), sourceID}, &res.Tracks},
		{"moving albums", `UPDATE albums SET performer_id = ?, updated_at = ? WHERE performer_id = ?`,
			[]any{targetID, now(), sourceID}, &res.Albums},
		{"copying credits", `INSERT OR IGNORE INTO track_performers (track_kind, track_id, performer_id)
			SELECT track_kind, track_id, ? FROM track_performers WHERE performer_id = ?`,
			[]any{targetID, sourceID}, &res.Credits},
		{"dropping source credits", `DELETE FROM track_performers WHERE performer_id = ?`,
			[]any{sourceID}, nil},
		{"copying memberships", `INSERT OR IGNORE INTO band_members (band_id, member_id)
			SELECT band_id, ? FROM band_members WHERE member_id = ? AND band_id != ?`,
			[]any{targetID, sourceID, targetID}, &res.Memberships},
		{"dropping source memberships", `DELETE FROM band_members WHERE member_id = ?`,
			[]any{sourceID}, nil},
		{"copying band members", `INSERT OR IGNORE INTO band_members (band_id, member_id)
			SELECT ?, member_id FROM band_members WHERE band_id = ? AND member_id != ?`,
			[]any{targetID, sourceID, targetID}, &res.Memberships},
		{"dropping source band members", `DELETE FROM band_members WHERE band_id = ?`,
			[]any{sourceID}, nil},
		{"copying genres", `INSERT OR IGNORE INTO performer_genres (performer_id, genre)
			SELECT ?, genre FROM performer_genres WHERE performer_id = ?`,
			[]any{targetID, sourceID}, &res.Genres},
		{"dropping source genres", `DELETE FROM performer_genres WHERE performer_id = ?`,
			[]any{sourceID}, nil},
		{"deleting source performer", `DELETE FROM performers WHERE id = ?`,
			[]any{sourceID}, nil},
	}
	for _, st := range steps {
		result, err := tx.ExecContext(ctx, st.query, st.args...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", catalog.ErrStorage, st.what, err)
		}
		if st.count != nil {
			n, _ := result.RowsAffected()
			*st.count += int(n)
		}
	}
	return res, nil
}

// Rename changes a performer's name. When another performer already has
// the same name ignoring case, accents and spacing, the renamed performer
// is unified into that one instead, and the survivor is returned.
func (s *Service) Rename(ctx context.Context, id, newName string) (*catalog.Performer, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, fmt.Errorf("%w: performer name is required", catalog.ErrInvalidArgument)
	}
	if id == catalog.UnknownPerformerID {
		return nil, fmt.Errorf("%w: the unknown performer cannot be renamed", catalog.ErrInvalidArgument)
	}

	var survivor string
	var merged *UnifyResult
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := performerName(ctx, tx, id); err != nil {
			return err
		}
		other, err := findByNameKey(ctx, tx, textnorm.NameKey(newName), id)
		if err != nil {
			return err
		}
		if other != "" {
			survivor = other
			merged, err = unify(ctx, tx, id, other)
			return err
		}

		survivor = id
		if _, err := tx.ExecContext(ctx, `UPDATE performers SET name = ?, updated_at = ? WHERE id = ?`,
			newName, now(), id); err != nil {
			return fmt.Errorf("%w: renaming performer: %w", catalog.ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if merged != nil {
		s.logger.Info("rename collided, performers unified",
			slog.String("source_id", id),
			slog.String("target_id", survivor),
			slog.Int("tracks", merged.Tracks))
		s.bus.Publish(event.Event{
			Type: event.PerformersUnified,
			Data: map[string]any{"source_id": id, "target_id": survivor, "tracks": merged.Tracks},
		})
	} else {
		s.logger.Info("performer renamed", slog.String("performer_id", id), slog.String("name", newName))
	}
	return s.store.GetPerformer(ctx, survivor)
}

// Delete removes a performer. Its tracks and albums are handed to the
// unknown performer and its links are dropped.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == catalog.UnknownPerformerID {
		return fmt.Errorf("%w: the unknown performer cannot be deleted", catalog.ErrInvalidArgument)
	}

	var tracks int
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := performerName(ctx, tx, id); err != nil {
			return err
		}
		for _, table := range []string{"tape_tracks", "disc_tracks"} {
			result, err := tx.ExecContext(ctx,
				`UPDATE `+table+` SET performer_id = ?, updated_at = ? WHERE performer_id = ?`, //nolint:gosec // G202: table is a fixed partition name
				catalog.UnknownPerformerID, now(), id)
			if err != nil {
				return fmt.Errorf("%w: releasing %s: %w", catalog.ErrStorage, table, err)
			}
			n, _ := result.RowsAffected()
			tracks += int(n)
		}
		stmts := []string{
			`UPDATE albums SET performer_id = '` + catalog.UnknownPerformerID + `' WHERE performer_id = ?`,
			`DELETE FROM track_performers WHERE performer_id = ?`,
			`DELETE FROM band_members WHERE band_id = ?1 OR member_id = ?1`,
			`DELETE FROM performer_genres WHERE performer_id = ?`,
			`DELETE FROM performers WHERE id = ?`,
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("%w: deleting performer: %w", catalog.ErrStorage, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("performer deleted", slog.String("performer_id", id), slog.Int("tracks_released", tracks))
	s.bus.Publish(event.Event{
		Type: event.PerformerDeleted,
		Data: map[string]any{"performer_id": id, "tracks": tracks},
	})
	return nil
}

// performerName reads a performer's name inside tx, mapping absence to
// ErrNotFound.
func performerName(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var name string
	err := tx.QueryRowContext(ctx, `SELECT name FROM performers WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: performer %s", catalog.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("%w: getting performer: %w", catalog.ErrStorage, err)
	}
	return name, nil
}

// findByNameKey returns the id of a performer other than exclude whose
// name has the given key, or "".
func findByNameKey(ctx context.Context, tx *sql.Tx, key, exclude string) (string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM performers WHERE id != ? ORDER BY created_at, id`, exclude)
	if err != nil {
		return "", fmt.Errorf("%w: listing performers: %w", catalog.ErrStorage, err)
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return "", fmt.Errorf("%w: scanning performer: %w", catalog.ErrStorage, err)
		}
		if textnorm.NameKey(name) == key {
			return id, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("%w: iterating performers: %w", catalog.ErrStorage, err)
	}
	return "", nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
