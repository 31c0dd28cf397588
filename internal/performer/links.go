package performer

import (
	"context"
	"fmt"
	"strings"

	"github.com/sydlexius/cancionero/internal/catalog"
)

// AddCredit credits a performer on a track besides its main performer.
// Adding an existing credit is a no-op.
func (s *Service) AddCredit(ctx context.Context, ref catalog.TrackRef, performerID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO track_performers (track_kind, track_id, performer_id) VALUES (?, ?, ?)`,
		string(ref.Kind), ref.ID, performerID)
	if err != nil {
		return fmt.Errorf("adding credit: %w", err)
	}
	return nil
}

// Credits returns the performers credited on a track, ordered by id.
func (s *Service) Credits(ctx context.Context, ref catalog.TrackRef) ([]string, error) {
	return s.ids(ctx, `SELECT performer_id FROM track_performers WHERE track_kind = ? AND track_id = ? ORDER BY performer_id`,
		string(ref.Kind), ref.ID)
}

// AddMember records memberID as a member of bandID.
func (s *Service) AddMember(ctx context.Context, bandID, memberID string) error {
	if bandID == memberID {
		return fmt.Errorf("%w: a band cannot be its own member", catalog.ErrInvalidArgument)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO band_members (band_id, member_id) VALUES (?, ?)`, bandID, memberID)
	if err != nil {
		return fmt.Errorf("adding band member: %w", err)
	}
	return nil
}

// Members returns the member ids of a band.
func (s *Service) Members(ctx context.Context, bandID string) ([]string, error) {
	return s.ids(ctx, `SELECT member_id FROM band_members WHERE band_id = ? ORDER BY member_id`, bandID)
}

// Bands returns the ids of the bands a performer belongs to.
func (s *Service) Bands(ctx context.Context, memberID string) ([]string, error) {
	return s.ids(ctx, `SELECT band_id FROM band_members WHERE member_id = ? ORDER BY band_id`, memberID)
}

// AddGenre tags a performer with a genre. Genres are stored lowercased.
func (s *Service) AddGenre(ctx context.Context, performerID, genre string) error {
	genre = strings.ToLower(strings.TrimSpace(genre))
	if genre == "" {
		return fmt.Errorf("%w: genre is required", catalog.ErrInvalidArgument)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO performer_genres (performer_id, genre) VALUES (?, ?)`, performerID, genre)
	if err != nil {
		return fmt.Errorf("adding genre: %w", err)
	}
	return nil
}

// Genres returns a performer's genres in alphabetical order.
func (s *Service) Genres(ctx context.Context, performerID string) ([]string, error) {
	return s.ids(ctx, `SELECT genre FROM performer_genres WHERE performer_id = ? ORDER BY genre`, performerID)
}

func (s *Service) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
