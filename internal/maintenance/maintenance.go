// Package maintenance runs SQLite upkeep on the catalog database.
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/sydlexius/cancionero/internal/database"
)

// Status holds database file and row-count information.
type Status struct {
	SchemaVersion int64 `json:"schema_version"`
	DBFileSize    int64 `json:"db_file_size"`
	WALFileSize   int64 `json:"wal_file_size"`
	PageCount     int64 `json:"page_count"`
	PageSize      int64 `json:"page_size"`
	Performers    int   `json:"performers"`
	Albums        int   `json:"albums"`
	TapeTracks    int   `json:"tape_tracks"`
	DiscTracks    int   `json:"disc_tracks"`
}

// CheckResult lists problems reported by SQLite's consistency checks. Both
// slices are empty for a healthy catalog.
type CheckResult struct {
	Integrity   []string `json:"integrity,omitempty"`
	ForeignKeys []string `json:"foreign_keys,omitempty"`
}

// OK reports whether no problem was found.
func (r *CheckResult) OK() bool {
	return len(r.Integrity) == 0 && len(r.ForeignKeys) == 0
}

// Service provides database maintenance operations.
type Service struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

// NewService creates a maintenance service.
func NewService(db *sql.DB, dbPath string, logger *slog.Logger) *Service {
	return &Service{
		db:     db,
		dbPath: dbPath,
		logger: logger.With(slog.String("component", "maintenance")),
	}
}

// Status returns the current size of the catalog and its files.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBFileSize = info.Size()
	}
	if info, err := os.Stat(s.dbPath + "-wal"); err == nil {
		st.WALFileSize = info.Size()
	}

	v, err := database.SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	st.SchemaVersion = v

	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&st.PageCount); err != nil {
		s.logger.Warn("reading page_count", "error", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&st.PageSize); err != nil {
		s.logger.Warn("reading page_size", "error", err)
	}

	counts := []struct {
		table string
		dest  *int
	}{
		// The sentinel performer is not counted.
		{"performers WHERE id != 'unknown'", &st.Performers},
		{"albums", &st.Albums},
		{"tape_tracks", &st.TapeTracks},
		{"disc_tracks", &st.DiscTracks},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil { //nolint:gosec // G202: fixed table names
			return nil, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}
	return st, nil
}

// Optimize runs PRAGMA optimize followed by a WAL checkpoint.
func (s *Service) Optimize(ctx context.Context) error {
	s.logger.Info("running PRAGMA optimize")
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("PRAGMA optimize: %w", err)
	}

	s.logger.Info("running WAL checkpoint")
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}

	s.logger.Info("optimize complete")
	return nil
}

// Vacuum runs VACUUM to rebuild the database file.
func (s *Service) Vacuum(ctx context.Context) error {
	s.logger.Info("running VACUUM")
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("VACUUM: %w", err)
	}
	s.logger.Info("vacuum complete")
	return nil
}

// Check runs PRAGMA integrity_check and PRAGMA foreign_key_check.
func (s *Service) Check(ctx context.Context) (*CheckResult, error) {
	res := &CheckResult{}

	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("integrity_check: %w", err)
	}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning integrity_check: %w", err)
		}
		if line != "ok" {
			res.Integrity = append(res.Integrity, line)
		}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	fkRows, err := s.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, fmt.Errorf("foreign_key_check: %w", err)
	}
	defer fkRows.Close() //nolint:errcheck
	for fkRows.Next() {
		var (
			table, parent string
			rowid         sql.NullInt64
			fkid          int
		)
		if err := fkRows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, fmt.Errorf("scanning foreign_key_check: %w", err)
		}
		res.ForeignKeys = append(res.ForeignKeys,
			fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
	}
	if err := fkRows.Err(); err != nil {
		return nil, err
	}

	if res.OK() {
		s.logger.Info("database check passed")
	} else {
		s.logger.Warn("database check found problems",
			slog.Int("integrity", len(res.Integrity)),
			slog.Int("foreign_keys", len(res.ForeignKeys)))
	}
	return res, nil
}
