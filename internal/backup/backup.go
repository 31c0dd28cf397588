// Package backup takes point-in-time snapshots of the catalog database.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const stampLayout = "20060102-150405"

// snapshotPattern matches snapshot filenames: cancionero-YYYYMMDD-HHMMSS.db
var snapshotPattern = regexp.MustCompile(`^cancionero-\d{8}-\d{6}\.db$`)

// Snapshot describes one snapshot file.
type Snapshot struct {
	Filename  string    `json:"filename"`
	Reason    string    `json:"reason,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Service writes and prunes catalog snapshots in a single directory.
type Service struct {
	db         *sql.DB
	dir        string
	retention  int
	maxAgeDays int
	now        func() time.Time
	logger     *slog.Logger
}

// NewService creates a snapshot service. A retention of zero or less keeps
// every snapshot; maxAgeDays of zero or less disables age-based pruning.
func NewService(db *sql.DB, dir string, retention, maxAgeDays int, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		dir:        dir,
		retention:  retention,
		maxAgeDays: maxAgeDays,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With(slog.String("component", "backup")),
	}
}

// Dir returns the snapshot directory.
func (s *Service) Dir() string {
	return s.dir
}

// Backup writes a consistent copy of the catalog using VACUUM INTO. The
// reason is only logged; it names the operation that asked for the copy.
func (s *Service) Backup(ctx context.Context, reason string) (*Snapshot, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	now := s.now()
	filename := "cancionero-" + now.Format(stampLayout) + ".db"
	dest := filepath.Join(s.dir, filename)
	// Two snapshots within the same second would collide.
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("snapshot %s already exists", filename)
	}

	s.logger.Info("starting backup", slog.String("dest", dest), slog.String("reason", reason))
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return nil, fmt.Errorf("VACUUM INTO: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("stat backup file: %w", err)
	}
	s.logger.Info("backup complete",
		slog.String("filename", filename),
		slog.Int64("size", info.Size()))

	return &Snapshot{Filename: filename, Reason: reason, Size: info.Size(), CreatedAt: now}, nil
}

// List returns every snapshot, newest first. A missing directory yields an
// empty list.
func (s *Service) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var snaps []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !snapshotPattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), "cancionero-"), ".db")
		ts, err := time.Parse(stampLayout, stamp)
		if err != nil {
			ts = info.ModTime().UTC()
		}
		snaps = append(snaps, Snapshot{Filename: entry.Name(), Size: info.Size(), CreatedAt: ts})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps, nil
}

// Delete removes one snapshot by filename.
func (s *Service) Delete(filename string) error {
	if !IsValidFilename(filename) {
		return fmt.Errorf("invalid snapshot filename %q", filename)
	}
	if err := os.Remove(filepath.Join(s.dir, filename)); err != nil { //nolint:gosec // G304: filename validated above
		return fmt.Errorf("removing backup: %w", err)
	}
	s.logger.Info("backup deleted", slog.String("filename", filename))
	return nil
}

// Prune deletes snapshots beyond the retention count and those older than
// the maximum age. It returns the filenames it removed.
func (s *Service) Prune() ([]string, error) {
	snaps, err := s.List()
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if s.maxAgeDays > 0 {
		cutoff = s.now().AddDate(0, 0, -s.maxAgeDays)
	}

	var removed []string
	for i, snap := range snaps {
		overCount := s.retention > 0 && i >= s.retention
		tooOld := !cutoff.IsZero() && snap.CreatedAt.Before(cutoff)
		if !overCount && !tooOld {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, snap.Filename)); err != nil {
			s.logger.Warn("failed to remove old backup",
				slog.String("filename", snap.Filename),
				slog.Any("error", err))
			continue
		}
		s.logger.Info("pruned backup", slog.String("filename", snap.Filename))
		removed = append(removed, snap.Filename)
	}
	return removed, nil
}

// IsValidFilename reports whether filename names a snapshot and carries no
// path components.
func IsValidFilename(filename string) bool {
	if strings.ContainsAny(filename, `/\`) || strings.Contains(filename, "..") {
		return false
	}
	return snapshotPattern.MatchString(filename)
}
