package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/sydlexius/cancionero/internal/backup"
	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/config"
	"github.com/sydlexius/cancionero/internal/database"
	"github.com/sydlexius/cancionero/internal/event"
	"github.com/sydlexius/cancionero/internal/logging"
	"github.com/sydlexius/cancionero/internal/maintenance"
	"github.com/sydlexius/cancionero/internal/reconcile"
)

type commandContext struct {
	configPath string
	dbPath     string
	jsonOutput bool
	verbose    bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.configPath)
		if path == "" {
			path = os.Getenv("CN_CONFIG_PATH")
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("loading config: %w", err)
			return
		}
		if c.dbPath != "" {
			cfg.Database.Path = c.dbPath
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// session is everything a command needs to work on the catalog.
type session struct {
	cfg    *config.Config
	db     *sql.DB
	logger *slog.Logger
	bus    *event.Bus
	engine *reconcile.Engine
}

func (s *session) backups() *backup.Service {
	return backup.NewService(s.db, s.cfg.Backup.Dir, s.cfg.Backup.Retention, s.cfg.Backup.MaxAgeDays, s.logger)
}

func (s *session) maintenance() *maintenance.Service {
	return maintenance.NewService(s.db, s.cfg.Database.Path, s.logger)
}

// snapshotBeforeMerge takes a snapshot ahead of an irreversible performer
// change when the configuration asks for one.
func (s *session) snapshotBeforeMerge(ctx context.Context, reason string) error {
	if !s.cfg.Backup.BeforeMerge {
		return nil
	}
	svc := s.backups()
	if _, err := svc.Backup(ctx, reason); err != nil {
		return fmt.Errorf("%w: snapshot before %s: %w", catalog.ErrStorage, reason, err)
	}
	if _, err := svc.Prune(); err != nil {
		s.logger.Warn("pruning snapshots", "error", err)
	}
	return nil
}

// withEngine opens the catalog, runs fn and tears everything down again.
func (c *commandContext) withEngine(cmd *cobra.Command, fn func(s *session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	logManager, logger := logging.NewManager(cfg.Logging, cmd.ErrOrStderr())
	defer logManager.Close() //nolint:errcheck
	if c.verbose {
		_ = logManager.SetLevel("debug")
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("database ready", slog.String("path", cfg.Database.Path))

	bus := event.NewBus(logger, 256)
	logEvents(bus, logger)
	done := make(chan struct{})
	go func() {
		bus.Start()
		close(done)
	}()
	defer func() {
		bus.Stop()
		<-done
	}()

	engine := reconcile.New(db, reconcile.Options{
		Logger:      logger,
		Bus:         bus,
		SearchOrder: cfg.SearchOrder(),
	})
	return fn(&session{cfg: cfg, db: db, logger: logger, bus: bus, engine: engine})
}

// logEvents records every engine event in the log.
func logEvents(bus *event.Bus, logger *slog.Logger) {
	bus.SubscribeAll(func(e event.Event) {
		logger.Debug("event", slog.String("type", string(e.Type)), slog.Any("data", e.Data))
	})
}

// exitCode maps engine errors to distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return 3
	case errors.Is(err, catalog.ErrInvalidArgument):
		return 4
	case errors.Is(err, catalog.ErrConflict):
		return 5
	case errors.Is(err, catalog.ErrStorage):
		return 6
	default:
		return 1
	}
}
