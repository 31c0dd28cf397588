// Package config loads cancionero settings from a YAML file and CN_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sydlexius/cancionero/internal/catalog"
	"github.com/sydlexius/cancionero/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  logging.Config `yaml:"logging"`
	Artwork  ArtworkConfig  `yaml:"artwork"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Backup   BackupConfig   `yaml:"backup"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ArtworkConfig controls embedded-art caching.
type ArtworkConfig struct {
	// Watch invalidates cached pictures when files under WatchDirs change.
	// Off by default: cached pictures then stay until the process exits.
	Watch     bool     `yaml:"watch"`
	WatchDirs []string `yaml:"watch_dirs"`
}

// CatalogConfig holds reconciliation settings.
type CatalogConfig struct {
	// SearchOrder is "same-first" or "tape-first".
	SearchOrder string `yaml:"search_order"`
}

// BackupConfig controls catalog snapshots.
type BackupConfig struct {
	Dir        string `yaml:"dir"`
	Retention  int    `yaml:"retention"`
	MaxAgeDays int    `yaml:"max_age_days"`
	// BeforeMerge snapshots the catalog before performer merges and deletes.
	BeforeMerge bool `yaml:"before_merge"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "cancionero.db",
		},
		Logging: logging.DefaultConfig(),
		Catalog: CatalogConfig{
			SearchOrder: string(catalog.SearchSameFirst),
		},
		Backup: BackupConfig{
			Dir:       "backups",
			Retention: 7,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is chosen by the operator
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("CN_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CN_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("CN_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("CN_ART_WATCH"); v != "" {
		watch, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CN_ART_WATCH: %w", err)
		}
		c.Artwork.Watch = watch
	}
	if v := os.Getenv("CN_ART_WATCH_DIRS"); v != "" {
		c.Artwork.WatchDirs = filepath.SplitList(v)
	}
	if v := os.Getenv("CN_SEARCH_ORDER"); v != "" {
		c.Catalog.SearchOrder = v
	}
	if v := os.Getenv("CN_BACKUP_DIR"); v != "" {
		c.Backup.Dir = v
	}
	if v := os.Getenv("CN_BACKUP_RETENTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CN_BACKUP_RETENTION: %w", err)
		}
		c.Backup.Retention = n
	}
	if v := os.Getenv("CN_BACKUP_BEFORE_MERGE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CN_BACKUP_BEFORE_MERGE: %w", err)
		}
		c.Backup.BeforeMerge = b
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database path is required")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if _, err := catalog.ParseSearchOrder(c.Catalog.SearchOrder); err != nil {
		return err
	}
	if c.Artwork.Watch && len(c.Artwork.WatchDirs) == 0 {
		return fmt.Errorf("artwork.watch needs at least one watch_dirs entry")
	}
	if strings.TrimSpace(c.Backup.Dir) == "" {
		return fmt.Errorf("backup dir is required")
	}
	if c.Backup.Retention < 0 || c.Backup.MaxAgeDays < 0 {
		return fmt.Errorf("backup retention and max_age_days must not be negative")
	}
	return nil
}

// SearchOrder returns the validated carrier search order.
func (c *Config) SearchOrder() catalog.SearchOrder {
	o, _ := catalog.ParseSearchOrder(c.Catalog.SearchOrder)
	return o
}
