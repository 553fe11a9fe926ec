// Package config loads labcore settings from LABCORE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"labcore/internal/core"
	"labcore/internal/infra/blob"
	blobcore "labcore/internal/infra/blob/core"
	"labcore/internal/infra/blob/s3"
)

// Config is the process configuration.
type Config struct {
	StorageDriver string `env:"LABCORE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"LABCORE_SQLITE_PATH" envDefault:"labcore.db"`
	PostgresDSN   string `env:"LABCORE_POSTGRES_DSN"`
	LogLevel      string `env:"LABCORE_LOG_LEVEL" envDefault:"info"`

	ArchiveDriver      string `env:"LABCORE_ARCHIVE_DRIVER" envDefault:"none"`
	ArchiveFSRoot      string `env:"LABCORE_ARCHIVE_FS_ROOT" envDefault:"./archive"`
	ArchiveS3Bucket    string `env:"LABCORE_ARCHIVE_S3_BUCKET"`
	ArchiveS3Region    string `env:"LABCORE_ARCHIVE_S3_REGION" envDefault:"us-east-1"`
	ArchiveS3Endpoint  string `env:"LABCORE_ARCHIVE_S3_ENDPOINT"`
	ArchiveS3PathStyle bool   `env:"LABCORE_ARCHIVE_S3_PATH_STYLE"`

	MetricsNamespace string `env:"LABCORE_METRICS_NAMESPACE" envDefault:"labcore"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and incomplete archive settings.
func (c Config) Validate() error {
	switch core.StorageDriver(c.StorageDriver) {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	switch blobcore.Driver(c.ArchiveDriver) {
	case blob.DriverNone, blobcore.DriverFilesystem, blobcore.DriverMemory:
	case blobcore.DriverS3:
		if c.ArchiveS3Bucket == "" {
			return fmt.Errorf("LABCORE_ARCHIVE_S3_BUCKET required for s3 archive")
		}
	default:
		return fmt.Errorf("unknown archive driver %q", c.ArchiveDriver)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Storage returns the persistent store selection.
func (c Config) Storage() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.StorageDriver),
		SQLitePath:  c.SQLitePath,
		PostgresDSN: c.PostgresDSN,
	}
}

// Archive returns the archive backend selection. S3 credentials come from the
// default AWS chain.
func (c Config) Archive() blob.Config {
	return blob.Config{
		Driver: blobcore.Driver(c.ArchiveDriver),
		FSRoot: c.ArchiveFSRoot,
		S3: s3.Config{
			Bucket:    c.ArchiveS3Bucket,
			Region:    c.ArchiveS3Region,
			Endpoint:  c.ArchiveS3Endpoint,
			PathStyle: c.ArchiveS3PathStyle,
		},
	}
}

// SlogLevel maps LogLevel to a slog level; unknown values fall back to info.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
