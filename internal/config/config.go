// Package config loads itemcore runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Blob drivers.
const (
	BlobFS     = "fs"
	BlobS3     = "s3"
	BlobMemory = "memory"
)

// Observability exporters.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
	TraceOTel         = "otel"
	TraceJSON         = "json"
)

// Config is the process configuration.
type Config struct {
	StorageDriver string `env:"ITEMCORE_STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath    string `env:"ITEMCORE_SQLITE_PATH" envDefault:"itemcore.db"`
	PostgresDSN   string `env:"ITEMCORE_POSTGRES_DSN"`

	Blob BlobConfig `envPrefix:"ITEMCORE_BLOB_"`

	SideEffectTimeout time.Duration `env:"ITEMCORE_SIDE_EFFECT_TIMEOUT" envDefault:"5s"`
	CacheSize         int           `env:"ITEMCORE_CACHE_SIZE" envDefault:"1024"`
	LogLevel          string        `env:"ITEMCORE_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint      string        `env:"ITEMCORE_OTEL_ENDPOINT"`
	MetricsNamespace  string        `env:"ITEMCORE_METRICS_NAMESPACE" envDefault:"itemcore"`
	MetricsExporter   string        `env:"ITEMCORE_METRICS_EXPORTER" envDefault:"prometheus"`
	TraceExporter     string        `env:"ITEMCORE_TRACE_EXPORTER" envDefault:"otel"`
}

// BlobConfig selects the store used for attachments and backups.
type BlobConfig struct {
	Driver string `env:"DRIVER" envDefault:"fs"`
	FSRoot string `env:"FS_ROOT" envDefault:"itemcore-blobs"`

	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates the process configuration.
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

// Validate checks driver names and bounds.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.StorageDriver)
	}
	switch c.Blob.Driver {
	case BlobFS, BlobMemory:
	case BlobS3:
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("ITEMCORE_BLOB_S3_BUCKET is required for the s3 blob driver")
		}
	default:
		return fmt.Errorf("unsupported blob driver %q", c.Blob.Driver)
	}
	switch c.MetricsExporter {
	case MetricsPrometheus, MetricsExpvar:
	default:
		return fmt.Errorf("unsupported metrics exporter %q", c.MetricsExporter)
	}
	switch c.TraceExporter {
	case TraceOTel, TraceJSON:
	default:
		return fmt.Errorf("unsupported trace exporter %q", c.TraceExporter)
	}
	if c.SideEffectTimeout <= 0 {
		return fmt.Errorf("side effect timeout must be positive, got %s", c.SideEffectTimeout)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size must not be negative, got %d", c.CacheSize)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(c.LogLevel)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
