package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageDriver != StorageSQLite || cfg.SQLitePath != "itemcore.db" {
		t.Fatalf("unexpected storage defaults %+v", cfg)
	}
	if cfg.Blob.Driver != BlobFS || cfg.SideEffectTimeout != 5*time.Second || cfg.CacheSize != 1024 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelInfo {
		t.Fatalf("expected info level, got %v", level)
	}
	if cfg.MetricsExporter != MetricsPrometheus || cfg.TraceExporter != TraceOTel {
		t.Fatalf("unexpected exporter defaults %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ITEMCORE_STORAGE_DRIVER", "postgres")
	t.Setenv("ITEMCORE_POSTGRES_DSN", "postgres://db/items")
	t.Setenv("ITEMCORE_BLOB_DRIVER", "s3")
	t.Setenv("ITEMCORE_BLOB_S3_BUCKET", "items")
	t.Setenv("ITEMCORE_BLOB_S3_USE_PATH_STYLE", "true")
	t.Setenv("ITEMCORE_SIDE_EFFECT_TIMEOUT", "750ms")
	t.Setenv("ITEMCORE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageDriver != StoragePostgres || cfg.PostgresDSN != "postgres://db/items" {
		t.Fatalf("unexpected storage %+v", cfg)
	}
	if cfg.Blob.Driver != BlobS3 || cfg.Blob.S3Bucket != "items" || !cfg.Blob.S3UsePathStyle {
		t.Fatalf("unexpected blob config %+v", cfg.Blob)
	}
	if cfg.SideEffectTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected timeout %s", cfg.SideEffectTimeout)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", level)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]struct {
		key, value, want string
	}{
		"storage":   {"ITEMCORE_STORAGE_DRIVER", "mongo", "unsupported storage driver"},
		"blob":      {"ITEMCORE_BLOB_DRIVER", "ftp", "unsupported blob driver"},
		"s3":        {"ITEMCORE_BLOB_DRIVER", "s3", "S3_BUCKET is required"},
		"timeout":   {"ITEMCORE_SIDE_EFFECT_TIMEOUT", "0s", "must be positive"},
		"level":     {"ITEMCORE_LOG_LEVEL", "chatty", "invalid log level"},
		"metrics":   {"ITEMCORE_METRICS_EXPORTER", "statsd", "unsupported metrics exporter"},
		"trace":     {"ITEMCORE_TRACE_EXPORTER", "zipkin", "unsupported trace exporter"},
		"malformed": {"ITEMCORE_CACHE_SIZE", "many", "parse env"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
