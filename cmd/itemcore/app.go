package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"itemcore/internal/adapters/attachments"
	"itemcore/internal/adapters/audit"
	"itemcore/internal/adapters/backup"
	"itemcore/internal/adapters/notify"
	"itemcore/internal/adapters/resolver"
	"itemcore/internal/blob"
	"itemcore/internal/cache"
	"itemcore/internal/config"
	"itemcore/internal/core"
	"itemcore/internal/infra/persistence"
	"itemcore/internal/telemetry"
)

const serviceName = "itemcore"

var loadConfig = config.Load

// app owns every process-wide collaborator of the item service.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	expvar   *core.ExpvarMetricsRecorder
	service  *core.Service
	blobs    blob.Store
	backups  *backup.Writer

	closers []func(context.Context) error
}

func newApp(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}

	var metrics core.MetricsRecorder
	switch cfg.MetricsExporter {
	case config.MetricsExpvar:
		a.expvar = core.NewExpvarMetricsRecorder("")
		metrics = a.expvar
	default:
		prom, err := core.NewPrometheusMetricsRecorder(a.registry, cfg.MetricsNamespace)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		metrics = prom
	}

	var tracer core.Tracer
	switch cfg.TraceExporter {
	case config.TraceJSON:
		tracer = core.NewJSONTracer(stderr)
	default:
		shutdown, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
		if err != nil {
			return nil, fmt.Errorf("setup telemetry: %w", err)
		}
		a.closers = append(a.closers, shutdown)
		tracer = core.NewOTelTracer(nil)
	}

	handle, err := persistence.Open(ctx, cfg)
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	a.closers = append(a.closers, func(context.Context) error { return handle.Close() })

	a.blobs, err = blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = a.close(ctx)
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	a.backups = backup.New(a.blobs)

	opts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithTracer(tracer),
		core.WithSideEffectTimeout(cfg.SideEffectTimeout),
		core.WithNotificationChannels(notify.NewLogChannel(logger)),
		core.WithAttachmentStore(attachments.New(a.blobs)),
		core.WithBackupWriter(a.backups),
		core.WithDependencyResolver(resolver.New(handle.Store)),
	}
	if handle.Audit != nil {
		opts = append(opts, core.WithAuditSink(handle.Audit))
	} else {
		opts = append(opts, core.WithAuditSink(audit.NewLogSink(logger)))
	}
	if cfg.CacheSize > 0 {
		items, err := cache.NewLRU(cfg.CacheSize)
		if err != nil {
			_ = a.close(ctx)
			return nil, err
		}
		opts = append(opts, core.WithItemCache(items))
	}
	a.service = core.NewService(handle.Store, opts...)
	return a, nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// writeMetrics dumps the expvar snapshot as JSON, or the registry in the
// Prometheus text format.
func (a *app) writeMetrics(w io.Writer) error {
	if a.expvar != nil {
		return json.NewEncoder(w).Encode(a.expvar.Snapshot())
	}
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
