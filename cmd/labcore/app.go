package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"labcore/internal/config"
	"labcore/internal/core"
	"labcore/internal/infra/blob"
	"labcore/pkg/domain"
)

// globalOptions are the persistent flags shared by every command. Set flags
// override the LABCORE_* environment.
type globalOptions struct {
	logLevel      string
	storageDriver string
	sqlitePath    string
	archiveDriver string
	metricsFile   string
	trace         bool
}

type app struct {
	cfg         config.Config
	logger      *slog.Logger
	store       core.PersistentStore
	svc         *core.Service
	registry    *prometheus.Registry
	provider    *sdktrace.TracerProvider
	metricsFile string
}

func newApp(ctx context.Context, cfg config.Config, opts globalOptions, logOut io.Writer) (*app, error) {
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry(), metricsFile: opts.metricsFile}

	metrics, err := core.NewPrometheusMetricsRecorder(a.registry, cfg.MetricsNamespace)
	if err != nil {
		return nil, err
	}
	archive, err := blob.Open(ctx, cfg.Archive())
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	store, err := core.OpenPersistentStore(cfg.Storage(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = store

	svcOpts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewLogAuditRecorder(logger)),
		core.WithMetricsRecorder(metrics),
	}
	if archive != nil {
		svcOpts = append(svcOpts, core.WithArchive(archive))
	}
	if opts.trace {
		a.provider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(logSpanProcessor{logger: logger}))
		svcOpts = append(svcOpts, core.WithTracer(core.NewOTelTracer(a.provider)))
	}
	a.svc = core.NewService(store, svcOpts...)
	logger.Debug("labcore ready", "storage", cfg.StorageDriver, "archive", cfg.ArchiveDriver, "trace", opts.trace)
	return a, nil
}

// reload reconciles the registry from the configured backend.
func (a *app) reload(ctx context.Context) (core.ReconcileReport, error) {
	src, ok := a.store.(domain.RecordSource)
	if !ok {
		return core.ReconcileReport{}, fmt.Errorf("store %T cannot be read back", a.store)
	}
	return a.svc.Load(ctx, src)
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.provider != nil {
		errs = append(errs, a.provider.Shutdown(ctx))
	}
	if a.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if a.store != nil {
		errs = append(errs, core.CloseStore(a.store))
	}
	return errors.Join(errs...)
}

func writeReport(w io.Writer, report core.ReconcileReport) {
	fmt.Fprintf(w, "run_id=%s today=%s healed_tiers=%d synthesized_events=%d discarded_events=%d dropped_links=%d detached_equipment=%d persisted_ops=%d\n",
		report.RunID, domain.FormatDate(report.Today), len(report.HealedTiers), len(report.SynthesizedEvents),
		len(report.DiscardedEvents), len(report.DroppedLinks), len(report.DetachedEquipment), report.PersistedOps)
}
