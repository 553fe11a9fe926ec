package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"

	blobcore "labcore/internal/infra/blob/core"
	"labcore/internal/infra/persistence/records"
	"labcore/pkg/domain"
)

// ErrArchiveDisabled is returned by archive operations when no blob store is configured.
var ErrArchiveDisabled = errors.New("archive disabled")

const jsonContentType = "application/json"

// Load reads every record kind from src, reconciles them as of today and
// restores the registry, persisting the healing diff in one unit of work. On
// failure nothing is applied. The report is archived when an archive is set.
func (s *Service) Load(ctx context.Context, src domain.RecordSource) (ReconcileReport, error) {
	var report ReconcileReport
	err := s.run(ctx, "load", func(ctx context.Context) (string, error) {
		raw, err := records.ReadAll(ctx, src)
		if err != nil {
			return "", err
		}
		snap, rep, err := NewReconciler().Reconcile(ctx, raw, s.now())
		report = rep
		if err != nil {
			return rep.RunID, err
		}
		current := raw
		if own, ok := s.store.(domain.RecordSource); ok && own != src {
			if current, err = records.ReadAll(ctx, own); err != nil {
				return rep.RunID, err
			}
		}
		ops := records.Diff(current, records.Encode(snap))
		if err := s.store.Restore(ctx, snap, ops); err != nil {
			return rep.RunID, err
		}
		report.PersistedOps = len(ops)
		s.logger.Info("dataset reconciled",
			"run_id", report.RunID,
			"healed_tiers", len(report.HealedTiers),
			"synthesized_events", len(report.SynthesizedEvents),
			"dropped_links", len(report.DroppedLinks),
			"persisted_ops", report.PersistedOps)
		if s.archive != nil {
			if _, err := s.ArchiveReport(ctx, report); err != nil {
				s.logger.Warn("archive reconcile report", "run_id", report.RunID, "error", err)
			}
		}
		return report.RunID, nil
	})
	return report, err
}

// ArchiveSnapshot writes the registry as JSON under snapshots/<date>/<id>.json.
func (s *Service) ArchiveSnapshot(ctx context.Context) (blobcore.Info, error) {
	if s.archive == nil {
		return blobcore.Info{}, ErrArchiveDisabled
	}
	key := path.Join("snapshots", domain.FormatDate(s.now()), uuid.NewString()+".json")
	return s.putJSON(ctx, key, s.store.ExportState(), map[string]string{"kind": "snapshot"})
}

// ArchiveReport writes report as JSON under reports/<run id>.json.
func (s *Service) ArchiveReport(ctx context.Context, report ReconcileReport) (blobcore.Info, error) {
	if s.archive == nil {
		return blobcore.Info{}, ErrArchiveDisabled
	}
	key := path.Join("reports", report.RunID+".json")
	return s.putJSON(ctx, key, report, map[string]string{"kind": "reconcile_report", "today": domain.FormatDate(report.Today)})
}

func (s *Service) putJSON(ctx context.Context, key string, v any, metadata map[string]string) (blobcore.Info, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return blobcore.Info{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return s.archive.Put(ctx, key, bytes.NewReader(payload), blobcore.PutOptions{ContentType: jsonContentType, Metadata: metadata})
}
