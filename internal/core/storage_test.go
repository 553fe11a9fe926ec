package core_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"labcore/internal/core"
	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	engine := core.NewDefaultRulesEngine()

	mem, err := core.OpenPersistentStore(core.StorageConfig{Driver: core.StorageMemory}, engine)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := mem.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", mem)
	}
	if err := core.CloseStore(mem); err != nil {
		t.Fatalf("close memory store: %v", err)
	}

	_, err = core.OpenPersistentStore(core.StorageConfig{Driver: "oracle"}, engine)
	if err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := core.StorageConfig{SQLitePath: filepath.Join(t.TempDir(), "nested", "labcore.db")}
	clock := memory.WithClock(fixedClock(testToday).Now)

	store, err := core.OpenPersistentStore(cfg, core.NewDefaultRulesEngine(), clock)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	svc := core.NewService(store)
	seed(t, svc)
	addJunior(t, svc, "B002", "TAX2")
	if err := core.CloseStore(store); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := core.OpenPersistentStore(cfg, core.NewDefaultRulesEngine(), clock)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	t.Cleanup(func() { _ = core.CloseStore(reopened) })
	svc = core.NewService(reopened)
	if rows, _ := svc.FetchPermanentEmployees(ctx); len(rows) != 0 {
		t.Fatalf("expected an empty registry before load, got %v", rows)
	}
	report, err := svc.Load(ctx, reopened.(domain.RecordSource))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !report.Empty() || report.PersistedOps != 0 {
		t.Fatalf("expected a clean reload, got %+v", report)
	}
	rows, err := svc.FetchPermanentEmployees(ctx)
	if err != nil || len(rows) != 2 {
		t.Fatalf("expected two employees after reload, got %v %v", rows, err)
	}
	lab, ok := svc.ResolveLab(ctx, "Optics")
	if !ok || lab.DirectorBadge != "B001" || len(lab.ProjectCUPs) != 1 {
		t.Fatalf("unexpected lab after reload %+v", lab)
	}
}
