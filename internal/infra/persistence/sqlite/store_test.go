package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"labcore/pkg/domain"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(ctx context.Context, store *Store) error {
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreatePermanentEmployee(domain.PermanentEmployee{
			Badge: "B001", TaxID: "T1", Tier: domain.TierSenior, HireDate: domain.Date(2010, 1, 1),
		}); err != nil {
			return err
		}
		if _, err := tx.CreateLab(domain.Lab{Name: "Optics", DirectorBadge: "B001", Affiliates: []string{"B001"}}); err != nil {
			return err
		}
		_, err := tx.CreateProject(domain.Project{
			CUP: "CUP1", Name: "Beam", Budget: decimal.NewFromInt(5000), StartDate: domain.Date(2020, 1, 1),
			ReferentBadge: "B001", ResponsibleBadge: "B001", LabNames: []string{"Optics"},
		})
		return err
	})
	return err
}

func TestStorePersistsRecordsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "labcore.db")
	store := openTestStore(t, path)
	if err := seed(ctx, store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if store.Path() != path || store.DB() == nil {
		t.Fatalf("unexpected store handles")
	}
	_ = store.Close()

	reopened := openTestStore(t, path)
	for kind, want := range map[domain.EntityType]int{
		domain.EntityPermanentEmployee: 1,
		domain.EntityLab:               1,
		domain.EntityProject:           1,
		domain.EntityAffiliation:       1,
		domain.EntityCollaboration:     1,
		domain.EntityEquipment:         0,
	} {
		recs, err := reopened.ReadRecords(ctx, kind)
		if err != nil {
			t.Fatalf("read %s: %v", kind, err)
		}
		if len(recs) != want {
			t.Fatalf("expected %d %s records, got %d", want, kind, len(recs))
		}
	}
	if len(reopened.ExportState().Labs) != 0 {
		t.Fatalf("expected registry to start empty until loaded")
	}
}

func TestUpdatesAndDeletesReachTheTable(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, filepath.Join(t.TempDir(), "labcore.db"))
	if err := seed(ctx, store); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.UpdateProject("CUP1", func(p *domain.Project) error {
			p.LabNames = nil
			p.Budget = decimal.NewFromInt(8000)
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.UpdateLab("Optics", func(l *domain.Lab) error {
			l.Affiliates = nil
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	projects, _ := store.ReadRecords(ctx, domain.EntityProject)
	if len(projects) != 1 || projects[0].Fields[2] != "8000" {
		t.Fatalf("expected updated budget, got %+v", projects)
	}
	for _, kind := range []domain.EntityType{domain.EntityAffiliation, domain.EntityCollaboration} {
		recs, _ := store.ReadRecords(ctx, kind)
		if len(recs) != 0 {
			t.Fatalf("expected %s records removed, got %+v", kind, recs)
		}
	}
}

func TestApplyRecordsRollsBackOnCanceledContext(t *testing.T) {
	store := openTestStore(t, filepath.Join(t.TempDir(), "labcore.db"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.ApplyRecords(ctx, []domain.RecordOp{{Kind: domain.EntityLab, Key: "x", Fields: []string{"x", "", "B"}}})
	if err == nil {
		t.Fatalf("expected canceled context error")
	}
	recs, err := store.ReadRecords(context.Background(), domain.EntityLab)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no records written, got %+v", recs)
	}
}
