package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"labcore/internal/core"
	"labcore/internal/infra/persistence/records"
	"labcore/pkg/domain"
)

var testToday = domain.Date(2024, 6, 1)

func fixedClock(day time.Time) core.Clock {
	return core.ClockFunc(func() time.Time { return day.Add(9 * time.Hour) })
}

func newTestService(t *testing.T, opts ...core.ServiceOption) *core.Service {
	t.Helper()
	opts = append([]core.ServiceOption{core.WithClock(fixedClock(testToday))}, opts...)
	return core.NewInMemoryService(core.NewDefaultRulesEngine(), opts...)
}

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := domain.Date(y, m, d)
	return &t
}

func strPtr(s string) *string { return &s }

// seed registers B001 (senior executive), the Optics lab it directs and the
// Beam project CUP1 with a budget of 100000 collaborating with Optics.
func seed(t *testing.T, svc *core.Service) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := svc.AddPermanentEmployee(ctx, domain.PermanentEmployee{
		Badge: "B001", Name: "Ada", Surname: "Rossi", TaxID: "TAX1",
		BirthDate: domain.Date(1980, 1, 1), HireDate: domain.Date(2010, 1, 1), Executive: true,
	}); err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	if _, _, err := svc.AddLab(ctx, domain.Lab{Name: "Optics", Topic: "lasers", DirectorBadge: "B001"}); err != nil {
		t.Fatalf("seed lab: %v", err)
	}
	if _, _, err := svc.AddProject(ctx, domain.Project{
		CUP: "CUP1", Name: "Beam", Budget: amount(100000), StartDate: domain.Date(2020, 1, 1),
		ReferentBadge: "B001", ResponsibleBadge: "B001", LabNames: []string{"Optics"},
	}); err != nil {
		t.Fatalf("seed project: %v", err)
	}
}

func addJunior(t *testing.T, svc *core.Service, badge, taxID string) domain.PermanentEmployee {
	t.Helper()
	emp, _, err := svc.AddPermanentEmployee(context.Background(), domain.PermanentEmployee{
		Badge: badge, Name: "N" + badge, Surname: "S" + badge, TaxID: taxID,
		BirthDate: domain.Date(1995, 5, 5), HireDate: domain.Date(2023, 1, 1),
	})
	if err != nil {
		t.Fatalf("add %s: %v", badge, err)
	}
	return emp
}

func expectKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %s, got %v", kind, err)
	}
}

func eventTypes(events []domain.CareerEvent) []domain.CareerEventType {
	out := make([]domain.CareerEventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func exportRecords(t *testing.T, svc *core.Service) domain.RecordSet {
	t.Helper()
	src, ok := svc.Store().(domain.RecordSource)
	if !ok {
		t.Fatalf("store %T is not a record source", svc.Store())
	}
	set, err := records.ReadAll(context.Background(), src)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	return set
}
