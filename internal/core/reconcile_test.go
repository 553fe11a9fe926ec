package core_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"labcore/internal/core"
	"labcore/internal/infra/persistence/memory"
	"labcore/internal/infra/persistence/records"
	"labcore/pkg/domain"
)

func permanentRecord(badge, taxID string, tier domain.Tier, hire time.Time, end *time.Time, executive bool) domain.Record {
	return records.EncodePermanentEmployee(domain.PermanentEmployee{
		Badge: badge, Name: "N" + badge, Surname: "S" + badge, TaxID: taxID,
		BirthDate: domain.Date(1980, 1, 1), Tier: tier, HireDate: hire, EndDate: end, Executive: executive,
	})
}

func eventRecord(badge string, typ domain.CareerEventType, date time.Time) domain.Record {
	return records.EncodeCareerEvent(domain.CareerEvent{Type: typ, Date: date, Badge: badge})
}

// baseDataset is a consistent registry as of testToday: B1 senior executive
// directing Optics, which collaborates on CUP1.
func baseDataset() domain.RecordSet {
	return domain.RecordSet{
		domain.EntityPermanentEmployee: {
			permanentRecord("B1", "T1", domain.TierSenior, domain.Date(2010, 1, 1), nil, true),
		},
		domain.EntityCareerEvent: {
			eventRecord("B1", domain.EventPromotedExecutive, domain.Date(2010, 1, 1)),
			eventRecord("B1", domain.EventTierMiddle, domain.Date(2013, 1, 1)),
			eventRecord("B1", domain.EventTierSenior, domain.Date(2017, 1, 1)),
		},
		domain.EntityLab: {
			records.EncodeLab(domain.Lab{Name: "Optics", Topic: "lasers", DirectorBadge: "B1"}),
		},
		domain.EntityProject: {
			records.EncodeProject(domain.Project{
				CUP: "CUP1", Name: "Beam", Budget: amount(100000), StartDate: domain.Date(2020, 1, 1),
				ReferentBadge: "B1", ResponsibleBadge: "B1",
			}),
		},
		domain.EntityCollaboration: {records.EncodeCollaboration("CUP1", "Optics")},
		domain.EntityAffiliation:   {records.EncodeAffiliation("B1", "Optics")},
	}
}

func reconcile(t *testing.T, raw domain.RecordSet) (domain.Snapshot, core.ReconcileReport, error) {
	t.Helper()
	return core.NewReconciler().Reconcile(context.Background(), raw, testToday)
}

func TestReconcileConsistentDatasetIsUnchanged(t *testing.T) {
	raw := baseDataset()
	snap, report, err := reconcile(t, raw)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Empty() || report.RunID == "" || !report.Today.Equal(testToday) {
		t.Fatalf("unexpected report %+v", report)
	}
	if ops := records.Diff(raw, records.Encode(snap)); len(ops) != 0 {
		t.Fatalf("expected no diff, got %+v", ops)
	}
	if got := snap.Projects["CUP1"].LabNames; !reflect.DeepEqual(got, []string{"Optics"}) {
		t.Fatalf("expected collaboration restored, got %v", got)
	}
}

func TestReconcileHealsCareers(t *testing.T) {
	cases := []struct {
		name        string
		employee    domain.Record
		events      []domain.Record
		healedTier  bool
		synthesized []domain.CareerEvent
		discarded   []domain.CareerEvent
	}{
		{
			name:       "stale tier and missing tier events",
			employee:   permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2015, 1, 1), nil, false),
			healedTier: true,
			synthesized: []domain.CareerEvent{
				{Type: domain.EventTierMiddle, Date: domain.Date(2018, 1, 1), Badge: "B2"},
				{Type: domain.EventTierSenior, Date: domain.Date(2022, 1, 1), Badge: "B2"},
			},
		},
		{
			name:      "stray tier event",
			employee:  permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), nil, false),
			events:    []domain.Record{eventRecord("B2", domain.EventTierMiddle, domain.Date(2024, 1, 1))},
			discarded: []domain.CareerEvent{{Type: domain.EventTierMiddle, Date: domain.Date(2024, 1, 1), Badge: "B2"}},
		},
		{
			name:     "executive flag without promotion",
			employee: permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), nil, true),
			synthesized: []domain.CareerEvent{
				{Type: domain.EventPromotedExecutive, Date: domain.Date(2023, 1, 1), Badge: "B2"},
			},
		},
		{
			name:     "executive flag after a removal",
			employee: permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), nil, true),
			events: []domain.Record{
				eventRecord("B2", domain.EventPromotedExecutive, domain.Date(2023, 2, 1)),
				eventRecord("B2", domain.EventRemovedExecutive, domain.Date(2023, 3, 1)),
			},
			synthesized: []domain.CareerEvent{
				{Type: domain.EventPromotedExecutive, Date: domain.Date(2023, 3, 2), Badge: "B2"},
			},
		},
		{
			name:     "cleared flag with trailing promotion",
			employee: permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), nil, false),
			events:   []domain.Record{eventRecord("B2", domain.EventPromotedExecutive, domain.Date(2023, 2, 1))},
			synthesized: []domain.CareerEvent{
				{Type: domain.EventRemovedExecutive, Date: testToday, Badge: "B2"},
			},
		},
		{
			name:     "cleared flag of a terminated employee",
			employee: permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), datePtr(2023, 9, 30), false),
			events:   []domain.Record{eventRecord("B2", domain.EventPromotedExecutive, domain.Date(2023, 2, 1))},
			synthesized: []domain.CareerEvent{
				{Type: domain.EventRemovedExecutive, Date: domain.Date(2023, 9, 30), Badge: "B2"},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := baseDataset()
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee], tc.employee)
			raw[domain.EntityCareerEvent] = append(raw[domain.EntityCareerEvent], tc.events...)

			snap, report, err := reconcile(t, raw)
			if err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			if got := len(report.HealedTiers) == 1; got != tc.healedTier {
				t.Fatalf("healed tiers %v", report.HealedTiers)
			}
			if !reflect.DeepEqual(report.SynthesizedEvents, tc.synthesized) {
				t.Fatalf("synthesized %+v, want %+v", report.SynthesizedEvents, tc.synthesized)
			}
			if !reflect.DeepEqual(report.DiscardedEvents, tc.discarded) {
				t.Fatalf("discarded %+v, want %+v", report.DiscardedEvents, tc.discarded)
			}

			emp := snap.PermanentEmployees["B2"]
			var events []domain.CareerEvent
			for _, ev := range snap.CareerEvents {
				if ev.Badge == "B2" {
					events = append(events, ev)
				}
			}
			if err := domain.ValidateExecutiveSequence(events); err != nil {
				t.Fatalf("healed history invalid: %v", err)
			}
			if emp.Executive != domain.ExecutiveFromEvents(events) {
				t.Fatalf("flag %t disagrees with healed events %+v", emp.Executive, events)
			}
			if emp.Tier != domain.TierOf(emp.HireDate, testToday) {
				t.Fatalf("tier %s not healed", emp.Tier)
			}
		})
	}
}

func TestReconcileRejectsBrokenDatasets(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(domain.RecordSet)
		step   int
		kind   domain.ErrorKind
	}{
		{"duplicate employee", func(raw domain.RecordSet) {
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee], raw[domain.EntityPermanentEmployee][0])
		}, 1, domain.KindDuplicateEntity},
		{"tier above tenure", func(raw domain.RecordSet) {
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
				permanentRecord("B2", "T2", domain.TierSenior, domain.Date(2023, 1, 1), nil, false))
		}, 1, domain.KindTemporalIncoherence},
		{"end before hire", func(raw domain.RecordSet) {
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
				permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), datePtr(2022, 1, 1), false))
		}, 1, domain.KindTemporalIncoherence},
		{"tax id shared with staff", func(raw domain.RecordSet) {
			raw[domain.EntityProjectEmployee] = append(raw[domain.EntityProjectEmployee],
				records.EncodeProjectEmployee(staffMember("P1", "T1", "CUP1", 10)))
		}, 1, domain.KindUniquenessViolation},
		{"event of unknown employee", func(raw domain.RecordSet) {
			raw[domain.EntityCareerEvent] = append(raw[domain.EntityCareerEvent], eventRecord("B9", domain.EventTierMiddle, domain.Date(2020, 1, 1)))
		}, 2, domain.KindReferentialViolation},
		{"event before hire", func(raw domain.RecordSet) {
			raw[domain.EntityCareerEvent] = append(raw[domain.EntityCareerEvent], eventRecord("B1", domain.EventRemovedExecutive, domain.Date(2009, 1, 1)))
		}, 2, domain.KindTemporalIncoherence},
		{"removal without promotion", func(raw domain.RecordSet) {
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
				permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), nil, false))
			raw[domain.EntityCareerEvent] = append(raw[domain.EntityCareerEvent], eventRecord("B2", domain.EventRemovedExecutive, domain.Date(2023, 5, 1)))
		}, 2, domain.KindSequenceViolation},
		{"executive event after end", func(raw domain.RecordSet) {
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
				permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), datePtr(2023, 6, 30), false))
			raw[domain.EntityCareerEvent] = append(raw[domain.EntityCareerEvent],
				eventRecord("B2", domain.EventPromotedExecutive, domain.Date(2023, 2, 1)),
				eventRecord("B2", domain.EventRemovedExecutive, domain.Date(2023, 7, 1)))
		}, 2, domain.KindTemporalIncoherence},
		{"executive flag after a removal on the end date", func(raw domain.RecordSet) {
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
				permanentRecord("B9", "T9", domain.TierSenior, domain.Date(2010, 1, 1), datePtr(2020, 6, 1), true))
			raw[domain.EntityCareerEvent] = append(raw[domain.EntityCareerEvent],
				eventRecord("B9", domain.EventPromotedExecutive, domain.Date(2015, 1, 1)),
				eventRecord("B9", domain.EventRemovedExecutive, domain.Date(2020, 6, 1)))
		}, 3, domain.KindTemporalIncoherence},
		{"executive flag after a removal today", func(raw domain.RecordSet) {
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
				permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), nil, true))
			raw[domain.EntityCareerEvent] = append(raw[domain.EntityCareerEvent],
				eventRecord("B2", domain.EventPromotedExecutive, domain.Date(2023, 2, 1)),
				eventRecord("B2", domain.EventRemovedExecutive, testToday))
		}, 3, domain.KindTemporalIncoherence},
		{"junior director", func(raw domain.RecordSet) {
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
				permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), nil, false))
			raw[domain.EntityLab] = append(raw[domain.EntityLab], records.EncodeLab(domain.Lab{Name: "Bio", DirectorBadge: "B2"}))
		}, 4, domain.KindReferentialViolation},
		{"zero budget", func(raw domain.RecordSet) {
			raw[domain.EntityProject] = append(raw[domain.EntityProject], records.EncodeProject(domain.Project{
				CUP: "CUP2", Name: "Free", Budget: amount(0), StartDate: domain.Date(2020, 1, 1), ReferentBadge: "B1", ResponsibleBadge: "B1",
			}))
		}, 5, domain.KindBudgetExceeded},
		{"project name reused", func(raw domain.RecordSet) {
			raw[domain.EntityProject] = append(raw[domain.EntityProject], records.EncodeProject(domain.Project{
				CUP: "CUP2", Name: "Beam", Budget: amount(10), StartDate: domain.Date(2020, 1, 1), ReferentBadge: "B1", ResponsibleBadge: "B1",
			}))
		}, 5, domain.KindUniquenessViolation},
		{"responsible not executive", func(raw domain.RecordSet) {
			raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
				permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2023, 1, 1), nil, false))
			raw[domain.EntityProject] = append(raw[domain.EntityProject], records.EncodeProject(domain.Project{
				CUP: "CUP2", Name: "Led", Budget: amount(10), StartDate: domain.Date(2024, 1, 1), ReferentBadge: "B1", ResponsibleBadge: "B2",
			}))
		}, 5, domain.KindReferentialViolation},
		{"too many collaborations", func(raw domain.RecordSet) {
			for _, name := range []string{"L2", "L3", "L4"} {
				raw[domain.EntityLab] = append(raw[domain.EntityLab], records.EncodeLab(domain.Lab{Name: name, DirectorBadge: "B1"}))
				raw[domain.EntityCollaboration] = append(raw[domain.EntityCollaboration], records.EncodeCollaboration("CUP1", name))
			}
		}, 5, domain.KindLimitExceeded},
		{"staff over half budget", func(raw domain.RecordSet) {
			raw[domain.EntityProjectEmployee] = append(raw[domain.EntityProjectEmployee],
				records.EncodeProjectEmployee(staffMember("P1", "S1", "CUP1", 30000)),
				records.EncodeProjectEmployee(staffMember("P2", "S2", "CUP1", 30000)))
		}, 6, domain.KindBudgetExceeded},
		{"staff badge of a permanent employee", func(raw domain.RecordSet) {
			raw[domain.EntityProjectEmployee] = append(raw[domain.EntityProjectEmployee],
				records.EncodeProjectEmployee(staffMember("B1", "S1", "CUP1", 10)))
		}, 6, domain.KindUniquenessViolation},
		{"staff of unknown project", func(raw domain.RecordSet) {
			raw[domain.EntityProjectEmployee] = append(raw[domain.EntityProjectEmployee],
				records.EncodeProjectEmployee(staffMember("P1", "S1", "CUP9", 10)))
		}, 6, domain.KindReferentialViolation},
		{"equipment in a lab outside the project", func(raw domain.RecordSet) {
			raw[domain.EntityLab] = append(raw[domain.EntityLab], records.EncodeLab(domain.Lab{Name: "Bio", DirectorBadge: "B1"}))
			raw[domain.EntityEquipment] = append(raw[domain.EntityEquipment], records.EncodeEquipment(domain.Equipment{
				ID: 1, Cost: amount(10), ProjectCUP: "CUP1", LabName: strPtr("Bio"),
			}))
		}, 7, domain.KindReferentialViolation},
		{"equipment over half budget", func(raw domain.RecordSet) {
			raw[domain.EntityEquipment] = append(raw[domain.EntityEquipment], records.EncodeEquipment(domain.Equipment{
				ID: 1, Cost: amount(50001), ProjectCUP: "CUP1",
			}))
		}, 7, domain.KindBudgetExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := baseDataset()
			tc.mutate(raw)
			_, _, err := reconcile(t, raw)
			var rerr *core.ReconcileError
			if !errors.As(err, &rerr) {
				t.Fatalf("expected reconcile error, got %v", err)
			}
			if rerr.Step != tc.step {
				t.Fatalf("expected step %d, got %d (%v)", tc.step, rerr.Step, err)
			}
			expectKind(t, err, tc.kind)
		})
	}
}

func TestReconcileRejectsMalformedLinks(t *testing.T) {
	raw := baseDataset()
	raw[domain.EntityCollaboration] = append(raw[domain.EntityCollaboration], domain.Record{Key: "CUP1|", Fields: []string{"CUP1"}})
	_, _, err := reconcile(t, raw)
	var rerr *core.ReconcileError
	var derr *records.DecodeError
	if !errors.As(err, &rerr) || rerr.Stage != core.StageLabs || !errors.As(err, &derr) {
		t.Fatalf("expected decode error in the labs stage, got %v", err)
	}
}

func TestReconcileDropsDanglingLinks(t *testing.T) {
	raw := baseDataset()
	raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
		permanentRecord("B3", "T3", domain.TierSenior, domain.Date(2015, 1, 1), datePtr(2020, 1, 1), false))
	raw[domain.EntityProject] = append(raw[domain.EntityProject], records.EncodeProject(domain.Project{
		CUP: "CUP2", Name: "Closed", Budget: amount(1000), StartDate: domain.Date(2020, 1, 1), EndDate: datePtr(2023, 1, 1),
		ReferentBadge: "B1", ResponsibleBadge: "B1",
	}))
	raw[domain.EntityEquipment] = append(raw[domain.EntityEquipment], records.EncodeEquipment(domain.Equipment{
		ID: 4, Description: "old scope", Cost: amount(10), ProjectCUP: "CUP2", LabName: strPtr("Optics"),
	}))
	raw[domain.EntityCollaboration] = append(raw[domain.EntityCollaboration],
		records.EncodeCollaboration("CUP2", "Optics"),
		records.EncodeCollaboration("CUP9", "Optics"),
		records.EncodeCollaboration("CUP1", "Nowhere"))
	raw[domain.EntityAffiliation] = append(raw[domain.EntityAffiliation],
		records.EncodeAffiliation("B3", "Optics"),
		records.EncodeAffiliation("B9", "Optics"),
		records.EncodeAffiliation("B1", "Nowhere"))

	snap, report, err := reconcile(t, raw)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	dropped := make(map[string]string)
	for _, link := range report.DroppedLinks {
		dropped[link.Key] = link.Reason
	}
	for _, key := range []string{"CUP2|Optics", "CUP9|Optics", "CUP1|Nowhere", "B3|Optics", "B9|Optics", "B1|Nowhere"} {
		if _, ok := dropped[key]; !ok {
			t.Fatalf("expected %s dropped, got %+v", key, report.DroppedLinks)
		}
	}
	if len(report.DroppedLinks) != 6 {
		t.Fatalf("expected six dropped links, got %+v", report.DroppedLinks)
	}
	if !reflect.DeepEqual(report.DetachedEquipment, []int64{4}) || snap.Equipment[4].LabName != nil {
		t.Fatalf("expected equipment 4 detached, got %v", report.DetachedEquipment)
	}
	if got := snap.Labs["Optics"].Affiliates; !reflect.DeepEqual(got, []string{"B1"}) {
		t.Fatalf("unexpected affiliates %v", got)
	}
}

func TestLoadReconcilesAndPersists(t *testing.T) {
	ctx := context.Background()
	raw := baseDataset()
	raw[domain.EntityPermanentEmployee] = append(raw[domain.EntityPermanentEmployee],
		permanentRecord("B2", "T2", domain.TierJunior, domain.Date(2015, 1, 1), nil, false))
	raw[domain.EntityAffiliation] = append(raw[domain.EntityAffiliation], records.EncodeAffiliation("B9", "Optics"))
	backend := records.NewDataset(raw)

	store := memory.NewStore(core.NewDefaultRulesEngine(), memory.WithClock(fixedClock(testToday).Now), memory.WithRecordSink(backend))
	svc := core.NewService(store)

	report, err := svc.Load(ctx, backend)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(report.HealedTiers) != 1 || len(report.SynthesizedEvents) != 2 || len(report.DroppedLinks) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	// healed tier, two tier events, one dropped affiliation
	if report.PersistedOps != 4 {
		t.Fatalf("expected four persisted ops, got %d", report.PersistedOps)
	}
	if ops := records.Diff(backend.Records(), records.Encode(store.ExportState())); len(ops) != 0 {
		t.Fatalf("expected backend to match the registry, got %+v", ops)
	}

	again, err := svc.Load(ctx, backend)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !again.Empty() {
		t.Fatalf("expected second load to be a no-op, got %+v", again)
	}
}

func TestLoadFailureLeavesRegistryUntouched(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seed(t, svc)
	before := exportRecords(t, svc)

	broken := baseDataset()
	broken[domain.EntityCareerEvent] = append(broken[domain.EntityCareerEvent], eventRecord("B9", domain.EventTierMiddle, domain.Date(2020, 1, 1)))
	if _, err := svc.Load(ctx, records.NewDataset(broken)); err == nil {
		t.Fatalf("expected load to fail")
	}
	if ops := records.Diff(before, exportRecords(t, svc)); len(ops) != 0 {
		t.Fatalf("expected registry untouched, got %+v", ops)
	}

	sink := records.NewDataset(nil)
	boom := errors.New("disk full")
	sink.FailWith(boom)
	store := memory.NewStore(core.NewDefaultRulesEngine(), memory.WithClock(fixedClock(testToday).Now), memory.WithRecordSink(sink))
	failing := core.NewService(store)
	if _, err := failing.Load(ctx, records.NewDataset(baseDataset())); !errors.Is(err, boom) {
		t.Fatalf("expected sink failure, got %v", err)
	}
	if len(store.ExportState().PermanentEmployees) != 0 {
		t.Fatalf("expected empty registry after failed persist")
	}
}
