package core

import (
	"fmt"

	"labcore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in invariant set.
// Every rule blocks; the engine is the in-transaction backstop behind the
// service-level Career Ledger and Budget Guard checks.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewCareerConsistencyRule())
	engine.Register(NewBudgetCeilingRule())
	engine.Register(NewLabDirectorRule())
	engine.Register(NewProjectRolesRule())
	engine.Register(NewIdentityRule())
	engine.Register(NewEquipmentHostingRule())
	engine.Register(NewStaffContractRule())
	return engine
}

// touchedKeys indexes the natural keys affected by a transaction.
type touchedKeys struct {
	employees map[string]struct{}
	staff     map[string]struct{}
	projects  map[string]struct{}
	labs      map[string]struct{}
	taxIDs    map[string]struct{}
}

func newTouchedKeys(changes []domain.Change) touchedKeys {
	t := touchedKeys{
		employees: make(map[string]struct{}),
		staff:     make(map[string]struct{}),
		projects:  make(map[string]struct{}),
		labs:      make(map[string]struct{}),
		taxIDs:    make(map[string]struct{}),
	}
	for _, change := range changes {
		for _, v := range []any{change.Before, change.After} {
			t.add(v)
		}
		switch change.Entity {
		case domain.EntityPermanentEmployee:
			t.employees[change.Key] = struct{}{}
		case domain.EntityProjectEmployee:
			t.staff[change.Key] = struct{}{}
		case domain.EntityProject:
			t.projects[change.Key] = struct{}{}
		case domain.EntityLab:
			t.labs[change.Key] = struct{}{}
		}
	}
	return t
}

func (t touchedKeys) add(v any) {
	switch e := v.(type) {
	case domain.PermanentEmployee:
		t.employees[e.Badge] = struct{}{}
		if e.TaxID != "" {
			t.taxIDs[e.TaxID] = struct{}{}
		}
	case domain.ProjectEmployee:
		t.staff[e.Badge] = struct{}{}
		t.projects[e.ProjectCUP] = struct{}{}
		if e.TaxID != "" {
			t.taxIDs[e.TaxID] = struct{}{}
		}
	case domain.CareerEvent:
		t.employees[e.Badge] = struct{}{}
	case domain.Equipment:
		t.projects[e.ProjectCUP] = struct{}{}
		if e.LabName != nil {
			t.labs[*e.LabName] = struct{}{}
		}
	case domain.Lab:
		t.employees[e.DirectorBadge] = struct{}{}
	}
}

func (t touchedKeys) hasEmployee(badge string) bool {
	_, ok := t.employees[badge]
	return ok
}

func blockf(rule string, kind domain.ErrorKind, entity domain.EntityType, id, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Entity:   entity,
		EntityID: id,
	}
}
