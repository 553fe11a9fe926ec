package core

import (
	"context"
	"sort"
	"time"

	"labcore/pkg/domain"
)

const identityRuleName = "identity"

// NewIdentityRule keeps one tax id bound to one person: never both a permanent
// and a project employee, one biography, and no overlapping tenures.
func NewIdentityRule() domain.Rule {
	return identityRule{}
}

type identityRule struct{}

func (identityRule) Name() string { return identityRuleName }

func (identityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := newTouchedKeys(changes)
	res := domain.Result{}
	if len(touched.taxIDs) == 0 {
		return res, nil
	}
	byTaxID := make(map[string][]identityRecord)
	for _, e := range view.ListPermanentEmployees() {
		if _, ok := touched.taxIDs[e.TaxID]; ok {
			byTaxID[e.TaxID] = append(byTaxID[e.TaxID], permanentIdentity(e))
		}
	}
	for _, e := range view.ListProjectEmployees() {
		if _, ok := touched.taxIDs[e.TaxID]; ok {
			byTaxID[e.TaxID] = append(byTaxID[e.TaxID], staffIdentity(e))
		}
	}
	for taxID, group := range byTaxID {
		if err := checkIdentity(taxID, group); err != nil {
			res.Violations = append(res.Violations, blockf(identityRuleName, err.Kind, err.Entity, err.Key, "%s", err.Message))
		}
	}
	return res, nil
}

// identityRecord is the biography and tenure of one employee record.
type identityRecord struct {
	kind    domain.EntityType
	badge   string
	name    string
	surname string
	birth   time.Time
	start   time.Time
	end     *time.Time
}

func permanentIdentity(e domain.PermanentEmployee) identityRecord {
	var end *time.Time
	if e.EndDate != nil {
		d := domain.DateOf(*e.EndDate)
		end = &d
	}
	return identityRecord{
		kind: domain.EntityPermanentEmployee, badge: e.Badge, name: e.Name, surname: e.Surname,
		birth: domain.DateOf(e.BirthDate), start: domain.DateOf(e.HireDate), end: end,
	}
}

func staffIdentity(e domain.ProjectEmployee) identityRecord {
	expiry := domain.DateOf(e.ExpiryDate)
	return identityRecord{
		kind: domain.EntityProjectEmployee, badge: e.Badge, name: e.Name, surname: e.Surname,
		birth: domain.DateOf(e.BirthDate), start: domain.DateOf(e.HireDate), end: &expiry,
	}
}

// checkIdentity validates the records sharing taxID.
func checkIdentity(taxID string, group []identityRecord) *domain.ValidationError {
	if len(group) < 2 {
		return nil
	}
	sort.Slice(group, func(i, j int) bool {
		if !group[i].start.Equal(group[j].start) {
			return group[i].start.Before(group[j].start)
		}
		return group[i].badge < group[j].badge
	})
	first := group[0]
	for _, rec := range group[1:] {
		if rec.kind != first.kind {
			return domain.Errorf(domain.KindUniquenessViolation, rec.kind, rec.badge,
				"tax id %s also identifies %s %s", taxID, first.kind, first.badge)
		}
		if rec.name != first.name || rec.surname != first.surname || !rec.birth.Equal(first.birth) {
			return domain.Errorf(domain.KindUniquenessViolation, rec.kind, rec.badge,
				"tax id %s has a biography differing from %s", taxID, first.badge)
		}
	}
	var (
		latestEnd *time.Time
		holder    string
	)
	for i, rec := range group {
		if i > 0 && (latestEnd == nil || !latestEnd.Before(rec.start)) {
			return domain.Errorf(domain.KindTemporalIncoherence, rec.kind, rec.badge,
				"tenure starting %s overlaps %s", domain.FormatDate(rec.start), holder)
		}
		if i == 0 || (latestEnd != nil && (rec.end == nil || rec.end.After(*latestEnd))) {
			latestEnd = rec.end
			holder = rec.badge
		}
	}
	return nil
}
