package core

import (
	"context"

	"labcore/pkg/domain"
)

const careerConsistencyRuleName = "career_consistency"

// NewCareerConsistencyRule keeps the tier, tier events and executive flag of
// every touched employee aligned with the Career Ledger.
func NewCareerConsistencyRule() domain.Rule {
	return careerConsistencyRule{}
}

type careerConsistencyRule struct{}

func (careerConsistencyRule) Name() string { return careerConsistencyRuleName }

func (careerConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := newTouchedKeys(changes)
	today := view.Today()
	res := domain.Result{}
	for badge := range touched.employees {
		emp, ok := view.FindPermanentEmployee(badge)
		if !ok {
			continue
		}
		events := view.ListCareerEvents(badge)
		if derived := domain.TierOf(emp.HireDate, today); emp.Tier != derived {
			res.Violations = append(res.Violations, blockf(careerConsistencyRuleName, domain.KindTemporalIncoherence,
				domain.EntityPermanentEmployee, badge, "tier %s does not match tenure tier %s", emp.Tier, derived))
		}
		if !sameTierEvents(events, domain.TierEvents(badge, emp.HireDate, today)) {
			res.Violations = append(res.Violations, blockf(careerConsistencyRuleName, domain.KindTemporalIncoherence,
				domain.EntityPermanentEmployee, badge, "tier events out of sync with hire date %s", domain.FormatDate(emp.HireDate)))
		}
		if err := domain.ValidateExecutiveSequence(events); err != nil {
			res.Violations = append(res.Violations, blockf(careerConsistencyRuleName, domain.KindSequenceViolation,
				domain.EntityPermanentEmployee, badge, "%s", err.Error()))
		}
		if emp.Executive != domain.ExecutiveFromEvents(events) {
			res.Violations = append(res.Violations, blockf(careerConsistencyRuleName, domain.KindSequenceViolation,
				domain.EntityPermanentEmployee, badge, "executive flag %t disagrees with career events", emp.Executive))
		}
		for _, ev := range domain.ExecutiveEvents(events) {
			if ev.Date.Before(domain.DateOf(emp.HireDate)) {
				res.Violations = append(res.Violations, blockf(careerConsistencyRuleName, domain.KindTemporalIncoherence,
					domain.EntityCareerEvent, string(ev.Key()), "event precedes hire date %s", domain.FormatDate(emp.HireDate)))
			}
		}
	}
	return res, nil
}

// sameTierEvents reports whether the tier events among events are exactly want.
func sameTierEvents(events, want []domain.CareerEvent) bool {
	have := make(map[domain.CareerEventKey]struct{})
	for _, ev := range events {
		if ev.Type.IsTier() {
			have[ev.Key()] = struct{}{}
		}
	}
	if len(have) != len(want) {
		return false
	}
	for _, ev := range want {
		if _, ok := have[ev.Key()]; !ok {
			return false
		}
	}
	return true
}
