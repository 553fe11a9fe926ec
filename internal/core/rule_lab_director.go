package core

import (
	"context"
	"fmt"

	"labcore/pkg/domain"
)

const labDirectorRuleName = "lab_director"

// NewLabDirectorRule requires every lab touched by a transaction, directly or
// through its director, to be directed by an active senior employee.
func NewLabDirectorRule() domain.Rule {
	return labDirectorRule{}
}

type labDirectorRule struct{}

func (labDirectorRule) Name() string { return labDirectorRuleName }

func (labDirectorRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := newTouchedKeys(changes)
	res := domain.Result{}
	for _, lab := range view.ListLabs() {
		_, labTouched := touched.labs[lab.Name]
		if !labTouched && !touched.hasEmployee(lab.DirectorBadge) {
			continue
		}
		director, ok := view.FindPermanentEmployee(lab.DirectorBadge)
		if problem := directorProblem(director, ok); problem != "" {
			res.Violations = append(res.Violations, blockf(labDirectorRuleName, domain.KindReferentialViolation,
				domain.EntityLab, lab.Name, "director %q %s", lab.DirectorBadge, problem))
		}
	}
	return res, nil
}

// directorProblem describes why emp cannot direct a lab, or returns "".
func directorProblem(emp domain.PermanentEmployee, found bool) string {
	switch {
	case !found:
		return "not found"
	case emp.Tier != domain.TierSenior:
		return fmt.Sprintf("is %s, not senior", emp.Tier)
	case !emp.Active():
		return fmt.Sprintf("terminated on %s", domain.FormatDate(*emp.EndDate))
	}
	return ""
}
