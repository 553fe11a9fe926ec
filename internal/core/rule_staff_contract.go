package core

import (
	"context"

	"labcore/pkg/domain"
)

const staffContractRuleName = "staff_contract"

// NewStaffContractRule keeps project employee contracts inside the project
// they are charged to.
func NewStaffContractRule() domain.Rule {
	return staffContractRule{}
}

type staffContractRule struct{}

func (staffContractRule) Name() string { return staffContractRuleName }

func (staffContractRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := newTouchedKeys(changes)
	res := domain.Result{}
	for _, pe := range view.ListProjectEmployees() {
		_, staffTouched := touched.staff[pe.Badge]
		_, projectTouched := touched.projects[pe.ProjectCUP]
		if !staffTouched && !projectTouched {
			continue
		}
		project, ok := view.FindProject(pe.ProjectCUP)
		if !ok {
			continue
		}
		if msg := contractProblem(pe, project); msg != "" {
			res.Violations = append(res.Violations, blockf(staffContractRuleName, domain.KindTemporalIncoherence,
				domain.EntityProjectEmployee, pe.Badge, "%s", msg))
		}
	}
	return res, nil
}

func contractProblem(pe domain.ProjectEmployee, project domain.Project) string {
	expiry := domain.DateOf(pe.ExpiryDate)
	if domain.DateOf(pe.HireDate).After(expiry) {
		return "hire date " + domain.FormatDate(pe.HireDate) + " follows expiry " + domain.FormatDate(expiry)
	}
	if project.EndDate != nil && expiry.After(domain.DateOf(*project.EndDate)) {
		return "contract expiry " + domain.FormatDate(expiry) + " follows project end " + domain.FormatDate(*project.EndDate)
	}
	return ""
}
