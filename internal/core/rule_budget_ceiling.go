package core

import (
	"context"

	"labcore/pkg/domain"
)

const budgetCeilingRuleName = "budget_ceiling"

// NewBudgetCeilingRule caps equipment and staff cost of every project at half
// its budget, independently.
func NewBudgetCeilingRule() domain.Rule {
	return budgetCeilingRule{}
}

type budgetCeilingRule struct{}

func (budgetCeilingRule) Name() string { return budgetCeilingRuleName }

func (budgetCeilingRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	totals := domain.CostTotalsByProject(view)
	res := domain.Result{}
	for _, project := range view.ListProjects() {
		ceiling := domain.HalfBudget(project.Budget)
		t := totals[project.CUP]
		for _, category := range []domain.CostCategory{domain.CategoryEquipment, domain.CategoryStaff} {
			if total := t.Of(category); total.GreaterThan(ceiling) {
				res.Violations = append(res.Violations, blockf(budgetCeilingRuleName, domain.KindBudgetExceeded,
					domain.EntityProject, project.CUP, "%s cost %s exceeds half budget %s", category, total, ceiling))
			}
		}
	}
	return res, nil
}
