package core

import (
	"github.com/shopspring/decimal"

	"labcore/pkg/domain"
)

// BudgetGuard checks the half-budget ceilings of a project. Totals are
// recomputed from the view on every call.
type BudgetGuard struct {
	view domain.RuleView
}

// NewBudgetGuard returns a guard over view.
func NewBudgetGuard(view domain.RuleView) BudgetGuard {
	return BudgetGuard{view: view}
}

func categoryEntity(category domain.CostCategory) domain.EntityType {
	if category == domain.CategoryStaff {
		return domain.EntityProjectEmployee
	}
	return domain.EntityEquipment
}

func (g BudgetGuard) total(category domain.CostCategory, cup string) decimal.Decimal {
	return domain.CostTotalsByProject(g.view)[cup].Of(category)
}

// CanAdd rejects cost when it would push the category total of cup above half the budget.
func (g BudgetGuard) CanAdd(category domain.CostCategory, cup string, cost decimal.Decimal) error {
	project, ok := g.view.FindProject(cup)
	if !ok {
		return domain.Errorf(domain.KindReferentialViolation, categoryEntity(category), "", "project %q not found", cup)
	}
	return checkCeiling(category, project, g.total(category, cup).Add(cost))
}

// CanEdit checks replacing oldCost charged to oldCUP with newCost charged to
// newCUP. Moving to another project only needs the new project to accept the
// cost; the old total can only shrink.
func (g BudgetGuard) CanEdit(category domain.CostCategory, oldCUP, newCUP string, oldCost, newCost decimal.Decimal) error {
	if oldCUP != newCUP {
		return g.CanAdd(category, newCUP, newCost)
	}
	project, ok := g.view.FindProject(newCUP)
	if !ok {
		return domain.Errorf(domain.KindReferentialViolation, categoryEntity(category), "", "project %q not found", newCUP)
	}
	return checkCeiling(category, project, g.total(category, newCUP).Sub(oldCost).Add(newCost))
}

// CanRebudget rejects newBudget when either current total of cup exceeds its half.
func (g BudgetGuard) CanRebudget(cup string, newBudget decimal.Decimal) error {
	project, ok := g.view.FindProject(cup)
	if !ok {
		return domain.NotFound(domain.EntityProject, cup)
	}
	if !newBudget.IsPositive() {
		return domain.Errorf(domain.KindBudgetExceeded, domain.EntityProject, cup, "budget must be positive")
	}
	project.Budget = newBudget
	totals := domain.CostTotalsByProject(g.view)[cup]
	for _, category := range []domain.CostCategory{domain.CategoryEquipment, domain.CategoryStaff} {
		if err := checkCeiling(category, project, totals.Of(category)); err != nil {
			return err
		}
	}
	return nil
}

func checkCeiling(category domain.CostCategory, project domain.Project, total decimal.Decimal) error {
	ceiling := domain.HalfBudget(project.Budget)
	if total.GreaterThan(ceiling) {
		return domain.Errorf(domain.KindBudgetExceeded, domain.EntityProject, project.CUP,
			"%s cost %s exceeds half budget %s", category, total.String(), ceiling.String())
	}
	return nil
}
