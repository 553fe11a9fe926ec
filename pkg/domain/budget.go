package domain

import "github.com/shopspring/decimal"

// CostCategory identifies one of the two independently capped cost pools of a project.
type CostCategory string

// Cost categories. Each may consume at most half of the project budget.
const (
	CategoryEquipment CostCategory = "equipment"
	CategoryStaff     CostCategory = "staff"
)

var two = decimal.NewFromInt(2)

// HalfBudget returns the ceiling of a single cost category.
func HalfBudget(budget decimal.Decimal) decimal.Decimal {
	return budget.Div(two)
}

// CostTotals holds the running totals of a project per category.
type CostTotals struct {
	Equipment decimal.Decimal
	Staff     decimal.Decimal
}

// Of returns the total for category.
func (t CostTotals) Of(category CostCategory) decimal.Decimal {
	if category == CategoryStaff {
		return t.Staff
	}
	return t.Equipment
}

// CostTotalsByProject sums equipment and staff cost per owning project.
func CostTotalsByProject(view RuleView) map[string]CostTotals {
	totals := make(map[string]CostTotals)
	for _, eq := range view.ListEquipment() {
		t := totals[eq.ProjectCUP]
		t.Equipment = t.Equipment.Add(eq.Cost)
		totals[eq.ProjectCUP] = t
	}
	for _, pe := range view.ListProjectEmployees() {
		t := totals[pe.ProjectCUP]
		t.Staff = t.Staff.Add(pe.Cost)
		totals[pe.ProjectCUP] = t
	}
	return totals
}
