package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"labcore/pkg/domain"
)

// The Check* predicates let a form validate input before submitting it. They
// never mutate and report false on any error.

func (s *Service) check(ctx context.Context, fn func(view TransactionView) bool) bool {
	ok := false
	if err := s.store.View(ctx, func(view TransactionView) error {
		ok = fn(view)
		return nil
	}); err != nil {
		return false
	}
	return ok
}

// CheckBadgeAvailable reports whether badge is free across both employee kinds.
func (s *Service) CheckBadgeAvailable(ctx context.Context, badge string) bool {
	return badge != "" && s.check(ctx, func(view TransactionView) bool {
		_, permanent := view.FindPermanentEmployee(badge)
		_, staff := view.FindProjectEmployee(badge)
		return !permanent && !staff
	})
}

// CheckCUPAvailable reports whether no project uses cup.
func (s *Service) CheckCUPAvailable(ctx context.Context, cup string) bool {
	return cup != "" && s.check(ctx, func(view TransactionView) bool {
		_, taken := view.FindProject(cup)
		return !taken
	})
}

// CheckLabNameAvailable reports whether no lab uses name.
func (s *Service) CheckLabNameAvailable(ctx context.Context, name string) bool {
	return name != "" && s.check(ctx, func(view TransactionView) bool {
		_, taken := view.FindLab(name)
		return !taken
	})
}

// CheckProjectNameAvailable reports whether name is free for a project other than exceptCUP.
func (s *Service) CheckProjectNameAvailable(ctx context.Context, name, exceptCUP string) bool {
	return name != "" && s.check(ctx, func(view TransactionView) bool {
		for _, p := range view.ListProjects() {
			if p.Name == name && p.CUP != exceptCUP {
				return false
			}
		}
		return true
	})
}

// CheckTier reports whether tier is the tenure tier of an employee hired on hire.
func (s *Service) CheckTier(ctx context.Context, hire time.Time, tier Tier) bool {
	return s.check(ctx, func(view TransactionView) bool {
		return domain.TierOf(hire, view.Today()) == tier
	})
}

// CheckDirector reports whether badge may direct a lab.
func (s *Service) CheckDirector(ctx context.Context, badge string) bool {
	return s.check(ctx, func(view TransactionView) bool {
		emp, ok := view.FindPermanentEmployee(badge)
		return directorProblem(emp, ok) == ""
	})
}

// CheckExecutiveEvent reports whether edit keeps the executive history of badge valid.
func (s *Service) CheckExecutiveEvent(ctx context.Context, badge string, edit ExecutiveEdit) bool {
	return s.check(ctx, func(view TransactionView) bool {
		_, err := planExecutiveEdit(view, badge, edit)
		return err == nil
	})
}

// CheckEquipmentCost reports whether equipment id may cost cost on project
// cup. An unknown id is checked as a new purchase.
func (s *Service) CheckEquipmentCost(ctx context.Context, id int64, cup string, cost decimal.Decimal) bool {
	return s.check(ctx, func(view TransactionView) bool {
		guard := NewBudgetGuard(view)
		if current, ok := view.FindEquipment(id); ok {
			return guard.CanEdit(domain.CategoryEquipment, current.ProjectCUP, cup, current.Cost, cost) == nil
		}
		return guard.CanAdd(domain.CategoryEquipment, cup, cost) == nil
	})
}

// CheckStaffCost reports whether staff badge may cost cost on project cup. An
// unknown badge is checked as a new hire.
func (s *Service) CheckStaffCost(ctx context.Context, badge, cup string, cost decimal.Decimal) bool {
	return s.check(ctx, func(view TransactionView) bool {
		guard := NewBudgetGuard(view)
		if current, ok := view.FindProjectEmployee(badge); ok {
			return guard.CanEdit(domain.CategoryStaff, current.ProjectCUP, cup, current.Cost, cost) == nil
		}
		return guard.CanAdd(domain.CategoryStaff, cup, cost) == nil
	})
}

// CheckRebudget reports whether project cup can take budget.
func (s *Service) CheckRebudget(ctx context.Context, cup string, budget decimal.Decimal) bool {
	return s.check(ctx, func(view TransactionView) bool {
		return NewBudgetGuard(view).CanRebudget(cup, budget) == nil
	})
}
