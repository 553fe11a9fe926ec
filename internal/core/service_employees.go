package core

import (
	"context"
	"strconv"
	"time"

	"labcore/pkg/domain"
)

// AddPermanentEmployee registers emp. An empty tier is derived from tenure; a
// declared tier must match it. A declared executive gets a promotion dated at hire.
func (s *Service) AddPermanentEmployee(ctx context.Context, emp PermanentEmployee) (PermanentEmployee, Result, error) {
	var created PermanentEmployee
	res, err := s.transact(ctx, "add_permanent_employee", func(tx Transaction) (string, error) {
		if emp.HireDate.IsZero() {
			return emp.Badge, domain.Errorf(domain.KindTemporalIncoherence, domain.EntityPermanentEmployee, emp.Badge, "hire date is required")
		}
		derived := domain.TierOf(emp.HireDate, tx.Now())
		if emp.Tier == "" {
			emp.Tier = derived
		}
		if emp.Tier != derived {
			return emp.Badge, domain.Errorf(domain.KindTemporalIncoherence, domain.EntityPermanentEmployee, emp.Badge,
				"declared tier %s, tenure since %s gives %s", emp.Tier, domain.FormatDate(emp.HireDate), derived)
		}
		executive := emp.Executive
		emp.Executive = false
		if _, err := tx.CreatePermanentEmployee(emp); err != nil {
			return emp.Badge, err
		}
		if _, _, err := syncTierEvents(tx, emp.Badge); err != nil {
			return emp.Badge, err
		}
		if executive {
			promotion := mirrorEvent(emp.Badge, true, emp.HireDate)
			if _, err := applyExecutiveEdit(tx, emp.Badge, ExecutiveEdit{Add: &promotion}); err != nil {
				return emp.Badge, err
			}
		}
		created, _ = tx.Snapshot().FindPermanentEmployee(emp.Badge)
		return emp.Badge, nil
	})
	return created, res, err
}

// ModifyPermanentEmployee applies mutator to badge. A hire date change
// regenerates the tier events; a tier edit alone must match the tenure; an
// executive flip appends the mirror event dated today.
func (s *Service) ModifyPermanentEmployee(ctx context.Context, badge string, mutator func(*PermanentEmployee) error) (PermanentEmployee, Result, error) {
	var updated PermanentEmployee
	res, err := s.transact(ctx, "modify_permanent_employee", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindPermanentEmployee(badge)
		if !ok {
			return badge, domain.NotFound(domain.EntityPermanentEmployee, badge)
		}
		next := current
		if err := mutator(&next); err != nil {
			return badge, err
		}
		next.Badge = badge
		today := tx.Now()
		hireChanged := !domain.DateOf(next.HireDate).Equal(domain.DateOf(current.HireDate))
		derived := domain.TierOf(next.HireDate, today)
		if !hireChanged && next.Tier != current.Tier && next.Tier != derived {
			return badge, domain.Errorf(domain.KindTemporalIncoherence, domain.EntityPermanentEmployee, badge,
				"tier %s does not match tenure tier %s", next.Tier, derived)
		}
		if ev, outside := executiveEventsOutside(view.ListCareerEvents(badge), next.HireDate, next.EndDate); outside {
			return badge, domain.Errorf(domain.KindTemporalIncoherence, domain.EntityCareerEvent, string(ev.Key()),
				"executive event on %s falls outside the employment span", domain.FormatDate(ev.Date))
		}
		wantExecutive := next.Executive
		next.Executive = current.Executive
		next.Tier = derived
		if _, err := tx.UpdatePermanentEmployee(badge, func(e *PermanentEmployee) error {
			*e = next
			return nil
		}); err != nil {
			return badge, err
		}
		if _, _, err := syncTierEvents(tx, badge); err != nil {
			return badge, err
		}
		if wantExecutive != current.Executive {
			flip := mirrorEvent(badge, wantExecutive, today)
			if _, err := applyExecutiveEdit(tx, badge, ExecutiveEdit{Add: &flip}); err != nil {
				return badge, err
			}
		}
		updated, _ = tx.Snapshot().FindPermanentEmployee(badge)
		return badge, nil
	})
	return updated, res, err
}

// DeletePermanentEmployee drops the affiliations and career events of badge,
// then removes it. Directors and project role holders are rejected.
func (s *Service) DeletePermanentEmployee(ctx context.Context, badge string) (Result, error) {
	return s.transact(ctx, "delete_permanent_employee", func(tx Transaction) (string, error) {
		emp, ok := tx.Snapshot().FindPermanentEmployee(badge)
		if !ok {
			return badge, domain.NotFound(domain.EntityPermanentEmployee, badge)
		}
		switch {
		case len(emp.DirectedLabs) > 0:
			return badge, domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, badge,
				"still directs lab %q", emp.DirectedLabs[0])
		case len(emp.ReferentProjects) > 0:
			return badge, domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, badge,
				"still referent of project %q", emp.ReferentProjects[0])
		case len(emp.ResponsibleProjects) > 0:
			return badge, domain.Errorf(domain.KindReferentialViolation, domain.EntityPermanentEmployee, badge,
				"still responsible for project %q", emp.ResponsibleProjects[0])
		}
		for _, lab := range emp.Labs {
			if _, err := tx.UpdateLab(lab, func(l *Lab) error {
				l.Affiliates = removeString(l.Affiliates, badge)
				return nil
			}); err != nil {
				return badge, err
			}
		}
		for _, ev := range emp.CareerEvents {
			if err := tx.DeleteCareerEvent(ev.Key()); err != nil {
				return badge, err
			}
		}
		return badge, tx.DeletePermanentEmployee(badge)
	})
}

// SetExecutive flips the executive flag of badge by appending the mirror
// event on date (today when zero). Setting the current value is a no-op.
func (s *Service) SetExecutive(ctx context.Context, badge string, executive bool, date time.Time) (PermanentEmployee, Result, error) {
	var updated PermanentEmployee
	res, err := s.transact(ctx, "set_executive", func(tx Transaction) (string, error) {
		emp, ok := tx.Snapshot().FindPermanentEmployee(badge)
		if !ok {
			return badge, domain.NotFound(domain.EntityPermanentEmployee, badge)
		}
		if emp.Executive == executive {
			updated = emp
			return badge, nil
		}
		if date.IsZero() {
			date = tx.Now()
		}
		flip := mirrorEvent(badge, executive, date)
		var err error
		updated, err = applyExecutiveEdit(tx, badge, ExecutiveEdit{Add: &flip})
		return badge, err
	})
	return updated, res, err
}

// AddExecutiveEvent inserts a promotion or demotion into the history of ev.Badge.
func (s *Service) AddExecutiveEvent(ctx context.Context, ev CareerEvent) (PermanentEmployee, Result, error) {
	return s.executiveEdit(ctx, "add_executive_event", ev.Badge, ExecutiveEdit{Add: &ev})
}

// MoveExecutiveEvent re-dates an existing executive event.
func (s *Service) MoveExecutiveEvent(ctx context.Context, ev CareerEvent, date time.Time) (PermanentEmployee, Result, error) {
	moved := ev
	moved.Date = date
	return s.executiveEdit(ctx, "move_executive_event", ev.Badge, ExecutiveEdit{Remove: &ev, Add: &moved})
}

// RemoveExecutiveEvent deletes an executive event.
func (s *Service) RemoveExecutiveEvent(ctx context.Context, ev CareerEvent) (PermanentEmployee, Result, error) {
	return s.executiveEdit(ctx, "remove_executive_event", ev.Badge, ExecutiveEdit{Remove: &ev})
}

func (s *Service) executiveEdit(ctx context.Context, operation, badge string, edit ExecutiveEdit) (PermanentEmployee, Result, error) {
	var updated PermanentEmployee
	res, err := s.transact(ctx, operation, func(tx Transaction) (string, error) {
		var err error
		updated, err = applyExecutiveEdit(tx, badge, edit)
		return badge, err
	})
	return updated, res, err
}

// RefreshCareers re-derives every tier as of today and returns the badges
// whose tier or tier events changed.
func (s *Service) RefreshCareers(ctx context.Context) ([]string, Result, error) {
	var changed []string
	res, err := s.transact(ctx, "refresh_careers", func(tx Transaction) (string, error) {
		changed = changed[:0]
		for _, emp := range tx.Snapshot().ListPermanentEmployees() {
			_, didChange, err := syncTierEvents(tx, emp.Badge)
			if err != nil {
				return emp.Badge, err
			}
			if didChange {
				changed = append(changed, emp.Badge)
			}
		}
		return strconv.Itoa(len(changed)), nil
	})
	if err != nil {
		return nil, res, err
	}
	return changed, res, nil
}

func removeString(values []string, v string) []string {
	out := values[:0:0]
	for _, value := range values {
		if value != v {
			out = append(out, value)
		}
	}
	return out
}
