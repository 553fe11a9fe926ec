package core

import (
	"time"

	"labcore/pkg/domain"
)

// ExecutiveEdit is a hypothetical change to an employee's executive history.
// A move sets both fields; Remove must name an existing event.
type ExecutiveEdit struct {
	Remove *CareerEvent
	Add    *CareerEvent
}

// syncTierEvents aligns the tier events and tier of badge with its tenure as of
// the transaction date: stray tier events are discarded and missing ones created.
func syncTierEvents(tx Transaction, badge string) (PermanentEmployee, bool, error) {
	view := tx.Snapshot()
	emp, ok := view.FindPermanentEmployee(badge)
	if !ok {
		return PermanentEmployee{}, false, domain.NotFound(domain.EntityPermanentEmployee, badge)
	}
	today := tx.Now()
	want := domain.TierEvents(badge, emp.HireDate, today)
	wanted := make(map[domain.CareerEventKey]struct{}, len(want))
	for _, ev := range want {
		wanted[ev.Key()] = struct{}{}
	}
	changed := false
	present := make(map[domain.CareerEventKey]struct{})
	for _, ev := range view.ListCareerEvents(badge) {
		if !ev.Type.IsTier() {
			continue
		}
		if _, keep := wanted[ev.Key()]; keep {
			present[ev.Key()] = struct{}{}
			continue
		}
		if err := tx.DeleteCareerEvent(ev.Key()); err != nil {
			return PermanentEmployee{}, false, err
		}
		changed = true
	}
	for _, ev := range want {
		if _, ok := present[ev.Key()]; ok {
			continue
		}
		if _, err := tx.CreateCareerEvent(ev); err != nil {
			return PermanentEmployee{}, false, err
		}
		changed = true
	}
	if tier := domain.TierOf(emp.HireDate, today); emp.Tier != tier {
		if _, err := tx.UpdatePermanentEmployee(badge, func(e *PermanentEmployee) error {
			e.Tier = tier
			return nil
		}); err != nil {
			return PermanentEmployee{}, false, err
		}
		changed = true
	}
	emp, _ = tx.Snapshot().FindPermanentEmployee(badge)
	return emp, changed, nil
}

// planExecutiveEdit builds the working copy of badge's events with edit
// applied and validates it. Nothing is written.
func planExecutiveEdit(view domain.RuleView, badge string, edit ExecutiveEdit) ([]CareerEvent, error) {
	emp, ok := view.FindPermanentEmployee(badge)
	if !ok {
		return nil, domain.NotFound(domain.EntityPermanentEmployee, badge)
	}
	events := view.ListCareerEvents(badge)
	if edit.Remove != nil {
		target := normalizeEvent(*edit.Remove, badge)
		idx := -1
		for i, ev := range events {
			if ev.Key() == target.Key() {
				idx = i
				break
			}
		}
		if idx < 0 || !target.Type.IsExecutive() {
			return nil, domain.NotFound(domain.EntityCareerEvent, string(target.Key()))
		}
		events = append(events[:idx:idx], events[idx+1:]...)
	}
	if edit.Add != nil {
		added := normalizeEvent(*edit.Add, badge)
		key := string(added.Key())
		if !added.Type.IsExecutive() {
			return nil, domain.Errorf(domain.KindSequenceViolation, domain.EntityCareerEvent, key,
				"%s is not an executive event", added.Type)
		}
		if added.Date.Before(domain.DateOf(emp.HireDate)) {
			return nil, domain.Errorf(domain.KindTemporalIncoherence, domain.EntityCareerEvent, key,
				"event date %s precedes hire date %s", domain.FormatDate(added.Date), domain.FormatDate(emp.HireDate))
		}
		if emp.EndDate != nil && added.Date.After(domain.DateOf(*emp.EndDate)) {
			return nil, domain.Errorf(domain.KindTemporalIncoherence, domain.EntityCareerEvent, key,
				"event date %s follows end date %s", domain.FormatDate(added.Date), domain.FormatDate(*emp.EndDate))
		}
		for _, ev := range events {
			if ev.Key() == added.Key() {
				return nil, domain.Errorf(domain.KindDuplicateEntity, domain.EntityCareerEvent, key, "already registered")
			}
		}
		events = append(events, added)
	}
	domain.SortCareerEvents(events)
	if err := domain.ValidateExecutiveSequence(events); err != nil {
		return nil, err
	}
	return events, nil
}

// applyExecutiveEdit brings badge's tier up to date, validates edit and writes
// it, then sets the executive flag from the resulting history.
func applyExecutiveEdit(tx Transaction, badge string, edit ExecutiveEdit) (PermanentEmployee, error) {
	if _, _, err := syncTierEvents(tx, badge); err != nil {
		return PermanentEmployee{}, err
	}
	events, err := planExecutiveEdit(tx.Snapshot(), badge, edit)
	if err != nil {
		return PermanentEmployee{}, err
	}
	if edit.Remove != nil {
		if err := tx.DeleteCareerEvent(normalizeEvent(*edit.Remove, badge).Key()); err != nil {
			return PermanentEmployee{}, err
		}
	}
	if edit.Add != nil {
		if _, err := tx.CreateCareerEvent(normalizeEvent(*edit.Add, badge)); err != nil {
			return PermanentEmployee{}, err
		}
	}
	executive := domain.ExecutiveFromEvents(events)
	return tx.UpdatePermanentEmployee(badge, func(e *PermanentEmployee) error {
		e.Executive = executive
		return nil
	})
}

func normalizeEvent(ev CareerEvent, badge string) CareerEvent {
	ev.Badge = badge
	ev.Date = domain.DateOf(ev.Date)
	return ev
}

// mirrorEvent returns the executive event that flips the flag to executive.
func mirrorEvent(badge string, executive bool, date time.Time) CareerEvent {
	typ := domain.EventRemovedExecutive
	if executive {
		typ = domain.EventPromotedExecutive
	}
	return CareerEvent{Type: typ, Date: domain.DateOf(date), Badge: badge}
}

// executiveEventsOutside reports the first executive event that falls before
// hire or after end.
func executiveEventsOutside(events []CareerEvent, hire time.Time, end *time.Time) (CareerEvent, bool) {
	for _, ev := range domain.ExecutiveEvents(events) {
		if ev.Date.Before(domain.DateOf(hire)) {
			return ev, true
		}
		if end != nil && ev.Date.After(domain.DateOf(*end)) {
			return ev, true
		}
	}
	return CareerEvent{}, false
}
