package domain

import (
	"sort"
	"time"
)

// Tenure thresholds in calendar years. Reaching the anniversary counts.
const (
	MiddleAfterYears = 3
	SeniorAfterYears = 7
)

// MiddleThreshold returns the date a hire reaches the middle tier.
func MiddleThreshold(hire time.Time) time.Time {
	return DateOf(hire).AddDate(MiddleAfterYears, 0, 0)
}

// SeniorThreshold returns the date a hire reaches the senior tier.
func SeniorThreshold(hire time.Time) time.Time {
	return DateOf(hire).AddDate(SeniorAfterYears, 0, 0)
}

// TierOf derives the tier of an employee hired on hire as of today.
func TierOf(hire, today time.Time) Tier {
	day := DateOf(today)
	switch {
	case day.Before(MiddleThreshold(hire)):
		return TierJunior
	case day.Before(SeniorThreshold(hire)):
		return TierMiddle
	default:
		return TierSenior
	}
}

// TierEvents returns the exact set of tier events an employee hired on hire
// must carry as of today.
func TierEvents(badge string, hire, today time.Time) []CareerEvent {
	var events []CareerEvent
	tier := TierOf(hire, today)
	if tier.Rank() >= TierMiddle.Rank() {
		events = append(events, CareerEvent{Type: EventTierMiddle, Date: MiddleThreshold(hire), Badge: badge})
	}
	if tier == TierSenior {
		events = append(events, CareerEvent{Type: EventTierSenior, Date: SeniorThreshold(hire), Badge: badge})
	}
	return events
}

func eventOrder(t CareerEventType) int {
	switch t {
	case EventTierMiddle:
		return 0
	case EventTierSenior:
		return 1
	case EventPromotedExecutive:
		return 2
	default:
		return 3
	}
}

// SortCareerEvents orders events chronologically. On the same date a promotion
// sorts before a demotion.
func SortCareerEvents(events []CareerEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		di, dj := DateOf(events[i].Date), DateOf(events[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return eventOrder(events[i].Type) < eventOrder(events[j].Type)
	})
}

// ExecutiveEvents returns the executive events of events in chronological order.
func ExecutiveEvents(events []CareerEvent) []CareerEvent {
	var out []CareerEvent
	for _, e := range events {
		if e.Type.IsExecutive() {
			out = append(out, e)
		}
	}
	SortCareerEvents(out)
	return out
}

// ValidateExecutiveSequence checks that the executive events strictly
// alternate starting with a promotion. The events are treated as a working
// copy: the earliest remaining promotion is paired with the earliest remaining
// demotion until none are left.
func ValidateExecutiveSequence(events []CareerEvent) error {
	exec := ExecutiveEvents(events)
	if len(exec) == 0 {
		return nil
	}
	badge := exec[0].Badge
	var promotions, demotions []time.Time
	for _, e := range exec {
		if e.Type == EventPromotedExecutive {
			promotions = append(promotions, DateOf(e.Date))
		} else {
			demotions = append(demotions, DateOf(e.Date))
		}
	}
	for i := 0; ; i++ {
		if i >= len(demotions) {
			if len(promotions)-i > 1 {
				return Errorf(KindSequenceViolation, EntityCareerEvent, badge,
					"promotion on %s while already executive", FormatDate(promotions[i+1]))
			}
			return nil
		}
		if i >= len(promotions) {
			return Errorf(KindSequenceViolation, EntityCareerEvent, badge,
				"removal on %s has no preceding promotion", FormatDate(demotions[i]))
		}
		if demotions[i].Before(promotions[i]) {
			return Errorf(KindSequenceViolation, EntityCareerEvent, badge,
				"removal on %s predates promotion on %s", FormatDate(demotions[i]), FormatDate(promotions[i]))
		}
		if i+1 < len(promotions) && !demotions[i].Before(promotions[i+1]) {
			return Errorf(KindSequenceViolation, EntityCareerEvent, badge,
				"promotion on %s while already executive", FormatDate(promotions[i+1]))
		}
	}
}

// ExecutiveFromEvents reports whether the most recent executive event is a promotion.
func ExecutiveFromEvents(events []CareerEvent) bool {
	exec := ExecutiveEvents(events)
	if len(exec) == 0 {
		return false
	}
	return exec[len(exec)-1].Type == EventPromotedExecutive
}

// LatestExecutiveDates returns the most recent promotion and removal dates.
func LatestExecutiveDates(events []CareerEvent) (promoted, removed *time.Time) {
	for _, e := range ExecutiveEvents(events) {
		d := DateOf(e.Date)
		if e.Type == EventPromotedExecutive {
			promoted = &d
		} else {
			removed = &d
		}
	}
	return promoted, removed
}
