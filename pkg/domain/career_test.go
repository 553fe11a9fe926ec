package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestTierOfThresholds(t *testing.T) {
	hire := Date(2021, 6, 1)
	cases := []struct {
		today time.Time
		want  Tier
	}{
		{Date(2021, 6, 1), TierJunior},
		{Date(2024, 5, 31), TierJunior},
		{Date(2024, 6, 1), TierMiddle},
		{time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC), TierMiddle},
		{Date(2028, 5, 31), TierMiddle},
		{Date(2028, 6, 1), TierSenior},
		{Date(2040, 1, 1), TierSenior},
	}
	for _, tc := range cases {
		if got := TierOf(hire, tc.today); got != tc.want {
			t.Errorf("TierOf(%s) = %s, want %s", FormatDate(tc.today), got, tc.want)
		}
	}
}

func TestLeapDayHireThresholds(t *testing.T) {
	hire := Date(2020, 2, 29)
	if got := MiddleThreshold(hire); !got.Equal(Date(2023, 3, 1)) {
		t.Fatalf("middle threshold = %s", FormatDate(got))
	}
	if got := SeniorThreshold(hire); !got.Equal(Date(2027, 3, 1)) {
		t.Fatalf("senior threshold = %s", FormatDate(got))
	}
}

func TestTierEvents(t *testing.T) {
	hire := Date(2010, 1, 1)
	if got := TierEvents("B1", hire, Date(2012, 12, 31)); len(got) != 0 {
		t.Fatalf("expected no events for a junior, got %v", got)
	}
	got := TierEvents("B1", hire, Date(2024, 6, 1))
	want := []CareerEvent{
		{Type: EventTierMiddle, Date: Date(2013, 1, 1), Badge: "B1"},
		{Type: EventTierSenior, Date: Date(2017, 1, 1), Badge: "B1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TierEvents = %v, want %v", got, want)
	}
}

func TestSortCareerEventsSameDay(t *testing.T) {
	d := Date(2020, 1, 1)
	events := []CareerEvent{
		{Type: EventRemovedExecutive, Date: d},
		{Type: EventPromotedExecutive, Date: d},
		{Type: EventTierSenior, Date: d},
		{Type: EventTierMiddle, Date: Date(2019, 1, 1)},
	}
	SortCareerEvents(events)
	var got []CareerEventType
	for _, e := range events {
		got = append(got, e.Type)
	}
	want := []CareerEventType{EventTierMiddle, EventTierSenior, EventPromotedExecutive, EventRemovedExecutive}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestValidateExecutiveSequence(t *testing.T) {
	p := func(y int) CareerEvent {
		return CareerEvent{Type: EventPromotedExecutive, Date: Date(y, 1, 1), Badge: "B1"}
	}
	r := func(y int) CareerEvent {
		return CareerEvent{Type: EventRemovedExecutive, Date: Date(y, 1, 1), Badge: "B1"}
	}
	tier := CareerEvent{Type: EventTierMiddle, Date: Date(2000, 1, 1), Badge: "B1"}
	cases := []struct {
		name   string
		events []CareerEvent
		ok     bool
	}{
		{"none", nil, true},
		{"tier only", []CareerEvent{tier}, true},
		{"promotion", []CareerEvent{p(2020)}, true},
		{"alternating", []CareerEvent{r(2021), p(2022), p(2020), tier}, true},
		{"same day removal", []CareerEvent{p(2020), r(2020)}, true},
		{"removal first", []CareerEvent{r(2019), p(2020)}, false},
		{"lone removal", []CareerEvent{r(2019)}, false},
		{"double promotion", []CareerEvent{p(2020), p(2021)}, false},
		{"double promotion before removal", []CareerEvent{p(2020), p(2021), r(2022)}, false},
		{"double removal", []CareerEvent{p(2020), r(2021), r(2022)}, false},
		{"repromotion on removal day", []CareerEvent{p(2020), r(2021), p(2021)}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExecutiveSequence(tc.events)
			if tc.ok {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			if !errors.Is(err, KindSequenceViolation) {
				t.Fatalf("expected sequence violation, got %v", err)
			}
		})
	}
}

func TestExecutiveStateFromEvents(t *testing.T) {
	events := []CareerEvent{
		{Type: EventPromotedExecutive, Date: Date(2020, 1, 1)},
		{Type: EventRemovedExecutive, Date: Date(2021, 1, 1)},
		{Type: EventTierMiddle, Date: Date(2022, 1, 1)},
	}
	if ExecutiveFromEvents(events) {
		t.Fatalf("expected removal to clear the flag")
	}
	promoted, removed := LatestExecutiveDates(events)
	if promoted == nil || !promoted.Equal(Date(2020, 1, 1)) || removed == nil || !removed.Equal(Date(2021, 1, 1)) {
		t.Fatalf("unexpected latest dates %v %v", promoted, removed)
	}
	events = append(events, CareerEvent{Type: EventPromotedExecutive, Date: Date(2023, 1, 1)})
	if !ExecutiveFromEvents(events) {
		t.Fatalf("expected repromotion to set the flag")
	}
	if ExecutiveFromEvents(nil) {
		t.Fatalf("expected no events to mean not executive")
	}
}
