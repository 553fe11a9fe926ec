// Package domain defines the core persistent entities, value types, career and
// budget primitives, and rule evaluation contracts used by labcore.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPermanentEmployee identifies a tenured staff record.
	EntityPermanentEmployee EntityType = "permanent_employee"
	// EntityProjectEmployee identifies a fixed-term staff record paid by one project.
	EntityProjectEmployee EntityType = "project_employee"
	// EntityCareerEvent identifies a dated tier or executive event.
	EntityCareerEvent EntityType = "career_event"
	// EntityProject identifies a funded project record.
	EntityProject EntityType = "project"
	// EntityLab identifies a laboratory record.
	EntityLab EntityType = "lab"
	// EntityEquipment identifies an equipment purchase record.
	EntityEquipment EntityType = "equipment"
	// EntityAffiliation identifies an employee-lab link.
	EntityAffiliation EntityType = "affiliation"
	// EntityCollaboration identifies a project-lab link.
	EntityCollaboration EntityType = "collaboration"
)

// Tier is the tenure-derived classification of a permanent employee.
type Tier string

// Canonical tiers ordered by seniority.
const (
	TierJunior Tier = "junior"
	TierMiddle Tier = "middle"
	TierSenior Tier = "senior"
)

// Rank orders tiers for comparisons; unknown tiers rank below junior.
func (t Tier) Rank() int {
	switch t {
	case TierJunior:
		return 1
	case TierMiddle:
		return 2
	case TierSenior:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is one of the canonical tiers.
func (t Tier) Valid() bool { return t.Rank() > 0 }

// CareerEventType enumerates the kinds of career events.
type CareerEventType string

// Career event types. Tier events are derived from tenure; executive events alternate.
const (
	EventTierMiddle        CareerEventType = "tier_middle"
	EventTierSenior        CareerEventType = "tier_senior"
	EventPromotedExecutive CareerEventType = "promoted_executive"
	EventRemovedExecutive  CareerEventType = "removed_executive"
)

// IsTier reports whether the event type is derived from tenure.
func (t CareerEventType) IsTier() bool {
	return t == EventTierMiddle || t == EventTierSenior
}

// IsExecutive reports whether the event type records an executive status change.
func (t CareerEventType) IsExecutive() bool {
	return t == EventPromotedExecutive || t == EventRemovedExecutive
}

// Valid reports whether t is a known event type.
func (t CareerEventType) Valid() bool { return t.IsTier() || t.IsExecutive() }

// PermanentEmployee represents a tenured member of staff.
type PermanentEmployee struct {
	Badge     string     `json:"badge"`
	Name      string     `json:"name"`
	Surname   string     `json:"surname"`
	TaxID     string     `json:"tax_id"`
	BirthDate time.Time  `json:"birth_date"`
	Tier      Tier       `json:"tier"`
	HireDate  time.Time  `json:"hire_date"`
	EndDate   *time.Time `json:"end_date"`
	Executive bool       `json:"executive"`
	Address   *string    `json:"address,omitempty"`

	CareerEvents        []CareerEvent `json:"career_events,omitempty"`
	DirectedLabs        []string      `json:"directed_labs,omitempty"`
	ReferentProjects    []string      `json:"referent_projects,omitempty"`
	ResponsibleProjects []string      `json:"responsible_projects,omitempty"`
	Labs                []string      `json:"labs,omitempty"`
}

// Active reports whether the employee has no termination date.
func (e PermanentEmployee) Active() bool { return e.EndDate == nil }

// ProjectEmployee represents fixed-term staff whose cost is charged to one project.
type ProjectEmployee struct {
	Badge      string          `json:"badge"`
	Name       string          `json:"name"`
	Surname    string          `json:"surname"`
	TaxID      string          `json:"tax_id"`
	BirthDate  time.Time       `json:"birth_date"`
	HireDate   time.Time       `json:"hire_date"`
	ExpiryDate time.Time       `json:"expiry_date"`
	Cost       decimal.Decimal `json:"cost"`
	ProjectCUP string          `json:"project_cup"`
}

// CareerEventKey is the natural key of a career event.
type CareerEventKey string

// CareerEvent records a dated tier or executive change. Identity is the
// (type, date, badge) triple.
type CareerEvent struct {
	Type  CareerEventType `json:"type"`
	Date  time.Time       `json:"date"`
	Badge string          `json:"badge"`
}

// Key renders the natural key of the event.
func (e CareerEvent) Key() CareerEventKey {
	return NewCareerEventKey(e.Badge, e.Type, e.Date)
}

// NewCareerEventKey builds a career event key from its parts.
func NewCareerEventKey(badge string, typ CareerEventType, date time.Time) CareerEventKey {
	return CareerEventKey(badge + "|" + string(typ) + "|" + FormatDate(date))
}

// Project captures a funded research project.
type Project struct {
	CUP              string          `json:"cup"`
	Name             string          `json:"name"`
	Budget           decimal.Decimal `json:"budget"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          *time.Time      `json:"end_date"`
	ReferentBadge    string          `json:"referent_badge"`
	ResponsibleBadge string          `json:"responsible_badge"`
	LabNames         []string        `json:"lab_names"`

	StaffBadges  []string `json:"staff_badges,omitempty"`
	EquipmentIDs []int64  `json:"equipment_ids,omitempty"`
}

// ActiveOn reports whether the project has not ended before day.
func (p Project) ActiveOn(day time.Time) bool {
	return p.EndDate == nil || !DateOf(*p.EndDate).Before(DateOf(day))
}

// MaxCollaborations caps the number of labs collaborating on a project.
const MaxCollaborations = 3

// Lab represents a laboratory directed by a senior employee.
type Lab struct {
	Name          string   `json:"name"`
	Topic         string   `json:"topic"`
	DirectorBadge string   `json:"director_badge"`
	Affiliates    []string `json:"affiliates"`

	ProjectCUPs  []string `json:"project_cups,omitempty"`
	EquipmentIDs []int64  `json:"equipment_ids,omitempty"`
}

// Equipment is an asset purchased by a project and optionally hosted by a lab.
type Equipment struct {
	ID          int64           `json:"id"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	ProjectCUP  string          `json:"project_cup"`
	LabName     *string         `json:"lab_name"`
}

// Snapshot captures a point-in-time copy of every entity keyed by natural key.
type Snapshot struct {
	PermanentEmployees map[string]PermanentEmployee   `json:"permanent_employees"`
	ProjectEmployees   map[string]ProjectEmployee     `json:"project_employees"`
	CareerEvents       map[CareerEventKey]CareerEvent `json:"career_events"`
	Projects           map[string]Project             `json:"projects"`
	Labs               map[string]Lab                 `json:"labs"`
	Equipment          map[int64]Equipment            `json:"equipment"`
}

// NewSnapshot returns a snapshot with every map allocated.
func NewSnapshot() Snapshot {
	return Snapshot{
		PermanentEmployees: make(map[string]PermanentEmployee),
		ProjectEmployees:   make(map[string]ProjectEmployee),
		CareerEvents:       make(map[CareerEventKey]CareerEvent),
		Projects:           make(map[string]Project),
		Labs:               make(map[string]Lab),
		Equipment:          make(map[int64]Equipment),
	}
}

// DateLayout is the civil date layout used by records and display rows.
const DateLayout = "2006-01-02"

// DateOf truncates t to its civil date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date is shorthand for a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a civil date.
func FormatDate(t time.Time) string { return DateOf(t).Format(DateLayout) }

// ParseDate parses a civil date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Key    string
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)
