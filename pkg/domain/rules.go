package domain

import (
	"context"
	"time"
)

// RuleView provides read-only access to domain entities for rule evaluation.
// Returned entities are decorated with their derived back-references.
type RuleView interface {
	Today() time.Time
	ListPermanentEmployees() []PermanentEmployee
	ListProjectEmployees() []ProjectEmployee
	ListProjects() []Project
	ListLabs() []Lab
	ListEquipment() []Equipment
	ListCareerEvents(badge string) []CareerEvent
	FindPermanentEmployee(badge string) (PermanentEmployee, bool)
	FindProjectEmployee(badge string) (ProjectEmployee, bool)
	FindProject(cup string) (Project, bool)
	FindLab(name string) (Lab, bool)
	FindEquipment(id int64) (Equipment, bool)
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Kind     ErrorKind
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Unwrap exposes the kinds of the blocking violations for errors.Is.
func (e RuleViolationError) Unwrap() []error {
	var kinds []error
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Kind != "" {
			kinds = append(kinds, v.Kind)
		}
	}
	return kinds
}
