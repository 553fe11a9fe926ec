package domain

import (
	"errors"
	"fmt"
)

// ErrorKind names a class of validation failure. Kinds are errors themselves so
// callers match them with errors.Is.
type ErrorKind string

// Validation failure kinds surfaced to callers.
const (
	KindDuplicateEntity      ErrorKind = "duplicate_entity"
	KindUniquenessViolation  ErrorKind = "uniqueness_violation"
	KindReferentialViolation ErrorKind = "referential_violation"
	KindSequenceViolation    ErrorKind = "sequence_violation"
	KindBudgetExceeded       ErrorKind = "budget_exceeded"
	KindTemporalIncoherence  ErrorKind = "temporal_incoherence"
	// KindLimitExceeded reports a fixed cardinality cap, such as project collaborations.
	KindLimitExceeded ErrorKind = "limit_exceeded"
	KindNotFound      ErrorKind = "not_found"
)

func (k ErrorKind) Error() string { return string(k) }

// ValidationError reports a rejected mutation or load.
type ValidationError struct {
	Kind    ErrorKind
	Entity  EntityType
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s %s: %s", e.Kind, e.Entity, e.Key, e.Message)
}

// Unwrap exposes the kind for errors.Is.
func (e *ValidationError) Unwrap() error { return e.Kind }

// Errorf builds a ValidationError with a formatted message.
func Errorf(kind ErrorKind, entity EntityType, key string, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Entity: entity, Key: key, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds the error returned for an unknown natural key.
func NotFound(entity EntityType, key string) *ValidationError {
	return Errorf(KindNotFound, entity, key, "not found")
}

// KindOf extracts the first validation kind carried by err, or "".
func KindOf(err error) ErrorKind {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	var rerr RuleViolationError
	if errors.As(err, &rerr) {
		for _, v := range rerr.Result.Violations {
			if v.Severity == SeverityBlock && v.Kind != "" {
				return v.Kind
			}
		}
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return ""
}
