package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a domain failure. The HTTP layer maps kinds to status
// codes; the domain packages return them unchanged and never log.
type Kind string

const (
	// KindNotFound means a referenced task, member, or household does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindValidation means the input was malformed: bad recurrence
	// descriptor, out-of-range completion timestamp, assignment to a
	// non-member. Field names the offending input.
	KindValidation Kind = "VALIDATION"

	// KindConflict means an optimistic version check failed. The caller
	// must re-fetch and resubmit.
	KindConflict Kind = "CONFLICT"

	// KindDomainViolation means the operation is well-formed but forbidden
	// by policy, e.g. recording a completion on an inactive task.
	KindDomainViolation Kind = "DOMAIN_VIOLATION"
)

// Error is a structured domain failure.
type Error struct {
	Kind    Kind
	Message string

	// Entity and ID identify the subject where known ("task", "member", ...).
	Entity string
	ID     int64

	// Field names the offending input for validation failures.
	Field string
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	case e.Entity != "":
		return fmt.Sprintf("%s: %s (%s=%d)", e.Kind, e.Message, e.Entity, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NotFound reports a missing entity.
func NotFound(entity string, id int64) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found", Entity: entity, ID: id}
}

// Validation reports malformed input on the named field.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Message: message, Field: field}
}

// Conflict reports an optimistic version mismatch on an entity.
func Conflict(entity string, id int64) *Error {
	return &Error{Kind: KindConflict, Message: "version mismatch, reload and retry", Entity: entity, ID: id}
}

// DomainViolation reports a policy violation.
func DomainViolation(message string) *Error {
	return &Error{Kind: KindDomainViolation, Message: message}
}

// KindOf returns the Kind of err, unwrapping as needed, or "" if err is
// not a fault error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsNotFound reports whether err is (or wraps) a NotFound fault.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsValidation reports whether err is (or wraps) a Validation fault.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConflict reports whether err is (or wraps) a Conflict fault.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsDomainViolation reports whether err is (or wraps) a DomainViolation fault.
func IsDomainViolation(err error) bool { return KindOf(err) == KindDomainViolation }
