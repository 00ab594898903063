package fault

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("assign task: %w", Conflict("task", 7))
	if !IsConflict(err) {
		t.Error("wrapped conflict not detected")
	}
	if KindOf(err) != KindConflict {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindConflict)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("boom")) != "" {
		t.Error("plain error should have no kind")
	}
	if IsNotFound(nil) {
		t.Error("nil error should have no kind")
	}
}

func TestErrorStrings(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{NotFound("task", 12), "NOT_FOUND: task not found (task=12)"},
		{Validation("completed_at", "in the future"), "VALIDATION: in the future (field=completed_at)"},
		{DomainViolation("task is inactive"), "DOMAIN_VIOLATION: task is inactive"},
	}
	for _, c := range cases {
		if got := c.err.Error(); got != c.want {
			t.Errorf("Error() = %q, want %q", got, c.want)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !IsNotFound(NotFound("member", 1)) {
		t.Error("IsNotFound")
	}
	if !IsValidation(Validation("user_id", "not a member")) {
		t.Error("IsValidation")
	}
	if !IsDomainViolation(DomainViolation("inactive")) {
		t.Error("IsDomainViolation")
	}
	if IsConflict(NotFound("task", 1)) {
		t.Error("NotFound should not be Conflict")
	}
}
