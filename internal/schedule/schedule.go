// Package schedule evaluates task due-ness against the recurrence
// descriptor. It is pure: callers supply the reference instant and the
// last completion, storage is never consulted here.
package schedule

import (
	"time"

	"github.com/dukerupert/fairshare/internal/fault"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/recurrence"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusOverdue   Status = "overdue"
	StatusNotDue    Status = "not_due"
)

// Validate checks that the task's recurrence descriptor matches its type:
// regular tasks carry exactly one recurrence variant, one-time tasks carry
// a due date and no recurrence. A mismatch is a data-integrity problem and
// is reported as a validation failure, never treated as "not due".
func Validate(task model.Task) error {
	switch task.Type {
	case model.TaskOneTime:
		if task.DueDate == nil {
			return fault.Validation("due_date", "one-time task requires a due date")
		}
		if task.Recurrence != nil {
			return fault.Validation("recurrence", "one-time task cannot have a recurrence")
		}
		return nil

	case model.TaskRegular:
		if task.DueDate != nil {
			return fault.Validation("due_date", "regular task cannot have a due date")
		}
		if task.Recurrence == nil {
			return fault.Validation("recurrence", "regular task requires a recurrence")
		}
		switch task.Recurrence.Kind {
		case model.RecurrenceWeekday:
			if task.Recurrence.Weekday < time.Sunday || task.Recurrence.Weekday > time.Saturday {
				return fault.Validation("recurrence.weekday", "invalid weekday")
			}
		case model.RecurrenceRule:
			if _, err := recurrence.Parse(task.Recurrence.Rule); err != nil {
				return fault.Validation("recurrence.rule", "invalid recurrence rule: "+err.Error())
			}
		default:
			return fault.Validation("recurrence.kind", "unknown recurrence kind")
		}
		return nil
	}
	return fault.Validation("type", "unknown task type")
}

// IsDue reports whether the task's current occurrence is due at now and
// not yet satisfied. lastCompletion is the most recent completion instant,
// nil if the task has never been completed.
//
// Regular tasks are satisfied for the Monday-aligned week containing now
// when lastCompletion falls in the same week. One-time tasks are due
// exactly once: completion is terminal.
func IsDue(task model.Task, lastCompletion *time.Time, now time.Time) (bool, error) {
	if err := Validate(task); err != nil {
		return false, err
	}

	if task.Type == model.TaskOneTime {
		if lastCompletion != nil {
			return false, nil
		}
		return !now.Before(*task.DueDate), nil
	}

	rec := task.Recurrence
	if rec.Until != nil && rec.Until.Before(now) {
		return false, nil
	}

	satisfied := lastCompletion != nil && recurrence.SamePeriod(*lastCompletion, now)
	if satisfied {
		return false, nil
	}

	switch rec.Kind {
	case model.RecurrenceWeekday:
		return now.UTC().Weekday() == rec.Weekday, nil

	default: // model.RecurrenceRule, Validate already rejected anything else
		rule, err := recurrence.Parse(rec.Rule)
		if err != nil {
			return false, fault.Validation("recurrence.rule", err.Error())
		}
		if rule.Expired(now) {
			return false, nil
		}
		next := recurrence.Next(rule, seriesStart(task), recurrence.PeriodKey(now))
		if next.IsZero() {
			return false, nil
		}
		return !next.After(now), nil
	}
}

// NextOccurrences expands the task's occurrence instants within [from, to).
// It is a pure query used by the calendar feed; completion state is ignored.
func NextOccurrences(task model.Task, from, to time.Time) ([]time.Time, error) {
	if err := Validate(task); err != nil {
		return nil, err
	}

	if task.Type == model.TaskOneTime {
		due := *task.DueDate
		if !due.Before(from) && due.Before(to) {
			return []time.Time{due}, nil
		}
		return nil, nil
	}

	rule, err := taskRule(task)
	if err != nil {
		return nil, err
	}
	return recurrence.Expand(rule, seriesStart(task), from, to), nil
}

// ComputeStatus rolls a task up into a dashboard status plus its current
// due instant (nil when nothing is due yet).
func ComputeStatus(task model.Task, lastCompletion *time.Time, now time.Time) (Status, *time.Time, error) {
	if err := Validate(task); err != nil {
		return "", nil, err
	}

	if task.Type == model.TaskOneTime {
		due := *task.DueDate
		if lastCompletion != nil {
			return StatusCompleted, &due, nil
		}
		switch {
		case now.Before(due):
			return StatusNotDue, &due, nil
		case sameDay(now, due):
			return StatusPending, &due, nil
		default:
			return StatusOverdue, &due, nil
		}
	}

	rule, err := taskRule(task)
	if err != nil {
		return "", nil, err
	}

	// Most recent occurrence at or before now. Expansion runs from the
	// series anchor, the same approach the rest of this package uses.
	occs := recurrence.Expand(rule, seriesStart(task), seriesStart(task), now.Add(time.Nanosecond))
	if len(occs) == 0 {
		return StatusNotDue, nil, nil
	}
	due := occs[len(occs)-1]

	if lastCompletion != nil && !lastCompletion.Before(due) {
		return StatusCompleted, &due, nil
	}
	if sameDay(now, due) {
		return StatusPending, &due, nil
	}
	return StatusOverdue, &due, nil
}

// taskRule lowers both recurrence variants to a parsed rule. The weekday
// variant becomes a plain weekly BYDAY rule so one expansion path serves
// both syntaxes.
func taskRule(task model.Task) (recurrence.Rule, error) {
	rec := task.Recurrence
	switch rec.Kind {
	case model.RecurrenceWeekday:
		return recurrence.Rule{
			Freq:     recurrence.Weekly,
			Interval: 1,
			ByDay:    []time.Weekday{rec.Weekday},
			Until:    rec.Until,
		}, nil
	default:
		rule, err := recurrence.Parse(rec.Rule)
		if err != nil {
			return recurrence.Rule{}, fault.Validation("recurrence.rule", err.Error())
		}
		if rule.Until == nil {
			rule.Until = rec.Until
		}
		return rule, nil
	}
}

// seriesStart anchors rule expansion at the start of the task's creation
// day in UTC, so occurrence instants land on day boundaries.
func seriesStart(task model.Task) time.Time {
	t := task.CreatedAt.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
