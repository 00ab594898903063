package model

import "time"

type TaskType string

const (
	TaskOneTime TaskType = "one_time"
	TaskRegular TaskType = "regular"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities for listing and auto-assignment (higher first).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

type RecurrenceKind string

const (
	// RecurrenceWeekday repeats weekly on a single weekday.
	RecurrenceWeekday RecurrenceKind = "weekday"
	// RecurrenceRule repeats per an RRULE-style rule string.
	RecurrenceRule RecurrenceKind = "rule"
)

// Recurrence is a tagged variant: exactly one of Weekday or Rule is
// meaningful, selected by Kind.
type Recurrence struct {
	Kind    RecurrenceKind `json:"kind"`
	Weekday time.Weekday   `json:"weekday,omitempty"`
	Rule    string         `json:"rule,omitempty"`
	Until   *time.Time     `json:"until,omitempty"`
}

// Task is a chore owned by a household. Regular tasks carry a Recurrence,
// one-time tasks carry a DueDate; never both. Version is the optimistic
// concurrency token, bumped on every write.
type Task struct {
	ID               int64       `json:"id"`
	HouseholdID      int64       `json:"household_id"`
	RoomID           *int64      `json:"room_id"`
	Title            string      `json:"title"`
	Type             TaskType    `json:"type"`
	Priority         Priority    `json:"priority"`
	EstimatedMinutes int         `json:"estimated_minutes"`
	AssignedUserID   *int64      `json:"assigned_user_id"`
	IsActive         bool        `json:"is_active"`
	Recurrence       *Recurrence `json:"recurrence,omitempty"`
	DueDate          *time.Time  `json:"due_date,omitempty"`
	Version          int64       `json:"version"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}
