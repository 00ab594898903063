package model

import "time"

// Execution records one completion of a task. PeriodKey is the Monday
// 00:00 UTC floor of CompletedAt. HouseholdID and RoomID are snapshots
// copied from the task at creation time and never re-derived.
//
// Rows are append-only; only Notes and PhotoKey may be edited afterward,
// and those edits never change PeriodKey.
type Execution struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	UserID      *int64    `json:"user_id"`
	HouseholdID int64     `json:"household_id"`
	RoomID      *int64    `json:"room_id"`
	CompletedAt time.Time `json:"completed_at"`
	PeriodKey   time.Time `json:"period_key"`
	Notes       string    `json:"notes"`
	PhotoKey    string    `json:"photo_key"`
	CreatedAt   time.Time `json:"created_at"`
}
