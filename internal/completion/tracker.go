// Package completion records task completions and answers period
// satisfaction queries. Recording is append-only: two members completing
// the same task in the same week both get an execution row, and
// satisfaction comes from the period-key query, not from rejecting the
// second write.
package completion

import (
	"context"
	"time"

	"github.com/dukerupert/fairshare/internal/fault"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/recurrence"
	"github.com/dukerupert/fairshare/internal/store"
)

// maxBackdate bounds how far in the past a completion may be recorded.
const maxBackdate = 365 * 24 * time.Hour

type Tracker struct {
	tasks      *store.TaskStore
	executions *store.ExecutionStore
	now        func() time.Time
}

func NewTracker(tasks *store.TaskStore, executions *store.ExecutionStore) *Tracker {
	return &Tracker{tasks: tasks, executions: executions, now: time.Now}
}

// RecordRequest carries one completion event. CompletedAt is optional
// and defaults to now; Notes and PhotoKey are optional annotations.
type RecordRequest struct {
	TaskID      int64
	UserID      int64
	CompletedAt *time.Time
	Notes       string
	PhotoKey    string
}

// RecordCompletion validates and persists a completion event. The
// execution snapshots the task's household and room at completion time;
// later task edits do not rewrite history.
func (t *Tracker) RecordCompletion(ctx context.Context, req RecordRequest) (*model.Execution, error) {
	if req.UserID <= 0 {
		return nil, fault.Validation("user_id", "completing user is required")
	}

	now := t.now().UTC()
	completedAt := now
	if req.CompletedAt != nil {
		completedAt = req.CompletedAt.UTC()
	}
	if completedAt.After(now) {
		return nil, fault.Validation("completed_at", "completion time cannot be in the future")
	}
	if completedAt.Before(now.Add(-maxBackdate)) {
		return nil, fault.Validation("completed_at", "completion time cannot be more than a year in the past")
	}

	task, err := t.tasks.GetByID(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fault.NotFound("task", req.TaskID)
	}
	if !task.IsActive {
		return nil, fault.DomainViolation("inactive tasks cannot accrue completions")
	}

	return t.executions.Create(ctx, &model.Execution{
		TaskID:      task.ID,
		UserID:      &req.UserID,
		HouseholdID: task.HouseholdID,
		RoomID:      task.RoomID,
		CompletedAt: completedAt,
		PeriodKey:   recurrence.PeriodKey(completedAt),
		Notes:       req.Notes,
		PhotoKey:    req.PhotoKey,
	})
}

// IsSatisfiedForCurrentPeriod reports whether the task needs no further
// completion right now. A regular task is satisfied when an execution
// exists for the current week's period key; a one-time task is
// satisfied by any execution ever.
func (t *Tracker) IsSatisfiedForCurrentPeriod(ctx context.Context, taskID int64) (bool, error) {
	task, err := t.tasks.GetByID(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, fault.NotFound("task", taskID)
	}

	if task.Type == model.TaskOneTime {
		count, err := t.executions.CountForTask(ctx, taskID)
		if err != nil {
			return false, err
		}
		return count > 0, nil
	}

	return t.executions.ExistsForPeriod(ctx, taskID, recurrence.PeriodKey(t.now()))
}

// LatestExecution returns the task's most recent completion, nil when
// it has never been completed.
func (t *Tracker) LatestExecution(ctx context.Context, taskID int64) (*model.Execution, error) {
	task, err := t.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fault.NotFound("task", taskID)
	}
	return t.executions.LatestForTask(ctx, taskID)
}

// UpdateAnnotations edits an execution's notes and photo reference. The
// completion facts themselves are immutable.
func (t *Tracker) UpdateAnnotations(ctx context.Context, executionID int64, notes, photoKey string) (*model.Execution, error) {
	exec, err := t.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, fault.NotFound("execution", executionID)
	}
	return t.executions.UpdateAnnotations(ctx, executionID, notes, photoKey)
}

// History returns a task's executions newest first.
func (t *Tracker) History(ctx context.Context, taskID int64, limit int) ([]model.Execution, error) {
	task, err := t.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fault.NotFound("task", taskID)
	}
	if limit <= 0 {
		limit = 50
	}
	return t.executions.ListByTask(ctx, taskID, limit)
}
