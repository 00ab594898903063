package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/fairshare/internal/model"
)

type ExecutionStore struct {
	db *sql.DB
}

func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

const executionCols = `id, task_id, user_id, household_id, room_id, completed_at, period_key,
	notes, photo_key, created_at`

func scanExecution(scanner interface{ Scan(...any) error }) (*model.Execution, error) {
	var e model.Execution
	var userID, roomID sql.NullInt64
	err := scanner.Scan(
		&e.ID, &e.TaskID, &userID, &e.HouseholdID, &roomID,
		&e.CompletedAt, &e.PeriodKey, &e.Notes, &e.PhotoKey, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		e.UserID = &userID.Int64
	}
	if roomID.Valid {
		e.RoomID = &roomID.Int64
	}
	return &e, nil
}

// Create inserts an execution record. Household and room ids are
// snapshotted from the task at completion time and never updated, so
// the history survives later task edits.
func (s *ExecutionStore) Create(ctx context.Context, e *model.Execution) (*model.Execution, error) {
	var userID any
	if e.UserID != nil {
		userID = *e.UserID
	}
	var roomID any
	if e.RoomID != nil {
		roomID = *e.RoomID
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (task_id, user_id, household_id, room_id, completed_at, period_key, notes, photo_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TaskID, userID, e.HouseholdID, roomID, e.CompletedAt, e.PeriodKey, e.Notes, e.PhotoKey,
	)
	if err != nil {
		return nil, fmt.Errorf("insert execution: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ExecutionStore) GetByID(ctx context.Context, id int64) (*model.Execution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionCols+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ListByTask returns a task's executions newest first, id descending as
// the tie-break for equal timestamps.
func (s *ExecutionStore) ListByTask(ctx context.Context, taskID int64, limit int) ([]model.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionCols+` FROM executions WHERE task_id = ?
		 ORDER BY completed_at DESC, id DESC LIMIT ?`,
		taskID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func (s *ExecutionStore) ListByHousehold(ctx context.Context, householdID int64, limit int) ([]model.Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionCols+` FROM executions WHERE household_id = ?
		 ORDER BY completed_at DESC, id DESC LIMIT ?`,
		householdID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list household executions: %w", err)
	}
	defer rows.Close()
	return collectExecutions(rows)
}

func collectExecutions(rows *sql.Rows) ([]model.Execution, error) {
	var executions []model.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

// LatestForTask returns the most recent execution for a task, or nil
// when the task has never been completed.
func (s *ExecutionStore) LatestForTask(ctx context.Context, taskID int64) (*model.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionCols+` FROM executions WHERE task_id = ?
		 ORDER BY completed_at DESC, id DESC LIMIT 1`,
		taskID,
	)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest execution: %w", err)
	}
	return e, nil
}

// ExistsForPeriod reports whether the task already has an execution
// recorded under the given period key.
func (s *ExecutionStore) ExistsForPeriod(ctx context.Context, taskID int64, periodKey time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE task_id = ? AND period_key = ?`,
		taskID, periodKey,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check period: %w", err)
	}
	return count > 0, nil
}

func (s *ExecutionStore) CountForTask(ctx context.Context, taskID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions WHERE task_id = ?`, taskID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count executions: %w", err)
	}
	return count, nil
}

// UpdateAnnotations replaces an execution's notes and photo key. The
// completion facts (who, when, which period) are immutable.
func (s *ExecutionStore) UpdateAnnotations(ctx context.Context, id int64, notes, photoKey string) (*model.Execution, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE executions SET notes = ?, photo_key = ? WHERE id = ?`,
		notes, photoKey, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update execution: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ExecutionStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete execution: %w", err)
	}
	return nil
}

// CountCompletedByUser returns per-user completion counts for a
// household since the given time. Executions whose user was since
// deleted are excluded.
func (s *ExecutionStore) CountCompletedByUser(ctx context.Context, householdID int64, since time.Time) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, COUNT(*)
		 FROM executions
		 WHERE household_id = ? AND completed_at >= ? AND user_id IS NOT NULL
		 GROUP BY user_id`,
		householdID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("count completions by user: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[userID] = count
	}
	return counts, rows.Err()
}
