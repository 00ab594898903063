package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/fairshare/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskCols = `id, household_id, room_id, title, type, priority, estimated_minutes,
	assigned_user_id, is_active, scheduled_weekday, recurrence_rule, recurrence_until,
	due_date, version, created_at, updated_at`

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var roomID, assignedUserID sql.NullInt64
	var weekday sql.NullInt64
	var rule sql.NullString
	var until, dueDate sql.NullTime

	err := scanner.Scan(
		&t.ID, &t.HouseholdID, &roomID, &t.Title, &t.Type, &t.Priority,
		&t.EstimatedMinutes, &assignedUserID, &t.IsActive, &weekday, &rule,
		&until, &dueDate, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if roomID.Valid {
		t.RoomID = &roomID.Int64
	}
	if assignedUserID.Valid {
		t.AssignedUserID = &assignedUserID.Int64
	}
	if dueDate.Valid {
		d := dueDate.Time
		t.DueDate = &d
	}

	switch {
	case weekday.Valid:
		rec := model.Recurrence{Kind: model.RecurrenceWeekday, Weekday: time.Weekday(weekday.Int64)}
		if until.Valid {
			u := until.Time
			rec.Until = &u
		}
		t.Recurrence = &rec
	case rule.Valid:
		rec := model.Recurrence{Kind: model.RecurrenceRule, Rule: rule.String}
		if until.Valid {
			u := until.Time
			rec.Until = &u
		}
		t.Recurrence = &rec
	}

	return &t, nil
}

// recurrenceColumns flattens the tagged variant into the three nullable
// storage columns. Exactly one of scheduled_weekday and recurrence_rule
// is set for a recurring task, neither for a one-time task.
func recurrenceColumns(rec *model.Recurrence) (weekday, rule, until any) {
	if rec == nil {
		return nil, nil, nil
	}
	if rec.Until != nil {
		until = *rec.Until
	}
	switch rec.Kind {
	case model.RecurrenceWeekday:
		weekday = int(rec.Weekday)
	case model.RecurrenceRule:
		rule = rec.Rule
	}
	return weekday, rule, until
}

func (s *TaskStore) Create(ctx context.Context, t *model.Task) (*model.Task, error) {
	weekday, rule, until := recurrenceColumns(t.Recurrence)

	var dueDate any
	if t.DueDate != nil {
		dueDate = *t.DueDate
	}
	var roomID any
	if t.RoomID != nil {
		roomID = *t.RoomID
	}
	var assignedUserID any
	if t.AssignedUserID != nil {
		assignedUserID = *t.AssignedUserID
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (household_id, room_id, title, type, priority, estimated_minutes,
			assigned_user_id, is_active, scheduled_weekday, recurrence_rule, recurrence_until, due_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.HouseholdID, roomID, t.Title, t.Type, t.Priority, t.EstimatedMinutes,
		assignedUserID, t.IsActive, weekday, rule, until, dueDate,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE household_id = ? ORDER BY title ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *TaskStore) ListByRoom(ctx context.Context, roomID int64) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE room_id = ? ORDER BY title ASC, id ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks by room: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *TaskStore) ListByAssignee(ctx context.Context, userID int64) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE assigned_user_id = ? AND is_active = 1 ORDER BY title ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks by assignee: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListForAssignment returns the household's active tasks in deterministic
// batch order: priority high to low, then room name, then title. Tasks
// without a room sort after roomed tasks. With unassignedOnly set, tasks
// that already have an assignee are excluded; without it every active
// task is a redistribution candidate.
func (s *TaskStore) ListForAssignment(ctx context.Context, householdID int64, unassignedOnly bool) ([]model.Task, error) {
	query := `SELECT t.id, t.household_id, t.room_id, t.title, t.type, t.priority, t.estimated_minutes,
			t.assigned_user_id, t.is_active, t.scheduled_weekday, t.recurrence_rule, t.recurrence_until,
			t.due_date, t.version, t.created_at, t.updated_at
		 FROM tasks t
		 LEFT JOIN rooms r ON t.room_id = r.id
		 WHERE t.household_id = ? AND t.is_active = 1`
	if unassignedOnly {
		query += ` AND t.assigned_user_id IS NULL`
	}
	query += `
		 ORDER BY
			CASE t.priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC,
			r.name IS NULL ASC, r.name ASC,
			t.title ASC, t.id ASC`

	rows, err := s.db.QueryContext(ctx, query, householdID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for assignment: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]model.Task, error) {
	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Update rewrites the task's mutable fields guarded by its version.
// It returns false without modifying anything when expectedVersion no
// longer matches the stored row.
func (s *TaskStore) Update(ctx context.Context, t *model.Task, expectedVersion int64) (bool, error) {
	weekday, rule, until := recurrenceColumns(t.Recurrence)

	var dueDate any
	if t.DueDate != nil {
		dueDate = *t.DueDate
	}
	var roomID any
	if t.RoomID != nil {
		roomID = *t.RoomID
	}
	var assignedUserID any
	if t.AssignedUserID != nil {
		assignedUserID = *t.AssignedUserID
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET room_id = ?, title = ?, type = ?, priority = ?, estimated_minutes = ?,
			assigned_user_id = ?, is_active = ?, scheduled_weekday = ?, recurrence_rule = ?,
			recurrence_until = ?, due_date = ?, version = version + 1, updated_at = datetime('now')
		 WHERE id = ? AND version = ?`,
		roomID, t.Title, t.Type, t.Priority, t.EstimatedMinutes,
		assignedUserID, t.IsActive, weekday, rule, until, dueDate,
		t.ID, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// UpdateAssignee sets or clears the task's assignee guarded by its
// version. A nil userID clears the assignment. It returns false when
// the version check fails.
func (s *TaskStore) UpdateAssignee(ctx context.Context, id int64, userID *int64, expectedVersion int64) (bool, error) {
	var assignee any
	if userID != nil {
		assignee = *userID
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET assigned_user_id = ?, version = version + 1, updated_at = datetime('now')
		 WHERE id = ? AND version = ?`,
		assignee, id, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("update assignee: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *TaskStore) Deactivate(ctx context.Context, id int64, expectedVersion int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET is_active = 0, version = version + 1, updated_at = datetime('now')
		 WHERE id = ? AND version = ?`,
		id, expectedVersion,
	)
	if err != nil {
		return false, fmt.Errorf("deactivate task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (s *TaskStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// CountActiveByAssignee returns active task counts per assigned user for
// a household. Users with no assignments are absent from the map.
func (s *TaskStore) CountActiveByAssignee(ctx context.Context, householdID int64) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT assigned_user_id, COUNT(*)
		 FROM tasks
		 WHERE household_id = ? AND is_active = 1 AND assigned_user_id IS NOT NULL
		 GROUP BY assigned_user_id`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("count tasks by assignee: %w", err)
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

// SumEstimatedMinutesByAssignee returns the total estimated minutes of
// active assigned tasks per user for a household.
func (s *TaskStore) SumEstimatedMinutesByAssignee(ctx context.Context, householdID int64) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT assigned_user_id, COALESCE(SUM(estimated_minutes), 0)
		 FROM tasks
		 WHERE household_id = ? AND is_active = 1 AND assigned_user_id IS NOT NULL
		 GROUP BY assigned_user_id`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("sum minutes by assignee: %w", err)
	}
	defer rows.Close()

	minutes := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var total int
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("scan sum: %w", err)
		}
		minutes[userID] = total
	}
	return minutes, rows.Err()
}
