package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/fairshare/internal/database"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/recurrence"
)

func setupExecutionTestDB(t *testing.T) (*ExecutionStore, *TaskStore, *HouseholdStore, *UserStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewExecutionStore(db), NewTaskStore(db), NewHouseholdStore(db), NewUserStore(db)
}

func seedTask(t *testing.T, ts *TaskStore, householdID int64) *model.Task {
	t.Helper()
	task, err := ts.Create(context.Background(), &model.Task{
		HouseholdID: householdID,
		Title:       "Take out trash",
		Type:        model.TaskRegular,
		Priority:    model.PriorityMedium,
		IsActive:    true,
		Recurrence:  &model.Recurrence{Kind: model.RecurrenceWeekday, Weekday: time.Monday},
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func TestExecutionCreateAndGet(t *testing.T) {
	ctx := context.Background()
	es, ts, hs, us := setupExecutionTestDB(t)
	h := seedHousehold(t, hs)
	alice := seedUser(t, us, "alice@example.com")
	task := seedTask(t, ts, h.ID)

	completedAt := time.Date(2026, 1, 6, 9, 30, 0, 0, time.UTC)
	exec, err := es.Create(ctx, &model.Execution{
		TaskID:      task.ID,
		UserID:      &alice.ID,
		HouseholdID: h.ID,
		CompletedAt: completedAt,
		PeriodKey:   recurrence.PeriodKey(completedAt),
		Notes:       "extra bag this week",
	})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}
	if exec.TaskID != task.ID {
		t.Errorf("task_id = %d, want %d", exec.TaskID, task.ID)
	}
	if exec.UserID == nil || *exec.UserID != alice.ID {
		t.Errorf("user_id = %v, want %d", exec.UserID, alice.ID)
	}
	if exec.Notes != "extra bag this week" {
		t.Errorf("notes = %q", exec.Notes)
	}

	wantKey := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	if !exec.PeriodKey.Equal(wantKey) {
		t.Errorf("period_key = %v, want %v", exec.PeriodKey, wantKey)
	}
}

func TestExecutionExistsForPeriod(t *testing.T) {
	ctx := context.Background()
	es, ts, hs, us := setupExecutionTestDB(t)
	h := seedHousehold(t, hs)
	alice := seedUser(t, us, "alice@example.com")
	task := seedTask(t, ts, h.ID)

	monday := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	_, err := es.Create(ctx, &model.Execution{
		TaskID:      task.ID,
		UserID:      &alice.ID,
		HouseholdID: h.ID,
		CompletedAt: monday,
		PeriodKey:   recurrence.PeriodKey(monday),
	})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	// Same week, different day: satisfied.
	thursday := monday.AddDate(0, 0, 3)
	ok, err := es.ExistsForPeriod(ctx, task.ID, recurrence.PeriodKey(thursday))
	if err != nil {
		t.Fatalf("exists for period: %v", err)
	}
	if !ok {
		t.Error("same week should be satisfied")
	}

	// Next week: not satisfied.
	nextMonday := monday.AddDate(0, 0, 7)
	ok, err = es.ExistsForPeriod(ctx, task.ID, recurrence.PeriodKey(nextMonday))
	if err != nil {
		t.Fatalf("exists for period: %v", err)
	}
	if ok {
		t.Error("next week should not be satisfied")
	}
}

func TestExecutionLatestForTaskTieBreak(t *testing.T) {
	ctx := context.Background()
	es, ts, hs, us := setupExecutionTestDB(t)
	h := seedHousehold(t, hs)
	alice := seedUser(t, us, "alice@example.com")
	task := seedTask(t, ts, h.ID)

	at := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	first, err := es.Create(ctx, &model.Execution{
		TaskID: task.ID, UserID: &alice.ID, HouseholdID: h.ID,
		CompletedAt: at, PeriodKey: recurrence.PeriodKey(at),
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := es.Create(ctx, &model.Execution{
		TaskID: task.ID, UserID: &alice.ID, HouseholdID: h.ID,
		CompletedAt: at, PeriodKey: recurrence.PeriodKey(at),
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	latest, err := es.LatestForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("latest for task: %v", err)
	}
	if latest == nil {
		t.Fatal("expected an execution")
	}
	// Equal timestamps break toward the higher id.
	if latest.ID != second.ID {
		t.Errorf("latest id = %d, want %d (not %d)", latest.ID, second.ID, first.ID)
	}
}

func TestExecutionLatestForTaskEmpty(t *testing.T) {
	ctx := context.Background()
	es, ts, hs, _ := setupExecutionTestDB(t)
	h := seedHousehold(t, hs)
	task := seedTask(t, ts, h.ID)

	latest, err := es.LatestForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("latest for task: %v", err)
	}
	if latest != nil {
		t.Errorf("latest = %+v, want nil", latest)
	}
}

func TestExecutionUpdateAnnotations(t *testing.T) {
	ctx := context.Background()
	es, ts, hs, us := setupExecutionTestDB(t)
	h := seedHousehold(t, hs)
	alice := seedUser(t, us, "alice@example.com")
	task := seedTask(t, ts, h.ID)

	at := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	exec, err := es.Create(ctx, &model.Execution{
		TaskID: task.ID, UserID: &alice.ID, HouseholdID: h.ID,
		CompletedAt: at, PeriodKey: recurrence.PeriodKey(at),
	})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	updated, err := es.UpdateAnnotations(ctx, exec.ID, "forgot the recycling", "photos/abc.jpg")
	if err != nil {
		t.Fatalf("update annotations: %v", err)
	}
	if updated.Notes != "forgot the recycling" {
		t.Errorf("notes = %q", updated.Notes)
	}
	if updated.PhotoKey != "photos/abc.jpg" {
		t.Errorf("photo_key = %q", updated.PhotoKey)
	}
	// Completion facts are untouched.
	if !updated.CompletedAt.Equal(exec.CompletedAt) {
		t.Errorf("completed_at changed: %v -> %v", exec.CompletedAt, updated.CompletedAt)
	}
	if !updated.PeriodKey.Equal(exec.PeriodKey) {
		t.Errorf("period_key changed: %v -> %v", exec.PeriodKey, updated.PeriodKey)
	}
}

func TestExecutionSurvivesUserDeletion(t *testing.T) {
	ctx := context.Background()
	es, ts, hs, us := setupExecutionTestDB(t)
	h := seedHousehold(t, hs)
	alice := seedUser(t, us, "alice@example.com")
	task := seedTask(t, ts, h.ID)

	at := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	exec, err := es.Create(ctx, &model.Execution{
		TaskID: task.ID, UserID: &alice.ID, HouseholdID: h.ID,
		CompletedAt: at, PeriodKey: recurrence.PeriodKey(at),
	})
	if err != nil {
		t.Fatalf("create execution: %v", err)
	}

	if err := us.Delete(ctx, alice.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	got, err := es.GetByID(ctx, exec.ID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if got == nil {
		t.Fatal("execution should survive user deletion")
	}
	if got.UserID != nil {
		t.Errorf("user_id = %v, want nil after user deletion", got.UserID)
	}
	if !got.CompletedAt.Equal(at) {
		t.Errorf("completed_at = %v, want %v", got.CompletedAt, at)
	}
}

func TestExecutionListByTaskOrder(t *testing.T) {
	ctx := context.Background()
	es, ts, hs, us := setupExecutionTestDB(t)
	h := seedHousehold(t, hs)
	alice := seedUser(t, us, "alice@example.com")
	task := seedTask(t, ts, h.ID)

	times := []time.Time{
		time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 19, 8, 0, 0, 0, time.UTC),
	}
	for _, at := range times {
		_, err := es.Create(ctx, &model.Execution{
			TaskID: task.ID, UserID: &alice.ID, HouseholdID: h.ID,
			CompletedAt: at, PeriodKey: recurrence.PeriodKey(at),
		})
		if err != nil {
			t.Fatalf("create execution: %v", err)
		}
	}

	execs, err := es.ListByTask(ctx, task.ID, 10)
	if err != nil {
		t.Fatalf("list by task: %v", err)
	}
	if len(execs) != 3 {
		t.Fatalf("got %d executions, want 3", len(execs))
	}
	for i := 1; i < len(execs); i++ {
		if execs[i].CompletedAt.After(execs[i-1].CompletedAt) {
			t.Errorf("executions not newest-first at index %d", i)
		}
	}

	count, err := es.CountForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("count for task: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
