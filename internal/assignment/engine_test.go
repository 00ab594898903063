package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dukerupert/fairshare/internal/database"
	"github.com/dukerupert/fairshare/internal/fault"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/store"
)

type fixture struct {
	db         *sql.DB
	engine     *Engine
	tasks      *store.TaskStore
	households *store.HouseholdStore
	users      *store.UserStore
	house      *model.Household
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:         db,
		tasks:      store.NewTaskStore(db),
		households: store.NewHouseholdStore(db),
		users:      store.NewUserStore(db),
	}
	f.engine = NewEngine(f.tasks, f.households)

	f.house, err = f.households.Create(context.Background(), "Test House")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return f
}

// addMember creates a user and membership with an explicit joined_at so
// rotation order is under test control.
func (f *fixture) addMember(t *testing.T, email string, joinedAt time.Time) *model.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), email, email)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	m, err := f.households.AddMember(context.Background(), f.house.ID, u.ID, model.RoleMember)
	if err != nil {
		t.Fatalf("add member %s: %v", email, err)
	}
	if _, err := f.db.Exec(`UPDATE household_members SET joined_at = ? WHERE id = ?`, joinedAt, m.ID); err != nil {
		t.Fatalf("set joined_at: %v", err)
	}
	return u
}

func (f *fixture) addTask(t *testing.T, title string, priority model.Priority, assignee *int64) *model.Task {
	t.Helper()
	task, err := f.tasks.Create(context.Background(), &model.Task{
		HouseholdID:    f.house.ID,
		Title:          title,
		Type:           model.TaskRegular,
		Priority:       priority,
		IsActive:       true,
		AssignedUserID: assignee,
		Recurrence:     &model.Recurrence{Kind: model.RecurrenceWeekday, Weekday: time.Monday},
	})
	if err != nil {
		t.Fatalf("create task %s: %v", title, err)
	}
	return task
}

var (
	day1 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	day3 = time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
)

func TestAssignTask(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	task := f.addTask(t, "Vacuum", model.PriorityMedium, nil)

	got, err := f.engine.AssignTask(context.Background(), task.ID, alice.ID, task.Version)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.AssignedUserID == nil || *got.AssignedUserID != alice.ID {
		t.Errorf("assignee = %v, want %d", got.AssignedUserID, alice.ID)
	}
	if got.Version != task.Version+1 {
		t.Errorf("version = %d, want %d", got.Version, task.Version+1)
	}

	unassigned, err := f.engine.UnassignTask(context.Background(), task.ID, 0)
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if unassigned.AssignedUserID != nil {
		t.Errorf("assignee = %v, want nil", unassigned.AssignedUserID)
	}
}

func TestAssignTaskCancelledContext(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	task := f.addTask(t, "Vacuum", model.PriorityMedium, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.AssignTask(ctx, task.ID, alice.ID, task.Version)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	got, _ := f.tasks.GetByID(context.Background(), task.ID)
	if got.AssignedUserID != nil {
		t.Error("cancelled call must not assign")
	}
}

func TestAssignTaskStaleVersionConflicts(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	bob := f.addMember(t, "bob@example.com", day2)
	task := f.addTask(t, "Vacuum", model.PriorityMedium, nil)

	if _, err := f.engine.AssignTask(context.Background(), task.ID, alice.ID, task.Version); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Second caller still holds the pre-assignment token.
	_, err := f.engine.AssignTask(context.Background(), task.ID, bob.ID, task.Version)
	if !fault.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}

	got, _ := f.tasks.GetByID(context.Background(), task.ID)
	if got.AssignedUserID == nil || *got.AssignedUserID != alice.ID {
		t.Errorf("assignee = %v, want %d (conflict must not overwrite)", got.AssignedUserID, alice.ID)
	}
}

func TestAssignTaskRejectsNonMember(t *testing.T) {
	f := setupEngine(t)
	f.addMember(t, "alice@example.com", day1)
	stranger, err := f.users.Create(context.Background(), "stranger@example.com", "Stranger")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	task := f.addTask(t, "Vacuum", model.PriorityMedium, nil)

	_, err = f.engine.AssignTask(context.Background(), task.ID, stranger.ID, 0)
	if !fault.IsValidation(err) {
		t.Errorf("err = %v, want validation", err)
	}

	_, err = f.engine.AssignTask(context.Background(), 9999, stranger.ID, 0)
	if !fault.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSuggestAssigneeLowestCount(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	bob := f.addMember(t, "bob@example.com", day2)

	f.addTask(t, "A1", model.PriorityMedium, &alice.ID)
	f.addTask(t, "A2", model.PriorityMedium, &alice.ID)
	f.addTask(t, "B1", model.PriorityMedium, &bob.ID)
	open := f.addTask(t, "Open", model.PriorityMedium, nil)

	got, err := f.engine.SuggestAssignee(context.Background(), open.ID)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if got != bob.ID {
		t.Errorf("suggested = %d, want %d (bob has fewer tasks)", got, bob.ID)
	}
}

func TestSuggestAssigneeTieBreaksByJoinDate(t *testing.T) {
	f := setupEngine(t)
	// Carol joined before Alice despite being created after.
	alice := f.addMember(t, "alice@example.com", day2)
	carol := f.addMember(t, "carol@example.com", day1)
	_ = alice

	open := f.addTask(t, "Open", model.PriorityMedium, nil)

	got, err := f.engine.SuggestAssignee(context.Background(), open.ID)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if got != carol.ID {
		t.Errorf("suggested = %d, want %d (earliest join wins the tie)", got, carol.ID)
	}
}

func TestWorkloadStatsIncludesIdleMembers(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	bob := f.addMember(t, "bob@example.com", day2)

	f.addTask(t, "A1", model.PriorityMedium, &alice.ID)
	f.addTask(t, "A2", model.PriorityMedium, &alice.ID)

	stats, err := f.engine.WorkloadStats(context.Background(), f.house.ID)
	if err != nil {
		t.Fatalf("workload stats: %v", err)
	}
	if stats[alice.ID] != 2 {
		t.Errorf("alice = %d, want 2", stats[alice.ID])
	}
	count, ok := stats[bob.ID]
	if !ok {
		t.Fatal("idle member missing from stats")
	}
	if count != 0 {
		t.Errorf("bob = %d, want 0", count)
	}
}

func TestAutoAssignAllRoundRobin(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	bob := f.addMember(t, "bob@example.com", day2)

	// Insertion order deliberately shuffled; batch order is by
	// priority, so high goes first regardless.
	t3 := f.addTask(t, "Low chore", model.PriorityLow, nil)
	t1 := f.addTask(t, "High chore", model.PriorityHigh, nil)
	t2 := f.addTask(t, "Medium chore", model.PriorityMedium, nil)

	result, err := f.engine.AutoAssignAll(context.Background(), f.house.ID, true, false)
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}

	// Equal workloads seed the cursor at alice (earliest join), then
	// rotation: high->alice, medium->bob, low->alice.
	want := map[int64]int64{t1.ID: alice.ID, t2.ID: bob.ID, t3.ID: alice.ID}
	for taskID, userID := range want {
		if result.Assignments[taskID] != userID {
			t.Errorf("task %d assigned to %d, want %d", taskID, result.Assignments[taskID], userID)
		}
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("conflicts = %v, want none", result.Conflicts)
	}

	// The mapping was actually written.
	for taskID, userID := range want {
		got, err := f.tasks.GetByID(context.Background(), taskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if got.AssignedUserID == nil || *got.AssignedUserID != userID {
			t.Errorf("stored assignee for task %d = %v, want %d", taskID, got.AssignedUserID, userID)
		}
	}
}

func TestAutoAssignAllSeedsAtLeastLoaded(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	bob := f.addMember(t, "bob@example.com", day2)
	f.addMember(t, "carol@example.com", day3)

	// Alice already carries two tasks, so the cursor starts at bob.
	f.addTask(t, "A1", model.PriorityMedium, &alice.ID)
	f.addTask(t, "A2", model.PriorityMedium, &alice.ID)

	open := f.addTask(t, "Open", model.PriorityMedium, nil)

	result, err := f.engine.AutoAssignAll(context.Background(), f.house.ID, true, false)
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}
	if result.Assignments[open.ID] != bob.ID {
		t.Errorf("task assigned to %d, want %d (least loaded)", result.Assignments[open.ID], bob.ID)
	}
}

func TestAutoAssignAllFairness(t *testing.T) {
	f := setupEngine(t)
	f.addMember(t, "alice@example.com", day1)
	f.addMember(t, "bob@example.com", day2)
	f.addMember(t, "carol@example.com", day3)

	for i := 0; i < 7; i++ {
		f.addTask(t, fmt.Sprintf("Chore %02d", i), model.PriorityMedium, nil)
	}

	result, err := f.engine.AutoAssignAll(context.Background(), f.house.ID, true, false)
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}

	perUser := make(map[int64]int)
	for _, userID := range result.Assignments {
		perUser[userID]++
	}
	// 7 tasks over 3 members: counts must be 3/2/2 in some order.
	for userID, count := range perUser {
		if count < 2 || count > 3 {
			t.Errorf("user %d got %d tasks, want 2 or 3", userID, count)
		}
	}
	if len(perUser) != 3 {
		t.Errorf("only %d members received tasks, want 3", len(perUser))
	}
}

func TestAutoAssignAllLeavesAssignedTasksByDefault(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	f.addMember(t, "bob@example.com", day2)

	held := f.addTask(t, "Held", model.PriorityMedium, &alice.ID)
	open := f.addTask(t, "Open", model.PriorityMedium, nil)

	result, err := f.engine.AutoAssignAll(context.Background(), f.house.ID, true, false)
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}

	if _, ok := result.Assignments[held.ID]; ok {
		t.Error("unassigned-only batch must not touch an assigned task")
	}
	if _, ok := result.Assignments[open.ID]; !ok {
		t.Error("open task missing from batch")
	}
	got, _ := f.tasks.GetByID(context.Background(), held.ID)
	if got.AssignedUserID == nil || *got.AssignedUserID != alice.ID {
		t.Errorf("held task assignee = %v, want %d", got.AssignedUserID, alice.ID)
	}
}

func TestAutoAssignAllRedistributesEverything(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	bob := f.addMember(t, "bob@example.com", day2)

	// Alice holds the whole board. A full redistribution discounts the
	// batch's current assignees, so the deal starts fresh and alternates.
	ids := make([]int64, 0, 4)
	for _, title := range []string{"Chore A", "Chore B", "Chore C", "Chore D"} {
		ids = append(ids, f.addTask(t, title, model.PriorityMedium, &alice.ID).ID)
	}

	result, err := f.engine.AutoAssignAll(context.Background(), f.house.ID, false, false)
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}
	if len(result.Assignments) != 4 {
		t.Fatalf("assignments = %d, want 4 (assigned tasks included)", len(result.Assignments))
	}

	// Batch order is by title; equal discounted workloads seed at alice.
	want := map[int64]int64{ids[0]: alice.ID, ids[1]: bob.ID, ids[2]: alice.ID, ids[3]: bob.ID}
	for taskID, userID := range want {
		if result.Assignments[taskID] != userID {
			t.Errorf("task %d assigned to %d, want %d", taskID, result.Assignments[taskID], userID)
		}
		got, err := f.tasks.GetByID(context.Background(), taskID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if got.AssignedUserID == nil || *got.AssignedUserID != userID {
			t.Errorf("stored assignee for task %d = %v, want %d", taskID, got.AssignedUserID, userID)
		}
	}
}

func TestAutoAssignAllDryRun(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	open := f.addTask(t, "Open", model.PriorityMedium, nil)

	result, err := f.engine.AutoAssignAll(context.Background(), f.house.ID, true, true)
	if err != nil {
		t.Fatalf("auto-assign dry run: %v", err)
	}
	if result.Assignments[open.ID] != alice.ID {
		t.Errorf("preview assignment = %d, want %d", result.Assignments[open.ID], alice.ID)
	}

	got, err := f.tasks.GetByID(context.Background(), open.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.AssignedUserID != nil {
		t.Error("dry run must not write assignments")
	}
	if got.Version != open.Version {
		t.Error("dry run must not bump versions")
	}
}

func TestAutoAssignAllCancelled(t *testing.T) {
	f := setupEngine(t)
	f.addMember(t, "alice@example.com", day1)
	open := f.addTask(t, "Open", model.PriorityMedium, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.AutoAssignAll(ctx, f.house.ID, true, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	got, _ := f.tasks.GetByID(context.Background(), open.ID)
	if got.AssignedUserID != nil {
		t.Error("cancelled before first write, nothing should be assigned")
	}
}

func TestAutoAssignAllRetriesStaleSnapshot(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	open := f.addTask(t, "Open", model.PriorityMedium, nil)

	// Bump the version behind the snapshot's back, then run the batch
	// against the stale task value. The first CAS loses, the retry
	// re-reads and succeeds.
	if ok, err := f.tasks.Update(context.Background(), open, open.Version); err != nil || !ok {
		t.Fatalf("bump version: ok=%v err=%v", ok, err)
	}

	result, err := f.engine.AutoAssignAll(context.Background(), f.house.ID, true, false)
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}
	if len(result.Conflicts) != 0 {
		t.Errorf("conflicts = %v, want none after retry", result.Conflicts)
	}

	got, _ := f.tasks.GetByID(context.Background(), open.ID)
	if got.AssignedUserID == nil || *got.AssignedUserID != alice.ID {
		t.Errorf("assignee = %v, want %d", got.AssignedUserID, alice.ID)
	}
}

func TestAutoAssignAllEmptyHousehold(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.AutoAssignAll(context.Background(), f.house.ID, true, false)
	if !fault.IsDomainViolation(err) {
		t.Errorf("no members: err = %v, want domain violation", err)
	}

	_, err = f.engine.AutoAssignAll(context.Background(), 9999, true, false)
	if !fault.IsNotFound(err) {
		t.Errorf("missing household: err = %v, want not found", err)
	}
}

func TestReassignToNextRotation(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	bob := f.addMember(t, "bob@example.com", day2)
	carol := f.addMember(t, "carol@example.com", day3)

	task := f.addTask(t, "Vacuum", model.PriorityMedium, &alice.ID)

	for _, want := range []int64{bob.ID, carol.ID, alice.ID, bob.ID} {
		got, err := f.engine.ReassignToNext(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("reassign: %v", err)
		}
		if got.AssignedUserID == nil || *got.AssignedUserID != want {
			t.Fatalf("assignee = %v, want %d", got.AssignedUserID, want)
		}
	}
}

func TestReassignToNextUnassignedStartsAtFirst(t *testing.T) {
	f := setupEngine(t)
	alice := f.addMember(t, "alice@example.com", day1)
	f.addMember(t, "bob@example.com", day2)

	// Rotation ignores workload entirely: alice already has a task but
	// still leads the rotation.
	f.addTask(t, "A1", model.PriorityMedium, &alice.ID)
	task := f.addTask(t, "Vacuum", model.PriorityMedium, nil)

	got, err := f.engine.ReassignToNext(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if got.AssignedUserID == nil || *got.AssignedUserID != alice.ID {
		t.Errorf("assignee = %v, want %d", got.AssignedUserID, alice.ID)
	}
}
