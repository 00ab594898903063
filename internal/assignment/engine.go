// Package assignment decides who does what. It balances active task
// counts across household members, rotates assignments on request, and
// guards every write with the task's optimistic version.
package assignment

import (
	"context"
	"fmt"

	"github.com/dukerupert/fairshare/internal/fault"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/store"
)

type Engine struct {
	tasks      *store.TaskStore
	households *store.HouseholdStore
}

func NewEngine(tasks *store.TaskStore, households *store.HouseholdStore) *Engine {
	return &Engine{tasks: tasks, households: households}
}

// AssignTask sets the task's assignee. The target must be a current
// member of the task's household; stale membership references are
// rejected, never silently assigned. version is the caller's last-seen
// version token; zero means the caller holds no token and the current
// version is used. A mismatch surfaces as a Conflict, never an
// overwrite.
func (e *Engine) AssignTask(ctx context.Context, taskID, userID, version int64) (*model.Task, error) {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fault.NotFound("task", taskID)
	}

	isMember, err := e.households.IsMember(ctx, task.HouseholdID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, fault.Validation("user_id", "assignee is not a member of the task's household")
	}

	if version <= 0 {
		version = task.Version
	}
	ok, err := e.tasks.UpdateAssignee(ctx, taskID, &userID, version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.Conflict("task", taskID)
	}
	return e.tasks.GetByID(ctx, taskID)
}

// UnassignTask clears the task's assignee under the same version rules
// as AssignTask.
func (e *Engine) UnassignTask(ctx context.Context, taskID, version int64) (*model.Task, error) {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fault.NotFound("task", taskID)
	}

	if version <= 0 {
		version = task.Version
	}
	ok, err := e.tasks.UpdateAssignee(ctx, taskID, nil, version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.Conflict("task", taskID)
	}
	return e.tasks.GetByID(ctx, taskID)
}

// SuggestAssignee returns the household member who should take the
// task: lowest active task count, ties broken by earliest join. The
// suggestion reads WorkloadStats so it can never disagree with what
// the UI displays.
func (e *Engine) SuggestAssignee(ctx context.Context, taskID int64) (int64, error) {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if task == nil {
		return 0, fault.NotFound("task", taskID)
	}

	members, err := e.households.ListMembers(ctx, task.HouseholdID)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, fault.DomainViolation("household has no members to assign")
	}

	stats, err := e.WorkloadStats(ctx, task.HouseholdID)
	if err != nil {
		return 0, err
	}
	return members[leastLoadedIndex(members, stats)].UserID, nil
}

// leastLoadedIndex picks the first member (in joined order) holding the
// minimum active count. members must be non-empty.
func leastLoadedIndex(members []model.Member, stats map[int64]int) int {
	best := 0
	for i := 1; i < len(members); i++ {
		if stats[members[i].UserID] < stats[members[best].UserID] {
			best = i
		}
	}
	return best
}

// WorkloadStats returns the active task count for every member of the
// household, zero included. Both SuggestAssignee and the stats display
// read from here.
func (e *Engine) WorkloadStats(ctx context.Context, householdID int64) (map[int64]int, error) {
	members, err := e.households.ListMembers(ctx, householdID)
	if err != nil {
		return nil, err
	}
	counts, err := e.tasks.CountActiveByAssignee(ctx, householdID)
	if err != nil {
		return nil, err
	}

	stats := make(map[int64]int, len(members))
	for _, m := range members {
		stats[m.UserID] = counts[m.UserID]
	}
	return stats, nil
}

// BatchResult reports what AutoAssignAll decided and what it managed to
// apply. Assignments holds the full computed mapping (task id to user
// id); Conflicts lists tasks whose write failed the version check even
// after the single batch retry. Committed assignments stay committed.
type BatchResult struct {
	Assignments map[int64]int64 `json:"assignments"`
	Conflicts   []int64         `json:"conflicts,omitempty"`
}

// AutoAssignAll distributes the household's active tasks across its
// members. With unassignedOnly set, only tasks without an assignee are
// dealt out; without it every active task is redistributed, current
// assignees included. Tasks are taken in a fixed order (priority high
// to low, then room name, then title) and handed out by a round-robin
// cursor seeded at the least-loaded member, counting only workload
// outside the batch, so one pass converges toward balance without
// recomputing workloads per task.
//
// With dryRun set the computed mapping is returned without writing
// anything, for preview rendering.
//
// Writes are per-task version checks against the snapshot read. Tasks
// that lose the check are retried once against a fresh read; tasks
// still conflicted after that are reported in the result alongside a
// Conflict error. On context cancellation mid-batch, work already
// committed stays committed.
func (e *Engine) AutoAssignAll(ctx context.Context, householdID int64, unassignedOnly, dryRun bool) (*BatchResult, error) {
	household, err := e.households.GetByID(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if household == nil {
		return nil, fault.NotFound("household", householdID)
	}

	members, err := e.households.ListMembers(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fault.DomainViolation("household has no members to assign")
	}

	stats, err := e.WorkloadStats(ctx, householdID)
	if err != nil {
		return nil, err
	}

	tasks, err := e.tasks.ListForAssignment(ctx, householdID, unassignedOnly)
	if err != nil {
		return nil, err
	}

	// Tasks in the batch are about to be re-dealt, so their current
	// assignees don't count toward the seed. A full redistribution
	// therefore starts the cursor at the earliest-joined member.
	for i := range tasks {
		if tasks[i].AssignedUserID != nil {
			stats[*tasks[i].AssignedUserID]--
		}
	}

	result := &BatchResult{Assignments: make(map[int64]int64, len(tasks))}
	cursor := leastLoadedIndex(members, stats)
	order := make([]model.Task, len(tasks))
	copy(order, tasks)
	for i := range order {
		result.Assignments[order[i].ID] = members[cursor].UserID
		cursor = (cursor + 1) % len(members)
	}

	if dryRun {
		return result, nil
	}

	var conflicted []model.Task
	for _, task := range order {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		userID := result.Assignments[task.ID]
		ok, err := e.tasks.UpdateAssignee(ctx, task.ID, &userID, task.Version)
		if err != nil {
			return result, err
		}
		if !ok {
			conflicted = append(conflicted, task)
		}
	}

	// One batch retry against fresh reads. A deleted or deactivated task
	// no longer needs us; in unassigned-only mode a task that picked up
	// an assignee in the meantime is likewise dropped. Everything else
	// gets a second version check.
	for _, stale := range conflicted {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		fresh, err := e.tasks.GetByID(ctx, stale.ID)
		if err != nil {
			return result, err
		}
		if fresh == nil || !fresh.IsActive || (unassignedOnly && fresh.AssignedUserID != nil) {
			delete(result.Assignments, stale.ID)
			continue
		}
		userID := result.Assignments[stale.ID]
		ok, err := e.tasks.UpdateAssignee(ctx, fresh.ID, &userID, fresh.Version)
		if err != nil {
			return result, err
		}
		if !ok {
			result.Conflicts = append(result.Conflicts, stale.ID)
		}
	}

	if len(result.Conflicts) > 0 {
		return result, &fault.Error{
			Kind:    fault.KindConflict,
			Message: fmt.Sprintf("%d of %d assignments lost their version check", len(result.Conflicts), len(order)),
			Entity:  "household",
			ID:      householdID,
		}
	}
	return result, nil
}

// ReassignToNext hands the task to the next member in join order after
// the current assignee, wrapping around. Unlike SuggestAssignee this is
// a pure rotation that ignores workload, for "pass it on".
func (e *Engine) ReassignToNext(ctx context.Context, taskID int64) (*model.Task, error) {
	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fault.NotFound("task", taskID)
	}

	members, err := e.households.ListMembers(ctx, task.HouseholdID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fault.DomainViolation("household has no members to assign")
	}

	// Unassigned tasks, and tasks whose assignee has left, start the
	// rotation at the first member.
	next := 0
	if task.AssignedUserID != nil {
		for i, m := range members {
			if m.UserID == *task.AssignedUserID {
				next = (i + 1) % len(members)
				break
			}
		}
	}

	userID := members[next].UserID
	ok, err := e.tasks.UpdateAssignee(ctx, taskID, &userID, task.Version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.Conflict("task", taskID)
	}
	return e.tasks.GetByID(ctx, taskID)
}
