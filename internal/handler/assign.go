package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/fairshare/internal/assignment"
	"github.com/dukerupert/fairshare/internal/auth"
	"github.com/dukerupert/fairshare/internal/fault"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/push"
	"github.com/dukerupert/fairshare/internal/store"
	"github.com/dukerupert/fairshare/internal/websocket"
)

type AssignHandler struct {
	engine    *assignment.Engine
	taskStore *store.TaskStore
	hub       *websocket.Hub
	notifier  *push.Notifier
	logger    *slog.Logger
}

func NewAssignHandler(engine *assignment.Engine, ts *store.TaskStore, hub *websocket.Hub, notifier *push.Notifier, logger *slog.Logger) *AssignHandler {
	return &AssignHandler{engine: engine, taskStore: ts, hub: hub, notifier: notifier, logger: logger}
}

// task checks the target belongs to the caller's household before any
// engine call.
func (h *AssignHandler) task(r *http.Request) (*model.Task, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, fault.Validation("id", "invalid task id")
	}
	task, err := h.taskStore.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if task == nil || task.HouseholdID != auth.HouseholdID(r.Context()) {
		return nil, fault.NotFound("task", id)
	}
	return task, nil
}

type assignRequest struct {
	UserID  int64 `json:"user_id"`
	Version int64 `json:"version"`
}

func (h *AssignHandler) Assign(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.UserID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	updated, err := h.engine.AssignTask(r.Context(), task.ID, req.UserID, req.Version)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.announce(r, updated, "assigned")
	writeJSON(w, http.StatusOK, updated)
}

type versionRequest struct {
	Version int64 `json:"version"`
}

func (h *AssignHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req versionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	updated, err := h.engine.UnassignTask(r.Context(), task.ID, req.Version)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(updated.HouseholdID, websocket.NewMessage("task", "unassigned", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// Reassign passes the task to the next member in rotation.
func (h *AssignHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	updated, err := h.engine.ReassignToNext(r.Context(), task.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.announce(r, updated, "assigned")
	writeJSON(w, http.StatusOK, updated)
}

// Suggest returns the workload-balance pick without assigning anything.
func (h *AssignHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	userID, err := h.engine.SuggestAssignee(r.Context(), task.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"user_id": userID})
}

// AutoAssign distributes the household's active tasks. By default only
// unassigned tasks are dealt out; ?unassigned_only=0 redistributes
// everything, current assignees included. ?dry_run=1 returns the
// computed mapping without writing, for the preview UX.
func (h *AssignHandler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())
	dryRun := r.URL.Query().Get("dry_run") == "1"
	unassignedOnly := true
	if v := r.URL.Query().Get("unassigned_only"); v == "0" || v == "false" {
		unassignedOnly = false
	}

	result, err := h.engine.AutoAssignAll(r.Context(), householdID, unassignedOnly, dryRun)
	if err != nil {
		// Partial application: report what committed alongside the
		// conflict, not instead of it.
		if fault.IsConflict(err) && result != nil {
			writeJSON(w, http.StatusConflict, result)
			return
		}
		writeError(w, h.logger, err)
		return
	}

	if !dryRun {
		h.hub.Broadcast(householdID, websocket.NewMessage("task", "auto_assigned", 0, map[string]any{
			"count": len(result.Assignments),
		}))
		for taskID, userID := range result.Assignments {
			if task, err := h.taskStore.GetByID(r.Context(), taskID); err == nil && task != nil {
				h.notifier.TaskAssigned(r.Context(), userID, taskID, task.Title)
			}
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AssignHandler) announce(r *http.Request, task *model.Task, action string) {
	extra := map[string]any{}
	if task.AssignedUserID != nil {
		extra["user_id"] = *task.AssignedUserID
	}
	h.hub.Broadcast(task.HouseholdID, websocket.NewMessage("task", action, task.ID, extra))
	if task.AssignedUserID != nil {
		h.notifier.TaskAssigned(r.Context(), *task.AssignedUserID, task.ID, task.Title)
	}
}
