package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/fairshare/internal/auth"
	"github.com/dukerupert/fairshare/internal/fault"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/schedule"
	"github.com/dukerupert/fairshare/internal/store"
	"github.com/dukerupert/fairshare/internal/websocket"
)

type TaskHandler struct {
	taskStore      *store.TaskStore
	executionStore *store.ExecutionStore
	hub            *websocket.Hub
	logger         *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, es *store.ExecutionStore, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{taskStore: ts, executionStore: es, hub: hub, logger: logger}
}

type taskRequest struct {
	RoomID           *int64            `json:"room_id"`
	Title            string            `json:"title"`
	Type             model.TaskType    `json:"type"`
	Priority         model.Priority    `json:"priority"`
	EstimatedMinutes int               `json:"estimated_minutes"`
	Recurrence       *model.Recurrence `json:"recurrence"`
	DueDate          *time.Time        `json:"due_date"`
	Version          int64             `json:"version"`
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}
	if req.Priority == "" {
		req.Priority = model.PriorityMedium
	}
	if req.Priority.Rank() == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "priority must be low, medium, or high"})
		return
	}

	householdID := auth.HouseholdID(r.Context())
	task := model.Task{
		HouseholdID:      householdID,
		RoomID:           req.RoomID,
		Title:            req.Title,
		Type:             req.Type,
		Priority:         req.Priority,
		EstimatedMinutes: req.EstimatedMinutes,
		IsActive:         true,
		Recurrence:       req.Recurrence,
		DueDate:          req.DueDate,
		CreatedAt:        time.Now().UTC(),
	}
	if err := schedule.Validate(task); err != nil {
		writeError(w, h.logger, err)
		return
	}

	created, err := h.taskStore.Create(r.Context(), &task)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(householdID, websocket.NewMessage("task", "created", created.ID, nil))
	writeJSON(w, http.StatusCreated, created)
}

// List returns the household's tasks. ?room_id filters to one room;
// ?mine=1 filters to the caller's active assignments.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	var tasks []model.Task
	var err error
	switch {
	case r.URL.Query().Get("mine") == "1":
		tasks, err = h.taskStore.ListByAssignee(r.Context(), auth.UserID(r.Context()))
	case r.URL.Query().Get("room_id") != "":
		var roomID int64
		roomID, err = strconv.ParseInt(r.URL.Query().Get("room_id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room_id"})
			return
		}
		tasks, err = h.taskStore.ListByRoom(r.Context(), roomID)
	default:
		tasks, err = h.taskStore.ListByHousehold(r.Context(), householdID)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Room and assignee queries are not household-scoped in the store;
	// drop anything outside the caller's household here.
	filtered := []model.Task{}
	for _, task := range tasks {
		if task.HouseholdID == householdID {
			filtered = append(filtered, task)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

// task loads the task and checks household ownership. A task outside
// the caller's household reads as not found, not forbidden.
func (h *TaskHandler) task(r *http.Request) (*model.Task, error) {
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

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Update rewrites a task's fields guarded by the caller's version token.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "title is required"})
		return
	}
	if req.Version <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "version is required"})
		return
	}

	task.RoomID = req.RoomID
	task.Title = req.Title
	task.Type = req.Type
	task.Priority = req.Priority
	task.EstimatedMinutes = req.EstimatedMinutes
	task.Recurrence = req.Recurrence
	task.DueDate = req.DueDate
	if err := schedule.Validate(*task); err != nil {
		writeError(w, h.logger, err)
		return
	}

	ok, err := h.taskStore.Update(r.Context(), task, req.Version)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, fault.Conflict("task", task.ID))
		return
	}

	updated, err := h.taskStore.GetByID(r.Context(), task.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(task.HouseholdID, websocket.NewMessage("task", "updated", task.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

type deactivateRequest struct {
	Version int64 `json:"version"`
}

// Deactivate retires a task. History stays; new completions are rejected.
func (h *TaskHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req deactivateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	version := req.Version
	if version <= 0 {
		version = task.Version
	}

	ok, err := h.taskStore.Deactivate(r.Context(), task.ID, version)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, fault.Conflict("task", task.ID))
		return
	}

	h.hub.Broadcast(task.HouseholdID, websocket.NewMessage("task", "deactivated", task.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

type scheduleEntry struct {
	Task   model.Task      `json:"task"`
	Status schedule.Status `json:"status"`
	Due    *time.Time      `json:"due,omitempty"`
}

// Schedule returns the household's active tasks with their computed
// status at now. Due-ness is evaluated lazily at read time; nothing
// ticks in the background.
func (h *TaskHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.taskStore.ListByHousehold(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	now := time.Now().UTC()
	entries := []scheduleEntry{}
	for _, task := range tasks {
		if !task.IsActive {
			continue
		}

		var lastCompletion *time.Time
		latest, err := h.executionStore.LatestForTask(r.Context(), task.ID)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		if latest != nil {
			lastCompletion = &latest.CompletedAt
		}

		status, due, err := schedule.ComputeStatus(task, lastCompletion, now)
		if err != nil {
			// A malformed descriptor surfaces on the one bad task, not
			// as a failure of the whole feed.
			h.logger.Warn("compute status", "task_id", task.ID, "error", err)
			continue
		}
		entries = append(entries, scheduleEntry{Task: task, Status: status, Due: due})
	}
	writeJSON(w, http.StatusOK, entries)
}

// Occurrences expands a task's occurrence instants within a range, for
// calendar rendering. Defaults to the next 30 days.
func (h *TaskHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	now := time.Now().UTC()
	from, to := now, now.AddDate(0, 0, 30)
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "from must be RFC 3339"})
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "to must be RFC 3339"})
			return
		}
	}

	occs, err := schedule.NextOccurrences(*task, from, to)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if occs == nil {
		occs = []time.Time{}
	}
	writeJSON(w, http.StatusOK, occs)
}
