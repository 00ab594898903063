package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/fairshare/internal/auth"
	"github.com/dukerupert/fairshare/internal/completion"
	"github.com/dukerupert/fairshare/internal/fault"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/photo"
	"github.com/dukerupert/fairshare/internal/push"
	"github.com/dukerupert/fairshare/internal/store"
	"github.com/dukerupert/fairshare/internal/websocket"
)

const maxPhotoBytes = 10 << 20

type ExecutionHandler struct {
	tracker        *completion.Tracker
	taskStore      *store.TaskStore
	executionStore *store.ExecutionStore
	userStore      *store.UserStore
	photos         *photo.Store
	hub            *websocket.Hub
	notifier       *push.Notifier
	logger         *slog.Logger
}

func NewExecutionHandler(
	tracker *completion.Tracker,
	ts *store.TaskStore,
	es *store.ExecutionStore,
	us *store.UserStore,
	photos *photo.Store,
	hub *websocket.Hub,
	notifier *push.Notifier,
	logger *slog.Logger,
) *ExecutionHandler {
	return &ExecutionHandler{
		tracker:        tracker,
		taskStore:      ts,
		executionStore: es,
		userStore:      us,
		photos:         photos,
		hub:            hub,
		notifier:       notifier,
		logger:         logger,
	}
}

func (h *ExecutionHandler) task(r *http.Request) (*model.Task, error) {
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

type completeRequest struct {
	CompletedAt *time.Time `json:"completed_at"`
	Notes       string     `json:"notes"`
}

// Complete records a completion by the authenticated user.
func (h *ExecutionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req completeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	userID := auth.UserID(r.Context())
	exec, err := h.tracker.RecordCompletion(r.Context(), completion.RecordRequest{
		TaskID:      task.ID,
		UserID:      userID,
		CompletedAt: req.CompletedAt,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(task.HouseholdID, websocket.NewMessage("task", "completed", task.ID, map[string]any{
		"execution_id": exec.ID,
		"user_id":      userID,
	}))

	// Tell the assignee when someone else knocked out their task.
	if task.AssignedUserID != nil && *task.AssignedUserID != userID {
		completedBy := "someone"
		if user, err := h.userStore.GetByID(r.Context(), userID); err == nil && user != nil && user.Name != "" {
			completedBy = user.Name
		}
		h.notifier.TaskCompleted(r.Context(), *task.AssignedUserID, task.ID, task.Title, completedBy)
	}

	writeJSON(w, http.StatusCreated, exec)
}

// Satisfied reports whether the task needs doing right now.
func (h *ExecutionHandler) Satisfied(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	ok, err := h.tracker.IsSatisfiedForCurrentPeriod(r.Context(), task.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"satisfied": ok})
}

// History lists a task's completions, newest first. ?limit caps the
// page size.
func (h *ExecutionHandler) History(w http.ResponseWriter, r *http.Request) {
	task, err := h.task(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	execs, err := h.tracker.History(r.Context(), task.ID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if execs == nil {
		execs = []model.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

// execution loads the execution and checks household ownership.
func (h *ExecutionHandler) execution(r *http.Request) (*model.Execution, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, fault.Validation("id", "invalid execution id")
	}
	exec, err := h.executionStore.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if exec == nil || exec.HouseholdID != auth.HouseholdID(r.Context()) {
		return nil, fault.NotFound("execution", id)
	}
	return exec, nil
}

type annotateRequest struct {
	Notes string `json:"notes"`
}

// Annotate edits an execution's notes. The completion facts are immutable.
func (h *ExecutionHandler) Annotate(w http.ResponseWriter, r *http.Request) {
	exec, err := h.execution(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req annotateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	updated, err := h.tracker.UpdateAnnotations(r.Context(), exec.ID, req.Notes, exec.PhotoKey)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// UploadPhoto attaches a photo to an execution. The previous photo, if
// any, is replaced.
func (h *ExecutionHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if !h.photos.Enabled() {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "photo storage not configured"})
		return
	}

	exec, err := h.execution(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "image/jpeg" && contentType != "image/png" && contentType != "image/webp" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "photo must be jpeg, png, or webp"})
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	key, err := h.photos.Upload(r.Context(), exec.HouseholdID, exec.ID, body, contentType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if exec.PhotoKey != "" {
		if err := h.photos.Delete(r.Context(), exec.PhotoKey); err != nil {
			h.logger.Warn("delete replaced photo", "key", exec.PhotoKey, "error", err)
		}
	}

	updated, err := h.tracker.UpdateAnnotations(r.Context(), exec.ID, exec.Notes, key)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a completion record and its photo. History deletion is
// an explicit user action; nothing in the scheduling core ever does it.
func (h *ExecutionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	exec, err := h.execution(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if exec.PhotoKey != "" && h.photos.Enabled() {
		if err := h.photos.Delete(r.Context(), exec.PhotoKey); err != nil {
			h.logger.Warn("delete execution photo", "key", exec.PhotoKey, "error", err)
		}
	}

	if err := h.executionStore.Delete(r.Context(), exec.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(exec.HouseholdID, websocket.NewMessage("execution", "deleted", exec.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Photo streams an execution's photo back.
func (h *ExecutionHandler) Photo(w http.ResponseWriter, r *http.Request) {
	exec, err := h.execution(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if exec.PhotoKey == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "execution has no photo"})
		return
	}

	body, contentType, err := h.photos.Download(r.Context(), exec.PhotoKey)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream photo", "error", err)
	}
}
