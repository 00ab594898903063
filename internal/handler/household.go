package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/fairshare/internal/assignment"
	"github.com/dukerupert/fairshare/internal/auth"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/store"
	"github.com/dukerupert/fairshare/internal/websocket"
)

type HouseholdHandler struct {
	householdStore *store.HouseholdStore
	userStore      *store.UserStore
	taskStore      *store.TaskStore
	executionStore *store.ExecutionStore
	engine         *assignment.Engine
	hub            *websocket.Hub
	logger         *slog.Logger
}

func NewHouseholdHandler(hs *store.HouseholdStore, us *store.UserStore, ts *store.TaskStore, es *store.ExecutionStore, engine *assignment.Engine, hub *websocket.Hub, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{householdStore: hs, userStore: us, taskStore: ts, executionStore: es, engine: engine, hub: hub, logger: logger}
}

func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	household, err := h.householdStore.GetByID(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, household)
}

type householdRequest struct {
	Name string `json:"name"`
}

func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req householdRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	household, err := h.householdStore.Update(r.Context(), auth.HouseholdID(r.Context()), req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, household)
}

func (h *HouseholdHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.householdStore.ListMembers(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// AddMember invites a user into the household, creating the user record
// if the email is new.
func (h *HouseholdHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}
	if req.Role == "" {
		req.Role = model.RoleMember
	}
	if req.Role != model.RoleOwner && req.Role != model.RoleMember {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be owner or member"})
		return
	}

	user, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		user, err = h.userStore.Create(r.Context(), req.Email, req.Name)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	householdID := auth.HouseholdID(r.Context())
	member, err := h.householdStore.AddMember(r.Context(), householdID, user.ID, req.Role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(householdID, websocket.NewMessage("member", "added", member.ID, nil))
	writeJSON(w, http.StatusCreated, member)
}

// RemoveMember drops a membership. The member's task assignments are
// cleared; their completion history stays.
func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	householdID := auth.HouseholdID(r.Context())
	if err := h.householdStore.RemoveMember(r.Context(), householdID, userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(householdID, websocket.NewMessage("member", "removed", userID, nil))
	w.WriteHeader(http.StatusNoContent)
}

type memberRoleRequest struct {
	Role string `json:"role"`
}

func (h *HouseholdHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req memberRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Role != model.RoleOwner && req.Role != model.RoleMember {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be owner or member"})
		return
	}

	member, err := h.householdStore.UpdateMemberRole(r.Context(), auth.HouseholdID(r.Context()), userID, req.Role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// Workload returns per-member active task counts, the same numbers the
// assignment engine balances on.
func (h *HouseholdHandler) Workload(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.WorkloadStats(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Activity returns the household's recent completions, newest first.
func (h *HouseholdHandler) Activity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	execs, err := h.executionStore.ListByHousehold(r.Context(), auth.HouseholdID(r.Context()), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if execs == nil {
		execs = []model.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

type memberStats struct {
	UserID           int64 `json:"user_id"`
	ActiveTasks      int   `json:"active_tasks"`
	EstimatedMinutes int   `json:"estimated_minutes"`
	CompletedWeek    int   `json:"completed_last_7_days"`
}

// Stats rolls up per-member load and recent output for the household
// dashboard: active assignment counts, total estimated minutes, and
// completions over the last seven days.
func (h *HouseholdHandler) Stats(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())

	members, err := h.householdStore.ListMembers(r.Context(), householdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	counts, err := h.engine.WorkloadStats(r.Context(), householdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	minutes, err := h.taskStore.SumEstimatedMinutesByAssignee(r.Context(), householdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	completed, err := h.executionStore.CountCompletedByUser(r.Context(), householdID, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	stats := make([]memberStats, 0, len(members))
	for _, m := range members {
		stats = append(stats, memberStats{
			UserID:           m.UserID,
			ActiveTasks:      counts[m.UserID],
			EstimatedMinutes: minutes[m.UserID],
			CompletedWeek:    completed[m.UserID],
		})
	}
	writeJSON(w, http.StatusOK, stats)
}
