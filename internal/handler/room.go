package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/fairshare/internal/auth"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/store"
	"github.com/dukerupert/fairshare/internal/websocket"
)

type RoomHandler struct {
	roomStore *store.RoomStore
	hub       *websocket.Hub
	logger    *slog.Logger
}

func NewRoomHandler(rs *store.RoomStore, hub *websocket.Hub, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{roomStore: rs, hub: hub, logger: logger}
}

type roomRequest struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	householdID := auth.HouseholdID(r.Context())
	room, err := h.roomStore.Create(r.Context(), householdID, req.Name, req.SortOrder)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(householdID, websocket.NewMessage("room", "created", room.ID, nil))
	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomStore.ListByHousehold(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// room loads the room and checks it belongs to the caller's household.
func (h *RoomHandler) room(r *http.Request) (*model.Room, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, err
	}
	room, err := h.roomStore.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if room == nil || room.HouseholdID != auth.HouseholdID(r.Context()) {
		return nil, nil
	}
	return room, nil
}

func (h *RoomHandler) Update(w http.ResponseWriter, r *http.Request) {
	room, err := h.room(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if room == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}

	var req roomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	updated, err := h.roomStore.Update(r.Context(), room.ID, req.Name, req.SortOrder)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(room.HouseholdID, websocket.NewMessage("room", "updated", room.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	room, err := h.room(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if room == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}

	if err := h.roomStore.Delete(r.Context(), room.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.hub.Broadcast(room.HouseholdID, websocket.NewMessage("room", "deleted", room.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}
