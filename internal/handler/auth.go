package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/fairshare/internal/auth"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/store"
)

const (
	sessionCookieName = "fairshare_session"
	sessionTTL        = 30 * 24 * time.Hour
)

type AuthHandler struct {
	userStore      *store.UserStore
	householdStore *store.HouseholdStore
	sessionStore   *store.SessionStore
	logger         *slog.Logger
}

func NewAuthHandler(us *store.UserStore, hs *store.HouseholdStore, ss *store.SessionStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userStore:      us,
		householdStore: hs,
		sessionStore:   ss,
		logger:         logger,
	}
}

type registerRequest struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	HouseholdName string `json:"household_name"`
	PIN           string `json:"pin"`
}

// Register creates a household with its first owner.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.HouseholdName = strings.TrimSpace(req.HouseholdName)
	if req.Email == "" || req.HouseholdName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and household_name are required"})
		return
	}
	if len(req.PIN) < 4 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pin must be at least 4 digits"})
		return
	}

	existing, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "email already registered"})
		return
	}

	household, err := h.householdStore.Create(r.Context(), req.HouseholdName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.userStore.Create(r.Context(), req.Email, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.householdStore.AddMember(r.Context(), household.ID, user.ID, model.RoleOwner); err != nil {
		writeError(w, h.logger, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.userStore.SetPIN(r.Context(), user.ID, string(hash)); err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.startSession(w, r, user.ID, household.ID)
}

type loginRequest struct {
	Email       string `json:"email"`
	PIN         string `json:"pin"`
	HouseholdID int64  `json:"household_id,omitempty"`
}

// Login verifies the email/PIN pair and opens a session. Users in
// several households pass household_id to pick one; otherwise the
// first membership wins.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	hash, err := h.userStore.GetPINHash(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.PIN)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	households, err := h.householdStore.ListHouseholdsForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(households) == 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no household membership"})
		return
	}

	householdID := households[0].ID
	if req.HouseholdID != 0 {
		found := false
		for _, hh := range households {
			if hh.ID == req.HouseholdID {
				householdID = hh.ID
				found = true
				break
			}
		}
		if !found {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not a member of that household"})
			return
		}
	}

	h.startSession(w, r, user.ID, householdID)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID, householdID int64) {
	token := uuid.NewString()
	sess, err := h.sessionStore.Create(r.Context(), token, userID, householdID, time.Now().Add(sessionTTL))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        token,
		"user_id":      userID,
		"household_id": householdID,
		"expires_at":   sess.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err := h.sessionStore.Delete(r.Context(), cookie.Value); err != nil {
			h.logger.Error("delete session", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user and household.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}

	user, err := h.userStore.GetByID(r.Context(), ac.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	household, err := h.householdStore.GetByID(r.Context(), ac.HouseholdID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":      user,
		"household": household,
		"role":      ac.Role,
	})
}

type setPINRequest struct {
	PIN string `json:"pin"`
}

// SetPIN updates the caller's own PIN.
func (h *AuthHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	var req setPINRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.PIN) < 4 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pin must be at least 4 digits"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.userStore.SetPIN(r.Context(), auth.UserID(r.Context()), string(hash)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
