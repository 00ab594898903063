package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/fairshare/internal/assignment"
	"github.com/dukerupert/fairshare/internal/completion"
	"github.com/dukerupert/fairshare/internal/handler"
	"github.com/dukerupert/fairshare/internal/middleware"
	"github.com/dukerupert/fairshare/internal/photo"
	"github.com/dukerupert/fairshare/internal/push"
	"github.com/dukerupert/fairshare/internal/store"
	ws "github.com/dukerupert/fairshare/internal/websocket"
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	authH          *handler.AuthHandler
	householdH     *handler.HouseholdHandler
	roomH          *handler.RoomHandler
	taskH          *handler.TaskHandler
	assignH        *handler.AssignHandler
	executionH     *handler.ExecutionHandler
	pushH          *handler.PushHandler
	sessionStore   *store.SessionStore
	householdStore *store.HouseholdStore
	rateLimiter    *middleware.RateLimiter
	logger         *slog.Logger
}

func New(db *sql.DB, photoCfg photo.Config, pushCfg push.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	householdStore := store.NewHouseholdStore(db)
	roomStore := store.NewRoomStore(db)
	taskStore := store.NewTaskStore(db)
	executionStore := store.NewExecutionStore(db)
	sessionStore := store.NewSessionStore(db)
	pushStore := store.NewPushStore(db)

	engine := assignment.NewEngine(taskStore, householdStore)
	tracker := completion.NewTracker(taskStore, executionStore)
	photoStore := photo.NewStore(photoCfg)

	pushLogger := logger.With("component", "push")
	var pushSvc *push.Service
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(pushCfg)
	}
	notifier := push.NewNotifier(pushSvc, pushStore, pushLogger)

	return &Server{
		db:             db,
		hub:            hub,
		authH:          handler.NewAuthHandler(userStore, householdStore, sessionStore, logger.With("component", "auth")),
		householdH:     handler.NewHouseholdHandler(householdStore, userStore, taskStore, executionStore, engine, hub, logger.With("component", "household")),
		roomH:          handler.NewRoomHandler(roomStore, hub, logger.With("component", "room")),
		taskH:          handler.NewTaskHandler(taskStore, executionStore, hub, logger.With("component", "task")),
		assignH:        handler.NewAssignHandler(engine, taskStore, hub, notifier, logger.With("component", "assignment")),
		executionH:     handler.NewExecutionHandler(tracker, taskStore, executionStore, userStore, photoStore, hub, notifier, logger.With("component", "execution")),
		pushH:          handler.NewPushHandler(pushSvc, pushStore, logger.With("component", "push_handler")),
		sessionStore:   sessionStore,
		householdStore: householdStore,
		rateLimiter:    middleware.NewRateLimiter(),
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.householdStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

// ownerOnly gates household-shape mutations behind the owner role.
func ownerOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireOwner(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Session routes
	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)
	mux.HandleFunc("PUT /api/me/pin", s.authH.SetPIN)

	// Household + membership routes
	mux.HandleFunc("GET /api/household", s.householdH.Get)
	mux.Handle("PUT /api/household", ownerOnly(s.householdH.Update))
	mux.HandleFunc("GET /api/household/members", s.householdH.ListMembers)
	mux.Handle("POST /api/household/members", ownerOnly(s.householdH.AddMember))
	mux.Handle("DELETE /api/household/members/{id}", ownerOnly(s.householdH.RemoveMember))
	mux.Handle("PUT /api/household/members/{id}/role", ownerOnly(s.householdH.UpdateMemberRole))
	mux.HandleFunc("GET /api/household/workload", s.householdH.Workload)
	mux.HandleFunc("GET /api/household/activity", s.householdH.Activity)
	mux.HandleFunc("GET /api/household/stats", s.householdH.Stats)

	// Room routes
	mux.HandleFunc("POST /api/rooms", s.roomH.Create)
	mux.HandleFunc("GET /api/rooms", s.roomH.List)
	mux.HandleFunc("PUT /api/rooms/{id}", s.roomH.Update)
	mux.HandleFunc("DELETE /api/rooms/{id}", s.roomH.Delete)

	// Task routes
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("POST /api/tasks/{id}/deactivate", s.taskH.Deactivate)
	mux.HandleFunc("GET /api/tasks/{id}/occurrences", s.taskH.Occurrences)
	mux.HandleFunc("GET /api/schedule", s.taskH.Schedule)

	// Assignment routes
	mux.HandleFunc("POST /api/tasks/{id}/assign", s.assignH.Assign)
	mux.HandleFunc("POST /api/tasks/{id}/unassign", s.assignH.Unassign)
	mux.HandleFunc("POST /api/tasks/{id}/reassign", s.assignH.Reassign)
	mux.HandleFunc("GET /api/tasks/{id}/suggest", s.assignH.Suggest)
	mux.HandleFunc("POST /api/tasks/auto-assign", s.assignH.AutoAssign)

	// Completion routes
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.executionH.Complete)
	mux.HandleFunc("GET /api/tasks/{id}/satisfied", s.executionH.Satisfied)
	mux.HandleFunc("GET /api/tasks/{id}/executions", s.executionH.History)
	mux.HandleFunc("PATCH /api/executions/{id}", s.executionH.Annotate)
	mux.Handle("DELETE /api/executions/{id}", ownerOnly(s.executionH.Delete))
	mux.HandleFunc("POST /api/executions/{id}/photo", s.executionH.UploadPhoto)
	mux.HandleFunc("GET /api/executions/{id}/photo", s.executionH.Photo)

	// Push notification routes
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.List)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
}
