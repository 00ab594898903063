package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/fairshare/internal/auth"
	"github.com/dukerupert/fairshare/internal/database"
	"github.com/dukerupert/fairshare/internal/model"
	"github.com/dukerupert/fairshare/internal/store"
)

type authFixture struct {
	sessions   *store.SessionStore
	households *store.HouseholdStore
	users      *store.UserStore
}

func setupAuthTest(t *testing.T) (*authFixture, *model.Household, *model.User) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	households := store.NewHouseholdStore(db)
	users := store.NewUserStore(db)
	sessions := store.NewSessionStore(db)

	h, err := households.Create(context.Background(), "Test House")
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	u, err := users.Create(context.Background(), "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := households.AddMember(context.Background(), h.ID, u.ID, model.RoleOwner); err != nil {
		t.Fatalf("add member: %v", err)
	}
	return &authFixture{sessions: sessions, households: households, users: users}, h, u
}

func authedHandler(t *testing.T, wantUser, wantHousehold int64) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserID(r.Context()) != wantUser {
			t.Errorf("UserID = %d, want %d", auth.UserID(r.Context()), wantUser)
		}
		if auth.HouseholdID(r.Context()) != wantHousehold {
			t.Errorf("HouseholdID = %d, want %d", auth.HouseholdID(r.Context()), wantHousehold)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuthBearerToken(t *testing.T) {
	f, h, u := setupAuthTest(t)
	if _, err := f.sessions.Create(context.Background(), "tok-123", u.ID, h.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}

	mw := RequireAuth(f.sessions, f.households)
	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	rec := httptest.NewRecorder()

	mw(authedHandler(t, u.ID, h.ID)).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuthCookie(t *testing.T) {
	f, h, u := setupAuthTest(t)
	if _, err := f.sessions.Create(context.Background(), "tok-456", u.ID, h.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}

	mw := RequireAuth(f.sessions, f.households)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "tok-456"})
	rec := httptest.NewRecorder()

	mw(authedHandler(t, u.ID, h.ID)).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuthRejections(t *testing.T) {
	f, h, u := setupAuthTest(t)
	mw := RequireAuth(f.sessions, f.households)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	})

	// No token.
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, httptest.NewRequest("GET", "/api/tasks", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	// Unknown token.
	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown token: status = %d, want 401", rec.Code)
	}

	// Expired token.
	if _, err := f.sessions.Create(context.Background(), "tok-old", u.ID, h.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}
	req = httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer tok-old")
	rec = httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expired token: status = %d, want 401", rec.Code)
	}
}

func TestRequireAuthRejectsRemovedMember(t *testing.T) {
	f, h, _ := setupAuthTest(t)

	bob, err := f.users.Create(context.Background(), "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := f.households.AddMember(context.Background(), h.ID, bob.ID, model.RoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := f.sessions.Create(context.Background(), "tok-789", bob.ID, h.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("create session: %v", err)
	}

	mw := RequireAuth(f.sessions, f.households)
	req := httptest.NewRequest("GET", "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer tok-789")
	rec := httptest.NewRecorder()
	mw(authedHandler(t, bob.ID, h.ID)).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("pre-removal: status = %d, want 204", rec.Code)
	}

	// Removing the member kills the session on the next request even
	// though the token itself has not expired.
	if err := f.households.RemoveMember(context.Background(), h.ID, bob.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	rec = httptest.NewRecorder()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("removed member must not pass auth")
	})
	mw(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("post-removal: status = %d, want 401", rec.Code)
	}
}

func TestRequireOwner(t *testing.T) {
	allowed := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed = true
	})

	req := httptest.NewRequest("POST", "/api/households", nil)
	ctx := auth.WithAuth(req.Context(), auth.AuthContext{UserID: 1, HouseholdID: 1, Role: "member"})
	rec := httptest.NewRecorder()
	RequireOwner(next).ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusForbidden {
		t.Errorf("member: status = %d, want 403", rec.Code)
	}
	if allowed {
		t.Error("member must not pass RequireOwner")
	}

	ctx = auth.WithAuth(req.Context(), auth.AuthContext{UserID: 1, HouseholdID: 1, Role: "owner"})
	rec = httptest.NewRecorder()
	RequireOwner(next).ServeHTTP(rec, req.WithContext(ctx))
	if !allowed {
		t.Error("owner should pass RequireOwner")
	}
}
