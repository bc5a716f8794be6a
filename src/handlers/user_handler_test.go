package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/username/ahorrito/src/config"
	"github.com/username/ahorrito/src/database"
	"github.com/username/ahorrito/src/logger"
	"github.com/username/ahorrito/src/model"
	"github.com/username/ahorrito/src/security"
)

func setupAuthTest(t *testing.T) (*UserHandler, int64, string) {
	t.Helper()
	logger.InitLogger("error")
	config.Cfg = &config.AppConfig{
		JWTSecret:          "test-secret-key-of-at-least-32-bytes!",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: time.Hour,
	}

	database.InitDB("file:" + t.Name() + "?mode=memory&cache=shared")
	database.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { database.DB.Close() })

	user := &model.User{Username: "maria", Email: "maria@example.com", Password: "not-a-real-hash"}
	if err := user.CreateUser(database.DB); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	authService := security.NewAuthService(config.Cfg.JWTSecret)
	token, err := authService.GenerateToken(fmt.Sprintf("%d", user.ID))
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	return NewUserHandler(authService, nil), user.ID, token
}

func createTestSession(t *testing.T, userID int64, token string) {
	t.Helper()
	session := &model.Session{
		UserID:       userID,
		Token:        token,
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		t.Fatalf("creating session: %v", err)
	}
}

func callProtected(h http.HandlerFunc, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/users/1/savings-config", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestAuthMiddlewareRequiresLiveSession(t *testing.T) {
	h, userID, token := setupAuthTest(t)

	var gotID int64
	protected := h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	if rec := callProtected(protected, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: status = %d, want 401", rec.Code)
	}
	if rec := callProtected(protected, "garbage"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	// A valid JWT with no session row behind it is rejected.
	if rec := callProtected(protected, token); rec.Code != http.StatusUnauthorized {
		t.Errorf("no session: status = %d, want 401", rec.Code)
	}

	createTestSession(t, userID, token)
	if rec := callProtected(protected, token); rec.Code != http.StatusNoContent {
		t.Errorf("live session: status = %d, want 204", rec.Code)
	}
	if gotID != userID {
		t.Errorf("context user id = %d, want %d", gotID, userID)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	h, userID, token := setupAuthTest(t)
	createTestSession(t, userID, token)

	protected := h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if rec := callProtected(protected, token); rec.Code != http.StatusNoContent {
		t.Fatalf("before logout: status = %d, want 204", rec.Code)
	}

	if rec := callProtected(h.LogoutUserHandler, token); rec.Code != http.StatusOK {
		t.Fatalf("logout: status = %d, want 200", rec.Code)
	}
	if rec := callProtected(h.LogoutUserHandler, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("logout without token: status = %d, want 401", rec.Code)
	}

	// The JWT is still inside its expiry window but the session is gone.
	if rec := callProtected(protected, token); rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout: status = %d, want 401", rec.Code)
	}
}
