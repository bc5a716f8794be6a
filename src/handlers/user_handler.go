package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/username/ahorrito/src/config"
	"github.com/username/ahorrito/src/database"
	"github.com/username/ahorrito/src/logger"
	"github.com/username/ahorrito/src/model"
	"github.com/username/ahorrito/src/models"
	"github.com/username/ahorrito/src/security"
	"github.com/username/ahorrito/src/services"
	"github.com/username/ahorrito/src/utils"
)

// Define a custom type for context keys to avoid collisions.
type contextKey string

const userIDContextKey contextKey = "userID"

type UserHandler struct {
	authService *security.AuthService
	txService   services.TransactionService
}

func NewUserHandler(authService *security.AuthService, txService services.TransactionService) *UserHandler {
	return &UserHandler{
		authService: authService,
		txService:   txService,
	}
}

// RegisterUserHandler creates a user with an optional initial savings
// configuration (schema defaults apply otherwise).
func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username      string                `json:"username"`
		Email         string                `json:"email"`
		Password      string                `json:"password"`
		SavingsConfig *models.SavingsConfig `json:"savingsConfig"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Username == "" || body.Email == "" || len(body.Password) < 8 {
		utils.SendJSONError(w, "username, email and a password of at least 8 characters are required", http.StatusBadRequest)
		return
	}

	user := &model.User{
		Username: body.Username,
		Email:    body.Email,
	}
	if body.SavingsConfig != nil {
		if err := body.SavingsConfig.Validate(); err != nil {
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		user.Savings = *body.SavingsConfig
	}

	hashed, err := h.authService.HashPassword(body.Password)
	if err != nil {
		utils.SendJSONError(w, "could not process password", http.StatusInternalServerError)
		return
	}
	user.Password = hashed

	if err := user.CreateUser(database.DB); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			utils.SendJSONError(w, "username or email already in use", http.StatusConflict)
			return
		}
		logger.L.Error("User registration failed", "username", body.Username, "error", err)
		utils.SendJSONError(w, "could not create user", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User registered", "userID", user.ID, "username", user.Username)
	utils.SendJSON(w, user, http.StatusCreated)
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByUsername(database.DB, credentials.Username)
	if err != nil {
		utils.SendJSONError(w, "invalid username or password", http.StatusUnauthorized)
		return
	}
	if err := user.CheckPassword(credentials.Password); err != nil {
		utils.SendJSONError(w, "invalid username or password", http.StatusUnauthorized)
		return
	}

	userIDStr := fmt.Sprintf("%d", user.ID)
	accessToken, err := h.authService.GenerateToken(userIDStr)
	if err != nil {
		utils.SendJSONError(w, "failed to generate access token", http.StatusInternalServerError)
		return
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		utils.SendJSONError(w, "failed to generate refresh token", http.StatusInternalServerError)
		return
	}

	session := &model.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		IsBlocked:    false,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		logger.L.Error("Failed to create session", "userID", user.ID, "error", err)
		utils.SendJSONError(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	logger.L.Info("User logged in", "userID", user.ID)
	utils.SendJSON(w, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"user":          user,
	}, http.StatusOK)
}

// AuthMiddleware validates the Bearer token, checks the session behind
// it is still live, and stores the caller's user id in the request
// context. Both password and Google logins create session rows, so one
// check covers both; logout kills the session even while the JWT is
// still within its expiry window.
func (h *UserHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.SendJSONError(w, "authorization header with Bearer token required", http.StatusUnauthorized)
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		sub, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			utils.SendJSONError(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		if _, err := model.GetSessionByToken(database.DB, tokenString); err != nil {
			logger.L.Warn("Session validation failed for valid access token", "path", r.URL.Path, "error", err)
			utils.SendJSONError(w, "invalid or expired session", http.StatusUnauthorized)
			return
		}
		userID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			utils.SendJSONError(w, "invalid token subject", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next(w, r.WithContext(ctx))
	}
}

// LogoutUserHandler deletes the session behind the presented access
// token, which invalidates it for the auth middleware immediately.
func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		utils.SendJSONError(w, "authorization header with Bearer token required", http.StatusUnauthorized)
		return
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	if err := model.DeleteSessionByToken(database.DB, tokenString); err != nil {
		logger.L.Error("Failed to delete session on logout", "error", err)
		utils.SendJSONError(w, "error logging out", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, map[string]string{"message": "logged out"}, http.StatusOK)
}

// GetUserIDFromContext retrieves the authenticated userID from the context.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

// requireSelf parses the {id} path value and checks it against the
// authenticated user.
func requireSelf(w http.ResponseWriter, r *http.Request) (int64, bool) {
	pathID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || pathID <= 0 {
		utils.SendJSONError(w, "invalid user id", http.StatusBadRequest)
		return 0, false
	}
	authedID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return 0, false
	}
	if authedID != pathID {
		utils.SendJSONError(w, "cannot access another user's configuration", http.StatusForbidden)
		return 0, false
	}
	return pathID, true
}

// GetSavingsConfigHandler handles GET /api/users/{id}/savings-config.
func (h *UserHandler) GetSavingsConfigHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireSelf(w, r)
	if !ok {
		return
	}

	cfg, err := model.GetSavingsConfig(database.DB, userID)
	if err != nil {
		if err == model.ErrUserNotFound {
			utils.SendJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		utils.SendJSONError(w, "error loading savings configuration", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, cfg, http.StatusOK)
}

// UpdateSavingsConfigHandler handles PUT /api/users/{id}/savings-config.
// The engine reads this configuration through a cache, so a successful
// update invalidates the cached entry.
func (h *UserHandler) UpdateSavingsConfigHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireSelf(w, r)
	if !ok {
		return
	}

	var cfg models.SavingsConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		utils.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := model.UpdateSavingsConfig(database.DB, userID, cfg); err != nil {
		if err == model.ErrUserNotFound {
			utils.SendJSONError(w, "user not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Savings config update failed", "userID", userID, "error", err)
		utils.SendJSONError(w, "error updating savings configuration", http.StatusInternalServerError)
		return
	}

	h.txService.InvalidateConfigCache(userID)
	logger.L.Info("Savings configuration updated", "userID", userID, "strategy", cfg.Strategy, "policy", cfg.BalancePolicy)
	utils.SendJSON(w, cfg, http.StatusOK)
}
