package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/finhub/internal/apperr"
	"github.com/aristath/finhub/internal/auth"
	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/domain"
)

// AuthHandler implements the /api/auth/* routes (§4.11, §6).
type AuthHandler struct {
	users    *repositories.UserRepository
	refresh  *repositories.RefreshTokenRepository
	tokens   *auth.TokenManager
	devMode  bool
}

// NewAuthHandler builds a new AuthHandler.
func NewAuthHandler(users *repositories.UserRepository, refresh *repositories.RefreshTokenRepository, tokens *auth.TokenManager, devMode bool) *AuthHandler {
	return &AuthHandler{users: users, refresh: refresh, tokens: tokens, devMode: devMode}
}

// RegisterRoutes wires the auth routes onto r.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
}

// RegisterAuthedRoutes wires the routes that require an authenticated
// caller (/me, /password) onto an already auth-guarded router.
func (h *AuthHandler) RegisterAuthedRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Put("/me", h.handleUpdateMe)
	r.Put("/password", h.handleChangePassword)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if req.Email == "" || !looksLikeEmail(req.Email) {
		writeError(w, apperr.Validation("invalid email"))
		return
	}
	if len(req.Password) < 8 {
		writeError(w, apperr.Validation("password must be at least 8 characters"))
		return
	}

	if _, err := h.users.GetByEmail(r.Context(), req.Email); err == nil {
		writeError(w, apperr.Conflict("email already registered"))
		return
	} else if !errors.Is(err, apperr.ErrNotFound) {
		writeError(w, apperr.Internal("failed to check existing user", err))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, apperr.Internal("failed to hash password", err))
		return
	}

	user, err := h.users.Create(r.Context(), req.Email, hash)
	if err != nil {
		writeError(w, apperr.Internal("failed to create user", err))
		return
	}

	h.issueSession(w, r, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		writeError(w, apperr.Unauthorized("invalid email or password"))
		return
	}
	if err != nil {
		writeError(w, apperr.Internal("failed to look up user", err))
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, apperr.Unauthorized("invalid email or password"))
		return
	}

	h.issueSession(w, r, user)
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw := ""
	if cookie, err := r.Cookie("refreshToken"); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		writeError(w, apperr.Unauthorized("missing refresh token"))
		return
	}

	hash := auth.HashRefreshToken(raw)
	stored, err := h.refresh.GetByHash(r.Context(), hash)
	if errors.Is(err, apperr.ErrNotFound) {
		writeError(w, apperr.Unauthorized("Refresh token not found or expired"))
		return
	}
	if err != nil {
		writeError(w, apperr.Internal("failed to look up refresh token", err))
		return
	}

	user, err := h.users.GetByID(r.Context(), stored.UserID)
	if err != nil {
		writeError(w, apperr.Unauthorized("user no longer exists"))
		return
	}

	newToken, newHash, err := auth.NewRefreshToken()
	if err != nil {
		writeError(w, apperr.Internal("failed to generate refresh token", err))
		return
	}
	expiresAt := time.Now().Add(h.tokens.RefreshTokenTTL())
	if _, err := h.refresh.Rotate(r.Context(), stored.ID, user.ID, newHash, expiresAt); err != nil {
		writeError(w, apperr.Internal("failed to rotate refresh token", err))
		return
	}

	access, accessExpiresAt, err := h.tokens.IssueAccessToken(user.ID, user.Email, string(user.Plan))
	if err != nil {
		writeError(w, apperr.Internal("failed to issue access token", err))
		return
	}

	h.setAuthCookies(w, access, accessExpiresAt, newToken, expiresAt)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken":  access,
		"refreshToken": newToken,
		"user":         user,
	})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("refreshToken"); err == nil && cookie.Value != "" {
		hash := auth.HashRefreshToken(cookie.Value)
		if stored, err := h.refresh.GetByHash(r.Context(), hash); err == nil {
			_ = h.refresh.DeleteAllForUser(r.Context(), stored.UserID)
		}
	}
	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, apperr.NotFound("user not found"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type updateMeRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" || !looksLikeEmail(req.Email) {
		writeError(w, apperr.Validation("invalid email"))
		return
	}
	if err := h.users.UpdateProfile(r.Context(), userID, req.Email); err != nil {
		writeError(w, apperr.Internal("failed to update profile", err))
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, apperr.Internal("failed to reload user", err))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.Validation("invalid request body"))
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, apperr.Validation("password must be at least 8 characters"))
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeError(w, apperr.NotFound("user not found"))
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		writeError(w, apperr.Unauthorized("current password is incorrect"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, apperr.Internal("failed to hash password", err))
		return
	}
	if err := h.users.UpdatePassword(r.Context(), userID, hash); err != nil {
		writeError(w, apperr.Internal("failed to update password", err))
		return
	}
	// changePassword revokes all refresh tokens for the user (§4.11).
	if err := h.refresh.DeleteAllForUser(r.Context(), userID); err != nil {
		writeError(w, apperr.Internal("failed to revoke refresh tokens", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// issueSession mints a fresh access/refresh pair for user, persists the
// refresh token's hash, sets both as httpOnly cookies, and writes the
// response body (§4.11).
func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, user *domain.User) {
	access, accessExpiresAt, err := h.tokens.IssueAccessToken(user.ID, user.Email, string(user.Plan))
	if err != nil {
		writeError(w, apperr.Internal("failed to issue access token", err))
		return
	}

	refreshToken, refreshHash, err := auth.NewRefreshToken()
	if err != nil {
		writeError(w, apperr.Internal("failed to generate refresh token", err))
		return
	}
	refreshExpiresAt := time.Now().Add(h.tokens.RefreshTokenTTL())
	if _, err := h.refresh.Create(r.Context(), user.ID, refreshHash, refreshExpiresAt); err != nil {
		writeError(w, apperr.Internal("failed to persist refresh token", err))
		return
	}

	h.setAuthCookies(w, access, accessExpiresAt, refreshToken, refreshExpiresAt)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken":  access,
		"refreshToken": refreshToken,
		"user":         user,
	})
}

// setAuthCookies sets accessToken (path "/") and refreshToken (path
// "/api/auth") as httpOnly, sameSite=strict cookies, secure outside dev
// mode (§4.11).
func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, access string, accessExpiresAt time.Time, refresh string, refreshExpiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    access,
		Path:     "/",
		HttpOnly: true,
		Secure:   !h.devMode,
		SameSite: http.SameSiteStrictMode,
		Expires:  accessExpiresAt,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refreshToken",
		Value:    refresh,
		Path:     "/api/auth",
		HttpOnly: true,
		Secure:   !h.devMode,
		SameSite: http.SameSiteStrictMode,
		Expires:  refreshExpiresAt,
	})
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	expired := time.Now().Add(-time.Hour)
	http.SetCookie(w, &http.Cookie{Name: "accessToken", Value: "", Path: "/", HttpOnly: true, SameSite: http.SameSiteStrictMode, Expires: expired})
	http.SetCookie(w, &http.Cookie{Name: "refreshToken", Value: "", Path: "/api/auth", HttpOnly: true, SameSite: http.SameSiteStrictMode, Expires: expired})
}

func looksLikeEmail(s string) bool {
	at := -1
	for i, c := range s {
		if c == '@' {
			at = i
			break
		}
	}
	return at > 0 && at < len(s)-1
}
