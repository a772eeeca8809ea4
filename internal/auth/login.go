package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// LoginRequest is the JSON body for POST /admin/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the JSON response for a successful login.
type LoginResponse struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

// UserInfo is the public admin user information returned in auth responses.
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginHandler handles local email/password login for the admin surface.
type LoginHandler struct {
	sessionMgr  *SessionManager
	pool        *pgxpool.Pool
	logger      *slog.Logger
	rateLimiter *RateLimiter
}

// NewLoginHandler creates a new login handler. rateLimiter throttles failed
// login attempts per source IP; pass nil to disable throttling.
func NewLoginHandler(sm *SessionManager, pool *pgxpool.Pool, logger *slog.Logger, rateLimiter *RateLimiter) *LoginHandler {
	return &LoginHandler{
		sessionMgr:  sm,
		pool:        pool,
		logger:      logger,
		rateLimiter: rateLimiter,
	}
}

// HandleLogin authenticates an admin user with email/password and returns a
// session JWT.
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	if h.rateLimiter != nil {
		result, err := h.rateLimiter.Check(r.Context(), ip)
		if err != nil {
			h.logger.Error("login: rate limit check failed", "error", err)
			respondErr(w, http.StatusInternalServerError, "internal", "login temporarily unavailable")
			return
		}
		if !result.Allowed {
			w.Header().Set("Retry-After", result.RetryAt.Format(http.TimeFormat))
			respondErr(w, http.StatusTooManyRequests, "rate_limited", "too many failed login attempts, try again later")
			return
		}
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErr(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	if req.Email == "" || req.Password == "" {
		respondErr(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	user, err := h.findUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Warn("login: user lookup failed", "email", req.Email, "error", err)
		if h.rateLimiter != nil {
			_ = h.rateLimiter.Record(r.Context(), ip)
		}
		respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		if h.rateLimiter != nil {
			_ = h.rateLimiter.Record(r.Context(), ip)
		}
		respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	if h.rateLimiter != nil {
		_ = h.rateLimiter.Reset(r.Context(), ip)
	}

	token, err := h.sessionMgr.IssueToken(SessionClaims{
		Subject: user.Email,
		Email:   user.Email,
		Role:    user.Role,
		UserID:  user.ID,
		Method:  "local",
	})
	if err != nil {
		h.logger.Error("login: issuing token", "error", err)
		respondErr(w, http.StatusInternalServerError, "internal", "failed to issue token")
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		Token: token,
		User:  UserInfo{ID: user.ID, Email: user.Email, Role: user.Role},
	})
}

// HandleMe returns the current admin's info from a session token.
func (h *LoginHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < 8 {
		respondErr(w, http.StatusUnauthorized, "unauthorized", "no token provided")
		return
	}

	token := authHeader[7:] // strip "Bearer "
	claims, err := h.sessionMgr.ValidateToken(token)
	if err != nil {
		respondErr(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":    claims.UserID,
		"email": claims.Email,
		"role":  claims.Role,
	})
}

// HandleLogout is a no-op endpoint; session tokens expire on their own.
func (h *LoginHandler) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

type adminUser struct {
	ID           string
	Email        string
	Role         string
	PasswordHash string
}

// clientIP prefers a forwarded-for header over RemoteAddr, so login
// throttling keys on the real client behind a reverse proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *LoginHandler) findUserByEmail(ctx context.Context, email string) (*adminUser, error) {
	var u adminUser
	err := h.pool.QueryRow(ctx,
		`SELECT id, email, role, password_hash FROM admin_users WHERE email = $1 AND is_active = true`,
		email,
	).Scan(&u.ID, &u.Email, &u.Role, &u.PasswordHash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("querying admin user: %w", err)
	}
	return &u, nil
}
