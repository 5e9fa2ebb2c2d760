package handlers

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"flashquest/internal/security"
	"flashquest/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	UserIDContextKey ContextKey = "userID"
	RoleContextKey   ContextKey = "role"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	tokens      *security.TokenManager
	authService *service.AuthService
	limiter     *security.RateLimiter
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(tokens *security.TokenManager, authService *service.AuthService, limiter *security.RateLimiter) *Middleware {
	return &Middleware{
		tokens:      tokens,
		authService: authService,
		limiter:     limiter,
	}
}

// RequireAuth requires a valid bearer token and puts the user id and
// role on the request context
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		userID, role, err := m.tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		ctx = context.WithValue(ctx, RoleContextKey, role)
		next(w, r.WithContext(ctx))
	}
}

// RequireAdmin requires an authenticated admin user
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.authService.GetUser(UserIDFromContext(r.Context()))
		if err != nil || user == nil {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "Error loading user for admin check", err)
			return
		}
		if !user.IsAdmin() {
			respondWithError(w, http.StatusForbidden, ErrForbidden, "", nil)
			return
		}
		next(w, r)
	})
}

// RateLimit throttles requests per client IP
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !m.limiter.Allow(host) {
			respondWithError(w, http.StatusTooManyRequests, "Too many requests", "", nil)
			return
		}
		next(w, r)
	}
}

// Logging logs each request with its duration
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// UserIDFromContext returns the authenticated user id, or 0
func UserIDFromContext(ctx context.Context) int64 {
	userID, _ := ctx.Value(UserIDContextKey).(int64)
	return userID
}

// RoleFromContext returns the authenticated user's role, or ""
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(RoleContextKey).(string)
	return role
}
