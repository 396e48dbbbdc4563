package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"racehub/pkg/gameerr"
	"racehub/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// IdentityContextKey is the key for the caller identity in context
	IdentityContextKey ContextKey = "identity"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// Identity is the authenticated caller extracted from the bearer token.
type Identity struct {
	UserID string
	Name   string
	Admin  bool
}

// claims are the expected JWT payload fields.
type claims struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Auth creates an authentication middleware validating HMAC-signed bearer
// tokens.
func Auth(secret string, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := identityFromRequest(r, secret)
			if err != nil {
				logger.WithError(err).Debug("Token validation failed")
				writeErrorResponse(w, gameerr.Unauthorized("invalid or missing token"), logger)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates a route on the admin claim or a configured allowlist
// check. Must run after Auth. The allowlist function may be nil.
func RequireAdmin(isAdmin func(userID string) bool, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			allowed := ok && (identity.Admin || (isAdmin != nil && isAdmin(identity.UserID)))
			if !allowed {
				writeErrorResponse(w, gameerr.Forbidden("admin access required"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFrom extracts the authenticated identity from a request context.
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(*Identity)
	return identity, ok
}

func identityFromRequest(r *http.Request, secret string) (*Identity, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header is required")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, fmt.Errorf("invalid authorization header format")
	}
	raw := strings.TrimPrefix(authHeader, "Bearer ")
	if raw == "" {
		return nil, fmt.Errorf("token is required")
	}

	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || c.Subject == "" {
		return nil, fmt.Errorf("token is not valid")
	}

	return &Identity{UserID: c.Subject, Name: c.Name, Admin: c.Admin}, nil
}

// RequestID creates a middleware that adds a unique request ID to each request
func RequestID(logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Generate request ID (simple timestamp-based for now)
			requestID := generateRequestID()

			// Add to context
			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			r = r.WithContext(ctx)

			// Add to response header
			w.Header().Set("X-Request-ID", requestID)

			next.ServeHTTP(w, r)
		})
	}
}

// generateRequestID generates a simple request ID
func generateRequestID() string {
	return fmt.Sprintf("%d-%d", time.Now().Unix(), time.Now().Nanosecond())
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, gerr *gameerr.Error, logger *logger.Logger) {
	logger.WithError(gerr).Debug("Request rejected")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(gameerr.Status(gerr))

	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":     gerr,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
