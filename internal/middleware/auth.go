package middleware

import (
	"context"
	"net/http"
	"strings"

	"community-chat/internal/identity"
)

type contextKey string

const (
	participantKey contextKey = "participant"
	nameKey        contextKey = "participant_name"
)

// TokenValidator is what we need from the people service; the interface
// keeps middleware decoupled from it.
type TokenValidator interface {
	ValidateToken(tokenString string) (identity.Participant, string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// Handle extracts the bearer token (header, or query param for websocket
// clients that cannot set headers), validates it, and injects the resolved
// participant into the request context.
func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		p, name, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), participantKey, p)
		ctx = context.WithValue(ctx, nameKey, name)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParticipantFromContext returns the authenticated participant, if any.
func ParticipantFromContext(ctx context.Context) (identity.Participant, bool) {
	p, ok := ctx.Value(participantKey).(identity.Participant)
	return p, ok
}

// NameFromContext returns the authenticated participant's display name.
func NameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(nameKey).(string)
	return name
}
