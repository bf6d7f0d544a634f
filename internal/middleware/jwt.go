package myMiddleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	MemberKey contextKey = "member_id"
	RoleKey   contextKey = "role"
)

// TokenValidator returns the member id and role carried by a token.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, string, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Fields(authHeader)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				tokenString = parts[1]
			}
		}

		// Browsers cannot set headers on a websocket upgrade.
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		memberID, role, err := am.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), memberID, role)))
	})
}

// WithIdentity stores the authenticated member on the context.
func WithIdentity(ctx context.Context, memberID, role string) context.Context {
	ctx = context.WithValue(ctx, MemberKey, memberID)
	return context.WithValue(ctx, RoleKey, role)
}

// Identity reads what Handle stored; ok is false on unauthenticated requests.
func Identity(ctx context.Context) (memberID, role string, ok bool) {
	memberID, ok1 := ctx.Value(MemberKey).(string)
	role, ok2 := ctx.Value(RoleKey).(string)
	return memberID, role, ok1 && ok2 && memberID != ""
}
