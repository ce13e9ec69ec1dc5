package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"verification-service/internal/config"
	"verification-service/internal/service"
)

type contextKey string

const (
	contextKeyUserID contextKey = "user_id"
	contextKeyRole   contextKey = "role"
)

// AuthMiddleware validates the bearer token and puts the subject and role
// on the request context. Tokens are HS256, issued by the gateway.
func AuthMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				respondWithError(w, fmt.Errorf("missing bearer token: %w", service.ErrUnauthorized))
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(cfg.Auth.JWTSecret), nil
			}, jwt.WithIssuer(cfg.Auth.Issuer), jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				respondWithError(w, fmt.Errorf("invalid token: %w", service.ErrUnauthorized))
				return
			}

			sub, _ := claims["sub"].(string)
			if sub == "" {
				respondWithError(w, fmt.Errorf("token missing subject: %w", service.ErrUnauthorized))
				return
			}
			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), contextKeyUserID, sub)
			ctx = context.WithValue(ctx, contextKeyRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles gates a route group to the given roles.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondWithError(w, fmt.Errorf("role %q not allowed: %w", role, service.ErrPermissionDenied))
		})
	}
}

// UserIDFromContext returns the authenticated subject, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyUserID).(string)
	return id
}

// RoleFromContext returns the authenticated role, or "".
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(contextKeyRole).(string)
	return role
}
