// Package middleware provides HTTP middleware for authentication and authorization.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// curatorKey is the context key for storing the authenticated curator.
const curatorKey ContextKey = "curator"

// TokenValidator is an interface for validating JWT tokens.
// This allows the middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (CuratorGetter, error)
}

// CuratorGetter is an interface for extracting the curator identity from
// token claims.
type CuratorGetter interface {
	GetCurator() string
}

// AuthMiddleware creates middleware that validates JWT tokens and adds the
// curator identity to the request context.
func AuthMiddleware(jwtService TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Handle case-insensitive "Bearer" prefix
			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), curatorKey, claims.GetCurator())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCurator extracts the authenticated curator from the request context.
func GetCurator(r *http.Request) (string, error) {
	curator, ok := r.Context().Value(curatorKey).(string)
	if !ok || curator == "" {
		return "", fmt.Errorf("curator not found in request context")
	}
	return curator, nil
}
