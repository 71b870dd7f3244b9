package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"kyc-service/internal/service"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserIDFromContext returns the authenticated user id set by AuthMiddleware.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// AuthMiddleware validates the Bearer token and injects the user id into the
// request context.
func AuthMiddleware(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				respondWithError(w, http.StatusUnauthorized, errors.New("missing bearer token"), "Authentication required")
				return
			}
			userID, err := auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, err, "Invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
		})
	}
}
