package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"copytrade/internal/logger"

	"github.com/sirupsen/logrus"
)

type AdminStore interface {
	IsAdmin(ctx context.Context, userID int64) (bool, bool, error)
	HasRole(ctx context.Context, userID int64, role string) (bool, error)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// RequireAdmin admits admins holding role. An empty role admits any admin;
// super admins hold every role.
func RequireAdmin(admins AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			denied, err := authorize(r.Context(), admins, userID, role)
			if err != nil {
				logger.WithComponent("middleware").WithFields(logrus.Fields{
					"user_id": userID,
					"role":    role,
					"error":   err.Error(),
				}).Error("admin check failed")
				writeError(w, http.StatusInternalServerError, "admin_check_failed")
				return
			}
			if denied != "" {
				writeError(w, http.StatusForbidden, denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authorize returns the denial code, or "" when the user may pass.
func authorize(ctx context.Context, admins AdminStore, userID int64, role string) (string, error) {
	isAdmin, isSuper, err := admins.IsAdmin(ctx, userID)
	if err != nil {
		return "", err
	}
	if !isAdmin {
		return "admin_required", nil
	}
	if isSuper || role == "" {
		return "", nil
	}
	hasRole, err := admins.HasRole(ctx, userID, role)
	if err != nil || hasRole {
		return "", err
	}
	return "role_required", nil
}
