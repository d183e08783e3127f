package handlers

import (
	"net/http"
	"strings"

	"copytrade/internal/db"
	"copytrade/internal/models"
	"copytrade/internal/store"

	"github.com/jmoiron/sqlx"
)

// requireSuper answers 403 unless the caller is a super admin.
func (h *Handler) requireSuper(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := currentUser(w, r)
	if !ok {
		return 0, false
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return 0, false
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return 0, false
	}
	return userID, true
}

func (h *Handler) AdminMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	roles := models.Roles
	if !isSuper {
		roles, err = h.admin.Roles(r.Context(), userID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "unable to load roles")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":        userID,
		"is_super_admin": isSuper,
		"roles":          roles,
	})
}

type promoteRequest struct {
	PhoneNumber string `json:"phone_number"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireSuper(w, r)
	if !ok {
		return
	}
	var req promoteRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.PhoneNumber) == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	target, err := h.users.GetByPhone(r.Context(), strings.TrimSpace(req.PhoneNumber))
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	_, err = h.audited(r.Context(), actorID, "promote_admin", "admin", map[string]string{
		"phone_number": target.PhoneNumber,
	}, func(tx *sqlx.Tx) (int64, error) {
		return target.ID, h.admin.CreateAdmin(r.Context(), tx, target.ID, false, &actorID)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			respondError(w, http.StatusConflict, "already_admin")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"status": "promoted", "user_id": target.ID})
}

type grantRoleRequest struct {
	AdminUserID int64  `json:"admin_user_id"`
	Role        string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireSuper(w, r)
	if !ok {
		return
	}
	var req grantRoleRequest
	if err := decodeJSON(r, &req); err != nil || req.AdminUserID <= 0 || req.Role == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !models.ValidRole(req.Role) {
		respondError(w, http.StatusBadRequest, "unknown_role")
		return
	}
	isAdmin, isSuper, err := h.admin.IsAdmin(r.Context(), req.AdminUserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if isSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	_, err = h.audited(r.Context(), actorID, "grant_role", "admin", map[string]string{
		"role": req.Role,
	}, func(tx *sqlx.Tx) (int64, error) {
		return req.AdminUserID, h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	rows, err := h.users.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("search")), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load users")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	rows, err := h.audit.List(r.Context(), r.URL.Query().Get("entity_type"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}
