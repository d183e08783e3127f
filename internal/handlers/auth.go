package handlers

import (
	"net/http"
	"strings"

	"copytrade/internal/auth"
	"copytrade/internal/middleware"
	"copytrade/internal/services"
	"copytrade/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type registerRequest struct {
	PhoneNumber  string `json:"phone_number"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.accounts.Register(r.Context(), services.RegisterRequest{
		PhoneNumber:  req.PhoneNumber,
		Password:     req.Password,
		ReferralCode: req.ReferralCode,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		respondServiceError(w, r, err, "registration_failed")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, result.UserID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"token":         token,
		"user_id":       result.UserID,
		"referral_code": result.ReferralCode,
		"invited_by":    result.InvitedBy,
		"is_admin":      result.SuperAdmin,
	})
}

type loginRequest struct {
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := h.accounts.Login(r.Context(), req.PhoneNumber, req.Password, r.RemoteAddr)
	if err != nil {
		respondServiceError(w, r, err, "login_failed")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, h.cfg.TokenTTL)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"user_id": user.ID,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "unable to load user")
		return
	}
	isAdmin, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":                user.ID,
		"phone_number":      user.PhoneNumber,
		"balance":           formatMoney(user.Balance),
		"available_balance": formatMoney(user.AvailableBalance),
		"wallet_address":    user.WalletAddress,
		"referral_code":     user.ReferralCode,
		"invited_by":        user.InvitedBy,
		"is_admin":          isAdmin,
		"is_super_admin":    isSuper,
		"created_at":        user.CreatedAt,
	})
}

// Logout tells every open session of the user to drop its token. Tokens are
// stateless, so clients are expected to discard them on this event.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	_, err := h.audited(r.Context(), userID, "logout", "user", map[string]string{
		"ip": r.RemoteAddr,
	}, func(*sqlx.Tx) (int64, error) {
		return userID, nil
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "logout_failed")
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(userID, websocket.Event{
			Type: websocket.EventSessionLogout,
			Data: map[string]string{"reason": "logout"},
		})
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// WS upgrades to the push channel. Browsers cannot set headers on a
// websocket handshake, so the token may also come as ?token=.
func (h *Handler) WS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	token = strings.TrimSpace(token)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
