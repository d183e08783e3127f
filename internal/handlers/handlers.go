package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"copytrade/internal/logger"
	"copytrade/internal/middleware"
	"copytrade/internal/money"
	"copytrade/internal/referral"
	"copytrade/internal/services"
	"copytrade/internal/settlement"
	"copytrade/internal/store"
	"copytrade/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the service error taxonomy onto HTTP. fallback is
// the code reported for unexpected errors, which are logged.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var partial *services.PartialFailureError
	switch {
	case errors.As(err, &partial):
		respondJSON(w, http.StatusMultiStatus, map[string]any{
			"error":               "partial_failure",
			"message":             partial.Error(),
			"stock_id":            partial.StockID,
			"settled_binding_ids": partial.SettledBindingIDs,
			"failed_user_ids":     partial.FailedUserIDs,
		})
	case errors.Is(err, services.ErrLossNotConfirmed):
		respondError(w, http.StatusBadRequest, "loss_confirmation_required")
	case errors.Is(err, services.ErrWithdrawOutOfRange):
		respondError(w, http.StatusBadRequest, "withdraw_out_of_range")
	case errors.Is(err, services.ErrRechargeTooSmall):
		respondError(w, http.StatusBadRequest, "recharge_too_small")
	case errors.Is(err, services.ErrWalletMissing):
		respondError(w, http.StatusBadRequest, "wallet_missing")
	case errors.Is(err, services.ErrChannelInactive):
		respondError(w, http.StatusBadRequest, "channel_inactive")
	case errors.Is(err, services.ErrReferralCode):
		respondError(w, http.StatusBadRequest, "invalid_referral_code")
	case errors.Is(err, referral.ErrInvalidUser):
		respondError(w, http.StatusBadRequest, "invalid_user")
	case errors.Is(err, validator.ErrInvalidPhone):
		respondError(w, http.StatusBadRequest, "invalid_phone")
	case errors.Is(err, validator.ErrInvalidPassword):
		respondError(w, http.StatusBadRequest, "invalid_password")
	case errors.Is(err, validator.ErrInvalidAddress):
		respondError(w, http.StatusBadRequest, "invalid_wallet_address")
	case errors.Is(err, settlement.ErrInvalidPrice):
		respondError(w, http.StatusBadRequest, "invalid_price")
	case errors.Is(err, settlement.ErrInvalidCommission):
		respondError(w, http.StatusBadRequest, "invalid_commission")
	case errors.Is(err, services.ErrInvalidState):
		respondError(w, http.StatusConflict, "invalid_state")
	case errors.Is(err, services.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid_input")
	case errors.Is(err, services.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, "insufficient_balance")
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, services.ErrPhoneTaken):
		respondError(w, http.StatusConflict, "phone_taken")
	case errors.Is(err, services.ErrConflict):
		respondError(w, http.StatusConflict, "conflict")
	case errors.Is(err, services.ErrNotFound), store.IsNotFound(err):
		respondError(w, http.StatusNotFound, "not_found")
	default:
		logger.Log.WithError(err).WithField("path", r.URL.Path).Error(fallback)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

// audited runs fn and the audit entry for the row it touched in one
// transaction. fn returns the id recorded as the audit entity id.
func (h *Handler) audited(ctx context.Context, actorID int64, action, entity string, data any, fn func(tx *sqlx.Tx) (int64, error)) (int64, error) {
	var id int64
	err := h.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if id, err = fn(tx); err != nil {
			return err
		}
		return h.audit.Log(ctx, tx, actorID, action, entity, strconv.FormatInt(id, 10), data)
	})
	return id, err
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

// pathID reads a positive integer URL parameter, answering 400 otherwise.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name)
		return 0, false
	}
	return id, true
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func paging(r *http.Request) (int, int) {
	query := r.URL.Query()
	return store.Page(parseInt(query.Get("limit"), 0), parseInt(query.Get("page"), 1))
}

func formatMoney(value decimal.Decimal) string {
	return money.Format(value)
}
