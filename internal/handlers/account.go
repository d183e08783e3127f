package handlers

import (
	"net/http"

	"copytrade/internal/models"
)

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "unable to load balance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"balance":           formatMoney(user.Balance),
		"available_balance": formatMoney(user.AvailableBalance),
		"frozen":            formatMoney(user.Balance.Sub(user.AvailableBalance)),
	})
}

type walletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

func (h *Handler) SetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req walletRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.funds.SetWalletAddress(r.Context(), userID, req.WalletAddress); err != nil {
		respondServiceError(w, r, err, "unable to save wallet")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"wallet_address": req.WalletAddress})
}

func (h *Handler) ListActiveChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.List(r.Context(), true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load channels")
		return
	}
	respondJSON(w, http.StatusOK, channels)
}

type rechargeRequest struct {
	ChannelID int64  `json:"channel_id"`
	Amount    string `json:"amount"`
	TxID      string `json:"tx_id"`
}

func (h *Handler) SubmitRecharge(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req rechargeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.funds.SubmitRecharge(r.Context(), userID, req.ChannelID, amount, req.TxID)
	if err != nil {
		respondServiceError(w, r, err, "recharge_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "status": models.ReviewPending})
}

func (h *Handler) ListMyRecharges(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := paging(r)
	rows, err := h.recharges.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load recharges")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

type withdrawRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) SubmitWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.funds.SubmitWithdraw(r.Context(), userID, amount)
	if err != nil {
		respondServiceError(w, r, err, "withdraw_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "status": models.ReviewPending})
}

func (h *Handler) ListMyWithdraws(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, offset := paging(r)
	rows, err := h.withdraws.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load withdraws")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) InviteStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "unable to load user")
		return
	}
	stats, err := h.referral.Stats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err, "unable to load invite stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"referral_code": user.ReferralCode,
		"stats":         stats,
	})
}
