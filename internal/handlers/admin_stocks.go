package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"copytrade/internal/models"
	"copytrade/internal/services"
	"copytrade/internal/store"

	"github.com/jmoiron/sqlx"
)

func (h *Handler) ListStocks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch models.StockStatus(status) {
	case "", models.StockPending, models.StockPublished, models.StockSettled:
	default:
		respondError(w, http.StatusBadRequest, errInvalidStatus.Error())
		return
	}
	limit, offset := paging(r)
	rows, err := h.stocks.List(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stocks")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// stockRequest decodes and validates a stock payload, checking the mentor
// exists so a bad mentor_id is a 404 rather than a constraint error.
func (h *Handler) stockRequest(w http.ResponseWriter, r *http.Request) (stockPayload, store.StockInput, bool) {
	var req stockPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return req, store.StockInput{}, false
	}
	buy, sell, err := req.validate()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return req, store.StockInput{}, false
	}
	if _, err := h.mentors.GetByID(r.Context(), req.MentorID); err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "mentor_not_found")
			return req, store.StockInput{}, false
		}
		respondError(w, http.StatusInternalServerError, "unable to load mentor")
		return req, store.StockInput{}, false
	}
	return req, store.StockInput{
		MentorID:   req.MentorID,
		CryptoName: strings.TrimSpace(req.CryptoName),
		BuyPrice:   buy,
		SellPrice:  sell,
	}, true
}

func (h *Handler) CreateStock(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, input, ok := h.stockRequest(w, r)
	if !ok {
		return
	}
	id, err := h.audited(r.Context(), actorID, "create_stock", "stock", req, func(tx *sqlx.Tx) (int64, error) {
		return h.stocks.Create(r.Context(), tx, input)
	})
	if err != nil {
		respondServiceError(w, r, err, "unable to create stock")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "status": models.StockPending})
}

// stockNotPending answers 404 or 409 unless the stock can still be edited.
// The guarded UPDATE/DELETE re-checks the status, so a publish racing this
// check surfaces as a 404 from mutateCatalog.
func (h *Handler) stockNotPending(w http.ResponseWriter, r *http.Request, id int64) bool {
	stock, err := h.stocks.GetByID(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "stock_not_found")
			return true
		}
		respondError(w, http.StatusInternalServerError, "unable to load stock")
		return true
	}
	if stock.Status != models.StockPending {
		respondError(w, http.StatusConflict, "stock_not_pending")
		return true
	}
	return false
}

func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if h.stockNotPending(w, r, id) {
		return
	}
	req, input, ok := h.stockRequest(w, r)
	if !ok {
		return
	}
	if h.mutateCatalog(w, r, "update_stock", "stock", id, req, http.StatusNotFound, func(tx *sqlx.Tx) (int64, error) {
		return h.stocks.UpdatePending(r.Context(), tx, id, input)
	}) {
		respondJSON(w, http.StatusOK, map[string]int64{"id": id})
	}
}

func (h *Handler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if h.stockNotPending(w, r, id) {
		return
	}
	if h.mutateCatalog(w, r, "delete_stock", "stock", id, nil, http.StatusNotFound, func(tx *sqlx.Tx) (int64, error) {
		return h.stocks.DeletePending(r.Context(), tx, id)
	}) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func (h *Handler) PublishStock(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.settlement.Publish(r.Context(), actorID, id)
	if err != nil {
		respondServiceError(w, r, err, "publish_failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) PreviewSettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	plan, err := h.settlement.Preview(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "preview_failed")
		return
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID := int64(parseInt(raw, 0))
		if userID <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_user_id")
			return
		}
		delta, found := plan.Delta(userID)
		if !found {
			respondError(w, http.StatusNotFound, "user_not_in_settlement")
			return
		}
		respondJSON(w, http.StatusOK, delta)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

type settleRequest struct {
	ConfirmLoss bool `json:"confirm_loss"`
}

func (h *Handler) SettleStock(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req settleRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.settlement.Settle(r.Context(), services.SettleRequest{
		ActorID:     actorID,
		StockID:     id,
		ConfirmLoss: req.ConfirmLoss,
	})
	if err != nil {
		respondServiceError(w, r, err, "settle_failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) ResumeSettlement(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.settlement.Resume(r.Context(), actorID, id)
	if err != nil {
		respondServiceError(w, r, err, "resume_failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) RetrySettlementUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	result, err := h.settlement.RetryUser(r.Context(), actorID, id, userID)
	if err != nil {
		respondServiceError(w, r, err, "retry_failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) ListCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	credits, err := h.credits.ListByStock(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load credits")
		return
	}
	respondJSON(w, http.StatusOK, credits)
}
