package handlers

import (
	"net/http"

	"copytrade/internal/models"
)

var (
	activeStatuses  = []models.BindingStatus{models.BindingPending, models.BindingApproved}
	historyStatuses = []models.BindingStatus{models.BindingSettled, models.BindingRejected, models.BindingCancelled}
)

func (h *Handler) ListMentors(w http.ResponseWriter, r *http.Request) {
	mentors, err := h.mentors.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load mentors")
		return
	}
	respondJSON(w, http.StatusOK, mentors)
}

type followRequest struct {
	MentorID int64  `json:"mentor_id"`
	Amount   string `json:"amount"`
}

func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req followRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.copytrade.Follow(r.Context(), userID, req.MentorID, amount)
	if err != nil {
		respondServiceError(w, r, err, "follow_failed")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "status": models.BindingPending})
}

func (h *Handler) ActiveOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, activeStatuses)
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, historyStatuses)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, statuses []models.BindingStatus) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	rows, err := h.bindings.ListByUser(r.Context(), userID, statuses)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load orders")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.copytrade.Cancel(r.Context(), userID, id); err != nil {
		respondServiceError(w, r, err, "cancel_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.BindingCancelled})
}
