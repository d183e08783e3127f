package handlers

import (
	"context"
	"net/http"

	"copytrade/internal/models"
)

// reviewAction is the shared shape of every admin approve/reject endpoint.
type reviewAction func(ctx context.Context, actorID, id int64) error

func (h *Handler) review(w http.ResponseWriter, r *http.Request, action reviewAction, status string, fallback string) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := action(r.Context(), actorID, id); err != nil {
		respondServiceError(w, r, err, fallback)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

// statusFilter reads ?status= and checks it against valid, answering 400 on
// anything else. An empty filter lists every row.
func statusFilter(w http.ResponseWriter, r *http.Request, valid func(string) bool) (string, bool) {
	status := r.URL.Query().Get("status")
	if status != "" && !valid(status) {
		respondError(w, http.StatusBadRequest, errInvalidStatus.Error())
		return "", false
	}
	return status, true
}

func validBinding(s string) bool { return models.BindingStatus(s).Valid() }
func validReview(s string) bool  { return models.ReviewStatus(s).Valid() }

func (h *Handler) AdminListCopyTrades(w http.ResponseWriter, r *http.Request) {
	status, ok := statusFilter(w, r, validBinding)
	if !ok {
		return
	}
	limit, offset := paging(r)
	rows, err := h.bindings.ListAll(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load copy trades")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) ApproveCopyTrade(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.copytrade.Approve, string(models.BindingApproved), "approve_failed")
}

func (h *Handler) RejectCopyTrade(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.copytrade.Reject, string(models.BindingRejected), "reject_failed")
}

func (h *Handler) AdminListRecharges(w http.ResponseWriter, r *http.Request) {
	status, ok := statusFilter(w, r, validReview)
	if !ok {
		return
	}
	limit, offset := paging(r)
	rows, err := h.recharges.ListAll(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load recharges")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) ApproveRecharge(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.funds.ApproveRecharge, string(models.ReviewApproved), "approve_failed")
}

func (h *Handler) RejectRecharge(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.funds.RejectRecharge, string(models.ReviewRejected), "reject_failed")
}

func (h *Handler) AdminListWithdraws(w http.ResponseWriter, r *http.Request) {
	status, ok := statusFilter(w, r, validReview)
	if !ok {
		return
	}
	limit, offset := paging(r)
	rows, err := h.withdraws.ListAll(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load withdraws")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) ApproveWithdraw(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.funds.ApproveWithdraw, string(models.ReviewApproved), "approve_failed")
}

func (h *Handler) RejectWithdraw(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.funds.RejectWithdraw, string(models.ReviewRejected), "reject_failed")
}
