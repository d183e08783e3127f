package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"copytrade/internal/db"
	"copytrade/internal/store"

	"github.com/jmoiron/sqlx"
)

// mutateCatalog runs a single-row catalog change with its audit entry. A row
// still referenced elsewhere is 409; zero affected rows answers zeroStatus,
// 404 for updates and 409 for guarded deletes of rows known to exist.
func (h *Handler) mutateCatalog(w http.ResponseWriter, r *http.Request, action, entity string, id int64, data any, zeroStatus int, fn func(tx *sqlx.Tx) (int64, error)) bool {
	actorID, ok := currentUser(w, r)
	if !ok {
		return false
	}
	var rows int64
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		rows, err = fn(tx)
		if err != nil || rows == 0 {
			return err
		}
		return h.audit.Log(r.Context(), tx, actorID, action, entity, strconv.FormatInt(id, 10), data)
	})
	switch {
	case err != nil && db.IsForeignKeyViolation(err):
		respondError(w, http.StatusConflict, entity+"_in_use")
		return false
	case err != nil:
		respondServiceError(w, r, err, "unable to "+strings.ReplaceAll(action, "_", " "))
		return false
	case rows == 0 && zeroStatus == http.StatusConflict:
		respondError(w, http.StatusConflict, entity+"_in_use")
		return false
	case rows == 0:
		respondError(w, zeroStatus, entity+"_not_found")
		return false
	}
	return true
}

func (h *Handler) CreateMentor(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req mentorPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	assets, commission, err := req.validate()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	input := store.MentorInput{Name: strings.TrimSpace(req.Name), Years: req.Years, Assets: assets, Commission: commission, Img: req.Img}
	id, err := h.audited(r.Context(), actorID, "create_mentor", "mentor", req, func(tx *sqlx.Tx) (int64, error) {
		return h.mentors.Create(r.Context(), tx, input)
	})
	if err != nil {
		respondServiceError(w, r, err, "unable to create mentor")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) UpdateMentor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req mentorPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	assets, commission, err := req.validate()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	input := store.MentorInput{Name: strings.TrimSpace(req.Name), Years: req.Years, Assets: assets, Commission: commission, Img: req.Img}
	if h.mutateCatalog(w, r, "update_mentor", "mentor", id, req, http.StatusNotFound, func(tx *sqlx.Tx) (int64, error) {
		return h.mentors.Update(r.Context(), tx, id, input)
	}) {
		respondJSON(w, http.StatusOK, map[string]int64{"id": id})
	}
}

// DeleteMentor refuses mentors that still have bindings or stocks.
func (h *Handler) DeleteMentor(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.mentors.GetByID(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "unable to load mentor")
		return
	}
	if h.mutateCatalog(w, r, "delete_mentor", "mentor", id, nil, http.StatusConflict, func(tx *sqlx.Tx) (int64, error) {
		return h.mentors.Delete(r.Context(), tx, id)
	}) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.List(r.Context(), false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load channels")
		return
	}
	respondJSON(w, http.StatusOK, channels)
}

func channelInput(p channelPayload) store.ChannelInput {
	return store.ChannelInput{
		CurrencyName:  strings.TrimSpace(p.CurrencyName),
		Network:       strings.TrimSpace(p.Network),
		WalletAddress: strings.TrimSpace(p.WalletAddress),
		Status:        p.Status,
	}
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req channelPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := h.audited(r.Context(), actorID, "create_channel", "channel", req, func(tx *sqlx.Tx) (int64, error) {
		return h.channels.Create(r.Context(), tx, channelInput(req))
	})
	if err != nil {
		respondServiceError(w, r, err, "unable to create channel")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req channelPayload
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.mutateCatalog(w, r, "update_channel", "channel", id, req, http.StatusNotFound, func(tx *sqlx.Tx) (int64, error) {
		return h.channels.Update(r.Context(), tx, id, channelInput(req))
	}) {
		respondJSON(w, http.StatusOK, map[string]int64{"id": id})
	}
}

// DeleteChannel refuses channels that recharges already point at; deactivate
// them instead.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.channels.GetByID(r.Context(), id); err != nil {
		respondServiceError(w, r, err, "unable to load channel")
		return
	}
	if h.mutateCatalog(w, r, "delete_channel", "channel", id, nil, http.StatusConflict, func(tx *sqlx.Tx) (int64, error) {
		return h.channels.Delete(r.Context(), tx, id)
	}) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
