package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/docpair/internal/pairing"
)

// PairingHandler exposes the pairing state machine over HTTP.
type PairingHandler struct {
	Service *pairing.Service
	Log     *logrus.Entry
}

// GetEvaluation handles GET /api/pairing/invoice/{id}?mode=normal|review.
func (h *PairingHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = pairing.ModeNormal
	}
	if mode != pairing.ModeNormal && mode != pairing.ModeReview {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "mode must be normal or review"})
		return
	}

	eval, err := h.Service.Evaluate(r.Context(), id, mode)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

type confirmRequest struct {
	DeliveryNoteID string  `json:"delivery_note_id"`
	ActorType      string  `json:"actor_type"`
	UserID         *string `json:"user_id"`
}

// Confirm handles POST /api/pairing/invoice/{id}/confirm.
func (h *PairingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req confirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DeliveryNoteID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "delivery_note_id is required"})
		return
	}
	if err := h.Service.Confirm(r.Context(), id, req.DeliveryNoteID, req.ActorType, req.UserID); err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "manual_paired"})
}

type rejectRequest struct {
	ActorType string  `json:"actor_type"`
	UserID    *string `json:"user_id"`
}

// Reject handles POST /api/pairing/invoice/{id}/reject.
func (h *PairingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req rejectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.Service.Reject(r.Context(), id, req.ActorType, req.UserID); err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unpaired"})
}

// Unpair handles POST /api/pairing/invoice/{id}/unpair.
func (h *PairingHandler) Unpair(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req rejectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.Service.Unpair(r.Context(), id, req.ActorType, req.UserID); err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unpaired"})
}

type reassignRequest struct {
	NewDeliveryNoteID string  `json:"new_delivery_note_id"`
	ActorType         string  `json:"actor_type"`
	UserID            *string `json:"user_id"`
}

// Reassign handles POST /api/pairing/invoice/{id}/reassign.
func (h *PairingHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req reassignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.NewDeliveryNoteID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "new_delivery_note_id is required"})
		return
	}
	if err := h.Service.Reassign(r.Context(), id, req.NewDeliveryNoteID, req.ActorType, req.UserID); err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "manual_paired"})
}

// AutoPair handles POST /api/pairing/invoice/{id}/auto-pair.
func (h *PairingHandler) AutoPair(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, err := h.Service.AutoPair(r.Context(), id)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchRequest struct {
	InvoiceIDs   []string `json:"invoice_ids"`
	StatusFilter []string `json:"status_filter"`
}

// BatchReevaluate handles POST /api/pairing/batch/re-evaluate.
func (h *PairingHandler) BatchReevaluate(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, err := h.Service.BatchReevaluate(r.Context(), req.InvoiceIDs, req.StatusFilter)
	if err != nil {
		h.logFailure(r, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

func (h *PairingHandler) logFailure(r *http.Request, err error) {
	h.Log.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Warn("pairing request failed")
}
