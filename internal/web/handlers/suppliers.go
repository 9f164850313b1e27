package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/docpair/internal/store"
)

// SupplierHandler serves the alias review queue.
type SupplierHandler struct {
	Store *store.Postgres
}

// ListReviews handles GET /api/suppliers/reviews.
func (h *SupplierHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.Store.PendingAliasReviews(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if reviews == nil {
		reviews = []store.AliasReview{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(reviews),
		"reviews": reviews,
	})
}

type reviewDecision struct {
	ReviewedBy string `json:"reviewed_by"`
}

// Approve handles POST /api/suppliers/reviews/{id}/approve.
func (h *SupplierHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, true)
}

// Reject handles POST /api/suppliers/reviews/{id}/reject.
func (h *SupplierHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, false)
}

func (h *SupplierHandler) resolve(w http.ResponseWriter, r *http.Request, approve bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid review id"})
		return
	}
	var req reviewDecision
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ReviewedBy == "" {
		req.ReviewedBy = "unknown"
	}
	if err := h.Store.ResolveAliasReview(r.Context(), id, approve, req.ReviewedBy); err != nil {
		writeError(w, err)
		return
	}
	status := store.ReviewRejected
	if approve {
		status = store.ReviewApproved
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
