package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/docpair/internal/store"
)

// StatsHandler serves reporting endpoints over the ledger and invoice
// population.
type StatsHandler struct {
	Store *store.Postgres
}

const recentEventLimit = 20

// GetStats handles GET /api/pairing/stats.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context(), recentEventLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse(stats))
}

type eventView struct {
	Timestamp              string  `json:"timestamp"`
	InvoiceID              string  `json:"invoice_id"`
	DeliveryNoteID         *string `json:"delivery_note_id,omitempty"`
	PreviousDeliveryNoteID *string `json:"previous_delivery_note_id,omitempty"`
	Action                 string  `json:"action"`
	ActorType              string  `json:"actor_type"`
	UserID                 *string `json:"user_id,omitempty"`
	ModelVersion           *string `json:"model_version,omitempty"`
}

func statsResponse(s *store.PairingStats) map[string]interface{} {
	events := make([]eventView, 0, len(s.RecentEvents))
	for _, e := range s.RecentEvents {
		events = append(events, newEventView(e))
	}
	return map[string]interface{}{
		"total_invoices": s.TotalInvoices,
		"by_status": map[string]int{
			store.StatusUnpaired:     s.UnpairedCount,
			store.StatusSuggested:    s.SuggestedCount,
			store.StatusAutoPaired:   s.AutoPairedCount,
			store.StatusManualPaired: s.ManualPairedCount,
		},
		"paired_count":     s.PairedCount,
		"avg_confidence":   s.AvgConfidence,
		"pairing_rate_7d":  s.PairingRate7d,
		"pairing_rate_30d": s.PairingRate30d,
		"recent_events":    events,
	}
}

func newEventView(e store.PairingEvent) eventView {
	return eventView{
		Timestamp:              e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		InvoiceID:              e.InvoiceID,
		DeliveryNoteID:         e.DeliveryNoteID,
		PreviousDeliveryNoteID: e.PreviousDeliveryNoteID,
		Action:                 e.Action,
		ActorType:              e.ActorType,
		UserID:                 e.UserID,
		ModelVersion:           e.ModelVersion,
	}
}

// GetHistory handles GET /api/pairing/invoice/{id}/history.
func (h *StatsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.Store.Document(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	events, err := h.Store.EventsForInvoice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, newEventView(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_id": id,
		"events":     views,
	})
}
