package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/docpair/internal/resolver"
	"github.com/docpair/internal/store"
)

// DocumentsHandler ingests parsed documents and resolves their suppliers.
type DocumentsHandler struct {
	Store    *store.Postgres
	Resolver *resolver.Resolver
}

type lineItemRequest struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type createDocumentRequest struct {
	DocType      string            `json:"doc_type"`
	SupplierName string            `json:"supplier_name"`
	DocDate      string            `json:"doc_date"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	Currency     string            `json:"currency"`
	Venue        *string           `json:"venue"`
	LineItems    []lineItemRequest `json:"line_items"`
}

// Create handles POST /api/documents.
func (h *DocumentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DocType != store.DocTypeInvoice && req.DocType != store.DocTypeDeliveryNote {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "doc_type must be invoice or delivery_note"})
		return
	}
	if req.SupplierName == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "supplier_name is required"})
		return
	}

	var docDate *time.Time
	if req.DocDate != "" {
		d, err := time.Parse("2006-01-02", req.DocDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "doc_date must be YYYY-MM-DD"})
			return
		}
		docDate = &d
	}

	res := h.Resolver.Resolve(r.Context(), req.SupplierName)

	doc := &store.Document{
		ID:          uuid.NewString(),
		DocType:     req.DocType,
		SupplierRaw: req.SupplierName,
		SupplierID:  res.SupplierID,
		DocDate:     docDate,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		Venue:       req.Venue,
	}
	items := make([]store.LineItem, 0, len(req.LineItems))
	for _, it := range req.LineItems {
		items = append(items, store.LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}

	if err := h.Store.CreateDocument(r.Context(), doc, items); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id": doc.ID,
		"supplier_resolution": map[string]interface{}{
			"supplier_id": res.SupplierID,
			"action":      res.Action,
			"confidence":  res.Confidence,
		},
	})
}

type resolveRequest struct {
	Name string `json:"name"`
}

// Resolve handles POST /api/suppliers/resolve, a dry-run resolution that
// still logs and queues reviews like ingestion does.
func (h *DocumentsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "name is required"})
		return
	}
	res := h.Resolver.Resolve(r.Context(), req.Name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"supplier_id":   res.SupplierID,
		"candidate_id":  res.CandidateID,
		"supplier_name": res.SupplierName,
		"confidence":    res.Confidence,
		"action":        res.Action,
	})
}
