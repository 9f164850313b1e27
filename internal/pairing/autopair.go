package pairing

import (
	"context"
	"fmt"

	"github.com/docpair/internal/store"
)

// RuleModelVersion tags automated decisions taken by the deterministic
// scorer alone, when no trained model is loaded.
const RuleModelVersion = "rule_scorer_v1"

// Structured reasons returned when auto-pairing declines to act.
const (
	ReasonAlreadyPaired  = "already_paired"
	ReasonNoSuggestions  = "no_suggestions"
	ReasonBelowThreshold = "below_threshold"
)

// AutoPairResult reports what the policy did for one invoice.
type AutoPairResult struct {
	InvoiceID      string  `json:"invoice_id"`
	Paired         bool    `json:"paired"`
	Reason         string  `json:"reason,omitempty"`
	DeliveryNoteID string  `json:"delivery_note_id,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	DocumentStatus string  `json:"document_status,omitempty"`
	Issues         []Issue `json:"issues,omitempty"`
}

// AutoPair commits the top suggestion when it clears the auto-pair
// threshold, then runs issue detection on the freshly paired documents.
// Anything short of the threshold returns a structured reason and mutates
// nothing beyond the advisory suggestion state.
func (s *Service) AutoPair(ctx context.Context, invoiceID string) (*AutoPairResult, error) {
	invoice, err := s.store.Document(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.DocType != store.DocTypeInvoice {
		return nil, store.Validationf("document %s is not an invoice", invoiceID)
	}
	if invoice.DeliveryNoteID != nil {
		return &AutoPairResult{InvoiceID: invoiceID, Reason: ReasonAlreadyPaired}, nil
	}

	matches, err := s.scorer.FindMatches(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := s.persistEvaluation(ctx, invoice, matches); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &AutoPairResult{InvoiceID: invoiceID, Reason: ReasonNoSuggestions}, nil
	}

	top := matches[0]
	if top.Confidence < s.cfg.AutoPairThreshold {
		return &AutoPairResult{InvoiceID: invoiceID, Reason: ReasonBelowThreshold, Confidence: top.Confidence}, nil
	}

	version := RuleModelVersion
	if s.model != nil {
		version = s.model.Version
	}
	ev := store.EventRecord{
		Action:       store.ActionAutoPaired,
		ActorType:    store.ActorSystem,
		ModelVersion: &version,
	}
	if encoded, err := top.Features.Encode(); err == nil {
		ev.FeatureVectorJSON = &encoded
	}
	err = s.store.Link(ctx, store.LinkParams{
		InvoiceID:      invoiceID,
		DeliveryNoteID: top.DeliveryNoteID,
		Status:         store.StatusAutoPaired,
		Confidence:     top.Confidence,
		ModelVersion:   version,
		Event:          ev,
	})
	if err != nil {
		return nil, err
	}

	issues, err := s.detectIssues(ctx, invoiceID, top.DeliveryNoteID)
	if err != nil {
		// The pairing is committed; a failed inspection only costs the
		// flagging pass.
		s.log.WithError(err).WithField("invoice", invoiceID).Warn("issue detection failed after auto-pair")
		issues = nil
	}

	docStatus := store.DocStatusMatched
	if len(issues) > 0 {
		docStatus = store.DocStatusFlagged
	}
	if err := s.store.SetDocumentStatus(ctx, invoiceID, docStatus); err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("invoice %s auto-paired to %s at %.2f (%s, %d issues)",
		invoiceID, top.DeliveryNoteID, top.Confidence, version, len(issues))
	if err := s.store.AppendAudit(ctx, store.ActorSystem, "auto_pair", detail); err != nil {
		s.log.WithError(err).Warn("audit append failed")
	}

	return &AutoPairResult{
		InvoiceID:      invoiceID,
		Paired:         true,
		DeliveryNoteID: top.DeliveryNoteID,
		Confidence:     top.Confidence,
		DocumentStatus: docStatus,
		Issues:         issues,
	}, nil
}
