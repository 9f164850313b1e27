// Package pairing implements the invoice/delivery-note pairing state
// machine, evaluation flow and auto-pairing policy.
package pairing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/docpair/internal/match"
	"github.com/docpair/internal/store"
)

// ManualModelVersion tags pairings committed by a human rather than a
// scorer.
const ManualModelVersion = "manual_pairing"

// Evaluation modes.
const (
	ModeNormal = "normal"
	ModeReview = "review"
)

// Store is the persistence surface the service needs. The Postgres store
// satisfies it; tests use an in-memory implementation.
type Store interface {
	Document(ctx context.Context, id string) (*store.Document, error)
	LineItems(ctx context.Context, documentID string) ([]store.LineItem, error)
	DeliveryNoteCandidates(ctx context.Context, invoiceID, supplierID string, around time.Time, windowDays int) ([]*store.Document, error)
	Cadence(ctx context.Context, supplierID, venueID string) (*store.CadenceStats, error)

	Link(ctx context.Context, params store.LinkParams) error
	Clear(ctx context.Context, params store.ClearParams) error
	Suggest(ctx context.Context, params store.SuggestParams) error
	SetDocumentStatus(ctx context.Context, id, status string) error

	EventsForInvoice(ctx context.Context, invoiceID string) ([]store.PairingEvent, error)
	InvoiceIDsByStatus(ctx context.Context, statuses []string) ([]string, error)
	ExistingInvoiceIDs(ctx context.Context, ids []string) ([]string, error)
	AppendAudit(ctx context.Context, actor, action, detail string) error
}

// Config carries the policy thresholds.
type Config struct {
	DateWindowDays      int
	AutoPairThreshold   float64
	SuggestionThreshold float64
	BatchWorkers        int
}

// Service owns all pairing transitions for invoices.
type Service struct {
	store  Store
	scorer *match.Scorer
	model  *match.Model // nil when no trained model exists
	cfg    Config
	log    *logrus.Entry
}

// New builds the service. model may be nil.
func New(st Store, model *match.Model, cfg Config, log *logrus.Entry) *Service {
	return &Service{
		store:  st,
		scorer: match.NewScorer(st, cfg.DateWindowDays, log),
		model:  model,
		cfg:    cfg,
		log:    log,
	}
}

// Candidate is one scored suggestion exposed to callers.
type Candidate struct {
	DeliveryNoteID   string                `json:"delivery_note_id"`
	Confidence       float64               `json:"confidence"`
	Status           string                `json:"status"`
	DateDeltaDays    int                   `json:"date_delta_days"`
	QuantityScore    float64               `json:"quantity_score"`
	ModelProbability *float64              `json:"model_probability,omitempty"`
	Quantity         *match.QuantityReport `json:"quantity_report,omitempty"`
}

// Evaluation is the current pairing picture for one invoice.
type Evaluation struct {
	InvoiceID      string      `json:"invoice_id"`
	PairingStatus  string      `json:"pairing_status"`
	DeliveryNoteID *string     `json:"delivery_note_id,omitempty"`
	Confidence     *float64    `json:"confidence,omitempty"`
	ModelVersion   *string     `json:"model_version,omitempty"`
	Candidates     []Candidate `json:"candidates"`
}

// Evaluate scores an invoice and persists the resulting advisory status.
// An unpaired invoice whose best candidate clears the suggestion threshold
// moves to suggested; one with no candidates is marked unmatched. Committed
// pairs are returned as-is without re-scoring side effects.
func (s *Service) Evaluate(ctx context.Context, invoiceID, mode string) (*Evaluation, error) {
	invoice, err := s.store.Document(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.DocType != store.DocTypeInvoice {
		return nil, store.Validationf("document %s is not an invoice", invoiceID)
	}

	eval := &Evaluation{
		InvoiceID:      invoiceID,
		PairingStatus:  invoice.PairingStatus,
		DeliveryNoteID: invoice.DeliveryNoteID,
		Confidence:     invoice.PairingConfidence,
		ModelVersion:   invoice.PairingModelVersion,
	}
	if invoice.DeliveryNoteID != nil {
		return eval, nil
	}

	matches, err := s.scorer.FindMatches(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	eval.Candidates = s.presentMatches(matches, mode)

	if err := s.persistEvaluation(ctx, invoice, matches); err != nil {
		return nil, err
	}
	if len(matches) > 0 && matches[0].Confidence >= s.cfg.SuggestionThreshold {
		eval.PairingStatus = store.StatusSuggested
		eval.Confidence = &matches[0].Confidence
	} else {
		eval.PairingStatus = store.StatusUnpaired
		eval.Confidence = nil
	}
	return eval, nil
}

func (s *Service) presentMatches(matches []match.Match, mode string) []Candidate {
	out := make([]Candidate, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		c := Candidate{
			DeliveryNoteID: m.DeliveryNoteID,
			Confidence:     m.Confidence,
			Status:         m.Status,
			DateDeltaDays:  m.DateDeltaDays,
			QuantityScore:  m.QuantityScore,
		}
		if s.model != nil {
			p := s.model.Score(m.Features)
			c.ModelProbability = &p
		}
		if mode == ModeReview {
			q := m.Quantity
			c.Quantity = &q
		}
		out = append(out, c)
	}
	return out
}

// persistEvaluation records the advisory outcome, writing a ledger event
// only when the status actually moves.
func (s *Service) persistEvaluation(ctx context.Context, invoice *store.Document, matches []match.Match) error {
	var (
		status     = store.StatusUnpaired
		confidence *float64
		event      *store.EventRecord
	)
	if len(matches) > 0 && matches[0].Confidence >= s.cfg.SuggestionThreshold {
		status = store.StatusSuggested
		confidence = &matches[0].Confidence
		if invoice.PairingStatus != store.StatusSuggested {
			event = s.systemEvent(store.ActionSuggested, &matches[0])
		}
	} else if invoice.PairingStatus == store.StatusSuggested {
		event = s.systemEvent(store.ActionUnmatched, nil)
	}

	if status == invoice.PairingStatus && event == nil {
		return nil
	}
	return s.store.Suggest(ctx, store.SuggestParams{
		InvoiceID:  invoice.ID,
		Status:     status,
		Confidence: confidence,
		Event:      event,
	})
}

func (s *Service) systemEvent(action string, m *match.Match) *store.EventRecord {
	ev := &store.EventRecord{Action: action, ActorType: store.ActorSystem}
	if m != nil {
		if encoded, err := m.Features.Encode(); err == nil {
			ev.FeatureVectorJSON = &encoded
		}
		if s.model != nil {
			v := s.model.Version
			ev.ModelVersion = &v
		}
	}
	return ev
}

// normalizeActor validates the caller-supplied actor provenance. Empty
// defaults to a human user.
func normalizeActor(actorType string) (string, error) {
	switch actorType {
	case "":
		return store.ActorUser, nil
	case store.ActorUser, store.ActorSystem, store.ActorLLM:
		return actorType, nil
	default:
		return "", store.Validationf("unknown actor_type %q", actorType)
	}
}

// Confirm commits a manual pairing of invoice and delivery note.
func (s *Service) Confirm(ctx context.Context, invoiceID, deliveryNoteID, actorType string, userID *string) error {
	return s.commit(ctx, invoiceID, deliveryNoteID, actorType, userID, store.ActionConfirmedManual, false)
}

// Reassign moves an invoice onto a different delivery note, releasing any
// prior link first.
func (s *Service) Reassign(ctx context.Context, invoiceID, newDeliveryNoteID, actorType string, userID *string) error {
	return s.commit(ctx, invoiceID, newDeliveryNoteID, actorType, userID, store.ActionReassigned, true)
}

func (s *Service) commit(ctx context.Context, invoiceID, deliveryNoteID, actorType string, userID *string, action string, releasePrior bool) error {
	actor, err := normalizeActor(actorType)
	if err != nil {
		return err
	}
	invoice, err := s.store.Document(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice.DocType != store.DocTypeInvoice {
		return store.Validationf("document %s is not an invoice", invoiceID)
	}

	dn, err := s.store.Document(ctx, deliveryNoteID)
	if err != nil {
		return err
	}
	if dn.DocType != store.DocTypeDeliveryNote {
		return store.Validationf("document %s is not a delivery note", deliveryNoteID)
	}

	var previous *string
	if releasePrior {
		previous = invoice.DeliveryNoteID
	}

	params := store.LinkParams{
		InvoiceID:              invoiceID,
		DeliveryNoteID:         deliveryNoteID,
		PreviousDeliveryNoteID: previous,
		Status:                 store.StatusManualPaired,
		Confidence:             1.0,
		ModelVersion:           ManualModelVersion,
		Event: store.EventRecord{
			Action:       action,
			ActorType:    actor,
			UserID:       userID,
			ModelVersion: strPtr(ManualModelVersion),
		},
	}
	if fv := s.featuresFor(ctx, invoiceID, deliveryNoteID); fv != nil {
		params.Event.FeatureVectorJSON = fv
	}
	return s.store.Link(ctx, params)
}

// featuresFor captures the feature vector of a chosen candidate for the
// training ledger. Best effort only.
func (s *Service) featuresFor(ctx context.Context, invoiceID, deliveryNoteID string) *string {
	matches, err := s.scorer.FindMatches(ctx, invoiceID)
	if err != nil {
		return nil
	}
	for i := range matches {
		if matches[i].DeliveryNoteID == deliveryNoteID {
			if encoded, err := matches[i].Features.Encode(); err == nil {
				return &encoded
			}
		}
	}
	return nil
}

// Reject clears a pending suggestion (and any link) back to unpaired. It is
// valid on invoices with no link at all.
func (s *Service) Reject(ctx context.Context, invoiceID, actorType string, userID *string) error {
	actor, err := normalizeActor(actorType)
	if err != nil {
		return err
	}
	invoice, err := s.store.Document(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice.DocType != store.DocTypeInvoice {
		return store.Validationf("document %s is not an invoice", invoiceID)
	}
	ev := store.EventRecord{Action: store.ActionRejected, ActorType: actor, UserID: userID}
	if last := s.lastSuggestionVector(ctx, invoiceID); last != nil {
		ev.FeatureVectorJSON = last
	}
	return s.store.Clear(ctx, store.ClearParams{
		InvoiceID:      invoiceID,
		DeliveryNoteID: invoice.DeliveryNoteID,
		Event:          ev,
	})
}

// lastSuggestionVector recovers the features of the suggestion being acted
// on so rejections stay usable as negative training labels.
func (s *Service) lastSuggestionVector(ctx context.Context, invoiceID string) *string {
	events, err := s.store.EventsForInvoice(ctx, invoiceID)
	if err != nil {
		return nil
	}
	for _, ev := range events {
		if ev.Action == store.ActionSuggested && ev.FeatureVectorJSON != nil {
			return ev.FeatureVectorJSON
		}
	}
	return nil
}

// Unpair breaks an existing link. Fails with Validation when the invoice is
// not currently paired.
func (s *Service) Unpair(ctx context.Context, invoiceID, actorType string, userID *string) error {
	actor, err := normalizeActor(actorType)
	if err != nil {
		return err
	}
	invoice, err := s.store.Document(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice.DocType != store.DocTypeInvoice {
		return store.Validationf("document %s is not an invoice", invoiceID)
	}
	if invoice.DeliveryNoteID == nil {
		return store.Validationf("invoice %s is not paired", invoiceID)
	}
	return s.store.Clear(ctx, store.ClearParams{
		InvoiceID:      invoiceID,
		DeliveryNoteID: invoice.DeliveryNoteID,
		Event: store.EventRecord{
			Action:    store.ActionUnpaired,
			ActorType: actor,
			UserID:    userID,
		},
	})
}

// BatchResult is one invoice's outcome inside a batch run.
type BatchResult struct {
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// BatchReevaluate re-scores a set of invoices, chosen either by explicit
// ids or by status filter. Invoices run in parallel; each failure is
// reported in place without aborting the rest.
func (s *Service) BatchReevaluate(ctx context.Context, invoiceIDs []string, statusFilter []string) ([]BatchResult, error) {
	var ids []string
	var err error
	switch {
	case len(invoiceIDs) > 0:
		ids, err = s.store.ExistingInvoiceIDs(ctx, invoiceIDs)
	case len(statusFilter) > 0:
		ids, err = s.store.InvoiceIDsByStatus(ctx, statusFilter)
	default:
		return nil, store.Validationf("batch re-evaluation needs invoice ids or a status filter")
	}
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchWorkers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			eval, err := s.Evaluate(gctx, id, ModeNormal)
			if err != nil {
				results[i] = BatchResult{InvoiceID: id, Status: "error", Error: err.Error()}
				return nil
			}
			results[i] = BatchResult{InvoiceID: id, Status: eval.PairingStatus}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func strPtr(s string) *string { return &s }
