package match

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/docpair/internal/store"
)

// Deterministic scoring constants. The base score is reduced per day of
// date separation and topped up by a fixed bonus for monetary agreement,
// which every gated candidate has by definition.
const (
	baseScore        = 0.90
	dateDeltaPenalty = 0.02
	monetaryBonus    = 0.05
	cadenceBonus     = 0.02
	confidenceCap    = 0.99

	quantityConfirmMin = 0.8
)

// Candidate statuses emitted by the scorer.
const (
	CandidateConfirmed = "confirmed"
	CandidateSuggested = "suggested"
)

// Match is one scored delivery note candidate.
type Match struct {
	DeliveryNoteID string          `json:"delivery_note_id"`
	Confidence     float64         `json:"confidence"`
	Status         string          `json:"status"`
	DateDeltaDays  int             `json:"date_delta_days"`
	AmountDelta    decimal.Decimal `json:"amount_delta"`
	QuantityScore  float64         `json:"quantity_score"`
	Quantity       QuantityReport  `json:"quantity_report"`
	Features       FeatureVector   `json:"-"`
}

// Source is the read-only store surface the scorer needs.
type Source interface {
	Document(ctx context.Context, id string) (*store.Document, error)
	LineItems(ctx context.Context, documentID string) ([]store.LineItem, error)
	DeliveryNoteCandidates(ctx context.Context, invoiceID, supplierID string, around time.Time, windowDays int) ([]*store.Document, error)
	Cadence(ctx context.Context, supplierID, venueID string) (*store.CadenceStats, error)
}

// Scorer ranks delivery notes for an invoice with hard gates and a
// deterministic soft score.
type Scorer struct {
	src        Source
	windowDays int
	log        *logrus.Entry
}

// NewScorer builds a scorer over the given source.
func NewScorer(src Source, windowDays int, log *logrus.Entry) *Scorer {
	return &Scorer{src: src, windowDays: windowDays, log: log}
}

// FindMatches returns every gated candidate for the invoice, best first.
// Ties break on smaller date delta, then id, so repeated runs rank
// identically. An empty slice means the invoice has no pairable note and
// the caller must mark it unmatched.
func (s *Scorer) FindMatches(ctx context.Context, invoiceID string) ([]Match, error) {
	invoice, err := s.src.Document(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.DocType != store.DocTypeInvoice {
		return nil, store.Validationf("document %s is not an invoice", invoiceID)
	}
	// Supplier and date are hard prerequisites.
	if invoice.SupplierID == nil || invoice.DocDate == nil {
		return nil, nil
	}

	candidates, err := s.src.DeliveryNoteCandidates(ctx, invoiceID, *invoice.SupplierID, *invoice.DocDate, s.windowDays)
	if err != nil {
		return nil, fmt.Errorf("candidate lookup for %s: %w", invoiceID, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	invoiceLines, err := s.src.LineItems(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("line items for %s: %w", invoiceID, err)
	}

	cadence := s.cadenceFor(ctx, invoice)

	var matches []Match
	for _, dn := range candidates {
		m, ok, err := s.score(ctx, invoice, invoiceLines, dn, cadence)
		if err != nil {
			// One unreadable candidate must not sink the whole
			// evaluation.
			s.log.WithError(err).WithFields(logrus.Fields{
				"invoice":       invoiceID,
				"delivery_note": dn.ID,
			}).Warn("skipping unscorable candidate")
			continue
		}
		if ok {
			matches = append(matches, m)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		if matches[i].DateDeltaDays != matches[j].DateDeltaDays {
			return matches[i].DateDeltaDays < matches[j].DateDeltaDays
		}
		return matches[i].DeliveryNoteID < matches[j].DeliveryNoteID
	})
	return matches, nil
}

func (s *Scorer) score(ctx context.Context, invoice *store.Document, invoiceLines []store.LineItem, dn *store.Document, cadence *store.CadenceStats) (Match, bool, error) {
	if dn.SupplierID == nil || dn.DocDate == nil {
		return Match{}, false, nil
	}
	if !strings.EqualFold(*invoice.SupplierID, *dn.SupplierID) {
		return Match{}, false, nil
	}

	dateDelta := daysBetween(*invoice.DocDate, *dn.DocDate)
	if dateDelta > s.windowDays {
		return Match{}, false, nil
	}

	amountDelta := invoice.TotalAmount.Sub(dn.TotalAmount).Abs()
	if !monetaryAgreement(invoice.TotalAmount, dn.TotalAmount, amountDelta) {
		return Match{}, false, nil
	}

	dnLines, err := s.src.LineItems(ctx, dn.ID)
	if err != nil {
		return Match{}, false, fmt.Errorf("%w: line items for %s: %v", store.ErrTransientScoring, dn.ID, err)
	}
	quantity := CompareQuantities(invoiceLines, dnLines)

	confidence := baseScore - dateDeltaPenalty*float64(dateDelta) + monetaryBonus

	cadencePlausible := cadenceMatches(cadence, *dn.DocDate)
	if cadencePlausible {
		confidence += cadenceBonus
	}

	status := CandidateSuggested
	// Agreement between two documents with no lines at all is vacuous and
	// cannot promote the candidate.
	if (len(invoiceLines) > 0 || len(dnLines) > 0) && quantity.Score >= quantityConfirmMin {
		status = CandidateConfirmed
		if quantity.Score > confidence {
			confidence = quantity.Score
		}
	}
	if confidence > confidenceCap {
		confidence = confidenceCap
	}

	m := Match{
		DeliveryNoteID: dn.ID,
		Confidence:     confidence,
		Status:         status,
		DateDeltaDays:  dateDelta,
		AmountDelta:    amountDelta,
		QuantityScore:  quantity.Score,
		Quantity:       quantity,
	}
	m.Features = NewFeatureVector(dateDelta, amountDelta, quantity.Score, cadencePlausible, confidence)
	return m, true, nil
}

func (s *Scorer) cadenceFor(ctx context.Context, invoice *store.Document) *store.CadenceStats {
	venue := store.DefaultVenue
	if invoice.Venue != nil {
		venue = *invoice.Venue
	}
	cadence, err := s.src.Cadence(ctx, *invoice.SupplierID, venue)
	if err != nil {
		// Cadence only nudges the score, so a read failure degrades to
		// no bonus.
		s.log.WithError(err).WithField("supplier", *invoice.SupplierID).Warn("cadence lookup failed")
		return nil
	}
	return cadence
}

func cadenceMatches(cadence *store.CadenceStats, dnDate time.Time) bool {
	if cadence == nil {
		return false
	}
	weekday := int(dnDate.Weekday())
	for _, w := range cadence.TypicalWeekdays {
		if w == weekday {
			return true
		}
	}
	return false
}

// monetaryAgreement holds when the totals differ by at most 1 percent of
// the larger, or by at most 2.00 absolute currency units.
func monetaryAgreement(a, b, delta decimal.Decimal) bool {
	if delta.LessThanOrEqual(decimal.NewFromInt(2)) {
		return true
	}
	max := a.Abs()
	if b.Abs().GreaterThan(max) {
		max = b.Abs()
	}
	return delta.LessThanOrEqual(max.Div(decimal.NewFromInt(100)))
}

func daysBetween(a, b time.Time) int {
	au := a.UTC().Truncate(24 * time.Hour)
	bu := b.UTC().Truncate(24 * time.Hour)
	d := int(au.Sub(bu).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
