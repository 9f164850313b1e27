package match

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpair/internal/store"
)

type fakeSource struct {
	docs    map[string]*store.Document
	lines   map[string][]store.LineItem
	cadence map[string]*store.CadenceStats
}

func (f *fakeSource) Document(ctx context.Context, id string) (*store.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, store.NotFoundf("document %s", id)
	}
	return doc, nil
}

func (f *fakeSource) LineItems(ctx context.Context, documentID string) ([]store.LineItem, error) {
	return f.lines[documentID], nil
}

func (f *fakeSource) DeliveryNoteCandidates(ctx context.Context, invoiceID, supplierID string, around time.Time, windowDays int) ([]*store.Document, error) {
	var out []*store.Document
	for _, doc := range f.docs {
		if doc.DocType != store.DocTypeDeliveryNote || doc.SupplierID == nil || doc.DocDate == nil {
			continue
		}
		if *doc.SupplierID != supplierID {
			continue
		}
		if doc.InvoiceID != nil && *doc.InvoiceID != invoiceID {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (f *fakeSource) Cadence(ctx context.Context, supplierID, venueID string) (*store.CadenceStats, error) {
	return f.cadence[supplierID+"/"+venueID], nil
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func strptr(s string) *string { return &s }

func invoiceDoc(id, supplier string, day *time.Time, total float64) *store.Document {
	return &store.Document{
		ID:          id,
		DocType:     store.DocTypeInvoice,
		SupplierID:  strptr(supplier),
		DocDate:     day,
		TotalAmount: decimal.NewFromFloat(total),
		PairingStatus: store.StatusUnpaired,
	}
}

func deliveryDoc(id, supplier string, day *time.Time, total float64) *store.Document {
	return &store.Document{
		ID:          id,
		DocType:     store.DocTypeDeliveryNote,
		SupplierID:  strptr(supplier),
		DocDate:     day,
		TotalAmount: decimal.NewFromFloat(total),
	}
}

func newTestScorer(src *fakeSource) *Scorer {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewScorer(src, 3, logrus.NewEntry(log))
}

func TestFindMatchesDayApart(t *testing.T) {
	src := &fakeSource{docs: map[string]*store.Document{
		"inv-1": invoiceDoc("inv-1", "sup-acme", date(2024, time.January, 15), 120.00),
		"dn-1":  deliveryDoc("dn-1", "sup-acme", date(2024, time.January, 16), 120.00),
	}}
	matches, err := newTestScorer(src).FindMatches(context.Background(), "inv-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "dn-1", matches[0].DeliveryNoteID)
	assert.InDelta(t, 0.93, matches[0].Confidence, 1e-9)
	assert.Equal(t, 1, matches[0].DateDeltaDays)
}

func TestFindMatchesMonetaryGate(t *testing.T) {
	src := &fakeSource{docs: map[string]*store.Document{
		"inv-1": invoiceDoc("inv-1", "sup-acme", date(2024, time.January, 15), 120.00),
		"dn-1":  deliveryDoc("dn-1", "sup-acme", date(2024, time.January, 16), 200.00),
	}}
	matches, err := newTestScorer(src).FindMatches(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindMatchesDateGate(t *testing.T) {
	src := &fakeSource{docs: map[string]*store.Document{
		"inv-1": invoiceDoc("inv-1", "sup-acme", date(2024, time.January, 15), 100.00),
		"dn-1":  deliveryDoc("dn-1", "sup-acme", date(2024, time.January, 19), 100.00),
	}}
	matches, err := newTestScorer(src).FindMatches(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindMatchesSupplierGate(t *testing.T) {
	src := &fakeSource{docs: map[string]*store.Document{
		"inv-1": invoiceDoc("inv-1", "sup-acme", date(2024, time.January, 15), 100.00),
		"dn-1":  deliveryDoc("dn-1", "sup-other", date(2024, time.January, 15), 100.00),
	}}
	matches, err := newTestScorer(src).FindMatches(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindMatchesMissingDateExcluded(t *testing.T) {
	src := &fakeSource{docs: map[string]*store.Document{
		"inv-1": invoiceDoc("inv-1", "sup-acme", nil, 100.00),
		"dn-1":  deliveryDoc("dn-1", "sup-acme", date(2024, time.January, 15), 100.00),
	}}
	matches, err := newTestScorer(src).FindMatches(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindMatchesConfidenceBounds(t *testing.T) {
	// Sweep the date window and quantity agreement; every surviving
	// candidate must score in (0, 0.99].
	for delta := 0; delta <= 3; delta++ {
		day := time.Date(2024, time.March, 10+delta, 0, 0, 0, 0, time.UTC)
		src := &fakeSource{
			docs: map[string]*store.Document{
				"inv-1": invoiceDoc("inv-1", "sup-acme", date(2024, time.March, 10), 50.00),
				"dn-1":  deliveryDoc("dn-1", "sup-acme", &day, 50.00),
			},
			lines: map[string][]store.LineItem{
				"inv-1": {line(1, "Cod Fillet 1kg", 4)},
				"dn-1":  {line(1, "Cod Fillet 1kg", 4)},
			},
			cadence: map[string]*store.CadenceStats{
				"sup-acme/" + store.DefaultVenue: {
					TypicalWeekdays: []int{0, 1, 2, 3, 4, 5, 6},
				},
			},
		}
		matches, err := newTestScorer(src).FindMatches(context.Background(), "inv-1")
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Greater(t, matches[0].Confidence, 0.0)
		assert.LessOrEqual(t, matches[0].Confidence, 0.99)
	}
}

func TestFindMatchesQuantityConfirms(t *testing.T) {
	src := &fakeSource{
		docs: map[string]*store.Document{
			"inv-1": invoiceDoc("inv-1", "sup-acme", date(2024, time.March, 10), 50.00),
			"dn-1":  deliveryDoc("dn-1", "sup-acme", date(2024, time.March, 10), 50.00),
		},
		lines: map[string][]store.LineItem{
			"inv-1": {line(1, "Cod Fillet 1kg", 4)},
			"dn-1":  {line(1, "Cod Fillet 1kg", 4)},
		},
	}
	matches, err := newTestScorer(src).FindMatches(context.Background(), "inv-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, CandidateConfirmed, matches[0].Status)
	assert.InDelta(t, 1.0, matches[0].QuantityScore, 1e-9)
}

func TestFindMatchesDeterministicOrder(t *testing.T) {
	src := &fakeSource{docs: map[string]*store.Document{
		"inv-1": invoiceDoc("inv-1", "sup-acme", date(2024, time.March, 10), 50.00),
		"dn-b":  deliveryDoc("dn-b", "sup-acme", date(2024, time.March, 11), 50.00),
		"dn-a":  deliveryDoc("dn-a", "sup-acme", date(2024, time.March, 11), 50.00),
		"dn-c":  deliveryDoc("dn-c", "sup-acme", date(2024, time.March, 12), 50.00),
	}}
	for i := 0; i < 5; i++ {
		matches, err := newTestScorer(src).FindMatches(context.Background(), "inv-1")
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "dn-a", matches[0].DeliveryNoteID)
		assert.Equal(t, "dn-b", matches[1].DeliveryNoteID)
		assert.Equal(t, "dn-c", matches[2].DeliveryNoteID)
	}
}

func TestFindMatchesCadenceBonus(t *testing.T) {
	// 2024-03-11 is a Monday.
	src := &fakeSource{
		docs: map[string]*store.Document{
			"inv-1": invoiceDoc("inv-1", "sup-acme", date(2024, time.March, 11), 50.00),
			"dn-1":  deliveryDoc("dn-1", "sup-acme", date(2024, time.March, 11), 50.00),
		},
		cadence: map[string]*store.CadenceStats{
			"sup-acme/" + store.DefaultVenue: {TypicalWeekdays: []int{int(time.Monday)}},
		},
	}
	matches, err := newTestScorer(src).FindMatches(context.Background(), "inv-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 0.97, matches[0].Confidence, 1e-9)
}
