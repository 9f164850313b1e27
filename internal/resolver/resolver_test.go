package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpair/internal/store"
)

type fakeDirectory struct {
	suppliers []store.Supplier
	listErr   error
	reviews   []store.AliasReview
	created   []string
	logged    []store.NormalizationEntry
}

func (f *fakeDirectory) Suppliers(ctx context.Context) ([]store.Supplier, error) {
	return f.suppliers, f.listErr
}

func (f *fakeDirectory) CreateSupplier(ctx context.Context, name, normalized string, aliases []string) (string, error) {
	f.created = append(f.created, name)
	return fmt.Sprintf("sup-new-%d", len(f.created)), nil
}

func (f *fakeDirectory) EnqueueAliasReview(ctx context.Context, original, suggested string, supplierID *string, confidence float64) error {
	f.reviews = append(f.reviews, store.AliasReview{
		OriginalName:        original,
		SuggestedMatch:      suggested,
		SuggestedSupplierID: supplierID,
		Confidence:          confidence,
	})
	return nil
}

func (f *fakeDirectory) LogNormalization(ctx context.Context, entry store.NormalizationEntry) error {
	f.logged = append(f.logged, entry)
	return nil
}

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips ltd", "Acme Foods Ltd", "ACME FOODS"},
		{"strips limited", "Acme Foods Limited", "ACME FOODS"},
		{"strips punctuation", "J. Smith & Sons, Ltd.", "J SMITH & SONS"},
		{"collapses whitespace", "  Fresh   Produce  Co  ", "FRESH PRODUCE"},
		{"and becomes ampersand", "Smith and Jones", "SMITH & JONES"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Acme Foods Ltd", "J. Smith & Sons", "Fresh Produce Company PLC"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "normalize should be idempotent for %q", in)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "Acme Foods", "Acme Foods", 100, 100},
		{"legal form only", "Acme Foods Ltd", "Acme Foods Limited", 100, 100},
		{"token order", "Foods Acme", "Acme Foods", 100, 100},
		{"close variant", "Acme Food", "Acme Foods", 85, 100},
		{"unrelated", "Acme Foods", "Borough Fish Market", 0, 60},
		{"empty side", "", "Acme Foods", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestResolveTiers(t *testing.T) {
	dir := &fakeDirectory{suppliers: []store.Supplier{
		{ID: "sup-1", Name: "Acme Foods", Aliases: []string{"ACME FOOD SERVICES"}},
		{ID: "sup-2", Name: "Borough Fish Market"},
		{ID: "sup-3", Name: "Harbour Seafood Supplies"},
	}}
	r := New(dir, nil, 90, 85, testLog())

	t.Run("high confidence matches", func(t *testing.T) {
		res := r.Resolve(context.Background(), "Acme Foods Ltd")
		require.NotNil(t, res.SupplierID)
		assert.Equal(t, "sup-1", *res.SupplierID)
		assert.Equal(t, ActionAutoMatch, res.Action)
		assert.GreaterOrEqual(t, res.Confidence, 90.0)
	})

	t.Run("alias matches", func(t *testing.T) {
		res := r.Resolve(context.Background(), "Acme Food Services")
		require.NotNil(t, res.SupplierID)
		assert.Equal(t, "sup-1", *res.SupplierID)
	})

	t.Run("mid band queues review without matching", func(t *testing.T) {
		// Token-sort ratio for this pair is 87.5: the sorted forms differ
		// only by the SUPPLIES/SUPPLY tail, 3 edits over 24 runes. Squarely
		// inside the review band.
		before := len(dir.reviews)
		res := r.Resolve(context.Background(), "Seafood Supply Harbour")
		assert.Equal(t, ActionReview, res.Action)
		assert.Nil(t, res.SupplierID)
		require.NotNil(t, res.CandidateID)
		assert.Equal(t, "sup-3", *res.CandidateID)
		assert.GreaterOrEqual(t, res.Confidence, 85.0)
		assert.Less(t, res.Confidence, 90.0)
		require.Len(t, dir.reviews, before+1)
		assert.Equal(t, "Harbour Seafood Supplies", dir.reviews[before].SuggestedMatch)
	})

	t.Run("repeat resolution is stable", func(t *testing.T) {
		first := r.Resolve(context.Background(), "Borough Fish Market")
		second := r.Resolve(context.Background(), "Borough Fish Market")
		require.NotNil(t, first.SupplierID)
		require.NotNil(t, second.SupplierID)
		assert.Equal(t, *first.SupplierID, *second.SupplierID)
		assert.Equal(t, ActionAutoMatch, second.Action)
		assert.Equal(t, 100.0, second.Confidence)
	})

	t.Run("low confidence creates new supplier", func(t *testing.T) {
		res := r.Resolve(context.Background(), "Completely Different Trading Name")
		require.NotNil(t, res.SupplierID)
		assert.Equal(t, ActionNew, res.Action)
		assert.Contains(t, dir.created, "Completely Different Trading Name")
	})

	t.Run("every call is logged", func(t *testing.T) {
		n := len(dir.logged)
		r.Resolve(context.Background(), "Borough Fish Market")
		require.Len(t, dir.logged, n+1)
		assert.Equal(t, "Borough Fish Market", dir.logged[n].SupplierName)
	})
}

func TestResolveFailsOpen(t *testing.T) {
	dir := &fakeDirectory{listErr: errors.New("connection refused")}
	r := New(dir, nil, 90, 85, testLog())

	res := r.Resolve(context.Background(), "Acme Foods")
	assert.Nil(t, res.SupplierID)
	assert.Equal(t, ActionUnmatched, res.Action)
}

func TestResolveEmptyName(t *testing.T) {
	dir := &fakeDirectory{suppliers: []store.Supplier{{ID: "sup-1", Name: "Acme Foods"}}}
	r := New(dir, nil, 90, 85, testLog())

	res := r.Resolve(context.Background(), "   ")
	assert.Nil(t, res.SupplierID)
	assert.Equal(t, ActionUnmatched, res.Action)
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	a, err := e.Embed("ACME FOODS")
	require.NoError(t, err)
	b, err := e.Embed("ACME FOODS")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, cosine(a, b), 1e-6)
}
