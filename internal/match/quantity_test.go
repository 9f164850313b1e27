package match

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpair/internal/store"
)

func line(n int, desc string, qty float64) store.LineItem {
	return store.LineItem{
		LineNumber:  n,
		Description: desc,
		Quantity:    decimal.NewFromFloat(qty),
	}
}

func TestCompareQuantitiesEmptyIdentities(t *testing.T) {
	assert.Equal(t, 1.0, CompareQuantities(nil, nil).Score)
	assert.Equal(t, 0.0, CompareQuantities([]store.LineItem{line(1, "Beef Mince 5kg", 2)}, nil).Score)
	report := CompareQuantities(nil, []store.LineItem{line(1, "Beef Mince 5kg", 2)})
	assert.Equal(t, 0.0, report.Score)
	require.Len(t, report.DeliveryOnly, 1)
}

func TestCompareQuantitiesExactMatch(t *testing.T) {
	inv := []store.LineItem{
		line(1, "Beef Mince 5kg", 2),
		line(2, "Chicken Breast 1kg", 10),
	}
	del := []store.LineItem{
		line(1, "Beef Mince 5kg", 2),
		line(2, "Chicken Breast 1kg", 10),
	}
	report := CompareQuantities(inv, del)
	assert.InDelta(t, 1.0, report.Score, 1e-9)
	assert.Empty(t, report.Discrepancies)
	assert.Empty(t, report.Unmatched)
}

func TestCompareQuantitiesSeverityBands(t *testing.T) {
	tests := []struct {
		name      string
		delivered float64
		severity  string
	}{
		{"within tolerance", 10.05, ""},
		{"small shortfall", 9.5, ""},
		{"warning band", 8.5, SeverityWarning},
		{"critical band", 7.0, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := CompareQuantities(
				[]store.LineItem{line(1, "Chicken Breast 1kg", 10)},
				[]store.LineItem{line(1, "Chicken Breast 1kg", tt.delivered)},
			)
			if tt.severity == "" {
				assert.Empty(t, report.Discrepancies)
			} else {
				require.Len(t, report.Discrepancies, 1)
				assert.Equal(t, tt.severity, report.Discrepancies[0].Severity)
			}
		})
	}
}

func TestCompareQuantitiesUnmatchedLines(t *testing.T) {
	inv := []store.LineItem{
		line(1, "Beef Mince 5kg", 2),
		line(2, "Saffron 10g", 1),
	}
	del := []store.LineItem{
		line(1, "Beef Mince 5kg", 2),
	}
	report := CompareQuantities(inv, del)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, 2, report.Unmatched[0].Line)
	assert.Empty(t, report.DeliveryOnly)
	// One perfect line out of two.
	assert.InDelta(t, 0.5, report.Score, 0.05)
}

func TestCompareQuantitiesGreedyAssignment(t *testing.T) {
	// Two invoice lines compete for one delivery line; the first invoice
	// line claims it and the other goes unmatched.
	inv := []store.LineItem{
		line(1, "Chicken Breast 1kg", 5),
		line(2, "Chicken Breast Fillets 1kg", 5),
	}
	del := []store.LineItem{
		line(1, "Chicken Breast 1kg", 5),
	}
	report := CompareQuantities(inv, del)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, 2, report.Unmatched[0].Line)
}

func TestCompareQuantitiesOrderDependent(t *testing.T) {
	// Invoice order decides contested claims, even when a later line is
	// the closer description. Line 1 takes the only delivery line and
	// inherits its quantity shortfall; line 2 goes unmatched.
	inv := []store.LineItem{
		line(1, "Chicken Breast 2kg", 10),
		line(2, "Chicken Breast 1kg", 5),
	}
	del := []store.LineItem{
		line(1, "Chicken Breast 1kg", 5),
	}
	report := CompareQuantities(inv, del)
	require.Len(t, report.Pairs, 1)
	assert.Equal(t, 0, report.Pairs[0].InvoiceIdx)
	require.Len(t, report.Unmatched, 1)
	assert.Equal(t, 2, report.Unmatched[0].Line)
	// Line 1 agrees at 0.5 (10 vs 5), weighted by similarity, over two lines.
	assert.InDelta(t, 0.24, report.Score, 0.03)
}

func TestCompareQuantitiesAbsoluteTolerance(t *testing.T) {
	// The exact-match tolerance is an absolute quantity difference, so a
	// 2-unit shortfall on 500 decays even though it is under 1 percent.
	report := CompareQuantities(
		[]store.LineItem{line(1, "Napkins White 33cm", 500)},
		[]store.LineItem{line(1, "Napkins White 33cm", 502)},
	)
	assert.InDelta(t, 1-2.0/502, report.Score, 1e-6)

	report = CompareQuantities(
		[]store.LineItem{line(1, "Olive Oil 5L", 5)},
		[]store.LineItem{line(1, "Olive Oil 5L", 5.005)},
	)
	assert.Equal(t, 1.0, report.Score)
}
