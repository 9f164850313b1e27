package match

import (
	"github.com/shopspring/decimal"

	"github.com/docpair/internal/resolver"
	"github.com/docpair/internal/store"
)

// Quantity comparison thresholds.
const (
	descriptionMatchMin = 0.8  // similarity floor for pairing two line descriptions
	quantityTolerance   = 0.01 // absolute quantity difference treated as exact
)

// Discrepancy severities on line quantity mismatches.
const (
	SeverityCritical = "critical" // over 20 percent off
	SeverityWarning  = "warning"  // 10 to 20 percent off
)

// LineDiscrepancy is one invoice line whose delivered quantity disagrees
// with the billed quantity.
type LineDiscrepancy struct {
	InvoiceLine   int             `json:"invoice_line"`
	DeliveryLine  int             `json:"delivery_line"`
	Description   string          `json:"description"`
	Invoiced      decimal.Decimal `json:"invoiced"`
	Delivered     decimal.Decimal `json:"delivered"`
	RelativeDelta float64         `json:"relative_delta"`
	Severity      string          `json:"severity"`
}

// UnmatchedLine is an invoice line with no plausible counterpart on the
// delivery note.
type UnmatchedLine struct {
	Line        int    `json:"line"`
	Description string `json:"description"`
}

// MatchedLine is one accepted invoice/delivery line assignment, by index
// into the compared slices.
type MatchedLine struct {
	InvoiceIdx  int     `json:"-"`
	DeliveryIdx int     `json:"-"`
	Similarity  float64 `json:"-"`
}

// QuantityReport is the outcome of comparing the line items of an invoice
// against a delivery note.
type QuantityReport struct {
	Score         float64           `json:"score"`
	Discrepancies []LineDiscrepancy `json:"discrepancies,omitempty"`
	Unmatched     []UnmatchedLine   `json:"unmatched,omitempty"`
	DeliveryOnly  []UnmatchedLine   `json:"delivery_only,omitempty"`
	Pairs         []MatchedLine     `json:"-"`
}

// CompareQuantities greedily pairs invoice lines with delivery note lines by
// description similarity and scores quantity agreement. The score is the
// mean over invoice lines of similarity-weighted quantity agreement; lines
// with no counterpart contribute zero. Two empty documents agree perfectly.
func CompareQuantities(invoiceLines, deliveryLines []store.LineItem) QuantityReport {
	if len(invoiceLines) == 0 && len(deliveryLines) == 0 {
		return QuantityReport{Score: 1.0}
	}
	if len(invoiceLines) == 0 {
		report := QuantityReport{}
		for _, del := range deliveryLines {
			report.DeliveryOnly = append(report.DeliveryOnly, UnmatchedLine{
				Line:        del.LineNumber,
				Description: del.Description,
			})
		}
		return report
	}

	usedDelivery := make([]bool, len(deliveryLines))
	report := QuantityReport{}
	var total float64

	// Each invoice line, in order, claims its most similar unclaimed
	// delivery line. Earlier lines win contested counterparts.
	for i, inv := range invoiceLines {
		bestIdx := -1
		bestSim := 0.0
		for j, del := range deliveryLines {
			if usedDelivery[j] {
				continue
			}
			sim := resolver.Similarity(inv.Description, del.Description) / 100
			if sim >= descriptionMatchMin && sim > bestSim {
				bestSim, bestIdx = sim, j
			}
		}
		if bestIdx < 0 {
			report.Unmatched = append(report.Unmatched, UnmatchedLine{
				Line:        inv.LineNumber,
				Description: inv.Description,
			})
			continue
		}
		usedDelivery[bestIdx] = true
		report.Pairs = append(report.Pairs, MatchedLine{
			InvoiceIdx:  i,
			DeliveryIdx: bestIdx,
			Similarity:  bestSim,
		})

		del := deliveryLines[bestIdx]
		agreement, delta := quantityAgreement(inv.Quantity, del.Quantity)
		total += bestSim * agreement

		if sev := severityFor(delta); sev != "" {
			report.Discrepancies = append(report.Discrepancies, LineDiscrepancy{
				InvoiceLine:   inv.LineNumber,
				DeliveryLine:  del.LineNumber,
				Description:   inv.Description,
				Invoiced:      inv.Quantity,
				Delivered:     del.Quantity,
				RelativeDelta: delta,
				Severity:      sev,
			})
		}
	}
	for j, del := range deliveryLines {
		if !usedDelivery[j] {
			report.DeliveryOnly = append(report.DeliveryOnly, UnmatchedLine{
				Line:        del.LineNumber,
				Description: del.Description,
			})
		}
	}

	report.Score = total / float64(len(invoiceLines))
	return report
}

// quantityAgreement maps two quantities to an agreement in [0,1] plus the
// relative delta. An absolute difference within tolerance counts as exact;
// otherwise the agreement decays linearly with the relative difference.
func quantityAgreement(invoiced, delivered decimal.Decimal) (agreement, delta float64) {
	a, _ := invoiced.Abs().Float64()
	b, _ := delivered.Abs().Float64()
	max := a
	if b > max {
		max = b
	}
	if max == 0 {
		return 1, 0
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	delta = diff / max
	if diff <= quantityTolerance {
		return 1, delta
	}
	return 1 - delta, delta
}

func severityFor(delta float64) string {
	switch {
	case delta > 0.20:
		return SeverityCritical
	case delta > 0.10:
		return SeverityWarning
	default:
		return ""
	}
}

