package pairing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/docpair/internal/match"
	"github.com/docpair/internal/store"
)

// Issue types raised by post-pairing inspection.
const (
	IssuePriceMismatch = "price_mismatch"
	IssueShortDelivery = "short_delivery"
)

// priceTolerance is the relative unit-price difference accepted between a
// matched invoice and delivery line.
var priceTolerance = decimal.NewFromFloat(0.01)

// Issue is one problem found on a committed pairing.
type Issue struct {
	Type        string          `json:"type"`
	Severity    string          `json:"severity"`
	Description string          `json:"description"`
	InvoiceLine int             `json:"invoice_line"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
}

// detectIssues inspects line-level agreement between a paired invoice and
// delivery note.
func (s *Service) detectIssues(ctx context.Context, invoiceID, deliveryNoteID string) ([]Issue, error) {
	invoiceLines, err := s.store.LineItems(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	dnLines, err := s.store.LineItems(ctx, deliveryNoteID)
	if err != nil {
		return nil, err
	}
	return DetectIssues(invoiceLines, dnLines), nil
}

// DetectIssues compares matched lines for short deliveries and unit-price
// mismatches. Line matching follows the same greedy assignment the
// quantity scorer uses, so a line is judged against the counterpart it was
// scored against.
func DetectIssues(invoiceLines, dnLines []store.LineItem) []Issue {
	report := match.CompareQuantities(invoiceLines, dnLines)

	var issues []Issue
	for _, d := range report.Discrepancies {
		if d.Delivered.GreaterThanOrEqual(d.Invoiced) {
			continue
		}
		issues = append(issues, Issue{
			Type:        IssueShortDelivery,
			Severity:    d.Severity,
			Description: d.Description,
			InvoiceLine: d.InvoiceLine,
			Expected:    d.Invoiced,
			Actual:      d.Delivered,
		})
	}

	for _, p := range report.Pairs {
		inv := invoiceLines[p.InvoiceIdx]
		dn := dnLines[p.DeliveryIdx]
		if inv.UnitPrice.IsZero() || dn.UnitPrice.IsZero() {
			continue
		}
		delta := inv.UnitPrice.Sub(dn.UnitPrice).Abs()
		rel := delta.Div(inv.UnitPrice.Abs())
		if rel.LessThanOrEqual(priceTolerance) {
			continue
		}
		severity := match.SeverityWarning
		if rel.GreaterThan(decimal.NewFromFloat(0.10)) {
			severity = match.SeverityCritical
		}
		issues = append(issues, Issue{
			Type:        IssuePriceMismatch,
			Severity:    severity,
			Description: inv.Description,
			InvoiceLine: inv.LineNumber,
			Expected:    inv.UnitPrice,
			Actual:      dn.UnitPrice,
		})
	}
	return issues
}
