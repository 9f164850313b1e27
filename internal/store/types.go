package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document types.
const (
	DocTypeInvoice      = "invoice"
	DocTypeDeliveryNote = "delivery_note"
)

// Pairing statuses carried on the invoice row.
const (
	StatusUnpaired     = "unpaired"
	StatusSuggested    = "suggested"
	StatusAutoPaired   = "auto_paired"
	StatusManualPaired = "manual_paired"
)

// Pairing event actions. Every state-changing transition writes exactly one.
const (
	ActionSuggested       = "suggested"
	ActionAutoPaired      = "auto_paired"
	ActionConfirmedManual = "confirmed_manual"
	ActionRejected        = "rejected"
	ActionUnpaired        = "unpaired"
	ActionReassigned      = "reassigned"
	ActionUnmatched       = "unmatched"
)

// Actor types recorded on pairing events.
const (
	ActorUser   = "user"
	ActorSystem = "system"
	ActorLLM    = "llm_suggestion"
)

// Document statuses set after downstream issue detection.
const (
	DocStatusParsed  = "parsed"
	DocStatusMatched = "matched"
	DocStatusFlagged = "flagged"
)

// Document is an immutable capture of an invoice or delivery note. The
// pairing columns are only meaningful on invoices; InvoiceID is the delivery
// note's back-reference.
type Document struct {
	ID          string
	DocType     string
	SupplierRaw string
	SupplierID  *string
	DocDate     *time.Time
	TotalAmount decimal.Decimal
	Currency    string
	Venue       *string
	Status      string
	CreatedAt   time.Time

	// Delivery-note side of a pairing.
	InvoiceID *string

	// Invoice side of a pairing.
	DeliveryNoteID      *string
	PairingStatus       string
	PairingConfidence   *float64
	PairingModelVersion *string
}

// LineItem is owned by one document and read-only to the matching core.
type LineItem struct {
	LineNumber  int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// Supplier is a canonical supplier identity.
type Supplier struct {
	ID             string
	Name           string
	NormalizedName string
	Aliases        []string
	CreatedAt      time.Time
}

// AliasReview statuses.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

// AliasReview is a human-confirmable proposal to merge a raw supplier name
// into an existing canonical supplier.
type AliasReview struct {
	ID                  int64
	OriginalName        string
	SuggestedMatch      string
	SuggestedSupplierID *string
	Confidence          float64
	Status              string
	CreatedAt           time.Time
	ReviewedAt          *time.Time
	ReviewedBy          *string
}

// NormalizationEntry records one resolver call.
type NormalizationEntry struct {
	SupplierName string
	MatchedID    *string
	Confidence   float64
	Action       string
}

// CadenceStats holds per (supplier, venue) delivery-timing regularities.
// Weekdays follow time.Weekday numbering (0=Sunday).
type CadenceStats struct {
	SupplierID         string
	VenueID            string
	TypicalWeekdays    []int
	AvgIntervalDays    *float64
	StdDevIntervalDays *float64
	UpdatedAt          time.Time
}

// DefaultVenue groups deliveries that carry no venue tag.
const DefaultVenue = "__default__"

// PairingEvent is one row of the append-only decision ledger.
type PairingEvent struct {
	ID                     int64
	Timestamp              time.Time
	InvoiceID              string
	DeliveryNoteID         *string
	PreviousDeliveryNoteID *string
	Action                 string
	ActorType              string
	UserID                 *string
	FeatureVectorJSON      *string
	ModelVersion           *string
}

// EventRecord is the caller-supplied portion of a pairing event, written in
// the same transaction as the transition it describes.
type EventRecord struct {
	Action            string
	ActorType         string
	UserID            *string
	FeatureVectorJSON *string
	ModelVersion      *string
}

// LinkParams describes a committed pairing transition (manual, reassign or
// auto). PreviousDeliveryNoteID, when set, has its back-reference cleared in
// the same transaction.
type LinkParams struct {
	InvoiceID              string
	DeliveryNoteID         string
	PreviousDeliveryNoteID *string
	Status                 string
	Confidence             float64
	ModelVersion           string
	Event                  EventRecord
}

// ClearParams describes an unpair or reject transition back to unpaired.
type ClearParams struct {
	InvoiceID      string
	DeliveryNoteID *string // cleared back-reference, if a link existed
	Event          EventRecord
}

// SuggestParams records a non-committing evaluation outcome (suggested or
// unpaired) on an invoice that holds no link.
type SuggestParams struct {
	InvoiceID  string
	Status     string
	Confidence *float64
	Event      *EventRecord // nil when the evaluation changed nothing
}

// TrainingExample is one labeled feature vector drawn from the event ledger.
type TrainingExample struct {
	FeatureVectorJSON string
	Positive          bool
}

// PairingStats aggregates the ledger and invoice statuses for reporting.
type PairingStats struct {
	TotalInvoices     int
	UnpairedCount     int
	SuggestedCount    int
	AutoPairedCount   int
	ManualPairedCount int
	PairedCount       int
	AvgConfidence     *float64
	PairingRate7d     float64
	PairingRate30d    float64
	RecentEvents      []PairingEvent
}
