package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Postgres is the database-backed store. A single instance is shared by every
// component; all methods are safe for concurrent use.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const documentColumns = `
	id, doc_type, supplier_raw, supplier_id, doc_date, total_amount, currency,
	venue, status, invoice_id, delivery_note_id, pairing_status,
	pairing_confidence, pairing_model_version, created_at`

func scanDocument(row interface{ Scan(...interface{}) error }) (*Document, error) {
	var d Document
	err := row.Scan(
		&d.ID, &d.DocType, &d.SupplierRaw, &d.SupplierID, &d.DocDate,
		&d.TotalAmount, &d.Currency, &d.Venue, &d.Status, &d.InvoiceID,
		&d.DeliveryNoteID, &d.PairingStatus, &d.PairingConfidence,
		&d.PairingModelVersion, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Document fetches one document by id.
func (p *Postgres) Document(ctx context.Context, id string) (*Document, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, NotFoundf("document %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return doc, nil
}

// LineItems returns a document's line items in capture order.
func (p *Postgres) LineItems(ctx context.Context, documentID string) ([]LineItem, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT line_number, description, quantity, unit_price, line_total
		FROM line_items
		WHERE document_id = $1
		ORDER BY line_number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items for %s: %w", documentID, err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.LineNumber, &it.Description, &it.Quantity, &it.UnitPrice, &it.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// DeliveryNoteCandidates returns delivery notes sharing the invoice's
// canonical supplier inside the date window, excluding notes already claimed
// by a different invoice. Supplier and date are hard prerequisites, so rows
// missing either never surface.
func (p *Postgres) DeliveryNoteCandidates(ctx context.Context, invoiceID, supplierID string, around time.Time, windowDays int) ([]*Document, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE doc_type = 'delivery_note'
		  AND supplier_id = $1
		  AND doc_date IS NOT NULL
		  AND doc_date BETWEEN $2::date - $3 AND $2::date + $3
		  AND (invoice_id IS NULL OR invoice_id = $4)
		ORDER BY doc_date, id`,
		supplierID, around, windowDays, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery note candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, doc)
	}
	return candidates, rows.Err()
}

// InvoiceIDsByStatus lists invoice ids whose pairing status is in the given
// set, oldest first.
func (p *Postgres) InvoiceIDsByStatus(ctx context.Context, statuses []string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM documents
		WHERE doc_type = 'invoice' AND pairing_status = ANY($1)
		ORDER BY created_at, id`, pq.Array(statuses))
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExistingInvoiceIDs filters the supplied ids down to those that exist as
// invoices, preserving request order for deterministic batch reports.
func (p *Postgres) ExistingInvoiceIDs(ctx context.Context, ids []string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id FROM documents
		WHERE doc_type = 'invoice' AND id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to filter invoice ids: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		present[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []string
	for _, id := range ids {
		if present[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// SetDocumentStatus updates the downstream document status (matched/flagged)
// after issue detection.
func (p *Postgres) SetDocumentStatus(ctx context.Context, id, status string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE documents SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to set status on %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundf("document %s", id)
	}
	return nil
}

// CreateDocument inserts a document and its line items. Used by ingestion
// integrations and the seed command; the matching core never creates
// documents.
func (p *Postgres) CreateDocument(ctx context.Context, doc *Document, items []LineItem) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, doc_type, supplier_raw, supplier_id, doc_date,
			total_amount, currency, venue, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.DocType, doc.SupplierRaw, doc.SupplierID, doc.DocDate,
		doc.TotalAmount, doc.Currency, doc.Venue, DocStatusParsed)
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
	}

	for i, it := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO line_items (document_id, line_number, description, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			doc.ID, i+1, it.Description, it.Quantity, it.UnitPrice, it.LineTotal)
		if err != nil {
			return fmt.Errorf("failed to insert line item %d for %s: %w", i+1, doc.ID, err)
		}
	}

	return tx.Commit()
}
