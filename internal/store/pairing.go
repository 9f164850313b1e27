package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Link commits a pairing in one transaction: both sides of the link, the
// optional release of a previously linked delivery note, and the ledger
// event. The conditional updates make concurrent writers serialize on the
// row state; whichever transaction loses sees zero rows affected and the
// caller gets ErrConflict.
func (p *Postgres) Link(ctx context.Context, params LinkParams) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if params.PreviousDeliveryNoteID != nil && *params.PreviousDeliveryNoteID != params.DeliveryNoteID {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET invoice_id = NULL
			WHERE id = $1 AND doc_type = 'delivery_note' AND invoice_id = $2`,
			*params.PreviousDeliveryNoteID, params.InvoiceID)
		if err != nil {
			return fmt.Errorf("failed to release delivery note %s: %w", *params.PreviousDeliveryNoteID, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET invoice_id = $1
		WHERE id = $2 AND doc_type = 'delivery_note'
		  AND (invoice_id IS NULL OR invoice_id = $1)`,
		params.InvoiceID, params.DeliveryNoteID)
	if err != nil {
		return fmt.Errorf("failed to claim delivery note %s: %w", params.DeliveryNoteID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := p.classifyLinkFailure(ctx, tx, params.DeliveryNoteID, DocTypeDeliveryNote); err != nil {
			return err
		}
		return Conflictf("delivery note %s is linked to another invoice", params.DeliveryNoteID)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET delivery_note_id = $1, pairing_status = $2, pairing_confidence = $3,
		    pairing_model_version = $4
		WHERE id = $5 AND doc_type = 'invoice'
		  AND (delivery_note_id IS NULL OR delivery_note_id = $1 OR delivery_note_id = $6)`,
		params.DeliveryNoteID, params.Status, params.Confidence,
		params.ModelVersion, params.InvoiceID, params.PreviousDeliveryNoteID)
	if err != nil {
		return fmt.Errorf("failed to link invoice %s: %w", params.InvoiceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := p.classifyLinkFailure(ctx, tx, params.InvoiceID, DocTypeInvoice); err != nil {
			return err
		}
		return Conflictf("invoice %s is linked to another delivery note", params.InvoiceID)
	}

	if err := insertEvent(ctx, tx, params.InvoiceID, &params.DeliveryNoteID, params.PreviousDeliveryNoteID, params.Event); err != nil {
		return err
	}
	return tx.Commit()
}

// Clear reverts an invoice to unpaired, releasing the delivery note
// back-reference when a link existed.
func (p *Postgres) Clear(ctx context.Context, params ClearParams) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET delivery_note_id = NULL, pairing_status = $1,
		    pairing_confidence = NULL, pairing_model_version = NULL
		WHERE id = $2 AND doc_type = 'invoice'`,
		StatusUnpaired, params.InvoiceID)
	if err != nil {
		return fmt.Errorf("failed to clear invoice %s: %w", params.InvoiceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundf("invoice %s", params.InvoiceID)
	}

	if params.DeliveryNoteID != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET invoice_id = NULL
			WHERE id = $1 AND doc_type = 'delivery_note' AND invoice_id = $2`,
			*params.DeliveryNoteID, params.InvoiceID)
		if err != nil {
			return fmt.Errorf("failed to release delivery note %s: %w", *params.DeliveryNoteID, err)
		}
	}

	if err := insertEvent(ctx, tx, params.InvoiceID, nil, params.DeliveryNoteID, params.Event); err != nil {
		return err
	}
	return tx.Commit()
}

// Suggest records an evaluation outcome on an unlinked invoice. Suggestions
// never touch delivery note rows; only committed pairs hold a link.
func (p *Postgres) Suggest(ctx context.Context, params SuggestParams) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET pairing_status = $1, pairing_confidence = $2
		WHERE id = $3 AND doc_type = 'invoice' AND delivery_note_id IS NULL`,
		params.Status, params.Confidence, params.InvoiceID)
	if err != nil {
		return fmt.Errorf("failed to record suggestion on %s: %w", params.InvoiceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := p.classifyLinkFailure(ctx, tx, params.InvoiceID, DocTypeInvoice); err != nil {
			return err
		}
		return Conflictf("invoice %s is already paired", params.InvoiceID)
	}

	if params.Event != nil {
		if err := insertEvent(ctx, tx, params.InvoiceID, nil, nil, *params.Event); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// classifyLinkFailure distinguishes a missing row from a concurrent claim so
// callers can surface 404 vs 409.
func (p *Postgres) classifyLinkFailure(ctx context.Context, tx *sql.Tx, id, docType string) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND doc_type = $2)`,
		id, docType).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to inspect %s %s: %w", docType, id, err)
	}
	if !exists {
		return NotFoundf("%s %s", docType, id)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, invoiceID string, deliveryNoteID, previousID *string, ev EventRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pairing_events (invoice_id, delivery_note_id, previous_delivery_note_id,
			action, actor_type, user_id, feature_vector_json, model_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		invoiceID, deliveryNoteID, previousID,
		ev.Action, ev.ActorType, ev.UserID, ev.FeatureVectorJSON, ev.ModelVersion)
	if err != nil {
		return fmt.Errorf("failed to append pairing event: %w", err)
	}
	return nil
}
