package store

import (
	"context"
	"fmt"
)

const eventColumns = `
	id, ts, invoice_id, delivery_note_id, previous_delivery_note_id,
	action, actor_type, user_id, feature_vector_json, model_version`

func scanEvent(row interface{ Scan(...interface{}) error }) (PairingEvent, error) {
	var e PairingEvent
	err := row.Scan(&e.ID, &e.Timestamp, &e.InvoiceID, &e.DeliveryNoteID,
		&e.PreviousDeliveryNoteID, &e.Action, &e.ActorType, &e.UserID,
		&e.FeatureVectorJSON, &e.ModelVersion)
	return e, err
}

// EventsForInvoice returns the invoice's full decision history, newest
// first.
func (p *Postgres) EventsForInvoice(ctx context.Context, invoiceID string) ([]PairingEvent, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM pairing_events WHERE invoice_id = $1 ORDER BY id DESC`,
		invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", invoiceID, err)
	}
	defer rows.Close()

	var out []PairingEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentEvents returns the latest ledger entries across all invoices.
func (p *Postgres) RecentEvents(ctx context.Context, limit int) ([]PairingEvent, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM pairing_events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent events: %w", err)
	}
	defer rows.Close()

	var out []PairingEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TrainingExamples extracts labeled feature vectors from the ledger.
// Confirmations and auto-pairs are positives; rejections are negatives.
// Events without a stored vector carry no signal and are skipped.
func (p *Postgres) TrainingExamples(ctx context.Context) ([]TrainingExample, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT feature_vector_json, action
		FROM pairing_events
		WHERE feature_vector_json IS NOT NULL
		  AND action IN ($1, $2, $3)
		ORDER BY id`,
		ActionConfirmedManual, ActionAutoPaired, ActionRejected)
	if err != nil {
		return nil, fmt.Errorf("failed to load training examples: %w", err)
	}
	defer rows.Close()

	var out []TrainingExample
	for rows.Next() {
		var vector, action string
		if err := rows.Scan(&vector, &action); err != nil {
			return nil, fmt.Errorf("failed to scan training example: %w", err)
		}
		out = append(out, TrainingExample{
			FeatureVectorJSON: vector,
			Positive:          action != ActionRejected,
		})
	}
	return out, rows.Err()
}

// AppendAudit writes one line to the system audit log.
func (p *Postgres) AppendAudit(ctx context.Context, actor, action, detail string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor, action, detail) VALUES ($1, $2, $3)`,
		actor, action, detail)
	if err != nil {
		return fmt.Errorf("failed to append audit line: %w", err)
	}
	return nil
}
