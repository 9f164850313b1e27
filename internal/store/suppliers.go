package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Suppliers returns every canonical supplier. The resolver scores against
// the full directory, so no pagination.
func (p *Postgres) Suppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, normalized_name, aliases, created_at
		FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.NormalizedName, pq.Array(&s.Aliases), &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateSupplier inserts a new canonical supplier and returns its id.
func (p *Postgres) CreateSupplier(ctx context.Context, name, normalized string, aliases []string) (string, error) {
	id := uuid.NewString()
	if aliases == nil {
		aliases = []string{}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, normalized_name, aliases)
		VALUES ($1, $2, $3, $4)`,
		id, name, normalized, pq.Array(aliases))
	if err != nil {
		return "", fmt.Errorf("failed to create supplier %q: %w", name, err)
	}
	return id, nil
}

// AddAlias appends a raw name to a supplier's alias list if not already
// present.
func (p *Postgres) AddAlias(ctx context.Context, supplierID, alias string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE suppliers
		SET aliases = array_append(aliases, $1)
		WHERE id = $2 AND NOT ($1 = ANY(aliases))`, alias, supplierID)
	if err != nil {
		return fmt.Errorf("failed to add alias to %s: %w", supplierID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either the supplier is missing or the alias already exists;
		// only the former is an error.
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, supplierID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to inspect supplier %s: %w", supplierID, err)
		}
		if !exists {
			return NotFoundf("supplier %s", supplierID)
		}
	}
	return nil
}

// EnqueueAliasReview files a mid-band resolver hit for human review. Repeat
// sightings of the same (original, suggestion) pair while one is pending are
// collapsed into the existing row.
func (p *Postgres) EnqueueAliasReview(ctx context.Context, original, suggested string, supplierID *string, confidence float64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO supplier_alias_review (original_name, suggested_match, suggested_supplier_id, confidence, status)
		SELECT $1, $2, $3, $4, 'pending'
		WHERE NOT EXISTS (
			SELECT 1 FROM supplier_alias_review
			WHERE original_name = $1 AND suggested_match = $2 AND status = 'pending')`,
		original, suggested, supplierID, confidence)
	if err != nil {
		return fmt.Errorf("failed to enqueue alias review: %w", err)
	}
	return nil
}

// PendingAliasReviews lists open review items, oldest first.
func (p *Postgres) PendingAliasReviews(ctx context.Context) ([]AliasReview, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, original_name, suggested_match, suggested_supplier_id,
		       confidence, status, created_at, reviewed_at, reviewed_by
		FROM supplier_alias_review
		WHERE status = 'pending'
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alias reviews: %w", err)
	}
	defer rows.Close()

	var out []AliasReview
	for rows.Next() {
		var r AliasReview
		if err := rows.Scan(&r.ID, &r.OriginalName, &r.SuggestedMatch, &r.SuggestedSupplierID,
			&r.Confidence, &r.Status, &r.CreatedAt, &r.ReviewedAt, &r.ReviewedBy); err != nil {
			return nil, fmt.Errorf("failed to scan alias review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ResolveAliasReview closes a pending review. Approval promotes the original
// name to a supplier alias and re-points unresolved documents carrying that
// raw name, all in the same transaction, so the resolver matches it exactly
// from then on.
func (p *Postgres) ResolveAliasReview(ctx context.Context, id int64, approve bool, reviewer string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	status := ReviewRejected
	if approve {
		status = ReviewApproved
	}

	var original string
	var supplierID sql.NullString
	err = tx.QueryRowContext(ctx, `
		UPDATE supplier_alias_review
		SET status = $1, reviewed_at = NOW(), reviewed_by = $2
		WHERE id = $3 AND status = 'pending'
		RETURNING original_name, suggested_supplier_id`,
		status, reviewer, id).Scan(&original, &supplierID)
	if err == sql.ErrNoRows {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM supplier_alias_review WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to inspect alias review %d: %w", id, err)
		}
		if !exists {
			return NotFoundf("alias review %d", id)
		}
		return Conflictf("alias review %d is already resolved", id)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve alias review %d: %w", id, err)
	}

	if approve && supplierID.Valid {
		_, err = tx.ExecContext(ctx, `
			UPDATE suppliers
			SET aliases = array_append(aliases, $1)
			WHERE id = $2 AND NOT ($1 = ANY(aliases))`,
			original, supplierID.String)
		if err != nil {
			return fmt.Errorf("failed to promote alias %q: %w", original, err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET supplier_id = $1
			WHERE supplier_raw = $2 AND supplier_id IS NULL`,
			supplierID.String, original)
		if err != nil {
			return fmt.Errorf("failed to re-point documents for %q: %w", original, err)
		}
	}

	return tx.Commit()
}

// LogNormalization appends one resolver decision to the normalization log.
func (p *Postgres) LogNormalization(ctx context.Context, entry NormalizationEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO normalization_log (supplier_name, matched_id, confidence, action)
		VALUES ($1, $2, $3, $4)`,
		entry.SupplierName, entry.MatchedID, entry.Confidence, entry.Action)
	if err != nil {
		return fmt.Errorf("failed to log normalization: %w", err)
	}
	return nil
}
