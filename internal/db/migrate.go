package db

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// migrations is the ordered, versioned schema history. Entries are append-only:
// never edit a shipped migration, add a new one.
var migrations = []string{
	// 1: canonical supplier directory
	`CREATE TABLE suppliers (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL UNIQUE,
		normalized_name TEXT NOT NULL,
		aliases         TEXT[] NOT NULL DEFAULT '{}',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// 2: human-confirmable merge proposals for ambiguous supplier names
	`CREATE TABLE supplier_alias_review (
		id                    BIGSERIAL PRIMARY KEY,
		original_name         TEXT NOT NULL,
		suggested_match       TEXT NOT NULL,
		suggested_supplier_id TEXT REFERENCES suppliers(id),
		confidence            DOUBLE PRECISION NOT NULL,
		status                TEXT NOT NULL DEFAULT 'pending',
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
		reviewed_at           TIMESTAMPTZ,
		reviewed_by           TEXT
	)`,

	// 3: every resolver call lands here, whatever the branch taken
	`CREATE TABLE normalization_log (
		id            BIGSERIAL PRIMARY KEY,
		supplier_name TEXT NOT NULL,
		matched_id    TEXT,
		confidence    DOUBLE PRECISION NOT NULL,
		action        TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// 4: captured documents; invoices carry the pairing columns, delivery
	// notes carry the invoice back-reference
	`CREATE TABLE documents (
		id                    TEXT PRIMARY KEY,
		doc_type              TEXT NOT NULL CHECK (doc_type IN ('invoice', 'delivery_note')),
		supplier_raw          TEXT NOT NULL,
		supplier_id           TEXT REFERENCES suppliers(id),
		doc_date              DATE,
		total_amount          NUMERIC(14,2) NOT NULL DEFAULT 0,
		currency              TEXT NOT NULL DEFAULT 'GBP',
		venue                 TEXT,
		status                TEXT NOT NULL DEFAULT 'parsed',
		invoice_id            TEXT REFERENCES documents(id),
		delivery_note_id      TEXT REFERENCES documents(id),
		pairing_status        TEXT NOT NULL DEFAULT 'unpaired',
		pairing_confidence    DOUBLE PRECISION,
		pairing_model_version TEXT,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// 5: the 1:1 invariant, enforced by the database
	`CREATE UNIQUE INDEX idx_documents_invoice_unique
		ON documents(invoice_id) WHERE invoice_id IS NOT NULL`,

	// 6
	`CREATE UNIQUE INDEX idx_documents_delivery_note_unique
		ON documents(delivery_note_id) WHERE delivery_note_id IS NOT NULL`,

	// 7
	`CREATE INDEX idx_documents_pairing_status ON documents(pairing_status)`,

	// 8
	`CREATE INDEX idx_documents_supplier_date ON documents(supplier_id, doc_date)`,

	// 9: line items are owned by exactly one document
	`CREATE TABLE line_items (
		id          BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		line_number INT NOT NULL,
		description TEXT NOT NULL,
		quantity    NUMERIC(12,3) NOT NULL DEFAULT 0,
		unit_price  NUMERIC(12,4) NOT NULL DEFAULT 0,
		line_total  NUMERIC(14,2) NOT NULL DEFAULT 0
	)`,

	// 10
	`CREATE INDEX idx_line_items_document ON line_items(document_id)`,

	// 11: append-only decision ledger, also the model training corpus
	`CREATE TABLE pairing_events (
		id                        BIGSERIAL PRIMARY KEY,
		ts                        TIMESTAMPTZ NOT NULL DEFAULT now(),
		invoice_id                TEXT NOT NULL REFERENCES documents(id),
		delivery_note_id          TEXT REFERENCES documents(id),
		previous_delivery_note_id TEXT REFERENCES documents(id),
		action                    TEXT NOT NULL,
		actor_type                TEXT NOT NULL,
		user_id                   TEXT,
		feature_vector_json       TEXT,
		model_version             TEXT
	)`,

	// 12
	`CREATE INDEX idx_pairing_events_invoice ON pairing_events(invoice_id)`,

	// 13
	`CREATE INDEX idx_pairing_events_action ON pairing_events(action)`,

	// 14: per (supplier, venue) delivery-timing regularities
	`CREATE TABLE supplier_stats (
		supplier_id          TEXT NOT NULL,
		venue_id             TEXT NOT NULL DEFAULT '__default__',
		typical_weekdays     INT[] NOT NULL DEFAULT '{}',
		avg_interval_days    DOUBLE PRECISION,
		stddev_interval_days DOUBLE PRECISION,
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (supplier_id, venue_id)
	)`,

	// 15: system-level audit lines (auto-pair decisions and the like)
	`CREATE TABLE audit_log (
		id     BIGSERIAL PRIMARY KEY,
		ts     TIMESTAMPTZ NOT NULL DEFAULT now(),
		actor  TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT
	)`,
}

// Migrate applies any pending migrations, tracking progress in a
// schema_version row. Each migration runs in its own transaction.
func Migrate(db *sql.DB, log *logrus.Entry) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INT NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var current int
	err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("failed to seed schema_version: %w", err)
		}
		current = 0
	} else if err != nil {
		return fmt.Errorf("failed to read schema_version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = $1`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
		log.WithField("version", version).Info("applied schema migration")
	}

	return nil
}
