package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Stats aggregates the invoice population and the recent ledger.
func (p *Postgres) Stats(ctx context.Context, recentLimit int) (*PairingStats, error) {
	var s PairingStats
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE pairing_status = 'unpaired'),
		       COUNT(*) FILTER (WHERE pairing_status = 'suggested'),
		       COUNT(*) FILTER (WHERE pairing_status = 'auto_paired'),
		       COUNT(*) FILTER (WHERE pairing_status = 'manual_paired'),
		       AVG(pairing_confidence) FILTER (WHERE delivery_note_id IS NOT NULL)
		FROM documents
		WHERE doc_type = 'invoice'`).Scan(
		&s.TotalInvoices, &s.UnpairedCount, &s.SuggestedCount,
		&s.AutoPairedCount, &s.ManualPairedCount, &s.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate pairing stats: %w", err)
	}
	s.PairedCount = s.AutoPairedCount + s.ManualPairedCount

	rate := func(days int) (float64, error) {
		var total, paired int
		err := p.db.QueryRowContext(ctx, `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE delivery_note_id IS NOT NULL)
			FROM documents
			WHERE doc_type = 'invoice' AND created_at >= NOW() - $1 * INTERVAL '1 day'`,
			days).Scan(&total, &paired)
		if err != nil {
			return 0, err
		}
		if total == 0 {
			return 0, nil
		}
		return float64(paired) / float64(total), nil
	}
	if s.PairingRate7d, err = rate(7); err != nil {
		return nil, fmt.Errorf("failed to compute 7d pairing rate: %w", err)
	}
	if s.PairingRate30d, err = rate(30); err != nil {
		return nil, fmt.Errorf("failed to compute 30d pairing rate: %w", err)
	}

	if s.RecentEvents, err = p.RecentEvents(ctx, recentLimit); err != nil {
		return nil, err
	}
	return &s, nil
}

// Cadence returns the stored delivery-timing stats for a supplier at a
// venue, or nil when none have been computed yet.
func (p *Postgres) Cadence(ctx context.Context, supplierID, venueID string) (*CadenceStats, error) {
	var cs CadenceStats
	var weekdays pq.Int64Array
	err := p.db.QueryRowContext(ctx, `
		SELECT supplier_id, venue_id, typical_weekdays, avg_interval_days,
		       stddev_interval_days, updated_at
		FROM supplier_stats
		WHERE supplier_id = $1 AND venue_id = $2`,
		supplierID, venueID).Scan(
		&cs.SupplierID, &cs.VenueID, &weekdays,
		&cs.AvgIntervalDays, &cs.StdDevIntervalDays, &cs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cadence for %s/%s: %w", supplierID, venueID, err)
	}
	cs.TypicalWeekdays = make([]int, len(weekdays))
	for i, w := range weekdays {
		cs.TypicalWeekdays[i] = int(w)
	}
	return &cs, nil
}

// UpsertCadence stores a freshly computed stats row.
func (p *Postgres) UpsertCadence(ctx context.Context, cs CadenceStats) error {
	weekdays := make(pq.Int64Array, len(cs.TypicalWeekdays))
	for i, w := range cs.TypicalWeekdays {
		weekdays[i] = int64(w)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO supplier_stats (supplier_id, venue_id, typical_weekdays,
			avg_interval_days, stddev_interval_days, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (supplier_id, venue_id) DO UPDATE
		SET typical_weekdays = EXCLUDED.typical_weekdays,
		    avg_interval_days = EXCLUDED.avg_interval_days,
		    stddev_interval_days = EXCLUDED.stddev_interval_days,
		    updated_at = NOW()`,
		cs.SupplierID, cs.VenueID, weekdays, cs.AvgIntervalDays, cs.StdDevIntervalDays)
	if err != nil {
		return fmt.Errorf("failed to upsert cadence for %s/%s: %w", cs.SupplierID, cs.VenueID, err)
	}
	return nil
}

// DeliveryDate is one dated delivery note grouped for cadence computation.
type DeliveryDate struct {
	SupplierID string
	VenueID    string
	Date       time.Time
}

// DeliveryDates streams every dated, supplier-resolved delivery note,
// ordered so the cadence job can process one (supplier, venue) group at a
// time. Notes without a venue fall into the default group.
func (p *Postgres) DeliveryDates(ctx context.Context) ([]DeliveryDate, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT supplier_id, COALESCE(venue, $1), doc_date
		FROM documents
		WHERE doc_type = 'delivery_note' AND supplier_id IS NOT NULL AND doc_date IS NOT NULL
		ORDER BY supplier_id, COALESCE(venue, $1), doc_date`, DefaultVenue)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery dates: %w", err)
	}
	defer rows.Close()

	var out []DeliveryDate
	for rows.Next() {
		var d DeliveryDate
		if err := rows.Scan(&d.SupplierID, &d.VenueID, &d.Date); err != nil {
			return nil, fmt.Errorf("failed to scan delivery date: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
