// Package cadence derives per supplier delivery-timing statistics from the
// delivery note history. The pairing scorer reads these as a plausibility
// signal.
package cadence

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/docpair/internal/store"
)

// MinDeliveries is the observation floor below which no stats are computed
// for a (supplier, venue) group.
const MinDeliveries = 3

// typicalWeekdayRatio marks a weekday as typical when it carries at least
// this share of the busiest weekday's deliveries.
const typicalWeekdayRatio = 0.2

// Store is the persistence surface the job needs.
type Store interface {
	DeliveryDates(ctx context.Context) ([]store.DeliveryDate, error)
	UpsertCadence(ctx context.Context, cs store.CadenceStats) error
}

// Recompute rebuilds stats for every supplier and venue with enough dated
// deliveries. Returns the number of groups written.
func Recompute(ctx context.Context, st Store, log *logrus.Entry) (int, error) {
	dates, err := st.DeliveryDates(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, group := range groupDates(dates) {
		stats, ok := Compute(group.supplierID, group.venueID, group.dates)
		if !ok {
			continue
		}
		if err := st.UpsertCadence(ctx, stats); err != nil {
			return written, err
		}
		written++
		log.WithFields(logrus.Fields{
			"supplier":   group.supplierID,
			"venue":      group.venueID,
			"deliveries": len(group.dates),
			"weekdays":   stats.TypicalWeekdays,
		}).Debug("cadence stats updated")
	}
	return written, nil
}

type dateGroup struct {
	supplierID string
	venueID    string
	dates      []time.Time
}

func groupDates(dates []store.DeliveryDate) []dateGroup {
	var groups []dateGroup
	for _, d := range dates {
		if n := len(groups); n > 0 &&
			groups[n-1].supplierID == d.SupplierID && groups[n-1].venueID == d.VenueID {
			groups[n-1].dates = append(groups[n-1].dates, d.Date)
			continue
		}
		groups = append(groups, dateGroup{
			supplierID: d.SupplierID,
			venueID:    d.VenueID,
			dates:      []time.Time{d.Date},
		})
	}
	return groups
}

// Compute derives stats for one group of delivery dates. Returns ok=false
// when the group is below the observation floor.
func Compute(supplierID, venueID string, dates []time.Time) (store.CadenceStats, bool) {
	if len(dates) < MinDeliveries {
		return store.CadenceStats{}, false
	}

	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	avg, stddev := intervalStats(sorted)
	return store.CadenceStats{
		SupplierID:         supplierID,
		VenueID:            venueID,
		TypicalWeekdays:    typicalWeekdays(sorted),
		AvgIntervalDays:    &avg,
		StdDevIntervalDays: &stddev,
	}, true
}

// typicalWeekdays returns the weekdays carrying at least 20 percent of the
// modal weekday's delivery count, ascending.
func typicalWeekdays(dates []time.Time) []int {
	var counts [7]int
	modal := 0
	for _, d := range dates {
		w := int(d.Weekday())
		counts[w]++
		if counts[w] > modal {
			modal = counts[w]
		}
	}

	var out []int
	for w, c := range counts {
		if c > 0 && float64(c) >= typicalWeekdayRatio*float64(modal) {
			out = append(out, w)
		}
	}
	return out
}

func intervalStats(sorted []time.Time) (avg, stddev float64) {
	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, sorted[i].Sub(sorted[i-1]).Hours()/24)
	}

	var sum float64
	for _, iv := range intervals {
		sum += iv
	}
	avg = sum / float64(len(intervals))

	var sq float64
	for _, iv := range intervals {
		sq += (iv - avg) * (iv - avg)
	}
	stddev = math.Sqrt(sq / float64(len(intervals)))
	return avg, stddev
}
