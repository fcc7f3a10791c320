package recovery

import (
	"slices"
	"strings"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/pkg/errors"
)

// pairSeries is the slice of rows owned by one pair, sorted by date.
type pairSeries struct {
	key  domain.PairKey
	rows []domain.CorrectedObservation
}

type rowKey struct {
	date    time.Time
	store   string
	product string
}

// ValidateObservations enforces the input contract: key fields present,
// quantities non-negative and (date, store, product) unique.
func ValidateObservations(rows []domain.DemandObservation) error {
	seen := make(map[rowKey]struct{}, len(rows))
	for _, o := range rows {
		if strings.TrimSpace(o.Store) == "" || strings.TrimSpace(o.Product) == "" {
			return contractError("store and product are required", o)
		}
		if o.Date.IsZero() {
			return contractError("date is required", o)
		}
		if o.Sold < 0 || o.Stock < 0 || o.Received < 0 || o.Ordered < 0 || o.ReceiptCount < 0 {
			return contractError("quantities must be non-negative", o)
		}
		k := rowKey{date: o.Date.Truncate(24 * time.Hour), store: o.Store, product: o.Product}
		if _, dup := seen[k]; dup {
			return contractError("duplicate (date, store, product) key", o)
		}
		seen[k] = struct{}{}
	}
	return nil
}

func contractError(reason string, o domain.DemandObservation) error {
	return errors.WithStack(&domain.DataContractError{Reason: reason, Key: o.Key(), Date: o.Date})
}

// groupByPair splits rows into per-pair series, each sorted by date. Pairs are
// returned in key order so runs are reproducible.
func groupByPair(rows []domain.DemandObservation) []pairSeries {
	byKey := make(map[domain.PairKey][]domain.CorrectedObservation)
	for _, o := range rows {
		byKey[o.Key()] = append(byKey[o.Key()], domain.NewCorrectedObservation(o))
	}

	out := make([]pairSeries, 0, len(byKey))
	for key, series := range byKey {
		slices.SortFunc(series, func(a, b domain.CorrectedObservation) int {
			return a.Date.Compare(b.Date)
		})
		out = append(out, pairSeries{key: key, rows: series})
	}
	slices.SortFunc(out, func(a, b pairSeries) int {
		return comparePairKeys(a.key, b.key)
	})
	return out
}

func comparePairKeys(a, b domain.PairKey) int {
	if c := strings.Compare(a.Store, b.Store); c != 0 {
		return c
	}
	return strings.Compare(a.Product, b.Product)
}

// FilterActivePairs keeps the pairs that sold something within activeWindowDays
// of the latest date in rows and whose total sales exceed minTotalSales. It
// retires products that left the assortment before a batch run.
func FilterActivePairs(rows []domain.DemandObservation, activeWindowDays, minTotalSales int) []domain.DemandObservation {
	if len(rows) == 0 {
		return rows
	}

	var maxDate time.Time
	for _, o := range rows {
		if o.Date.After(maxDate) {
			maxDate = o.Date
		}
	}
	cutoff := maxDate.AddDate(0, 0, -activeWindowDays)

	recent := make(map[domain.PairKey]bool)
	totals := make(map[domain.PairKey]int)
	for _, o := range rows {
		totals[o.Key()] += o.Sold
		if o.Sold > 0 && !o.Date.Before(cutoff) {
			recent[o.Key()] = true
		}
	}

	out := make([]domain.DemandObservation, 0, len(rows))
	for _, o := range rows {
		if recent[o.Key()] && totals[o.Key()] > minTotalSales {
			out = append(out, o)
		}
	}
	return out
}

// ProfilesFromHistory extracts one profile per pair from previously recovered
// rows. The latest row of a pair wins.
func ProfilesFromHistory(history []domain.CorrectedObservation) map[domain.PairKey]domain.PairProfile {
	latest := make(map[domain.PairKey]time.Time)
	out := make(map[domain.PairKey]domain.PairProfile)
	for _, row := range history {
		key := row.Key()
		if d, ok := latest[key]; ok && !row.Date.After(d) {
			continue
		}
		latest[key] = row.Date
		out[key] = domain.PairProfile{
			Store:         key.Store,
			Product:       key.Product,
			IsPoissonLike: row.IsPoissonLike,
			MedianLagDays: row.MedianLagDays,
			ComputedAt:    row.Date,
		}
	}
	return out
}
