package recovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairKey(i int) domain.PairKey {
	return domain.PairKey{Store: fmt.Sprintf("S%02d", i%10), Product: fmt.Sprintf("P%03d", i)}
}

func batch(pairs, days int, censored ...int) []domain.DemandObservation {
	var out []domain.DemandObservation
	for i := 0; i < pairs; i++ {
		for _, row := range seasonalSeries(pairKey(i), days, censored...) {
			out = append(out, row.DemandObservation)
		}
	}
	return out
}

func newTestEngine(t *testing.T, buf *bytes.Buffer, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = 4
	cfg.Boosting.Estimators = 20
	cfg.Boosting.MinDataInLeaf = 5
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, zerolog.New(buf))
	require.NoError(t, err)
	e.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

// failingImputer delegates to next except for one pair.
type failingImputer struct {
	next Imputer
	fail domain.PairKey
}

func (f failingImputer) Name() string { return f.next.Name() }

func (f failingImputer) FitImpute(training, inference []domain.DemandObservation, rng *rand.Rand) ([]int, error) {
	if training[0].Key() == f.fail {
		return nil, errors.New("injected failure")
	}
	return f.next.FitImpute(training, inference, rng)
}

func rowsByPair(rows []domain.CorrectedObservation) map[domain.PairKey][]domain.CorrectedObservation {
	out := make(map[domain.PairKey][]domain.CorrectedObservation)
	for _, r := range rows {
		out[r.Key()] = append(out[r.Key()], r)
	}
	return out
}

func TestFirstFullSalesRecovery_PartialFailureIsolation(t *testing.T) {
	input := batch(100, 40, 6, 7, 20)
	failed := pairKey(42)

	var baselineLog bytes.Buffer
	baseline, err := newTestEngine(t, &baselineLog, nil).FirstFullSalesRecovery(context.Background(), input)
	require.NoError(t, err)
	require.Empty(t, baseline.Report.SkippedPairs)

	var logs bytes.Buffer
	engine := newTestEngine(t, &logs, nil)
	engine.PoissonImputer = failingImputer{next: engine.PoissonImputer, fail: failed}
	engine.BoostedImputer = failingImputer{next: engine.BoostedImputer, fail: failed}

	result, err := engine.FirstFullSalesRecovery(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []domain.PairKey{failed}, result.Report.SkippedPairs)
	assert.Equal(t, 1, strings.Count(logs.String(), "imputer fit failed"))
	assert.Equal(t, 100, result.Report.Pairs)
	assert.Len(t, result.Rows, len(input))

	want := rowsByPair(baseline.Rows)
	got := rowsByPair(result.Rows)
	for key, rows := range got {
		if key == failed {
			continue
		}
		assert.Equal(t, want[key], rows, key.String())
	}

	for _, row := range got[failed] {
		assert.Equal(t, row.Sold, row.SoldCorrected)
	}
}

func TestFirstFullSalesRecovery_IndependentOfWorkerCount(t *testing.T) {
	input := batch(12, 30, 3, 4, 15)

	var buf bytes.Buffer
	serial, err := newTestEngine(t, &buf, func(c *Config) { c.Workers = 1 }).FirstFullSalesRecovery(context.Background(), input)
	require.NoError(t, err)
	parallel, err := newTestEngine(t, &buf, func(c *Config) { c.Workers = 8 }).FirstFullSalesRecovery(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, serial.Rows, parallel.Rows)
	assert.Equal(t, serial.Profiles, parallel.Profiles)
}

func TestFirstFullSalesRecovery_ProfilesAndOrdering(t *testing.T) {
	input := batch(3, 20, 5)
	// Feed rows in reverse to check the output ordering.
	for i, j := 0, len(input)-1; i < j; i, j = i+1, j-1 {
		input[i], input[j] = input[j], input[i]
	}

	var buf bytes.Buffer
	result, err := newTestEngine(t, &buf, nil).FirstFullSalesRecovery(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, result.Profiles, 3)
	for _, p := range result.Profiles {
		// No orders in the series, so every pair falls back to the default lag.
		assert.Equal(t, 2.0, p.MedianLagDays)
		assert.False(t, p.LagMatched)
		assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), p.ComputedAt)
	}
	assert.Equal(t, 3, result.Report.DefaultLagPairs)
	assert.Equal(t, 3, result.Report.ImputedDays)

	for i := 1; i < len(result.Rows); i++ {
		prev, cur := result.Rows[i-1], result.Rows[i]
		assert.False(t, cur.Date.Before(prev.Date))
	}
	for _, row := range result.Rows {
		profile := result.Profiles[0]
		for _, p := range result.Profiles {
			if p.Key() == row.Key() {
				profile = p
			}
		}
		assert.Equal(t, profile.IsPoissonLike, row.IsPoissonLike)
		assert.Equal(t, profile.MedianLagDays, row.MedianLagDays)
	}
}

func TestFirstFullSalesRecovery_DataContract(t *testing.T) {
	input := batch(2, 5)
	input = append(input, input[3])

	var buf bytes.Buffer
	_, err := newTestEngine(t, &buf, nil).FirstFullSalesRecovery(context.Background(), input)
	require.Error(t, err)

	var contract *domain.DataContractError
	require.ErrorAs(t, err, &contract)
	assert.Equal(t, input[3].Key(), contract.Key)
}

func TestFirstFullSalesRecovery_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := newTestEngine(t, &buf, nil).FirstFullSalesRecovery(ctx, batch(5, 10, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextFullSalesRecovery_DropsUnmatchedPairs(t *testing.T) {
	window := batch(2, 7, 3)
	known := pairKey(0)
	profiles := map[domain.PairKey]domain.PairProfile{
		known: {Store: known.Store, Product: known.Product, IsPoissonLike: true, MedianLagDays: 4.5, LagMatched: true},
	}

	var logs bytes.Buffer
	result, err := newTestEngine(t, &logs, nil).NextFullSalesRecovery(context.Background(), window, profiles)
	require.NoError(t, err)

	assert.Equal(t, []domain.PairKey{pairKey(1)}, result.Report.DroppedPairs)
	assert.Empty(t, result.Profiles)
	assert.Contains(t, logs.String(), "pair dropped from incremental window")
	require.Len(t, result.Rows, 7)

	for _, row := range result.Rows {
		assert.Equal(t, known, row.Key())
		assert.True(t, row.IsPoissonLike)
		assert.Equal(t, 4.5, row.MedianLagDays)
		assert.Equal(t, row.Sold, row.SoldCorrected)
		assert.Equal(t, row.Received, row.ReceivedCorrected)
		assert.Equal(t, row.Stock, row.StockCorrected)
		assert.Equal(t, row.Ordered, row.OrderedSimulated)
	}
}

func TestNextFullSalesRecovery_ClassifiesUnmatchedPairs(t *testing.T) {
	window := batch(1, 7)

	var logs bytes.Buffer
	engine := newTestEngine(t, &logs, func(c *Config) { c.UnmatchedPairs = PolicyClassify })
	result, err := engine.NextFullSalesRecovery(context.Background(), window, nil)
	require.NoError(t, err)

	require.Len(t, result.Profiles, 1)
	profile := result.Profiles[0]
	assert.Equal(t, pairKey(0), profile.Key())
	assert.Equal(t, 2.0, profile.MedianLagDays)
	assert.False(t, profile.LagMatched)
	assert.Empty(t, result.Report.DroppedPairs)
	assert.Len(t, result.Rows, 7)
	assert.Contains(t, logs.String(), "pair classified from incremental window")
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UnmatchedPairs = "ignore"
	_, err := NewEngine(cfg, zerolog.Nop())
	assert.Error(t, err)
}
