package recovery

import (
	"testing"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dayN(n int) time.Time {
	return day0.AddDate(0, 0, n)
}

func TestLagSamples_PartialReceipts(t *testing.T) {
	rows := []LagRow{
		{Date: dayN(0), Ordered: 10},
		{Date: dayN(2), Received: 4},
		{Date: dayN(5), Received: 6},
	}

	assert.Equal(t, []float64{2, 5}, LagSamples(rows))

	median, ok := EstimateLag(rows)
	require.True(t, ok)
	assert.Equal(t, 3.5, median)
}

func TestLagSamples_OneSamplePerMatchStep(t *testing.T) {
	rows := []LagRow{
		{Date: dayN(0), Ordered: 1},
		{Date: dayN(1), Ordered: 1},
		{Date: dayN(2), Ordered: 100},
		// Settles two one-unit orders and one unit of the large order.
		{Date: dayN(4), Received: 3},
	}

	assert.Equal(t, []float64{4, 3, 2}, LagSamples(rows))
}

func TestLagSamples_ExcessReceiptDiscarded(t *testing.T) {
	rows := []LagRow{
		{Date: dayN(0), Ordered: 2},
		{Date: dayN(1), Received: 5},
		// The surplus of the previous receipt is not carried to this order.
		{Date: dayN(3), Ordered: 4},
		{Date: dayN(6), Received: 4},
	}

	assert.Equal(t, []float64{1, 3}, LagSamples(rows))
}

func TestLagSamples_SameDayOrderAndReceipt(t *testing.T) {
	rows := []LagRow{
		{Date: dayN(0), Ordered: 3, Received: 3},
	}

	assert.Equal(t, []float64{0}, LagSamples(rows))
}

func TestLagSamples_QueueGrowsPastInitialCapacity(t *testing.T) {
	var rows []LagRow
	for i := 0; i < 20; i++ {
		rows = append(rows, LagRow{Date: dayN(i), Ordered: 1})
	}
	rows = append(rows, LagRow{Date: dayN(30), Received: 20})

	samples := LagSamples(rows)
	require.Len(t, samples, 20)
	assert.Equal(t, 30.0, samples[0])
	assert.Equal(t, 11.0, samples[19])
}

func TestEstimateLag_NoMatch(t *testing.T) {
	_, ok := EstimateLag([]LagRow{{Date: dayN(0), Received: 5}})
	assert.False(t, ok)
}

func TestLagProfileFor_DefaultsWhenUnmatched(t *testing.T) {
	key := domain.PairKey{Store: "S1", Product: "P1"}
	rows := []domain.CorrectedObservation{
		domain.NewCorrectedObservation(domain.DemandObservation{Date: dayN(0), Store: "S1", Product: "P1", Sold: 1, Stock: 4}),
	}

	lag := LagProfileFor(key, rows, 2)
	assert.Equal(t, 2.0, lag.MedianLagDays)
	assert.False(t, lag.Matched)
	assert.Equal(t, key, lag.PairKey)
}
