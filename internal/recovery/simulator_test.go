package recovery

import (
	"testing"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type simDay struct {
	stock, sold, received, ordered int
	soldCorrected                  int
}

func buildSeries(days []simDay) []domain.CorrectedObservation {
	rows := make([]domain.CorrectedObservation, len(days))
	for i, d := range days {
		rows[i] = domain.NewCorrectedObservation(domain.DemandObservation{
			Date:     dayN(i),
			Store:    "S1",
			Product:  "P1",
			Stock:    d.stock,
			Sold:     d.sold,
			Received: d.received,
			Ordered:  d.ordered,
		})
		if d.sold == 0 && d.stock == 0 && d.received == 0 {
			rows[i].SoldCorrected = d.soldCorrected
		}
	}
	return rows
}

func TestSimulate_DeficitRunSynthesis(t *testing.T) {
	rows := buildSeries([]simDay{
		{stock: 9, sold: 1},
		{stock: 8, sold: 1, ordered: 3},
		{stock: 3, sold: 5},
		{soldCorrected: 2},
		{soldCorrected: 3},
		{soldCorrected: 1},
		{soldCorrected: 0},
		{soldCorrected: 4},
		{stock: 6, sold: 2, received: 8},
	})

	stats := Simulate(rows, 2, 14)

	assert.Equal(t, 1, stats.DeficitRuns)
	assert.Equal(t, 10, stats.SimulatedOrders)

	// The run starts at index 3, so the order lands two days earlier on top of
	// the recorded order.
	assert.Equal(t, 13, rows[1].OrderedSimulated)
	assert.Equal(t, 0, rows[0].OrderedSimulated)
	assert.Equal(t, 0, rows[2].OrderedSimulated)

	received := 0
	for _, row := range rows[3:8] {
		received += row.ReceivedCorrected
	}
	assert.Equal(t, 10, received)

	// Days outside the run keep their receipts.
	assert.Equal(t, 8, rows[8].ReceivedCorrected)
	assert.Equal(t, 0, rows[2].ReceivedCorrected)
}

func TestSimulate_OrderClampedToSeriesStart(t *testing.T) {
	rows := buildSeries([]simDay{
		{stock: 2, sold: 1},
		{soldCorrected: 4},
		{stock: 1, sold: 1},
	})

	Simulate(rows, 3, 14)

	assert.Equal(t, 4, rows[0].OrderedSimulated)
	assert.Equal(t, 4, rows[1].ReceivedCorrected)
}

func TestSimulate_RunsCappedAtMaxDeficitPeriod(t *testing.T) {
	days := []simDay{{stock: 5, sold: 1}}
	for i := 0; i < 20; i++ {
		days = append(days, simDay{soldCorrected: 1})
	}
	days = append(days, simDay{stock: 1, sold: 1})
	rows := buildSeries(days)

	stats := Simulate(rows, 0, 14)

	require.Equal(t, 2, stats.DeficitRuns)
	assert.Equal(t, 14, rows[1].OrderedSimulated)
	assert.Equal(t, 6, rows[15].OrderedSimulated)
}

func TestSimulate_PostHorizonTruncation(t *testing.T) {
	rows := buildSeries([]simDay{
		{stock: 50, sold: 1},
		{stock: 49, sold: 1},
		{soldCorrected: 1},
		{soldCorrected: 1},
		{soldCorrected: 1},
	})

	Simulate(rows, 0, 14)

	// The running balance would stay far above zero, but nothing after day 1
	// was observed.
	assert.Equal(t, 49, rows[0].StockCorrected)
	assert.Equal(t, 48, rows[1].StockCorrected)
	for _, row := range rows[2:] {
		assert.Equal(t, 0, row.StockCorrected, row.Date)
	}
}

func TestSimulate_NonNegativeStock(t *testing.T) {
	rows := buildSeries([]simDay{
		{stock: 1, sold: 9},
		{soldCorrected: 7},
		{stock: 2, sold: 6},
		{soldCorrected: 12},
		{soldCorrected: 3},
		{stock: 1, sold: 20, received: 2},
	})

	Simulate(rows, 1, 14)

	for _, row := range rows {
		assert.GreaterOrEqual(t, row.StockCorrected, 0, row.Date)
	}
}

func TestSimulate_CleanDataIsIdempotent(t *testing.T) {
	rows := buildSeries([]simDay{
		{stock: 10, sold: 2},
		{stock: 8, sold: 0, ordered: 5},
		{stock: 0, sold: 8},
		{stock: 5, sold: 0, received: 5},
		{stock: 0, sold: 0, received: 3},
	})

	stats := Simulate(rows, 2, 14)

	assert.Zero(t, stats.DeficitRuns)
	for _, row := range rows {
		assert.Equal(t, row.Sold, row.SoldCorrected)
		assert.Equal(t, row.Received, row.ReceivedCorrected)
		assert.Equal(t, row.Stock, row.StockCorrected)
		assert.Equal(t, row.Ordered, row.OrderedSimulated)
	}
}

func TestSimulate_Empty(t *testing.T) {
	assert.Equal(t, SimulationStats{}, Simulate(nil, 2, 14))
}
