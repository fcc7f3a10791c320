package recovery

import (
	"math"

	"github.com/andresuchdata/demand-recovery/internal/domain"
)

// SimulationStats summarizes what Simulate changed for one pair.
type SimulationStats struct {
	DeficitRuns     int
	SimulatedOrders int // quantity ordered on top of the recorded orders
}

// Simulate rebuilds receipts, stock and orders of one pair's date-sorted rows
// after imputation, in place.
//
// Every stockout run (stock and sales both zero, at most maxDeficitPeriod days)
// gets one simulated order for the run's corrected demand, placed round(lag)
// days before the run starts, and the same quantity spread over the run as
// receipts. The stock balance is then replayed from the first day's stock and
// forced to zero on any day after the last day with real activity.
//
// A pair without censored days is left exactly as recorded.
func Simulate(rows []domain.CorrectedObservation, medianLagDays float64, maxDeficitPeriod int) SimulationStats {
	var stats SimulationStats
	n := len(rows)
	if n == 0 {
		return stats
	}

	hasCensored := false
	for i := range rows {
		rows[i].ReceivedCorrected = rows[i].Received
		rows[i].StockCorrected = rows[i].Stock
		rows[i].OrderedSimulated = 0
		if rows[i].Censored() {
			hasCensored = true
		}
	}
	if !hasCensored {
		for i := range rows {
			rows[i].OrderedSimulated = rows[i].Ordered
		}
		return stats
	}

	// 1. Synthesize orders and receipts for stockout runs.
	lead := int(math.RoundToEven(medianLagDays))
	for i := 0; i < n; {
		if rows[i].Grounded() {
			i++
			continue
		}

		end := i
		limit := min(i+maxDeficitPeriod, n)
		for end < limit && !rows[end].Grounded() {
			end++
		}

		total := 0
		for d := i; d < end; d++ {
			total += rows[d].SoldCorrected
		}

		rows[max(0, i-lead)].OrderedSimulated += total
		perDay := int(math.RoundToEven(float64(total) / float64(end-i)))
		for d := i; d < end; d++ {
			rows[d].ReceivedCorrected += perDay
		}

		stats.DeficitRuns++
		stats.SimulatedOrders += total
		i = end
	}

	// 2. Replay the stock balance with the new receipts.
	balance := rows[0].Stock
	lastGrounded := -1
	for i := range rows {
		if rows[i].Grounded() {
			lastGrounded = i
		}

		balance += rows[i].ReceivedCorrected - rows[i].SoldCorrected
		if balance < 0 {
			balance = 0
		}
		if lastGrounded >= 0 && i > lastGrounded {
			balance = 0
		}
		rows[i].StockCorrected = balance
	}

	// 3. Simulated orders come on top of the recorded ones.
	for i := range rows {
		rows[i].OrderedSimulated += rows[i].Ordered
	}
	return stats
}
