package recovery

import (
	"slices"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
)

// LagRow is the slice of a daily row the lag estimator needs.
type LagRow struct {
	Date     time.Time
	Ordered  int
	Received int
}

// openOrder is an order waiting to be fulfilled.
type openOrder struct {
	date      time.Time
	remaining int
}

// orderQueue is a FIFO of open orders backed by a growable ring buffer.
type orderQueue struct {
	buf   []openOrder
	head  int
	count int
}

func (q *orderQueue) len() int { return q.count }

func (q *orderQueue) push(o openOrder) {
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = o
	q.count++
}

func (q *orderQueue) front() *openOrder {
	return &q.buf[q.head]
}

func (q *orderQueue) pop() {
	q.buf[q.head] = openOrder{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
}

func (q *orderQueue) grow() {
	size := len(q.buf) * 2
	if size == 0 {
		size = 8
	}
	next := make([]openOrder, size)
	for i := 0; i < q.count; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}

// LagSamples matches receipts to orders first-in first-out and returns one lag
// sample (in days) per matching step. A receipt that settles several orders, or
// an order settled by several receipts, yields several samples regardless of
// the quantity each step moves. Receipt quantity left after the queue empties
// is discarded. Rows must be sorted by date.
func LagSamples(rows []LagRow) []float64 {
	var (
		queue   orderQueue
		samples []float64
	)

	for _, row := range rows {
		if row.Ordered > 0 {
			queue.push(openOrder{date: row.Date, remaining: row.Ordered})
		}

		remaining := row.Received
		for remaining > 0 && queue.len() > 0 {
			order := queue.front()
			used := min(order.remaining, remaining)
			samples = append(samples, row.Date.Sub(order.date).Hours()/24)
			order.remaining -= used
			remaining -= used
			if order.remaining == 0 {
				queue.pop()
			}
		}
	}

	return samples
}

// EstimateLag returns the median lag of a pair. ok is false when no receipt
// could be matched to an order.
func EstimateLag(rows []LagRow) (median float64, ok bool) {
	samples := LagSamples(rows)
	if len(samples) == 0 {
		return 0, false
	}
	return medianOf(samples), true
}

// LagProfileFor estimates the lag profile of one pair, falling back to
// defaultLag when nothing matched.
func LagProfileFor(key domain.PairKey, rows []domain.CorrectedObservation, defaultLag float64) domain.LagProfile {
	lagRows := make([]LagRow, len(rows))
	for i := range rows {
		lagRows[i] = LagRow{Date: rows[i].Date, Ordered: rows[i].Ordered, Received: rows[i].Received}
	}

	median, ok := EstimateLag(lagRows)
	if !ok {
		return domain.LagProfile{PairKey: key, MedianLagDays: defaultLag}
	}
	return domain.LagProfile{PairKey: key, MedianLagDays: median, Matched: true}
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	temp := make([]float64, len(values))
	copy(temp, values)
	slices.Sort(temp)

	n := len(temp)
	if n%2 == 1 {
		return temp[n/2]
	}
	return (temp[n/2-1] + temp[n/2]) / 2.0
}
