package recovery

import (
	"math"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Classify reports whether a sales series is Poisson-like.
//
// A series dominated by zero-sale days (share >= zeroThreshold) is treated as a
// Poisson process with a rate close to zero. Otherwise the population mean and
// variance must agree within tolerance: |mean-var|/mean <= tolerance.
func Classify(sales []int, tolerance, zeroThreshold float64) bool {
	if len(sales) == 0 {
		return false
	}

	values := make([]float64, len(sales))
	zeros := 0
	for i, s := range sales {
		values[i] = float64(s)
		if s == 0 {
			zeros++
		}
	}

	if float64(zeros)/float64(len(sales)) >= zeroThreshold {
		return true
	}

	mean, variance := stat.PopMeanVariance(values, nil)
	if mean == 0 {
		return true
	}

	return math.Abs(mean-variance)/mean <= tolerance
}

// Classifier labels pairs with fixed thresholds.
type Classifier struct {
	Tolerance     float64
	ZeroThreshold float64
}

// NewClassifier builds a Classifier from the engine config.
func NewClassifier(cfg Config) Classifier {
	return Classifier{Tolerance: cfg.Tolerance, ZeroThreshold: cfg.ZeroThreshold}
}

// Label classifies the raw sales of one pair's full history.
func (c Classifier) Label(rows []domain.CorrectedObservation) bool {
	sales := make([]int, len(rows))
	for i := range rows {
		sales[i] = rows[i].Sold
	}
	return Classify(sales, c.Tolerance, c.ZeroThreshold)
}
