package recovery

import (
	"math"
	"strconv"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// categoricalColumns and numericalColumns form the imputer feature set.
var categoricalColumns = []func(o domain.DemandObservation) string{
	func(o domain.DemandObservation) string { return strconv.FormatBool(o.Promotion) },
	func(o domain.DemandObservation) string { return strconv.FormatBool(o.IsWeekend) },
	func(o domain.DemandObservation) string { return strconv.Itoa(o.DayOfWeek) },
	func(o domain.DemandObservation) string { return strconv.Itoa(o.Day) },
	func(o domain.DemandObservation) string { return strconv.Itoa(o.Month) },
	func(o domain.DemandObservation) string { return strconv.Itoa(o.Year) },
	func(o domain.DemandObservation) string { return strconv.FormatBool(o.PreciseSeason) },
}

var numericalColumns = []func(o domain.DemandObservation) float64{
	func(o domain.DemandObservation) float64 { return o.Price },
	func(o domain.DemandObservation) float64 { return float64(o.ReceiptCount) },
	func(o domain.DemandObservation) float64 { return o.Temperature },
	func(o domain.DemandObservation) float64 { return o.Pressure },
}

// FeatureEncoder one-hot encodes the categorical columns and standardizes the
// numerical ones. It is fitted on the training rows of a single pair only.
// Categories not seen during fitting encode as an all-zero block.
type FeatureEncoder struct {
	categories []map[string]int // per categorical column: value -> offset inside the block
	offsets    []int            // start of each categorical block
	means      []float64
	scales     []float64
	width      int
}

// FitEncoder learns categories and scaling from rows.
func FitEncoder(rows []domain.DemandObservation) *FeatureEncoder {
	enc := &FeatureEncoder{
		categories: make([]map[string]int, len(categoricalColumns)),
		offsets:    make([]int, len(categoricalColumns)),
		means:      make([]float64, len(numericalColumns)),
		scales:     make([]float64, len(numericalColumns)),
	}

	width := 0
	for c, column := range categoricalColumns {
		seen := make(map[string]int)
		for _, row := range rows {
			v := column(row)
			if _, ok := seen[v]; !ok {
				seen[v] = len(seen)
			}
		}
		enc.categories[c] = seen
		enc.offsets[c] = width
		width += len(seen)
	}

	values := make([]float64, len(rows))
	for c, column := range numericalColumns {
		for i, row := range rows {
			values[i] = column(row)
		}
		mean, variance := stat.PopMeanVariance(values, nil)
		scale := math.Sqrt(variance)
		if scale == 0 || math.IsNaN(scale) {
			scale = 1
		}
		enc.means[c] = mean
		enc.scales[c] = scale
	}

	enc.width = width + len(numericalColumns)
	return enc
}

// Width is the number of encoded features.
func (e *FeatureEncoder) Width() int {
	return e.width
}

// Encode writes the feature vector of row into dst, which must have Width() elements.
func (e *FeatureEncoder) Encode(row domain.DemandObservation, dst []float64) {
	for i := range dst {
		dst[i] = 0
	}
	for c, column := range categoricalColumns {
		if pos, ok := e.categories[c][column(row)]; ok {
			dst[e.offsets[c]+pos] = 1
		}
	}
	base := e.width - len(numericalColumns)
	for c, column := range numericalColumns {
		dst[base+c] = (column(row) - e.means[c]) / e.scales[c]
	}
}

// Matrix encodes rows into a dense row-major matrix.
func (e *FeatureEncoder) Matrix(rows []domain.DemandObservation) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, e.width)
		e.Encode(row, out[i])
	}
	return out
}
