package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// pairs repeats (10-d, 10+d) count times; each pair has mean 10 and
// population variance d*d.
func pairs(d, count int) []int {
	out := make([]int, 0, 2*count)
	for i := 0; i < count; i++ {
		out = append(out, 10-d, 10+d)
	}
	return out
}

func TestClassify(t *testing.T) {
	// 11 pairs with variance 9 and 3 pairs with variance 16: (99+48)/14 = 10.5
	closeToPoisson := append(pairs(3, 11), pairs(4, 3)...)
	// 11 pairs with variance 4 and 10 pairs with variance 25: (44+250)/21 = 14
	overdispersed := append(pairs(2, 11), pairs(5, 10)...)

	tests := []struct {
		name      string
		sales     []int
		tolerance float64
		want      bool
	}{
		{"empty series", nil, 0.20, false},
		{"96 percent zeros regardless of variance", append(make([]int, 96), 1, 50, 100, 200), 0.20, true},
		{"all zeros", make([]int, 30), 0.20, true},
		{"mean 10 variance 10.5", closeToPoisson, 0.20, true},
		{"mean 10 variance 14", overdispersed, 0.20, false},
		{"ratio equal to tolerance", overdispersed, 0.40, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.sales, tt.tolerance, 0.95))
		})
	}
}

func TestClassify_BelowZeroThresholdUsesDispersion(t *testing.T) {
	// 94 zeros: the zero rule does not apply, and the series is overdispersed.
	sales := append(make([]int, 94), 30, 40, 50, 60, 70, 80)
	assert.False(t, Classify(sales, 0.20, 0.95))
}
