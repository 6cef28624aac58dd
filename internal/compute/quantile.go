package compute

import (
	"math"
	"sort"
)

// DefaultFenceMultiplier is the IQR multiplier of the classic Tukey fence.
const DefaultFenceMultiplier = 1.5

// Fence is an upper Tukey fence computed over one series.
type Fence struct {
	Q1    float64
	Q3    float64
	IQR   float64
	Value float64
}

// Quantile returns the p-quantile (0 <= p <= 1) of values using linear
// interpolation between the closest order statistics. values need not be
// sorted and is not modified. Returns NaN for an empty slice.
func Quantile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return quantileSorted(sorted, p)
}

func quantileSorted(sorted []float64, p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	h := float64(len(sorted)-1) * p
	lo := int(math.Floor(h))
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// TukeyFence computes Q3 + k*(Q3-Q1) over series. A k <= 0 uses
// DefaultFenceMultiplier. The caller guarantees series is non-empty.
func TukeyFence(series []float64, k float64) Fence {
	if k <= 0 {
		k = DefaultFenceMultiplier
	}
	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)

	q1 := quantileSorted(sorted, 0.25)
	q3 := quantileSorted(sorted, 0.75)
	iqr := q3 - q1
	return Fence{Q1: q1, Q3: q3, IQR: iqr, Value: q3 + k*iqr}
}
