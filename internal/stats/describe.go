package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// z95 is the two-sided 95% normal quantile used for margins of error.
const z95 = 1.96

// Distribution summarises a sample of values.
//
// Variance and StdDev are sample statistics (n-1 denominator) and are 0 for
// fewer than two values. Every field is 0 for an empty sample, never NaN.
type Distribution struct {
	N        int     `json:"n"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"std_dev"`
	StdErr   float64 `json:"std_err"`
	Margin95 float64 `json:"margin_95"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	P25      float64 `json:"p25"`
	P75      float64 `json:"p75"`
}

// Describe computes the distribution of values. The input is not modified.
// Values are sorted before folding, so the result does not depend on their
// order.
func Describe(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	d := Distribution{
		N:      len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		Median: median(sorted),
		P25:    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		P75:    stat.Quantile(0.75, stat.Empirical, sorted, nil),
	}
	if d.N > 1 {
		d.Variance = stat.Variance(sorted, nil)
		d.StdDev = math.Sqrt(d.Variance)
		d.StdErr = d.StdDev / math.Sqrt(float64(d.N))
		d.Margin95 = z95 * d.StdErr
	}
	return d
}

// median averages the two middle values of an even-length sorted sample.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
