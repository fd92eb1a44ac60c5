// Package stats provides the shared numeric routines used by the
// analytics engines. All functions are pure: no state, no side effects.
package stats

import (
	"math"
	"sort"
)

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance returns the population variance of values.
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - m
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values))
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// CoefficientOfVariation returns stddev/mean, or 0 when the mean is zero.
func CoefficientOfVariation(values []float64) float64 {
	m := Mean(values)
	if m == 0 {
		return 0
	}
	return StdDev(values) / m
}

// Percentile returns the p-th percentile of sorted values using linear
// interpolation between the two nearest ranks. values must be sorted
// ascending.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	fraction := index - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// Sorted returns an ascending copy of values.
func Sorted(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

// Regression is an ordinary least-squares fit of a series against its
// index 0..n-1.
type Regression struct {
	Slope     float64
	Intercept float64
	RSquared  float64
}

// LinearRegression fits y = slope*x + intercept with x = 0, 1, 2, ...
// and returns the fit plus its coefficient of determination.
func LinearRegression(values []float64) Regression {
	n := float64(len(values))
	if n < 2 {
		return Regression{}
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return Regression{}
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for i, y := range values {
		predicted := slope*float64(i) + intercept
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - meanY) * (y - meanY)
	}
	rSquared := 1.0
	if ssTot != 0 {
		rSquared = 1 - ssRes/ssTot
	}
	return Regression{Slope: slope, Intercept: intercept, RSquared: rSquared}
}

// ExponentialSmoothing applies standard recursive smoothing seeded with
// the first value: s[0] = y[0], s[i] = alpha*y[i] + (1-alpha)*s[i-1].
func ExponentialSmoothing(values []float64, alpha float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	smoothed := make([]float64, len(values))
	smoothed[0] = values[0]
	for i := 1; i < len(values); i++ {
		smoothed[i] = alpha*values[i] + (1-alpha)*smoothed[i-1]
	}
	return smoothed
}

// Autocorrelation returns the autocorrelation of values at the given lag.
func Autocorrelation(values []float64, lag int) float64 {
	if lag <= 0 || len(values) <= lag {
		return 0
	}
	m := Mean(values)
	var num, den float64
	for i := 0; i < len(values); i++ {
		den += (values[i] - m) * (values[i] - m)
	}
	if den == 0 {
		return 0
	}
	for i := lag; i < len(values); i++ {
		num += (values[i] - m) * (values[i-lag] - m)
	}
	return num / den
}

// DetectSeasonality tests for a repeating pattern of the given period via
// lag autocorrelation. The threshold varies per caller: the prediction
// engine gates at 0.8, trend and forecast at 0.3.
func DetectSeasonality(values []float64, period int, threshold float64) bool {
	return math.Abs(Autocorrelation(values, period)) > threshold
}

// DetectTrend tests whether the series has a directional trend: the OLS
// slope normalized by the mean must exceed the threshold in magnitude.
func DetectTrend(values []float64, threshold float64) bool {
	m := Mean(values)
	if m == 0 {
		return false
	}
	fit := LinearRegression(values)
	return math.Abs(fit.Slope/m) > threshold
}

// SeasonalComponent returns per-phase averages normalized to mean 1. The
// i-th output is the multiplicative factor for phase i mod period.
func SeasonalComponent(values []float64, period int) []float64 {
	if period <= 0 || len(values) == 0 {
		return nil
	}
	sums := make([]float64, period)
	counts := make([]int, period)
	for i, v := range values {
		phase := i % period
		sums[phase] += v
		counts[phase]++
	}
	factors := make([]float64, period)
	var total float64
	var phases int
	for i := 0; i < period; i++ {
		if counts[i] > 0 {
			factors[i] = sums[i] / float64(counts[i])
			total += factors[i]
			phases++
		}
	}
	if phases == 0 || total == 0 {
		for i := range factors {
			factors[i] = 1
		}
		return factors
	}
	overall := total / float64(phases)
	for i := range factors {
		if counts[i] == 0 || overall == 0 {
			factors[i] = 1
		} else {
			factors[i] = factors[i] / overall
		}
	}
	return factors
}

// TrendComponent returns a trailing moving average of the series with
// window min(window, n/4), but at least 1.
func TrendComponent(values []float64, window int) []float64 {
	if len(values) == 0 {
		return nil
	}
	w := window
	if quarter := len(values) / 4; quarter < w {
		w = quarter
	}
	if w < 1 {
		w = 1
	}
	out := make([]float64, len(values))
	for i := range values {
		start := i - w + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		for j := start; j <= i; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(i-start+1)
	}
	return out
}

// Clamp01 clamps v into [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Round2 rounds a monetary value to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
