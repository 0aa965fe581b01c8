package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Median calculates the median of a slice of float64 values
func Median(data []float64) float64 {
	return Quantile(data, 0.5)
}

// Quantile calculates the p-quantile (0 <= p <= 1) of a slice of float64 values.
// The input is copied so callers keep their ordering.
func Quantile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// MAE calculates the mean absolute error over absolute errors
func MAE(absErrors []float64) float64 {
	return Mean(absErrors)
}

// RMSE calculates the root mean squared error over absolute errors
func RMSE(absErrors []float64) float64 {
	if len(absErrors) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, e := range absErrors {
		sumSq += e * e
	}
	return math.Sqrt(sumSq / float64(len(absErrors)))
}

// LinearSlope fits y = a + b*x over x = 0..len(y)-1 and returns b.
// Used for trend analysis over metric series.
func LinearSlope(y []float64) float64 {
	if len(y) < 2 {
		return 0
	}
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	_, slope := stat.LinearRegression(x, y, nil, false)
	return slope
}

// KolmogorovSmirnov computes the two-sample Kolmogorov-Smirnov statistic
// and its asymptotic p-value.
func KolmogorovSmirnov(a, b []float64) (statistic, pValue float64) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 1
	}

	as := make([]float64, len(a))
	copy(as, a)
	sort.Float64s(as)
	bs := make([]float64, len(b))
	copy(bs, b)
	sort.Float64s(bs)

	statistic = stat.KolmogorovSmirnov(as, nil, bs, nil)

	// Asymptotic p-value via the Kolmogorov distribution with the
	// Stephens small-sample correction.
	n := float64(len(as))
	m := float64(len(bs))
	ne := n * m / (n + m)
	lambda := (math.Sqrt(ne) + 0.12 + 0.11/math.Sqrt(ne)) * statistic
	pValue = kolmogorovQ(lambda)
	return statistic, pValue
}

// kolmogorovQ evaluates Q(lambda) = 2 * sum_{k>=1} (-1)^(k-1) exp(-2 k^2 lambda^2)
func kolmogorovQ(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	sum := 0.0
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := math.Exp(-2 * float64(k*k) * lambda * lambda)
		sum += sign * term
		sign = -sign
		if term < 1e-10 {
			break
		}
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
