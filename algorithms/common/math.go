package common

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions shared by calibration, scoring and the latency harness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Percentile calculates the p-th percentile (p between 0 and 1) with
// gonum's empirical quantile. data is not modified.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 || p < 0 || p > 1 {
		return 0.0
	}

	sorted := slices.Clone(data)
	slices.Sort(sorted)

	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// MinMax returns the smallest and largest values of data
func MinMax(data []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	return floats.Min(data), floats.Max(data)
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sumSquares := 0.0
	for _, val := range data {
		sumSquares += val * val
	}

	return math.Sqrt(sumSquares / float64(len(data)))
}

// RMS32 is RMS for raw float32 device samples
func RMS32(data []float32) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sumSquares := 0.0
	for _, val := range data {
		v := float64(val)
		sumSquares += v * v
	}

	return math.Sqrt(sumSquares / float64(len(data)))
}

// DBFS converts a linear amplitude to decibels relative to full scale,
// flooring silence at floorDB
func DBFS(amplitude, floorDB float64) float64 {
	if amplitude <= 0 {
		return floorDB
	}
	return max(20.0*math.Log10(amplitude), floorDB)
}

// FromDBFS converts decibels relative to full scale back to a linear amplitude
func FromDBFS(db float64) float64 {
	return math.Pow(10, db/20.0)
}

// Clamp constrains value to the range [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ParabolicInterpolation refines the position of the extremum at index i
// using its two neighbours
func ParabolicInterpolation(data []float64, i int) float64 {
	if i <= 0 || i >= len(data)-1 {
		return float64(i)
	}

	s0, s1, s2 := data[i-1], data[i], data[i+1]
	denom := 2*s1 - s2 - s0
	if math.Abs(denom) < 1e-12 {
		return float64(i)
	}

	return float64(i) + (s2-s0)/(2*denom)
}

// IsPowerOfTwo checks if n is a power of 2
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// NextPowerOfTwo returns the next power of 2 greater than or equal to n
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
