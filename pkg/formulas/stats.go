// Package formulas holds the numeric helpers shared by feature engineering and model fitting.
package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Sum returns the sum of data (0 for an empty slice)
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Sum(data)
}

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// SampleStdDev is the unbiased (n-1) standard deviation.
// Fewer than two observations give NaN rather than zero.
func SampleStdDev(data []float64) float64 {
	if len(data) < 2 {
		return math.NaN()
	}
	return stat.StdDev(data, nil)
}

// PopulationStdDev is the biased (n) standard deviation used for feature scaling
func PopulationStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	_, variance := stat.PopMeanVariance(data, nil)
	return math.Sqrt(variance)
}

// FractionWhere returns the share of values satisfying pred (0 for an empty slice)
func FractionWhere(data []float64, pred func(float64) bool) float64 {
	if len(data) == 0 {
		return 0
	}
	n := 0
	for _, v := range data {
		if pred(v) {
			n++
		}
	}
	return float64(n) / float64(len(data))
}

// NaNMedian is the median of the non-NaN values, NaN when none remain.
// Even-length inputs average the two middle values.
func NaNMedian(data []float64) float64 {
	clean := DropNaN(data)
	if len(clean) == 0 {
		return math.NaN()
	}
	sort.Float64s(clean)
	mid := len(clean) / 2
	if len(clean)%2 == 1 {
		return clean[mid]
	}
	return (clean[mid-1] + clean[mid]) / 2
}

// DropNaN returns a copy of data without NaN values
func DropNaN(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Sigmoid is the numerically stable logistic function
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

// LogOnePlusExp computes log(1 + e^z) without overflow
func LogOnePlusExp(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
