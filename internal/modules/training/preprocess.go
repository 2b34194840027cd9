package training

import (
	"math"

	"github.com/finz/cashflow-risk/pkg/formulas"
)

// Imputer replaces NaN with the per-column median learned on the training split.
// A column with no observed value at all is imputed with 0.
type Imputer struct {
	Medians []float64 `msgpack:"medians" json:"medians"`
}

// FitImputer learns column medians from x
func FitImputer(x [][]float64, width int) Imputer {
	medians := make([]float64, width)
	col := make([]float64, len(x))
	for j := 0; j < width; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		m := formulas.NaNMedian(col)
		if math.IsNaN(m) {
			m = 0
		}
		medians[j] = m
	}
	return Imputer{Medians: medians}
}

// Transform returns a copy of row with missing values imputed
func (im Imputer) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if math.IsNaN(v) && j < len(im.Medians) {
			v = im.Medians[j]
		}
		out[j] = v
	}
	return out
}

// StandardScaler centres columns on the training mean and divides by the
// population standard deviation. Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `msgpack:"mean" json:"mean"`
	Scale []float64 `msgpack:"scale" json:"scale"`
}

// FitScaler learns column statistics from already imputed rows
func FitScaler(x [][]float64, width int) *StandardScaler {
	s := &StandardScaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	col := make([]float64, len(x))
	for j := 0; j < width; j++ {
		for i, row := range x {
			col[i] = row[j]
		}
		s.Mean[j] = formulas.Mean(col)
		std := formulas.PopulationStdDev(col)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Scale[j] = std
	}
	return s
}

// Transform standardizes row in place and returns it
func (s *StandardScaler) Transform(row []float64) []float64 {
	for j := range row {
		row[j] = (row[j] - s.Mean[j]) / s.Scale[j]
	}
	return row
}
