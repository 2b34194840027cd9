// Package training fits the stress classifier on engineered weekly features.
package training

import (
	"github.com/finz/cashflow-risk/pkg/formulas"
)

// ModelKind tags the fitted classifier variant
type ModelKind string

const (
	// ModelLogistic is a class-balanced L2 logistic regression
	ModelLogistic ModelKind = "logistic_regression"
	// ModelBaseline always predicts the single class seen in training
	ModelBaseline ModelKind = "dummy_constant"
)

// Baseline is the constant classifier fitted on single-class training data
type Baseline struct {
	PredictedClass int `msgpack:"predicted_class" json:"predicted_class"`
}

// Linear holds logistic regression parameters over standardized features.
// Coefficients are aligned with the pipeline's feature names.
type Linear struct {
	Coefficients []float64 `msgpack:"coefficients" json:"coefficients"`
	Intercept    float64   `msgpack:"intercept" json:"intercept"`
}

// Model is a tagged variant: exactly one of Baseline or Linear is set, matching Kind
type Model struct {
	Kind     ModelKind `msgpack:"kind" json:"kind"`
	Baseline *Baseline `msgpack:"baseline,omitempty" json:"baseline,omitempty"`
	Linear   *Linear   `msgpack:"linear,omitempty" json:"linear,omitempty"`
}

// NewBaselineModel returns a constant classifier for class
func NewBaselineModel(class int) Model {
	return Model{Kind: ModelBaseline, Baseline: &Baseline{PredictedClass: class}}
}

// NewLinearModel wraps fitted logistic parameters
func NewLinearModel(coefficients []float64, intercept float64) Model {
	return Model{Kind: ModelLogistic, Linear: &Linear{Coefficients: coefficients, Intercept: intercept}}
}

// Classes lists the classes the model can output, in PredictProba column order
func (m Model) Classes() []int {
	if m.Kind == ModelBaseline && m.Baseline != nil {
		return []int{m.Baseline.PredictedClass}
	}
	return []int{0, 1}
}

// PredictProba returns one probability per entry of Classes for a preprocessed row
func (m Model) PredictProba(x []float64) []float64 {
	if m.Kind == ModelBaseline || m.Linear == nil {
		return []float64{1}
	}
	z := m.Linear.Intercept
	for i, c := range m.Linear.Coefficients {
		z += c * x[i]
	}
	p := formulas.Sigmoid(z)
	return []float64{1 - p, p}
}

// Weights maps feature name to coefficient; nil for a baseline
func (m Model) Weights(featureNames []string) map[string]float64 {
	if m.Kind != ModelLogistic || m.Linear == nil {
		return nil
	}
	out := make(map[string]float64, len(featureNames))
	for i, name := range featureNames {
		if i < len(m.Linear.Coefficients) {
			out[name] = m.Linear.Coefficients[i]
		}
	}
	return out
}
