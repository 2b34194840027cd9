package training

import (
	"fmt"
	"math"

	"github.com/finz/cashflow-risk/pkg/formulas"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"
)

// LogisticConfig controls the logistic regression fit
type LogisticConfig struct {
	C       float64 // inverse L2 regularization strength
	MaxIter int
}

// BalancedWeights returns per-sample weights n / (2 * count(class)).
// Both classes must be present.
func BalancedWeights(y []int) []float64 {
	counts := map[int]int{}
	for _, v := range y {
		counts[v]++
	}
	n := float64(len(y))
	k := float64(len(counts))
	w := make([]float64, len(y))
	for i, v := range y {
		w[i] = n / (k * float64(counts[v]))
	}
	return w
}

// FitLogistic minimises 0.5*||w||^2 + C * sum_i s_i * logloss_i over the
// coefficients w and an unpenalised intercept. x must already be imputed and scaled.
func FitLogistic(x [][]float64, y []int, sampleWeights []float64, cfg LogisticConfig, log zerolog.Logger) (Model, error) {
	if len(x) == 0 {
		return Model{}, fmt.Errorf("no training rows")
	}
	d := len(x[0])

	// theta = [w_0 .. w_{d-1}, b]
	loss := func(theta []float64) float64 {
		w, b := theta[:d], theta[d]
		total := 0.0
		for _, wj := range w {
			total += 0.5 * wj * wj
		}
		for i, row := range x {
			z := b
			for j, v := range row {
				z += w[j] * v
			}
			// log(1+e^z) - y*z
			total += cfg.C * sampleWeights[i] * (formulas.LogOnePlusExp(z) - float64(y[i])*z)
		}
		return total
	}

	grad := func(g, theta []float64) {
		w, b := theta[:d], theta[d]
		copy(g[:d], w)
		g[d] = 0
		for i, row := range x {
			z := b
			for j, v := range row {
				z += w[j] * v
			}
			r := cfg.C * sampleWeights[i] * (formulas.Sigmoid(z) - float64(y[i]))
			for j, v := range row {
				g[j] += r * v
			}
			g[d] += r
		}
	}

	problem := optimize.Problem{Func: loss, Grad: grad}
	initial := make([]float64, d+1)
	settings := &optimize.Settings{
		MajorIterations:   cfg.MaxIter,
		GradientThreshold: 1e-6,
	}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.LBFGS{})
	if result == nil {
		return Model{}, fmt.Errorf("logistic regression fit failed: %w", err)
	}
	if err != nil {
		log.Warn().Err(err).Str("status", result.Status.String()).Msg("Optimizer stopped early, using best location found")
	} else if result.Status == optimize.IterationLimit {
		log.Warn().Int("max_iter", cfg.MaxIter).Msg("Logistic regression hit iteration cap before converging")
	}

	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Model{}, fmt.Errorf("logistic regression diverged: status=%v", result.Status)
		}
	}

	coef := make([]float64, d)
	copy(coef, result.X[:d])
	return NewLinearModel(coef, result.X[d]), nil
}
