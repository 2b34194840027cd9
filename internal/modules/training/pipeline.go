package training

import (
	"fmt"
	"time"
)

// Metadata describes a fitted pipeline
type Metadata struct {
	ModelType         ModelKind   `msgpack:"model_type" json:"model_type"`
	TrainedAt         time.Time   `msgpack:"trained_at" json:"trained_at"`
	FeatureNames      []string    `msgpack:"feature_names" json:"feature_names"`
	PredictedClass    *int        `msgpack:"predicted_class,omitempty" json:"predicted_class,omitempty"`
	ClassDistribution map[int]int `msgpack:"class_distribution" json:"class_distribution"`
	TrainRows         int         `msgpack:"train_rows" json:"train_rows"`
	TestRows          int         `msgpack:"test_rows" json:"test_rows"`
	Note              string      `msgpack:"note,omitempty" json:"note,omitempty"`
}

// Pipeline is imputer, optional scaler and classifier, applied in that order.
// The baseline pipeline has no scaler.
type Pipeline struct {
	FeatureNames []string        `msgpack:"feature_names" json:"feature_names"`
	Imputer      Imputer         `msgpack:"imputer" json:"imputer"`
	Scaler       *StandardScaler `msgpack:"scaler,omitempty" json:"scaler,omitempty"`
	Model        Model           `msgpack:"model" json:"model"`
}

// Transform applies the fitted preprocessing to a raw feature vector
func (p *Pipeline) Transform(x []float64) []float64 {
	out := p.Imputer.Transform(x)
	if p.Scaler != nil {
		out = p.Scaler.Transform(out)
	}
	return out
}

// Classes lists the model classes in PredictProba order
func (p *Pipeline) Classes() []int {
	return p.Model.Classes()
}

// PredictProba returns class probabilities for a raw feature vector
func (p *Pipeline) PredictProba(x []float64) []float64 {
	return p.Model.PredictProba(p.Transform(x))
}

// PositiveProba returns the probability of class 1.
// A baseline that never saw class 1 returns 0.
func (p *Pipeline) PositiveProba(x []float64) float64 {
	probs := p.PredictProba(x)
	for i, c := range p.Classes() {
		if c == 1 {
			return probs[i]
		}
	}
	return 0
}

// Validate checks the pipeline is internally consistent, e.g. after decoding
func (p *Pipeline) Validate() error {
	width := len(p.FeatureNames)
	if len(p.Imputer.Medians) != width {
		return fmt.Errorf("imputer has %d columns, expected %d", len(p.Imputer.Medians), width)
	}
	if p.Scaler != nil && (len(p.Scaler.Mean) != width || len(p.Scaler.Scale) != width) {
		return fmt.Errorf("scaler width mismatch, expected %d", width)
	}
	switch p.Model.Kind {
	case ModelBaseline:
		if p.Model.Baseline == nil {
			return fmt.Errorf("baseline model without predicted class")
		}
	case ModelLogistic:
		if p.Model.Linear == nil || len(p.Model.Linear.Coefficients) != width {
			return fmt.Errorf("linear model coefficients do not match %d features", width)
		}
	default:
		return fmt.Errorf("unknown model kind %q", p.Model.Kind)
	}
	return nil
}
