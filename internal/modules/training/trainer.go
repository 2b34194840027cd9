package training

import (
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/modules/features"
	"github.com/rs/zerolog"
)

// Config controls the time split and the logistic fit
type Config struct {
	SplitDate time.Time
	MaxIter   int
	C         float64
}

// DefaultConfig splits at 2023-06-01 and caps the fit at 1000 iterations
func DefaultConfig() Config {
	return Config{
		SplitDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		MaxIter:   1000,
		C:         1.0,
	}
}

// Result is a fitted pipeline plus the held-out split it was not trained on
type Result struct {
	Pipeline *Pipeline
	Metadata Metadata
	XTest    [][]float64
	YTest    []int
}

// Trainer fits pipelines on feature rows
type Trainer struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

// NewTrainer creates a trainer
func NewTrainer(cfg Config, log zerolog.Logger) *Trainer {
	return &Trainer{
		cfg: cfg,
		log: log.With().Str("component", "trainer").Logger(),
		now: time.Now,
	}
}

// Train splits rows by week_start at the configured date, fits preprocessing on
// the training split only and fits either a logistic regression or, when the
// training split holds a single class, a constant baseline.
func (t *Trainer) Train(rows []domain.FeatureRow) (*Result, error) {
	x, y, err := features.Matrix(rows)
	if err != nil {
		return nil, err
	}

	var xTrain, xTest [][]float64
	var yTrain, yTest []int
	for i, row := range rows {
		if row.WeekStart.Before(t.cfg.SplitDate) {
			xTrain = append(xTrain, x[i])
			yTrain = append(yTrain, y[i])
		} else {
			xTest = append(xTest, x[i])
			yTest = append(yTest, y[i])
		}
	}

	if len(xTrain) == 0 {
		return nil, &domain.ConfigurationError{
			Option: "SPLIT_DATE",
			Reason: "no feature rows fall before " + t.cfg.SplitDate.Format("2006-01-02"),
		}
	}

	names := features.FeatureNames()
	distribution := classDistribution(yTrain)
	meta := Metadata{
		TrainedAt:         t.now().UTC(),
		FeatureNames:      names,
		ClassDistribution: distribution,
		TrainRows:         len(xTrain),
		TestRows:          len(xTest),
	}

	imputer := FitImputer(xTrain, len(names))
	pipeline := &Pipeline{FeatureNames: names, Imputer: imputer}

	if len(distribution) == 1 {
		class := yTrain[0]
		pipeline.Model = NewBaselineModel(class)
		meta.ModelType = ModelBaseline
		meta.PredictedClass = &class
		meta.Note = domain.NoteSingleClassTraining

		t.log.Warn().
			Int("predicted_class", class).
			Int("train_rows", len(xTrain)).
			Msg("Single-class training split, fitting constant baseline")
	} else {
		imputed := make([][]float64, len(xTrain))
		for i, row := range xTrain {
			imputed[i] = imputer.Transform(row)
		}
		scaler := FitScaler(imputed, len(names))
		for _, row := range imputed {
			scaler.Transform(row)
		}

		model, err := FitLogistic(imputed, yTrain, BalancedWeights(yTrain), LogisticConfig{C: t.cfg.C, MaxIter: t.cfg.MaxIter}, t.log)
		if err != nil {
			return nil, err
		}
		pipeline.Scaler = scaler
		pipeline.Model = model
		meta.ModelType = ModelLogistic

		t.log.Info().
			Int("train_rows", len(xTrain)).
			Int("test_rows", len(xTest)).
			Interface("class_distribution", distribution).
			Msg("Fitted logistic regression")
	}

	return &Result{Pipeline: pipeline, Metadata: meta, XTest: xTest, YTest: yTest}, nil
}

func classDistribution(y []int) map[int]int {
	out := make(map[int]int)
	for _, v := range y {
		out[v]++
	}
	return out
}
