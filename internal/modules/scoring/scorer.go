// Package scoring turns the latest feature row of a business into a risk tier and drivers.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/modules/artifacts"
	"github.com/finz/cashflow-risk/internal/modules/features"
	"github.com/finz/cashflow-risk/internal/modules/training"
	"github.com/finz/cashflow-risk/pkg/formulas"
	"github.com/rs/zerolog"
)

// Tier thresholds on the positive-class probability
const (
	WatchThreshold = 0.3
	HighThreshold  = 0.6
)

// DefaultTopK is the number of drivers reported when none is configured
const DefaultTopK = 5

// TierFor maps a probability to its risk tier
func TierFor(p float64) domain.RiskTier {
	switch {
	case p < WatchThreshold:
		return domain.RiskTierLow
	case p < HighThreshold:
		return domain.RiskTierWatch
	default:
		return domain.RiskTierHigh
	}
}

// Result is the score of one business against one artifact
type Result struct {
	BusinessID   string              `json:"business_id"`
	WeekStart    time.Time           `json:"week_start"`
	Probability  float64             `json:"risk_probability"`
	Tier         domain.RiskTier     `json:"risk_tier"`
	Drivers      domain.DriverReport `json:"drivers"`
	ModelVersion string              `json:"model_version"`
}

// Scorer runs fitted pipelines on feature rows
type Scorer struct {
	topK int
	log  zerolog.Logger
}

// NewScorer creates a scorer reporting topK drivers
func NewScorer(topK int, log zerolog.Logger) *Scorer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Scorer{
		topK: topK,
		log:  log.With().Str("component", "scorer").Logger(),
	}
}

// Score evaluates the most recent feature row of businessID.
// rows may contain other businesses; they are ignored.
func (s *Scorer) Score(businessID string, artifact *artifacts.ModelArtifact, rows []domain.FeatureRow) (*Result, error) {
	latest, ok := LatestRow(businessID, rows)
	if !ok {
		return nil, &domain.DataNotFoundError{BusinessID: businessID, What: "feature rows"}
	}

	p := artifact.Pipeline.PositiveProba(features.Vector(latest))
	if math.IsNaN(p) {
		p = 0
	}

	result := &Result{
		BusinessID:   businessID,
		WeekStart:    latest.WeekStart,
		Probability:  p,
		Tier:         TierFor(p),
		Drivers:      Explain(artifact.Pipeline, s.topK),
		ModelVersion: artifact.Version,
	}

	s.log.Debug().
		Str("business_id", businessID).
		Str("week_start", latest.WeekStart.Format("2006-01-02")).
		Float64("probability", p).
		Str("tier", string(result.Tier)).
		Msg("Scored business")
	return result, nil
}

// LatestRow returns the feature row of businessID with the greatest week_start
func LatestRow(businessID string, rows []domain.FeatureRow) (domain.FeatureRow, bool) {
	var latest domain.FeatureRow
	found := false
	for _, row := range rows {
		if row.BusinessID != businessID {
			continue
		}
		if !found || row.WeekStart.After(latest.WeekStart) {
			latest = row
			found = true
		}
	}
	return latest, found
}

// Explain ranks the model's features by absolute coefficient.
// A baseline has no weights and yields an empty list tagged baseline.
func Explain(pipeline *training.Pipeline, topK int) domain.DriverReport {
	weights := pipeline.Model.Weights(pipeline.FeatureNames)
	if weights == nil {
		return domain.DriverReport{Type: domain.DriverReportBaseline, Drivers: []domain.Driver{}}
	}

	drivers := make([]domain.Driver, 0, len(pipeline.FeatureNames))
	for _, name := range pipeline.FeatureNames {
		drivers = append(drivers, domain.Driver{Feature: name, Weight: weights[name]})
	}
	// Ties keep feature order
	sort.SliceStable(drivers, func(i, j int) bool {
		return math.Abs(drivers[i].Weight) > math.Abs(drivers[j].Weight)
	})

	if topK > 0 && len(drivers) > topK {
		drivers = drivers[:topK]
	}
	for i := range drivers {
		drivers[i].Weight = formulas.Round(drivers[i].Weight, 4)
	}
	return domain.DriverReport{Type: domain.DriverReportLogistic, Drivers: drivers}
}
