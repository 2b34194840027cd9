package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/metrics"
	"github.com/finz/cashflow-risk/internal/modules/artifacts"
	"github.com/finz/cashflow-risk/internal/modules/explanation"
	"github.com/finz/cashflow-risk/internal/modules/features"
	"github.com/finz/cashflow-risk/internal/modules/training"
	testingpkg "github.com/finz/cashflow-risk/internal/testing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type riskFixture struct {
	service  *RiskService
	ledger   *testingpkg.MockTransactionStore
	store    *artifacts.SQLiteStore
	runs     *artifacts.RunRepository
	metrics  *metrics.Registry
	renderer *testingpkg.MockRenderer
}

func newRiskFixture(t *testing.T, txs ...[]domain.Transaction) *riskFixture {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "models")
	t.Cleanup(cleanup)

	log := zerolog.Nop()
	ledger := testingpkg.NewMockTransactionStore()
	for _, batch := range txs {
		_, err := ledger.InsertMany(context.Background(), batch)
		require.NoError(t, err)
	}

	f := &riskFixture{
		ledger:   ledger,
		store:    artifacts.NewSQLiteStore(db.Conn(), log),
		runs:     artifacts.NewRunRepository(db.Conn(), log),
		metrics:  metrics.NewRegistry(),
		renderer: &testingpkg.MockRenderer{Text: "rendered"},
	}
	f.service = NewRiskService(ledger, f.store, f.runs, f.renderer, f.metrics, DefaultRiskConfig(), log)
	return f
}

// constantArtifact publishes a model whose probability is sigmoid(intercept) for every row
func constantArtifact(t *testing.T, store artifacts.Store, version string, intercept float64) {
	t.Helper()
	names := features.FeatureNames()
	coef := make([]float64, len(names))
	coef[0] = 1e-9
	pipeline := &training.Pipeline{
		FeatureNames: names,
		Imputer:      training.Imputer{Medians: make([]float64, len(names))},
		Model:        training.NewLinearModel(coef, intercept),
	}
	_, err := store.Save(context.Background(), &artifacts.ModelArtifact{
		Version:  version,
		Metadata: training.Metadata{ModelType: training.ModelLogistic, FeatureNames: names},
		Pipeline: pipeline,
	})
	require.NoError(t, err)
}

func TestTrain_StableBusinessYieldsBaseline(t *testing.T) {
	f := newRiskFixture(t, testingpkg.StableBusinessFixture("B2"))
	ctx := context.Background()

	resp, err := f.service.Train(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, training.ModelBaseline, resp.ModelType)
	assert.Equal(t, domain.NoteSingleClassTraining, resp.Note)
	assert.Regexp(t, `^v\d{8}_\d{6}\.\d{6}_[0-9a-f]{6}$`, resp.ModelVersion)

	latest, err := f.service.LatestModel(ctx)
	require.NoError(t, err)
	assert.Equal(t, resp.ModelVersion, latest.Version)
	require.NotNil(t, latest.Metadata.PredictedClass)
	assert.Equal(t, 0, *latest.Metadata.PredictedClass)

	score, err := f.service.Score(ctx, "B2")
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.RiskProbability)
	assert.Equal(t, domain.RiskTierLow, score.RiskTier)
	assert.Equal(t, domain.DriverReportBaseline, score.Drivers.Type)
	assert.Empty(t, score.Drivers.Drivers)
	assert.Equal(t, resp.ModelVersion, score.ModelVersion)
	assert.Equal(t, "rendered", score.Explanation)

	require.Len(t, f.renderer.Reports, 1)
	assert.Equal(t, score.Drivers, f.renderer.Reports[0])
}

func TestTrain_MixedLedgerFitsLogistic(t *testing.T) {
	f := newRiskFixture(t,
		testingpkg.StressedBusinessFixture("B1"),
		testingpkg.StableBusinessFixture("B2"),
	)
	ctx := context.Background()

	resp, err := f.service.Train(ctx)
	require.NoError(t, err)
	assert.Equal(t, training.ModelLogistic, resp.ModelType)
	// All fixture weeks fall before the 2023-06-01 split
	assert.Equal(t, domain.NoteEmptyTestSet, resp.Note)
	assert.Nil(t, resp.Metrics.ROCAUC)

	score, err := f.service.Score(ctx, "B1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score.RiskProbability, 0.0)
	assert.LessOrEqual(t, score.RiskProbability, 1.0)
	assert.Equal(t, domain.DriverReportLogistic, score.Drivers.Type)
	assert.Len(t, score.Drivers.Drivers, 5)
	assert.Equal(t, "2023-03-06", score.WeekStart)

	runs, err := f.runs.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusSuccess, runs[0].Status)
	assert.Equal(t, resp.ModelVersion, runs[0].Version)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TrainingRuns.WithLabelValues(StatusSuccess, string(training.ModelLogistic))))
}

func TestTrain_SameInstantPublishesNewest(t *testing.T) {
	f := newRiskFixture(t, testingpkg.StableBusinessFixture("B2"))
	fixed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	f.service.now = func() time.Time { return fixed }
	ctx := context.Background()

	var last string
	for i := 0; i < 5; i++ {
		resp, err := f.service.Train(ctx)
		require.NoError(t, err)
		assert.Greater(t, resp.ModelVersion, last)
		last = resp.ModelVersion

		latest, err := f.service.LatestModel(ctx)
		require.NoError(t, err)
		assert.Equal(t, resp.ModelVersion, latest.Version)
	}
}

func TestTrain_VersionsAfterStoredModel(t *testing.T) {
	f := newRiskFixture(t, testingpkg.StableBusinessFixture("B2"))
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return fixed }
	// Published by another process with a clock ahead of ours
	constantArtifact(t, f.store, "v20250101_000000.000000_aaaaaa", 0)

	resp, err := f.service.Train(context.Background())
	require.NoError(t, err)
	assert.Greater(t, resp.ModelVersion, "v20250101_000000.000000_aaaaaa")

	latest, err := f.service.LatestModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp.ModelVersion, latest.Version)
}

func TestTrain_SplitDateBeforeAllData(t *testing.T) {
	f := newRiskFixture(t, testingpkg.StableBusinessFixture("B2"))
	cfg := DefaultRiskConfig()
	cfg.Training.SplitDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	f.service = NewRiskService(f.ledger, f.store, f.runs, f.renderer, f.metrics, cfg, zerolog.Nop())

	_, err := f.service.Train(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	runs, err := f.runs.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
}

func TestTrain_EmptyLedger(t *testing.T) {
	f := newRiskFixture(t)
	ctx := context.Background()

	_, err := f.service.Train(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	runs, err := f.runs.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)

	_, err = f.service.LatestModel(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScore_HighTier(t *testing.T) {
	f := newRiskFixture(t, testingpkg.StressedBusinessFixture("B1"))
	constantArtifact(t, f.store, "v20240101_000000.000000_aaaaaa", 2.0)

	score, err := f.service.Score(context.Background(), "B1")
	require.NoError(t, err)
	assert.InDelta(t, 0.8808, score.RiskProbability, 1e-4)
	assert.Equal(t, domain.RiskTierHigh, score.RiskTier)
	assert.Equal(t, "v20240101_000000.000000_aaaaaa", score.ModelVersion)
}

func TestScore_ProbabilityRoundedToFourDecimals(t *testing.T) {
	f := newRiskFixture(t, testingpkg.StableBusinessFixture("B2"))
	constantArtifact(t, f.store, "v20240101_000000.000000_aaaaaa", 0.123456)

	score, err := f.service.Score(context.Background(), "B2")
	require.NoError(t, err)
	assert.Equal(t, round4(score.RiskProbability), score.RiskProbability)
	assert.Equal(t, domain.RiskTierWatch, score.RiskTier)
}

func TestScore_Errors(t *testing.T) {
	f := newRiskFixture(t, testingpkg.StableBusinessFixture("B2"))
	ctx := context.Background()

	_, err := f.service.Score(ctx, "B2")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no model yet")

	constantArtifact(t, f.store, "v20240101_000000.000000_aaaaaa", 0)
	_, err = f.service.Score(ctx, "nobody")
	var notFound *domain.DataNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nobody", notFound.BusinessID)
}

func TestScore_RendererFailureFallsBackToTemplate(t *testing.T) {
	f := newRiskFixture(t, testingpkg.StableBusinessFixture("B2"))
	f.renderer.Err = errors.New("renderer down")
	constantArtifact(t, f.store, "v20240101_000000.000000_aaaaaa", 0)

	score, err := f.service.Score(context.Background(), "B2")
	require.NoError(t, err)
	assert.Equal(t, explanation.RenderTemplate(score.Drivers), score.Explanation)
}

func TestScoreBatch(t *testing.T) {
	f := newRiskFixture(t,
		testingpkg.StressedBusinessFixture("B1"),
		testingpkg.StableBusinessFixture("B2"),
	)
	constantArtifact(t, f.store, "v20240101_000000.000000_aaaaaa", -3)

	items := f.service.ScoreBatch(context.Background(), []string{"B2", "missing", "B1"})
	require.Len(t, items, 3)

	assert.Equal(t, "B2", items[0].BusinessID)
	require.NoError(t, items[0].Err)
	assert.Equal(t, domain.RiskTierLow, items[0].Score.RiskTier)

	assert.Equal(t, "missing", items[1].BusinessID)
	assert.ErrorIs(t, items[1].Err, domain.ErrNotFound)
	assert.Nil(t, items[1].Score)

	assert.Equal(t, "B1", items[2].BusinessID)
	require.NoError(t, items[2].Err)

	payload, err := json.Marshal(items)
	require.NoError(t, err)
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "B2", decoded[0]["business_id"])
	assert.Contains(t, decoded[0], "risk_probability")
	assert.Equal(t, "missing", decoded[1]["business_id"])
	assert.Contains(t, decoded[1]["error"], "missing")
	assert.NotContains(t, decoded[1], "risk_probability")
}

func TestScoreBatch_NoModel(t *testing.T) {
	f := newRiskFixture(t, testingpkg.StableBusinessFixture("B2"))

	items := f.service.ScoreBatch(context.Background(), []string{"B2", "B3"})
	require.Len(t, items, 2)
	for _, item := range items {
		assert.ErrorIs(t, item.Err, domain.ErrNotFound)
	}
}

func TestScoreBatch_Empty(t *testing.T) {
	f := newRiskFixture(t)
	assert.Empty(t, f.service.ScoreBatch(context.Background(), nil))
}
