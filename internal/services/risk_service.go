/**
 * Package services provides RiskService, the orchestration layer of the risk pipeline.
 *
 * RiskService is the single entry point used by the HTTP handlers, the CLI and
 * the retraining job:
 * - Train: ledger snapshot -> labels -> weekly rows -> features -> fit -> evaluate -> publish
 * - Score: latest artifact + one business's ledger -> probability, tier, drivers, explanation
 * - ScoreBatch: Score over a bounded worker pool, one payload per input ID
 *
 * Usage:
 *   resp, _ := riskService.Train(ctx)
 *   score, _ := riskService.Score(ctx, "B1")
 */
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/metrics"
	"github.com/finz/cashflow-risk/internal/modules/artifacts"
	"github.com/finz/cashflow-risk/internal/modules/evaluation"
	"github.com/finz/cashflow-risk/internal/modules/explanation"
	"github.com/finz/cashflow-risk/internal/modules/features"
	"github.com/finz/cashflow-risk/internal/modules/labeling"
	"github.com/finz/cashflow-risk/internal/modules/scoring"
	"github.com/finz/cashflow-risk/internal/modules/training"
	"github.com/finz/cashflow-risk/internal/utils"
	"github.com/finz/cashflow-risk/internal/workers"
	"github.com/rs/zerolog"
)

// Training run statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// RunRecorder persists training attempts
type RunRecorder interface {
	Record(ctx context.Context, run artifacts.TrainingRun) (int64, error)
}

// RiskConfig bundles the pipeline settings
type RiskConfig struct {
	Labeling     labeling.Config
	Training     training.Config
	TopK         int
	BatchWorkers int
}

// DefaultRiskConfig returns production thresholds and a four-worker batch pool
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Labeling:     labeling.DefaultConfig(),
		Training:     training.DefaultConfig(),
		TopK:         scoring.DefaultTopK,
		BatchWorkers: 4,
	}
}

// TrainResponse is returned by a successful training run
type TrainResponse struct {
	Status       string             `json:"status"`
	ModelVersion string             `json:"model_version"`
	ModelType    training.ModelKind `json:"model_type"`
	Metrics      evaluation.Metrics `json:"metrics"`
	Note         string             `json:"note,omitempty"`
}

// ScoreResponse is the scored view of one business
type ScoreResponse struct {
	BusinessID      string              `json:"business_id"`
	WeekStart       string              `json:"week_start"`
	RiskProbability float64             `json:"risk_probability"`
	RiskTier        domain.RiskTier     `json:"risk_tier"`
	Drivers         domain.DriverReport `json:"drivers"`
	Explanation     string              `json:"explanation"`
	ModelVersion    string              `json:"model_version"`
}

// BatchItem holds either a score or the error that prevented it
type BatchItem struct {
	BusinessID string
	Score      *ScoreResponse
	Err        error
}

// MarshalJSON emits the score itself, or {business_id, error}
func (b BatchItem) MarshalJSON() ([]byte, error) {
	if b.Err != nil || b.Score == nil {
		msg := "not scored"
		if b.Err != nil {
			msg = b.Err.Error()
		}
		return json.Marshal(struct {
			BusinessID string `json:"business_id"`
			Error      string `json:"error"`
		}{b.BusinessID, msg})
	}
	return json.Marshal(b.Score)
}

/**
 * RiskService runs training and scoring over the transaction ledger.
 *
 * Training runs are serialised; scoring is safe to call concurrently.
 */
type RiskService struct {
	transactions domain.TransactionStore
	store        artifacts.Store
	runs         RunRecorder
	renderer     domain.ExplanationRenderer
	metrics      *metrics.Registry

	labeling  labeling.Config
	trainer   *training.Trainer
	evaluator *evaluation.Evaluator
	scorer    *scoring.Scorer
	pool      *workers.WorkerPool

	trainMu     sync.Mutex
	lastVersion string // guarded by trainMu
	now         func() time.Time
	log         zerolog.Logger
}

/**
 * NewRiskService creates a new RiskService.
 *
 * Parameters:
 *   - transactions: ledger the snapshots are read from
 *   - store: artifact store models are published to and loaded from
 *   - runs: optional training run recorder (nil disables recording)
 *   - renderer: optional explanation renderer (nil uses the template renderer)
 *   - m: optional metrics registry
 *   - cfg: pipeline settings
 *   - log: Structured logger
 */
func NewRiskService(
	transactions domain.TransactionStore,
	store artifacts.Store,
	runs RunRecorder,
	renderer domain.ExplanationRenderer,
	m *metrics.Registry,
	cfg RiskConfig,
	log zerolog.Logger,
) *RiskService {
	if renderer == nil {
		renderer = explanation.NewTemplateRenderer()
	}
	return &RiskService{
		transactions: transactions,
		store:        store,
		runs:         runs,
		renderer:     renderer,
		metrics:      m,
		labeling:     cfg.Labeling,
		trainer:      training.NewTrainer(cfg.Training, log),
		evaluator:    evaluation.NewEvaluator(log),
		scorer:       scoring.NewScorer(cfg.TopK, log),
		pool:         workers.NewWorkerPool(cfg.BatchWorkers),
		now:          time.Now,
		log:          log.With().Str("service", "risk").Logger(),
	}
}

// Train fits a model on the full ledger snapshot and publishes it as the latest artifact
func (s *RiskService) Train(ctx context.Context) (*TrainResponse, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	started := s.now().UTC()
	timer := utils.NewTimer("train_model", s.log)

	resp, err := s.train(ctx)
	elapsed := timer.Stop()

	run := artifacts.TrainingRun{StartedAt: started, FinishedAt: s.now().UTC()}
	if err != nil {
		run.Status = StatusFailed
		run.Error = err.Error()
		s.metrics.ObserveTraining(StatusFailed, "", elapsed)
		s.log.Error().Err(err).Msg("Training run failed")
	} else {
		run.Status = StatusSuccess
		run.Version = resp.ModelVersion
		run.ModelType = string(resp.ModelType)
		run.Note = resp.Note
		if b, mErr := json.Marshal(resp.Metrics); mErr == nil {
			run.Metrics = string(b)
		}
		s.metrics.ObserveTraining(StatusSuccess, string(resp.ModelType), elapsed)
		s.metrics.SetModelMetric("roc_auc", resp.Metrics.ROCAUC)
		s.metrics.SetModelMetric("pr_auc", resp.Metrics.PRAUC)
		s.metrics.SetModelMetric("brier_score", resp.Metrics.BrierScore)
	}
	s.recordRun(ctx, run)

	return resp, err
}

func (s *RiskService) train(ctx context.Context) (*TrainResponse, error) {
	txs, err := s.transactions.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger snapshot: %w", err)
	}
	if len(txs) == 0 {
		return nil, &domain.DataNotFoundError{What: "transactions"}
	}

	labeled := labeling.Label(txs, s.labeling)
	rows := features.EngineerFeatures(features.AggregateLabeledWeekly(labeled))

	result, err := s.trainer.Train(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to train model: %w", err)
	}

	m := s.evaluator.Evaluate(result.Pipeline, result.XTest, result.YTest)

	artifact := &artifacts.ModelArtifact{
		Version:  artifacts.NextVersion(s.now(), s.previousVersion(ctx)),
		Metadata: result.Metadata,
		Pipeline: result.Pipeline,
	}
	version, err := s.store.Save(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to publish model: %w", err)
	}
	s.lastVersion = version

	note := result.Metadata.Note
	if note == "" {
		note = m.Note
	}

	s.log.Info().
		Str("model_version", version).
		Str("model_type", string(result.Metadata.ModelType)).
		Int("transactions", len(txs)).
		Int("feature_rows", len(rows)).
		Msg("Published model")

	return &TrainResponse{
		Status:       StatusSuccess,
		ModelVersion: version,
		ModelType:    result.Metadata.ModelType,
		Metrics:      m,
		Note:         note,
	}, nil
}

// previousVersion is the newest version this service or the store has seen.
// Callers hold trainMu.
func (s *RiskService) previousVersion(ctx context.Context) string {
	prev := s.lastVersion
	latest, err := s.store.LoadLatest(ctx)
	switch {
	case err == nil:
		if latest.Version > prev {
			prev = latest.Version
		}
	case !errors.Is(err, domain.ErrNotFound):
		s.log.Warn().Err(err).Msg("Could not read latest artifact, versioning from local state")
	}
	return prev
}

func (s *RiskService) recordRun(ctx context.Context, run artifacts.TrainingRun) {
	if s.runs == nil {
		return
	}
	if _, err := s.runs.Record(ctx, run); err != nil {
		s.log.Warn().Err(err).Msg("Failed to record training run")
	}
}

// LatestModel returns the artifact scoring would use
func (s *RiskService) LatestModel(ctx context.Context) (*artifacts.ModelArtifact, error) {
	return s.store.LoadLatest(ctx)
}

// Score rates the most recent week of one business against the latest model
func (s *RiskService) Score(ctx context.Context, businessID string) (*ScoreResponse, error) {
	artifact, err := s.store.LoadLatest(ctx)
	if err != nil {
		return nil, err
	}
	return s.scoreWith(ctx, artifact, businessID)
}

// ScoreBatch scores every business ID against one model, preserving input order.
// A failure on one ID is reported in its item and does not stop the others.
func (s *RiskService) ScoreBatch(ctx context.Context, businessIDs []string) []BatchItem {
	artifact, loadErr := s.store.LoadLatest(ctx)

	return workers.Map(s.pool, businessIDs, func(id string) BatchItem {
		if loadErr != nil {
			return BatchItem{BusinessID: id, Err: loadErr}
		}
		score, err := s.scoreWith(ctx, artifact, id)
		return BatchItem{BusinessID: id, Score: score, Err: err}
	})
}

func (s *RiskService) scoreWith(ctx context.Context, artifact *artifacts.ModelArtifact, businessID string) (*ScoreResponse, error) {
	start := time.Now()

	txs, err := s.transactions.ListByBusiness(ctx, businessID)
	if err != nil {
		s.metrics.ObserveScore(StatusFailed, "", 0, time.Since(start))
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txs) == 0 {
		s.metrics.ObserveScore(StatusFailed, "", 0, time.Since(start))
		return nil, &domain.DataNotFoundError{BusinessID: businessID, What: "transactions"}
	}

	rows := features.EngineerFeatures(features.AggregateWeekly(txs))
	result, err := s.scorer.Score(businessID, artifact, rows)
	if err != nil {
		s.metrics.ObserveScore(StatusFailed, "", 0, time.Since(start))
		return nil, err
	}

	text, err := s.renderer.Render(ctx, result.Drivers)
	if err != nil {
		s.log.Warn().Err(err).Str("business_id", businessID).Msg("Explanation renderer failed, using template")
		text = explanation.RenderTemplate(result.Drivers)
	}

	s.metrics.ObserveScore(StatusSuccess, string(result.Tier), result.Probability, time.Since(start))

	return &ScoreResponse{
		BusinessID:      businessID,
		WeekStart:       result.WeekStart.Format("2006-01-02"),
		RiskProbability: round4(result.Probability),
		RiskTier:        result.Tier,
		Drivers:         result.Drivers,
		Explanation:     text,
		ModelVersion:    result.ModelVersion,
	}, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
