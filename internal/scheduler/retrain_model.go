package scheduler

import (
	"context"
	"time"

	"github.com/finz/cashflow-risk/internal/services"
	"github.com/rs/zerolog"
)

// ModelTrainer is the part of services.RiskService the retraining job needs
type ModelTrainer interface {
	Train(ctx context.Context) (*services.TrainResponse, error)
}

// RetrainModelJob refits the model on the current ledger and publishes it
type RetrainModelJob struct {
	log     zerolog.Logger
	trainer ModelTrainer
	timeout time.Duration
}

// NewRetrainModelJob creates a new RetrainModelJob
func NewRetrainModelJob(trainer ModelTrainer, timeout time.Duration) *RetrainModelJob {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &RetrainModelJob{
		log:     zerolog.Nop(),
		trainer: trainer,
		timeout: timeout,
	}
}

// SetLogger sets the logger for the job
func (j *RetrainModelJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *RetrainModelJob) Name() string {
	return "retrain_model"
}

// Run executes the retraining job
func (j *RetrainModelJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	resp, err := j.trainer.Train(ctx)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("model_version", resp.ModelVersion).
		Str("model_type", string(resp.ModelType)).
		Str("note", resp.Note).
		Msg("Scheduled retraining completed")
	return nil
}
