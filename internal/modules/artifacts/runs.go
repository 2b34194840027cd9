package artifacts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TrainingRun is one recorded training attempt
type TrainingRun struct {
	ID         int64     `json:"id"`
	Version    string    `json:"version,omitempty"`
	Status     string    `json:"status"`
	ModelType  string    `json:"model_type,omitempty"`
	Metrics    string    `json:"metrics,omitempty"` // JSON
	Note       string    `json:"note,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunRepository records training attempts in the models database
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a training run repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "training_runs").Logger(),
	}
}

// Record inserts a run and returns its ID
func (r *RunRepository) Record(ctx context.Context, run TrainingRun) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO training_runs (version, status, model_type, metrics, note, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, nullString(run.Version), run.Status, nullString(run.ModelType), nullString(run.Metrics),
		nullString(run.Note), nullString(run.Error), run.StartedAt.Unix(), run.FinishedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to record training run: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns the latest runs, newest first
func (r *RunRepository) Recent(ctx context.Context, limit int) ([]TrainingRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version, status, model_type, metrics, note, error, started_at, finished_at
		FROM training_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		var run TrainingRun
		var version, modelType, metrics, note, errText sql.NullString
		var started, finished int64
		if err := rows.Scan(&run.ID, &version, &run.Status, &modelType, &metrics, &note, &errText, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		run.Version = version.String
		run.ModelType = modelType.String
		run.Metrics = metrics.String
		run.Note = note.String
		run.Error = errText.String
		run.StartedAt = time.Unix(started, 0).UTC()
		run.FinishedAt = time.Unix(finished, 0).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
