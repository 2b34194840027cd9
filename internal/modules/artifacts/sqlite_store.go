package artifacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/rs/zerolog"
)

// SQLiteStore keeps artifacts in the models database
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore creates an artifact store over the models database
func NewSQLiteStore(db *sql.DB, log zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		log: log.With().Str("repo", "model_artifacts").Logger(),
	}
}

// Save writes the artifact unpublished, then flips it to published
func (s *SQLiteStore) Save(ctx context.Context, artifact *ModelArtifact) (string, error) {
	payload, err := Encode(artifact)
	if err != nil {
		return "", err
	}
	meta, err := json.Marshal(artifact.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO model_artifacts (version, model_type, trained_at, metadata, payload, published, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, artifact.Version, string(artifact.Metadata.ModelType), artifact.Metadata.TrainedAt.Unix(), string(meta), payload, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", artifact.Version, err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE model_artifacts SET published = 1 WHERE version = ?`, artifact.Version); err != nil {
		return "", fmt.Errorf("failed to publish artifact %s: %w", artifact.Version, err)
	}

	s.log.Info().
		Str("version", artifact.Version).
		Str("model_type", string(artifact.Metadata.ModelType)).
		Int("bytes", len(payload)).
		Msg("Saved model artifact")
	return artifact.Version, nil
}

// LoadLatest returns the published artifact with the greatest version
func (s *SQLiteStore) LoadLatest(ctx context.Context) (*ModelArtifact, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM model_artifacts
		WHERE published = 1
		ORDER BY version DESC
		LIMIT 1
	`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.DataNotFoundError{What: "trained model"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest artifact: %w", err)
	}
	return Decode(payload)
}
