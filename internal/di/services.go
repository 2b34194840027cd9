// Package di provides dependency injection for stores and services.
package di

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/finz/cashflow-risk/internal/config"
	"github.com/finz/cashflow-risk/internal/database"
	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/metrics"
	"github.com/finz/cashflow-risk/internal/modules/artifacts"
	"github.com/finz/cashflow-risk/internal/modules/explanation"
	"github.com/finz/cashflow-risk/internal/modules/labeling"
	"github.com/finz/cashflow-risk/internal/modules/training"
	"github.com/finz/cashflow-risk/internal/modules/transactions"
	"github.com/finz/cashflow-risk/internal/reliability"
	"github.com/finz/cashflow-risk/internal/services"
	"github.com/rs/zerolog"
)

// InitializeServices builds stores and services on top of the opened databases
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.Metrics = metrics.NewRegistry()

	placeholder := squirrel.Question
	if cfg.DatabaseDriver == config.DriverPostgres {
		placeholder = squirrel.Dollar
	}
	container.TransactionRepo = transactions.NewRepository(container.LedgerSQL, placeholder, log)
	container.RunRepo = artifacts.NewRunRepository(container.ModelsDB.Conn(), log)

	store, err := newArtifactStore(ctx, container, cfg, log)
	if err != nil {
		return err
	}
	container.ArtifactStore = store

	renderer, err := newRenderer(ctx, cfg, log)
	if err != nil {
		return err
	}
	container.Renderer = renderer

	container.IngestionService = transactions.NewService(container.TransactionRepo, container.Metrics, log)
	container.RiskService = services.NewRiskService(
		container.TransactionRepo,
		container.ArtifactStore,
		container.RunRepo,
		container.Renderer,
		container.Metrics,
		RiskConfig(cfg),
		log,
	)

	if cfg.BackupSchedule != "" {
		backup, err := newBackupService(ctx, container, cfg, log)
		if err != nil {
			return err
		}
		container.BackupService = backup
	}

	log.Info().
		Str("artifact_backend", cfg.ArtifactBackend).
		Bool("genai", cfg.GenAI.Enabled).
		Bool("backups", container.BackupService != nil).
		Msg("Services initialized")
	return nil
}

// RiskConfig maps application configuration onto pipeline settings
func RiskConfig(cfg *config.Config) services.RiskConfig {
	rc := services.DefaultRiskConfig()
	rc.Labeling = labeling.Config{
		BalanceThreshold: cfg.Pipeline.BalanceThreshold,
		DaysRequired:     cfg.Pipeline.StressDaysRequired,
		Lookahead:        cfg.Pipeline.LookaheadEntries,
	}
	rc.Training = training.Config{
		SplitDate: cfg.Pipeline.SplitDate,
		MaxIter:   cfg.Pipeline.MaxIter,
		C:         training.DefaultConfig().C,
	}
	rc.TopK = cfg.Pipeline.TopKDrivers
	rc.BatchWorkers = cfg.BatchWorkers
	return rc
}

func newArtifactStore(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) (artifacts.Store, error) {
	if cfg.ArtifactBackend != config.ArtifactBackendS3 {
		return artifacts.NewSQLiteStore(container.ModelsDB.Conn(), log), nil
	}

	client, uploader, err := artifacts.NewS3Client(ctx, s3Config(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	return artifacts.NewS3Store(client, uploader, cfg.S3.Bucket, cfg.S3.Prefix, log), nil
}

// newBackupService archives the SQLite files into the same bucket the S3
// artifact backend uses. A PostgreSQL ledger leaves LedgerDB nil and is skipped.
func newBackupService(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) (*reliability.BackupService, error) {
	client, _, err := artifacts.NewS3Client(ctx, s3Config(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backup client: %w", err)
	}
	return reliability.NewBackupService(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.DataDir, map[string]*database.DB{
		"ledger": container.LedgerDB,
		"models": container.ModelsDB,
	}, log), nil
}

func s3Config(cfg *config.Config) artifacts.S3Config {
	return artifacts.S3Config{
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		Prefix:          cfg.S3.Prefix,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	}
}

func newRenderer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (domain.ExplanationRenderer, error) {
	if !cfg.GenAI.Enabled {
		return explanation.NewTemplateRenderer(), nil
	}

	client, err := explanation.NewGenAIClient(ctx, cfg.GenAI.APIKey)
	if err != nil {
		return nil, err
	}
	return explanation.NewGenAIRenderer(client.Models, explanation.GenAIConfig{
		Model:   cfg.GenAI.Model,
		Timeout: cfg.GenAI.Timeout,
	}, log), nil
}
