// Package di provides dependency injection for database connections.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/finz/cashflow-risk/internal/config"
	"github.com/finz/cashflow-risk/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the ledger and models databases and applies schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. models.db - Published artifacts and training run history
	modelsDB, err := database.New(database.Config{
		Path:    cfg.ModelsPath(),
		Profile: database.ProfileStandard,
		Name:    "models",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize models database: %w", err)
	}
	container.ModelsDB = modelsDB
	container.closers = append(container.closers, modelsDB.Close)

	if err := modelsDB.Migrate(); err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to migrate models database: %w", err)
	}

	// 2. ledger - Append-only transaction record store
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pg, err := database.OpenPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
		}
		container.LedgerSQL = pg
		container.closers = append(container.closers, pg.Close)

	default:
		ledgerDB, err := database.New(database.Config{
			Path:    cfg.LedgerPath(),
			Profile: database.ProfileLedger, // Maximum safety for the append-only ledger
			Name:    "ledger",
		})
		if err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
		}
		container.LedgerDB = ledgerDB
		container.closers = append(container.closers, ledgerDB.Close)

		if err := ledgerDB.Migrate(); err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
		}
		container.LedgerSQL = ledgerDB.Sqlx()
	}

	log.Info().
		Str("ledger_driver", cfg.DatabaseDriver).
		Str("data_dir", cfg.DataDir).
		Msg("Databases initialized")

	return container, nil
}
