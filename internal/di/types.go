/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server, the CLI and the scheduler.
 */
package di

import (
	"github.com/finz/cashflow-risk/internal/database"
	"github.com/finz/cashflow-risk/internal/domain"
	"github.com/finz/cashflow-risk/internal/metrics"
	"github.com/finz/cashflow-risk/internal/modules/artifacts"
	"github.com/finz/cashflow-risk/internal/modules/transactions"
	"github.com/finz/cashflow-risk/internal/reliability"
	"github.com/finz/cashflow-risk/internal/scheduler"
	"github.com/finz/cashflow-risk/internal/services"
	"github.com/jmoiron/sqlx"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: ledger (SQLite or PostgreSQL) and models (SQLite)
 * - Stores: transaction repository, artifact store (SQLite or S3), training run log
 * - Services: ingestion and risk orchestration
 * - Scheduler: cron jobs for retraining, backups and database maintenance
 */
type Container struct {
	// Databases
	LedgerDB  *database.DB // nil when the ledger lives in PostgreSQL
	ModelsDB  *database.DB
	LedgerSQL *sqlx.DB // handle the transaction repository uses, whichever driver

	// Observability
	Metrics *metrics.Registry

	// Stores
	TransactionRepo *transactions.Repository
	ArtifactStore   artifacts.Store
	RunRepo         *artifacts.RunRepository

	// Services
	Renderer         domain.ExplanationRenderer
	IngestionService *transactions.Service
	RiskService      *services.RiskService
	BackupService    *reliability.BackupService // nil unless BACKUP_SCHEDULE is set

	Scheduler *scheduler.Scheduler

	closers []func() error
}

// JobInstances holds references to registered jobs for manual triggering
type JobInstances struct {
	RetrainModel    *scheduler.RetrainModelJob // nil when no schedule is configured
	CheckDatabases  *scheduler.CheckDatabasesJob
	BackupDatabases *scheduler.BackupDatabasesJob // nil unless BACKUP_SCHEDULE is set
}

// Close releases every opened connection in reverse order of opening
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
