// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/finz/cashflow-risk/internal/config"
	"github.com/finz/cashflow-risk/internal/database"
	"github.com/finz/cashflow-risk/internal/scheduler"
	"github.com/rs/zerolog"
)

// checkDatabasesSchedule runs the maintenance job nightly
const checkDatabasesSchedule = "30 2 * * *"

// RegisterJobs creates the scheduler and registers the cron jobs.
// Returns JobInstances for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	container.Scheduler = scheduler.New(log)
	instances := &JobInstances{}

	instances.CheckDatabases = scheduler.NewCheckDatabasesJob(map[string]*database.DB{
		"ledger": container.LedgerDB,
		"models": container.ModelsDB,
	})
	instances.CheckDatabases.SetLogger(log)
	if err := container.Scheduler.AddJob(checkDatabasesSchedule, instances.CheckDatabases); err != nil {
		return nil, fmt.Errorf("failed to register check_databases job: %w", err)
	}

	if cfg.RetrainSchedule != "" {
		instances.RetrainModel = scheduler.NewRetrainModelJob(container.RiskService, 0)
		instances.RetrainModel.SetLogger(log)
		if err := container.Scheduler.AddJob(cfg.RetrainSchedule, instances.RetrainModel); err != nil {
			return nil, fmt.Errorf("failed to register retrain_model job: %w", err)
		}
	} else {
		log.Info().Msg("RETRAIN_SCHEDULE not set, scheduled retraining disabled")
	}

	if container.BackupService != nil {
		instances.BackupDatabases = scheduler.NewBackupDatabasesJob(container.BackupService, cfg.BackupRetentionDays)
		instances.BackupDatabases.SetLogger(log)
		if err := container.Scheduler.AddJob(cfg.BackupSchedule, instances.BackupDatabases); err != nil {
			return nil, fmt.Errorf("failed to register backup_databases job: %w", err)
		}
	}

	return instances, nil
}
