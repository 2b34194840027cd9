package scheduler

import (
	"context"
	"time"

	"github.com/finz/cashflow-risk/internal/database"
	"github.com/rs/zerolog"
)

// CheckDatabasesJob pings each SQLite database and truncates its WAL
type CheckDatabasesJob struct {
	log       zerolog.Logger
	databases map[string]*database.DB
}

// NewCheckDatabasesJob creates a new CheckDatabasesJob; nil databases are skipped
func NewCheckDatabasesJob(databases map[string]*database.DB) *CheckDatabasesJob {
	return &CheckDatabasesJob{
		log:       zerolog.Nop(),
		databases: databases,
	}
}

// SetLogger sets the logger for the job
func (j *CheckDatabasesJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *CheckDatabasesJob) Name() string {
	return "check_databases"
}

// Run executes the check. Failures are logged per database; the first one is returned.
func (j *CheckDatabasesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var firstErr error
	checked := 0
	for name, db := range j.databases {
		if db == nil {
			continue
		}

		if err := db.QuickCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Database ping failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		checked++
	}

	j.log.Info().Int("checked", checked).Msg("Database check completed")
	return firstErr
}
