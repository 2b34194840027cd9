package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Backuper is the part of reliability.BackupService the backup job needs
type Backuper interface {
	CreateAndUploadBackup(ctx context.Context) (string, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// BackupDatabasesJob uploads a database archive and prunes expired ones
type BackupDatabasesJob struct {
	log           zerolog.Logger
	backup        Backuper
	retentionDays int
}

// NewBackupDatabasesJob creates a new BackupDatabasesJob
func NewBackupDatabasesJob(backup Backuper, retentionDays int) *BackupDatabasesJob {
	return &BackupDatabasesJob{
		log:           zerolog.Nop(),
		backup:        backup,
		retentionDays: retentionDays,
	}
}

// SetLogger sets the logger for the job
func (j *BackupDatabasesJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *BackupDatabasesJob) Name() string {
	return "backup_databases"
}

// Run uploads a new archive, then rotates. A rotation failure does not fail the job.
func (j *BackupDatabasesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	key, err := j.backup.CreateAndUploadBackup(ctx)
	if err != nil {
		return err
	}

	deleted, err := j.backup.RotateOldBackups(ctx, j.retentionDays)
	if err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	j.log.Info().Str("key", key).Int("rotated", deleted).Msg("Scheduled backup completed")
	return nil
}
