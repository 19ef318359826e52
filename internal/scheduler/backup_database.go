package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/frontier/internal/reliability"
	"github.com/rs/zerolog"
)

// Backuper is implemented by *reliability.BackupService.
type Backuper interface {
	CreateAndUpload(ctx context.Context) (*reliability.BackupMetadata, error)
}

// BackupDatabaseJob uploads a snapshot of the price store
type BackupDatabaseJob struct {
	backup  Backuper
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupDatabaseJob creates a new BackupDatabaseJob
func NewBackupDatabaseJob(backup Backuper, timeout time.Duration, log zerolog.Logger) *BackupDatabaseJob {
	return &BackupDatabaseJob{
		backup:  backup,
		timeout: timeout,
		log:     log.With().Str("job", "backup_database").Logger(),
	}
}

// Name returns the job name
func (j *BackupDatabaseJob) Name() string {
	return "backup_database"
}

// Run executes the backup job
func (j *BackupDatabaseJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	meta, err := j.backup.CreateAndUpload(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Backup failed")
		return fmt.Errorf("backup failed: %w", err)
	}

	j.log.Info().Str("key", meta.Key).Msg("Backup completed")
	return nil
}
