package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/reliability"
	"github.com/aristath/frontier/internal/report"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers every configured job.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)

	if cfg.Schedule.DatabaseCheck != "" {
		job := scheduler.NewCheckDatabaseJob(container.HistoryDB, log)
		if err := sched.AddJob(cfg.Schedule.DatabaseCheck, job); err != nil {
			return fmt.Errorf("invalid database check schedule %q: %w", cfg.Schedule.DatabaseCheck, err)
		}
	}

	if cfg.Schedule.Run != "" {
		sink, err := scheduledRunSink(container, cfg, log)
		if err != nil {
			return err
		}

		input := optimization.RunInput{
			Tickers:    cfg.Run.Tickers,
			WindowSize: cfg.Run.WindowSize,
			TotalValue: cfg.Run.TotalValue,
		}
		job := scheduler.NewOptimizationRunJob(container.OptimizerService, input, sink, cfg.Schedule.RunTimeout, log)
		if err := sched.AddJob(cfg.Schedule.Run, job); err != nil {
			return fmt.Errorf("invalid run schedule %q: %w", cfg.Schedule.Run, err)
		}
	}

	if cfg.Backup.URL != "" && cfg.Backup.Schedule != "" {
		backup, err := newBackupService(container, cfg, log)
		if err != nil {
			return err
		}
		job := scheduler.NewBackupDatabaseJob(backup, cfg.Backup.Timeout, log)
		if err := sched.AddJob(cfg.Backup.Schedule, job); err != nil {
			return fmt.Errorf("invalid backup schedule %q: %w", cfg.Backup.Schedule, err)
		}
	}

	container.Scheduler = sched
	return nil
}

// newBackupService builds the price store backup from FRONTIER_BACKUP_URL.
func newBackupService(container *Container, cfg *config.Config, log zerolog.Logger) (*reliability.BackupService, error) {
	bucket, prefix, err := report.ParseS3Prefix(cfg.Backup.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid backup url: %w", err)
	}

	uploader, err := report.NewS3Uploader(context.Background(), S3Options(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create backup uploader: %w", err)
	}

	stageDir := filepath.Join(cfg.DataDir, "backup-staging")
	return reliability.NewBackupService(container.HistoryDB, uploader, bucket, prefix, stageDir, log), nil
}

// scheduledRunSink stores every scheduled report and also writes it to the
// configured result file unless that is stdout.
func scheduledRunSink(container *Container, cfg *config.Config, log zerolog.Logger) (report.Sink, error) {
	sinks := report.MultiSink{container.RunRepo}
	if cfg.Run.ResultFile == "" || cfg.Run.ResultFile == "-" {
		return sinks, nil
	}

	out, err := report.NewSink(context.Background(), cfg.Run.ResultFile, S3Options(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create result sink: %w", err)
	}
	return append(sinks, out), nil
}

// S3Options maps application configuration onto the S3 sink's.
func S3Options(cfg *config.Config) report.S3Options {
	return report.S3Options{
		Endpoint:        cfg.S3.Endpoint,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
	}
}
