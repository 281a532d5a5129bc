package archive

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs full backups on a cron expression. Backups themselves
// stay synchronous; the scheduler only decides when the next one starts.
type Scheduler struct {
	manager   *Manager
	cron      *cron.Cron
	projectID string
	logger    *zap.Logger
}

// NewScheduler wires a backup Manager to a cron expression such as
// "0 3 * * *". An empty projectID schedules whole-store backups.
func NewScheduler(manager *Manager, spec, projectID string, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = noOpLogger
	}
	scheduler := &Scheduler{
		manager:   manager,
		cron:      cron.New(),
		projectID: projectID,
		logger:    logger,
	}
	_, err := scheduler.cron.AddFunc(spec, scheduler.runOnce)
	if err != nil {
		return nil, fmt.Errorf("archive: schedule %q: %w", spec, err)
	}
	return scheduler, nil
}

// Start begins firing scheduled backups.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("backup scheduler started", zap.String("project_id", s.projectID))
}

// Stop halts the schedule and waits for an in-flight backup to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("backup scheduler stopped")
}

func (s *Scheduler) runOnce() {
	record, err := s.manager.BackupFull(context.Background(), s.projectID, "scheduled backup")
	if err != nil {
		s.logger.Error("scheduled backup failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled backup completed", zap.String("backup_id", record.ID))
}
