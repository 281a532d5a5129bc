package archive

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"
)

// enforceRetention deletes the oldest completed backups beyond
// MaxBackupsToKeep, scoped to one project when projectID is non-empty.
// File removal is best effort: a failed unlink is logged and the sweep
// continues, but the record is still retired so it is never reported as a
// usable backup again.
func (m *Manager) enforceRetention(ctx context.Context, projectID string) {
	if m.opts.MaxBackupsToKeep <= 0 {
		return
	}
	query := m.db.WithContext(ctx).Model(&BackupRecord{}).Where("status = ?", StatusCompleted)
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	var records []BackupRecord
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		m.logger.Warn("retention sweep query failed", zap.Error(err))
		return
	}
	if len(records) <= m.opts.MaxBackupsToKeep {
		return
	}
	for _, record := range records[m.opts.MaxBackupsToKeep:] {
		if record.Path != "" {
			if err := os.Remove(record.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				m.logger.Warn("retention could not remove backup file",
					zap.String("backup_id", record.ID),
					zap.String("path", record.Path),
					zap.Error(err))
			}
		}
		if err := m.db.WithContext(ctx).Where("id = ?", record.ID).Delete(&BackupRecord{}).Error; err != nil {
			m.logger.Warn("retention could not delete backup record",
				zap.String("backup_id", record.ID), zap.Error(err))
			continue
		}
		m.logger.Info("retention deleted old backup",
			zap.String("backup_id", record.ID),
			zap.String("project_id", record.ProjectID))
	}
}

// Prune runs a retention sweep on demand, scoped to one project when
// projectID is non-empty.
func (m *Manager) Prune(ctx context.Context, projectID string) {
	m.enforceRetention(ctx, projectID)
}
