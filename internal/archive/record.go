// Package archive snapshots entity-store state to checksummed backup files
// and restores them, with retention-bounded storage growth.
package archive

import (
	"errors"
	"time"
)

// BackupType enumerates backup scopes.
type BackupType string

const (
	BackupTypeFull        BackupType = "full"
	BackupTypeIncremental BackupType = "incremental"
	BackupTypeScenes      BackupType = "scenes"
	BackupTypeSequence    BackupType = "sequence"
	BackupTypeEngine      BackupType = "engine"
)

// BackupFormat enumerates on-disk serializations.
type BackupFormat string

const (
	FormatJSON           BackupFormat = "json"
	FormatJSONGzip       BackupFormat = "json_gzip"
	FormatEngineCopy     BackupFormat = "engine_copy"
	FormatEngineCopyGzip BackupFormat = "engine_copy_gzip"
)

// BackupStatus enumerates the lifecycle states of a backup operation.
type BackupStatus string

const (
	StatusInProgress BackupStatus = "in_progress"
	StatusCompleted  BackupStatus = "completed"
	StatusFailed     BackupStatus = "failed"
)

var (
	// ErrIntegrity indicates a checksum mismatch between a backup file and
	// its record.
	ErrIntegrity = errors.New("archive: integrity error")
	// ErrInvalidFormat indicates a malformed or incomplete backup envelope.
	ErrInvalidFormat = errors.New("archive: invalid backup format")
	// ErrBackupNotUsable indicates a backup record whose status does not
	// permit recovery.
	ErrBackupNotUsable = errors.New("archive: backup not usable")
	// ErrRecovery wraps any failure during restore dispatch; the store is
	// rolled back to its pre-call state before this error is returned.
	ErrRecovery = errors.New("archive: recovery failed")
)

// BackupRecord describes one backup operation. It is created at backup
// start and finalized on success or failure; the record exists for audit
// even when the caller ignores the returned error.
type BackupRecord struct {
	ID           string       `gorm:"column:id;primaryKey;size:36"`
	Type         BackupType   `gorm:"column:type;size:16;not null;index"`
	ProjectID    string       `gorm:"column:project_id;size:36;index"`
	Path         string       `gorm:"column:path;size:512"`
	Format       BackupFormat `gorm:"column:format;size:24;not null"`
	ItemCount    int          `gorm:"column:item_count;not null;default:0"`
	SizeBytes    int64        `gorm:"column:size_bytes;not null;default:0"`
	Checksum     string       `gorm:"column:checksum;size:64"`
	Description  string       `gorm:"column:description;type:text"`
	Status       BackupStatus `gorm:"column:status;size:16;not null;index"`
	ErrorMessage string       `gorm:"column:error_message;type:text"`
	CreatedAt    time.Time    `gorm:"column:created_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (BackupRecord) TableName() string { return "backup_records" }
