package interfaces

import (
	"context"

	"github.com/ternarybob/cadence/internal/models"
)

// JobConfigStorage persists job configuration rows.
// Updates WHERE on the primary key alone; version is a monotone audit
// counter maintained by the store, never a collision guard.
type JobConfigStorage interface {
	// Save inserts a new row, assigning ID, Version=1, and audit times
	Save(ctx context.Context, cfg *models.JobConfig) error

	// Update writes the row by id only and increments Version
	Update(ctx context.Context, cfg *models.JobConfig) error

	// GetByID returns nil when no row exists
	GetByID(ctx context.Context, id int64) (*models.JobConfig, error)

	// GetByNaturalKey returns nil when no row exists
	GetByNaturalKey(ctx context.Context, jobName, jobGroup, environment string) (*models.JobConfig, error)

	// ListAll returns rows, optionally filtered by environment
	ListAll(ctx context.Context, environment string) ([]*models.JobConfig, error)

	// ListByStatus returns rows in a status, optionally filtered by environment
	ListByStatus(ctx context.Context, status models.JobStatus, environment string) ([]*models.JobConfig, error)

	// Delete removes the row by id
	Delete(ctx context.Context, id int64) error
}

// JobLogStorage persists execution log rows
type JobLogStorage interface {
	// SaveLog inserts a new execution log row, assigning ID
	SaveLog(ctx context.Context, log *models.JobLog) error

	// UpdateLog rewrites the row by id
	UpdateLog(ctx context.Context, log *models.JobLog) error

	// GetLogByID returns nil when no row exists
	GetLogByID(ctx context.Context, id int64) (*models.JobLog, error)

	// GetLogByExecutionID returns nil when no row exists
	GetLogByExecutionID(ctx context.Context, executionID string) (*models.JobLog, error)

	// ListLogsByJobID returns the most recent logs for a job
	ListLogsByJobID(ctx context.Context, jobID int64, limit int) ([]*models.JobLog, error)

	// FailRunningLogs transitions every RUNNING row to FAILED with the
	// given reason. Used at startup to close out fires orphaned by a
	// previous process.
	FailRunningLogs(ctx context.Context, reason string) (int, error)
}
