package interfaces

import (
	"context"

	"github.com/ternarybob/cadence/internal/models"
)

// SchedulerManager owns the live set of scheduled jobs, keyed by job id.
// A job is live here iff its persisted status is RUNNING.
type SchedulerManager interface {
	// AddJob schedules a job. Fails when a handle for the id already exists.
	AddJob(cfg *models.JobConfig) error

	// UpdateJob atomically stops and replaces the handle under the same id
	UpdateJob(cfg *models.JobConfig) error

	// RemoveJob stops and drops the handle. No-op when absent.
	RemoveJob(jobID int64)

	// PauseJob suspends firing without dropping the handle. No-op when absent.
	PauseJob(jobID int64)

	// ResumeJob resumes a paused handle. No-op when absent.
	ResumeJob(jobID int64)

	// HasJob reports whether a handle exists for the id
	HasJob(jobID int64) bool

	// JobIDs returns the ids of all live handles
	JobIDs() []int64

	// Stop cancels all handles cooperatively; in-flight fires finish
	Stop()
}

// ExecutionResult is the outcome of one fire
type ExecutionResult struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// JobExecutor runs a single job invocation end-to-end, recording the
// attempt trail on an execution log row.
type JobExecutor interface {
	Execute(ctx context.Context, cfg *models.JobConfig) ExecutionResult
}

// JobLookup resolves a live job implementation by its class identifier
type JobLookup interface {
	Lookup(jobClass string) (Job, bool)
}
