// Package executor runs single job invocations end-to-end: execution
// identity, the retry loop, gray release gating, and the execution log
// row that records the attempt trail.
package executor

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
)

// Service implements interfaces.JobExecutor. One Execute call is one
// fire: a RUNNING log row is inserted before the first attempt and
// driven to a terminal state exactly once, whatever the attempts do.
type Service struct {
	jobs    interfaces.JobLookup
	logs    interfaces.JobLogStorage
	logger  arbor.ILogger
	// sleep is swappable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates an executor backed by the given registry and log storage
func NewService(jobs interfaces.JobLookup, logs interfaces.JobLogStorage, logger arbor.ILogger) *Service {
	return &Service{
		jobs:   jobs,
		logs:   logs,
		logger: logger,
		sleep:  cancellableSleep,
	}
}

// Execute runs one fire of the job. Never panics; the result mirrors the
// terminal state of the execution log row.
func (s *Service) Execute(ctx context.Context, cfg *models.JobConfig) interfaces.ExecutionResult {
	executionID := uuid.New().String()
	serverIP, serverName := common.ServerIdentity()

	jobLog := &models.JobLog{
		JobID:       cfg.ID,
		JobName:     cfg.JobName,
		JobGroup:    cfg.JobGroup,
		ExecutionID: executionID,
		StartTime:   time.Now(),
		Status:      models.JobLogStatusRunning,
		ServerIP:    serverIP,
		ServerName:  serverName,
	}

	if err := s.logs.SaveLog(ctx, jobLog); err != nil {
		s.logger.Warn().Err(err).
			Str("execution_id", executionID).
			Msg("Failed to insert execution log row, continuing without persistence")
	}

	s.logger.Info().
		Int64("job_id", cfg.ID).
		Str("job_name", cfg.JobName).
		Str("execution_id", executionID).
		Msg("Job execution started")

	// Appenders are shared with the job body, which may log from its own
	// goroutines.
	var logMu sync.Mutex
	appendLog := func(msg string) {
		logMu.Lock()
		defer logMu.Unlock()
		jobLog.AppendLog(msg)
	}
	appendError := func(msg string) {
		logMu.Lock()
		defer logMu.Unlock()
		jobLog.AppendError(msg)
	}

	if cfg.GrayReleaseEnabled && !grayReleaseSelected(cfg.ID, cfg.GrayReleasePercent, jobLog.StartTime) {
		appendLog(fmt.Sprintf("Gray release gate skipped this instance (percent=%d)", cfg.GrayReleasePercent))
		s.finish(ctx, jobLog, &logMu, models.JobLogStatusSuccess, 0)
		return interfaces.ExecutionResult{Success: true}
	}

	job, found := s.jobs.Lookup(cfg.JobClass)
	if !found {
		appendError(fmt.Sprintf("No job implementation registered for class %s", cfg.JobClass))
		s.finish(ctx, jobLog, &logMu, models.JobLogStatusFailed, 0)
		return interfaces.ExecutionResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("no job implementation registered for class %s", cfg.JobClass),
		}
	}

	paramsJSON, err := cfg.MarshalParams()
	if err != nil {
		paramsJSON = "{}"
	}
	jobCtx := interfaces.NewJobContext(
		cfg.ID, cfg.JobName, cfg.JobGroup, executionID,
		cfg.JobParams, paramsJSON,
		time.Duration(cfg.Timeout)*time.Second,
		appendLog, appendError,
	)

	attempts := cfg.RetryCount + 1
	retryInterval := time.Duration(cfg.RetryInterval) * time.Second

	var lastErr error
	retries := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			retries++
			appendLog(fmt.Sprintf("Retry %d of %d after %s", attempt-1, attempts-1, retryInterval))
		}

		lastErr = s.runAttempt(ctx, job, jobCtx)
		if lastErr == nil {
			s.finish(ctx, jobLog, &logMu, models.JobLogStatusSuccess, retries)
			s.logger.Info().
				Int64("job_id", cfg.ID).
				Str("execution_id", executionID).
				Int("retries", retries).
				Msg("Job execution succeeded")
			return interfaces.ExecutionResult{Success: true}
		}

		appendError(fmt.Sprintf("Attempt %d of %d failed: %v", attempt, attempts, lastErr))

		if attempt < attempts {
			if err := s.sleep(ctx, retryInterval); err != nil {
				appendError(common.ErrInterrupted.Error())
				s.finish(ctx, jobLog, &logMu, models.JobLogStatusFailed, retries)
				return interfaces.ExecutionResult{
					Success:      false,
					ErrorMessage: common.ErrInterrupted.Error(),
				}
			}
		}
	}

	s.finish(ctx, jobLog, &logMu, models.JobLogStatusFailed, retries)
	s.logger.Warn().
		Int64("job_id", cfg.ID).
		Str("execution_id", executionID).
		Err(lastErr).
		Msg("Job execution failed after all attempts")
	return interfaces.ExecutionResult{
		Success:      false,
		ErrorMessage: lastErr.Error(),
	}
}

// runAttempt invokes the job body once, converting a panic into an error
func (s *Service) runAttempt(ctx context.Context, job interfaces.Job, jobCtx *interfaces.JobContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.ExecutionError(fmt.Errorf("job body panicked: %v", r))
		}
	}()
	return job.Execute(ctx, jobCtx)
}

// finish drives the log row to its terminal state exactly once
func (s *Service) finish(ctx context.Context, jobLog *models.JobLog, mu *sync.Mutex, status models.JobLogStatus, retries int) {
	mu.Lock()
	now := time.Now()
	jobLog.EndTime = &now
	jobLog.Duration = now.Sub(jobLog.StartTime).Milliseconds()
	jobLog.Status = status
	jobLog.RetryCount = retries
	mu.Unlock()

	if jobLog.ID == 0 {
		// The initial insert failed; nothing to update
		return
	}
	if err := s.logs.UpdateLog(ctx, jobLog); err != nil {
		s.logger.Warn().Err(err).
			Str("execution_id", jobLog.ExecutionID).
			Msg("Failed to persist terminal execution state")
	}
}

// grayReleaseSelected gates an instance in or out of a fire. The hash is
// deterministic per job and the minute bucket of the fire's start time,
// so all instances that share a clock agree on the verdict for the same
// fire.
func grayReleaseSelected(jobID int64, percent int, startTime time.Time) bool {
	if percent >= 100 {
		return true
	}
	if percent <= 0 {
		return false
	}

	h := fnv.New32a()
	fmt.Fprintf(h, "%d:%d", jobID, startTime.Unix()/60)
	return h.Sum32()%100 < uint32(percent)
}

// cancellableSleep waits for d unless the context is cancelled first
func cancellableSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
