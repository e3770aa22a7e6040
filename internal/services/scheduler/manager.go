// Package scheduler owns the live set of scheduled jobs. Each RUNNING
// job config maps to exactly one handle; handles bind to a shared cron
// runner for QUARTZ jobs, to a cooperative timer loop when the runner is
// disabled, or to a declarative no-op for EXTERNAL jobs.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
)

// Manager implements interfaces.SchedulerManager on top of a shared
// robfig cron runner. All map mutation happens under one mutex; fires
// snapshot the config under the same mutex, so an update is atomic with
// respect to firings.
type Manager struct {
	executor interfaces.JobExecutor
	logger   arbor.ILogger
	runner   *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	handles map[int64]*jobHandle
	stopped bool

	fires sync.WaitGroup
}

// Option tunes manager construction
type Option func(*Manager)

// WithoutRunner disables the shared cron runner; QUARTZ jobs then run on
// per-handle timer loops. Intended for constrained deployments and tests.
func WithoutRunner() Option {
	return func(m *Manager) {
		m.runner = nil
	}
}

// NewManager creates a manager and starts the shared cron runner
func NewManager(executor interfaces.JobExecutor, logger arbor.ILogger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		executor: executor,
		logger:   logger,
		runner:   cron.New(cron.WithParser(common.QuartzParser())),
		ctx:      ctx,
		cancel:   cancel,
		handles:  make(map[int64]*jobHandle),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.runner != nil {
		m.runner.Start()
	}
	return m
}

// AddJob schedules a job. Fails when a handle for the id already exists.
func (m *Manager) AddJob(cfg *models.JobConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return common.SchedulerError("scheduler is stopped")
	}
	if _, exists := m.handles[cfg.ID]; exists {
		return common.SchedulerError("job %d (%s) is already scheduled", cfg.ID, cfg.JobName)
	}

	handle, err := m.newHandle(cfg)
	if err != nil {
		return err
	}
	if err := handle.start(); err != nil {
		return err
	}
	m.handles[cfg.ID] = handle

	m.logger.Info().
		Int64("job_id", cfg.ID).
		Str("job_name", cfg.JobName).
		Str("job_type", string(cfg.JobType)).
		Str("cron", cfg.CronExpression).
		Msg("Job scheduled")
	return nil
}

// UpdateJob replaces the handle under the same id. A fire already in
// progress completes with the old snapshot; the next fire uses the new
// config. Falls back to a plain add when no handle exists yet.
func (m *Manager) UpdateJob(cfg *models.JobConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return common.SchedulerError("scheduler is stopped")
	}

	if old, exists := m.handles[cfg.ID]; exists {
		old.stop()
		delete(m.handles, cfg.ID)
	}

	handle, err := m.newHandle(cfg)
	if err != nil {
		return err
	}
	if err := handle.start(); err != nil {
		return err
	}
	m.handles[cfg.ID] = handle

	m.logger.Info().
		Int64("job_id", cfg.ID).
		Str("job_name", cfg.JobName).
		Str("cron", cfg.CronExpression).
		Msg("Job schedule updated")
	return nil
}

// RemoveJob stops and drops the handle. No-op when absent.
func (m *Manager) RemoveJob(jobID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle, exists := m.handles[jobID]
	if !exists {
		return
	}
	handle.stop()
	delete(m.handles, jobID)

	m.logger.Info().Int64("job_id", jobID).Msg("Job unscheduled")
}

// PauseJob suspends firing without dropping the handle. No-op when absent.
func (m *Manager) PauseJob(jobID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle, exists := m.handles[jobID]
	if !exists {
		return
	}
	handle.pause()

	m.logger.Info().Int64("job_id", jobID).Msg("Job paused")
}

// ResumeJob resumes a paused handle. No-op when absent.
func (m *Manager) ResumeJob(jobID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handle, exists := m.handles[jobID]
	if !exists {
		return
	}
	if err := handle.resume(); err != nil {
		m.logger.Error().Err(err).Int64("job_id", jobID).Msg("Job resume failed")
		return
	}

	m.logger.Info().Int64("job_id", jobID).Msg("Job resumed")
}

// HasJob reports whether a handle exists for the id
func (m *Manager) HasJob(jobID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.handles[jobID]
	return exists
}

// JobIDs returns the ids of all live handles
func (m *Manager) JobIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.handles))
	for id := range m.handles {
		ids = append(ids, id)
	}
	return ids
}

// Stop cancels every handle and the shared runner, then waits for
// in-flight fires to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	for id, handle := range m.handles {
		handle.stop()
		delete(m.handles, id)
	}
	m.mu.Unlock()

	m.cancel()
	if m.runner != nil {
		runnerCtx := m.runner.Stop()
		<-runnerCtx.Done()
	}
	m.fires.Wait()

	m.logger.Info().Msg("Scheduler stopped")
}

// newHandle binds a config to its trigger backend. Called under the lock.
func (m *Manager) newHandle(cfg *models.JobConfig) (*jobHandle, error) {
	handle := &jobHandle{
		manager: m,
		cfg:     cfg.Clone(),
		state:   stateNew,
	}

	switch cfg.JobType {
	case models.JobTypeQuartz:
		if err := common.ValidateCronExpression(cfg.CronExpression); err != nil {
			return nil, err
		}
		if m.runner != nil {
			handle.binding = &quartzBinding{handle: handle}
		} else {
			handle.binding = &loopBinding{handle: handle}
		}
	case models.JobTypeExternal:
		handle.binding = &externalBinding{handle: handle}
	default:
		return nil, common.ConfigurationError("unknown job type %q for job %d", cfg.JobType, cfg.ID)
	}

	return handle, nil
}

// dispatch runs one fire through the executor on its own goroutine and
// releases the handle's in-flight guard when the execution returns.
func (m *Manager) dispatch(h *jobHandle, cfg *models.JobConfig) {
	m.fires.Add(1)
	go func() {
		defer m.fires.Done()
		defer func() {
			m.mu.Lock()
			h.inFlight = false
			m.mu.Unlock()
		}()

		result := m.executor.Execute(m.ctx, cfg)
		if !result.Success {
			m.logger.Warn().
				Int64("job_id", cfg.ID).
				Str("job_name", cfg.JobName).
				Str("error", result.ErrorMessage).
				Msg("Scheduled execution failed")
		}
	}()
}
