// Package reconciler applies config store document pushes to the
// database and the live scheduler. One push, one reconciliation; faults
// are logged and never propagate back into the push channel.
package reconciler

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
)

// Service reconciles job document changes. It is registered as the
// document listener for every job data id, so calls for the same data id
// arrive serially and in order.
type Service struct {
	storage     interfaces.JobConfigStorage
	scheduler   interfaces.SchedulerManager
	environment string
	logger      arbor.ILogger
}

// NewService creates a reconciler for the active environment
func NewService(storage interfaces.JobConfigStorage, scheduler interfaces.SchedulerManager, environment string, logger arbor.ILogger) *Service {
	return &Service{
		storage:     storage,
		scheduler:   scheduler,
		environment: environment,
		logger:      logger,
	}
}

// OnChange is the document listener. It never returns an error: a push
// that cannot be applied is logged and dropped, the previous state stays
// in effect.
func (s *Service) OnChange(dataID, content string) {
	jobName, jobGroup, environment, err := models.ParseJobDataID(dataID)
	if err != nil {
		s.logger.Warn().Err(err).Str("data_id", dataID).Msg("Ignoring push with malformed data id")
		return
	}

	if environment != s.environment {
		s.logger.Debug().
			Str("data_id", dataID).
			Str("environment", environment).
			Msg("Ignoring push for another environment")
		return
	}

	doc, err := models.ParseJobConfigDocument(content)
	if err != nil {
		s.logger.Warn().Err(err).Str("data_id", dataID).Msg("Ignoring invalid job document")
		return
	}

	ctx := context.Background()
	existing, err := s.storage.GetByNaturalKey(ctx, jobName, jobGroup, environment)
	if err != nil {
		s.logger.Error().Err(err).Str("data_id", dataID).Msg("Job lookup failed, push dropped")
		return
	}

	if existing == nil {
		s.createFromDocument(ctx, dataID, jobName, jobGroup, environment, doc)
		return
	}

	s.updateFromDocument(ctx, dataID, existing.ID, doc)
}

// createFromDocument handles a push for a job with no database row yet
func (s *Service) createFromDocument(ctx context.Context, dataID, jobName, jobGroup, environment string, doc *models.JobConfigDocument) {
	// The data id is authoritative for identity; fill what the document omits
	if doc.JobName == nil {
		doc.JobName = &jobName
	}
	if doc.JobGroup == nil {
		doc.JobGroup = &jobGroup
	}
	if doc.Environment == nil {
		doc.Environment = &environment
	}

	cfg, err := doc.NewJobConfig()
	if err != nil {
		s.logger.Warn().Err(err).Str("data_id", dataID).Msg("Document cannot seed a new job config, push dropped")
		return
	}
	if cfg.JobName != jobName || cfg.JobGroup != jobGroup || cfg.Environment != environment {
		s.logger.Warn().
			Str("data_id", dataID).
			Str("document_key", cfg.NaturalKey()).
			Msg("Document identity disagrees with its data id, push dropped")
		return
	}

	if err := s.storage.Save(ctx, cfg); err != nil {
		s.logger.Error().Err(err).Str("data_id", dataID).Msg("Failed to persist new job config from push")
		return
	}

	s.logger.Info().
		Int64("job_id", cfg.ID).
		Str("job_name", cfg.JobName).
		Str("status", string(cfg.Status)).
		Msg("Job config created from config store push")

	s.applyScheduling(nil, cfg)
}

// updateFromDocument overlays a push onto the current database row
func (s *Service) updateFromDocument(ctx context.Context, dataID string, jobID int64, doc *models.JobConfigDocument) {
	// Re-read by id so the overlay starts from the freshest row
	cfg, err := s.storage.GetByID(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("data_id", dataID).Msg("Job re-read failed, push dropped")
		return
	}

	previous := cfg.Clone()
	doc.ApplyTo(cfg)

	if err := cfg.Validate(); err != nil {
		s.logger.Warn().Err(err).Str("data_id", dataID).Msg("Overlaid config is invalid, push dropped")
		return
	}

	if err := s.storage.Update(ctx, cfg); err != nil {
		s.logger.Error().Err(err).Str("data_id", dataID).Msg("Failed to persist reconciled job config")
		return
	}

	s.logger.Info().
		Int64("job_id", cfg.ID).
		Str("job_name", cfg.JobName).
		Str("status", string(cfg.Status)).
		Msg("Job config reconciled from config store push")

	s.applyScheduling(previous, cfg)
}

// applyScheduling maps the persisted desired state onto the live
// scheduler. previous is nil for a freshly created row.
func (s *Service) applyScheduling(previous, cfg *models.JobConfig) {
	switch cfg.Status {
	case models.JobStatusStopped:
		s.scheduler.RemoveJob(cfg.ID)

	case models.JobStatusPaused:
		s.scheduler.PauseJob(cfg.ID)

	case models.JobStatusRunning:
		if !s.scheduler.HasJob(cfg.ID) {
			if err := s.scheduler.AddJob(cfg); err != nil {
				s.logger.Error().Err(err).Int64("job_id", cfg.ID).Msg("Failed to schedule reconciled job")
			}
			return
		}
		if previous != nil && scheduleChanged(previous, cfg) {
			if err := s.scheduler.UpdateJob(cfg); err != nil {
				s.logger.Error().Err(err).Int64("job_id", cfg.ID).Msg("Failed to reschedule reconciled job")
			}
			return
		}
		// Covers PAUSED -> RUNNING; no-op when the handle is already firing
		s.scheduler.ResumeJob(cfg.ID)
	}
}

// scheduleChanged reports whether the change affects what or when the
// handle fires.
func scheduleChanged(previous, cfg *models.JobConfig) bool {
	if previous.CronExpression != cfg.CronExpression {
		return true
	}
	if previous.JobType != cfg.JobType {
		return true
	}
	if previous.JobClass != cfg.JobClass {
		return true
	}
	prevParams, _ := previous.MarshalParams()
	newParams, _ := cfg.MarshalParams()
	return prevParams != newParams
}
