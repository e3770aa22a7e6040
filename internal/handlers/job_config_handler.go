package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
	"github.com/ternarybob/cadence/internal/services/configstore"
)

// JobConfigHandler serves job configuration CRUD and lifecycle
// operations. Writes go to the database first, then mirror to the
// scheduler and the config store; the config store publish is
// best-effort and converges via reconciliation.
type JobConfigHandler struct {
	storage     interfaces.JobConfigStorage
	scheduler   interfaces.SchedulerManager
	configStore *configstore.Service
	onChange    interfaces.ConfigListener
	environment string
	defaults    common.SchedulerConfig
	logger      arbor.ILogger
}

// NewJobConfigHandler creates a job config handler. onChange is the
// reconciler callback subscribed to documents of newly created jobs.
func NewJobConfigHandler(storage interfaces.JobConfigStorage, scheduler interfaces.SchedulerManager, configStore *configstore.Service, onChange interfaces.ConfigListener, environment string, defaults common.SchedulerConfig, logger arbor.ILogger) *JobConfigHandler {
	return &JobConfigHandler{
		storage:     storage,
		scheduler:   scheduler,
		configStore: configStore,
		onChange:    onChange,
		environment: environment,
		defaults:    defaults,
		logger:      logger,
	}
}

// ListHandler handles GET /api/jobs with optional status and environment filters
func (h *JobConfigHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	environment := r.URL.Query().Get("environment")
	if environment == "" {
		environment = h.environment
	}

	var (
		configs []*models.JobConfig
		err     error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		if !models.IsValidJobStatus(models.JobStatus(status)) {
			WriteFailure(w, "invalid field status: %s", status)
			return
		}
		configs, err = h.storage.ListByStatus(r.Context(), models.JobStatus(status), environment)
	} else {
		configs, err = h.storage.ListAll(r.Context(), environment)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Job list query failed")
		WriteFailure(w, "failed to list jobs: %v", err)
		return
	}

	if configs == nil {
		configs = []*models.JobConfig{}
	}
	WriteResult(w, configs)
}

// CreateHandler handles POST /api/jobs
func (h *JobConfigHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var cfg models.JobConfig
	if err := DecodeJSON(r, &cfg); err != nil {
		WriteFailure(w, "%v", err)
		return
	}

	if cfg.JobGroup == "" {
		cfg.JobGroup = h.defaultGroup()
	}
	if cfg.Environment == "" {
		cfg.Environment = h.environment
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = h.defaultRetryCount()
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = h.defaultRetryInterval()
	}

	if err := cfg.Validate(); err != nil {
		WriteFailure(w, "%v", err)
		return
	}

	existing, err := h.storage.GetByNaturalKey(r.Context(), cfg.JobName, cfg.JobGroup, cfg.Environment)
	if err != nil {
		WriteFailure(w, "failed to check job existence: %v", err)
		return
	}
	if existing != nil {
		WriteFailure(w, "job %s already exists", cfg.NaturalKey())
		return
	}

	if err := h.storage.Save(r.Context(), &cfg); err != nil {
		h.logger.Error().Err(err).Str("job_name", cfg.JobName).Msg("Job create failed")
		WriteFailure(w, "failed to create job: %v", err)
		return
	}

	h.publishAndSubscribe(r.Context(), &cfg)

	if cfg.Status == models.JobStatusRunning {
		if err := h.scheduler.AddJob(&cfg); err != nil {
			h.logger.Warn().Err(err).Int64("job_id", cfg.ID).Msg("Created job could not be scheduled")
		}
	}

	h.logger.Info().
		Int64("job_id", cfg.ID).
		Str("job_name", cfg.JobName).
		Msg("Job created via management API")
	WriteResult(w, &cfg)
}

// GetHandler handles GET /api/jobs/{id}
func (h *JobConfigHandler) GetHandler(w http.ResponseWriter, r *http.Request, id int64) {
	cfg, err := h.storage.GetByID(r.Context(), id)
	if err != nil {
		WriteFailure(w, "failed to load job %d: %v", id, err)
		return
	}
	if cfg == nil {
		WriteFailure(w, "job %d not found", id)
		return
	}
	WriteResult(w, cfg)
}

// UpdateHandler handles PUT /api/jobs/{id}. The body is a partial
// document; only the keys it carries are overlaid onto the stored row.
func (h *JobConfigHandler) UpdateHandler(w http.ResponseWriter, r *http.Request, id int64) {
	var doc models.JobConfigDocument
	if err := DecodeJSON(r, &doc); err != nil {
		WriteFailure(w, "%v", err)
		return
	}

	cfg, err := h.storage.GetByID(r.Context(), id)
	if err != nil {
		WriteFailure(w, "failed to load job %d: %v", id, err)
		return
	}
	if cfg == nil {
		WriteFailure(w, "job %d not found", id)
		return
	}

	previous := cfg.Clone()
	doc.ApplyTo(cfg)

	if err := cfg.Validate(); err != nil {
		WriteFailure(w, "%v", err)
		return
	}

	if err := h.storage.Update(r.Context(), cfg); err != nil {
		h.logger.Error().Err(err).Int64("job_id", id).Msg("Job update failed")
		WriteFailure(w, "failed to update job: %v", err)
		return
	}

	h.publish(r.Context(), cfg)
	h.applyScheduling(previous, cfg)

	h.logger.Info().
		Int64("job_id", cfg.ID).
		Int64("version", cfg.Version).
		Msg("Job updated via management API")
	WriteResult(w, cfg)
}

// DeleteHandler handles DELETE /api/jobs/{id}
func (h *JobConfigHandler) DeleteHandler(w http.ResponseWriter, r *http.Request, id int64) {
	cfg, err := h.storage.GetByID(r.Context(), id)
	if err != nil {
		WriteFailure(w, "failed to load job %d: %v", id, err)
		return
	}
	if cfg == nil {
		WriteFailure(w, "job %d not found", id)
		return
	}

	h.scheduler.RemoveJob(id)

	if err := h.storage.Delete(r.Context(), id); err != nil {
		WriteFailure(w, "failed to delete job: %v", err)
		return
	}

	h.logger.Info().
		Int64("job_id", id).
		Str("job_name", cfg.JobName).
		Msg("Job deleted via management API")
	WriteResult(w, nil)
}

// StartHandler handles POST /api/jobs/{id}/start
func (h *JobConfigHandler) StartHandler(w http.ResponseWriter, r *http.Request, id int64) {
	h.transition(w, r, id, models.JobStatusRunning)
}

// StopHandler handles POST /api/jobs/{id}/stop
func (h *JobConfigHandler) StopHandler(w http.ResponseWriter, r *http.Request, id int64) {
	h.transition(w, r, id, models.JobStatusStopped)
}

// PauseHandler handles POST /api/jobs/{id}/pause
func (h *JobConfigHandler) PauseHandler(w http.ResponseWriter, r *http.Request, id int64) {
	h.transition(w, r, id, models.JobStatusPaused)
}

// ResumeHandler handles POST /api/jobs/{id}/resume
func (h *JobConfigHandler) ResumeHandler(w http.ResponseWriter, r *http.Request, id int64) {
	h.transition(w, r, id, models.JobStatusRunning)
}

// transition persists the desired status and mirrors it to the scheduler
func (h *JobConfigHandler) transition(w http.ResponseWriter, r *http.Request, id int64, status models.JobStatus) {
	cfg, err := h.storage.GetByID(r.Context(), id)
	if err != nil {
		WriteFailure(w, "failed to load job %d: %v", id, err)
		return
	}
	if cfg == nil {
		WriteFailure(w, "job %d not found", id)
		return
	}

	previous := cfg.Clone()
	cfg.Status = status

	if err := cfg.Validate(); err != nil {
		WriteFailure(w, "%v", err)
		return
	}

	if err := h.storage.Update(r.Context(), cfg); err != nil {
		WriteFailure(w, "failed to update job status: %v", err)
		return
	}

	h.publish(r.Context(), cfg)
	h.applyScheduling(previous, cfg)

	h.logger.Info().
		Int64("job_id", id).
		Str("status", string(status)).
		Msg("Job lifecycle transition via management API")
	WriteResult(w, cfg)
}

// applyScheduling maps the persisted desired state onto the live scheduler
func (h *JobConfigHandler) applyScheduling(previous, cfg *models.JobConfig) {
	switch cfg.Status {
	case models.JobStatusStopped:
		h.scheduler.RemoveJob(cfg.ID)

	case models.JobStatusPaused:
		h.scheduler.PauseJob(cfg.ID)

	case models.JobStatusRunning:
		if !h.scheduler.HasJob(cfg.ID) {
			if err := h.scheduler.AddJob(cfg); err != nil {
				h.logger.Error().Err(err).Int64("job_id", cfg.ID).Msg("Failed to schedule job")
			}
			return
		}
		if previous.CronExpression != cfg.CronExpression || previous.JobType != cfg.JobType || previous.JobClass != cfg.JobClass {
			if err := h.scheduler.UpdateJob(cfg); err != nil {
				h.logger.Error().Err(err).Int64("job_id", cfg.ID).Msg("Failed to reschedule job")
			}
			return
		}
		h.scheduler.ResumeJob(cfg.ID)
	}
}

// publish pushes the current row to the config store, best-effort
func (h *JobConfigHandler) publish(ctx context.Context, cfg *models.JobConfig) {
	document, err := cfg.MarshalDocument()
	if err != nil {
		h.logger.Warn().Err(err).Int64("job_id", cfg.ID).Msg("Job document marshal failed")
		return
	}
	if !h.configStore.PublishConfig(ctx, document, cfg.DataID(), h.configStore.Group()) {
		h.logger.Warn().
			Str("data_id", cfg.DataID()).
			Msg("Job document publish failed, config store will converge later")
	}
}

// publishAndSubscribe publishes a new job's document and registers the
// reconciler for subsequent pushes.
func (h *JobConfigHandler) publishAndSubscribe(ctx context.Context, cfg *models.JobConfig) {
	h.publish(ctx, cfg)

	if err := h.configStore.Subscribe(cfg.DataID(), h.onChange); err != nil {
		h.logger.Warn().
			Err(err).
			Str("data_id", cfg.DataID()).
			Msg("Job document subscription deferred")
	}
}

func (h *JobConfigHandler) defaultGroup() string {
	if h.defaults.DefaultJobGroup != "" {
		return h.defaults.DefaultJobGroup
	}
	return models.DefaultJobGroup
}

func (h *JobConfigHandler) defaultRetryCount() int {
	if h.defaults.DefaultRetryCount > 0 {
		return h.defaults.DefaultRetryCount
	}
	return models.DefaultRetryCount
}

func (h *JobConfigHandler) defaultRetryInterval() int {
	if h.defaults.DefaultRetryInterval > 0 {
		return h.defaults.DefaultRetryInterval
	}
	return models.DefaultRetryInterval
}
