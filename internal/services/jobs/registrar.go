package jobs

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
	"github.com/ternarybob/cadence/internal/services/configstore"
)

// Registrar reconciles every registered job implementation at process
// start: merge registration metadata with the database row, persist the
// effective config, publish it to the config store, subscribe the change
// listener, and hand RUNNING jobs to the scheduler.
type Registrar struct {
	registry    *Registry
	storage     interfaces.JobConfigStorage
	configStore *configstore.Service
	scheduler   interfaces.SchedulerManager
	onChange    interfaces.ConfigListener
	environment string
	defaults    common.SchedulerConfig
	logger      arbor.ILogger
}

// NewRegistrar creates a registrar. onChange is the reconciler callback
// subscribed to every job document. defaults fills in group and retry
// settings for jobs that register without them.
func NewRegistrar(registry *Registry, storage interfaces.JobConfigStorage, configStore *configstore.Service, scheduler interfaces.SchedulerManager, onChange interfaces.ConfigListener, environment string, defaults common.SchedulerConfig, logger arbor.ILogger) *Registrar {
	return &Registrar{
		registry:    registry,
		storage:     storage,
		configStore: configStore,
		scheduler:   scheduler,
		onChange:    onChange,
		environment: environment,
		defaults:    defaults,
		logger:      logger,
	}
}

// SyncAll registers every job implementation. A failure syncs only that
// job; the rest still register.
func (r *Registrar) SyncAll(ctx context.Context) {
	registrations := r.registry.List()

	synced := 0
	for _, reg := range registrations {
		if err := r.syncOne(ctx, reg); err != nil {
			r.logger.Error().
				Err(err).
				Str("job_class", reg.JobClass).
				Msg("Job registration failed, skipping")
			continue
		}
		synced++
	}

	r.logger.Info().
		Int("registered", synced).
		Int("total", len(registrations)).
		Msg("Job registrations synced")
}

func (r *Registrar) syncOne(ctx context.Context, reg *Registration) error {
	meta := r.effectiveMetadata(reg)

	environment := meta.Environment
	if environment == "" {
		environment = r.environment
	}
	jobGroup := meta.JobGroup
	if jobGroup == "" {
		jobGroup = r.defaultGroup()
	}

	var cfg *models.JobConfig
	if meta.loadFromDatabase() {
		existing, err := r.storage.GetByNaturalKey(ctx, meta.JobName, jobGroup, environment)
		if err != nil {
			return err
		}
		cfg = existing
	}

	if cfg == nil {
		cfg = r.configFromMetadata(meta, reg.JobClass, jobGroup, environment)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := r.storage.Save(ctx, cfg); err != nil {
			return err
		}
		r.logger.Info().
			Int64("job_id", cfg.ID).
			Str("job_name", cfg.JobName).
			Str("status", string(cfg.Status)).
			Msg("Job config created from registration defaults")
	} else if cfg.JobClass != reg.JobClass {
		// The row is authoritative for everything except the class
		// binding, which must always point at the live implementation.
		cfg.JobClass = reg.JobClass
		if err := r.storage.Update(ctx, cfg); err != nil {
			return err
		}
		r.logger.Info().
			Int64("job_id", cfg.ID).
			Str("job_class", reg.JobClass).
			Msg("Job class rebound to live implementation")
	}

	document, err := cfg.MarshalDocument()
	if err != nil {
		return err
	}
	if !r.configStore.PublishConfig(ctx, document, cfg.DataID(), r.configStore.Group()) {
		r.logger.Warn().
			Str("data_id", cfg.DataID()).
			Msg("Job document publish failed, config store will converge on next push")
	}

	if err := r.configStore.Subscribe(cfg.DataID(), r.onChange); err != nil {
		r.logger.Warn().
			Err(err).
			Str("data_id", cfg.DataID()).
			Msg("Job document subscription deferred")
	}

	if meta.autoStart() && cfg.Status == models.JobStatusRunning {
		if err := r.scheduler.AddJob(cfg); err != nil {
			r.logger.Warn().
				Err(err).
				Int64("job_id", cfg.ID).
				Msg("Job already scheduled, skipping add")
		}
	}

	return nil
}

// effectiveMetadata returns the registration's metadata, or synthesises
// defaults for an implementation that registered without any: the class
// identifier becomes both name and group, the job never auto-starts.
func (r *Registrar) effectiveMetadata(reg *Registration) *Metadata {
	if reg.Meta != nil {
		return reg.Meta
	}

	off := false
	return &Metadata{
		JobName:   reg.JobClass,
		JobGroup:  reg.JobClass,
		JobType:   models.JobTypeQuartz,
		AutoStart: &off,
	}
}

func (r *Registrar) configFromMetadata(meta *Metadata, jobClass, jobGroup, environment string) *models.JobConfig {
	jobType := meta.JobType
	if jobType == "" {
		jobType = models.JobTypeQuartz
	}

	status := models.JobStatusStopped
	if meta.autoStart() && meta.CronExpression != "" {
		status = models.JobStatusRunning
	}

	return &models.JobConfig{
		JobName:        meta.JobName,
		JobGroup:       jobGroup,
		Environment:    environment,
		JobType:        jobType,
		JobClass:       jobClass,
		CronExpression: meta.CronExpression,
		JobParams:      meta.JobParams,
		Description:    meta.Description,
		Status:         status,
		RetryCount:     r.defaultRetryCount(),
		RetryInterval:  r.defaultRetryInterval(),
		Creator:        "registrar",
		Modifier:       "registrar",
	}
}

func (r *Registrar) defaultGroup() string {
	if r.defaults.DefaultJobGroup != "" {
		return r.defaults.DefaultJobGroup
	}
	return models.DefaultJobGroup
}

func (r *Registrar) defaultRetryCount() int {
	if r.defaults.DefaultRetryCount > 0 {
		return r.defaults.DefaultRetryCount
	}
	return models.DefaultRetryCount
}

func (r *Registrar) defaultRetryInterval() int {
	if r.defaults.DefaultRetryInterval > 0 {
		return r.defaults.DefaultRetryInterval
	}
	return models.DefaultRetryInterval
}
