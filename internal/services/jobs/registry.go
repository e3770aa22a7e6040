// Package jobs provides the process-wide job implementation registry and
// the startup registrar that reconciles registered jobs against the
// database and the config store.
//
// Job implementations self-register under an opaque class identifier,
// typically from an init hook:
//
//	func init() {
//		jobs.Register("reports.DailyDigestJob", &DailyDigestJob{}, jobs.Metadata{
//			JobName:        "daily-digest",
//			CronExpression: "0 0 6 * * ?",
//			Description:    "Sends the daily digest email",
//		})
//	}
//
// The scheduler later resolves the implementation by the same identifier;
// no reflection is involved.
package jobs

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
)

// Metadata is the declarative configuration a job implementation carries
// with its registration. Zero values select the documented defaults.
type Metadata struct {
	JobName          string         // Required when metadata is provided
	JobGroup         string         // Default: "DEFAULT"
	JobType          models.JobType // Default: QUARTZ
	CronExpression   string
	Description      string
	JobParams        map[string]any
	Environment      string // Default: the active profile
	AutoStart        *bool  // Default: true
	LoadFromDatabase *bool  // Default: true
}

// autoStart resolves the pointer default
func (m *Metadata) autoStart() bool {
	return m.AutoStart == nil || *m.AutoStart
}

// loadFromDatabase resolves the pointer default
func (m *Metadata) loadFromDatabase() bool {
	return m.LoadFromDatabase == nil || *m.LoadFromDatabase
}

// Registration pairs a job implementation with its metadata
type Registration struct {
	JobClass string
	Job      interfaces.Job
	Meta     *Metadata // nil when the implementation registered without metadata
}

// Registry is the process-wide registration table mapping class
// identifiers to live job implementations.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Registration
	order   []string
	logger  arbor.ILogger
}

// NewRegistry creates an empty registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		entries: make(map[string]*Registration),
		logger:  logger,
	}
}

// Register adds a job implementation without metadata. The registrar
// synthesises defaults for it at startup.
func (r *Registry) Register(jobClass string, job interfaces.Job) error {
	return r.register(jobClass, job, nil)
}

// RegisterWithMetadata adds a job implementation with declarative
// configuration.
func (r *Registry) RegisterWithMetadata(jobClass string, job interfaces.Job, meta Metadata) error {
	if meta.JobName == "" {
		return fmt.Errorf("job name is required in metadata for %s", jobClass)
	}
	return r.register(jobClass, job, &meta)
}

func (r *Registry) register(jobClass string, job interfaces.Job, meta *Metadata) error {
	if jobClass == "" {
		return fmt.Errorf("job class cannot be empty")
	}
	if job == nil {
		return fmt.Errorf("job implementation cannot be nil")
	}
	if meta != nil && meta.JobType != "" && !models.IsValidJobType(meta.JobType) {
		return fmt.Errorf("invalid job type %s for %s", meta.JobType, jobClass)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Both the eager startup sweep and post-init hooks may attempt the
	// same registration; the second attempt for the same class is ignored.
	if _, exists := r.entries[jobClass]; exists {
		if r.logger != nil {
			r.logger.Debug().Str("job_class", jobClass).Msg("Duplicate job registration ignored")
		}
		return nil
	}

	r.entries[jobClass] = &Registration{JobClass: jobClass, Job: job, Meta: meta}
	r.order = append(r.order, jobClass)

	if r.logger != nil {
		name := jobClass
		if meta != nil {
			name = meta.JobName
		}
		r.logger.Info().
			Str("job_class", jobClass).
			Str("job_name", name).
			Msg("Job implementation registered")
	}

	return nil
}

// Lookup resolves a live job implementation by its class identifier
func (r *Registry) Lookup(jobClass string) (interfaces.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[jobClass]
	if !ok {
		return nil, false
	}
	return entry.Job, true
}

// List returns all registrations in registration order
func (r *Registry) List() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Registration, 0, len(r.order))
	for _, class := range r.order {
		result = append(result, r.entries[class])
	}
	return result
}

// defaultRegistry backs the package-level registration hooks
var defaultRegistry = NewRegistry(nil)

// Default returns the process-wide registry
func Default() *Registry {
	return defaultRegistry
}

// Register adds a job to the process-wide registry, for init hooks
func Register(jobClass string, job interfaces.Job, meta Metadata) {
	var err error
	if meta.JobName == "" {
		err = defaultRegistry.Register(jobClass, job)
	} else {
		err = defaultRegistry.RegisterWithMetadata(jobClass, job, meta)
	}
	if err != nil {
		panic(fmt.Sprintf("job registration failed for %s: %v", jobClass, err))
	}
}
