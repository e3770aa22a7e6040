package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
)

func noopJob() interfaces.Job {
	return interfaces.JobFunc(func(ctx context.Context, job *interfaces.JobContext) error {
		return nil
	})
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	require.NoError(t, registry.RegisterWithMetadata("jobs.OrderSyncJob", noopJob(), Metadata{
		JobName:        "order-sync",
		CronExpression: "0 */5 * * * ?",
	}))

	job, ok := registry.Lookup("jobs.OrderSyncJob")
	assert.True(t, ok)
	assert.NotNil(t, job)

	_, ok = registry.Lookup("jobs.Unknown")
	assert.False(t, ok)
}

func TestRegistry_DuplicateIgnored(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	first := noopJob()
	require.NoError(t, registry.Register("jobs.OrderSyncJob", first))
	require.NoError(t, registry.Register("jobs.OrderSyncJob", noopJob()))

	assert.Len(t, registry.List(), 1)
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	assert.Error(t, registry.Register("", noopJob()))
	assert.Error(t, registry.Register("jobs.NilJob", nil))
	assert.Error(t, registry.RegisterWithMetadata("jobs.NoName", noopJob(), Metadata{}))
	assert.Error(t, registry.RegisterWithMetadata("jobs.BadType", noopJob(), Metadata{
		JobName: "bad-type",
		JobType: "MANUAL",
	}))
}

func TestRegistry_ListPreservesOrder(t *testing.T) {
	registry := NewRegistry(arbor.NewLogger())

	classes := []string{"jobs.A", "jobs.B", "jobs.C"}
	for _, class := range classes {
		require.NoError(t, registry.Register(class, noopJob()))
	}

	list := registry.List()
	require.Len(t, list, 3)
	for i, reg := range list {
		assert.Equal(t, classes[i], reg.JobClass)
	}
}

func TestMetadata_PointerDefaults(t *testing.T) {
	meta := &Metadata{JobName: "order-sync"}
	assert.True(t, meta.autoStart())
	assert.True(t, meta.loadFromDatabase())

	off := false
	meta.AutoStart = &off
	meta.LoadFromDatabase = &off
	assert.False(t, meta.autoStart())
	assert.False(t, meta.loadFromDatabase())
}

func TestMetadata_TypeValidation(t *testing.T) {
	assert.True(t, models.IsValidJobType(models.JobTypeQuartz))
	assert.True(t, models.IsValidJobType(models.JobTypeExternal))
	assert.False(t, models.IsValidJobType("MANUAL"))
}
