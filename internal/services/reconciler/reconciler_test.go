package reconciler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
	"github.com/ternarybob/cadence/internal/storage/sqlite"
)

// fakeScheduler records lifecycle calls and tracks live handles
type fakeScheduler struct {
	mu      sync.Mutex
	handles map[int64]bool
	calls   []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{handles: make(map[int64]bool)}
}

func (f *fakeScheduler) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeScheduler) AddJob(cfg *models.JobConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handles[cfg.ID] {
		return common.SchedulerError("job %d is already scheduled", cfg.ID)
	}
	f.handles[cfg.ID] = true
	f.record("add")
	return nil
}

func (f *fakeScheduler) UpdateJob(cfg *models.JobConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles[cfg.ID] = true
	f.record("update")
	return nil
}

func (f *fakeScheduler) RemoveJob(jobID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, jobID)
	f.record("remove")
}

func (f *fakeScheduler) PauseJob(jobID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pause")
}

func (f *fakeScheduler) ResumeJob(jobID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("resume")
}

func (f *fakeScheduler) HasJob(jobID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[jobID]
}

func (f *fakeScheduler) JobIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.handles))
	for id := range f.handles {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeScheduler) Stop() {}

func (f *fakeScheduler) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

var _ interfaces.SchedulerManager = (*fakeScheduler)(nil)

func setupReconciler(t *testing.T) (*Service, interfaces.JobConfigStorage, *fakeScheduler) {
	t.Helper()

	db, err := sqlite.NewSQLiteDB(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "cadence-test.db"),
		CacheSizeMB:   8,
		BusyTimeoutMS: 1000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage := sqlite.NewJobConfigStorage(db, arbor.NewLogger())
	scheduler := newFakeScheduler()
	svc := NewService(storage, scheduler, "test", arbor.NewLogger())
	return svc, storage, scheduler
}

func seedJob(t *testing.T, storage interfaces.JobConfigStorage, status models.JobStatus) *models.JobConfig {
	t.Helper()
	cfg := &models.JobConfig{
		JobName:        "order-sync",
		JobGroup:       "orders",
		Environment:    "test",
		JobType:        models.JobTypeQuartz,
		JobClass:       "jobs.OrderSyncJob",
		CronExpression: "0 */5 * * * ?",
		Description:    "syncs orders",
		Status:         status,
		RetryCount:     3,
		RetryInterval:  60,
	}
	require.NoError(t, storage.Save(context.Background(), cfg))
	return cfg
}

const orderSyncDataID = "scheduler.job.order-sync.orders.test.json"

func TestOnChange_PartialOverlay(t *testing.T) {
	svc, storage, _ := setupReconciler(t)
	cfg := seedJob(t, storage, models.JobStatusRunning)

	svc.OnChange(orderSyncDataID, `{"retryCount": 5}`)

	stored, err := storage.GetByID(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.RetryCount)

	// Keys absent from the document are untouched
	assert.Equal(t, "0 */5 * * * ?", stored.CronExpression)
	assert.Equal(t, "syncs orders", stored.Description)
	assert.Equal(t, models.JobStatusRunning, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestOnChange_StatusTransitions(t *testing.T) {
	svc, storage, scheduler := setupReconciler(t)
	cfg := seedJob(t, storage, models.JobStatusRunning)
	require.NoError(t, scheduler.AddJob(cfg))

	svc.OnChange(orderSyncDataID, `{"status": "PAUSED"}`)
	assert.Equal(t, "pause", scheduler.lastCall())

	svc.OnChange(orderSyncDataID, `{"status": "RUNNING"}`)
	assert.Equal(t, "resume", scheduler.lastCall())

	svc.OnChange(orderSyncDataID, `{"status": "STOPPED"}`)
	assert.Equal(t, "remove", scheduler.lastCall())
	assert.False(t, scheduler.HasJob(cfg.ID))

	svc.OnChange(orderSyncDataID, `{"status": "RUNNING"}`)
	assert.Equal(t, "add", scheduler.lastCall())
	assert.True(t, scheduler.HasJob(cfg.ID))
}

func TestOnChange_CronChangeReschedules(t *testing.T) {
	svc, storage, scheduler := setupReconciler(t)
	cfg := seedJob(t, storage, models.JobStatusRunning)
	require.NoError(t, scheduler.AddJob(cfg))

	svc.OnChange(orderSyncDataID, `{"cronExpression": "0 0 3 * * ?"}`)
	assert.Equal(t, "update", scheduler.lastCall())

	stored, err := storage.GetByID(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 0 3 * * ?", stored.CronExpression)
}

func TestOnChange_CreatesRowForUnknownJob(t *testing.T) {
	svc, storage, scheduler := setupReconciler(t)

	svc.OnChange(orderSyncDataID, `{
		"jobName": "order-sync",
		"jobGroup": "orders",
		"environment": "test",
		"jobType": "QUARTZ",
		"jobClass": "jobs.OrderSyncJob",
		"cronExpression": "0 */10 * * * ?",
		"status": "RUNNING"
	}`)

	stored, err := storage.GetByNaturalKey(context.Background(), "order-sync", "orders", "test")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "0 */10 * * * ?", stored.CronExpression)
	assert.True(t, scheduler.HasJob(stored.ID))
}

func TestOnChange_InvalidDocumentDropped(t *testing.T) {
	svc, storage, _ := setupReconciler(t)
	cfg := seedJob(t, storage, models.JobStatusRunning)

	svc.OnChange(orderSyncDataID, `{"cronExpression": "* * * * *"}`)
	svc.OnChange(orderSyncDataID, `not json`)
	svc.OnChange(orderSyncDataID, "")

	stored, err := storage.GetByID(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, "0 */5 * * * ?", stored.CronExpression)
	assert.Equal(t, int64(1), stored.Version)
}

func TestOnChange_MalformedDataIDIgnored(t *testing.T) {
	svc, _, scheduler := setupReconciler(t)

	svc.OnChange("scheduler.job.broken.json", `{"status": "RUNNING"}`)
	svc.OnChange("unrelated.properties.json", `{"status": "RUNNING"}`)
	assert.Empty(t, scheduler.calls)
}

func TestOnChange_OtherEnvironmentIgnored(t *testing.T) {
	svc, storage, _ := setupReconciler(t)

	svc.OnChange("scheduler.job.order-sync.orders.prod.json", `{
		"jobName": "order-sync",
		"jobGroup": "orders",
		"environment": "prod",
		"jobType": "QUARTZ",
		"jobClass": "jobs.OrderSyncJob",
		"status": "STOPPED"
	}`)

	stored, err := storage.GetByNaturalKey(context.Background(), "order-sync", "orders", "prod")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestOnChange_IdentityMismatchDropped(t *testing.T) {
	svc, storage, _ := setupReconciler(t)

	svc.OnChange(orderSyncDataID, `{
		"jobName": "different-name",
		"jobGroup": "orders",
		"environment": "test",
		"jobType": "QUARTZ",
		"jobClass": "jobs.OrderSyncJob",
		"status": "STOPPED"
	}`)

	stored, err := storage.GetByNaturalKey(context.Background(), "different-name", "orders", "test")
	require.NoError(t, err)
	assert.Nil(t, stored)
}
