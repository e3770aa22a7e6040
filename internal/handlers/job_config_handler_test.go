package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
	"github.com/ternarybob/cadence/internal/services/configstore"
	"github.com/ternarybob/cadence/internal/storage/sqlite"
)

// stubScheduler tracks live handles for handler tests
type stubScheduler struct {
	mu      sync.Mutex
	handles map[int64]bool
}

func newStubScheduler() *stubScheduler {
	return &stubScheduler{handles: make(map[int64]bool)}
}

func (s *stubScheduler) AddJob(cfg *models.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles[cfg.ID] {
		return common.SchedulerError("job %d is already scheduled", cfg.ID)
	}
	s.handles[cfg.ID] = true
	return nil
}

func (s *stubScheduler) UpdateJob(cfg *models.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[cfg.ID] = true
	return nil
}

func (s *stubScheduler) RemoveJob(jobID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, jobID)
}

func (s *stubScheduler) PauseJob(jobID int64)  {}
func (s *stubScheduler) ResumeJob(jobID int64) {}

func (s *stubScheduler) HasJob(jobID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[jobID]
}

func (s *stubScheduler) JobIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	return ids
}

func (s *stubScheduler) Stop() {}

var _ interfaces.SchedulerManager = (*stubScheduler)(nil)

type handlerFixture struct {
	handler   *JobConfigHandler
	storage   interfaces.JobConfigStorage
	scheduler *stubScheduler
}

func setupJobConfigHandler(t *testing.T) *handlerFixture {
	t.Helper()

	db, err := sqlite.NewSQLiteDB(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "cadence-test.db"),
		CacheSizeMB:   8,
		BusyTimeoutMS: 1000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := configstore.NewService(configstore.NewMemoryClient(), &common.ConfigStoreConfig{
		Namespace:      "public",
		Group:          "DEFAULT_GROUP",
		DataID:         "cadence.properties.json",
		Format:         "json",
		TimeoutMS:      1000,
		RequestsPerSec: 10,
	}, arbor.NewLogger())
	t.Cleanup(func() { store.Close() })

	storage := sqlite.NewJobConfigStorage(db, arbor.NewLogger())
	scheduler := newStubScheduler()
	handler := NewJobConfigHandler(storage, scheduler, store,
		func(dataID, content string) {}, "test", common.SchedulerConfig{}, arbor.NewLogger())

	return &handlerFixture{handler: handler, storage: storage, scheduler: scheduler}
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result {
	t.Helper()
	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

const createBody = `{
	"jobName": "order-sync",
	"jobGroup": "orders",
	"jobType": "QUARTZ",
	"jobClass": "jobs.OrderSyncJob",
	"cronExpression": "0 */5 * * * ?",
	"status": "RUNNING"
}`

func (f *handlerFixture) create(t *testing.T) *models.JobConfig {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(createBody))
	rec := httptest.NewRecorder()
	f.handler.CreateHandler(rec, req)

	result := decodeResult(t, rec)
	require.Equal(t, resultCodeOK, result.Code, result.Message)

	cfg, err := f.storage.GetByNaturalKey(context.Background(), "order-sync", "orders", "test")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	return cfg
}

func TestCreateHandler(t *testing.T) {
	f := setupJobConfigHandler(t)

	cfg := f.create(t)
	assert.Equal(t, models.JobStatusRunning, cfg.Status)
	assert.Equal(t, models.DefaultRetryCount, cfg.RetryCount)
	assert.True(t, f.scheduler.HasJob(cfg.ID))
}

func TestCreateHandler_Duplicate(t *testing.T) {
	f := setupJobConfigHandler(t)
	f.create(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(createBody))
	rec := httptest.NewRecorder()
	f.handler.CreateHandler(rec, req)

	result := decodeResult(t, rec)
	assert.Equal(t, resultCodeFail, result.Code)
	assert.Contains(t, result.Message, "already exists")
}

func TestCreateHandler_InvalidField(t *testing.T) {
	f := setupJobConfigHandler(t)

	body := strings.Replace(createBody, "QUARTZ", "MANUAL", 1)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.CreateHandler(rec, req)

	result := decodeResult(t, rec)
	assert.Equal(t, resultCodeFail, result.Code)
	assert.Contains(t, result.Message, "JobType")
}

func TestGetHandler_NotFound(t *testing.T) {
	f := setupJobConfigHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/999", nil)
	rec := httptest.NewRecorder()
	f.handler.GetHandler(rec, req, 999)

	result := decodeResult(t, rec)
	assert.Equal(t, resultCodeFail, result.Code)
	assert.Contains(t, result.Message, "not found")
}

func TestUpdateHandler_PartialOverlay(t *testing.T) {
	f := setupJobConfigHandler(t)
	cfg := f.create(t)

	req := httptest.NewRequest(http.MethodPut, "/api/jobs/1",
		strings.NewReader(`{"retryCount": 7}`))
	rec := httptest.NewRecorder()
	f.handler.UpdateHandler(rec, req, cfg.ID)

	result := decodeResult(t, rec)
	require.Equal(t, resultCodeOK, result.Code, result.Message)

	stored, err := f.storage.GetByID(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stored.RetryCount)
	assert.Equal(t, "0 */5 * * * ?", stored.CronExpression)
}

func TestLifecycleHandlers(t *testing.T) {
	f := setupJobConfigHandler(t)
	cfg := f.create(t)

	post := func(handler func(http.ResponseWriter, *http.Request, int64)) Result {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs/1/x", nil)
		rec := httptest.NewRecorder()
		handler(rec, req, cfg.ID)
		return decodeResult(t, rec)
	}

	result := post(f.handler.StopHandler)
	require.Equal(t, resultCodeOK, result.Code, result.Message)
	assert.False(t, f.scheduler.HasJob(cfg.ID))

	stored, _ := f.storage.GetByID(context.Background(), cfg.ID)
	assert.Equal(t, models.JobStatusStopped, stored.Status)

	result = post(f.handler.StartHandler)
	require.Equal(t, resultCodeOK, result.Code, result.Message)
	assert.True(t, f.scheduler.HasJob(cfg.ID))

	result = post(f.handler.PauseHandler)
	require.Equal(t, resultCodeOK, result.Code, result.Message)
	stored, _ = f.storage.GetByID(context.Background(), cfg.ID)
	assert.Equal(t, models.JobStatusPaused, stored.Status)

	result = post(f.handler.ResumeHandler)
	require.Equal(t, resultCodeOK, result.Code, result.Message)
	stored, _ = f.storage.GetByID(context.Background(), cfg.ID)
	assert.Equal(t, models.JobStatusRunning, stored.Status)
}

func TestDeleteHandler(t *testing.T) {
	f := setupJobConfigHandler(t)
	cfg := f.create(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/jobs/1", nil)
	rec := httptest.NewRecorder()
	f.handler.DeleteHandler(rec, req, cfg.ID)

	result := decodeResult(t, rec)
	require.Equal(t, resultCodeOK, result.Code, result.Message)
	assert.False(t, f.scheduler.HasJob(cfg.ID))

	stored, err := f.storage.GetByID(context.Background(), cfg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestListHandler(t *testing.T) {
	f := setupJobConfigHandler(t)
	f.create(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=RUNNING", nil)
	rec := httptest.NewRecorder()
	f.handler.ListHandler(rec, req)

	result := decodeResult(t, rec)
	require.Equal(t, resultCodeOK, result.Code)

	items, ok := result.Data.([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}
