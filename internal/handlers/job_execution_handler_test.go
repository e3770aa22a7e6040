package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
	"github.com/ternarybob/cadence/internal/storage/sqlite"
)

// stubExecutor returns a canned result and records invocations
type stubExecutor struct {
	result interfaces.ExecutionResult
	calls  int
}

func (s *stubExecutor) Execute(ctx context.Context, cfg *models.JobConfig) interfaces.ExecutionResult {
	s.calls++
	return s.result
}

type executionFixture struct {
	handler  *JobExecutionHandler
	storage  interfaces.JobConfigStorage
	logs     interfaces.JobLogStorage
	executor *stubExecutor
}

func setupExecutionHandler(t *testing.T) *executionFixture {
	t.Helper()

	db, err := sqlite.NewSQLiteDB(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "cadence-test.db"),
		CacheSizeMB:   8,
		BusyTimeoutMS: 1000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage := sqlite.NewJobConfigStorage(db, arbor.NewLogger())
	logs := sqlite.NewJobLogStorage(db, arbor.NewLogger())
	executor := &stubExecutor{result: interfaces.ExecutionResult{Success: true}}
	handler := NewJobExecutionHandler(storage, logs, executor, arbor.NewLogger())

	return &executionFixture{handler: handler, storage: storage, logs: logs, executor: executor}
}

func (f *executionFixture) seedJob(t *testing.T) *models.JobConfig {
	t.Helper()
	cfg := &models.JobConfig{
		JobName:        "order-sync",
		JobGroup:       "orders",
		Environment:    "test",
		JobType:        models.JobTypeQuartz,
		JobClass:       "jobs.OrderSyncJob",
		CronExpression: "0 */5 * * * ?",
		Status:         models.JobStatusRunning,
	}
	require.NoError(t, f.storage.Save(context.Background(), cfg))
	return cfg
}

func (f *executionFixture) seedLog(t *testing.T, jobID int64, executionID string, status models.JobLogStatus, duration int64) *models.JobLog {
	t.Helper()
	jobLog := &models.JobLog{
		JobID:       jobID,
		JobName:     "order-sync",
		JobGroup:    "orders",
		ExecutionID: executionID,
		StartTime:   time.Now(),
		Status:      status,
		Duration:    duration,
	}
	require.NoError(t, f.logs.SaveLog(context.Background(), jobLog))
	return jobLog
}

func TestExecuteHandler(t *testing.T) {
	f := setupExecutionHandler(t)
	cfg := f.seedJob(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/1/execute", nil)
	rec := httptest.NewRecorder()
	f.handler.ExecuteHandler(rec, req, cfg.ID)

	result := decodeResult(t, rec)
	require.Equal(t, resultCodeOK, result.Code)
	assert.Equal(t, 1, f.executor.calls)

	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, "order-sync", data["jobName"])
}

func TestExecuteHandler_UnknownJob(t *testing.T) {
	f := setupExecutionHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/999/execute", nil)
	rec := httptest.NewRecorder()
	f.handler.ExecuteHandler(rec, req, 999)

	result := decodeResult(t, rec)
	assert.Equal(t, resultCodeFail, result.Code)
	assert.Zero(t, f.executor.calls)
}

func TestLogsHandler(t *testing.T) {
	f := setupExecutionHandler(t)
	cfg := f.seedJob(t)
	f.seedLog(t, cfg.ID, "exec-1", models.JobLogStatusSuccess, 100)
	f.seedLog(t, cfg.ID, "exec-2", models.JobLogStatusFailed, 300)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/1/logs?limit=10", nil)
	rec := httptest.NewRecorder()
	f.handler.LogsHandler(rec, req, cfg.ID)

	result := decodeResult(t, rec)
	require.Equal(t, resultCodeOK, result.Code)
	items, ok := result.Data.([]any)
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestLogByExecutionIDHandler(t *testing.T) {
	f := setupExecutionHandler(t)
	cfg := f.seedJob(t)
	f.seedLog(t, cfg.ID, "exec-1", models.JobLogStatusSuccess, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/logs/execution/exec-1", nil)
	rec := httptest.NewRecorder()
	f.handler.LogByExecutionIDHandler(rec, req, "exec-1")

	result := decodeResult(t, rec)
	require.Equal(t, resultCodeOK, result.Code)

	rec = httptest.NewRecorder()
	f.handler.LogByExecutionIDHandler(rec, req, "exec-missing")
	result = decodeResult(t, rec)
	assert.Equal(t, resultCodeFail, result.Code)
}

func TestStatisticsHandler(t *testing.T) {
	f := setupExecutionHandler(t)
	cfg := f.seedJob(t)
	f.seedLog(t, cfg.ID, "exec-1", models.JobLogStatusSuccess, 100)
	f.seedLog(t, cfg.ID, "exec-2", models.JobLogStatusSuccess, 300)
	f.seedLog(t, cfg.ID, "exec-3", models.JobLogStatusFailed, 200)
	f.seedLog(t, cfg.ID, "exec-4", models.JobLogStatusRunning, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/1/statistics", nil)
	rec := httptest.NewRecorder()
	f.handler.StatisticsHandler(rec, req, cfg.ID)

	result := decodeResult(t, rec)
	require.Equal(t, resultCodeOK, result.Code)

	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(4), data["totalCount"])
	assert.Equal(t, float64(2), data["successCount"])
	assert.Equal(t, float64(1), data["failedCount"])

	// Percentage over all four sampled rows, RUNNING included
	assert.InDelta(t, 50.0, data["successRate"], 0.001)

	// Duration average over the three finished rows only
	assert.Equal(t, float64(200), data["avgDuration"])
}

func TestStatisticsHandler_NoLogs(t *testing.T) {
	f := setupExecutionHandler(t)
	cfg := f.seedJob(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/1/statistics", nil)
	rec := httptest.NewRecorder()
	f.handler.StatisticsHandler(rec, req, cfg.ID)

	result := decodeResult(t, rec)
	require.Equal(t, resultCodeOK, result.Code)

	data, ok := result.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), data["totalCount"])
	assert.Equal(t, float64(0), data["successRate"])
	assert.Equal(t, float64(0), data["avgDuration"])
}
