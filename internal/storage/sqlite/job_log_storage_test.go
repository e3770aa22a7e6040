package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/models"
)

func testJobLog(jobID int64, executionID string) *models.JobLog {
	return &models.JobLog{
		JobID:       jobID,
		JobName:     "order-sync",
		JobGroup:    "orders",
		ExecutionID: executionID,
		StartTime:   time.Now(),
		Status:      models.JobLogStatusRunning,
		ServerIP:    "127.0.0.1",
		ServerName:  "test-host",
	}
}

func TestJobLogStorage_SaveAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewJobLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	jobLog := testJobLog(1, "exec-1")
	require.NoError(t, storage.SaveLog(ctx, jobLog))
	assert.Greater(t, jobLog.ID, int64(0))

	stored, err := storage.GetLogByID(ctx, jobLog.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.JobLogStatusRunning, stored.Status)
	assert.Nil(t, stored.EndTime)

	byExec, err := storage.GetLogByExecutionID(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, byExec)
	assert.Equal(t, jobLog.ID, byExec.ID)

	missing, err := storage.GetLogByExecutionID(ctx, "exec-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestJobLogStorage_ExecutionIDUnique(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewJobLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveLog(ctx, testJobLog(1, "exec-1")))
	assert.Error(t, storage.SaveLog(ctx, testJobLog(1, "exec-1")))
}

func TestJobLogStorage_UpdateToTerminal(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewJobLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	jobLog := testJobLog(1, "exec-1")
	require.NoError(t, storage.SaveLog(ctx, jobLog))

	end := jobLog.StartTime.Add(1500 * time.Millisecond)
	jobLog.EndTime = &end
	jobLog.Duration = 1500
	jobLog.Status = models.JobLogStatusSuccess
	jobLog.RetryCount = 1
	jobLog.AppendLog("done")
	require.NoError(t, storage.UpdateLog(ctx, jobLog))

	stored, err := storage.GetLogByID(ctx, jobLog.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobLogStatusSuccess, stored.Status)
	assert.Equal(t, int64(1500), stored.Duration)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.EndTime)
	assert.Contains(t, stored.ExecutionLog, "done")
}

func TestJobLogStorage_ListNewestFirst(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewJobLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		jobLog := testJobLog(7, fmt.Sprintf("exec-%d", i))
		jobLog.StartTime = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, storage.SaveLog(ctx, jobLog))
	}

	logs, err := storage.ListLogsByJobID(ctx, 7, 3)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "exec-4", logs[0].ExecutionID)
	assert.Equal(t, "exec-2", logs[2].ExecutionID)

	// Other jobs are invisible
	logs, err = storage.ListLogsByJobID(ctx, 8, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestJobLogStorage_FailRunningLogs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewJobLogStorage(db, arbor.NewLogger())
	ctx := context.Background()

	running := testJobLog(1, "exec-running")
	require.NoError(t, storage.SaveLog(ctx, running))

	done := testJobLog(1, "exec-done")
	done.Status = models.JobLogStatusSuccess
	require.NoError(t, storage.SaveLog(ctx, done))

	count, err := storage.FailRunningLogs(ctx, "process restarted before execution completed")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := storage.GetLogByExecutionID(ctx, "exec-running")
	require.NoError(t, err)
	assert.Equal(t, models.JobLogStatusFailed, stored.Status)
	require.NotNil(t, stored.EndTime)
	assert.Contains(t, stored.ErrorMessage, "process restarted")

	untouched, err := storage.GetLogByExecutionID(ctx, "exec-done")
	require.NoError(t, err)
	assert.Equal(t, models.JobLogStatusSuccess, untouched.Status)

	// Second sweep finds nothing
	count, err = storage.FailRunningLogs(ctx, "again")
	require.NoError(t, err)
	assert.Zero(t, count)
}
