package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/models"
)

// statisticsSampleSize caps how many recent executions feed the
// per-job statistics.
const statisticsSampleSize = 100

// JobExecutionHandler serves manual execution, execution logs, and
// per-job statistics.
type JobExecutionHandler struct {
	storage  interfaces.JobConfigStorage
	logs     interfaces.JobLogStorage
	executor interfaces.JobExecutor
	logger   arbor.ILogger
}

// NewJobExecutionHandler creates an execution handler
func NewJobExecutionHandler(storage interfaces.JobConfigStorage, logs interfaces.JobLogStorage, executor interfaces.JobExecutor, logger arbor.ILogger) *JobExecutionHandler {
	return &JobExecutionHandler{
		storage:  storage,
		logs:     logs,
		executor: executor,
		logger:   logger,
	}
}

// ExecuteHandler handles POST /api/jobs/{id}/execute. The execution runs
// synchronously; the response carries the outcome of this fire.
func (h *JobExecutionHandler) ExecuteHandler(w http.ResponseWriter, r *http.Request, id int64) {
	cfg, err := h.storage.GetByID(r.Context(), id)
	if err != nil {
		WriteFailure(w, "failed to load job %d: %v", id, err)
		return
	}
	if cfg == nil {
		WriteFailure(w, "job %d not found", id)
		return
	}

	h.logger.Info().
		Int64("job_id", id).
		Str("job_name", cfg.JobName).
		Msg("Manual job execution requested")

	result := h.executor.Execute(r.Context(), cfg)

	WriteResult(w, map[string]any{
		"jobId":        cfg.ID,
		"jobName":      cfg.JobName,
		"success":      result.Success,
		"errorMessage": result.ErrorMessage,
	})
}

// LogsHandler handles GET /api/jobs/{id}/logs?limit=N, newest first
func (h *JobExecutionHandler) LogsHandler(w http.ResponseWriter, r *http.Request, id int64) {
	limit := QueryInt(r, "limit", 50)

	logs, err := h.logs.ListLogsByJobID(r.Context(), id, limit)
	if err != nil {
		WriteFailure(w, "failed to list execution logs: %v", err)
		return
	}
	if logs == nil {
		logs = []*models.JobLog{}
	}
	WriteResult(w, logs)
}

// LogByIDHandler handles GET /api/logs/{id}
func (h *JobExecutionHandler) LogByIDHandler(w http.ResponseWriter, r *http.Request, id int64) {
	jobLog, err := h.logs.GetLogByID(r.Context(), id)
	if err != nil {
		WriteFailure(w, "failed to load execution log %d: %v", id, err)
		return
	}
	if jobLog == nil {
		WriteFailure(w, "execution log %d not found", id)
		return
	}
	WriteResult(w, jobLog)
}

// LogByExecutionIDHandler handles GET /api/logs/execution/{executionId}
func (h *JobExecutionHandler) LogByExecutionIDHandler(w http.ResponseWriter, r *http.Request, executionID string) {
	jobLog, err := h.logs.GetLogByExecutionID(r.Context(), executionID)
	if err != nil {
		WriteFailure(w, "failed to load execution %s: %v", executionID, err)
		return
	}
	if jobLog == nil {
		WriteFailure(w, "execution %s not found", executionID)
		return
	}
	WriteResult(w, jobLog)
}

// StatisticsHandler handles GET /api/jobs/{id}/statistics, computed over
// the most recent executions.
func (h *JobExecutionHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request, id int64) {
	cfg, err := h.storage.GetByID(r.Context(), id)
	if err != nil {
		WriteFailure(w, "failed to load job %d: %v", id, err)
		return
	}
	if cfg == nil {
		WriteFailure(w, "job %d not found", id)
		return
	}

	logs, err := h.logs.ListLogsByJobID(r.Context(), id, statisticsSampleSize)
	if err != nil {
		WriteFailure(w, "failed to list execution logs: %v", err)
		return
	}

	var (
		successCount  int
		failedCount   int
		totalDuration int64
		terminalCount int
	)
	for _, jobLog := range logs {
		switch jobLog.Status {
		case models.JobLogStatusSuccess:
			successCount++
		case models.JobLogStatusFailed:
			failedCount++
		default:
			continue
		}
		terminalCount++
		totalDuration += jobLog.Duration
	}

	// successRate is a 0..100 percentage over every sampled log; the
	// duration average only covers rows that finished.
	successRate := 0.0
	if len(logs) > 0 {
		successRate = float64(successCount) * 100 / float64(len(logs))
	}
	avgDuration := int64(0)
	if terminalCount > 0 {
		avgDuration = totalDuration / int64(terminalCount)
	}

	WriteResult(w, map[string]any{
		"jobId":        cfg.ID,
		"jobName":      cfg.JobName,
		"status":       cfg.Status,
		"totalCount":   len(logs),
		"successCount": successCount,
		"failedCount":  failedCount,
		"successRate":  successRate,
		"avgDuration":  avgDuration,
	})
}
