package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cadence/internal/common"
	"github.com/ternarybob/cadence/internal/interfaces"
	"github.com/ternarybob/cadence/internal/services/configstore"
)

// APIHandler serves system-level endpoints
type APIHandler struct {
	scheduler   interfaces.SchedulerManager
	configStore *configstore.Service
	environment string
	startTime   time.Time
	logger      arbor.ILogger
}

// NewAPIHandler creates a system API handler
func NewAPIHandler(scheduler interfaces.SchedulerManager, configStore *configstore.Service, environment string, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		scheduler:   scheduler,
		configStore: configStore,
		environment: environment,
		startTime:   time.Now(),
		logger:      logger,
	}
}

// HealthHandler handles GET /api/health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteResult(w, map[string]any{
		"status": "ok",
	})
}

// VersionHandler handles GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteResult(w, map[string]any{
		"version": common.Version,
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// StatusHandler handles GET /api/status
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	serverIP, serverName := common.ServerIdentity()
	WriteResult(w, map[string]any{
		"environment":   h.environment,
		"scheduledJobs": len(h.scheduler.JobIDs()),
		"serverIp":      serverIP,
		"serverName":    serverName,
		"uptimeSeconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// ConfigRefreshHandler handles POST /api/config/refresh. Re-pulls the
// primary configuration document and retries deferred subscriptions.
func (h *APIHandler) ConfigRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := h.configStore.Refresh(r.Context()); err != nil {
		WriteFailure(w, "config refresh failed: %v", err)
		return
	}

	h.logger.Info().Msg("Configuration refreshed via management API")
	WriteResult(w, map[string]any{
		"status": "refreshed",
	})
}

// NotFoundHandler handles unmatched API routes
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteFailure(w, "unknown API route %s", r.URL.Path)
}
