package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/cadence/internal/handlers"
)

// setupRoutes configures all HTTP routes. The /job/... paths are the
// wire contract; the /api/... paths alias the same handlers.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Job configuration
	mux.HandleFunc("/job/config", s.handleJobsRoute)     // GET (list), POST (create)
	mux.HandleFunc("/job/config/", s.handleConfigRoutes) // list, /{id}

	// Execution log detail
	mux.HandleFunc("/job/log/", func(w http.ResponseWriter, r *http.Request) {
		s.handleLogRoutes(w, r, "/job/log/")
	})

	// Lifecycle, execute, logs, statistics per job id
	mux.HandleFunc("/job/", func(w http.ResponseWriter, r *http.Request) {
		s.handleJobRoutes(w, r, "/job/")
	})

	// Aliases
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		s.handleJobRoutes(w, r, "/api/jobs/")
	})
	mux.HandleFunc("/api/logs/", func(w http.ResponseWriter, r *http.Request) {
		s.handleLogRoutes(w, r, "/api/logs/")
	})

	// System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)
	mux.HandleFunc("/api/config/refresh", s.app.APIHandler.ConfigRefreshHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute dispatches the collection endpoint by method
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.JobConfigHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.JobConfigHandler.CreateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConfigRoutes routes /job/config/list and /job/config/{id}
func (s *Server) handleConfigRoutes(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/job/config/list" {
		s.app.JobConfigHandler.ListHandler(w, r)
		return
	}

	id, action, err := handlers.PathID(r.URL.Path, "/job/config/")
	if err != nil || action != "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.app.JobConfigHandler.GetHandler(w, r, id)
	case http.MethodPut:
		s.app.JobConfigHandler.UpdateHandler(w, r, id)
	case http.MethodDelete:
		s.app.JobConfigHandler.DeleteHandler(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes {id} and its subpaths under the given prefix
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request, prefix string) {
	id, action, err := handlers.PathID(r.URL.Path, prefix)
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.app.JobConfigHandler.GetHandler(w, r, id)
		case http.MethodPut:
			s.app.JobConfigHandler.UpdateHandler(w, r, id)
		case http.MethodDelete:
			s.app.JobConfigHandler.DeleteHandler(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case "start":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			s.app.JobConfigHandler.StartHandler(w, r, id)
		}
	case "stop":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			s.app.JobConfigHandler.StopHandler(w, r, id)
		}
	case "pause":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			s.app.JobConfigHandler.PauseHandler(w, r, id)
		}
	case "resume":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			s.app.JobConfigHandler.ResumeHandler(w, r, id)
		}
	case "execute":
		if handlers.RequireMethod(w, r, http.MethodPost) {
			s.app.JobExecutionHandler.ExecuteHandler(w, r, id)
		}
	case "logs":
		if handlers.RequireMethod(w, r, http.MethodGet) {
			s.app.JobExecutionHandler.LogsHandler(w, r, id)
		}
	case "statistics":
		if handlers.RequireMethod(w, r, http.MethodGet) {
			s.app.JobExecutionHandler.StatisticsHandler(w, r, id)
		}

	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleLogRoutes routes {logId} and execution/{executionId} under the
// given prefix.
func (s *Server) handleLogRoutes(w http.ResponseWriter, r *http.Request, prefix string) {
	if !handlers.RequireMethod(w, r, http.MethodGet) {
		return
	}

	if executionID := strings.TrimPrefix(r.URL.Path, prefix+"execution/"); executionID != r.URL.Path && executionID != "" {
		s.app.JobExecutionHandler.LogByExecutionIDHandler(w, r, executionID)
		return
	}

	id, action, err := handlers.PathID(r.URL.Path, prefix)
	if err != nil || action != "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.app.JobExecutionHandler.LogByIDHandler(w, r, id)
}
