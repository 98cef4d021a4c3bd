package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Submission
	mux.HandleFunc("/api/analyze", s.app.AnalyzeHandler.SubmitHandler) // POST - submit PDF for analysis

	// Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler) // GET - list jobs
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.JobRoutesHandler)

	// System
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	return mux
}
