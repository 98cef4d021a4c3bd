// -----------------------------------------------------------------------
// Job Handler - Status, result and listing endpoints for analysis jobs
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
	"github.com/ternarybob/censeo/internal/services/analysis"
	"github.com/ternarybob/censeo/internal/services/report"
)

// JobHandler serves job status, results, listings and rendered reports.
type JobHandler struct {
	service *analysis.Service
	reports *report.Service
	logger  arbor.ILogger
}

// NewJobHandler creates a job handler.
func NewJobHandler(service *analysis.Service, reports *report.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		service: service,
		reports: reports,
		logger:  logger,
	}
}

// ListJobsHandler handles GET /api/jobs with optional status, limit and
// offset query parameters.
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit, offset := GetLimitOffset(r)
	opts := &interfaces.JobListOptions{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	}

	jobs, err := h.service.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// JobRoutesHandler dispatches /api/jobs/{id} and its subpaths:
//
//	GET /api/jobs/{id}         - status (with staleness for running jobs)
//	GET /api/jobs/{id}/result  - stage results
//	GET /api/jobs/{id}/report  - rendered PDF report
func (h *JobHandler) JobRoutesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		WriteError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	jobID := parts[0]
	switch {
	case len(parts) == 1:
		h.statusHandler(w, r, jobID)
	case len(parts) == 2 && parts[1] == "result":
		h.resultHandler(w, r, jobID)
	case len(parts) == 2 && parts[1] == "report":
		h.reportHandler(w, r, jobID)
	default:
		WriteError(w, http.StatusNotFound, "unknown job endpoint")
	}
}

func (h *JobHandler) statusHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	view, err := h.service.GetStatus(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// ResultResponse is the result surface: terminal state plus the stage
// outputs recorded so far. Failed jobs include the results of stages that
// completed before the failure.
type ResultResponse struct {
	JobID        string               `json:"job_id"`
	Status       models.JobStatus     `json:"status"`
	Query        string               `json:"query,omitempty"`
	StageResults []models.StageResult `json:"stage_results"`
	Error        *models.ErrorDetail  `json:"error,omitempty"`
}

func (h *JobHandler) resultHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.service.GetResult(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	if !job.IsTerminal() {
		WriteJSON(w, http.StatusConflict, map[string]string{
			"status": string(job.Status),
			"error":  "job has not finished; poll the status endpoint",
		})
		return
	}

	WriteJSON(w, http.StatusOK, ResultResponse{
		JobID:        job.ID,
		Status:       job.Status,
		Query:        job.Query,
		StageResults: job.StageResults,
		Error:        job.Error,
	})
}

func (h *JobHandler) reportHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.service.GetResult(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	pdfBytes, err := h.reports.RenderJobReport(job)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="analysis-`+job.ID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdfBytes)
}
