// -----------------------------------------------------------------------
// Analyze Handler - Accept document uploads for asynchronous analysis
// -----------------------------------------------------------------------

package handlers

import (
	"io"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/services/analysis"
)

// AnalyzeHandler accepts PDF uploads and submits analysis jobs.
type AnalyzeHandler struct {
	service     *analysis.Service
	maxFileSize int64
	logger      arbor.ILogger
}

// NewAnalyzeHandler creates an analyze handler.
func NewAnalyzeHandler(service *analysis.Service, maxFileSize int64, logger arbor.ILogger) *AnalyzeHandler {
	return &AnalyzeHandler{
		service:     service,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// AnalyzeResponse is returned immediately on submission; the caller polls
// the job endpoints for progress.
type AnalyzeResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// SubmitHandler handles POST /api/analyze. Expects multipart form data
// with a "file" part (the PDF) and an optional "query" field.
func (h *AnalyzeHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	// Cap the whole request body a little above the file limit to leave
	// room for the other form fields.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+64*1024)

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing file upload field 'file'")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	query := r.FormValue("query")

	job, err := h.service.Submit(r.Context(), header.Filename, data, query)
	if err != nil {
		h.logger.Warn().Err(err).Str("filename", header.Filename).Msg("Submission rejected")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, AnalyzeResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}
