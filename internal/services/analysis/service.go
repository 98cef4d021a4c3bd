// -----------------------------------------------------------------------
// Analysis Service - Submission and status surface for analysis jobs
// Persist-then-enqueue: a job is never queued without a durable record.
// -----------------------------------------------------------------------

package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/common"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
)

// Service accepts analysis submissions and answers status queries. It
// returns as soon as the job is durably queued; the worker pool does the
// actual analysis.
type Service struct {
	jobs               interfaces.JobStorage
	docs               interfaces.DocumentStorage
	queue              interfaces.QueueManager
	extractor          interfaces.TextExtractor
	stalenessThreshold time.Duration
	logger             arbor.ILogger
}

// NewService creates the analysis service.
func NewService(storage interfaces.StorageManager, queue interfaces.QueueManager, extractor interfaces.TextExtractor, stalenessThreshold time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		jobs:               storage.JobStorage(),
		docs:               storage.DocumentStorage(),
		queue:              queue,
		extractor:          extractor,
		stalenessThreshold: stalenessThreshold,
		logger:             logger,
	}
}

// JobStatusView is the status surface returned to callers: the persisted
// job plus derived staleness for running jobs.
type JobStatusView struct {
	Job   *models.Job `json:"job"`
	Stale bool        `json:"stale,omitempty"`

	// StaleReason explains why a running job is considered stale.
	StaleReason string `json:"stale_reason,omitempty"`
}

// Submit validates and extracts the uploaded PDF, persists the document
// and a queued job, then enqueues the analysis message. The job ID is
// returned immediately; analysis happens asynchronously.
func (s *Service) Submit(ctx context.Context, filename string, pdfData []byte, query string) (*models.Job, error) {
	if err := s.extractor.ValidatePDF(pdfData); err != nil {
		return nil, err
	}

	text, warnings, err := s.extractor.ExtractText(ctx, pdfData)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:        common.NewDocumentID(),
		Filename:  filename,
		Text:      text,
		Warnings:  warnings,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.docs.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	job := models.NewJob(common.NewJobID(), doc.ID, strings.TrimSpace(query))

	// Persist before enqueue: if the save fails, nothing is queued and the
	// submission fails cleanly.
	if err := s.jobs.SaveJob(ctx, job); err != nil {
		return nil, err
	}

	msg := models.QueueMessage{JobID: job.ID, Type: models.MessageTypeAnalyze}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		// The job record exists but was never queued; mark it failed so it
		// does not sit in queued forever.
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to enqueue job after persisting")
		job.MarkSubmissionFailed("failed to enqueue analysis task")
		if saveErr := s.jobs.SaveJob(ctx, job); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("job_id", job.ID).Msg("Failed to record enqueue failure")
		}
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("document_id", doc.ID).
		Str("filename", filename).
		Int("warnings", len(warnings)).
		Msg("Analysis job submitted")

	return job, nil
}

// GetStatus returns the job with derived staleness. A running job past the
// staleness threshold is flagged but not mutated; the record stays
// authoritative.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*JobStatusView, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobStatusView{Job: job}
	if job.Status == models.JobStatusRunning && job.StartedAt != nil {
		res := common.CheckJobStaleness(*job.StartedAt, time.Now().UTC(), s.stalenessThreshold)
		view.Stale = res.IsStale
		view.StaleReason = res.Reason
	}
	return view, nil
}

// GetResult returns the job for result retrieval. Callers decide how to
// present non-terminal jobs; partial stage results of failed jobs are
// included as stored.
func (s *Service) GetResult(ctx context.Context, jobID string) (*models.Job, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// ListJobs returns jobs matching the options.
func (s *Service) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	return s.jobs.ListJobs(ctx, opts)
}

// GetDocument loads the document referenced by a job.
func (s *Service) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return s.docs.GetDocument(ctx, docID)
}
