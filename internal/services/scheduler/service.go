// -----------------------------------------------------------------------
// Scheduler Service - Background sweeps over jobs and documents
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/common"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
)

// Service runs two periodic sweeps: one that flags jobs stuck in running
// past the staleness threshold, and one that removes document text whose
// jobs have been terminal longer than the retention window.
type Service struct {
	config  *common.SchedulerConfig
	storage interfaces.StorageManager
	stale   time.Duration
	cron    *cron.Cron
	logger  arbor.ILogger
}

// NewService creates the scheduler service.
func NewService(config *common.SchedulerConfig, storage interfaces.StorageManager, stalenessThreshold time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		storage: storage,
		stale:   stalenessThreshold,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start registers the sweeps and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled, background sweeps will not run")
		return nil
	}

	staleSweep := s.config.StaleSweep
	if staleSweep == "" {
		staleSweep = "*/5 * * * *"
	}
	if _, err := s.cron.AddFunc(staleSweep, s.runStaleSweep); err != nil {
		return fmt.Errorf("failed to add stale sweep cron job: %w", err)
	}

	cleanup := s.config.Cleanup
	if cleanup == "" {
		cleanup = "0 3 * * *"
	}
	if _, err := s.cron.AddFunc(cleanup, s.runDocumentCleanup); err != nil {
		return fmt.Errorf("failed to add cleanup cron job: %w", err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("stale_sweep", staleSweep).
		Str("cleanup", cleanup).
		Msg("Scheduler started")
	return nil
}

// Stop stops the cron scheduler and waits for running sweeps.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// runStaleSweep logs every running job whose age exceeds the staleness
// threshold. The sweep observes and reports; it never rewrites job state,
// since a slow-but-alive executor may still complete the job.
func (s *Service) runStaleSweep() {
	ctx := context.Background()

	jobs, err := s.storage.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{Status: string(models.JobStatusRunning)})
	if err != nil {
		s.logger.Error().Err(err).Msg("Stale sweep failed to list running jobs")
		return
	}

	now := time.Now().UTC()
	staleCount := 0
	for _, job := range jobs {
		if job.StartedAt == nil {
			continue
		}
		res := common.CheckJobStaleness(*job.StartedAt, now, s.stale)
		if res.IsStale {
			staleCount++
			s.logger.Warn().
				Str("job_id", job.ID).
				Str("running_for", res.RunningFor.String()).
				Msg("Job running past staleness threshold")
		}
	}

	if staleCount > 0 {
		s.logger.Warn().
			Int("stale_jobs", staleCount).
			Int("running_jobs", len(jobs)).
			Msg("Stale sweep found stalled jobs")
	}
}

// runDocumentCleanup deletes document text that is no longer needed: the
// referencing job is terminal and older than the retention window.
// Documents referenced by queued or running jobs are always kept.
func (s *Service) runDocumentCleanup() {
	ctx := context.Background()
	retain := s.config.RetainDocumentsDuration()
	cutoff := time.Now().UTC().Add(-retain)

	jobs, err := s.storage.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{})
	if err != nil {
		s.logger.Error().Err(err).Msg("Document cleanup failed to list jobs")
		return
	}

	// A document is deletable only if every job referencing it is terminal
	// and past the cutoff.
	keep := make(map[string]bool)
	expired := make(map[string]bool)
	for _, job := range jobs {
		if job.IsTerminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			if !keep[job.DocumentRef] {
				expired[job.DocumentRef] = true
			}
			continue
		}
		keep[job.DocumentRef] = true
		delete(expired, job.DocumentRef)
	}

	deleted := 0
	for docID := range expired {
		if err := s.storage.DocumentStorage().DeleteDocument(ctx, docID); err != nil {
			s.logger.Warn().Err(err).Str("document_id", docID).Msg("Failed to delete expired document")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().
			Int("deleted", deleted).
			Str("retention", retain.String()).
			Msg("Document cleanup removed expired documents")
	}
}
