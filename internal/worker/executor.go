// -----------------------------------------------------------------------
// Task Executor - Drives one analysis job from queued to terminal
// Owns resilience policy: per-stage retry, backoff, job ceiling.
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
	"github.com/ternarybob/censeo/internal/pipeline"
)

// RetryPolicy bounds per-stage retries. Transient failures earn up to
// MaxAttempts tries with exponential backoff; a possibly-truncated
// validation failure earns exactly one immediate retry; every other
// failure is terminal on the first occurrence.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// Backoff returns the delay before the given retry (attempt is 1-based:
// the delay after the attempt-th failure).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if max := float64(p.MaxBackoff); d > max {
		d = max
	}
	return time.Duration(d)
}

// Executor processes one queued analysis job per call. It is safe to call
// Execute concurrently for distinct jobs; duplicate deliveries of the same
// job are absorbed by the idempotency guard.
type Executor struct {
	jobs       interfaces.JobStorage
	docs       interfaces.DocumentStorage
	runner     interfaces.StageRunner
	policy     RetryPolicy
	jobCeiling time.Duration
	logger     arbor.ILogger
}

// NewExecutor creates an executor over the given collaborators.
func NewExecutor(jobs interfaces.JobStorage, docs interfaces.DocumentStorage, runner interfaces.StageRunner, policy RetryPolicy, jobCeiling time.Duration, logger arbor.ILogger) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = 2 * time.Second
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 60 * time.Second
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 2.0
	}
	if jobCeiling <= 0 {
		jobCeiling = 15 * time.Minute
	}
	return &Executor{
		jobs:       jobs,
		docs:       docs,
		runner:     runner,
		policy:     policy,
		jobCeiling: jobCeiling,
		logger:     logger,
	}
}

// Execute runs the full pipeline for the job named by msg. A nil return
// means the message is handled and may be deleted, including the case
// where the job was recorded as failed. A non-nil return leaves the
// message in the queue for redelivery after the visibility timeout.
func (e *Executor) Execute(ctx context.Context, msg *models.QueueMessage) error {
	log := e.logger.WithCorrelationId(msg.JobID)

	job, err := e.jobs.GetJob(ctx, msg.JobID)
	if err != nil {
		if models.IsNotFound(err) {
			log.Warn().Str("job_id", msg.JobID).Msg("Message references unknown job, dropping")
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", msg.JobID, err)
	}

	// Idempotency guard: anything but queued means another delivery already
	// claimed this job. Absorb the duplicate.
	if job.Status != models.JobStatusQueued {
		log.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Job already claimed, ignoring duplicate delivery")
		return nil
	}

	job.MarkRunning()
	if err := e.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job %s running: %w", job.ID, err)
	}

	log.Info().Str("job_id", job.ID).Msg("Starting analysis pipeline")

	doc, err := e.docs.GetDocument(ctx, job.DocumentRef)
	if err != nil {
		if models.IsNotFound(err) {
			return e.recordFailure(ctx, job, models.StageVerification, "document text unavailable")
		}
		return fmt.Errorf("failed to load document %s: %w", job.DocumentRef, err)
	}

	// The pipeline sees exactly one call per stage; retries happen below it
	// inside the wrapped runner.
	runCtx, cancel := context.WithTimeout(ctx, e.jobCeiling)
	defer cancel()

	p := pipeline.New(&retryingRunner{
		inner:  e.runner,
		policy: e.policy,
		logger: e.logger,
	})

	in := pipeline.Input{DocumentText: doc.Text, Query: job.Query}

	for stage, outcome := range p.Run(runCtx, in) {
		if outcome.Err != nil {
			// A cancelled parent context is shutdown, not a job failure.
			// Surface the error so the message survives for redelivery; the
			// still-running record is picked up by the staleness sweep.
			if errors.Is(runCtx.Err(), context.Canceled) || errors.Is(outcome.Err, context.Canceled) {
				return fmt.Errorf("job %s interrupted at stage %s: %w", job.ID, stage, outcome.Err)
			}

			cause := outcome.Err.Error()
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) || errors.Is(outcome.Err, context.DeadlineExceeded) {
				cause = "timeout"
			}
			log.Warn().
				Str("job_id", job.ID).
				Str("stage", string(stage)).
				Str("cause", cause).
				Msg("Stage failed, job failed")
			return e.recordFailure(ctx, job, stage, cause)
		}

		// Durable incremental write. A persistence failure here must not let
		// the pipeline advance: surface it so the message is redelivered.
		if err := e.jobs.AppendStageResult(ctx, job.ID, stage, *outcome.Output); err != nil {
			return fmt.Errorf("failed to persist %s result for job %s: %w", stage, job.ID, err)
		}

		log.Info().
			Str("job_id", job.ID).
			Str("stage", string(stage)).
			Msg("Stage completed")
	}

	// Reload so the terminal write carries the appended stage results.
	job, err = e.jobs.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to reload job %s: %w", job.ID, err)
	}
	job.MarkSucceeded()
	if err := e.jobs.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job %s succeeded: %w", job.ID, err)
	}

	log.Info().Str("job_id", job.ID).Msg("Analysis pipeline completed")
	return nil
}

// recordFailure writes the terminal failed state. A persistence failure
// while recording propagates so the message stays queued; the idempotency
// guard keeps the redelivery from re-running the pipeline.
func (e *Executor) recordFailure(ctx context.Context, job *models.Job, stage models.StageName, cause string) error {
	current, err := e.jobs.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to reload job %s: %w", job.ID, err)
	}
	current.MarkFailed(stage, cause)
	if err := e.jobs.SaveJob(ctx, current); err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
	}
	return nil
}

// retryingRunner wraps a stage runner with the executor's retry policy so
// the pipeline above it stays a pure sequencer.
type retryingRunner struct {
	inner  interfaces.StageRunner
	policy RetryPolicy
	logger arbor.ILogger
}

func (r *retryingRunner) RunStage(ctx context.Context, stage models.Stage, input models.StageInput) (*models.StageOutput, error) {
	var lastErr error
	truncatedRetried := false

	for attempt := 1; ; attempt++ {
		output, err := r.inner.RunStage(ctx, stage, input)
		if err == nil {
			return output, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case models.IsTransient(err):
			if attempt >= r.policy.MaxAttempts {
				return nil, fmt.Errorf("stage %s failed after %d attempts: %w", stage.Name, attempt, lastErr)
			}
			backoff := r.policy.Backoff(attempt)
			r.logger.Warn().
				Str("stage", string(stage.Name)).
				Int("attempt", attempt).
				Str("backoff", backoff.String()).
				Err(err).
				Msg("Transient stage failure, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case isTruncatedValidation(err) && !truncatedRetried:
			// A cut-off model response may parse cleanly on a second try.
			// Exactly one retry, no backoff.
			truncatedRetried = true
			r.logger.Warn().
				Str("stage", string(stage.Name)).
				Err(err).
				Msg("Possibly truncated stage output, retrying once")

		default:
			return nil, err
		}
	}
}

func isTruncatedValidation(err error) bool {
	var ve *models.ValidationError
	return errors.As(err, &ve) && ve.MaybeTruncated
}
