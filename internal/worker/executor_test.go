package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	badgerstore "github.com/ternarybob/censeo/internal/storage/badger"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
)

// scriptedStage describes what the fake runner does for one stage: the
// errors to return in order, then success.
type scriptedStage struct {
	errs []error
}

// fakeRunner returns scripted errors per stage, then succeeds. Attempts
// are counted per stage.
type fakeRunner struct {
	script   map[models.StageName]*scriptedStage
	attempts map[models.StageName]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		script:   make(map[models.StageName]*scriptedStage),
		attempts: make(map[models.StageName]int),
	}
}

func (r *fakeRunner) failWith(stage models.StageName, errs ...error) {
	r.script[stage] = &scriptedStage{errs: errs}
}

func (r *fakeRunner) RunStage(ctx context.Context, stage models.Stage, input models.StageInput) (*models.StageOutput, error) {
	r.attempts[stage.Name]++

	if s, ok := r.script[stage.Name]; ok && len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &models.StageOutput{
		Summary: "summary " + string(stage.Name),
		Report:  "report " + string(stage.Name),
	}, nil
}

type env struct {
	jobs     interfaces.JobStorage
	docs     interfaces.DocumentStorage
	runner   *fakeRunner
	executor *Executor
}

func newTestEnv(t *testing.T) *env {
	t.Helper()

	tmpDir := t.TempDir()
	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := arbor.NewLogger()
	db := badgerstore.NewBadgerDBFromStore(store)
	jobs := badgerstore.NewJobStorage(db, logger)
	docs := badgerstore.NewDocumentStorage(db, logger)
	runner := newFakeRunner()

	// Tight backoff keeps retry tests fast
	policy := RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}

	return &env{
		jobs:     jobs,
		docs:     docs,
		runner:   runner,
		executor: NewExecutor(jobs, docs, runner, policy, time.Minute, logger),
	}
}

func (e *env) seedJob(t *testing.T, jobID string) *models.Job {
	t.Helper()
	ctx := context.Background()

	doc := &models.Document{
		ID:        "doc-" + jobID,
		Filename:  "report.pdf",
		Text:      "Annual report for ACME Corp. Revenue grew 12% year over year.",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, e.docs.SaveDocument(ctx, doc))

	job := models.NewJob(jobID, doc.ID, "Is ACME a good investment?")
	require.NoError(t, e.jobs.SaveJob(ctx, job))
	return job
}

func TestExecuteHappyPath(t *testing.T) {
	e := newTestEnv(t)
	e.seedJob(t, "job-happy")

	err := e.executor.Execute(context.Background(), &models.QueueMessage{JobID: "job-happy", Type: models.MessageTypeAnalyze})
	require.NoError(t, err)

	job, err := e.jobs.GetJob(context.Background(), "job-happy")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	assert.Nil(t, job.Error)

	require.Len(t, job.StageResults, 4)
	for i, name := range models.StageNames() {
		assert.Equal(t, name, job.StageResults[i].Stage)
	}
}

func TestExecuteIdempotencyGuard(t *testing.T) {
	e := newTestEnv(t)
	job := e.seedJob(t, "job-dup")
	ctx := context.Background()

	// Simulate a prior delivery having claimed the job
	job.MarkRunning()
	require.NoError(t, e.jobs.SaveJob(ctx, job))

	err := e.executor.Execute(ctx, &models.QueueMessage{JobID: "job-dup", Type: models.MessageTypeAnalyze})
	require.NoError(t, err)

	// The duplicate delivery must not have run any stage
	assert.Empty(t, e.runner.attempts)

	loaded, err := e.jobs.GetJob(ctx, "job-dup")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, loaded.Status)
}

func TestExecuteTransientRetryRecovers(t *testing.T) {
	e := newTestEnv(t)
	e.seedJob(t, "job-retry")

	// Two timeouts, then success on the third attempt
	e.runner.failWith(models.StageFinancialAnalysis,
		&models.TransientError{Msg: "model call timed out"},
		&models.TransientError{Msg: "model call timed out"},
	)

	err := e.executor.Execute(context.Background(), &models.QueueMessage{JobID: "job-retry", Type: models.MessageTypeAnalyze})
	require.NoError(t, err)

	job, err := e.jobs.GetJob(context.Background(), "job-retry")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, 3, e.runner.attempts[models.StageFinancialAnalysis])

	// Exactly one result per stage despite the retries
	require.Len(t, job.StageResults, 4)
}

func TestExecuteRetryExhaustionFailsJob(t *testing.T) {
	e := newTestEnv(t)
	e.seedJob(t, "job-exhaust")

	e.runner.failWith(models.StageRiskAssessment,
		&models.TransientError{Msg: "rate limited"},
		&models.TransientError{Msg: "rate limited"},
		&models.TransientError{Msg: "rate limited"},
	)

	err := e.executor.Execute(context.Background(), &models.QueueMessage{JobID: "job-exhaust", Type: models.MessageTypeAnalyze})
	require.NoError(t, err)

	job, err := e.jobs.GetJob(context.Background(), "job-exhaust")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, models.StageRiskAssessment, job.Error.Stage)
	assert.Equal(t, 3, e.runner.attempts[models.StageRiskAssessment])

	// Results from the three stages that completed before the failure survive
	require.Len(t, job.StageResults, 3)
	assert.Equal(t, models.StageVerification, job.StageResults[0].Stage)
	assert.Equal(t, models.StageFinancialAnalysis, job.StageResults[1].Stage)
	assert.Equal(t, models.StageInvestmentRecommendations, job.StageResults[2].Stage)
}

func TestExecuteValidationFailureIsTerminal(t *testing.T) {
	e := newTestEnv(t)
	e.seedJob(t, "job-invalid")

	e.runner.failWith(models.StageVerification, &models.ValidationError{Msg: "document is not a financial document"})

	err := e.executor.Execute(context.Background(), &models.QueueMessage{JobID: "job-invalid", Type: models.MessageTypeAnalyze})
	require.NoError(t, err)

	job, err := e.jobs.GetJob(context.Background(), "job-invalid")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, models.StageVerification, job.Error.Stage)
	assert.Empty(t, job.StageResults)

	// Plain validation failures never retry
	assert.Equal(t, 1, e.runner.attempts[models.StageVerification])
}

func TestExecuteTruncatedValidationRetriesOnce(t *testing.T) {
	e := newTestEnv(t)
	e.seedJob(t, "job-truncated")

	e.runner.failWith(models.StageVerification, &models.ValidationError{Msg: "unparseable response", MaybeTruncated: true})

	err := e.executor.Execute(context.Background(), &models.QueueMessage{JobID: "job-truncated", Type: models.MessageTypeAnalyze})
	require.NoError(t, err)

	job, err := e.jobs.GetJob(context.Background(), "job-truncated")
	require.NoError(t, err)

	// Second attempt succeeded
	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, 2, e.runner.attempts[models.StageVerification])
}

func TestExecuteTruncatedValidationRetryBudgetIsOne(t *testing.T) {
	e := newTestEnv(t)
	e.seedJob(t, "job-truncated-twice")

	e.runner.failWith(models.StageVerification,
		&models.ValidationError{Msg: "unparseable response", MaybeTruncated: true},
		&models.ValidationError{Msg: "unparseable response", MaybeTruncated: true},
	)

	err := e.executor.Execute(context.Background(), &models.QueueMessage{JobID: "job-truncated-twice", Type: models.MessageTypeAnalyze})
	require.NoError(t, err)

	job, err := e.jobs.GetJob(context.Background(), "job-truncated-twice")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 2, e.runner.attempts[models.StageVerification])
}

func TestExecuteUnknownJobDropsMessage(t *testing.T) {
	e := newTestEnv(t)

	err := e.executor.Execute(context.Background(), &models.QueueMessage{JobID: "missing", Type: models.MessageTypeAnalyze})
	assert.NoError(t, err)
	assert.Empty(t, e.runner.attempts)
}

func TestExecuteJobCeilingFailsWithTimeout(t *testing.T) {
	e := newTestEnv(t)
	e.seedJob(t, "job-slow")

	// Rebuild the executor with a ceiling the first stage cannot meet
	slow := &slowRunner{delay: 50 * time.Millisecond}
	e.executor = NewExecutor(e.jobs, e.docs, slow, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2.0}, 10*time.Millisecond, arbor.NewLogger())

	err := e.executor.Execute(context.Background(), &models.QueueMessage{JobID: "job-slow", Type: models.MessageTypeAnalyze})
	require.NoError(t, err)

	job, err := e.jobs.GetJob(context.Background(), "job-slow")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)
	assert.Equal(t, "timeout", job.Error.Cause)
}

func TestExecuteShutdownCancelDoesNotFailJob(t *testing.T) {
	e := newTestEnv(t)
	e.seedJob(t, "job-cancel")

	// Generous ceiling: only the parent cancellation can end this run
	slow := &slowRunner{delay: 10 * time.Second}
	e.executor = NewExecutor(e.jobs, e.docs, slow, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2.0}, time.Hour, arbor.NewLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := e.executor.Execute(ctx, &models.QueueMessage{JobID: "job-cancel", Type: models.MessageTypeAnalyze})
	require.Error(t, err, "interrupted work must keep the message queued")

	// The job is not terminal: it stays running for the staleness sweep and
	// the redelivery idempotency guard, never failed with a bogus timeout.
	job, err := e.jobs.GetJob(context.Background(), "job-cancel")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Nil(t, job.Error)
}

// slowRunner blocks until the stage context ends.
type slowRunner struct {
	delay time.Duration
}

func (r *slowRunner) RunStage(ctx context.Context, stage models.Stage, input models.StageInput) (*models.StageOutput, error) {
	select {
	case <-time.After(r.delay):
		return nil, fmt.Errorf("unexpected completion")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRetryPolicyBackoffShape(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 2 * time.Second, MaxBackoff: 60 * time.Second, Multiplier: 2.0}

	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 60*time.Second, p.Backoff(10)) // capped
}
