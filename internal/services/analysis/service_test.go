package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
	badgerstore "github.com/ternarybob/censeo/internal/storage/badger"
	"github.com/timshannon/badgerhold/v4"
)

// fakeExtractor returns canned text for any valid-looking PDF.
type fakeExtractor struct {
	text     string
	warnings []string
}

func (f *fakeExtractor) ValidatePDF(data []byte) error {
	if len(data) == 0 {
		return &models.ValidationError{Msg: "uploaded file is empty"}
	}
	if string(data[:4]) != "%PDF" {
		return &models.ValidationError{Msg: "file is not a PDF"}
	}
	return nil
}

func (f *fakeExtractor) ExtractText(ctx context.Context, data []byte) (string, []string, error) {
	if err := f.ValidatePDF(data); err != nil {
		return "", nil, err
	}
	return f.text, f.warnings, nil
}

// fakeQueue records enqueued messages and can be set to fail.
type fakeQueue struct {
	messages []models.QueueMessage
	failWith error
}

func (f *fakeQueue) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeQueue) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	return nil, nil, errors.New("not implemented")
}

func (f *fakeQueue) Close() error { return nil }

type fixture struct {
	storage interfaces.StorageManager
	queue   *fakeQueue
	service *Service
}

type testStorageManager struct {
	jobs interfaces.JobStorage
	docs interfaces.DocumentStorage
}

func (m *testStorageManager) JobStorage() interfaces.JobStorage           { return m.jobs }
func (m *testStorageManager) DocumentStorage() interfaces.DocumentStorage { return m.docs }
func (m *testStorageManager) Close() error                                { return nil }

func newFixture(t *testing.T) *fixture {
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
	mgr := &testStorageManager{
		jobs: badgerstore.NewJobStorage(db, logger),
		docs: badgerstore.NewDocumentStorage(db, logger),
	}

	queue := &fakeQueue{}
	extractor := &fakeExtractor{text: "Extracted annual report text."}
	service := NewService(mgr, queue, extractor, 20*time.Minute, logger)

	return &fixture{storage: mgr, queue: queue, service: service}
}

var pdfBytes = []byte("%PDF-1.7 sample content")

func TestSubmitQueuesJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.service.Submit(ctx, "report.pdf", pdfBytes, "  How is liquidity?  ")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, "How is liquidity?", job.Query)
	assert.NotEmpty(t, job.DocumentRef)

	// Job record is durable
	stored, err := f.storage.JobStorage().GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, stored.Status)

	// Document text is stored under the job's reference
	doc, err := f.storage.DocumentStorage().GetDocument(ctx, job.DocumentRef)
	require.NoError(t, err)
	assert.Equal(t, "Extracted annual report text.", doc.Text)
	assert.Equal(t, "report.pdf", doc.Filename)

	// Exactly one analysis message was enqueued
	require.Len(t, f.queue.messages, 1)
	assert.Equal(t, job.ID, f.queue.messages[0].JobID)
	assert.Equal(t, models.MessageTypeAnalyze, f.queue.messages[0].Type)
}

func TestSubmitRejectsInvalidUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "page.html", []byte("<html></html>"), "")
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))

	// Nothing persisted, nothing queued
	jobs, err := f.storage.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, f.queue.messages)
}

func TestSubmitEnqueueFailureFailsJob(t *testing.T) {
	f := newFixture(t)
	f.queue.failWith = errors.New("queue unavailable")
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "report.pdf", pdfBytes, "")
	require.Error(t, err)

	// The persisted job must not be left queued forever
	jobs, err := f.storage.JobStorage().ListJobs(ctx, &interfaces.JobListOptions{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobStatusFailed, jobs[0].Status)

	// No stage ran, so no stage is blamed
	require.NotNil(t, jobs[0].Error)
	assert.Empty(t, jobs[0].Error.Stage)
	assert.Equal(t, "failed to enqueue analysis task", jobs[0].Error.Cause)
	assert.Nil(t, jobs[0].StartedAt)
}

func TestGetStatusFlagsStaleRunningJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := models.NewJob("job-stale", "doc-1", "")
	job.MarkRunning()
	past := time.Now().UTC().Add(-time.Hour)
	job.StartedAt = &past
	require.NoError(t, f.storage.JobStorage().SaveJob(ctx, job))

	view, err := f.service.GetStatus(ctx, "job-stale")
	require.NoError(t, err)

	assert.True(t, view.Stale)
	assert.NotEmpty(t, view.StaleReason)
	// Staleness is derived, never written back
	assert.Equal(t, models.JobStatusRunning, view.Job.Status)
}

func TestGetStatusFreshRunningJobNotStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := models.NewJob("job-fresh", "doc-1", "")
	job.MarkRunning()
	require.NoError(t, f.storage.JobStorage().SaveJob(ctx, job))

	view, err := f.service.GetStatus(ctx, "job-fresh")
	require.NoError(t, err)
	assert.False(t, view.Stale)
}

func TestGetStatusUnknownJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
}
