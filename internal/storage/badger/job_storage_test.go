package badger

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func TestJobPersistence(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()
	storage := NewJobStorage(db, logger)
	ctx := context.Background()

	job := models.NewJob("job-1", "doc-1", "analyze this")
	if err := storage.SaveJob(ctx, job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}

	loaded, err := storage.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to load job: %v", err)
	}
	if loaded.Status != models.JobStatusQueued {
		t.Errorf("Expected queued status, got %s", loaded.Status)
	}
	if loaded.Query != "analyze this" {
		t.Errorf("Expected query to round-trip, got %q", loaded.Query)
	}
	if loaded.DocumentRef != "doc-1" {
		t.Errorf("Expected document ref to round-trip, got %q", loaded.DocumentRef)
	}

	// Status transition persists
	loaded.MarkRunning()
	if err := storage.SaveJob(ctx, loaded); err != nil {
		t.Fatalf("Failed to save running job: %v", err)
	}
	reloaded, err := storage.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("Failed to reload job: %v", err)
	}
	if reloaded.Status != models.JobStatusRunning {
		t.Errorf("Expected running status, got %s", reloaded.Status)
	}
	if reloaded.StartedAt == nil {
		t.Error("Expected StartedAt to be set")
	}
}

func TestGetJobNotFound(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	_, err := storage.GetJob(context.Background(), "missing")
	if err == nil {
		t.Fatal("Expected error for unknown job ID")
	}
	if !models.IsNotFound(err) {
		t.Errorf("Expected NotFoundError, got %T: %v", err, err)
	}
}

func TestAppendStageResult(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	job := models.NewJob("job-2", "doc-2", "")
	job.MarkRunning()
	if err := storage.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	output := models.StageOutput{Summary: "looks legitimate", Report: "full verification report"}
	if err := storage.AppendStageResult(ctx, "job-2", models.StageVerification, output); err != nil {
		t.Fatalf("Failed to append stage result: %v", err)
	}

	// Appending the same stage again must not duplicate
	if err := storage.AppendStageResult(ctx, "job-2", models.StageVerification, output); err != nil {
		t.Fatalf("Duplicate append should be a no-op, got: %v", err)
	}

	loaded, err := storage.GetJob(ctx, "job-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.StageResults) != 1 {
		t.Fatalf("Expected 1 stage result, got %d", len(loaded.StageResults))
	}
	if loaded.StageResults[0].Stage != models.StageVerification {
		t.Errorf("Expected verification stage, got %s", loaded.StageResults[0].Stage)
	}
	if loaded.StageResults[0].Output.Report != "full verification report" {
		t.Errorf("Stage output did not round-trip: %+v", loaded.StageResults[0].Output)
	}
}

func TestAppendStageResultUnknownJob(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	err := storage.AppendStageResult(context.Background(), "missing", models.StageVerification, models.StageOutput{Summary: "s", Report: "r"})
	if !models.IsNotFound(err) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}

func TestListJobsFilterAndOrder(t *testing.T) {
	db := newTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for i, id := range []string{"job-a", "job-b", "job-c"} {
		job := models.NewJob(id, "doc", "")
		job.SubmittedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if i == 2 {
			job.MarkRunning()
			job.MarkFailed(models.StageVerification, "bad document")
		}
		if err := storage.SaveJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	all, err := storage.ListJobs(ctx, &interfaces.JobListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(all))
	}
	// Newest first by default
	if all[0].ID != "job-c" {
		t.Errorf("Expected job-c first, got %s", all[0].ID)
	}

	failed, err := storage.ListJobs(ctx, &interfaces.JobListOptions{Status: "failed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ID != "job-c" {
		t.Errorf("Expected only job-c to be failed, got %v", failed)
	}

	count, err := storage.CountJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
}
