package interfaces

import (
	"context"

	"github.com/ternarybob/censeo/internal/models"
)

// JobListOptions controls job listing queries.
type JobListOptions struct {
	Status   string
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// JobStorage is the result store contract the orchestrator depends on.
// Writes are last-write-wins per field; concurrent writers are prevented by
// the invariant that only the executor mutates a job while it is running.
type JobStorage interface {
	// SaveJob persists the full job record. Failures surface as
	// *models.PersistenceError.
	SaveJob(ctx context.Context, job *models.Job) error

	// GetJob loads a job by ID. Unknown IDs surface as
	// *models.NotFoundError; backend failures as *models.PersistenceError.
	GetJob(ctx context.Context, jobID string) (*models.Job, error)

	// AppendStageResult durably appends one completed stage's output to the
	// job. Appending an already-recorded stage is a no-op.
	AppendStageResult(ctx context.Context, jobID string, stage models.StageName, output models.StageOutput) error

	// ListJobs returns jobs matching the options, newest first by default.
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)

	// CountJobs returns the total number of stored jobs.
	CountJobs(ctx context.Context) (int, error)
}

// DocumentStorage stores extracted document text referenced by jobs.
type DocumentStorage interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, docID string) (*models.Document, error)
	DeleteDocument(ctx context.Context, docID string) error

	// ListDocumentIDs returns all stored document IDs, oldest first.
	ListDocumentIDs(ctx context.Context) ([]string, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	JobStorage() JobStorage
	DocumentStorage() DocumentStorage
	Close() error
}
