package badger

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/censeo/internal/interfaces"
	"github.com/ternarybob/censeo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return &models.ValidationError{Msg: err.Error()}
	}

	if err := s.db.Store().Upsert(job.ID, job); err != nil {
		return &models.PersistenceError{Op: "save job", Err: err}
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, &models.NotFoundError{Kind: "job", ID: jobID}
		}
		return nil, &models.PersistenceError{Op: "get job", Err: err}
	}
	return &job, nil
}

// AppendStageResult loads the job, appends the stage output and writes the
// record back. Safe without a transaction because a running job has exactly
// one writer, the executor.
func (s *JobStorage) AppendStageResult(ctx context.Context, jobID string, stage models.StageName, output models.StageOutput) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.HasResult(stage) {
		s.logger.Debug().
			Str("job_id", jobID).
			Str("stage", string(stage)).
			Msg("Stage result already recorded, skipping append")
		return nil
	}

	job.AppendResult(stage, output)

	if err := s.db.Store().Update(jobID, job); err != nil {
		return &models.PersistenceError{Op: "append stage result", Err: err}
	}
	return nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(models.JobStatus(opts.Status))
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.OrderBy != "" {
			if opts.OrderDir == "DESC" {
				query = query.SortBy(opts.OrderBy).Reverse()
			} else {
				query = query.SortBy(opts.OrderBy)
			}
		} else {
			query = query.SortBy("SubmittedAt").Reverse()
		}
	} else {
		query = query.SortBy("SubmittedAt").Reverse()
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, &models.PersistenceError{Op: "list jobs", Err: err}
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("ID").Ne(""))
	if err != nil {
		return 0, &models.PersistenceError{Op: "count jobs", Err: err}
	}
	return int(count), nil
}
