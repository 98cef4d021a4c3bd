// -----------------------------------------------------------------------
// Job - Persisted state of one analysis submission
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of an analysis job. Transitions
// are monotonic: queued -> running -> (succeeded | failed). No state is
// re-entered once left.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// ErrorDetail records which stage failed and why. Present only on failed
// jobs. Stage is empty when the job failed before any stage ran.
type ErrorDetail struct {
	Stage StageName `json:"stage,omitempty"`
	Cause string    `json:"cause"`
}

// StageResult is one completed stage's output, appended to the job as the
// pipeline progresses.
type StageResult struct {
	Stage       StageName   `json:"stage"`
	Output      StageOutput `json:"output"`
	CompletedAt time.Time   `json:"completed_at"`
}

// Job is the persisted record of one submission. During running it is owned
// exclusively by the executor; before and after it is shared-read by any
// number of status-polling callers.
type Job struct {
	ID     string    `json:"id" badgerhold:"key"`
	Status JobStatus `json:"status"`

	// Query is the optional user question, immutable once set at submission.
	Query string `json:"query,omitempty"`

	// DocumentRef is an opaque reference to the extracted document text,
	// owned by the extraction collaborator. The job stores the reference,
	// never the raw bytes.
	DocumentRef string `json:"document_ref"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// StageResults holds outputs in pipeline order, populated incrementally.
	// It never contains an entry for a stage later than the first failure.
	StageResults []StageResult `json:"stage_results,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// NewJob creates a job in the queued state.
func NewJob(id, documentRef, query string) *Job {
	return &Job{
		ID:          id,
		Status:      JobStatusQueued,
		Query:       query,
		DocumentRef: documentRef,
		SubmittedAt: time.Now().UTC(),
	}
}

// Validate checks the structural invariants of a job record.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.DocumentRef == "" {
		return fmt.Errorf("document ref is required")
	}
	switch j.Status {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusFailed:
	default:
		return fmt.Errorf("invalid job status: %s", j.Status)
	}
	return nil
}

// MarkRunning transitions queued -> running. StartedAt is set exactly once.
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	now := time.Now().UTC()
	j.StartedAt = &now
}

// MarkSucceeded transitions running -> succeeded.
func (j *Job) MarkSucceeded() {
	j.Status = JobStatusSucceeded
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkFailed transitions running -> failed, recording the failed stage and
// cause.
func (j *Job) MarkFailed(stage StageName, cause string) {
	j.Status = JobStatusFailed
	j.Error = &ErrorDetail{Stage: stage, Cause: cause}
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// MarkSubmissionFailed transitions queued -> failed for a job whose work
// was never dispatched. No stage is attributed because none ran.
func (j *Job) MarkSubmissionFailed(cause string) {
	j.Status = JobStatusFailed
	j.Error = &ErrorDetail{Cause: cause}
	now := time.Now().UTC()
	j.CompletedAt = &now
}

// IsTerminal returns true once the job has reached succeeded or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// HasResult reports whether a stage already has a stored result. Used to
// keep stage retries from producing duplicate entries.
func (j *Job) HasResult(stage StageName) bool {
	for _, r := range j.StageResults {
		if r.Stage == stage {
			return true
		}
	}
	return false
}

// AppendResult appends a stage result if the stage is not already recorded.
func (j *Job) AppendResult(stage StageName, output StageOutput) {
	if j.HasResult(stage) {
		return
	}
	j.StageResults = append(j.StageResults, StageResult{
		Stage:       stage,
		Output:      output,
		CompletedAt: time.Now().UTC(),
	})
}
