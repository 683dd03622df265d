// Package jobs records merge runs in a SQLite journal.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the state of a recorded run.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is one merge run.
type Job struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	Output       string     `json:"output"`
	Inputs       []string   `json:"inputs"`
	Order        string     `json:"order"`
	Type         string     `json:"type"`
	LinesWritten int        `json:"linesWritten"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
	Result       string     `json:"result,omitempty"` // JSON run report
}

// NewJob creates a queued job. An empty id gets a fresh UUID.
func NewJob(id, output string, inputs []string, order, typ string) *Job {
	if id == "" {
		id = uuid.NewString()
	}
	return &Job{
		ID:        id,
		Status:    JobQueued,
		Output:    output,
		Inputs:    append([]string(nil), inputs...),
		Order:     order,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
}

// IsTerminal reports whether the job can no longer change.
func (j *Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled
}

func (j *Job) MarkStarted() {
	now := time.Now().UTC()
	j.Status = JobRunning
	j.StartedAt = &now
}

// MarkCompleted stores the lines written and the report, JSON-encoded
// unless it already is a string.
func (j *Job) MarkCompleted(lines int, result any) error {
	j.finish(JobCompleted)
	j.LinesWritten = lines
	return j.setResult(result)
}

// MarkFailed records err. Partial output still counts in lines.
func (j *Job) MarkFailed(lines int, err error, result any) error {
	j.finish(JobFailed)
	j.LinesWritten = lines
	if err != nil {
		j.Error = err.Error()
	}
	return j.setResult(result)
}

func (j *Job) MarkCancelled(lines int) {
	j.finish(JobCancelled)
	j.LinesWritten = lines
}

func (j *Job) finish(status JobStatus) {
	now := time.Now().UTC()
	j.Status = status
	j.CompletedAt = &now
}

func (j *Job) setResult(result any) error {
	switch r := result.(type) {
	case nil:
		return nil
	case string:
		j.Result = r
		return nil
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		j.Result = string(data)
		return nil
	}
}

// Duration is the time between start and completion, or zero.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// JobSummary is the list form of a Job, without the report.
type JobSummary struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	Output       string     `json:"output"`
	InputCount   int        `json:"inputCount"`
	LinesWritten int        `json:"linesWritten"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Error        string     `json:"error,omitempty"`
}

func (j *Job) ToSummary() JobSummary {
	return JobSummary{
		ID:           j.ID,
		Status:       j.Status,
		Output:       j.Output,
		InputCount:   len(j.Inputs),
		LinesWritten: j.LinesWritten,
		CreatedAt:    j.CreatedAt,
		CompletedAt:  j.CompletedAt,
		Error:        j.Error,
	}
}

// ListJobsOptions filters ListJobs. Limit defaults to 20 and is capped at 100.
type ListJobsOptions struct {
	Status []JobStatus
	Limit  int
	Offset int
}

type ListJobsResponse struct {
	Jobs       []JobSummary `json:"jobs"`
	TotalCount int          `json:"totalCount"`
}
