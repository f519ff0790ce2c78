package operations

import (
	"context"
	"encoding/json"
	"maps"
	"time"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is one unit of asynchronous work. Params is the runner-specific request
// body; Result is whatever the runner returned on success.
type Job struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Status      JobStatus              `json:"status"`
	Progress    int                    `json:"progress"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Params      json.RawMessage        `json:"params,omitempty"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a copy that can be handed out without sharing mutable state.
func (j *Job) Clone() *Job {
	c := *j
	c.Params = append(json.RawMessage(nil), j.Params...)
	c.Result = maps.Clone(j.Result)
	c.Metadata = maps.Clone(j.Metadata)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Duration is the run time so far, or the total once finished.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}

// ProgressFunc reports a percentage in [0, 100] and a short message.
type ProgressFunc func(progress int, message string)

// Runner executes jobs of one type.
type Runner interface {
	Run(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, job *Job, progress ProgressFunc) (map[string]interface{}, error) {
	return f(ctx, job, progress)
}

// JobFilter for querying jobs
type JobFilter struct {
	Status JobStatus
	Type   string
	Since  time.Time
	Limit  int
}

// JobStore persists jobs. Implementations must copy on the way in and out.
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	DeleteJob(id string) error
}

// WebSocketHub receives job events for connected clients.
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}
