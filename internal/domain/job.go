package domain

import "time"

// JobStatus enumerates generation lifecycle states.
type JobStatus string

const (
	JobStatusIdle       JobStatus = "idle"
	JobStatusSubmitting JobStatus = "submitting"
	JobStatusPolling    JobStatus = "polling"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Active reports whether a job in this status still has work in flight.
func (s JobStatus) Active() bool {
	return s == JobStatusSubmitting || s == JobStatusPolling
}

// Terminal reports whether the status ends a run.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// GenerationJob is the observable state of one generation run. The lifecycle
// controller owns the live value; everyone else works on copies.
type GenerationJob struct {
	ID           string
	Prompt       string
	AspectRatio  AspectRatio
	ExternalID   string
	PollEndpoint string
	Status       JobStatus
	Progress     int
	Images       []string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	ErrorKind    string
	StoredID     string
	Revision     uint64
}

// Loading is true while the job is submitting or polling.
func (j GenerationJob) Loading() bool {
	return j.Status.Active()
}

// Elapsed returns the time between start and completion, or zero when the job
// has not completed.
func (j GenerationJob) Elapsed() time.Duration {
	if j.CompletedAt == nil || j.StartedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt)
}

// Clone returns a deep copy safe to hand out to observers.
func (j GenerationJob) Clone() GenerationJob {
	out := j
	if j.Images != nil {
		out.Images = append([]string(nil), j.Images...)
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
