package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// JobTypeClustering is the type of clustering jobs.
const JobTypeClustering = "clustering"

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// IsValid reports whether s is a known status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a job may move from one status to another.
// pending -> running -> {done, failed}; pending may also fail directly.
// Staying in the same non-terminal status is allowed for progress updates.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning || to == JobStatusFailed
	case JobStatusRunning:
		return to == JobStatusDone || to == JobStatusFailed
	}
	return false
}

// Job is the polling record of one orchestrator invocation.
type Job struct {
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Meta       JSONObject `json:"metaJson,omitempty"`
	ID         string     `json:"id"`
	ProjectID  string     `json:"projectId"`
	Type       string     `json:"type"`
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	Progress   int        `json:"progress"`
}

// JobPatch is a partial job update. Nil fields are left unchanged.
type JobPatch struct {
	Status     *JobStatus
	Progress   *int
	Error      *string
	Meta       JSONObject
	FinishedAt *time.Time
}

// Apply applies the patch to a copy of job and returns it.
func (p JobPatch) Apply(job Job) Job {
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.Progress != nil {
		job.Progress = ClampProgress(*p.Progress)
	}
	if p.Error != nil {
		job.Error = *p.Error
	}
	if p.Meta != nil {
		job.Meta = p.Meta
	}
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		job.FinishedAt = &t
	}
	return job
}

// ClampProgress bounds progress to 0–100.
func ClampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Running returns a patch moving the job to running at the given progress.
func Running(progress int) JobPatch {
	s := JobStatusRunning
	return JobPatch{Status: &s, Progress: &progress}
}

// ProgressTo returns a patch that only updates progress.
func ProgressTo(progress int) JobPatch {
	return JobPatch{Progress: &progress}
}

// Done returns a patch marking the job done with its summary.
func Done(meta JSONObject, at time.Time) JobPatch {
	s := JobStatusDone
	p := 100
	return JobPatch{Status: &s, Progress: &p, Meta: meta, FinishedAt: &at}
}

// Failed returns a patch marking the job failed.
func Failed(msg string, at time.Time) JobPatch {
	s := JobStatusFailed
	return JobPatch{Status: &s, Error: &msg, FinishedAt: &at}
}
