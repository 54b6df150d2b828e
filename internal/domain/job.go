package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the local state of a submission
type JobState string

const (
	JobIdle       JobState = "idle"
	JobSubmitting JobState = "submitting"
	JobPolling    JobState = "polling"
	JobFinished   JobState = "finished"
	JobFailed     JobState = "failed"
)

// IsTerminal reports whether no further transition can happen without a new submit
func (s JobState) IsTerminal() bool {
	return s == JobFinished || s == JobFailed
}

// CanTransition reports whether the state machine allows from -> to.
// Leaving a terminal state is only possible through a new submission.
func CanTransition(from, to JobState) bool {
	switch to {
	case JobSubmitting:
		return from != JobSubmitting
	case JobIdle:
		return from == JobSubmitting
	case JobPolling:
		return from == JobSubmitting || from == JobPolling
	case JobFinished, JobFailed:
		return from == JobPolling
	}
	return false
}

// RemoteStatus values reported by the job API
const (
	RemoteQueued      = "queued"
	RemotePending     = "pending"
	RemoteDownloading = "downloading"
	RemoteProcessing  = "processing"
	RemoteFinished    = "finished"
	RemoteCompleted   = "completed"
	RemoteError       = "error"
	RemoteFailed      = "failed"
)

// JobStatus is one decoded response of GET /api/jobs/{id}
type JobStatus struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	FileName string   `json:"file_name,omitempty"`
	Link     string   `json:"link,omitempty"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// JobHandle tracks the single active job of a session
type JobHandle struct {
	JobID        string   `json:"job_id"`
	State        JobState `json:"state"`
	Progress     *int     `json:"progress,omitempty"`
	ResultFile   string   `json:"result_file,omitempty"`
	ResultLink   string   `json:"result_link,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// Clone returns a copy that shares no pointers with h
func (h JobHandle) Clone() JobHandle {
	if h.Progress != nil {
		p := *h.Progress
		h.Progress = &p
	}
	return h
}

// JobRecord is the persisted history of one submission
type JobRecord struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	JobID        string       `json:"job_id" gorm:"index"`
	URL          string       `json:"url" gorm:"not null"`
	Kind         DownloadKind `json:"kind" gorm:"not null"`
	State        JobState     `json:"state" gorm:"not null;index"`
	Progress     int          `json:"progress"`
	ResultFile   string       `json:"result_file,omitempty"`
	ResultLink   string       `json:"result_link,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}

// TableName specifies the table name for GORM
func (JobRecord) TableName() string {
	return "jobs"
}

// NewJobRecord creates a history row for a freshly accepted job
func NewJobRecord(jobID string, req DownloadRequest) *JobRecord {
	now := time.Now()
	return &JobRecord{
		ID:        uuid.New().String(),
		JobID:     jobID,
		URL:       req.URL,
		Kind:      req.Kind,
		State:     JobPolling,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply copies the handle's observable fields into the record
func (r *JobRecord) Apply(h JobHandle) {
	r.State = h.State
	if h.Progress != nil {
		r.Progress = *h.Progress
	}
	r.ResultFile = h.ResultFile
	r.ResultLink = h.ResultLink
	r.ErrorMessage = h.ErrorMessage
	now := time.Now()
	r.UpdatedAt = now
	if h.State.IsTerminal() {
		r.FinishedAt = &now
	}
}
