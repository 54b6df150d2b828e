package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrClassificationSkip marks an address that was excluded; it is never surfaced
	ErrClassificationSkip = errors.New("address is not a downloadable media URL")

	// ErrMissingJobID is returned when a successful creation call carries no job id
	ErrMissingJobID = errors.New("server did not return a job ID")

	// ErrSessionClosed is returned by operations on a torn-down job session
	ErrSessionClosed = errors.New("job session closed")

	// ErrSuperseded is returned when a newer submission replaced this one mid-flight
	ErrSuperseded = errors.New("submission superseded by a newer request")
)

// SubmissionError is a failed creation call
type SubmissionError struct {
	StatusCode int    // 0 when the request never got a response
	Message    string // server detail or a generic status message
	Err        error
}

func (e *SubmissionError) Error() string {
	return e.Message
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// NewSubmissionError builds the user-visible error for a rejected creation call
func NewSubmissionError(statusCode int, detail string) *SubmissionError {
	msg := detail
	if msg == "" {
		msg = fmt.Sprintf("Server error: %d", statusCode)
	}
	return &SubmissionError{StatusCode: statusCode, Message: msg}
}

// TransportError is a failed status fetch during polling
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("Failed to get status: %d", e.StatusCode)
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteFailure is a job the remote service reported as failed
type RemoteFailure struct {
	JobID   string
	Message string
}

func (e *RemoteFailure) Error() string {
	return e.Message
}

// DefaultFailureMessage is used when a failed job carries no message
const DefaultFailureMessage = "Download failed"

// NewRemoteFailure picks the most specific message the server provided
func NewRemoteFailure(jobID string, status JobStatus) *RemoteFailure {
	msg := status.Message
	if msg == "" {
		msg = status.Error
	}
	if msg == "" {
		msg = DefaultFailureMessage
	}
	return &RemoteFailure{JobID: jobID, Message: msg}
}
