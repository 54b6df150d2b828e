package domain

import "context"

// JobAPI is the remote conversion service the orchestrator drives
type JobAPI interface {
	// CreateJob submits req and returns the remote job id
	CreateJob(ctx context.Context, req DownloadRequest) (string, error)

	// GetJob fetches the current status of a job
	GetJob(ctx context.Context, jobID string) (*JobStatus, error)
}
