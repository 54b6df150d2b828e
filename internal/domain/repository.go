package domain

// JobRepository defines the interface for job history persistence
type JobRepository interface {
	// Create creates a new job record
	Create(record *JobRecord) error

	// Update updates an existing job record
	Update(record *JobRecord) error

	// FindByID finds a record by its local ID
	FindByID(id string) (*JobRecord, error)

	// FindByJobID finds the most recent record for a remote job id
	FindByJobID(jobID string) (*JobRecord, error)

	// FindRecent returns up to limit records, newest first
	FindRecent(limit int) ([]*JobRecord, error)

	// GetStats returns job statistics
	GetStats() (*JobStats, error)
}

// JobStats represents job history statistics
type JobStats struct {
	Total    int64 `json:"total"`
	Polling  int64 `json:"polling"`
	Finished int64 `json:"finished"`
	Failed   int64 `json:"failed"`
}
