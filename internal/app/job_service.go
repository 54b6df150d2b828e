package app

import (
	"context"
	"sync"

	"github.com/yourusername/grabber-go/internal/domain"
)

// JobService owns the session served over the API. Cancelling tears the
// current session down and starts a fresh idle one.
type JobService struct {
	mu      sync.Mutex
	current *JobSession
	factory func() *JobSession
	repo    domain.JobRepository
}

// NewJobService creates a service whose sessions come from factory. repo may
// be nil when history is disabled.
func NewJobService(factory func() *JobSession, repo domain.JobRepository) *JobService {
	return &JobService{
		current: factory(),
		factory: factory,
		repo:    repo,
	}
}

// Session returns the active session
func (s *JobService) Session() *JobSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Submit submits req on the active session
func (s *JobService) Submit(ctx context.Context, req domain.DownloadRequest) (domain.JobHandle, error) {
	return s.Session().Submit(ctx, req)
}

// Cancel closes the active session and replaces it. It returns the handle the
// closed session held.
func (s *JobService) Cancel() domain.JobHandle {
	s.mu.Lock()
	old := s.current
	s.current = s.factory()
	s.mu.Unlock()

	handle := old.Snapshot()
	old.Close()
	return handle
}

// History returns up to limit recorded jobs, newest first
func (s *JobService) History(limit int) ([]*domain.JobRecord, error) {
	if s.repo == nil {
		return []*domain.JobRecord{}, nil
	}
	return s.repo.FindRecent(limit)
}

// Stats returns job history statistics
func (s *JobService) Stats() (*domain.JobStats, error) {
	if s.repo == nil {
		return &domain.JobStats{}, nil
	}
	return s.repo.GetStats()
}

// Close closes the active session
func (s *JobService) Close() {
	s.Session().Close()
}
