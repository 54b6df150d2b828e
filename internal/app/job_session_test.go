package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/internal/infrastructure"
)

// mockJobAPI is a scriptable JobAPI
type mockJobAPI struct {
	createFn func(ctx context.Context, req domain.DownloadRequest) (string, error)
	getFn    func(ctx context.Context, jobID string) (*domain.JobStatus, error)
	creates  atomic.Int32
	gets     atomic.Int32
}

func (m *mockJobAPI) CreateJob(ctx context.Context, req domain.DownloadRequest) (string, error) {
	m.creates.Add(1)
	return m.createFn(ctx, req)
}

func (m *mockJobAPI) GetJob(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	m.gets.Add(1)
	return m.getFn(ctx, jobID)
}

// updateRecorder collects observer callbacks
type updateRecorder struct {
	mu      sync.Mutex
	updates []JobUpdate
}

func (r *updateRecorder) OnJobUpdate(u JobUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *updateRecorder) all() []JobUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]JobUpdate(nil), r.updates...)
}

func (r *updateRecorder) last() JobUpdate {
	all := r.all()
	if len(all) == 0 {
		return JobUpdate{}
	}
	return all[len(all)-1]
}

// mockJobNotifier records terminal notifications
type mockJobNotifier struct {
	mu       sync.Mutex
	finished []string
	failed   []string
}

func (m *mockJobNotifier) NotifyJobFinished(url, fileName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, fileName)
}

func (m *mockJobNotifier) NotifyJobFailed(url, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, reason)
}

func (m *mockJobNotifier) finishedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.finished...)
}

// blockingNotifier holds NotifyJobFailed until release is closed
type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingNotifier) NotifyJobFinished(url, fileName string) {}

func (b *blockingNotifier) NotifyJobFailed(url, reason string) {
	close(b.entered)
	<-b.release
}

func progress(v float64) *float64 { return &v }

func mustDownloadRequest(t *testing.T) domain.DownloadRequest {
	t.Helper()
	req, err := domain.NewDownloadRequest("https://www.youtube.com/watch?v=abc", domain.KindVideo, 720, 0, "")
	require.NoError(t, err)
	return req
}

// manualSession never ticks on its own so Poll drives every step
func manualSession(t *testing.T, api domain.JobAPI, opts ...JobSessionOption) (*JobSession, *updateRecorder) {
	t.Helper()
	rec := &updateRecorder{}
	opts = append(opts, WithJobObserver(rec))
	s := NewJobSession(api, domain.JobConfig{PollInterval: time.Hour}, nil, opts...)
	t.Cleanup(s.Close)
	return s, rec
}

func TestJobSession_SubmitSuccessStartsPolling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/download", r.URL.Path)
		w.Write([]byte(`{"id":"42"}`))
	}))
	defer server.Close()

	client := infrastructure.NewJobClient(server.URL, 5*time.Second, nil)
	s, rec := manualSession(t, client)

	handle, err := s.Submit(context.Background(), mustDownloadRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "42", handle.JobID)
	assert.Equal(t, domain.JobPolling, handle.State)
	assert.Equal(t, domain.JobPolling, s.State())

	updates := rec.all()
	require.Len(t, updates, 2)
	assert.Equal(t, IndicatorSubmitting, updates[0].Indicator)
	assert.Equal(t, domain.JobSubmitting, updates[0].State)
	assert.Equal(t, IndicatorSubmitted, updates[1].Indicator)
}

func TestJobSession_SubmitRejectedReturnsToIdle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"bad url"}`))
	}))
	defer server.Close()

	s, rec := manualSession(t, infrastructure.NewJobClient(server.URL, 5*time.Second, nil))

	_, err := s.Submit(context.Background(), mustDownloadRequest(t))
	require.Error(t, err)
	assert.Equal(t, "bad url", err.Error())
	assert.Equal(t, domain.JobIdle, s.State())
	assert.Equal(t, "bad url", s.Snapshot().ErrorMessage)

	last := rec.last()
	assert.Equal(t, IndicatorRejected, last.Indicator)
	assert.Equal(t, "Error: bad url", last.Message)

	handle, err := s.Wait(context.Background())
	assert.Equal(t, domain.JobIdle, handle.State)
	assert.Error(t, err)
}

func TestJobSession_SubmitMissingJobID(t *testing.T) {
	api := &mockJobAPI{createFn: func(context.Context, domain.DownloadRequest) (string, error) {
		return "", domain.ErrMissingJobID
	}}
	s, rec := manualSession(t, api)

	_, err := s.Submit(context.Background(), mustDownloadRequest(t))
	assert.ErrorIs(t, err, domain.ErrMissingJobID)
	assert.Equal(t, domain.JobIdle, s.State())
	assert.Equal(t, "Error: server did not return a job ID", rec.last().Message)
	assert.Equal(t, int32(1), api.creates.Load())
}

func TestJobSession_PollMapping(t *testing.T) {
	var next *domain.JobStatus
	api := &mockJobAPI{
		createFn: func(context.Context, domain.DownloadRequest) (string, error) { return "42", nil },
		getFn: func(_ context.Context, jobID string) (*domain.JobStatus, error) {
			assert.Equal(t, "42", jobID)
			return next, nil
		},
	}
	s, rec := manualSession(t, api)
	ctx := context.Background()

	_, err := s.Submit(ctx, mustDownloadRequest(t))
	require.NoError(t, err)

	steps := []struct {
		status    domain.JobStatus
		indicator Indicator
		message   string
		progress  *int
	}{
		{domain.JobStatus{Status: "queued"}, IndicatorWaiting, "Waiting to start...", nil},
		{domain.JobStatus{Status: "pending"}, IndicatorWaiting, "Waiting to start...", nil},
		{domain.JobStatus{Status: "downloading", Progress: progress(37)}, IndicatorProgress, "Downloading... 37%", intPtr(37)},
		{domain.JobStatus{Status: "downloading", Progress: progress(0)}, IndicatorProgress, "Downloading... 0%", intPtr(0)},
		{domain.JobStatus{Status: "downloading"}, IndicatorIndeterminate, "Downloading...", nil},
		{domain.JobStatus{Status: "processing"}, IndicatorProcessing, "Processing file...", nil},
		{domain.JobStatus{Status: "merging", Message: "Merging formats"}, IndicatorProcessing, "Merging formats", nil},
		{domain.JobStatus{Status: "merging"}, IndicatorProcessing, "Processing...", nil},
	}

	for _, step := range steps {
		next = &step.status
		require.NoError(t, s.Poll(ctx))

		last := rec.last()
		assert.Equal(t, domain.JobPolling, last.State, step.status.Status)
		assert.Equal(t, step.indicator, last.Indicator, step.status.Status)
		assert.Equal(t, step.message, last.Message)
		assert.Equal(t, step.progress, last.Handle.Progress, step.message)
	}
}

func intPtr(v int) *int { return &v }

func TestJobSession_FinishedStopsPolling(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/download" {
			w.Write([]byte(`{"job_id":42}`))
			return
		}
		n := polls.Add(1)
		switch {
		case n == 1:
			w.Write([]byte(`{"status":"downloading","progress":37}`))
		default:
			w.Write([]byte(`{"status":"finished","file_name":"a.mp4","link":"https://dl.example/a.mp4"}`))
		}
	}))
	defer server.Close()

	notifier := &mockJobNotifier{}
	rec := &updateRecorder{}
	s := NewJobSession(infrastructure.NewJobClient(server.URL, 5*time.Second, nil),
		domain.JobConfig{PollInterval: 10 * time.Millisecond}, nil,
		WithJobObserver(rec), WithJobNotifier(notifier))
	defer s.Close()

	_, err := s.Submit(context.Background(), mustDownloadRequest(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	handle, err := s.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.JobFinished, handle.State)
	assert.Equal(t, "42", handle.JobID)
	assert.Equal(t, "a.mp4", handle.ResultFile)
	assert.Equal(t, "https://dl.example/a.mp4", handle.ResultLink)
	assert.Equal(t, "File: a.mp4", rec.last().Message)
	assert.Eventually(t, func() bool {
		names := notifier.finishedNames()
		return len(names) == 1 && names[0] == "a.mp4"
	}, time.Second, 5*time.Millisecond)

	var sawProgress bool
	for _, u := range rec.all() {
		if u.Indicator == IndicatorProgress && u.Handle.Progress != nil && *u.Handle.Progress == 37 {
			sawProgress = true
		}
	}
	assert.True(t, sawProgress)

	seen := polls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, polls.Load(), "no further ticks after finished")
}

func TestJobSession_RemoteFailure(t *testing.T) {
	api := &mockJobAPI{
		createFn: func(context.Context, domain.DownloadRequest) (string, error) { return "9", nil },
		getFn: func(context.Context, string) (*domain.JobStatus, error) {
			return &domain.JobStatus{Status: "error", Error: "unsupported site"}, nil
		},
	}
	notifier := &mockJobNotifier{}
	s, rec := manualSession(t, api, WithJobNotifier(notifier))
	ctx := context.Background()

	_, err := s.Submit(ctx, mustDownloadRequest(t))
	require.NoError(t, err)
	require.NoError(t, s.Poll(ctx))

	assert.Equal(t, domain.JobFailed, s.State())
	assert.Equal(t, "unsupported site", s.Snapshot().ErrorMessage)

	last := rec.last()
	assert.Equal(t, IndicatorFailed, last.Indicator)
	var failure *domain.RemoteFailure
	require.True(t, errors.As(last.Err, &failure))
	assert.Equal(t, "9", failure.JobID)
	assert.Equal(t, []string{"unsupported site"}, notifier.failed)

	assert.ErrorIs(t, s.Poll(ctx), ErrNotPolling)
	assert.Equal(t, int32(1), api.gets.Load())
}

func TestJobSession_SlowNotifierDoesNotBlockReaders(t *testing.T) {
	api := &mockJobAPI{
		createFn: func(context.Context, domain.DownloadRequest) (string, error) { return "9", nil },
		getFn: func(context.Context, string) (*domain.JobStatus, error) {
			return &domain.JobStatus{Status: "failed", Error: "unsupported site"}, nil
		},
	}
	notifier := &blockingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	s, _ := manualSession(t, api, WithJobNotifier(notifier))
	ctx := context.Background()

	_, err := s.Submit(ctx, mustDownloadRequest(t))
	require.NoError(t, err)

	polled := make(chan error, 1)
	go func() { polled <- s.Poll(ctx) }()

	select {
	case <-notifier.entered:
	case <-time.After(time.Second):
		t.Fatal("notifier was not called")
	}

	read := make(chan domain.JobHandle, 1)
	go func() { read <- s.Snapshot() }()
	select {
	case h := <-read:
		assert.Equal(t, domain.JobFailed, h.State)
		assert.Equal(t, "unsupported site", s.LastUpdate().Message)
	case <-time.After(time.Second):
		t.Fatal("Snapshot blocked while the notifier was running")
	}

	close(notifier.release)
	require.NoError(t, <-polled)
}

func TestJobSession_TransportErrorFailsWithoutRetry(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/download" {
			w.Write([]byte(`{"id":"42"}`))
			return
		}
		polls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	rec := &updateRecorder{}
	s := NewJobSession(infrastructure.NewJobClient(server.URL, 5*time.Second, nil),
		domain.JobConfig{PollInterval: 10 * time.Millisecond}, nil, WithJobObserver(rec))
	defer s.Close()

	_, err := s.Submit(context.Background(), mustDownloadRequest(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	handle, err := s.Wait(ctx)

	var transportErr *domain.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, domain.JobFailed, handle.State)
	assert.Equal(t, "Error checking status: Failed to get status: 503", handle.ErrorMessage)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), polls.Load(), "no retry after a transport failure")
}

func TestJobSession_StaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	inFlight := make(chan struct{})
	var ids atomic.Int32

	api := &mockJobAPI{
		createFn: func(context.Context, domain.DownloadRequest) (string, error) {
			if ids.Add(1) == 1 {
				return "old", nil
			}
			return "new", nil
		},
		getFn: func(_ context.Context, jobID string) (*domain.JobStatus, error) {
			if jobID == "old" {
				close(inFlight)
				<-release
				return &domain.JobStatus{Status: "finished", FileName: "stale.mp4"}, nil
			}
			return &domain.JobStatus{Status: "queued"}, nil
		},
	}
	s, rec := manualSession(t, api)
	ctx := context.Background()

	_, err := s.Submit(ctx, mustDownloadRequest(t))
	require.NoError(t, err)

	pollErr := make(chan error, 1)
	go func() { pollErr <- s.Poll(ctx) }()
	<-inFlight

	handle, err := s.Submit(ctx, mustDownloadRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "new", handle.JobID)

	close(release)
	assert.ErrorIs(t, <-pollErr, domain.ErrSuperseded)

	snap := s.Snapshot()
	assert.Equal(t, domain.JobPolling, snap.State)
	assert.Equal(t, "new", snap.JobID)
	assert.Empty(t, snap.ResultFile)
	for _, u := range rec.all() {
		assert.NotEqual(t, IndicatorFinished, u.Indicator)
	}
}

func TestJobSession_CloseStopsCallbacks(t *testing.T) {
	release := make(chan struct{})
	inFlight := make(chan struct{})
	api := &mockJobAPI{
		createFn: func(context.Context, domain.DownloadRequest) (string, error) { return "42", nil },
		getFn: func(context.Context, string) (*domain.JobStatus, error) {
			close(inFlight)
			<-release
			return &domain.JobStatus{Status: "finished", FileName: "a.mp4"}, nil
		},
	}
	rec := &updateRecorder{}
	s := NewJobSession(api, domain.JobConfig{PollInterval: time.Hour}, nil, WithJobObserver(rec))
	ctx := context.Background()

	_, err := s.Submit(ctx, mustDownloadRequest(t))
	require.NoError(t, err)

	pollErr := make(chan error, 1)
	go func() { pollErr <- s.Poll(ctx) }()
	<-inFlight

	s.Close()
	before := len(rec.all())
	close(release)

	assert.ErrorIs(t, <-pollErr, domain.ErrSessionClosed)
	assert.Equal(t, before, len(rec.all()), "no callback after close")

	_, err = s.Submit(ctx, mustDownloadRequest(t))
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	_, err = s.Wait(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestJobSession_NewSubmitAfterTerminal(t *testing.T) {
	var n atomic.Int32
	api := &mockJobAPI{
		createFn: func(context.Context, domain.DownloadRequest) (string, error) {
			if n.Add(1) == 1 {
				return "1", nil
			}
			return "2", nil
		},
		getFn: func(context.Context, string) (*domain.JobStatus, error) {
			return &domain.JobStatus{Status: "failed", Message: "boom"}, nil
		},
	}
	s, _ := manualSession(t, api)
	ctx := context.Background()

	_, err := s.Submit(ctx, mustDownloadRequest(t))
	require.NoError(t, err)
	require.NoError(t, s.Poll(ctx))
	require.Equal(t, domain.JobFailed, s.State())

	handle, err := s.Submit(ctx, mustDownloadRequest(t))
	require.NoError(t, err)
	assert.Equal(t, "2", handle.JobID)
	assert.Equal(t, domain.JobPolling, handle.State)
	assert.Empty(t, handle.ErrorMessage)
}

func TestJobSession_RecordsHistory(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "session-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	repo, err := infrastructure.NewSQLiteJobRepository(filepath.Join(tmpDir, "jobs.db"))
	require.NoError(t, err)
	defer repo.Close()

	api := &mockJobAPI{
		createFn: func(context.Context, domain.DownloadRequest) (string, error) { return "42", nil },
		getFn: func(context.Context, string) (*domain.JobStatus, error) {
			return &domain.JobStatus{Status: "completed", FileName: "a.mp4"}, nil
		},
	}
	s, _ := manualSession(t, api, WithJobRepository(repo))
	ctx := context.Background()

	_, err = s.Submit(ctx, mustDownloadRequest(t))
	require.NoError(t, err)

	record, err := repo.FindByJobID("42")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.JobPolling, record.State)

	require.NoError(t, s.Poll(ctx))

	record, err = repo.FindByJobID("42")
	require.NoError(t, err)
	assert.Equal(t, domain.JobFinished, record.State)
	assert.Equal(t, "a.mp4", record.ResultFile)
	assert.NotNil(t, record.FinishedAt)
}

func TestJobSession_WaitBeforeSubmit(t *testing.T) {
	s, _ := manualSession(t, &mockJobAPI{})
	handle, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.JobIdle, handle.State)
	assert.ErrorIs(t, s.Poll(context.Background()), ErrNotPolling)
}

func TestClampProgress(t *testing.T) {
	assert.Equal(t, 0, clampProgress(-3))
	assert.Equal(t, 38, clampProgress(37.6))
	assert.Equal(t, 100, clampProgress(140))
}

func TestJobService_CancelReplacesSession(t *testing.T) {
	api := &mockJobAPI{
		createFn: func(context.Context, domain.DownloadRequest) (string, error) { return "42", nil },
	}
	svc := NewJobService(func() *JobSession {
		return NewJobSession(api, domain.JobConfig{PollInterval: time.Hour}, nil)
	}, nil)
	defer svc.Close()

	first := svc.Session()
	_, err := svc.Submit(context.Background(), mustDownloadRequest(t))
	require.NoError(t, err)

	handle := svc.Cancel()
	assert.Equal(t, "42", handle.JobID)
	assert.NotSame(t, first, svc.Session())
	assert.Equal(t, domain.JobIdle, svc.Session().State())

	_, err = first.Submit(context.Background(), mustDownloadRequest(t))
	assert.ErrorIs(t, err, domain.ErrSessionClosed)

	history, err := svc.History(10)
	require.NoError(t, err)
	assert.Empty(t, history)
}
