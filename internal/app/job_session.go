package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/pkg/logger"
	"go.uber.org/zap"
)

// ErrNotPolling is returned by Poll when no job is being tracked
var ErrNotPolling = errors.New("no job is being polled")

// Indicator tells the UI how to render the current step
type Indicator string

const (
	IndicatorSubmitting    Indicator = "submitting"
	IndicatorSubmitted     Indicator = "submitted"
	IndicatorWaiting       Indicator = "waiting"
	IndicatorProgress      Indicator = "progress"
	IndicatorIndeterminate Indicator = "indeterminate"
	IndicatorProcessing    Indicator = "processing"
	IndicatorFinished      Indicator = "finished"
	IndicatorFailed        Indicator = "failed"
	IndicatorRejected      Indicator = "rejected"
)

// JobUpdate is one observable step of a session
type JobUpdate struct {
	State     domain.JobState  `json:"state"`
	Indicator Indicator        `json:"indicator"`
	Message   string           `json:"message"`
	Handle    domain.JobHandle `json:"handle"`
	Err       error            `json:"-"`
}

// JobObserver receives every update of a session. Updates are delivered
// synchronously while the session is locked; implementations must not call
// back into the session.
type JobObserver interface {
	OnJobUpdate(update JobUpdate)
}

// JobObserverFunc adapts a function to JobObserver
type JobObserverFunc func(JobUpdate)

// OnJobUpdate calls f
func (f JobObserverFunc) OnJobUpdate(update JobUpdate) {
	f(update)
}

// JobNotifier reports finished and failed jobs
type JobNotifier interface {
	NotifyJobFinished(url, fileName string)
	NotifyJobFailed(url, reason string)
}

// JobSessionOption configures a JobSession
type JobSessionOption func(*JobSession)

// WithJobRepository records every job in repo
func WithJobRepository(repo domain.JobRepository) JobSessionOption {
	return func(s *JobSession) { s.repo = repo }
}

// WithJobNotifier reports terminal states through notifier
func WithJobNotifier(notifier JobNotifier) JobSessionOption {
	return func(s *JobSession) { s.notifier = notifier }
}

// WithJobObserver subscribes observer from the start
func WithJobObserver(observer JobObserver) JobSessionOption {
	return func(s *JobSession) { s.observers = append(s.observers, observer) }
}

// WithMultiLogger writes job lifecycle events to the job log
func WithMultiLogger(ml *logger.MultiLogger) JobSessionOption {
	return func(s *JobSession) { s.multiLogger = ml }
}

// JobSession drives at most one remote job at a time through
// idle -> submitting -> polling -> finished | failed
type JobSession struct {
	api         domain.JobAPI
	repo        domain.JobRepository
	notifier    JobNotifier
	multiLogger *logger.MultiLogger
	interval    time.Duration
	logger      *zap.Logger

	mu         sync.Mutex
	state      domain.JobState
	handle     domain.JobHandle
	request    domain.DownloadRequest
	record     *domain.JobRecord
	last       JobUpdate
	generation uint64
	cancelLoop context.CancelFunc
	loopDone   chan struct{}
	terminal   chan struct{}
	closed     bool
	observers  []JobObserver
	notices    []func() // queued under mu, fired once it is released
}

// NewJobSession creates an idle session
func NewJobSession(api domain.JobAPI, config domain.JobConfig, log *zap.Logger, opts ...JobSessionOption) *JobSession {
	if log == nil {
		log = zap.NewNop()
	}
	interval := config.PollInterval
	if interval <= 0 {
		interval = domain.DefaultConfig().Job.PollInterval
	}

	s := &JobSession{
		api:      api,
		interval: interval,
		logger:   log,
		state:    domain.JobIdle,
		handle:   domain.JobHandle{State: domain.JobIdle},
	}
	s.last = JobUpdate{State: domain.JobIdle, Handle: s.handle}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe adds an observer
func (s *JobSession) Subscribe(observer JobObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// State returns the current state
func (s *JobSession) State() domain.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the current handle
func (s *JobSession) Snapshot() domain.JobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle.Clone()
}

// LastUpdate returns the most recent update delivered to observers
func (s *JobSession) LastUpdate() JobUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.last
	u.Handle = u.Handle.Clone()
	return u
}

// Submit cancels any job in progress and submits req with exactly one
// creation call. On success the session is polling; on failure it is idle
// again and the error carries the user-visible message.
func (s *JobSession) Submit(ctx context.Context, req domain.DownloadRequest) (domain.JobHandle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.JobHandle{}, domain.ErrSessionClosed
	}
	s.stopLoopLocked()
	s.closeTerminalLocked()
	s.generation++
	gen := s.generation
	s.request = req
	s.record = nil
	s.terminal = make(chan struct{})
	s.transitionLocked(domain.JobSubmitting, domain.JobHandle{State: domain.JobSubmitting})
	s.emitLocked(IndicatorSubmitting, "Initiating download...", nil)
	s.mu.Unlock()

	jobID, err := s.api.CreateJob(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.JobHandle{}, domain.ErrSessionClosed
	}
	if gen != s.generation {
		return domain.JobHandle{}, domain.ErrSuperseded
	}

	if err != nil {
		msg := submissionMessage(err)
		s.transitionLocked(domain.JobIdle, domain.JobHandle{State: domain.JobIdle, ErrorMessage: msg})
		s.emitLocked(IndicatorRejected, "Error: "+msg, err)
		s.closeTerminalLocked()
		s.logger.Warn("Job submission failed", zap.String("url", req.URL), zap.Error(err))
		return domain.JobHandle{}, err
	}

	s.transitionLocked(domain.JobPolling, domain.JobHandle{JobID: jobID, State: domain.JobPolling})
	s.persistCreateLocked(jobID)
	s.emitLocked(IndicatorSubmitted, "Download in progress...", nil)
	if s.multiLogger != nil {
		s.multiLogger.LogJobEvent("job_submitted",
			zap.String("job_id", jobID),
			zap.String("url", req.URL),
			zap.String("kind", string(req.Kind)))
	}
	s.startLoopLocked(gen)

	return s.handle.Clone(), nil
}

// Poll performs one status fetch for the tracked job and applies it
func (s *JobSession) Poll(ctx context.Context) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	_, err := s.poll(ctx, gen)
	return err
}

// Wait blocks until the current job reaches a terminal state, the
// submission fails, or the session is closed
func (s *JobSession) Wait(ctx context.Context) (domain.JobHandle, error) {
	s.mu.Lock()
	ch := s.terminal
	s.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return s.Snapshot(), ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && !s.state.IsTerminal() {
		return s.handle.Clone(), domain.ErrSessionClosed
	}
	if s.state == domain.JobFailed || s.state == domain.JobIdle {
		return s.handle.Clone(), s.last.Err
	}
	return s.handle.Clone(), nil
}

// Close tears the session down. Once it returns no observer is called again.
func (s *JobSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopLoopLocked()
	s.closeTerminalLocked()
	done := s.loopDone
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	s.logger.Debug("Job session closed")
}

func (s *JobSession) startLoopLocked(gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancelLoop = cancel
	s.loopDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if cont, _ := s.poll(ctx, gen); !cont {
					return
				}
			}
		}
	}()
}

func (s *JobSession) stopLoopLocked() {
	if s.cancelLoop != nil {
		s.cancelLoop()
		s.cancelLoop = nil
	}
}

func (s *JobSession) closeTerminalLocked() {
	if s.terminal != nil {
		select {
		case <-s.terminal:
		default:
			close(s.terminal)
		}
	}
}

// poll fetches and applies one status for generation gen. It reports whether
// polling should continue.
func (s *JobSession) poll(ctx context.Context, gen uint64) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, domain.ErrSessionClosed
	}
	if gen != s.generation || s.state != domain.JobPolling {
		s.mu.Unlock()
		return false, ErrNotPolling
	}
	jobID := s.handle.JobID
	s.mu.Unlock()

	status, err := s.api.GetJob(ctx, jobID)

	s.mu.Lock()
	cont, err := s.settleLocked(ctx, gen, jobID, status, err)
	notices := s.notices
	s.notices = nil
	s.mu.Unlock()

	// notifiers may shell out, so they run after the lock is released
	for _, notify := range notices {
		notify()
	}
	return cont, err
}

func (s *JobSession) settleLocked(ctx context.Context, gen uint64, jobID string, status *domain.JobStatus, err error) (bool, error) {
	if s.closed {
		return false, domain.ErrSessionClosed
	}
	if gen != s.generation || s.state != domain.JobPolling || s.handle.JobID != jobID {
		s.logger.Debug("Discarding stale job status", zap.String("job_id", jobID))
		return false, domain.ErrSuperseded
	}
	if err != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		s.failLocked("Error checking status: "+err.Error(), err)
		return false, err
	}

	return s.applyLocked(status), nil
}

// applyLocked maps a remote status onto the state machine
func (s *JobSession) applyLocked(status *domain.JobStatus) bool {
	h := s.handle.Clone()

	switch strings.ToLower(status.Status) {
	case domain.RemoteQueued, domain.RemotePending:
		s.transitionLocked(domain.JobPolling, h)
		s.emitLocked(IndicatorWaiting, "Waiting to start...", nil)

	case domain.RemoteDownloading:
		if status.Progress != nil {
			p := clampProgress(*status.Progress)
			h.Progress = &p
			s.transitionLocked(domain.JobPolling, h)
			s.emitLocked(IndicatorProgress, fmt.Sprintf("Downloading... %d%%", p), nil)
		} else {
			h.Progress = nil
			s.transitionLocked(domain.JobPolling, h)
			s.emitLocked(IndicatorIndeterminate, "Downloading...", nil)
		}

	case domain.RemoteProcessing:
		h.Progress = nil
		s.transitionLocked(domain.JobPolling, h)
		s.emitLocked(IndicatorProcessing, "Processing file...", nil)

	case domain.RemoteFinished, domain.RemoteCompleted:
		h.State = domain.JobFinished
		h.ResultFile = status.FileName
		h.ResultLink = status.Link
		s.transitionLocked(domain.JobFinished, h)
		s.stopLoopLocked()

		msg := "Your file is ready"
		if status.FileName != "" {
			msg = "File: " + status.FileName
		}
		s.emitLocked(IndicatorFinished, msg, nil)
		s.persistUpdateLocked()
		if s.notifier != nil {
			notifier, url, fileName := s.notifier, s.request.URL, status.FileName
			s.notices = append(s.notices, func() { notifier.NotifyJobFinished(url, fileName) })
		}
		if s.multiLogger != nil {
			s.multiLogger.LogJobEvent("job_finished",
				zap.String("job_id", h.JobID),
				zap.String("file_name", status.FileName),
				zap.String("link", status.Link))
		}
		s.logger.Info("Job finished", zap.String("job_id", h.JobID), zap.String("file_name", status.FileName))
		s.closeTerminalLocked()
		return false

	case domain.RemoteError, domain.RemoteFailed:
		failure := domain.NewRemoteFailure(h.JobID, *status)
		s.failLocked(failure.Message, failure)
		return false

	default:
		msg := status.Message
		if msg == "" {
			msg = "Processing..."
		}
		s.transitionLocked(domain.JobPolling, h)
		s.emitLocked(IndicatorProcessing, msg, nil)
	}

	s.persistUpdateLocked()
	return true
}

func (s *JobSession) failLocked(msg string, err error) {
	h := s.handle.Clone()
	h.State = domain.JobFailed
	h.ErrorMessage = msg
	s.transitionLocked(domain.JobFailed, h)
	s.stopLoopLocked()
	s.emitLocked(IndicatorFailed, msg, err)
	s.persistUpdateLocked()

	if s.notifier != nil {
		notifier, url := s.notifier, s.request.URL
		s.notices = append(s.notices, func() { notifier.NotifyJobFailed(url, msg) })
	}
	if s.multiLogger != nil {
		s.multiLogger.LogJobEvent("job_failed",
			zap.String("job_id", h.JobID),
			zap.String("error", msg))
	}
	s.logger.Warn("Job failed", zap.String("job_id", h.JobID), zap.String("error", msg))
	s.closeTerminalLocked()
}

func (s *JobSession) transitionLocked(to domain.JobState, h domain.JobHandle) {
	if s.state != to && !domain.CanTransition(s.state, to) {
		s.logger.Error("Invalid job transition",
			zap.String("from", string(s.state)),
			zap.String("to", string(to)))
		return
	}
	h.State = to
	s.state = to
	s.handle = h
}

// emitLocked delivers an update to every observer while holding the lock so
// callbacks are serialized and none fires after Close
func (s *JobSession) emitLocked(indicator Indicator, msg string, err error) {
	update := JobUpdate{
		State:     s.state,
		Indicator: indicator,
		Message:   msg,
		Handle:    s.handle.Clone(),
		Err:       err,
	}
	s.last = update
	for _, o := range s.observers {
		o.OnJobUpdate(update)
	}
}

func (s *JobSession) persistCreateLocked(jobID string) {
	if s.repo == nil {
		return
	}
	record := domain.NewJobRecord(jobID, s.request)
	if err := s.repo.Create(record); err != nil {
		s.logger.Error("Failed to record job", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	s.record = record
}

func (s *JobSession) persistUpdateLocked() {
	if s.repo == nil || s.record == nil {
		return
	}
	s.record.Apply(s.handle)
	if err := s.repo.Update(s.record); err != nil {
		s.logger.Error("Failed to update job record", zap.String("job_id", s.record.JobID), zap.Error(err))
	}
}

func submissionMessage(err error) string {
	var subErr *domain.SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Message
	}
	return err.Error()
}

func clampProgress(p float64) int {
	v := int(math.Round(p))
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
