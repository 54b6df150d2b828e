package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/internal/infrastructure"
	"go.uber.org/zap"
)

// MessageKind is the closed set of host messages
type MessageKind string

const (
	MsgMediaDetected    MessageKind = "mediaDetected"
	MsgGetDetectedMedia MessageKind = "getDetectedMedia"
	MsgGetMedia         MessageKind = "getMedia"
	MsgRescan           MessageKind = "rescan"
	MsgPing             MessageKind = "ping"
	MsgContextRemoved   MessageKind = "contextRemoved"
	MsgContextUpdated   MessageKind = "contextUpdated"
)

// Response status values
const (
	StatusReceived  = "received"
	StatusRescanned = "rescanned"
	StatusAlive     = "alive"
	StatusRemoved   = "removed"
	StatusUpdated   = "updated"
)

var (
	// ErrUnknownMessage is returned for an action outside the closed set
	ErrUnknownMessage = errors.New("unknown message action")

	// ErrUnknownContext is returned when no page is attached to the context
	ErrUnknownContext = errors.New("no page attached to context")

	// ErrMissingContext is returned when a context-scoped message has no context id
	ErrMissingContext = errors.New("context id is required")
)

// Message is one request from the host environment
type Message struct {
	Action    MessageKind            `json:"action"`
	ContextID string                 `json:"contextId,omitempty"`
	Data      *domain.MediaCandidate `json:"data,omitempty"`
	URL       string                 `json:"url,omitempty"`
}

// Response answers a Message
type Response struct {
	Status        string                  `json:"status,omitempty"`
	Recorded      bool                    `json:"recorded,omitempty"`
	Media         []domain.MediaCandidate `json:"media,omitempty"`
	DetectedCount int                     `json:"detectedCount,omitempty"`
	PageURL       string                  `json:"pageUrl,omitempty"`
	PageTitle     string                  `json:"pageTitle,omitempty"`
}

// Host routes host messages to the aggregator and per-context monitors
type Host struct {
	aggregator *DetectionAggregator
	scanner    *infrastructure.PageScanner
	config     domain.DetectionConfig
	logger     *zap.Logger

	mu       sync.Mutex
	monitors map[string]*PageMonitor
	ctx      context.Context
}

// NewHost creates a dispatcher. Monitors started by Attach live until ctx is
// cancelled, the context is removed, or Close is called.
func NewHost(
	ctx context.Context,
	aggregator *DetectionAggregator,
	scanner *infrastructure.PageScanner,
	config domain.DetectionConfig,
	logger *zap.Logger,
) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		aggregator: aggregator,
		scanner:    scanner,
		config:     config,
		logger:     logger,
		monitors:   make(map[string]*PageMonitor),
		ctx:        ctx,
	}
}

// Aggregator returns the detection store the host records into
func (h *Host) Aggregator() *DetectionAggregator {
	return h.aggregator
}

// Attach binds page to contextID. A new context gets a running monitor; a
// different address navigates the existing one; the same address refreshes
// its document.
func (h *Host) Attach(ctx context.Context, contextID string, page *infrastructure.Page, mutations []Mutation) (*PageMonitor, error) {
	if contextID == "" {
		return nil, ErrMissingContext
	}
	if page == nil {
		return nil, fmt.Errorf("page is required")
	}

	h.mu.Lock()
	m, ok := h.monitors[contextID]
	if ok && !m.IsRunning() {
		delete(h.monitors, contextID)
		ok = false
	}
	if !ok {
		h.aggregator.Navigated(contextID, page.URL)
		m = NewPageMonitor(contextID, page, h.aggregator, h.scanner, h.config, h.logger)
		if err := m.Start(h.ctx); err != nil {
			h.mu.Unlock()
			return nil, fmt.Errorf("failed to start page monitor: %w", err)
		}
		h.monitors[contextID] = m
		h.mu.Unlock()

		h.logger.Info("Context attached",
			zap.String("context_id", contextID),
			zap.String("page_url", page.URL))
		return m, nil
	}
	h.mu.Unlock()

	currentURL, _ := m.PageInfo()
	if currentURL != page.URL || m.AwaitingPage() {
		if err := m.Navigate(ctx, page); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err := m.Mutated(ctx, mutations, page); err != nil {
		return nil, err
	}
	return m, nil
}

// Monitor returns the monitor attached to contextID
func (h *Host) Monitor(contextID string) (*PageMonitor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.monitors[contextID]
	return m, ok
}

// Contexts lists every context with an attached page or recorded media
func (h *Host) Contexts() []string {
	set := make(map[string]struct{})
	for _, id := range h.aggregator.Contexts() {
		set[id] = struct{}{}
	}
	h.mu.Lock()
	for id := range h.monitors {
		set[id] = struct{}{}
	}
	h.mu.Unlock()

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispatch handles one host message
func (h *Host) Dispatch(ctx context.Context, msg Message) (Response, error) {
	switch msg.Action {
	case MsgPing:
		return Response{Status: StatusAlive}, nil
	case MsgMediaDetected:
		return h.mediaDetected(msg)
	case MsgGetDetectedMedia:
		if msg.ContextID == "" {
			return Response{}, ErrMissingContext
		}
		media := h.aggregator.Query(msg.ContextID)
		return Response{Media: media, DetectedCount: len(media)}, nil
	case MsgGetMedia:
		return h.scan(ctx, msg.ContextID, false)
	case MsgRescan:
		return h.scan(ctx, msg.ContextID, true)
	case MsgContextRemoved:
		return h.removeContext(msg.ContextID)
	case MsgContextUpdated:
		return h.contextUpdated(ctx, msg.ContextID, msg.URL)
	}
	return Response{}, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Action)
}

func (h *Host) mediaDetected(msg Message) (Response, error) {
	if msg.ContextID == "" {
		return Response{}, ErrMissingContext
	}
	if msg.Data == nil {
		return Response{}, fmt.Errorf("media payload is required")
	}

	c := *msg.Data
	abs, ok := domain.Resolve(c.URL, c.PageURL)
	if !ok {
		h.logger.Debug("Ignoring media report",
			zap.String("context_id", msg.ContextID),
			zap.String("url", c.URL),
			zap.Error(domain.ErrClassificationSkip))
		return Response{Status: StatusReceived}, nil
	}
	c.URL = abs
	if c.DiscoveredAt.IsZero() {
		c.DiscoveredAt = time.Now()
	}
	if c.Title == "" {
		c.Title = c.PageTitle
	}

	recorded := h.aggregator.Record(msg.ContextID, c)
	return Response{Status: StatusReceived, Recorded: recorded}, nil
}

func (h *Host) scan(ctx context.Context, contextID string, record bool) (Response, error) {
	if contextID == "" {
		return Response{}, ErrMissingContext
	}
	m, ok := h.Monitor(contextID)
	if !ok {
		return Response{}, ErrUnknownContext
	}

	if record {
		media, err := m.Rescan(ctx)
		if err != nil {
			return Response{}, err
		}
		return Response{Status: StatusRescanned, Media: infrastructure.Unique(media), DetectedCount: h.aggregator.Count(contextID)}, nil
	}

	media, err := m.Scan(ctx)
	if err != nil {
		return Response{}, err
	}
	pageURL, pageTitle := m.PageInfo()
	return Response{
		Media:         infrastructure.Unique(media),
		DetectedCount: h.aggregator.Count(contextID),
		PageURL:       pageURL,
		PageTitle:     pageTitle,
	}, nil
}

// contextUpdated drops the old document along with its detections so the
// monitor cannot scan it back in before the new page is attached
func (h *Host) contextUpdated(ctx context.Context, contextID, pageURL string) (Response, error) {
	if contextID == "" {
		return Response{}, ErrMissingContext
	}

	if m, ok := h.Monitor(contextID); ok && m.IsRunning() {
		if currentURL, _ := m.PageInfo(); currentURL != pageURL {
			if err := m.Depart(ctx, pageURL); err != nil && !errors.Is(err, ErrMonitorNotRunning) {
				return Response{}, err
			}
		}
	}
	h.aggregator.Navigated(contextID, pageURL)
	return Response{Status: StatusUpdated}, nil
}

func (h *Host) removeContext(contextID string) (Response, error) {
	if contextID == "" {
		return Response{}, ErrMissingContext
	}

	h.mu.Lock()
	m, ok := h.monitors[contextID]
	delete(h.monitors, contextID)
	h.mu.Unlock()

	if ok && m.IsRunning() {
		if err := m.Stop(); err != nil && !errors.Is(err, ErrMonitorNotRunning) {
			h.logger.Warn("Failed to stop page monitor", zap.String("context_id", contextID), zap.Error(err))
		}
	}
	h.aggregator.Invalidate(contextID)

	h.logger.Info("Context removed", zap.String("context_id", contextID))
	return Response{Status: StatusRemoved}, nil
}

// Close stops every monitor
func (h *Host) Close() {
	h.mu.Lock()
	monitors := h.monitors
	h.monitors = make(map[string]*PageMonitor)
	h.mu.Unlock()

	for _, m := range monitors {
		if m.IsRunning() {
			m.Stop()
		}
	}
}
