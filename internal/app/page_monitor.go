package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/internal/infrastructure"
	"go.uber.org/zap"
)

var (
	// ErrMonitorNotRunning is returned for events sent to a monitor that is not running
	ErrMonitorNotRunning = errors.New("page monitor not running")

	// ErrMonitorStopped is returned when starting a monitor that was already stopped
	ErrMonitorStopped = errors.New("page monitor stopped")
)

type monitorEventKind int

const (
	eventMutation monitorEventKind = iota
	eventVisibility
	eventNetwork
	eventScan
	eventNavigate
	eventDepart
)

type monitorEvent struct {
	kind      monitorEventKind
	page      *infrastructure.Page
	mutations []Mutation
	hidden    bool
	candidate domain.MediaCandidate
	url       string
	record    bool
	reply     chan []domain.MediaCandidate
}

// PageMonitor keeps one browsing context's detection list current. All
// triggers are serialized through a single event loop.
type PageMonitor struct {
	contextID  string
	aggregator *DetectionAggregator
	scanner    *infrastructure.PageScanner
	watcher    MutationWatcher
	config     domain.DetectionConfig
	logger     *zap.Logger

	pageMu sync.RWMutex
	page   *infrastructure.Page
	// address the context moved to before its document arrived
	pendingURL string

	mu       sync.Mutex
	running  bool
	stopped  bool
	events   chan monitorEvent
	stopChan chan struct{}
	done     chan struct{}

	// loop-owned
	hidden bool
}

// NewPageMonitor creates a monitor for contextID showing page
func NewPageMonitor(
	contextID string,
	page *infrastructure.Page,
	aggregator *DetectionAggregator,
	scanner *infrastructure.PageScanner,
	config domain.DetectionConfig,
	logger *zap.Logger,
) *PageMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SettleDelay <= 0 {
		config.SettleDelay = domain.DefaultConfig().Detection.SettleDelay
	}
	if config.RescanInterval <= 0 {
		config.RescanInterval = domain.DefaultConfig().Detection.RescanInterval
	}
	return &PageMonitor{
		contextID:  contextID,
		aggregator: aggregator,
		scanner:    scanner,
		watcher:    NewMutationWatcher(),
		config:     config,
		logger:     logger.With(zap.String("context_id", contextID)),
		page:       page,
		events:     make(chan monitorEvent),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ContextID returns the browsing context this monitor watches
func (m *PageMonitor) ContextID() string {
	return m.contextID
}

// PageInfo reports the current page address and title. It satisfies
// infrastructure.PageInfo so an Interceptor can be bound to the monitor.
func (m *PageMonitor) PageInfo() (string, string) {
	m.pageMu.RLock()
	defer m.pageMu.RUnlock()
	if m.page == nil {
		return m.pendingURL, ""
	}
	return m.page.URL, m.page.Title
}

// AwaitingPage reports whether the context left its page and no document for
// the new address has been attached yet
func (m *PageMonitor) AwaitingPage() bool {
	m.pageMu.RLock()
	defer m.pageMu.RUnlock()
	return m.page == nil
}

func (m *PageMonitor) currentPage() *infrastructure.Page {
	m.pageMu.RLock()
	defer m.pageMu.RUnlock()
	return m.page
}

func (m *PageMonitor) setPage(page *infrastructure.Page) {
	m.pageMu.Lock()
	m.page = page
	m.pendingURL = ""
	m.pageMu.Unlock()
}

func (m *PageMonitor) clearPage(pendingURL string) {
	m.pageMu.Lock()
	m.page = nil
	m.pendingURL = pendingURL
	m.pageMu.Unlock()
}

// Start starts the event loop. The first scan runs after the settle delay.
func (m *PageMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrMonitorStopped
	}
	if m.running {
		return errors.New("page monitor already running")
	}
	m.running = true

	go m.run(ctx)

	m.logger.Debug("Page monitor started")
	return nil
}

// Stop cancels all timers. Once it returns no further scan or record happens.
func (m *PageMonitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrMonitorNotRunning
	}
	m.running = false
	m.stopped = true
	m.mu.Unlock()

	close(m.stopChan)
	<-m.done

	m.logger.Debug("Page monitor stopped")
	return nil
}

// IsRunning returns whether the event loop is active
func (m *PageMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Observe records a network-observed candidate for this context
func (m *PageMonitor) Observe(c domain.MediaCandidate) {
	if err := m.send(context.Background(), monitorEvent{kind: eventNetwork, candidate: c}); err != nil {
		m.logger.Debug("Dropping network candidate", zap.String("url", c.URL), zap.Error(err))
	}
}

// Mutated delivers a batch of structural changes. snapshot, when non-nil,
// replaces the document the monitor scans.
func (m *PageMonitor) Mutated(ctx context.Context, batch []Mutation, snapshot *infrastructure.Page) error {
	return m.send(ctx, monitorEvent{kind: eventMutation, mutations: batch, page: snapshot})
}

// VisibilityChanged reports that the page was hidden or shown
func (m *PageMonitor) VisibilityChanged(ctx context.Context, hidden bool) error {
	return m.send(ctx, monitorEvent{kind: eventVisibility, hidden: hidden})
}

// Navigate swaps in the document of a new address, discarding the previous
// detections, and re-arms the settle delay
func (m *PageMonitor) Navigate(ctx context.Context, page *infrastructure.Page) error {
	return m.send(ctx, monitorEvent{kind: eventNavigate, page: page})
}

// Depart records that the context moved to pageURL without supplying its
// document. Detections are discarded and scans find nothing until Navigate
// delivers the new page.
func (m *PageMonitor) Depart(ctx context.Context, pageURL string) error {
	reply := make(chan []domain.MediaCandidate, 1)
	if err := m.send(ctx, monitorEvent{kind: eventDepart, url: pageURL, reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-m.done:
		return ErrMonitorNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scan runs an immediate scan and returns its results without recording them
func (m *PageMonitor) Scan(ctx context.Context) ([]domain.MediaCandidate, error) {
	return m.request(ctx, false)
}

// Rescan runs an immediate scan, records the results and returns them
func (m *PageMonitor) Rescan(ctx context.Context) ([]domain.MediaCandidate, error) {
	return m.request(ctx, true)
}

func (m *PageMonitor) request(ctx context.Context, record bool) ([]domain.MediaCandidate, error) {
	reply := make(chan []domain.MediaCandidate, 1)
	if err := m.send(ctx, monitorEvent{kind: eventScan, record: record, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case results := <-reply:
		return results, nil
	case <-m.done:
		return nil, ErrMonitorNotRunning
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *PageMonitor) send(ctx context.Context, ev monitorEvent) error {
	if !m.IsRunning() {
		return ErrMonitorNotRunning
	}
	select {
	case m.events <- ev:
		return nil
	case <-m.done:
		return ErrMonitorNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *PageMonitor) run(ctx context.Context) {
	defer close(m.done)

	settle := time.NewTimer(m.config.SettleDelay)
	defer settle.Stop()
	ticker := time.NewTicker(m.config.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.running = false
			m.stopped = true
			m.mu.Unlock()
			return
		case <-m.stopChan:
			return
		case <-settle.C:
			m.scanAndRecord("settle")
		case <-ticker.C:
			m.scanAndRecord("interval")
		case ev := <-m.events:
			m.handle(ev, settle)
		}
	}
}

func (m *PageMonitor) handle(ev monitorEvent, settle *time.Timer) {
	switch ev.kind {
	case eventMutation:
		if ev.page != nil {
			m.setPage(ev.page)
		}
		if m.watcher.Qualifies(ev.mutations) {
			m.scanAndRecord("mutation")
		}

	case eventVisibility:
		wasHidden := m.hidden
		m.hidden = ev.hidden
		if wasHidden && !ev.hidden {
			m.scanAndRecord("visible")
		}

	case eventNetwork:
		c := ev.candidate
		pageURL, pageTitle := m.PageInfo()
		if c.PageURL == "" {
			c.PageURL, c.PageTitle = pageURL, pageTitle
		} else if c.PageURL != pageURL {
			// observed on a page the context has since left
			m.logger.Debug("Dropping network candidate from previous page",
				zap.String("url", c.URL),
				zap.String("page_url", c.PageURL))
			return
		}
		m.aggregator.Record(m.contextID, c)

	case eventScan:
		var results []domain.MediaCandidate
		if ev.record {
			results = m.scanAndRecord("rescan")
		} else {
			results = m.scanner.Scan(m.currentPage())
		}
		ev.reply <- results

	case eventNavigate:
		m.aggregator.Invalidate(m.contextID)
		if ev.page != nil {
			m.setPage(ev.page)
		}
		if !settle.Stop() {
			select {
			case <-settle.C:
			default:
			}
		}
		settle.Reset(m.config.SettleDelay)
		pageURL, _ := m.PageInfo()
		m.logger.Debug("Page monitor navigated", zap.String("page_url", pageURL))

	case eventDepart:
		m.aggregator.Invalidate(m.contextID)
		m.clearPage(ev.url)
		m.logger.Debug("Page monitor awaiting document", zap.String("page_url", ev.url))
		ev.reply <- nil
	}
}

// scanAndRecord is the single path every scan trigger takes
func (m *PageMonitor) scanAndRecord(trigger string) []domain.MediaCandidate {
	results := m.scanner.Scan(m.currentPage())

	added := 0
	for _, c := range results {
		if m.aggregator.Record(m.contextID, c) {
			added++
		}
	}

	m.logger.Debug("Scan completed",
		zap.String("trigger", trigger),
		zap.Int("found", len(results)),
		zap.Int("added", added))

	return results
}
