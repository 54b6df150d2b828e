package app

import (
	"sort"
	"sync"

	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/pkg/logger"
	"go.uber.org/zap"
)

// DetectionNotifier is told the new count whenever a context gains media
type DetectionNotifier interface {
	NotifyMediaDetected(contextID string, count int)
}

type detectionSet struct {
	pageURL string
	items   []domain.MediaCandidate
	seen    map[string]struct{}
}

// DetectionAggregator holds the deduplicated media list of every browsing
// context. Check-then-record is atomic.
type DetectionAggregator struct {
	mu          sync.RWMutex
	sets        map[string]*detectionSet
	notifier    DetectionNotifier
	multiLogger *logger.MultiLogger
	logger      *zap.Logger
}

// NewDetectionAggregator creates an empty aggregator. notifier and
// multiLogger are optional.
func NewDetectionAggregator(notifier DetectionNotifier, multiLogger *logger.MultiLogger, log *zap.Logger) *DetectionAggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &DetectionAggregator{
		sets:        make(map[string]*detectionSet),
		notifier:    notifier,
		multiLogger: multiLogger,
		logger:      log,
	}
}

// Record appends c to the context's list unless its URL is already there.
// It reports whether the list grew.
func (a *DetectionAggregator) Record(contextID string, c domain.MediaCandidate) bool {
	a.mu.Lock()
	set, ok := a.sets[contextID]
	if !ok {
		set = &detectionSet{pageURL: c.PageURL, seen: make(map[string]struct{})}
		a.sets[contextID] = set
	}
	if _, dup := set.seen[c.URL]; dup {
		a.mu.Unlock()
		return false
	}
	set.seen[c.URL] = struct{}{}
	set.items = append(set.items, c)
	count := len(set.items)
	a.mu.Unlock()

	a.logger.Debug("Media recorded",
		zap.String("context_id", contextID),
		zap.String("url", c.URL),
		zap.String("source", string(c.SourceType)),
		zap.Int("count", count))

	if a.multiLogger != nil {
		a.multiLogger.LogDetectionEvent("media_recorded",
			zap.String("context_id", contextID),
			zap.String("url", c.URL),
			zap.String("source", string(c.SourceType)),
			zap.String("page_url", c.PageURL))
	}
	if a.notifier != nil {
		a.notifier.NotifyMediaDetected(contextID, count)
	}
	return true
}

// Query returns a copy of the context's list, empty when unknown
func (a *DetectionAggregator) Query(contextID string) []domain.MediaCandidate {
	a.mu.RLock()
	defer a.mu.RUnlock()

	set, ok := a.sets[contextID]
	if !ok {
		return []domain.MediaCandidate{}
	}
	out := make([]domain.MediaCandidate, len(set.items))
	copy(out, set.items)
	return out
}

// Count returns the number of entries recorded for the context
func (a *DetectionAggregator) Count(contextID string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if set, ok := a.sets[contextID]; ok {
		return len(set.items)
	}
	return 0
}

// Invalidate discards everything recorded for the context
func (a *DetectionAggregator) Invalidate(contextID string) {
	a.mu.Lock()
	_, existed := a.sets[contextID]
	delete(a.sets, contextID)
	a.mu.Unlock()

	if existed {
		a.logger.Debug("Detection set invalidated", zap.String("context_id", contextID))
	}
}

// Navigated invalidates the context when it moved to a different address
// than the one its list was built for. It reports whether it invalidated.
func (a *DetectionAggregator) Navigated(contextID, pageURL string) bool {
	a.mu.Lock()
	set, ok := a.sets[contextID]
	if !ok || set.pageURL == pageURL {
		a.mu.Unlock()
		return false
	}
	delete(a.sets, contextID)
	a.mu.Unlock()

	a.logger.Debug("Context navigated",
		zap.String("context_id", contextID),
		zap.String("from", set.pageURL),
		zap.String("to", pageURL))
	return true
}

// Contexts lists the contexts that currently hold a list, sorted
func (a *DetectionAggregator) Contexts() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.sets))
	for id := range a.sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
