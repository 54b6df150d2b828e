package domain

import (
	"encoding/json"
	"time"
)

// SourceType identifies the signal a media candidate was discovered from
type SourceType string

const (
	SourceIframe SourceType = "iframe"
	SourceLink   SourceType = "link"
	SourceMeta   SourceType = "meta"
	SourceJSONLD SourceType = "json-ld"
	SourceXHR    SourceType = "xhr"
	SourceFetch  SourceType = "fetch"
)

// Element labels reported alongside a source type
const (
	ElementIframe         = "iframe"
	ElementAnchor         = "anchor"
	ElementMeta           = "og/twitter"
	ElementStructuredData = "structured-data"
	ElementNetwork        = "network"
)

// ValidateSourceType checks if a source type is known
func ValidateSourceType(s SourceType) bool {
	switch s {
	case SourceIframe, SourceLink, SourceMeta, SourceJSONLD, SourceXHR, SourceFetch:
		return true
	}
	return false
}

// MediaCandidate is a discovered address believed to reference playable media.
// Candidates are values; nothing mutates one after it is built.
type MediaCandidate struct {
	URL          string
	SourceType   SourceType
	Element      string
	Title        string
	PageURL      string
	PageTitle    string
	DiscoveredAt time.Time
}

// NewMediaCandidate creates a candidate discovered now
func NewMediaCandidate(url string, source SourceType, element, title, pageURL, pageTitle string) MediaCandidate {
	return MediaCandidate{
		URL:          url,
		SourceType:   source,
		Element:      element,
		Title:        title,
		PageURL:      pageURL,
		PageTitle:    pageTitle,
		DiscoveredAt: time.Now(),
	}
}

// DisplayName picks the most specific human label for the candidate
func (m MediaCandidate) DisplayName() string {
	if m.Title != "" && m.Title != m.PageTitle {
		return m.Title
	}
	if m.PageTitle != "" {
		return m.PageTitle
	}
	if len(m.URL) > 40 {
		return m.URL[:40] + "..."
	}
	return m.URL
}

// mediaCandidateJSON is the host wire payload; timestamp is epoch milliseconds
type mediaCandidateJSON struct {
	URL       string     `json:"url"`
	Type      SourceType `json:"type"`
	Element   string     `json:"element,omitempty"`
	Title     string     `json:"title,omitempty"`
	PageURL   string     `json:"pageUrl,omitempty"`
	PageTitle string     `json:"pageTitle,omitempty"`
	Timestamp int64      `json:"timestamp,omitempty"`
}

// MarshalJSON encodes the candidate in the host payload shape
func (m MediaCandidate) MarshalJSON() ([]byte, error) {
	var ts int64
	if !m.DiscoveredAt.IsZero() {
		ts = m.DiscoveredAt.UnixMilli()
	}
	return json.Marshal(mediaCandidateJSON{
		URL:       m.URL,
		Type:      m.SourceType,
		Element:   m.Element,
		Title:     m.Title,
		PageURL:   m.PageURL,
		PageTitle: m.PageTitle,
		Timestamp: ts,
	})
}

// UnmarshalJSON decodes the host payload shape
func (m *MediaCandidate) UnmarshalJSON(data []byte) error {
	var raw mediaCandidateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MediaCandidate{
		URL:        raw.URL,
		SourceType: raw.Type,
		Element:    raw.Element,
		Title:      raw.Title,
		PageURL:    raw.PageURL,
		PageTitle:  raw.PageTitle,
	}
	if raw.Timestamp > 0 {
		m.DiscoveredAt = time.UnixMilli(raw.Timestamp)
	}
	return nil
}
