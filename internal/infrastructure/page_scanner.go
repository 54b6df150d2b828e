package infrastructure

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yourusername/grabber-go/internal/domain"
	"go.uber.org/zap"
)

const (
	metaMediaSelector = `meta[property*="video"], meta[property*="audio"], meta[name*="twitter:player"]`
	metaTitleSelector = `meta[property="og:title"], meta[name="twitter:title"]`
	jsonLDSelector    = `script[type="application/ld+json"]`
)

// PageScanner extracts media candidates from a parsed page
type PageScanner struct {
	classifier *domain.Classifier
	logger     *zap.Logger
}

// NewPageScanner creates a scanner; a nil classifier uses the default rules
func NewPageScanner(classifier *domain.Classifier, logger *zap.Logger) *PageScanner {
	if classifier == nil {
		classifier = domain.DefaultClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageScanner{
		classifier: classifier,
		logger:     logger,
	}
}

type scanSource struct {
	name string
	run  func(p *Page, base string) []domain.MediaCandidate
}

// Scan runs every extraction source against the page. A failing source is
// logged and skipped. The document is never modified.
func (s *PageScanner) Scan(page *Page) []domain.MediaCandidate {
	if page == nil || page.Doc == nil {
		return []domain.MediaCandidate{}
	}

	base := page.Base()
	sources := []scanSource{
		{"iframe", s.scanIframes},
		{"link", s.scanLinks},
		{"meta", s.scanMeta},
		{"json-ld", s.scanStructuredData},
	}

	results := make([]domain.MediaCandidate, 0)
	for _, src := range sources {
		results = append(results, s.runSource(src, page, base)...)
	}

	s.logger.Debug("Page scanned",
		zap.String("page_url", page.URL),
		zap.Int("candidates", len(results)))

	return results
}

func (s *PageScanner) runSource(src scanSource, page *Page, base string) (found []domain.MediaCandidate) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("Scan source failed",
				zap.String("source", src.name),
				zap.String("page_url", page.URL),
				zap.Any("panic", r))
			found = nil
		}
	}()
	return src.run(page, base)
}

func (s *PageScanner) scanIframes(p *Page, base string) []domain.MediaCandidate {
	var out []domain.MediaCandidate
	p.Doc.Find("iframe[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		abs, ok := s.accept(src, base)
		if !ok {
			return
		}
		title := firstAttr(sel, "title", "aria-label")
		out = append(out, s.candidate(p, abs, domain.SourceIframe, domain.ElementIframe, title))
	})
	return out
}

func (s *PageScanner) scanLinks(p *Page, base string) []domain.MediaCandidate {
	var out []domain.MediaCandidate
	p.Doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs, ok := s.accept(href, base)
		if !ok {
			return
		}
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = firstAttr(sel, "title", "aria-label")
		}
		out = append(out, s.candidate(p, abs, domain.SourceLink, domain.ElementAnchor, title))
	})
	return out
}

func (s *PageScanner) scanMeta(p *Page, base string) []domain.MediaCandidate {
	var out []domain.MediaCandidate
	title := ""
	if content, ok := p.Doc.Find(metaTitleSelector).First().Attr("content"); ok {
		title = strings.TrimSpace(content)
	}

	p.Doc.Find(metaMediaSelector).Each(func(_ int, sel *goquery.Selection) {
		content, _ := sel.Attr("content")
		abs, ok := s.accept(content, base)
		if !ok {
			return
		}
		out = append(out, s.candidate(p, abs, domain.SourceMeta, domain.ElementMeta, title))
	})
	return out
}

func (s *PageScanner) scanStructuredData(p *Page, base string) []domain.MediaCandidate {
	var out []domain.MediaCandidate
	p.Doc.Find(jsonLDSelector).Each(func(i int, sel *goquery.Selection) {
		var data interface{}
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			s.logger.Debug("Skipping malformed structured data",
				zap.String("page_url", p.URL),
				zap.Int("block", i),
				zap.Error(err))
			return
		}
		walkJSON(data, func(v string) {
			if abs, ok := s.accept(v, base); ok {
				out = append(out, s.candidate(p, abs, domain.SourceJSONLD, domain.ElementStructuredData, ""))
			}
		})
	})
	return out
}

func (s *PageScanner) accept(raw, base string) (string, bool) {
	if !s.classifier.IsMediaURL(raw, base) {
		return "", false
	}
	return domain.Resolve(raw, base)
}

func (s *PageScanner) candidate(p *Page, abs string, source domain.SourceType, element, title string) domain.MediaCandidate {
	if title == "" {
		title = p.Title
	}
	return domain.NewMediaCandidate(abs, source, element, title, p.URL, p.Title)
}

// walkJSON visits every string leaf nested inside objects and arrays, object
// keys in sorted order
func walkJSON(v interface{}, visit func(string)) {
	switch node := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := node[k]
			if s, ok := child.(string); ok {
				visit(s)
				continue
			}
			walkJSON(child, visit)
		}
	case []interface{}:
		for _, child := range node {
			if s, ok := child.(string); ok {
				visit(s)
				continue
			}
			walkJSON(child, visit)
		}
	}
}

func firstAttr(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Unique keeps the first candidate for every URL, preserving order
func Unique(candidates []domain.MediaCandidate) []domain.MediaCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]domain.MediaCandidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.URL]; ok {
			continue
		}
		seen[c.URL] = struct{}{}
		out = append(out, c)
	}
	return out
}
