package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is a parsed snapshot of one document in a browsing context
type Page struct {
	URL   string
	Title string
	Doc   *goquery.Document
}

// NewPageFromHTML parses an HTML document served from pageURL
func NewPageFromHTML(pageURL string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &Page{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("head title").First().Text()),
		Doc:   doc,
	}, nil
}

// FetchPage downloads and parses the document at pageURL. The final URL after
// redirects becomes the page address.
func FetchPage(ctx context.Context, client *http.Client, pageURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return NewPageFromHTML(finalURL, resp.Body)
}

// Base returns the address relative references resolve against
func (p *Page) Base() string {
	if p.Doc == nil {
		return p.URL
	}
	href, ok := p.Doc.Find("base[href]").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return p.URL
	}
	return resolveAgainst(p.URL, href)
}

func resolveAgainst(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
