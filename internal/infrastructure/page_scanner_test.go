package infrastructure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/grabber-go/internal/domain"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Watch Party</title>
  <meta property="og:title" content="Launch Clip">
  <meta property="og:video" content="https://cdn.example.com/launch.mp4">
  <meta property="og:image" content="https://cdn.example.com/poster.jpg">
  <script type="application/ld+json">
    {"@type":"VideoObject","contentUrl":"https://cdn.example.com/ld.webm",
     "thumbnail":{"url":"https://cdn.example.com/t.png"},
     "associated":[{"embedUrl":"https://vimeo.com/123"}]}
  </script>
  <script type="application/ld+json">{ not json </script>
</head>
<body>
  <iframe src="https://www.youtube.com/watch?v=abc" title="Trailer"></iframe>
  <iframe src="https://ads.example.com/frame"></iframe>
  <a href="/files/talk.mp3">  Conference Talk </a>
  <a href="/about">About</a>
  <a href="blob:https://example.com/1234">Blob</a>
  <a href="clip.mp4" aria-label="Relative clip"></a>
</body>
</html>`

func parseSample(t *testing.T, pageURL, html string) *Page {
	t.Helper()
	page, err := NewPageFromHTML(pageURL, strings.NewReader(html))
	require.NoError(t, err)
	return page
}

func byURL(candidates []domain.MediaCandidate) map[string]domain.MediaCandidate {
	out := make(map[string]domain.MediaCandidate, len(candidates))
	for _, c := range candidates {
		out[c.URL] = c
	}
	return out
}

func TestNewPageFromHTML(t *testing.T) {
	page := parseSample(t, "https://example.com/watch", samplePage)
	assert.Equal(t, "Watch Party", page.Title)
	assert.Equal(t, "https://example.com/watch", page.Base())
}

func TestPage_BaseHref(t *testing.T) {
	page := parseSample(t, "https://example.com/a/b", `<html><head><base href="/media/"></head></html>`)
	assert.Equal(t, "https://example.com/media/", page.Base())
}

func TestPageScanner_Scan(t *testing.T) {
	page := parseSample(t, "https://example.com/watch/", samplePage)
	scanner := NewPageScanner(nil, nil)

	found := byURL(scanner.Scan(page))
	require.Len(t, found, 6)

	iframe := found["https://www.youtube.com/watch?v=abc"]
	assert.Equal(t, domain.SourceIframe, iframe.SourceType)
	assert.Equal(t, domain.ElementIframe, iframe.Element)
	assert.Equal(t, "Trailer", iframe.Title)
	assert.Equal(t, "https://example.com/watch/", iframe.PageURL)
	assert.Equal(t, "Watch Party", iframe.PageTitle)

	talk := found["https://example.com/files/talk.mp3"]
	assert.Equal(t, domain.SourceLink, talk.SourceType)
	assert.Equal(t, "Conference Talk", talk.Title)

	clip := found["https://example.com/watch/clip.mp4"]
	assert.Equal(t, "Relative clip", clip.Title)

	meta := found["https://cdn.example.com/launch.mp4"]
	assert.Equal(t, domain.SourceMeta, meta.SourceType)
	assert.Equal(t, domain.ElementMeta, meta.Element)
	assert.Equal(t, "Launch Clip", meta.Title)

	ld := found["https://cdn.example.com/ld.webm"]
	assert.Equal(t, domain.SourceJSONLD, ld.SourceType)
	assert.Equal(t, domain.ElementStructuredData, ld.Element)
	assert.Equal(t, "Watch Party", ld.Title, "title falls back to the page title")

	nested := found["https://vimeo.com/123"]
	assert.Equal(t, domain.SourceJSONLD, nested.SourceType)

	assert.NotContains(t, found, "https://cdn.example.com/poster.jpg")
	assert.NotContains(t, found, "https://example.com/about")
}

func TestPageScanner_ScanDoesNotMutate(t *testing.T) {
	page := parseSample(t, "https://example.com/watch/", samplePage)
	before, err := goquery.OuterHtml(page.Doc.Selection)
	require.NoError(t, err)

	scanner := NewPageScanner(nil, nil)
	first := scanner.Scan(page)
	second := scanner.Scan(page)

	after, err := goquery.OuterHtml(page.Doc.Selection)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, len(first), len(second))
}

func TestPageScanner_MalformedStructuredDataOnly(t *testing.T) {
	page := parseSample(t, "https://example.com/", `<html><head>
		<script type="application/ld+json">{"broken":</script>
		</head><body><a href="https://x.com/user/status/1">Post</a></body></html>`)

	found := NewPageScanner(nil, nil).Scan(page)
	require.Len(t, found, 1)
	assert.Equal(t, "https://x.com/user/status/1", found[0].URL)
}

func TestPageScanner_EmptyPage(t *testing.T) {
	scanner := NewPageScanner(nil, nil)
	assert.Empty(t, scanner.Scan(nil))
	assert.Empty(t, scanner.Scan(&Page{URL: "https://example.com"}))
}

func TestPageScanner_DuplicatesKept(t *testing.T) {
	page := parseSample(t, "https://example.com/", `<html><body>
		<a href="/v.mp4">One</a><a href="/v.mp4">Two</a></body></html>`)

	found := NewPageScanner(nil, nil).Scan(page)
	assert.Len(t, found, 2)

	unique := Unique(found)
	require.Len(t, unique, 1)
	assert.Equal(t, "One", unique[0].Title)
}

func TestFetchPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`<html><head><title>New</title></head><body><a href="a.mp4">A</a></body></html>`))
	}))
	defer server.Close()

	page, err := FetchPage(context.Background(), server.Client(), server.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/new", page.URL)
	assert.Equal(t, "New", page.Title)

	found := NewPageScanner(nil, nil).Scan(page)
	require.Len(t, found, 1)
	assert.Equal(t, server.URL+"/a.mp4", found[0].URL)

	_, err = FetchPage(context.Background(), server.Client(), server.URL+"/missing")
	assert.Error(t, err)
}
