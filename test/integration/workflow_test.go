//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/grabber-go/api"
	"github.com/yourusername/grabber-go/internal/app"
	"github.com/yourusername/grabber-go/internal/domain"
	"github.com/yourusername/grabber-go/internal/infrastructure"
)

const watchHTML = `<html><head><title>Concert</title>
<meta property="og:title" content="Live Concert">
<meta property="og:video" content="/media/concert.mp4">
</head><body>
<script>fetch("/api/stream/master.m3u8")</script>
</body></html>`

// remoteJobAPI plays back queued -> downloading -> finished
func remoteJobAPI(t *testing.T) *httptest.Server {
	var polls atomic.Int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/download":
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "audio", body["kind"])
			assert.Contains(t, body["custom_cookies"], "session\tabc")
			w.Write([]byte(`{"job_id":7}`))
		case "/api/jobs/7":
			switch polls.Add(1) {
			case 1:
				w.Write([]byte(`{"status":"queued"}`))
			case 2:
				w.Write([]byte(`{"status":"downloading","progress":50.4}`))
			default:
				w.Write([]byte(`{"status":"finished","file_name":"concert.mp3","link":"https://dl.example/concert.mp3"}`))
			}
		default:
			http.NotFound(w, r)
		}
	}))
}

func siteServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		w.Write([]byte(watchHTML))
	})
	mux.HandleFunc("/api/stream/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n"))
	})
	return httptest.NewServer(mux)
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestWorkflow_DetectThenDownload(t *testing.T) {
	site := siteServer()
	defer site.Close()
	remote := remoteJobAPI(t)
	defer remote.Close()

	repo, err := infrastructure.NewSQLiteJobRepository(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	defer repo.Close()

	aggregator := app.NewDetectionAggregator(nil, nil, nil)
	host := app.NewHost(context.Background(), aggregator, infrastructure.NewPageScanner(nil, nil),
		domain.DetectionConfig{SettleDelay: time.Hour, RescanInterval: time.Hour}, nil)
	defer host.Close()

	client := infrastructure.NewJobClient(remote.URL+"/", 5*time.Second, nil)
	jobs := app.NewJobService(func() *app.JobSession {
		return app.NewJobSession(client, domain.JobConfig{PollInterval: 10 * time.Millisecond}, nil,
			app.WithJobRepository(repo))
	}, repo)
	defer jobs.Close()

	server := httptest.NewServer(api.SetupRouter(api.RouterConfig{Host: host, Jobs: jobs, DefaultBitrate: 192}))
	defer server.Close()

	// Fetch the page the way a browser bridge would, capturing cookies
	cookies := infrastructure.NewCookieStore()
	pageURL := site.URL + "/watch"
	interceptor := infrastructure.NewInterceptor(nil, func() (string, string) { return pageURL, "Concert" }, func(c domain.MediaCandidate) {
		resp := postJSON(t, server.URL+"/api/v1/contexts/tab-9/media", c)
		resp.Body.Close()
	}, nil).WithCookieStore(cookies)
	httpClient := &http.Client{Transport: interceptor.Transport(nil)}

	pageResp, err := httpClient.Get(pageURL)
	require.NoError(t, err)
	html, err := io.ReadAll(pageResp.Body)
	pageResp.Body.Close()
	require.NoError(t, err)

	resp := postJSON(t, server.URL+"/api/v1/contexts/tab-9/page", map[string]string{"url": pageURL, "html": string(html)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The page script's stream request, observed as fetch traffic
	fetch := interceptor.Fetch(infrastructure.HTTPFetch(httpClient, func() (string, string) { return pageURL, "Concert" }))
	streamResp, err := fetch(context.Background(), "/api/stream/master.m3u8", nil)
	require.NoError(t, err)
	streamResp.Body.Close()

	resp = postJSON(t, server.URL+"/api/v1/contexts/tab-9/rescan", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	mediaResp, err := http.Get(server.URL + "/api/v1/contexts/tab-9/media")
	require.NoError(t, err)
	var detected app.Response
	require.NoError(t, json.NewDecoder(mediaResp.Body).Decode(&detected))
	mediaResp.Body.Close()

	urls := make([]string, 0, len(detected.Media))
	for _, m := range detected.Media {
		urls = append(urls, m.URL)
	}
	assert.Contains(t, urls, site.URL+"/media/concert.mp4")
	assert.Contains(t, urls, site.URL+"/api/stream/master.m3u8")

	cookieText, ok := infrastructure.ExportNetscape(pageURL, cookies)
	require.True(t, ok)

	resp = postJSON(t, server.URL+"/api/v1/jobs", map[string]interface{}{
		"url":            site.URL + "/media/concert.mp4",
		"kind":           "audio",
		"custom_cookies": cookieText,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	handle, err := jobs.Session().Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFinished, handle.State)
	assert.Equal(t, "concert.mp3", handle.ResultFile)

	record, err := repo.FindByJobID("7")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.JobFinished, record.State)
	assert.Equal(t, 50, record.Progress)
}
