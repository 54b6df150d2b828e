package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yourusername/grabber-go/internal/domain"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response is read for its detail
const maxErrorBody = 64 << 10

// JobClient talks to the remote job API
type JobClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewJobClient creates a client for baseURL. An empty baseURL uses the
// default service; a trailing slash is trimmed.
func NewJobClient(baseURL string, timeout time.Duration, logger *zap.Logger) *JobClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobClient{
		baseURL: NormalizeBaseURL(baseURL),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// NormalizeBaseURL trims whitespace and trailing slashes, falling back to
// the default service address
func NormalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return domain.DefaultAPIBaseURL
	}
	return baseURL
}

// WithHTTPClient replaces the underlying HTTP client
func (c *JobClient) WithHTTPClient(client *http.Client) *JobClient {
	c.client = client
	return c
}

// BaseURL returns the service address in use
func (c *JobClient) BaseURL() string {
	return c.baseURL
}

// CreateJob submits req with POST /api/download and returns the job id
func (c *JobClient) CreateJob(ctx context.Context, req domain.DownloadRequest) (string, error) {
	body, err := json.Marshal(req.Payload())
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/download", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Info("Submitting job",
		zap.String("url", req.URL),
		zap.String("kind", string(req.Kind)))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &domain.SubmissionError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := readDetail(resp.Body)
		c.logger.Warn("Job submission rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("detail", detail))
		return "", domain.NewSubmissionError(resp.StatusCode, detail)
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		err = fmt.Errorf("failed to decode job response: %w", err)
		return "", &domain.SubmissionError{StatusCode: resp.StatusCode, Message: err.Error(), Err: err}
	}

	jobID, ok := extractJobID(fields)
	if !ok {
		return "", domain.ErrMissingJobID
	}

	c.logger.Info("Job created", zap.String("job_id", jobID))
	return jobID, nil
}

// GetJob fetches GET /api/jobs/{id}. Every failure is a TransportError.
func (c *JobClient) GetJob(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("failed to build request: %w", err)}
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransportError{StatusCode: resp.StatusCode}
	}

	var status domain.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("failed to decode job status: %w", err)}
	}

	c.logger.Debug("Job status",
		zap.String("job_id", jobID),
		zap.String("status", status.Status))

	return &status, nil
}

// extractJobID returns the first non-empty id field, id before job_id.
// Strings and numbers are both accepted.
func extractJobID(fields map[string]json.RawMessage) (string, bool) {
	for _, key := range []string{"id", "job_id"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}

		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
			continue
		}

		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String(), true
		}
	}
	return "", false
}

// readDetail extracts a string "detail" from an error body, empty when absent
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil {
		return ""
	}
	return strings.TrimSpace(detail)
}
