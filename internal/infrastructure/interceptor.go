package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/yourusername/grabber-go/internal/domain"
	"go.uber.org/zap"
)

// PageInfo reports the address and title of the page the traffic belongs to
type PageInfo func() (pageURL, pageTitle string)

// EmitFunc receives every network-observed candidate
type EmitFunc func(domain.MediaCandidate)

// FetchInit carries the optional request settings of a fetch call
type FetchInit struct {
	Method string
	Header http.Header
	Body   io.Reader
}

// FetchFunc is the promise-style request primitive. input may be relative to
// the page.
type FetchFunc func(ctx context.Context, input string, init *FetchInit) (*http.Response, error)

// Interceptor observes outgoing requests and reports media and stream
// addresses before passing each request through unchanged
type Interceptor struct {
	classifier *domain.Classifier
	page       PageInfo
	emit       EmitFunc
	cookies    *CookieStore
	logger     *zap.Logger
}

// NewInterceptor creates an interceptor. A nil classifier uses the default
// rules; a nil emit drops observations.
func NewInterceptor(classifier *domain.Classifier, page PageInfo, emit EmitFunc, logger *zap.Logger) *Interceptor {
	if classifier == nil {
		classifier = domain.DefaultClassifier()
	}
	if page == nil {
		page = func() (string, string) { return "", "" }
	}
	if emit == nil {
		emit = func(domain.MediaCandidate) {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{
		classifier: classifier,
		page:       page,
		emit:       emit,
		logger:     logger,
	}
}

// WithCookieStore makes the transport record Set-Cookie headers into store
func (i *Interceptor) WithCookieStore(store *CookieStore) *Interceptor {
	i.cookies = store
	return i
}

// Transport wraps base so every request it carries is observed as xhr
// traffic. A nil base uses http.DefaultTransport.
func (i *Interceptor) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &interceptTransport{base: base, interceptor: i}
}

// Fetch wraps next so every call is observed as fetch traffic
func (i *Interceptor) Fetch(next FetchFunc) FetchFunc {
	return func(ctx context.Context, input string, init *FetchInit) (*http.Response, error) {
		i.observe(input, domain.SourceFetch)
		return next(ctx, input, init)
	}
}

type interceptTransport struct {
	base        http.RoundTripper
	interceptor *Interceptor
}

func (t *interceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL != nil {
		t.interceptor.observe(req.URL.String(), domain.SourceXHR)
	}

	resp, err := t.base.RoundTrip(req)
	if err == nil && t.interceptor.cookies != nil && req.URL != nil {
		t.interceptor.cookies.Capture(req.URL, resp.Cookies())
	}
	return resp, err
}

// observe classifies target and emits a candidate on a match. It never fails
// the request it is attached to.
func (i *Interceptor) observe(target string, source domain.SourceType) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn("Network observation failed",
				zap.String("target", target),
				zap.Any("panic", r))
		}
	}()

	pageURL, pageTitle := i.page()
	if !i.classifier.IsMediaURL(target, pageURL) && !i.classifier.IsStreamURLFrom(target, pageURL) {
		return
	}
	abs, ok := domain.Resolve(target, pageURL)
	if !ok {
		return
	}

	i.logger.Debug("Media request observed",
		zap.String("url", abs),
		zap.String("source", string(source)))

	i.emit(domain.NewMediaCandidate(abs, source, domain.ElementNetwork, pageTitle, pageURL, pageTitle))
}

// HTTPFetch adapts client into a FetchFunc. Relative inputs resolve against
// the page address reported by page.
func HTTPFetch(client *http.Client, page PageInfo) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, input string, init *FetchInit) (*http.Response, error) {
		target := input
		if page != nil {
			if pageURL, _ := page(); pageURL != "" {
				target = resolveAgainst(pageURL, input)
			}
		}

		method := http.MethodGet
		var body io.Reader
		var header http.Header
		if init != nil {
			if init.Method != "" {
				method = init.Method
			}
			body = init.Body
			header = init.Header
		}

		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		for k, values := range header {
			for _, v := range values {
				req.Header.Add(k, v)
			}
		}
		return client.Do(req)
	}
}
