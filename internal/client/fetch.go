package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/markis/gh-coverletter/internal/logger"
	"github.com/markis/gh-coverletter/internal/stream"
)

// DefaultTimeout bounds the time from sending a request to receiving the
// response headers. It does not limit how long the body may stream.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 512

// Request describes the HTTP request that opens a stream.
type Request struct {
	Method string
	Header http.Header
	Body   []byte
}

type fetchOptions struct {
	httpClient *http.Client
	timeout    time.Duration
	decoder    *stream.Decoder
	logger     *log.Logger
}

// FetchOption configures FetchStream.
type FetchOption func(*fetchOptions)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) FetchOption {
	return func(o *fetchOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithFetchClient sets the HTTP client used for the request.
func WithFetchClient(c *http.Client) FetchOption {
	return func(o *fetchOptions) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithDecoder sets the decoder the response body is handed to.
func WithDecoder(d *stream.Decoder) FetchOption {
	return func(o *fetchOptions) {
		if d != nil {
			o.decoder = d
		}
	}
}

// WithFetchLogger sets the logger for request diagnostics.
func WithFetchLogger(l *log.Logger) FetchOption {
	return func(o *fetchOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// getHTTPClient returns a singleton HTTP client
var (
	httpClient     *http.Client
	httpClientOnce sync.Once
)

// getHTTPClient returns a client without an overall timeout: a streamed body
// may legitimately take longer than any fixed bound.
func getHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		transport := &http.Transport{
			Proxy:              http.ProxyFromEnvironment,
			MaxIdleConns:       100,
			IdleConnTimeout:    90 * time.Second,
			DisableCompression: false,
			DisableKeepAlives:  false,
			ForceAttemptHTTP2:  true,
		}

		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext

		httpClient = &http.Client{
			Transport: transport,
		}
	})
	return httpClient
}

// FetchStream opens an event stream at url and decodes it into cb.
//
// Request failures, a non-success status and a missing body are reported as a
// *stream.ConnectionError through OnError before any content is read. After
// that the stream is handed to the decoder, which reports completion or a
// *stream.TransportError. Cancelling ctx abandons the stream silently.
//
// The returned error mirrors the terminal callback, or is the context error
// after cancellation.
func FetchStream(ctx context.Context, url string, req Request, cb stream.Callbacks, opts ...FetchOption) error {
	o := fetchOptions{
		httpClient: getHTTPClient(),
		timeout:    DefaultTimeout,
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.decoder == nil {
		o.decoder = stream.NewDecoder(stream.WithLogger(o.logger))
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.Body != nil {
			method = http.MethodPost
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fail(cb, &stream.ConnectionError{Err: fmt.Errorf("failed to create request: %w", err)})
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-Id", requestID)

	l := o.logger.With("request_id", requestID)
	l.Debug("opening stream", "method", method, "url", url)

	var timedOut atomic.Bool
	timer := time.AfterFunc(o.timeout, func() {
		timedOut.Store(true)
		cancel()
	})

	resp, err := o.httpClient.Do(httpReq)
	stopped := timer.Stop()
	if err != nil {
		if parent.Err() != nil {
			return parent.Err()
		}
		if timedOut.Load() {
			err = fmt.Errorf("no response within %s: %w", o.timeout, context.DeadlineExceeded)
		}
		return fail(cb, &stream.ConnectionError{Err: err})
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			l.Warn("failed to close response body", "err", err)
		}
	}()

	if !stopped && timedOut.Load() {
		return fail(cb, &stream.ConnectionError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        fmt.Errorf("no response within %s: %w", o.timeout, context.DeadlineExceeded),
		})
	}

	// A zero-length 2xx body is a stream that ended at once; only statuses
	// that never carry a body count as a missing stream.
	if resp.StatusCode < 200 || resp.StatusCode > 299 || nullBodyStatus(resp.StatusCode) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		l.Debug("stream rejected", "status", resp.StatusCode)
		return fail(cb, &stream.ConnectionError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(snippet)),
		})
	}

	l.Debug("streaming response", "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))
	return o.decoder.Decode(ctx, resp.Body, cb)
}

func nullBodyStatus(code int) bool {
	return code == http.StatusNoContent || code == http.StatusResetContent
}

func fail(cb stream.Callbacks, err error) error {
	if cb.OnError != nil {
		cb.OnError(err)
	}
	return err
}
