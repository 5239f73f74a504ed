// Package rest implements transport.Transport over net/http
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
)

// Options configures the REST transport
type Options struct {
	// Endpoint is the server base URL (http://host:port)
	Endpoint string

	// Timeout bounds each request, including reading the body
	Timeout time.Duration

	// Headers are sent with every request unless the request overrides them
	Headers map[string]string

	// Client replaces the default http.Client when set
	Client *http.Client
}

// Transport implements transport.Transport for HTTP endpoints
type Transport struct {
	opts     Options
	endpoint string
	client   *http.Client
	metrics  transportMetrics
	closed   atomic.Bool
}

// transportMetrics tracks transport performance
type transportMetrics struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	latencySum    atomic.Int64 // nanoseconds
	mu            sync.RWMutex
	lastError     error
	lastErrorTime time.Time
	lastSuccess   time.Time
	statusCounts  map[string]int64
}

// NewTransport creates a new REST transport
func NewTransport(opts Options) (*Transport, error) {
	if opts.Endpoint == "" {
		return nil, protocol.InvalidEndpointError("", fmt.Errorf("endpoint is required"))
	}
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, protocol.InvalidEndpointError(opts.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, protocol.InvalidEndpointError(opts.Endpoint, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, protocol.InvalidEndpointError(opts.Endpoint, fmt.Errorf("missing host"))
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Transport{
		opts:     opts,
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		client:   client,
		metrics:  transportMetrics{statusCounts: make(map[string]int64)},
	}, nil
}

// Do implements transport.Transport
func (t *Transport) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	start := time.Now()
	t.metrics.totalRequests.Add(1)

	if t.closed.Load() {
		err := protocol.ConnectionError("transport is closed", nil)
		t.recordError(err)
		return nil, err
	}

	target := t.endpoint + req.Path
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		terr := protocol.InvalidEndpointError(target, errors.Wrap(err, "build request"))
		t.recordError(terr)
		return nil, terr
	}
	for k, v := range t.opts.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", protocol.ContentTypeJSON)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		terr := classify(err, req.Method, target)
		t.recordError(terr)
		return nil, terr
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		terr := classify(err, req.Method, target)
		t.recordError(terr)
		return nil, terr
	}

	t.metrics.bytesSent.Add(int64(len(req.Body)))
	t.metrics.bytesReceived.Add(int64(len(data)))
	t.recordLatency(time.Since(start))
	t.recordStatus(httpResp.StatusCode)

	headers := make(map[string]string, len(httpResp.Header))
	for k, v := range httpResp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return &transport.Response{
		StatusCode: httpResp.StatusCode,
		Headers:    headers,
		Body:       data,
	}, nil
}

// Close implements transport.Transport
func (t *Transport) Close() error {
	t.closed.Store(true)
	t.client.CloseIdleConnections()
	return nil
}

// IsHealthy implements transport.Transport. The transport is healthy while
// open and the last request did not end in a connect failure.
func (t *Transport) IsHealthy() bool {
	if t.closed.Load() {
		return false
	}
	t.metrics.mu.RLock()
	defer t.metrics.mu.RUnlock()
	return t.metrics.lastError == nil || t.metrics.lastErrorTime.Before(t.metrics.lastSuccess)
}

// GetMetrics implements transport.Transport
func (t *Transport) GetMetrics() transport.TransportMetrics {
	t.metrics.mu.RLock()
	lastErr := t.metrics.lastError
	lastErrTime := t.metrics.lastErrorTime
	counts := make(map[string]int64, len(t.metrics.statusCounts))
	for k, v := range t.metrics.statusCounts {
		counts[k] = v
	}
	t.metrics.mu.RUnlock()

	totalReqs := t.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(t.metrics.latencySum.Load() / totalReqs)
	}

	return transport.TransportMetrics{
		TotalRequests:  totalReqs,
		TotalErrors:    t.metrics.totalErrors.Load(),
		AverageLatency: avgLatency,
		LastError:      lastErr,
		LastErrorTime:  lastErrTime,
		BytesSent:      t.metrics.bytesSent.Load(),
		BytesReceived:  t.metrics.bytesReceived.Load(),
		StatusCounts:   counts,
	}
}

// classify maps a net/http failure onto a transport error code
func classify(err error, method, target string) *protocol.TransportError {
	details := map[string]interface{}{
		"method": method,
		"url":    target,
	}

	var terr *protocol.TransportError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		terr = protocol.TimeoutError("request timed out", details)
	default:
		terr = protocol.ConnectionError("request failed", details)
	}
	terr.Cause = errors.Wrapf(err, "%s %s", method, target)
	return terr
}

// recordError records an error in metrics
func (t *Transport) recordError(err error) {
	t.metrics.totalErrors.Add(1)
	t.metrics.mu.Lock()
	t.metrics.lastError = err
	t.metrics.lastErrorTime = time.Now()
	t.metrics.mu.Unlock()
}

// recordLatency records latency in metrics
func (t *Transport) recordLatency(latency time.Duration) {
	t.metrics.latencySum.Add(int64(latency))
}

func (t *Transport) recordStatus(code int) {
	t.metrics.mu.Lock()
	t.metrics.lastSuccess = time.Now()
	t.metrics.statusCounts[transport.StatusClass(code)]++
	t.metrics.mu.Unlock()
}

var _ transport.Transport = (*Transport)(nil)
