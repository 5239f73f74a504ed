// Package transport defines the transport layer abstraction for the ArangoDB driver
package transport

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Request describes one HTTP request to the server. Path is relative to the
// server endpoint and already carries the database prefix, for example
// "/_db/_system/_api/cursor".
type Request struct {
	Method  string
	Path    string
	Body    []byte
	Headers map[string]string
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// Header returns the value of the named header, ignoring case.
func (r *Response) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	if v, ok := r.Headers[name]; ok {
		return v
	}
	canonical := http.CanonicalHeaderKey(name)
	if v, ok := r.Headers[canonical]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Location returns the Location header, set by the server on create operations.
func (r *Response) Location() string {
	return r.Header("Location")
}

// Transport defines the interface for performing requests against the server
type Transport interface {
	// Do performs the request and blocks until the full response has been read.
	// An error is returned only when no response could be obtained at all
	// (DNS, socket, timeout); any HTTP status is a successful round-trip.
	Do(ctx context.Context, req *Request) (*Response, error)

	// Close releases transport resources
	Close() error

	// IsHealthy returns whether the transport is healthy
	IsHealthy() bool

	// GetMetrics returns transport performance metrics
	GetMetrics() TransportMetrics
}

// TransportMetrics contains performance and health metrics
type TransportMetrics struct {
	// TotalRequests is the total number of requests sent
	TotalRequests int64

	// TotalErrors is the total number of connect-level failures
	TotalErrors int64

	// AverageLatency is the average round-trip latency
	AverageLatency time.Duration

	// LastError is the most recent error encountered
	LastError error

	// LastErrorTime is when the last error occurred
	LastErrorTime time.Time

	// BytesSent is the total request body bytes sent
	BytesSent int64

	// BytesReceived is the total response body bytes received
	BytesReceived int64

	// StatusCounts counts responses per status class ("2xx", "4xx", ...)
	StatusCounts map[string]int64
}

// StatusClass returns the "Nxx" class of an HTTP status code.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return string(rune('0'+code/100)) + "xx"
}

// Factory creates new transport instances
type Factory func(ctx context.Context) (Transport, error)
