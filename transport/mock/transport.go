package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
)

// HandlerFunc computes a response for a request. It is consulted when the
// response queue is empty.
type HandlerFunc func(req *transport.Request) (*transport.Response, error)

// MockTransport implements transport.Transport for testing. Responses are
// served from a FIFO queue first, then from the handler.
type MockTransport struct {
	// Behavior configuration
	doErr     error
	queue     []*transport.Response
	handler   HandlerFunc
	healthy   bool
	doDelay   time.Duration
	closed    bool
	mu        sync.RWMutex
	history   []*transport.Request
	responses []*transport.Response

	// Call tracking
	doCalls    atomic.Int32
	closeCalls atomic.Int32

	// Metrics
	metrics mockMetrics
}

type mockMetrics struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	latencySum    atomic.Int64
	statusMu      sync.Mutex
	statusCounts  map[string]int64
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		healthy: true,
		metrics: mockMetrics{statusCounts: make(map[string]int64)},
	}
}

// WithError configures the transport to fail every Do with err
func (m *MockTransport) WithError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doErr = err
	return m
}

// WithResponse queues a response
func (m *MockTransport) WithResponse(resp *transport.Response) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, resp)
	return m
}

// WithJSON queues a JSON response with the given status
func (m *MockTransport) WithJSON(status int, body string) *MockTransport {
	return m.WithResponse(&transport.Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": protocol.ContentTypeJSON},
		Body:       []byte(body),
	})
}

// WithHandler configures the fallback handler
func (m *MockTransport) WithHandler(h HandlerFunc) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
	return m
}

// WithHealthy configures the health status
func (m *MockTransport) WithHealthy(healthy bool) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	return m
}

// WithDelay adds a delay to Do
func (m *MockTransport) WithDelay(delay time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doDelay = delay
	return m
}

// Do implements transport.Transport
func (m *MockTransport) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	m.doCalls.Add(1)
	m.metrics.totalRequests.Add(1)
	start := time.Now()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, protocol.ConnectionError("transport is closed", nil)
	}
	delay := m.doDelay
	doErr := m.doErr
	m.history = append(m.history, copyRequest(req))
	m.mu.Unlock()

	m.metrics.bytesSent.Add(int64(len(req.Body)))

	if delay > 0 {
		select {
		case <-ctx.Done():
			m.metrics.totalErrors.Add(1)
			return nil, protocol.TimeoutError(ctx.Err().Error(), nil)
		case <-time.After(delay):
		}
	}

	if doErr != nil {
		m.metrics.totalErrors.Add(1)
		return nil, doErr
	}

	resp, err := m.next(req)
	if err != nil {
		m.metrics.totalErrors.Add(1)
		return nil, err
	}

	m.mu.Lock()
	m.responses = append(m.responses, resp)
	m.mu.Unlock()

	m.metrics.bytesReceived.Add(int64(len(resp.Body)))
	m.metrics.latencySum.Add(int64(time.Since(start)))
	m.metrics.statusMu.Lock()
	m.metrics.statusCounts[transport.StatusClass(resp.StatusCode)]++
	m.metrics.statusMu.Unlock()
	return resp, nil
}

func (m *MockTransport) next(req *transport.Request) (*transport.Response, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		resp := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return resp, nil
	}
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		return handler(req)
	}
	return nil, protocol.ConnectionError(fmt.Sprintf("no response scripted for %s %s", req.Method, req.Path), nil)
}

// Close implements transport.Transport
func (m *MockTransport) Close() error {
	m.closeCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsHealthy implements transport.Transport
func (m *MockTransport) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy && !m.closed
}

// GetMetrics implements transport.Transport
func (m *MockTransport) GetMetrics() transport.TransportMetrics {
	totalReqs := m.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(m.metrics.latencySum.Load() / totalReqs)
	}

	m.metrics.statusMu.Lock()
	counts := make(map[string]int64, len(m.metrics.statusCounts))
	for k, v := range m.metrics.statusCounts {
		counts[k] = v
	}
	m.metrics.statusMu.Unlock()

	return transport.TransportMetrics{
		TotalRequests:  totalReqs,
		TotalErrors:    m.metrics.totalErrors.Load(),
		AverageLatency: avgLatency,
		BytesSent:      m.metrics.bytesSent.Load(),
		BytesReceived:  m.metrics.bytesReceived.Load(),
		StatusCounts:   counts,
	}
}

// GetCallCount returns the number of times Do was called
func (m *MockTransport) GetCallCount() int {
	return int(m.doCalls.Load())
}

// GetCloseCallCount returns the number of times Close was called
func (m *MockTransport) GetCloseCallCount() int {
	return int(m.closeCalls.Load())
}

// GetRequests returns every request seen, in order
func (m *MockTransport) GetRequests() []*transport.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modifications
	history := make([]*transport.Request, len(m.history))
	copy(history, m.history)
	return history
}

// LastRequest returns the most recent request, or nil
func (m *MockTransport) LastRequest() *transport.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return nil
	}
	return m.history[len(m.history)-1]
}

// GetResponses returns every response served, in order
func (m *MockTransport) GetResponses() []*transport.Response {
	m.mu.RLock()
	defer m.mu.RUnlock()

	responses := make([]*transport.Response, len(m.responses))
	copy(responses, m.responses)
	return responses
}

// Pending returns the number of queued responses not yet served
func (m *MockTransport) Pending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue)
}

// Reset clears all state and call counts
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.doErr = nil
	m.queue = nil
	m.handler = nil
	m.healthy = true
	m.closed = false
	m.doDelay = 0

	m.doCalls.Store(0)
	m.closeCalls.Store(0)

	m.metrics.totalRequests.Store(0)
	m.metrics.totalErrors.Store(0)
	m.metrics.bytesSent.Store(0)
	m.metrics.bytesReceived.Store(0)
	m.metrics.latencySum.Store(0)
	m.metrics.statusMu.Lock()
	m.metrics.statusCounts = make(map[string]int64)
	m.metrics.statusMu.Unlock()

	m.history = nil
	m.responses = nil
}

// IsClosed returns whether the transport has been closed
func (m *MockTransport) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

func copyRequest(req *transport.Request) *transport.Request {
	c := &transport.Request{Method: req.Method, Path: req.Path}
	if req.Body != nil {
		c.Body = append([]byte(nil), req.Body...)
	}
	if req.Headers != nil {
		c.Headers = make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			c.Headers[k] = v
		}
	}
	return c
}
