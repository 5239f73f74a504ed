package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dan-strohschein/arangodb-drivers/testutil"
	"github.com/dan-strohschein/arangodb-drivers/transport"
	"github.com/dan-strohschein/arangodb-drivers/transport/mock"
)

// deadlineTransport records the deadline of every request context.
type deadlineTransport struct {
	mu        sync.Mutex
	deadlines []time.Time
}

func (d *deadlineTransport) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	deadline, _ := ctx.Deadline()
	d.mu.Lock()
	d.deadlines = append(d.deadlines, deadline)
	d.mu.Unlock()
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(`{"server":"arango","version":"3.11.0"}`)}, nil
}

func (d *deadlineTransport) Close() error                           { return nil }
func (d *deadlineTransport) IsHealthy() bool                        { return true }
func (d *deadlineTransport) GetMetrics() transport.TransportMetrics { return transport.TransportMetrics{} }

// Test context cancellation during a request
func TestContextTimeoutDuringRequest(t *testing.T) {
	tr := mock.NewMockTransport().WithDelay(500 * time.Millisecond)
	conn := newTestConnection(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := conn.ServerVersion(ctx)
	elapsed := time.Since(start)

	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a connection error, got: %v", err)
	}
	if ce.Code != "E_TIMEOUT" {
		t.Errorf("Expected E_TIMEOUT, got %s", ce.Code)
	}
	if elapsed > 400*time.Millisecond {
		t.Errorf("Timeout took too long: %v", elapsed)
	}
}

// Test the caller's deadline reaches the transport unchanged
func TestContextDeadlinePropagation(t *testing.T) {
	tr := &deadlineTransport{}
	conn := newTestConnection(t, tr)

	deadline := time.Now().Add(time.Minute)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	if _, err := conn.ServerVersion(ctx); err != nil {
		t.Fatalf("ServerVersion failed: %v", err)
	}
	if len(tr.deadlines) != 1 || !tr.deadlines[0].Equal(deadline) {
		t.Errorf("Expected deadline %v, got %v", deadline, tr.deadlines)
	}
}

// Test cancellation of the parent context stops an in-flight request
func TestParentContextCancellation(t *testing.T) {
	tr := mock.NewMockTransport().WithDelay(time.Second)
	conn := newTestConnection(t, tr)

	parent, cancel := context.WithCancel(context.Background())
	child := WithTraceID(parent, "trace-1")

	done := make(chan error, 1)
	go func() {
		_, err := conn.ServerVersion(child)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !IsConnectionError(err) {
			t.Errorf("Expected a connection error, got: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("request did not stop after parent cancellation")
	}
}

// Test a cancelled page fetch leaves the rows already read intact
func TestContextCancellationDuringCursorFetch(t *testing.T) {
	tr := mock.NewMockTransport().
		WithJSON(http.StatusCreated, testutil.CursorBody(testutil.NumberRows(0, 2), true, "c1", nil))
	conn := newTestConnection(t, tr)

	stmt, err := conn.NewStatement(StatementOptions{Query: "FOR i IN 0..3 RETURN i", BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	cur, err := stmt.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	tr.WithDelay(500 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := cur.FetchOutstanding(ctx); !IsConnectionError(err) {
		t.Errorf("Expected a connection error, got: %v", err)
	}
	if cur.Len() != 2 {
		t.Errorf("Expected 2 buffered rows, got %d", cur.Len())
	}
	if !cur.HasMore() {
		t.Error("A failed fetch must not mark the cursor exhausted")
	}
}

// Test capture does not depend on the request context
func TestCaptureWithCancelledContext(t *testing.T) {
	tr := mock.NewMockTransport()
	conn := newTestConnection(t, tr)
	b, err := NewBatch(conn, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = conn.Get(ctx, "/_api/version")
	if !IsCaptured(err) {
		t.Fatalf("Expected a captured part, got: %v", err)
	}
	if b.Count() != 1 {
		t.Errorf("Expected 1 part, got %d", b.Count())
	}
	if tr.GetCallCount() != 0 {
		t.Errorf("Expected no transport calls, got %d", tr.GetCallCount())
	}
}

// Test multiple concurrent contexts
func TestMultipleConcurrentContexts(t *testing.T) {
	tr := mock.NewMockTransport().WithHandler(func(req *transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(`{"server":"arango","version":"3.11.0"}`)}, nil
	})
	conn := newTestConnection(t, tr)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := conn.ServerVersion(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent request failed: %v", err)
	}
	if tr.GetCallCount() != workers {
		t.Errorf("Expected %d calls, got %d", workers, tr.GetCallCount())
	}
}
