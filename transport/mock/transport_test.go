package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
)

func TestMockTransport_QueuedResponses(t *testing.T) {
	mock := NewMockTransport().
		WithJSON(201, `{"id":"1"}`).
		WithJSON(200, `{"id":"2"}`)
	ctx := context.Background()

	first, err := mock.Do(ctx, &transport.Request{Method: "POST", Path: "/_api/cursor", Body: []byte(`{}`)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	second, err := mock.Do(ctx, &transport.Request{Method: "PUT", Path: "/_api/cursor/1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if first.StatusCode != 201 || string(first.Body) != `{"id":"1"}` {
		t.Errorf("unexpected first response: %d %s", first.StatusCode, first.Body)
	}
	if second.StatusCode != 200 || string(second.Body) != `{"id":"2"}` {
		t.Errorf("unexpected second response: %d %s", second.StatusCode, second.Body)
	}
	if mock.GetCallCount() != 2 {
		t.Errorf("expected 2 calls, got %d", mock.GetCallCount())
	}
	if mock.Pending() != 0 {
		t.Errorf("expected empty queue, got %d", mock.Pending())
	}

	history := mock.GetRequests()
	if len(history) != 2 {
		t.Fatalf("expected 2 requests in history, got %d", len(history))
	}
	if history[1].Method != "PUT" || history[1].Path != "/_api/cursor/1" {
		t.Errorf("unexpected second request %s %s", history[1].Method, history[1].Path)
	}
}

func TestMockTransport_HistoryIsCopied(t *testing.T) {
	mock := NewMockTransport().WithJSON(200, `{}`)
	body := []byte(`{"a":1}`)

	if _, err := mock.Do(context.Background(), &transport.Request{Method: "POST", Path: "/x", Body: body}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	body[0] = 'X'

	if string(mock.LastRequest().Body) != `{"a":1}` {
		t.Errorf("expected history to keep original body, got %s", mock.LastRequest().Body)
	}
}

func TestMockTransport_Handler(t *testing.T) {
	mock := NewMockTransport().WithHandler(func(req *transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: 404, Body: []byte(req.Path)}, nil
	})

	resp, err := mock.Do(context.Background(), &transport.Request{Method: "GET", Path: "/missing"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.StatusCode != 404 || string(resp.Body) != "/missing" {
		t.Errorf("unexpected response %d %s", resp.StatusCode, resp.Body)
	}

	metrics := mock.GetMetrics()
	if metrics.StatusCounts["4xx"] != 1 {
		t.Errorf("expected one 4xx response, got %v", metrics.StatusCounts)
	}
}

func TestMockTransport_Error(t *testing.T) {
	mock := NewMockTransport().WithError(protocol.ConnectionError("test error", nil))

	_, err := mock.Do(context.Background(), &transport.Request{Method: "GET", Path: "/"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	metrics := mock.GetMetrics()
	if metrics.TotalErrors != 1 {
		t.Errorf("expected 1 error, got %d", metrics.TotalErrors)
	}
}

func TestMockTransport_Unscripted(t *testing.T) {
	mock := NewMockTransport()

	_, err := mock.Do(context.Background(), &transport.Request{Method: "GET", Path: "/"})
	var te *protocol.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *protocol.TransportError, got %T", err)
	}
}

func TestMockTransport_ContextCancellation(t *testing.T) {
	mock := NewMockTransport().WithDelay(100 * time.Millisecond).WithJSON(200, `{}`)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mock.Do(ctx, &transport.Request{Method: "GET", Path: "/"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestMockTransport_Close(t *testing.T) {
	mock := NewMockTransport().WithJSON(200, `{}`)

	if err := mock.Close(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !mock.IsClosed() {
		t.Error("expected transport to be closed")
	}
	if mock.IsHealthy() {
		t.Error("expected closed transport to be unhealthy")
	}
	if _, err := mock.Do(context.Background(), &transport.Request{Method: "GET", Path: "/"}); err == nil {
		t.Error("expected error after close")
	}
}

func TestMockTransport_Reset(t *testing.T) {
	mock := NewMockTransport().WithJSON(200, `{}`).WithHealthy(false)
	mock.Do(context.Background(), &transport.Request{Method: "GET", Path: "/"})
	mock.Close()

	mock.Reset()

	if mock.GetCallCount() != 0 {
		t.Errorf("expected call count reset, got %d", mock.GetCallCount())
	}
	if len(mock.GetRequests()) != 0 {
		t.Error("expected history reset")
	}
	if mock.IsClosed() || !mock.IsHealthy() {
		t.Error("expected open and healthy transport after reset")
	}
	if mock.GetMetrics().TotalRequests != 0 {
		t.Error("expected metrics reset")
	}
}
