package client

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/arangodb-drivers/transport"
	"github.com/dan-strohschein/arangodb-drivers/transport/mock"
)

const versionBody = `{"server":"arango","version":"3.11.0","license":"community"}`

func TestHealthMonitor_ThresholdAndRecovery(t *testing.T) {
	tr := mock.NewMockTransport()
	conn := newTestConnection(t, tr)
	h := NewHealthMonitor(conn, time.Hour, 2)

	var unhealthy int
	var recovered int
	h.OnUnhealthy(func(err error) {
		unhealthy++
		assert.True(t, IsConnectionError(err))
	})
	h.OnRecovered(func() { recovered++ })

	assert.Error(t, h.Check())
	assert.True(t, h.IsHealthy(), "one failure stays below the threshold")
	assert.Error(t, h.Check())
	assert.False(t, h.IsHealthy())
	assert.Error(t, h.Check())
	assert.Equal(t, 3, h.FailureCount())
	assert.Equal(t, 1, unhealthy)

	tr.WithJSON(http.StatusOK, versionBody)
	require.NoError(t, h.Check())
	assert.True(t, h.IsHealthy())
	assert.Equal(t, 0, h.FailureCount())
	assert.Equal(t, 1, recovered)

	assert.Equal(t, "/_db/_system/_api/version", tr.LastRequest().Path)
}

func TestHealthMonitor_ServerErrorIsHealthy(t *testing.T) {
	tr := mock.NewMockTransport().WithJSON(http.StatusUnauthorized, `{"error":true,"code":401,"errorNum":11,"errorMessage":"not authorized"}`)
	conn := newTestConnection(t, tr)
	h := NewHealthMonitor(conn, time.Hour, 1)

	assert.NoError(t, h.Check())
	assert.True(t, h.IsHealthy())
}

func TestHealthMonitor_BypassesCapture(t *testing.T) {
	tr := mock.NewMockTransport().WithJSON(http.StatusOK, versionBody)
	conn := newTestConnection(t, tr)
	b, err := NewBatch(conn, nil)
	require.NoError(t, err)

	h := NewHealthMonitor(conn, time.Hour, 1)
	require.NoError(t, h.Check())
	assert.Equal(t, 1, tr.GetCallCount())
	assert.Equal(t, 0, b.Count())
	assert.Equal(t, ModeCapture, conn.Mode())
}

func TestHealthMonitor_StartStop(t *testing.T) {
	pinged := make(chan struct{}, 1)
	tr := mock.NewMockTransport().WithHandler(func(req *transport.Request) (*transport.Response, error) {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(versionBody)}, nil
	})
	conn := newTestConnection(t, tr)
	h := NewHealthMonitor(conn, 5*time.Millisecond, 1)

	h.Start()
	select {
	case <-pinged:
	case <-time.After(time.Second):
		t.Fatal("expected the monitor to ping the server")
	}
	h.Stop()
	h.Stop()
	assert.True(t, h.IsHealthy())
}

func TestHealthMonitor_StartTwiceRunsOneLoop(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var mu sync.Mutex
	inFlight, peak := 0, 0
	tr := mock.NewMockTransport().WithHandler(func(req *transport.Request) (*transport.Response, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		mu.Lock()
		inFlight--
		mu.Unlock()
		return &transport.Response{StatusCode: http.StatusOK, Body: []byte(versionBody)}, nil
	})
	conn := newTestConnection(t, tr)
	h := NewHealthMonitor(conn, 5*time.Millisecond, 1)

	h.Start()
	h.Start()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("expected the monitor to ping the server")
	}
	// A second loop would have ticked several times by now.
	time.Sleep(50 * time.Millisecond)
	close(release)
	h.Stop()

	mu.Lock()
	defer mu.Unlock()
	if peak != 1 {
		t.Errorf("expected 1 ping in flight at most, got %d", peak)
	}
}

func TestIsConnectionDrop(t *testing.T) {
	tests := []struct {
		err  error
		drop bool
	}{
		{nil, false},
		{errors.New("boom"), false},
		{fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("dial tcp: Connection Refused"), true},
		{ErrUnknownPart("p"), false},
		{newConnectionError("GET", "/", errors.New("x")), true},
	}

	for _, tt := range tests {
		if got := isConnectionDrop(tt.err); got != tt.drop {
			t.Errorf("isConnectionDrop(%v): expected %v, got %v", tt.err, tt.drop, got)
		}
	}
}
