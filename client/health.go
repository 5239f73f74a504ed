package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// HealthMonitor periodically pings the server and reports when it becomes
// unreachable or recovers.
//
// Pings bypass capture mode, so a monitor keeps working while a batch on
// the same connection is capturing.
type HealthMonitor struct {
	conn             *Connection
	interval         time.Duration
	timeout          time.Duration
	failureThreshold int
	failureCount     atomic.Int32
	healthy          atomic.Bool
	stopCh           chan struct{}
	startOnce        sync.Once
	stopOnce         sync.Once
	wg               sync.WaitGroup
	logger           Logger

	mu          sync.Mutex
	onUnhealthy func(err error)
	onRecovered func()
}

// NewHealthMonitor creates a health monitor for conn. The server is marked
// unhealthy after threshold consecutive failed pings.
func NewHealthMonitor(conn *Connection, interval time.Duration, threshold int) *HealthMonitor {
	if threshold < 1 {
		threshold = 1
	}
	h := &HealthMonitor{
		conn:             conn,
		interval:         interval,
		timeout:          5 * time.Second,
		failureThreshold: threshold,
		stopCh:           make(chan struct{}),
		logger:           conn.logger.WithFields(String("component", "health_monitor")),
	}
	h.healthy.Store(true)
	return h
}

// OnUnhealthy sets a callback fired once when the failure threshold is reached.
func (h *HealthMonitor) OnUnhealthy(fn func(err error)) {
	h.mu.Lock()
	h.onUnhealthy = fn
	h.mu.Unlock()
}

// OnRecovered sets a callback fired when an unhealthy server answers again.
func (h *HealthMonitor) OnRecovered(fn func()) {
	h.mu.Lock()
	h.onRecovered = fn
	h.mu.Unlock()
}

// Start begins the health check monitoring in a background goroutine.
// Later calls do nothing.
func (h *HealthMonitor) Start() {
	h.startOnce.Do(func() {
		h.wg.Add(1)
		go h.monitorLoop()
		h.logger.Info("health monitor started", Duration("interval", h.interval))
	})
}

// Stop stops the health monitor gracefully. It is safe to call more than once.
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.wg.Wait()
		h.logger.Info("health monitor stopped")
	})
}

// IsHealthy reports the result of the latest checks.
func (h *HealthMonitor) IsHealthy() bool {
	return h.healthy.Load()
}

// FailureCount returns the number of consecutive failed pings.
func (h *HealthMonitor) FailureCount() int {
	return int(h.failureCount.Load())
}

func (h *HealthMonitor) monitorLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.Check()
		}
	}
}

// Check performs one ping and updates the health state.
func (h *HealthMonitor) Check() error {
	err := h.performHealthCheck()
	if err != nil {
		failures := int(h.failureCount.Add(1))
		h.logger.Warn("health check failed",
			Error("error", err),
			Int("failureCount", failures))

		if failures == h.failureThreshold && h.healthy.Swap(false) {
			h.logger.Error("health check failure threshold exceeded",
				Int("threshold", h.failureThreshold))
			h.mu.Lock()
			fn := h.onUnhealthy
			h.mu.Unlock()
			if fn != nil {
				fn(err)
			}
		}
		return err
	}

	if prev := h.failureCount.Swap(0); prev > 0 {
		h.logger.Info("health check recovered", Int("previousFailures", int(prev)))
	}
	if !h.healthy.Swap(true) {
		h.mu.Lock()
		fn := h.onRecovered
		h.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
	return nil
}

// performHealthCheck requests the server version outside capture mode. Only
// failures that mean the server is gone count; a server error proves the
// server is up.
func (h *HealthMonitor) performHealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	req, err := h.conn.newRequest("GET", "/_api/version", nil)
	if err != nil {
		return err
	}
	req.metadata = map[string]interface{}{"health_check": true}

	_, err = h.conn.send(ctx, req)
	if err != nil && isConnectionDrop(err) {
		return err
	}
	return nil
}

// isConnectionDrop checks if an error indicates the server is unreachable.
func isConnectionDrop(err error) bool {
	if err == nil {
		return false
	}
	if IsConnectionError(err) {
		return true
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	dropPatterns := []string{
		"connection reset",
		"broken pipe",
		"connection refused",
		"connection closed",
	}
	for _, pattern := range dropPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
