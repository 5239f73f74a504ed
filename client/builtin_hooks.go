package client

import (
	"context"
	"errors"
	"sync/atomic"
)

// LoggingHook logs request execution with configurable detail levels.
type LoggingHook struct {
	logger       Logger
	logRequests  bool // Log method and path before sending
	logBodies    bool // Log request and response bodies
	logDurations bool // Log execution times
}

// NewLoggingHook creates a new logging hook with the given logger.
func NewLoggingHook(logger Logger, logRequests, logBodies, logDurations bool) *LoggingHook {
	return &LoggingHook{
		logger:       logger,
		logRequests:  logRequests,
		logBodies:    logBodies,
		logDurations: logDurations,
	}
}

func (h *LoggingHook) Name() string {
	return "logging"
}

func (h *LoggingHook) Before(ctx context.Context, hookCtx *HookContext) error {
	if h.logRequests {
		fields := []Field{
			String("method", hookCtx.Method),
			String("path", hookCtx.Path),
			String("operation", string(hookCtx.Operation)),
			String("trace_id", hookCtx.TraceID),
		}
		if h.logBodies && len(hookCtx.Body) > 0 {
			fields = append(fields, String("body", string(hookCtx.Body)))
		}
		h.logger.Debug("executing request", fields...)
	}
	return nil
}

func (h *LoggingHook) After(ctx context.Context, hookCtx *HookContext) error {
	fields := []Field{
		String("operation", string(hookCtx.Operation)),
		String("trace_id", hookCtx.TraceID),
	}

	if hookCtx.Captured {
		h.logger.Debug("request captured", append(fields, String("part", hookCtx.PartID))...)
		return nil
	}

	if h.logDurations {
		fields = append(fields, Duration("duration", hookCtx.Duration))
	}
	if hookCtx.Response != nil {
		fields = append(fields, Int("status", hookCtx.Response.StatusCode))
	}

	if hookCtx.Error != nil {
		fields = append(fields, Error("error", hookCtx.Error))
		h.logger.Error("request failed", fields...)
		return nil
	}

	if h.logBodies && hookCtx.Response != nil {
		fields = append(fields, String("response", string(hookCtx.Response.Body)))
	}
	h.logger.Debug("request completed", fields...)
	return nil
}

// MetricsHook collects request metrics using atomic counters. Captured
// requests are counted apart from requests that reached the server, and
// failures are split into server-reported and connection-level ones.
type MetricsHook struct {
	TotalRequests         atomic.Uint64
	TotalCaptured         atomic.Uint64
	TotalCursors          atomic.Uint64
	TotalMutations        atomic.Uint64
	TotalErrors           atomic.Uint64
	TotalServerErrors     atomic.Uint64
	TotalConnectionErrors atomic.Uint64
	TotalDurationNs       atomic.Uint64
}

// NewMetricsHook creates a new metrics collection hook.
func NewMetricsHook() *MetricsHook {
	return &MetricsHook{}
}

func (h *MetricsHook) Name() string {
	return "metrics"
}

func (h *MetricsHook) Before(ctx context.Context, hookCtx *HookContext) error {
	return nil
}

func (h *MetricsHook) After(ctx context.Context, hookCtx *HookContext) error {
	if hookCtx.Captured {
		h.TotalCaptured.Add(1)
		return nil
	}

	h.TotalRequests.Add(1)
	h.TotalDurationNs.Add(uint64(hookCtx.Duration.Nanoseconds()))

	switch hookCtx.Operation {
	case PartTypeCursor:
		h.TotalCursors.Add(1)
	case PartTypeDocument, PartTypeEdge, PartTypeCollection:
		h.TotalMutations.Add(1)
	}

	if hookCtx.Error != nil {
		h.TotalErrors.Add(1)
		var se *ServerError
		switch {
		case errors.As(hookCtx.Error, &se):
			h.TotalServerErrors.Add(1)
		case IsConnectionError(hookCtx.Error):
			h.TotalConnectionErrors.Add(1)
		}
	}
	return nil
}

// GetStats returns current metrics as a map.
func (h *MetricsHook) GetStats() map[string]interface{} {
	total := h.TotalRequests.Load()
	totalDur := h.TotalDurationNs.Load()
	avgDuration := int64(0)
	if total > 0 {
		avgDuration = int64(totalDur / total)
	}

	return map[string]interface{}{
		"total_requests":    total,
		"total_captured":    h.TotalCaptured.Load(),
		"total_cursors":     h.TotalCursors.Load(),
		"total_mutations":   h.TotalMutations.Load(),
		"total_errors":      h.TotalErrors.Load(),
		"server_errors":     h.TotalServerErrors.Load(),
		"connection_errors": h.TotalConnectionErrors.Load(),
		"total_duration_ns": totalDur,
		"avg_duration_ns":   avgDuration,
		"avg_duration_ms":   float64(avgDuration) / 1_000_000,
	}
}

// Reset clears all metrics.
func (h *MetricsHook) Reset() {
	h.TotalRequests.Store(0)
	h.TotalCaptured.Store(0)
	h.TotalCursors.Store(0)
	h.TotalMutations.Store(0)
	h.TotalErrors.Store(0)
	h.TotalServerErrors.Store(0)
	h.TotalConnectionErrors.Store(0)
	h.TotalDurationNs.Store(0)
}
