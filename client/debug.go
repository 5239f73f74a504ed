package client

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// EnableDebugMode enables debug mode with verbose logging and stack traces.
func (c *Connection) EnableDebugMode() {
	c.debugMode.Store(true)
	c.logger.Info("debug mode enabled")
}

// DisableDebugMode disables debug mode.
func (c *Connection) DisableDebugMode() {
	c.debugMode.Store(false)
	c.logger.Info("debug mode disabled")
}

// IsDebugMode returns whether debug mode is currently enabled.
func (c *Connection) IsDebugMode() bool {
	return c.debugMode.Load()
}

// FormatError formats err using the connection's debug mode.
func (c *Connection) FormatError(err error) string {
	return FormatError(err, c.IsDebugMode())
}

// GetDebugInfo returns a snapshot of connection state for debugging.
func (c *Connection) GetDebugInfo() map[string]interface{} {
	info := map[string]interface{}{
		"version":   Version,
		"endpoint":  c.opts.Endpoint,
		"database":  c.opts.Database,
		"mode":      c.Mode().String(),
		"debugMode": c.IsDebugMode(),
		"hooks":     c.GetHooks(),
	}

	if b := c.ActiveBatch(); b != nil {
		info["activeBatch"] = map[string]interface{}{
			"id":    b.ID(),
			"state": b.State().String(),
			"parts": b.Count(),
			"size":  b.Size(),
		}
	}

	metrics := c.transport.GetMetrics()
	transportInfo := map[string]interface{}{
		"healthy":        c.transport.IsHealthy(),
		"totalRequests":  metrics.TotalRequests,
		"totalErrors":    metrics.TotalErrors,
		"averageLatency": metrics.AverageLatency.String(),
		"bytesSent":      metrics.BytesSent,
		"bytesReceived":  metrics.BytesReceived,
		"statusCounts":   metrics.StatusCounts,
	}
	if metrics.LastError != nil {
		transportInfo["lastError"] = metrics.LastError.Error()
		transportInfo["lastErrorTime"] = metrics.LastErrorTime.Format("2006-01-02T15:04:05.000Z07:00")
	}
	info["transport"] = transportInfo

	info["options"] = map[string]interface{}{
		"timeoutMs":        c.opts.TimeoutMs,
		"defaultBatchSize": c.opts.DefaultBatchSize,
		"batchPath":        c.opts.BatchPath,
		"logLevel":         c.opts.LogLevel,
	}

	info["runtime"] = map[string]interface{}{
		"goVersion":  runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}

	return info
}

// DumpDebugInfoJSON returns debug info as formatted JSON string.
func (c *Connection) DumpDebugInfoJSON() string {
	info := c.GetDebugInfo()
	bytes, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal debug info: %s"}`, err.Error())
	}
	return string(bytes)
}
