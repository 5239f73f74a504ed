package client

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dan-strohschein/arangodb-drivers/transport"
)

// HookContext contains information about the request being executed.
// This is passed to hooks to allow inspection and modification.
type HookContext struct {
	// Method is the HTTP method
	Method string

	// Path is the database-relative request path
	Path string

	// Body is the encoded request body
	Body []byte

	// Operation categorizes the request (cursor, document, collection, ...)
	Operation PartType

	// Captured is true when the request was recorded into a batch instead of
	// being sent
	Captured bool

	// PartID is the batch part id of a captured request
	PartID string

	// StartTime is when the request execution began
	StartTime time.Time

	// Metadata allows hooks to store arbitrary data for passing between Before/After
	Metadata map[string]interface{}

	// TraceID is the unique identifier for this request
	TraceID string

	// Response is the server response (available in After hook, nil when captured)
	Response *transport.Response

	// Error stores any error that occurred (available in After hook)
	Error error

	// Duration is the execution time (available in After hook)
	Duration time.Duration
}

// Hook is the interface that all hooks must implement.
type Hook interface {
	// Name returns the unique name of this hook
	Name() string

	// Before is called before the request is sent or captured.
	// Returning an error aborts the request and returns the error.
	Before(ctx context.Context, hookCtx *HookContext) error

	// After is called after the request completed (even if it failed).
	// Returning an error replaces any existing error.
	After(ctx context.Context, hookCtx *HookContext) error
}

// RegisterHook adds a hook to the connection's hook chain.
// Hooks are executed in FIFO order (first registered, first executed).
// If a hook with the same name already exists, it is replaced.
func (c *Connection) RegisterHook(hook Hook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	for i, existing := range c.hooks {
		if existing.Name() == hook.Name() {
			c.hooks[i] = hook
			c.logger.Info("hook replaced", String("hook", hook.Name()))
			return
		}
	}

	c.hooks = append(c.hooks, hook)
	c.logger.Info("hook registered", String("hook", hook.Name()), Int("order", len(c.hooks)-1))
}

// UnregisterHook removes a hook by name.
// Returns true if the hook was found and removed, false otherwise.
func (c *Connection) UnregisterHook(name string) bool {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	for i, existing := range c.hooks {
		if existing.Name() == name {
			c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
			c.logger.Info("hook unregistered", String("hook", name))
			return true
		}
	}
	return false
}

// GetHooks returns the names of all registered hooks in execution order.
func (c *Connection) GetHooks() []string {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()

	names := make([]string, len(c.hooks))
	for i, h := range c.hooks {
		names[i] = h.Name()
	}
	return names
}

func (c *Connection) snapshotHooks() []Hook {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	hooks := make([]Hook, len(c.hooks))
	copy(hooks, c.hooks)
	return hooks
}

// executeBeforeHooks runs all Before hooks in order.
// If any hook returns an error, execution stops and the error is returned.
func (c *Connection) executeBeforeHooks(ctx context.Context, hookCtx *HookContext) error {
	for _, hook := range c.snapshotHooks() {
		if err := hook.Before(ctx, hookCtx); err != nil {
			c.logger.Debug("hook aborted request",
				String("hook", hook.Name()),
				String("method", hookCtx.Method),
				String("path", hookCtx.Path),
				Error("error", err))
			return err
		}
	}
	return nil
}

// executeAfterHooks runs all After hooks in order.
// All hooks are executed even if one returns an error.
// The last error returned (if any) is returned.
func (c *Connection) executeAfterHooks(ctx context.Context, hookCtx *HookContext) error {
	var lastErr error
	for _, hook := range c.snapshotHooks() {
		if err := hook.After(ctx, hookCtx); err != nil {
			c.logger.Debug("hook returned error in After",
				String("hook", hook.Name()),
				String("path", hookCtx.Path),
				Error("error", err))
			lastErr = err
		}
	}
	return lastErr
}

// classifyRequest determines what a request does from its method and path.
// The result decides how a batch part response is decoded.
func classifyRequest(method, path string, body []byte) PartType {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] != "_api" {
		return PartTypeOther
	}
	method = strings.ToUpper(method)
	// segments after "_api/<resource>"
	rest := len(segments) - 2

	switch segments[1] {
	case "cursor":
		if (method == "POST" && rest == 0) || (method == "PUT" && rest == 1) {
			return PartTypeCursor
		}
	case "document":
		switch {
		case method == "POST" && rest == 1:
			if len(body) > 0 && gjson.GetBytes(body, "_from").Exists() && gjson.GetBytes(body, "_to").Exists() {
				return PartTypeEdge
			}
			return PartTypeDocument
		case method == "GET" && rest == 2:
			return PartTypeGetDocument
		case (method == "PUT" || method == "PATCH") && rest == 2:
			return PartTypeDocument
		}
	case "collection":
		switch {
		case method == "POST" && rest == 0:
			return PartTypeCollection
		case method == "GET" && rest == 1:
			return PartTypeGetCollection
		}
	}
	return PartTypeOther
}
