package client

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
	"github.com/dan-strohschein/arangodb-drivers/transport/rest"
)

// Connection is a handle on one database of one server. Every handler call
// goes through Do, which either sends the request or, while a Batch is
// capturing, records it as a batch part.
//
// Capture mode is connection-wide: while a batch captures, every request
// issued on this connection becomes part of that batch, including cursor
// page fetches. Do not share a capturing connection between goroutines or
// logical tasks.
type Connection struct {
	opts      ConnectionOptions
	transport transport.Transport
	codec     protocol.Codec
	logger    Logger
	debugMode atomic.Bool

	modeMu sync.Mutex
	mode   CaptureMode
	batch  *Batch

	hooks   []Hook
	hooksMu sync.RWMutex

	parseCache *ParseCache
}

// request is a fully built request, ready to be sent or captured.
type request struct {
	method  string
	path    string
	body    []byte
	headers map[string]string

	// cursorOptions decode a captured cursor part when no options were staged
	cursorOptions *CursorOptions

	// metadata is copied into the hook context
	metadata map[string]interface{}
}

// NewConnection creates a connection. If opts is nil, default options are
// used. No request is made; use ServerVersion to check connectivity.
func NewConnection(opts *ConnectionOptions) (*Connection, error) {
	if opts == nil {
		defaultOpts := DefaultOptions()
		opts = &defaultOpts
	}
	o := opts.withDefaults()
	if err := o.Validate(); err != nil {
		return nil, err
	}

	logger := o.Logger
	if logger == nil {
		logger = NewLogger(o.LogLevel, nil)
	}

	tr := o.Transport
	if tr == nil {
		restTransport, err := rest.NewTransport(rest.Options{
			Endpoint: o.Endpoint,
			Timeout:  o.Timeout(),
			Headers:  o.Headers,
		})
		if err != nil {
			return nil, newConnectionError("INIT", o.Endpoint, err)
		}
		tr = restTransport
	}

	c := &Connection{
		opts:      o,
		transport: tr,
		codec:     protocol.NewCodec(),
		logger:    logger.WithFields(String("database", o.Database)),
	}
	if o.ParseCacheSize > 0 {
		c.parseCache = NewParseCache(o.ParseCacheSize)
	}
	c.debugMode.Store(o.DebugMode)
	return c, nil
}

// ParseCache returns the query parse cache, or nil when it is disabled.
func (c *Connection) ParseCache() *ParseCache {
	return c.parseCache
}

// Options returns a copy of the effective options.
func (c *Connection) Options() ConnectionOptions {
	return c.opts
}

// Database returns the database name requests are scoped to.
func (c *Connection) Database() string {
	return c.opts.Database
}

// Logger returns the connection logger.
func (c *Connection) Logger() Logger {
	return c.logger
}

// Transport returns the underlying transport.
func (c *Connection) Transport() transport.Transport {
	return c.transport
}

// Close releases the transport.
func (c *Connection) Close() error {
	return c.transport.Close()
}

// Mode returns the current capture mode.
func (c *Connection) Mode() CaptureMode {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	return c.mode
}

// ActiveBatch returns the batch that is capturing, or nil.
func (c *Connection) ActiveBatch() *Batch {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()
	return c.batch
}

// enterCapture switches the connection into capture mode for b. Only one
// batch may capture at a time.
func (c *Connection) enterCapture(b *Batch) error {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	if c.mode == ModeCapture && c.batch != b {
		return ErrCaptureActive(c.batch.ID())
	}
	c.mode = ModeCapture
	c.batch = b
	return nil
}

// exitCapture returns the connection to normal mode if b is the capturing batch.
func (c *Connection) exitCapture(b *Batch) {
	c.modeMu.Lock()
	defer c.modeMu.Unlock()

	if c.batch == b {
		c.mode = ModeNormal
		c.batch = nil
	}
}

// Do issues a request. body is JSON-encoded unless it is nil or []byte.
//
// While a batch captures, the request is recorded instead of sent: the
// returned response is nil and the error is the *BatchPart standing in for
// the result. Use AsBatchPart or IsCaptured to tell it from a failure.
//
// A server failure is returned as *ServerError together with the response.
func (c *Connection) Do(ctx context.Context, method, path string, body interface{}) (*transport.Response, error) {
	req, err := c.newRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, req)
}

// Get issues a GET request.
func (c *Connection) Get(ctx context.Context, path string) (*transport.Response, error) {
	return c.Do(ctx, "GET", path, nil)
}

// Post issues a POST request.
func (c *Connection) Post(ctx context.Context, path string, body interface{}) (*transport.Response, error) {
	return c.Do(ctx, "POST", path, body)
}

// Put issues a PUT request.
func (c *Connection) Put(ctx context.Context, path string, body interface{}) (*transport.Response, error) {
	return c.Do(ctx, "PUT", path, body)
}

// Patch issues a PATCH request.
func (c *Connection) Patch(ctx context.Context, path string, body interface{}) (*transport.Response, error) {
	return c.Do(ctx, "PATCH", path, body)
}

// Delete issues a DELETE request.
func (c *Connection) Delete(ctx context.Context, path string) (*transport.Response, error) {
	return c.Do(ctx, "DELETE", path, nil)
}

func (c *Connection) newRequest(method, path string, body interface{}) (*request, error) {
	data, err := c.codec.Encode(body)
	if err != nil {
		return nil, ErrInvalidOption("body", method+" "+path, err.Error())
	}
	return &request{method: method, path: path, body: data}, nil
}

func (r *request) hookMetadata() map[string]interface{} {
	m := make(map[string]interface{}, len(r.metadata)+1)
	for k, v := range r.metadata {
		m[k] = v
	}
	return m
}

// do routes a request to the capturing batch or to the server.
func (c *Connection) do(ctx context.Context, req *request) (*transport.Response, error) {
	if trx := transactionIDFromContext(ctx); trx != "" {
		if req.headers == nil {
			req.headers = make(map[string]string, 1)
		}
		req.headers[transactionHeader] = trx
	}

	c.modeMu.Lock()
	mode, batch := c.mode, c.batch
	c.modeMu.Unlock()

	if mode == ModeCapture && batch != nil {
		return nil, c.capture(ctx, batch, req)
	}
	return c.send(ctx, req)
}

// capture records req in b and returns the new part as the error value.
func (c *Connection) capture(ctx context.Context, b *Batch, req *request) error {
	hookCtx := &HookContext{
		Method:    req.method,
		Path:      req.path,
		Body:      req.body,
		Operation: classifyRequest(req.method, req.path, req.body),
		Captured:  true,
		StartTime: time.Now(),
		Metadata:  req.hookMetadata(),
		TraceID:   b.ID(),
	}
	hookCtx.Metadata["batch"] = b.ID()
	if err := c.executeBeforeHooks(ctx, hookCtx); err != nil {
		b.clearStaging()
		return err
	}

	part, err := b.append(req)
	if part != nil {
		hookCtx.PartID = part.ID()
	}
	hookCtx.Error = err
	hookCtx.Duration = time.Since(hookCtx.StartTime)
	if hookErr := c.executeAfterHooks(ctx, hookCtx); hookErr != nil && err == nil {
		err = hookErr
	}
	if err != nil {
		return err
	}
	return part
}

// send performs the request against the server, bypassing capture.
func (c *Connection) send(ctx context.Context, req *request) (*transport.Response, error) {
	start := time.Now()
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	debugMode := c.IsDebugMode()

	hookCtx := &HookContext{
		Method:    req.method,
		Path:      req.path,
		Body:      req.body,
		Operation: classifyRequest(req.method, req.path, req.body),
		StartTime: start,
		Metadata:  req.hookMetadata(),
		TraceID:   traceID,
	}
	if err := c.executeBeforeHooks(ctx, hookCtx); err != nil {
		return nil, err
	}

	if debugMode {
		c.logger.Debug("sending raw request",
			String("method", req.method),
			String("path", req.path),
			String("body", string(req.body)),
			String("trace_id", traceID))
	}

	resp, err := c.transport.Do(ctx, &transport.Request{
		Method:  req.method,
		Path:    c.dbPath(req.path),
		Body:    req.body,
		Headers: req.headers,
	})
	duration := time.Since(start)

	if err != nil {
		err = newConnectionError(req.method, req.path, err)
	} else if failure := protocol.ExtractServerError(resp.StatusCode, resp.Body); failure != nil {
		err = newServerError(req.method, req.path, failure)
	}

	hookCtx.Response = resp
	hookCtx.Error = err
	hookCtx.Duration = duration
	if hookErr := c.executeAfterHooks(ctx, hookCtx); hookErr != nil {
		err = hookErr
	}

	if debugMode && resp != nil {
		c.logger.Debug("received raw response",
			String("trace_id", traceID),
			Int("status", resp.StatusCode),
			String("body", string(resp.Body)),
			Duration("elapsed", duration))
	}

	if err != nil {
		if IsConnectionError(err) {
			c.logger.Error("request failed",
				String("method", req.method),
				String("path", req.path),
				String("trace_id", traceID),
				Error("error", err),
				Duration("duration", duration))
		} else {
			c.logger.Debug("request returned error",
				String("method", req.method),
				String("path", req.path),
				String("trace_id", traceID),
				Error("error", err))
		}
		return resp, err
	}

	c.logger.Debug("request executed",
		String("method", req.method),
		String("path", req.path),
		String("trace_id", traceID),
		Duration("duration", duration))
	return resp, nil
}

// dbPath prefixes a database-relative path with the database segment.
func (c *Connection) dbPath(path string) string {
	return "/_db/" + url.PathEscape(c.opts.Database) + path
}

// VersionInfo is the server version report.
type VersionInfo struct {
	Server  string `json:"server"`
	Version string `json:"version"`
	License string `json:"license"`
}

// ServerVersion fetches the server version.
func (c *Connection) ServerVersion(ctx context.Context) (*VersionInfo, error) {
	resp, err := c.Get(ctx, "/_api/version")
	if err != nil {
		return nil, err
	}
	var info VersionInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return nil, ErrMalformedResponse("version response is not a JSON object", err)
	}
	return &info, nil
}

// decodeEnvelope decodes a response body into the standard envelope.
func decodeEnvelope(resp *transport.Response) (*protocol.Envelope, error) {
	env, err := protocol.DecodeEnvelope(resp.Body)
	if err != nil {
		return nil, ErrMalformedResponse("cannot decode response envelope", err)
	}
	return env, nil
}

// decodeObject decodes a response body into a generic JSON object.
func decodeObject(resp *transport.Response) (map[string]interface{}, error) {
	obj, err := protocol.DecodeJSON(resp.Body)
	if err != nil {
		return nil, ErrMalformedResponse("cannot decode response body", err)
	}
	return obj, nil
}
