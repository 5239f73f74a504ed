package client

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
)

// BatchOptions configures a Batch.
type BatchOptions struct {
	// Size fixes the number of parts the batch accepts. Zero means no limit.
	Size int

	// StartCapture puts the connection into capture mode on creation.
	// Default: true
	StartCapture *bool

	// CursorOptions decode cursor parts that were captured without staged
	// or request-specific options.
	CursorOptions CursorOptions
}

// Batch records requests issued on a connection while capturing and sends
// them to the server as one multipart request.
//
//	b, _ := client.NewBatch(conn, nil)
//	_, err := docs.Save(ctx, "users", doc)   // err is the captured *BatchPart
//	b.Process(ctx)
//	id, err := b.ProcessedPartResponse("0")
//
// While a batch captures, every request on its connection is recorded,
// including cursor page fetches and calls made from other goroutines.
// Process sends parts again every time it is called, so non-idempotent
// operations take effect on the server once per call.
type Batch struct {
	conn          *Connection
	id            string
	size          int
	cursorOptions CursorOptions
	state         *BatchStateManager
	logger        Logger

	mu    sync.Mutex
	parts []*BatchPart
	byID  map[string]*BatchPart
	seq   int

	nextPartID            string
	nextPartCursorOptions *CursorOptions
}

// NewBatch creates a batch bound to conn and, unless disabled by
// opts.StartCapture, starts capturing.
func NewBatch(conn *Connection, opts *BatchOptions) (*Batch, error) {
	if opts == nil {
		opts = &BatchOptions{}
	}
	if opts.Size < 0 {
		return nil, ErrInvalidOption("size", opts.Size, "must not be negative")
	}

	id := uuid.New().String()
	b := &Batch{
		conn:          conn,
		id:            id,
		size:          opts.Size,
		cursorOptions: opts.CursorOptions,
		state:         NewBatchStateManager(),
		logger:        conn.logger.WithFields(String("batch", id)),
		byID:          make(map[string]*BatchPart),
	}
	if opts.Size > 0 {
		b.parts = make([]*BatchPart, 0, opts.Size)
	}

	if opts.StartCapture == nil || *opts.StartCapture {
		if err := b.StartCapture(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// ID returns the batch identifier used in logs and hook metadata.
func (b *Batch) ID() string { return b.id }

// State returns the lifecycle state.
func (b *Batch) State() BatchState { return b.state.GetState() }

// Size returns the fixed capacity, or 0 for a growable batch.
func (b *Batch) Size() int { return b.size }

// Count returns the number of captured parts.
func (b *Batch) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.parts)
}

// Connection returns the bound connection.
func (b *Batch) Connection() *Connection { return b.conn }

// OnStateChange registers a handler for state transitions.
func (b *Batch) OnStateChange(handler BatchStateHandler) {
	b.state.OnStateChange(handler)
}

func (b *Batch) metadata() map[string]interface{} {
	return map[string]interface{}{
		"batch": b.id,
		"parts": b.Count(),
	}
}

// StartCapture puts the connection into capture mode for this batch. It
// fails when another batch captures on the same connection.
func (b *Batch) StartCapture() error {
	if b.State() == BatchCapturing {
		return nil
	}
	if err := b.conn.enterCapture(b); err != nil {
		return err
	}
	if err := b.state.TransitionTo("start capture", BatchCapturing, b.metadata()); err != nil {
		b.conn.exitCapture(b)
		return err
	}
	b.logger.Debug("batch capture started")
	return nil
}

// StopCapture returns the connection to normal mode. Captured parts stay
// queued.
func (b *Batch) StopCapture() error {
	if err := b.state.TransitionTo("stop capture", BatchCaptured, b.metadata()); err != nil {
		return err
	}
	b.conn.exitCapture(b)
	b.logger.Debug("batch capture stopped", Int("parts", b.Count()))
	return nil
}

// IsCapturing reports whether the batch is recording requests.
func (b *Batch) IsCapturing() bool {
	return b.State() == BatchCapturing
}

// SetNextPartID stages the id of the next captured part.
func (b *Batch) SetNextPartID(id string) error {
	if id == "" {
		return ErrInvalidOption("part id", id, "must not be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.byID[id]; exists {
		return ErrDuplicatePart(id)
	}
	b.nextPartID = id
	return nil
}

// SetNextPartCursorOptions stages the cursor options of the next captured
// part.
func (b *Batch) SetNextPartCursorOptions(opts CursorOptions) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextPartCursorOptions = &opts
}

// clearStaging drops the staged id and cursor options without capturing.
func (b *Batch) clearStaging() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextPartID = ""
	b.nextPartCursorOptions = nil
}

// append records req as a new part. Staged id and cursor options apply to
// this part only and are cleared even when the capture fails.
func (b *Batch) append(req *request) (*BatchPart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextPartID
	cursorOpts := b.nextPartCursorOptions
	b.nextPartID = ""
	b.nextPartCursorOptions = nil

	if b.size > 0 && len(b.parts) >= b.size {
		return nil, ErrBatchOverflow(b.size)
	}

	if id == "" {
		for {
			id = strconv.Itoa(b.seq)
			b.seq++
			if _, taken := b.byID[id]; !taken {
				break
			}
		}
	} else if _, taken := b.byID[id]; taken {
		return nil, ErrDuplicatePart(id)
	}

	opts := b.cursorOptions
	switch {
	case cursorOpts != nil:
		opts = *cursorOpts
	case req.cursorOptions != nil:
		opts = *req.cursorOptions
	}

	part := &BatchPart{
		batch:         b,
		id:            id,
		index:         len(b.parts),
		typ:           classifyRequest(req.method, req.path, req.body),
		req:           req,
		cursorOptions: opts,
	}
	b.parts = append(b.parts, part)
	b.byID[id] = part

	b.logger.Debug("request captured",
		String("part", id),
		Int("index", part.index),
		String("type", string(part.typ)),
		String("method", req.method),
		String("path", req.path))
	return part, nil
}

// Process sends every captured part as one multipart request and stores
// each sub-response on its part. Capture is stopped first if active.
//
// Parts are encoded in capture order and the response parts are matched
// to them by position. Calling Process again sends all parts again.
func (b *Batch) Process(ctx context.Context) (*transport.Response, error) {
	if b.State() == BatchCapturing {
		if err := b.StopCapture(); err != nil {
			return nil, err
		}
	}

	b.mu.Lock()
	parts := make([]*BatchPart, len(b.parts))
	copy(parts, b.parts)
	b.mu.Unlock()

	if len(parts) == 0 {
		return nil, ErrEmptyBatch()
	}
	if state := b.State(); state != BatchCaptured && state != BatchProcessed {
		return nil, ErrInvalidState("process", state, BatchProcessed)
	}

	requests := make([]protocol.BatchRequest, len(parts))
	for i, p := range parts {
		requests[i] = protocol.BatchRequest{
			ContentID: p.id,
			Method:    p.req.method,
			Path:      b.conn.dbPath(p.req.path),
			Headers:   p.req.headers,
			Body:      p.req.body,
		}
	}
	body, err := protocol.EncodeBatch(requests, protocol.BatchBoundary)
	if err != nil {
		encodeErr := newClientError(CodeInvalidOption, "cannot encode batch", map[string]interface{}{
			"batch": b.id,
		})
		encodeErr.Cause = err
		return nil, encodeErr
	}

	b.logger.Info("processing batch", Int("parts", len(parts)), Int("bytes", len(body)))

	resp, err := b.conn.send(ctx, &request{
		method: "POST",
		path:   b.conn.opts.BatchPath,
		body:   body,
		headers: map[string]string{
			"Content-Type": protocol.BatchContentType(protocol.BatchBoundary),
		},
	})
	if err != nil {
		return resp, err
	}

	boundary := protocol.BoundaryFromContentType(resp.Header("Content-Type"))
	if boundary == "" {
		boundary = protocol.BatchBoundary
	}
	responses, err := protocol.DecodeBatch(resp.Body, boundary)
	if err != nil {
		return resp, ErrMalformedResponse("cannot decode batch response", err)
	}
	if len(responses) != len(parts) {
		return resp, ErrMalformedResponse(
			fmt.Sprintf("batch response has %d parts, %d were sent", len(responses), len(parts)), nil)
	}
	for i, r := range responses {
		if r.ContentID != "" && r.ContentID != parts[i].id {
			return resp, ErrMalformedResponse(
				fmt.Sprintf("batch response part %d is %q, expected %q", i, r.ContentID, parts[i].id), nil)
		}
	}

	for i, r := range responses {
		parts[i].setResponse(&transport.Response{
			StatusCode: r.StatusCode,
			Headers:    r.Headers,
			Body:       r.Body,
		})
	}

	if err := b.state.TransitionTo("process", BatchProcessed, b.metadata()); err != nil {
		return resp, err
	}

	fields := []Field{Int("parts", len(parts))}
	if failed := resp.Header("X-Arango-Errors"); failed != "" {
		fields = append(fields, String("failed_parts", failed))
	}
	b.logger.Info("batch processed", fields...)
	return resp, nil
}

// Parts returns all parts in capture order.
func (b *Batch) Parts() []*BatchPart {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*BatchPart, len(b.parts))
	copy(out, b.parts)
	return out
}

// Part returns the part with the given id.
func (b *Batch) Part(id string) (*BatchPart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	part, ok := b.byID[id]
	if !ok {
		return nil, ErrUnknownPart(id)
	}
	return part, nil
}

// PartAt returns the part at position i.
func (b *Batch) PartAt(i int) (*BatchPart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.parts) {
		return nil, ErrUnknownPart(strconv.Itoa(i))
	}
	return b.parts[i], nil
}

// PartResponse returns the raw sub-response of a part.
func (b *Batch) PartResponse(id string) (*transport.Response, error) {
	part, err := b.Part(id)
	if err != nil {
		return nil, err
	}
	return part.Response()
}

// ProcessedPartResponse returns the decoded sub-response of a part.
func (b *Batch) ProcessedPartResponse(id string) (interface{}, error) {
	part, err := b.Part(id)
	if err != nil {
		return nil, err
	}
	return part.ProcessedResponse()
}
