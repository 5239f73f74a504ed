package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dan-strohschein/arangodb-drivers/mapper"
	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
)

// PartType tells how the response of a request is decoded.
type PartType string

const (
	PartTypeDocument      PartType = "document"
	PartTypeEdge          PartType = "edge"
	PartTypeGetDocument   PartType = "getdocument"
	PartTypeCollection    PartType = "collection"
	PartTypeGetCollection PartType = "getcollection"
	PartTypeCursor        PartType = "cursor"
	PartTypeOther         PartType = "other"
)

// BatchPart is one captured request of a Batch. During capture it stands in
// for the result of the call that produced it; after Process it holds the
// sub-response and decodes it on demand.
//
// BatchPart implements error so a captured call can hand it back in place of
// its result. Use AsBatchPart to recover it.
type BatchPart struct {
	batch         *Batch
	id            string
	index         int
	typ           PartType
	req           *request
	cursorOptions CursorOptions

	mu        sync.Mutex
	response  *transport.Response
	processed interface{}
	decoded   bool
}

// Error implements error.
func (p *BatchPart) Error() string {
	return fmt.Sprintf("request %s %s captured as part %q of batch %s", p.req.method, p.req.path, p.id, p.batch.ID())
}

// ID returns the part identifier.
func (p *BatchPart) ID() string { return p.id }

// Index returns the position of the part in its batch.
func (p *BatchPart) Index() int { return p.index }

// Type returns how the part response is decoded.
func (p *BatchPart) Type() PartType { return p.typ }

// Method returns the captured request method.
func (p *BatchPart) Method() string { return p.req.method }

// Path returns the captured database-relative request path.
func (p *BatchPart) Path() string { return p.req.path }

// Body returns the captured request body.
func (p *BatchPart) Body() []byte { return p.req.body }

// CursorOptions returns the options used when the part decodes to a cursor.
func (p *BatchPart) CursorOptions() CursorOptions { return p.cursorOptions }

// Batch returns the batch the part belongs to.
func (p *BatchPart) Batch() *Batch { return p.batch }

// Processed reports whether the part holds a response.
func (p *BatchPart) Processed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.response != nil
}

// Response returns the raw sub-response.
func (p *BatchPart) Response() (*transport.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.response == nil {
		return nil, ErrNotProcessed(p.id)
	}
	return p.response, nil
}

// HTTPCode returns the status of the sub-response.
func (p *BatchPart) HTTPCode() (int, error) {
	resp, err := p.Response()
	if err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// setResponse stores a sub-response and drops any cached decode.
func (p *BatchPart) setResponse(resp *transport.Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = resp
	p.processed = nil
	p.decoded = false
}

// ProcessedResponse decodes the sub-response into a value matching the part
// type. The value is computed on first call and cached until the batch is
// processed again:
//
//	document, edge  -> string (_id of the written document)
//	getdocument     -> *Document or *Edge
//	collection      -> string (collection id)
//	getcollection   -> *Collection
//	cursor          -> *Cursor
//	other           -> map[string]interface{}
//
// A sub-status outside 200..399 or an error envelope yields a *ServerError.
func (p *BatchPart) ProcessedResponse() (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.response == nil {
		return nil, ErrNotProcessed(p.id)
	}
	if p.decoded {
		return p.processed, nil
	}

	if failure := protocol.ExtractServerError(p.response.StatusCode, p.response.Body); failure != nil {
		return nil, newServerError(p.req.method, p.req.path, failure)
	}

	value, err := p.decode()
	if err != nil {
		return nil, err
	}
	p.processed = value
	p.decoded = true
	return value, nil
}

func (p *BatchPart) decode() (interface{}, error) {
	m := mapper.NewResponseMapper()

	switch p.typ {
	case PartTypeCursor:
		env, err := decodeEnvelope(p.response)
		if err != nil {
			return nil, err
		}
		return newCursor(p.batch.conn, env, p.cursorOptions)
	}

	obj, err := decodeObject(p.response)
	if err != nil {
		return nil, err
	}

	switch p.typ {
	case PartTypeDocument, PartTypeEdge:
		id := m.ToString(obj[mapper.AttrID])
		if id == "" {
			return nil, ErrMalformedResponse(fmt.Sprintf("part %q: response carries no _id", p.id), nil)
		}
		return id, nil
	case PartTypeGetDocument:
		if m.Shape(obj) == mapper.ShapeEdge {
			return NewEdgeFromMap(obj)
		}
		return NewDocumentFromMap(obj)
	case PartTypeCollection:
		id := m.ToString(obj["id"])
		if id == "" {
			return nil, ErrMalformedResponse(fmt.Sprintf("part %q: response carries no collection id", p.id), nil)
		}
		return id, nil
	case PartTypeGetCollection:
		return collectionFromMap(obj), nil
	default:
		return obj, nil
	}
}

// AsBatchPart returns the part carried by err when err reports a captured
// request.
func AsBatchPart(err error) (*BatchPart, bool) {
	var part *BatchPart
	if errors.As(err, &part) {
		return part, true
	}
	return nil, false
}

// IsCaptured reports whether err stands for a request captured into a batch
// rather than a failure.
func IsCaptured(err error) bool {
	_, ok := AsBatchPart(err)
	return ok
}
