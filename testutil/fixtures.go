package testutil

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
)

// JSONResponse builds a response with a JSON content type.
func JSONResponse(status int, body interface{}) *transport.Response {
	var data []byte
	switch b := body.(type) {
	case []byte:
		data = b
	case string:
		data = []byte(b)
	default:
		data = []byte(ToJSON(body))
	}
	return &transport.Response{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": protocol.ContentTypeJSON},
		Body:       data,
	}
}

// ErrorBody is a server error envelope.
func ErrorBody(code, errorNum int, message string) string {
	return ToJSON(map[string]interface{}{
		"error":        true,
		"code":         code,
		"errorNum":     errorNum,
		"errorMessage": message,
	})
}

// CursorBody is a cursor page envelope. An empty id is left out.
func CursorBody(rows []interface{}, hasMore bool, id string, extra map[string]interface{}) string {
	if rows == nil {
		rows = []interface{}{}
	}
	body := map[string]interface{}{
		"result":  rows,
		"hasMore": hasMore,
		"error":   false,
		"code":    http.StatusCreated,
	}
	if id != "" {
		body["id"] = id
	}
	if extra != nil {
		body["extra"] = extra
	}
	return ToJSON(body)
}

// PagedCursor serves rows in pages of batchSize: the first page on POST to
// createPath and the rest on PUT /_api/cursor/<id>. The cursor id is only
// sent when more than one page exists.
type PagedCursor struct {
	ID        string
	Rows      []interface{}
	BatchSize int
	Count     bool
	Extra     map[string]interface{}

	mu      sync.Mutex
	offset  int
	fetches int
}

// Install adds the routes of the cursor to srv.
func (p *PagedCursor) Install(srv *Server, createPath string) {
	srv.Expect("POST", createPath).WillRespond(func(req *transport.Request) *transport.Response {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.offset = 0
		return JSONResponse(http.StatusCreated, p.page(true))
	})
	srv.Expect("PUT", "/_api/cursor/"+p.ID).AnyTimes().WillRespond(func(req *transport.Request) *transport.Response {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.offset >= len(p.Rows) {
			return JSONResponse(http.StatusNotFound, ErrorBody(http.StatusNotFound, 1600, "cursor not found"))
		}
		p.fetches++
		return JSONResponse(http.StatusOK, p.page(false))
	})
}

func (p *PagedCursor) page(first bool) string {
	end := p.offset + p.BatchSize
	if end > len(p.Rows) {
		end = len(p.Rows)
	}
	rows := p.Rows[p.offset:end]
	if rows == nil {
		rows = []interface{}{}
	}
	p.offset = end
	hasMore := end < len(p.Rows)

	id := ""
	if hasMore || !first {
		id = p.ID
	}
	body := map[string]interface{}{
		"result":  rows,
		"hasMore": hasMore,
		"error":   false,
		"code":    http.StatusOK,
	}
	if id != "" {
		body["id"] = id
	}
	if first {
		if p.Count {
			body["count"] = len(p.Rows)
		}
		if p.Extra != nil {
			body["extra"] = p.Extra
		}
	}
	return ToJSON(body)
}

// Fetches returns how many follow-up pages were served.
func (p *PagedCursor) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

// JSONPart is a batch response part with a JSON body.
func JSONPart(contentID string, status int, body string) protocol.BatchResponse {
	return protocol.BatchResponse{
		ContentID:  contentID,
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": protocol.ContentTypeJSON},
		Body:       []byte(body),
	}
}

// BatchResponse encodes parts into a multipart batch response.
func BatchResponse(parts ...protocol.BatchResponse) (*transport.Response, error) {
	body, err := protocol.EncodeBatchResponses(parts, protocol.BatchBoundary)
	if err != nil {
		return nil, err
	}
	return &transport.Response{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": protocol.BatchContentType(protocol.BatchBoundary)},
		Body:       body,
	}, nil
}

// DocumentID joins a collection and key.
func DocumentID(collection, key string) string {
	return fmt.Sprintf("%s/%s", collection, key)
}

// SplitID splits a document id into collection and key.
func SplitID(id string) (string, string) {
	i := strings.IndexByte(id, '/')
	if i < 0 {
		return "", id
	}
	return id[:i], id[i+1:]
}
