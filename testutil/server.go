package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
	"github.com/dan-strohschein/arangodb-drivers/transport/mock"
)

// Server is a scripted in-memory server. It answers requests of a mock
// transport from routes set up with Expect, and serves POST /_api/batch by
// dispatching every embedded request to its own routes.
//
// Example usage:
//
//	srv := testutil.NewServer()
//	srv.Expect("POST", "/_api/collection").WillReturn(200, map[string]interface{}{"id": "1"})
//	conn := newConnection(t, srv.Transport())
//	...
//	srv.VerifyExpectations(t)
type Server struct {
	routes []*Route
	calls  []Call
	mu     sync.Mutex
}

// Route is one expected request and its response.
type Route struct {
	method      string
	path        string // database-relative, "*" suffix matches a prefix
	status      int
	headers     map[string]string
	body        []byte
	respond     func(req *transport.Request) *transport.Response
	times       int // -1 = any
	actualCalls int
}

// Call is a request received by the server.
type Call struct {
	Method string
	Path   string
	Body   []byte
}

// NewServer creates a server without routes.
func NewServer() *Server {
	return &Server{}
}

// Expect adds a route for method and a database-relative path such as
// "/_api/cursor". A trailing "*" matches any path with that prefix.
func (s *Server) Expect(method, path string) *Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Route{method: method, path: path, status: http.StatusOK, times: 1}
	s.routes = append(s.routes, r)
	return r
}

// WillReturn sets a JSON response. Strings and byte slices are sent as is.
func (r *Route) WillReturn(status int, v interface{}) *Route {
	r.status = status
	switch body := v.(type) {
	case string:
		r.body = []byte(body)
	case []byte:
		r.body = body
	default:
		r.body = []byte(ToJSON(v))
	}
	return r
}

// WillReturnError sets a server error envelope.
func (r *Route) WillReturnError(status, errorNum int, message string) *Route {
	return r.WillReturn(status, ErrorBody(status, errorNum, message))
}

// WithHeader adds a response header.
func (r *Route) WithHeader(name, value string) *Route {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[name] = value
	return r
}

// WillRespond computes the response per request.
func (r *Route) WillRespond(fn func(req *transport.Request) *transport.Response) *Route {
	r.respond = fn
	return r
}

// Times sets how often the route may match. Use -1 for any number.
func (r *Route) Times(n int) *Route {
	r.times = n
	return r
}

// Once is a shorthand for Times(1).
func (r *Route) Once() *Route { return r.Times(1) }

// Twice is a shorthand for Times(2).
func (r *Route) Twice() *Route { return r.Times(2) }

// AnyTimes lets the route match any number of times.
func (r *Route) AnyTimes() *Route { return r.Times(-1) }

func (r *Route) matches(method, path string) bool {
	if r.method != method {
		return false
	}
	if r.times >= 0 && r.actualCalls >= r.times {
		return false
	}
	if strings.HasSuffix(r.path, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(r.path, "*"))
	}
	return r.path == path
}

// Transport returns a mock transport served by this server.
func (s *Server) Transport() *mock.MockTransport {
	return mock.NewMockTransport().WithHandler(s.Handle)
}

// Handle answers one request. It satisfies mock.HandlerFunc.
func (s *Server) Handle(req *transport.Request) (*transport.Response, error) {
	path := StripDatabase(req.Path)
	route := s.match(req.Method, path, req.Body)

	if route == nil {
		if req.Method == "POST" && strings.HasPrefix(path, "/_api/batch") {
			return s.handleBatch(req)
		}
		return JSONResponse(http.StatusNotFound, ErrorBody(http.StatusNotFound, 404,
			fmt.Sprintf("unexpected request %s %s", req.Method, path))), nil
	}
	if route.respond != nil {
		return route.respond(req), nil
	}
	resp := JSONResponse(route.status, route.body)
	for k, v := range route.headers {
		resp.Headers[k] = v
	}
	return resp, nil
}

func (s *Server) match(method, path string, body []byte) *Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: method, Path: path, Body: body})
	for _, r := range s.routes {
		if r.matches(method, path) {
			r.actualCalls++
			return r
		}
	}
	return nil
}

func (s *Server) handleBatch(req *transport.Request) (*transport.Response, error) {
	boundary := protocol.BoundaryFromContentType(req.Headers["Content-Type"])
	if boundary == "" {
		boundary = protocol.BatchBoundary
	}
	inner, err := protocol.DecodeBatchRequests(req.Body, boundary)
	if err != nil {
		return JSONResponse(http.StatusBadRequest, ErrorBody(http.StatusBadRequest, 400, err.Error())), nil
	}

	parts := make([]protocol.BatchResponse, len(inner))
	failed := 0
	for i, r := range inner {
		resp, err := s.Handle(&transport.Request{Method: r.Method, Path: r.Path, Body: r.Body, Headers: r.Headers})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			failed++
		}
		parts[i] = protocol.BatchResponse{
			ContentID:  r.ContentID,
			StatusCode: resp.StatusCode,
			Headers:    resp.Headers,
			Body:       resp.Body,
		}
	}
	out, err := BatchResponse(parts...)
	if err != nil {
		return nil, err
	}
	if failed > 0 {
		out.Headers["X-Arango-Errors"] = fmt.Sprintf("%d", failed)
	}
	return out, nil
}

// VerifyExpectations fails the test for every route called fewer times
// than expected.
func (s *Server) VerifyExpectations(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.routes {
		if r.times >= 0 && r.actualCalls != r.times {
			t.Errorf("expected %s %s to be called %d times, got %d", r.method, r.path, r.times, r.actualCalls)
		}
	}
}

// GetCalls returns every request received, batch parts included.
func (s *Server) GetCalls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// GetCallCount counts received requests with the given method and path.
func (s *Server) GetCallCount(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Reset clears routes and calls.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = nil
	s.calls = nil
}

// StripDatabase removes a leading /_db/<name> segment.
func StripDatabase(path string) string {
	if !strings.HasPrefix(path, "/_db/") {
		return path
	}
	rest := path[len("/_db/"):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return "/"
}

// ToJSON marshals v, ignoring errors.
func ToJSON(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}
