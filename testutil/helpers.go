package testutil

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/dan-strohschein/arangodb-drivers/transport"
)

// EndpointEnv names the variable holding a live server endpoint for
// integration tests.
const EndpointEnv = "ARANGO_TEST_ENDPOINT"

// LiveEndpoint returns the live server endpoint or skips the test.
//
//	export ARANGO_TEST_ENDPOINT="http://localhost:8529"
func LiveEndpoint(t testing.TB) string {
	t.Helper()
	endpoint := os.Getenv(EndpointEnv)
	if endpoint == "" {
		t.Skip(EndpointEnv + " not set, skipping live server test")
	}
	return endpoint
}

// WithTimeout returns a context cancelled after timeout (10s by default) or
// when the test ends.
func WithTimeout(t *testing.T, timeout ...time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	d := 10 * time.Second
	if len(timeout) > 0 {
		d = timeout[0]
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx, cancel
}

// RequireNoError stops the test when err is set.
func RequireNoError(t testing.TB, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err == nil {
		return
	}
	if len(msgAndArgs) > 0 {
		t.Fatalf("unexpected error: %v (%v)", err, msgAndArgs)
	}
	t.Fatalf("unexpected error: %v", err)
}

// RequireError stops the test when err is nil.
func RequireError(t testing.TB, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		return
	}
	if len(msgAndArgs) > 0 {
		t.Fatalf("expected an error, got nil (%v)", msgAndArgs)
	}
	t.Fatal("expected an error, got nil")
}

// AssertEqual reports a failure when two comparable values differ.
func AssertEqual(t testing.TB, expected, actual interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if expected == actual {
		return
	}
	if len(msgAndArgs) > 0 {
		t.Errorf("expected %v, got %v (%v)", expected, actual, msgAndArgs)
		return
	}
	t.Errorf("expected %v, got %v", expected, actual)
}

// AssertRequest reports a failure unless req has the given method and full
// path, database prefix included.
func AssertRequest(t testing.TB, req *transport.Request, method, path string) {
	t.Helper()
	if req == nil {
		t.Errorf("expected %s %s, got no request", method, path)
		return
	}
	if req.Method != method || req.Path != path {
		t.Errorf("expected %s %s, got %s %s", method, path, req.Method, req.Path)
	}
}

// RequestJSON decodes the JSON object body of req.
func RequestJSON(t testing.TB, req *transport.Request) map[string]interface{} {
	t.Helper()
	if req == nil {
		t.Fatal("expected a request, got nil")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(req.Body, &m); err != nil {
		t.Fatalf("request body %q is not a JSON object: %v", req.Body, err)
	}
	return m
}
