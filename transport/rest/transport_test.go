package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
)

func TestNewTransport_InvalidEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"empty", ""},
		{"no scheme", "localhost:8529"},
		{"tcp scheme", "tcp://localhost:8529"},
		{"no host", "http://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTransport(Options{Endpoint: tt.endpoint})
			require.Error(t, err)
			var te *protocol.TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, protocol.ErrorCodeInvalidEndpoint, te.Code)
		})
	}
}

func TestTransport_Do(t *testing.T) {
	var gotMethod, gotPath, gotBody, gotContentType, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.RequestURI()
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Custom")

		w.Header().Set("Location", "/_db/_system/_api/collection/users")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"123"}`))
	}))
	defer server.Close()

	tr, err := NewTransport(Options{
		Endpoint: server.URL + "/",
		Headers:  map[string]string{"X-Custom": "default"},
	})
	require.NoError(t, err)

	resp, err := tr.Do(context.Background(), &transport.Request{
		Method: "POST",
		Path:   "/_db/_system/_api/collection",
		Body:   []byte(`{"name":"users"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "/_db/_system/_api/collection", gotPath)
	assert.Equal(t, `{"name":"users"}`, gotBody)
	assert.Equal(t, protocol.ContentTypeJSON, gotContentType)
	assert.Equal(t, "default", gotCustom)

	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, `{"id":"123"}`, string(resp.Body))
	assert.Equal(t, "/_db/_system/_api/collection/users", resp.Location())

	metrics := tr.GetMetrics()
	assert.Equal(t, int64(1), metrics.TotalRequests)
	assert.Equal(t, int64(0), metrics.TotalErrors)
	assert.Equal(t, int64(1), metrics.StatusCounts["2xx"])
	assert.True(t, tr.IsHealthy())
}

func TestTransport_ErrorStatusIsNotTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":true,"code":404,"errorNum":1203}`))
	}))
	defer server.Close()

	tr, err := NewTransport(Options{Endpoint: server.URL})
	require.NoError(t, err)

	resp, err := tr.Do(context.Background(), &transport.Request{Method: "GET", Path: "/_api/collection/none"})
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestTransport_ConnectFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	tr, err := NewTransport(Options{Endpoint: endpoint, Timeout: time.Second})
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), &transport.Request{Method: "GET", Path: "/_api/version"})
	require.Error(t, err)

	var te *protocol.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.IsConnectFailure())
	assert.False(t, tr.IsHealthy())
	assert.Equal(t, int64(1), tr.GetMetrics().TotalErrors)
}

func TestTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	tr, err := NewTransport(Options{Endpoint: server.URL, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = tr.Do(context.Background(), &transport.Request{Method: "GET", Path: "/"})
	require.Error(t, err)

	var te *protocol.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, protocol.ErrorCodeTimeout, te.Code)
}

func TestTransport_Closed(t *testing.T) {
	tr, err := NewTransport(Options{Endpoint: "http://localhost:8529"})
	require.NoError(t, err)
	require.NoError(t, tr.Close())

	_, err = tr.Do(context.Background(), &transport.Request{Method: "GET", Path: "/"})
	require.Error(t, err)
	assert.False(t, tr.IsHealthy())
}
