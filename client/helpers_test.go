package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
	"github.com/dan-strohschein/arangodb-drivers/transport"
)

func newTestConnection(t testing.TB, tr transport.Transport) *Connection {
	t.Helper()
	conn, err := NewConnection(&ConnectionOptions{
		Endpoint:  "http://localhost:8529",
		Database:  "_system",
		Transport: tr,
		Logger:    NewNoopLogger(),
	})
	require.NoError(t, err)
	return conn
}

func mustEnvelope(t testing.TB, body string) *protocol.Envelope {
	t.Helper()
	env, err := protocol.DecodeEnvelope([]byte(body))
	require.NoError(t, err)
	return env
}
