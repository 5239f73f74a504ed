package main

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/arangodb-drivers/client"
	"github.com/dan-strohschein/arangodb-drivers/testutil"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldErr, oldColors := stdout, stderr, colorsEnabled
	stdout, stderr, colorsEnabled = &buf, &buf, false
	t.Cleanup(func() {
		stdout, stderr, colorsEnabled = oldOut, oldErr, oldColors
	})
	return &buf
}

func TestReadBatchFile(t *testing.T) {
	in := strings.NewReader(`
# users
{"id": "a", "method": "post", "path": "/_api/document/users", "body": {"name": "x"}}

{"path": "/_api/version"}
`)
	lines, err := readBatchFile(in)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "a", lines[0].ID)
	assert.Equal(t, "POST", lines[0].Method)
	assert.Equal(t, []byte(`{"name": "x"}`), lines[0].body())

	assert.Equal(t, "GET", lines[1].Method)
	assert.Nil(t, lines[1].body())
}

func TestReadBatchFileErrors(t *testing.T) {
	tests := map[string]string{
		"empty":         "\n# nothing\n",
		"bad json":      "{not json}\n",
		"relative path": `{"path": "_api/version"}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := readBatchFile(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestCaptureLinesAndProcess(t *testing.T) {
	srv := testutil.NewServer()
	srv.Expect("POST", "/_api/document/users").WillReturn(http.StatusAccepted, map[string]interface{}{
		"_id": "users/1", "_rev": "r1",
	})
	srv.Expect("GET", "/_api/version").WillReturn(http.StatusOK, map[string]interface{}{
		"server": "arango", "version": "3.11.0",
	})

	conn, err := client.NewConnection(&client.ConnectionOptions{
		Database:  "shop",
		Transport: srv.Transport(),
		Logger:    client.NewNoopLogger(),
	})
	require.NoError(t, err)

	lines := []batchLine{
		{ID: "save", Method: "POST", Path: "/_api/document/users", Body: []byte(`{"name":"x"}`)},
		{Method: "GET", Path: "/_api/version"},
	}
	ctx := context.Background()
	batch, err := captureLines(ctx, conn, lines)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Count())
	assert.Empty(t, srv.GetCalls(), "capturing must not send anything")

	_, err = batch.Process(ctx)
	require.NoError(t, err)

	code, err := batch.Parts()[0].HTTPCode()
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "save", batch.Parts()[0].ID())
	assert.Equal(t, client.ModeNormal, conn.Mode())
	srv.VerifyExpectations(t)
}

func TestSummarize(t *testing.T) {
	timings := []time.Duration{
		1 * time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond,
		4 * time.Millisecond, 100 * time.Millisecond,
	}
	s, err := summarize(timings)
	require.NoError(t, err)

	assert.Equal(t, 5, s.Runs)
	assert.InDelta(t, 22.0, s.Mean, 0.001)
	assert.InDelta(t, 3.0, s.Median, 0.001)
	assert.InDelta(t, 1.0, s.Min, 0.001)
	assert.InDelta(t, 100.0, s.Max, 0.001)
	assert.True(t, s.P95 >= s.Median && s.P95 <= s.Max, "p95 %v out of range", s.P95)
	assert.Len(t, s.rows(), 6)

	_, err = summarize(nil)
	assert.Error(t, err)
}

func TestParseBindVars(t *testing.T) {
	vars := parseBindVars(map[string]string{
		"limit": "10",
		"name":  "alice",
		"tags":  `["a","b"]`,
	})
	assert.Equal(t, float64(10), vars["limit"])
	assert.Equal(t, "alice", vars["name"])
	assert.Equal(t, []interface{}{"a", "b"}, vars["tags"])

	assert.Nil(t, parseBindVars(nil))
}

func TestExportRestriction(t *testing.T) {
	r, err := (&ExportCommand{}).restriction()
	assert.NoError(t, err)
	assert.Nil(t, r)

	r, err = (&ExportCommand{Include: []string{"name"}}).restriction()
	require.NoError(t, err)
	assert.Equal(t, &client.Restriction{Type: "include", Fields: []string{"name"}}, r)

	_, err = (&ExportCommand{Include: []string{"a"}, Exclude: []string{"b"}}).restriction()
	assert.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	buf := captureOutput(t)

	require.NoError(t, writeJSON(stdout, map[string]interface{}{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	buf.Reset()
	require.NoError(t, writeJSONLine(stdout, map[string]interface{}{"a": []int{1, 2}}))
	assert.Equal(t, "{\"a\":[1,2]}\n", buf.String())
}

func TestPrintTable(t *testing.T) {
	buf := captureOutput(t)

	printTable([]string{"ID", "STATUS"}, [][]string{{"save-0", "202"}, {"0", "200"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID      STATUS"), "header %q", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "save-0  202"), "row %q", lines[2])
}
