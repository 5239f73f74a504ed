package client

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-strohschein/arangodb-drivers/testutil"
	"github.com/dan-strohschein/arangodb-drivers/transport/mock"
)

func executeQuery(t *testing.T, conn *Connection, opts StatementOptions) *Cursor {
	t.Helper()
	stmt, err := conn.NewStatement(opts)
	require.NoError(t, err)
	cur, err := stmt.Execute(context.Background())
	require.NoError(t, err)
	return cur
}

func TestCursor_PagesThroughResult(t *testing.T) {
	tests := []struct {
		total           int
		batchSize       int
		expectedFetches int
	}{
		{total: 0, batchSize: 10, expectedFetches: 0},
		{total: 5, batchSize: 10, expectedFetches: 0},
		{total: 10, batchSize: 10, expectedFetches: 0},
		{total: 11, batchSize: 10, expectedFetches: 1},
		{total: 25, batchSize: 7, expectedFetches: 3},
		{total: 10000, batchSize: 1000, expectedFetches: 9},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_rows_by_%d", tt.total, tt.batchSize), func(t *testing.T) {
			srv := testutil.NewServer()
			pc := &testutil.PagedCursor{ID: "c1", Rows: testutil.NumberRows(0, tt.total), BatchSize: tt.batchSize}
			pc.Install(srv, "/_api/cursor")
			conn := newTestConnection(t, srv.Transport())

			cur := executeQuery(t, conn, StatementOptions{Query: "FOR i IN 1..@n RETURN i", BatchSize: tt.batchSize})

			seen := 0
			ctx := context.Background()
			for cur.Rewind(); cur.Valid(ctx); cur.Next() {
				if cur.Current() != float64(seen) {
					t.Fatalf("expected row %d, got %v", seen, cur.Current())
				}
				if cur.Key() != seen {
					t.Fatalf("expected key %d, got %d", seen, cur.Key())
				}
				seen++
			}
			require.NoError(t, cur.Err())

			if seen != tt.total {
				t.Errorf("expected %d rows, got %d", tt.total, seen)
			}
			if pc.Fetches() != tt.expectedFetches {
				t.Errorf("expected %d page fetches, got %d", tt.expectedFetches, pc.Fetches())
			}
			if cur.Fetches() != tt.expectedFetches+1 {
				t.Errorf("expected %d round-trips, got %d", tt.expectedFetches+1, cur.Fetches())
			}
			if cur.HasMore() {
				t.Error("expected hasMore=false after full iteration")
			}
		})
	}
}

func TestCursor_RewindDoesNotRefetch(t *testing.T) {
	srv := testutil.NewServer()
	pc := &testutil.PagedCursor{ID: "c1", Rows: testutil.NumberRows(0, 6), BatchSize: 2}
	pc.Install(srv, "/_api/cursor")
	conn := newTestConnection(t, srv.Transport())
	cur := executeQuery(t, conn, StatementOptions{Query: "q", BatchSize: 2})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		n := 0
		for cur.Rewind(); cur.Valid(ctx); cur.Next() {
			n++
		}
		assert.Equal(t, 6, n)
	}
	assert.Equal(t, 2, pc.Fetches())
}

func TestCursor_SanitizeAppliesToEveryPage(t *testing.T) {
	docs := testutil.BuildDocuments(9, testutil.WithInternalAttributes("users"))
	for _, flat := range []bool{true, false} {
		t.Run(fmt.Sprintf("flat=%v", flat), func(t *testing.T) {
			srv := testutil.NewServer()
			pc := &testutil.PagedCursor{ID: "s1", Rows: testutil.Rows(docs), BatchSize: 4}
			pc.Install(srv, "/_api/cursor")
			conn := newTestConnection(t, srv.Transport())

			cur := executeQuery(t, conn, StatementOptions{Query: "q", BatchSize: 4, Sanitize: true, Flat: flat})
			rows, err := cur.All(context.Background())
			require.NoError(t, err)
			require.Len(t, rows, 9)
			assert.Equal(t, 2, pc.Fetches())

			for i, row := range rows {
				switch r := row.(type) {
				case map[string]interface{}:
					assert.NotContains(t, r, "_id", "row %d", i)
					assert.NotContains(t, r, "_rev", "row %d", i)
					assert.Contains(t, r, "_key", "row %d", i)
				case *Document:
					assert.False(t, r.Has("_id"), "row %d", i)
					assert.False(t, r.Has("_rev"), "row %d", i)
					assert.Equal(t, docs[i]["_key"], r.Key())
				default:
					t.Fatalf("unexpected row type %T", row)
				}
			}
		})
	}
}

func TestCursor_AllWithoutMoreMakesNoCalls(t *testing.T) {
	tr := mock.NewMockTransport()
	conn := newTestConnection(t, tr)

	env := mustEnvelope(t, `{"result":[1,2,3],"hasMore":false,"error":false,"code":201}`)
	cur, err := newCursor(conn, env, CursorOptions{Flat: true})
	require.NoError(t, err)

	rows, err := cur.All(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff([]interface{}{float64(1), float64(2), float64(3)}, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, tr.GetCallCount())

	require.NoError(t, cur.FetchOutstanding(context.Background()))
	assert.Equal(t, 0, tr.GetCallCount())
}

func TestCursor_FetchFailureStopsIteration(t *testing.T) {
	srv := testutil.NewServer()
	srv.Expect("POST", "/_api/cursor").WillReturn(http.StatusCreated, testutil.CursorBody(testutil.NumberRows(0, 2), true, "gone", nil))
	srv.Expect("PUT", "/_api/cursor/gone").WillReturnError(http.StatusNotFound, 1600, "cursor not found")
	conn := newTestConnection(t, srv.Transport())

	cur := executeQuery(t, conn, StatementOptions{Query: "q"})
	ctx := context.Background()
	n := 0
	for cur.Rewind(); cur.Valid(ctx); cur.Next() {
		n++
	}
	assert.Equal(t, 2, n)
	require.Error(t, cur.Err())
	assert.True(t, IsNotFound(cur.Err()))

	var se *ServerError
	require.ErrorAs(t, cur.Err(), &se)
	assert.Equal(t, 1600, se.ErrorNum)
	assert.Equal(t, "cursor not found", se.Message)

	// no retry
	assert.False(t, cur.Valid(ctx))
	assert.Equal(t, 1, srv.GetCallCount("PUT", "/_api/cursor/gone"))
}

func TestCursor_Delete(t *testing.T) {
	t.Run("no server cursor", func(t *testing.T) {
		tr := mock.NewMockTransport()
		conn := newTestConnection(t, tr)
		cur, err := newCursor(conn, mustEnvelope(t, `{"result":[],"hasMore":false}`), CursorOptions{})
		require.NoError(t, err)
		assert.False(t, cur.Delete(context.Background()))
		assert.Equal(t, 0, tr.GetCallCount())
	})

	t.Run("released", func(t *testing.T) {
		tr := mock.NewMockTransport().WithJSON(http.StatusAccepted, `{"id":"7","error":false,"code":202}`)
		conn := newTestConnection(t, tr)
		cur, err := newCursor(conn, mustEnvelope(t, `{"result":[1],"hasMore":true,"id":"7"}`), CursorOptions{})
		require.NoError(t, err)
		assert.True(t, cur.Delete(context.Background()))
		assert.False(t, cur.HasMore())
		req := tr.LastRequest()
		testutil.AssertRequest(t, req, "DELETE", "/_db/_system/_api/cursor/7")
	})

	t.Run("failure is swallowed", func(t *testing.T) {
		tr := mock.NewMockTransport().WithJSON(http.StatusNotFound, testutil.ErrorBody(404, 1600, "cursor not found"))
		conn := newTestConnection(t, tr)
		cur, err := newCursor(conn, mustEnvelope(t, `{"result":[1],"hasMore":true,"id":"7"}`), CursorOptions{})
		require.NoError(t, err)
		assert.False(t, cur.Delete(context.Background()))
	})
}

func TestCursor_RowShapes(t *testing.T) {
	body := `{"result":[
		{"_key":"a","_id":"users/a","name":"Ann"},
		{"_key":"e","_id":"knows/e","_from":"users/a","_to":"users/b"},
		{"name":"no key"},
		42,
		"text"
	],"hasMore":false}`
	conn := newTestConnection(t, mock.NewMockTransport())

	cur, err := newCursor(conn, mustEnvelope(t, body), CursorOptions{})
	require.NoError(t, err)
	rows, err := cur.All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 5)

	doc, ok := rows[0].(*Document)
	require.True(t, ok, "expected *Document, got %T", rows[0])
	assert.Equal(t, "users/a", doc.ID())
	assert.Equal(t, "Ann", doc.Get("name"))

	edge, ok := rows[1].(*Edge)
	require.True(t, ok, "expected *Edge, got %T", rows[1])
	assert.Equal(t, "users/a", edge.From())
	assert.Equal(t, "users/b", edge.To())

	assert.IsType(t, map[string]interface{}{}, rows[2])
	assert.Equal(t, float64(42), rows[3])
	assert.Equal(t, "text", rows[4])
}

func TestCursor_ComputedRowsWithInternalNames(t *testing.T) {
	body := `{"result":[
		{"_key":1,"v":"a"},
		{"_key":"ok","_id":"not-an-id"},
		{"_key":"e","_from":"nowhere","_to":"users/b"},
		{"_key":"b","_id":"users/b"}
	],"hasMore":false}`
	conn := newTestConnection(t, mock.NewMockTransport())

	cur, err := newCursor(conn, mustEnvelope(t, body), CursorOptions{})
	require.NoError(t, err)
	rows, err := cur.All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, map[string]interface{}{"_key": float64(1), "v": "a"}, rows[0])
	assert.Equal(t, map[string]interface{}{"_key": "ok", "_id": "not-an-id"}, rows[1])
	assert.IsType(t, map[string]interface{}{}, rows[2])

	doc, ok := rows[3].(*Document)
	require.True(t, ok, "expected *Document, got %T", rows[3])
	assert.Equal(t, "users/b", doc.ID())
}

func TestCursor_Metadata(t *testing.T) {
	body := `{"result":[{"a":1}],"hasMore":false,"count":12,"cached":true,
		"extra":{"stats":{"fullCount":120},"warnings":[{"code":1562,"message":"division by zero"}]}}`
	conn := newTestConnection(t, mock.NewMockTransport())
	cur, err := newCursor(conn, mustEnvelope(t, body), CursorOptions{Flat: true})
	require.NoError(t, err)

	count, ok := cur.Count()
	assert.True(t, ok)
	assert.Equal(t, int64(12), count)

	full, ok := cur.FullCount()
	assert.True(t, ok)
	assert.Equal(t, int64(120), full)

	assert.Len(t, cur.Warnings(), 1)
	assert.True(t, cur.IsCached())
	assert.Equal(t, 1, cur.Len())
	assert.Equal(t, "", cur.ID())

	var row struct {
		A int `json:"a"`
	}
	require.True(t, cur.Valid(context.Background()))
	require.NoError(t, cur.Decode(&row))
	assert.Equal(t, 1, row.A)
}

func TestCursor_MissingMetadata(t *testing.T) {
	conn := newTestConnection(t, mock.NewMockTransport())
	cur, err := newCursor(conn, mustEnvelope(t, `{"result":[],"hasMore":false}`), CursorOptions{})
	require.NoError(t, err)

	_, ok := cur.Count()
	assert.False(t, ok)
	_, ok = cur.FullCount()
	assert.False(t, ok)
	assert.Nil(t, cur.Warnings())
	assert.Nil(t, cur.Current())
	assert.Error(t, cur.Decode(&struct{}{}))
}

func TestCursor_RejectsEnvelopeWithoutResult(t *testing.T) {
	conn := newTestConnection(t, mock.NewMockTransport())
	_, err := newCursor(conn, mustEnvelope(t, `{"hasMore":false}`), CursorOptions{})
	assert.True(t, IsClientError(err, CodeMalformedResponse))
}
