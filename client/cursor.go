package client

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/dan-strohschein/arangodb-drivers/mapper"
	"github.com/dan-strohschein/arangodb-drivers/protocol"
)

const cursorPath = "/_api/cursor"

// CursorOptions control how cursor rows are decoded.
type CursorOptions struct {
	// Sanitize strips _id and _rev from every row of every page.
	Sanitize bool

	// Flat keeps rows as decoded JSON instead of *Document / *Edge values.
	Flat bool
}

// Cursor iterates the result set of one query. Pages beyond the first are
// fetched from the server when iteration reaches the end of the buffered
// rows, so
//
//	for cur.Rewind(); cur.Valid(ctx); cur.Next() {
//		row := cur.Current()
//	}
//
// visits every row of the result without further calls. Check Err after the
// loop.
//
// A Cursor is not safe for concurrent use.
type Cursor struct {
	conn   *Connection
	opts   CursorOptions
	mapper *mapper.ResponseMapper

	id       string
	hasMore  bool
	buffer   []interface{}
	position int

	count    int64
	hasCount bool
	extra    map[string]interface{}
	cached   bool

	fetches int
	err     error
}

// newCursor builds a cursor from the decoded first response.
func newCursor(conn *Connection, env *protocol.Envelope, opts CursorOptions) (*Cursor, error) {
	if !env.HasResult {
		return nil, ErrMalformedResponse("cursor response carries no result array", nil)
	}
	c := &Cursor{
		conn:     conn,
		opts:     opts,
		mapper:   mapper.NewResponseMapper(),
		id:       env.ID,
		hasMore:  env.HasMore,
		count:    env.Count,
		hasCount: env.HasCount,
		extra:    env.Extra,
		cached:   env.Cached,
		fetches:  1,
	}
	rows, err := c.convert(env.Result)
	if err != nil {
		return nil, err
	}
	c.buffer = rows
	return c, nil
}

func (c *Cursor) convert(rows []interface{}) ([]interface{}, error) {
	if c.opts.Sanitize {
		rows = c.mapper.SanitizeRows(rows)
	}
	if c.opts.Flat {
		return rows, nil
	}
	for i, row := range rows {
		v, err := rowToValue(c.mapper, row)
		if err != nil {
			return nil, err
		}
		rows[i] = v
	}
	return rows, nil
}

// Rewind moves back to the first buffered row. It never refetches.
func (c *Cursor) Rewind() {
	c.position = 0
}

// Valid reports whether a row is available at the current position,
// fetching further pages from the server as needed. It returns false when
// the result is exhausted or a fetch failed; see Err.
func (c *Cursor) Valid(ctx context.Context) bool {
	for {
		if c.position < len(c.buffer) {
			return true
		}
		if c.err != nil || !c.hasMore || c.id == "" {
			return false
		}
		if err := c.FetchOutstanding(ctx); err != nil {
			c.err = err
			return false
		}
	}
}

// Current returns the row at the current position, or nil past the end.
func (c *Cursor) Current() interface{} {
	if c.position >= len(c.buffer) {
		return nil
	}
	return c.buffer[c.position]
}

// Key returns the current position.
func (c *Cursor) Key() int {
	return c.position
}

// Next advances to the next row.
func (c *Cursor) Next() {
	if c.position < len(c.buffer) {
		c.position++
	}
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Decode unmarshals the current row into v.
func (c *Cursor) Decode(v interface{}) error {
	row := c.Current()
	if row == nil {
		return ErrInvalidOption("position", c.position, "no row at the current position")
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// FetchOutstanding fetches the next page and appends it to the buffer. It
// does nothing once the server reported no more rows. Failures, including
// an expired cursor, are returned as is and not retried.
func (c *Cursor) FetchOutstanding(ctx context.Context) error {
	if !c.hasMore || c.id == "" {
		return nil
	}

	resp, err := c.conn.Put(ctx, cursorPath+"/"+url.PathEscape(c.id), nil)
	if err != nil {
		return err
	}
	env, err := decodeEnvelope(resp)
	if err != nil {
		return err
	}
	if !env.HasResult {
		return ErrMalformedResponse("cursor page carries no result array", nil)
	}
	rows, err := c.convert(env.Result)
	if err != nil {
		return err
	}

	c.buffer = append(c.buffer, rows...)
	c.hasMore = env.HasMore
	if env.ID != "" {
		c.id = env.ID
	}
	c.fetches++

	c.conn.logger.Debug("cursor page fetched",
		String("cursor", c.id),
		Int("rows", len(rows)),
		Bool("has_more", c.hasMore),
		Int("fetches", c.fetches))
	return nil
}

// All fetches every remaining page and returns the complete result. The
// whole result is held in memory.
func (c *Cursor) All(ctx context.Context) ([]interface{}, error) {
	for c.hasMore && c.id != "" {
		if err := c.FetchOutstanding(ctx); err != nil {
			c.err = err
			return nil, err
		}
	}
	out := make([]interface{}, len(c.buffer))
	copy(out, c.buffer)
	return out, nil
}

// Delete releases the server-side cursor. It returns false when there is no
// cursor to release or the request failed; the failure is logged only.
func (c *Cursor) Delete(ctx context.Context) bool {
	if c.id == "" {
		return false
	}
	if _, err := c.conn.Delete(ctx, cursorPath+"/"+url.PathEscape(c.id)); err != nil {
		c.conn.logger.Warn("cursor delete failed", String("cursor", c.id), Error("error", err))
		return false
	}
	c.hasMore = false
	return true
}

// ID returns the server cursor id, or "" when the whole result came in the
// first response.
func (c *Cursor) ID() string { return c.id }

// HasMore reports whether the server holds further pages.
func (c *Cursor) HasMore() bool { return c.hasMore }

// Len returns the number of buffered rows.
func (c *Cursor) Len() int { return len(c.buffer) }

// Fetches returns the number of requests made for this cursor, the initial
// query included.
func (c *Cursor) Fetches() int { return c.fetches }

// Count returns the total row count when the query asked for it.
func (c *Cursor) Count() (int64, bool) { return c.count, c.hasCount }

// FullCount returns extra.stats.fullCount when the query asked for it.
func (c *Cursor) FullCount() (int64, bool) {
	v, ok := c.mapper.Lookup(c.extra, "stats", "fullCount")
	if !ok {
		return 0, false
	}
	n, err := c.mapper.ToInt(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Extra returns the extra object of the first response.
func (c *Cursor) Extra() map[string]interface{} { return c.extra }

// Warnings returns the query warnings of the first response.
func (c *Cursor) Warnings() []interface{} {
	w, _ := c.extra["warnings"].([]interface{})
	return w
}

// IsCached reports whether the result came from the query cache.
func (c *Cursor) IsCached() bool { return c.cached }
