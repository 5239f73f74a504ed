package client

import (
	"context"
	"net/url"

	"github.com/dan-strohschein/arangodb-drivers/mapper"
	"github.com/dan-strohschein/arangodb-drivers/protocol"
)

// Restriction types for ExportOptions.Restrict.
const (
	RestrictInclude = "include"
	RestrictExclude = "exclude"
)

// Restriction limits the attributes of exported documents.
type Restriction struct {
	Type   string   `json:"type"`
	Fields []string `json:"fields"`
}

// ExportOptions configure a collection export.
type ExportOptions struct {
	// BatchSize is the page size. Zero uses the connection default.
	BatchSize int

	// Flat keeps rows as decoded JSON instead of *Document / *Edge values.
	Flat bool

	// Limit caps the number of exported documents. Zero means no cap.
	Limit int

	// Restrict keeps or drops the listed attributes.
	Restrict *Restriction

	// Flush makes the server flush its write-ahead log before exporting.
	Flush bool

	// FlushWait is the maximum wait for the flush in seconds.
	FlushWait int

	// Count asks for the number of exported documents.
	Count bool

	// TTL is the server-side cursor lifetime in seconds.
	TTL int
}

// Export is a prepared bulk export of one collection.
type Export struct {
	conn       *Connection
	collection string
	opts       ExportOptions
}

// NewExport validates opts and prepares an export. An invalid restriction
// fails here, before anything is sent.
func (c *Connection) NewExport(collection string, opts ExportOptions) (*Export, error) {
	if collection == "" {
		return nil, ErrInvalidOption("collection", collection, "must not be empty")
	}
	if opts.BatchSize < 0 {
		return nil, ErrInvalidOption("batch size", opts.BatchSize, "must not be negative")
	}
	if opts.Limit < 0 {
		return nil, ErrInvalidOption("limit", opts.Limit, "must not be negative")
	}
	if r := opts.Restrict; r != nil {
		if r.Type != RestrictInclude && r.Type != RestrictExclude {
			return nil, ErrInvalidRestrict("restrict type must be \"include\" or \"exclude\", got \"" + r.Type + "\"")
		}
		if r.Fields == nil {
			return nil, ErrInvalidRestrict("restrict fields must be a list")
		}
	}
	return &Export{conn: c, collection: collection, opts: opts}, nil
}

// Collection returns the exported collection name.
func (e *Export) Collection() string { return e.collection }

func (e *Export) body() map[string]interface{} {
	batchSize := e.opts.BatchSize
	if batchSize == 0 {
		batchSize = e.conn.opts.DefaultBatchSize
	}
	body := map[string]interface{}{
		"batchSize": batchSize,
		"flush":     e.opts.Flush,
		"count":     e.opts.Count,
	}
	if e.opts.Limit > 0 {
		body["limit"] = e.opts.Limit
	}
	if e.opts.Restrict != nil {
		body["restrict"] = e.opts.Restrict
	}
	if e.opts.FlushWait > 0 {
		body["flushWait"] = e.opts.FlushWait
	}
	if e.opts.TTL > 0 {
		body["ttl"] = e.opts.TTL
	}
	return body
}

// Execute starts the export and returns a cursor positioned before the
// first page.
func (e *Export) Execute(ctx context.Context) (*ExportCursor, error) {
	resp, err := e.conn.Post(ctx, "/_api/export?collection="+url.QueryEscape(e.collection), e.body())
	if err != nil {
		return nil, err
	}
	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}
	return newExportCursor(e.conn, env, e.opts.Flat)
}

// ExportCursor pulls an export page by page.
type ExportCursor struct {
	conn   *Connection
	flat   bool
	mapper *mapper.ResponseMapper

	id       string
	hasMore  bool
	pending  []interface{}
	count    int64
	hasCount bool
	fetches  int
}

func newExportCursor(conn *Connection, env *protocol.Envelope, flat bool) (*ExportCursor, error) {
	if !env.HasResult {
		return nil, ErrMalformedResponse("export response carries no result array", nil)
	}
	c := &ExportCursor{
		conn:     conn,
		flat:     flat,
		mapper:   mapper.NewResponseMapper(),
		id:       env.ID,
		hasMore:  env.HasMore,
		count:    env.Count,
		hasCount: env.HasCount,
		fetches:  1,
	}
	rows, err := c.convert(env.Result)
	if err != nil {
		return nil, err
	}
	c.pending = rows
	return c, nil
}

func (c *ExportCursor) convert(rows []interface{}) ([]interface{}, error) {
	if c.flat {
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

// NextBatch returns the next page. The boolean is false once the export is
// exhausted.
func (c *ExportCursor) NextBatch(ctx context.Context) ([]interface{}, bool, error) {
	if len(c.pending) > 0 {
		rows := c.pending
		c.pending = nil
		return rows, true, nil
	}
	c.pending = nil
	if !c.hasMore || c.id == "" {
		return nil, false, nil
	}

	resp, err := c.conn.Put(ctx, cursorPath+"/"+url.PathEscape(c.id), nil)
	if err != nil {
		return nil, false, err
	}
	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, false, err
	}
	if !env.HasResult {
		return nil, false, ErrMalformedResponse("export page carries no result array", nil)
	}
	rows, err := c.convert(env.Result)
	if err != nil {
		return nil, false, err
	}
	c.fetches++
	c.hasMore = env.HasMore
	if env.ID != "" {
		c.id = env.ID
	}
	return rows, true, nil
}

// Fetches returns the number of requests made, the initial one included.
func (c *ExportCursor) Fetches() int { return c.fetches }

// Count returns the exported document count when it was requested.
func (c *ExportCursor) Count() (int64, bool) { return c.count, c.hasCount }

// ID returns the server cursor id.
func (c *ExportCursor) ID() string { return c.id }

// HasMore reports whether the server holds further pages.
func (c *ExportCursor) HasMore() bool { return c.hasMore }
