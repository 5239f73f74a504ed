package client

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"sync"

	"github.com/cespare/xxhash"
)

// StatementOptions describe a query and how its cursor is created.
type StatementOptions struct {
	// Query is the query text.
	Query string

	// BindVars maps bind parameter names to values. Values may be strings,
	// numbers, booleans, nil, or slices and string-keyed maps of those.
	BindVars map[string]interface{}

	// Count asks the server for the total row count.
	Count bool

	// BatchSize is the page size. Zero uses the connection default.
	BatchSize int

	// Sanitize strips _id and _rev from every row.
	Sanitize bool

	// Flat keeps rows as decoded JSON.
	Flat bool

	// FullCount asks for the row count ignoring the final LIMIT.
	FullCount bool

	// Stream asks the server to compute results lazily.
	Stream bool

	// FailOnWarning turns query warnings into errors.
	FailOnWarning bool

	// Cache overrides the server query cache mode when set.
	Cache *bool

	// TTL is the server-side cursor lifetime in seconds.
	TTL int

	// MemoryLimit caps query memory in bytes.
	MemoryLimit int64
}

// Statement is a query ready to run. It runs once; Execute returns the
// only cursor the statement produces.
type Statement struct {
	conn *Connection
	opts StatementOptions

	mu       sync.Mutex
	bindVars map[string]interface{}
	executed bool
}

// NewStatement validates opts and creates a statement.
func (c *Connection) NewStatement(opts StatementOptions) (*Statement, error) {
	if opts.Query == "" {
		return nil, ErrInvalidOption("query", opts.Query, "must not be empty")
	}
	if opts.BatchSize < 0 {
		return nil, ErrInvalidOption("batch size", opts.BatchSize, "must not be negative")
	}
	if opts.TTL < 0 {
		return nil, ErrInvalidOption("ttl", opts.TTL, "must not be negative")
	}

	s := &Statement{
		conn:     c,
		opts:     opts,
		bindVars: make(map[string]interface{}, len(opts.BindVars)),
	}
	for name, value := range opts.BindVars {
		if err := validateBindVar(name, "@"+name, value); err != nil {
			return nil, err
		}
		s.bindVars[name] = value
	}
	return s, nil
}

// Query returns the query text.
func (s *Statement) Query() string { return s.opts.Query }

// BatchSize returns the effective page size.
func (s *Statement) BatchSize() int {
	if s.opts.BatchSize > 0 {
		return s.opts.BatchSize
	}
	return s.conn.opts.DefaultBatchSize
}

// BindVars returns a copy of the bind variables.
func (s *Statement) BindVars() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]interface{}, len(s.bindVars))
	for k, v := range s.bindVars {
		out[k] = v
	}
	return out
}

// BindVar sets one bind variable.
func (s *Statement) BindVar(name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executed {
		return ErrAlreadyExecuted(s.opts.Query)
	}
	if name == "" {
		return ErrInvalidOption("bind variable name", name, "must not be empty")
	}
	if err := validateBindVar(name, "@"+name, value); err != nil {
		return err
	}
	s.bindVars[name] = value
	return nil
}

// Executed reports whether Execute succeeded or was captured.
func (s *Statement) Executed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed
}

// Fingerprint is a 64-bit hash of the query text. It is logged with every
// execution so runs of the same query can be correlated.
func (s *Statement) Fingerprint() uint64 {
	return xxhash.Sum64([]byte(s.opts.Query))
}

func (s *Statement) fingerprintHex() string {
	return strconv.FormatUint(s.Fingerprint(), 16)
}

// Execute sends the query and returns a cursor over its result.
//
// While a batch captures, the returned error is the *BatchPart of the
// query. The cursor it decodes to uses this statement's Sanitize and Flat
// settings unless the batch staged other options.
func (s *Statement) Execute(ctx context.Context) (*Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.executed {
		return nil, ErrAlreadyExecuted(s.opts.Query)
	}

	req, err := s.conn.newRequest("POST", cursorPath, s.body())
	if err != nil {
		return nil, err
	}
	cursorOpts := CursorOptions{Sanitize: s.opts.Sanitize, Flat: s.opts.Flat}
	req.cursorOptions = &cursorOpts
	req.metadata = map[string]interface{}{"fingerprint": s.fingerprintHex()}

	s.conn.logger.Debug("executing statement",
		String("fingerprint", s.fingerprintHex()),
		Int("batch_size", s.BatchSize()),
		Int("bind_vars", len(s.bindVars)))

	resp, err := s.conn.do(ctx, req)
	if err != nil {
		if IsCaptured(err) {
			s.executed = true
		}
		return nil, err
	}
	s.executed = true

	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}
	return newCursor(s.conn, env, cursorOpts)
}

func (s *Statement) body() map[string]interface{} {
	body := map[string]interface{}{
		"query":     s.opts.Query,
		"count":     s.opts.Count,
		"batchSize": s.BatchSize(),
	}
	if len(s.bindVars) > 0 {
		body["bindVars"] = s.bindVars
	}

	options := make(map[string]interface{})
	if s.opts.FullCount {
		options["fullCount"] = true
	}
	if s.opts.Stream {
		options["stream"] = true
	}
	if s.opts.FailOnWarning {
		options["failOnWarning"] = true
	}
	if len(options) > 0 {
		body["options"] = options
	}

	if s.opts.Cache != nil {
		body["cache"] = *s.opts.Cache
	}
	if s.opts.TTL > 0 {
		body["ttl"] = s.opts.TTL
	}
	if s.opts.MemoryLimit > 0 {
		body["memoryLimit"] = s.opts.MemoryLimit
	}
	return body
}

// Explain asks the server for the execution plan of the query.
func (s *Statement) Explain(ctx context.Context) (map[string]interface{}, error) {
	body := map[string]interface{}{"query": s.opts.Query}
	if vars := s.BindVars(); len(vars) > 0 {
		body["bindVars"] = vars
	}
	resp, err := s.conn.Post(ctx, "/_api/explain", body)
	if err != nil {
		return nil, err
	}
	return decodeObject(resp)
}

// Validate asks the server to parse the query without running it. With a
// parse cache enabled, repeated validations of the same query text are
// answered locally.
func (s *Statement) Validate(ctx context.Context) (map[string]interface{}, error) {
	cache := s.conn.ParseCache()
	if cache != nil {
		if result, ok := cache.Get(s.Fingerprint(), s.opts.Query); ok {
			return result, nil
		}
	}

	resp, err := s.conn.Post(ctx, "/_api/query", map[string]interface{}{"query": s.opts.Query})
	if err != nil {
		return nil, err
	}
	result, err := decodeObject(resp)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		cache.Add(s.Fingerprint(), s.opts.Query, result)
	}
	return result, nil
}

// validateBindVar accepts strings, finite numbers, booleans, nil, and
// slices, arrays or string-keyed maps holding only those.
func validateBindVar(name, path string, value interface{}) error {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	case reflect.Float32, reflect.Float64:
		// JSON has no NaN or Infinity.
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidBindVar(name, path, value)
		}
		return nil
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := validateBindVar(name, fmt.Sprintf("%s[%d]", path, i), v.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return ErrInvalidBindVar(name, path, value)
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := validateBindVar(name, path+"."+iter.Key().String(), iter.Value().Interface()); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrInvalidBindVar(name, path, value)
	}
}
