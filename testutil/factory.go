package testutil

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"
)

// Factory generates document test data.
type Factory interface {
	// Build creates a single document
	Build(options ...Option) map[string]interface{}

	// BuildList creates count documents
	BuildList(count int, options ...Option) []map[string]interface{}
}

// Option modifies a document before it is built.
type Option func(map[string]interface{})

// BaseFactory resolves lazy default values and applies options.
type BaseFactory struct {
	defaults map[string]interface{}
}

// NewBaseFactory creates a factory from defaults. Values of type
// func() string, func() int64 or func() time.Time are called per build.
func NewBaseFactory(defaults map[string]interface{}) *BaseFactory {
	return &BaseFactory{defaults: defaults}
}

// Build creates one document.
func (f *BaseFactory) Build(options ...Option) map[string]interface{} {
	data := make(map[string]interface{}, len(f.defaults))
	for k, v := range f.defaults {
		switch fn := v.(type) {
		case func() string:
			data[k] = fn()
		case func() int64:
			data[k] = fn()
		case func() time.Time:
			data[k] = fn().UTC().Format(time.RFC3339)
		default:
			data[k] = v
		}
	}
	for _, opt := range options {
		opt(data)
	}
	return data
}

// BuildList creates count documents.
func (f *BaseFactory) BuildList(count int, options ...Option) []map[string]interface{} {
	out := make([]map[string]interface{}, count)
	for i := range out {
		out[i] = f.Build(options...)
	}
	return out
}

// WithField sets one attribute.
func WithField(name string, value interface{}) Option {
	return func(data map[string]interface{}) {
		data[name] = value
	}
}

// WithFields sets several attributes.
func WithFields(fields map[string]interface{}) Option {
	return func(data map[string]interface{}) {
		for k, v := range fields {
			data[k] = v
		}
	}
}

// WithInternalAttributes adds _id and _rev for collection, as the server
// would return them.
func WithInternalAttributes(collection string) Option {
	return func(data map[string]interface{}) {
		if key, ok := data["_key"].(string); ok {
			data["_id"] = collection + "/" + key
			data["_rev"] = "_" + key
		}
	}
}

var (
	keySequence  uint64
	nameSequence uint64
)

// SequenceKey generates unique document keys.
func SequenceKey() string {
	n := atomic.AddUint64(&keySequence, 1)
	return fmt.Sprintf("k%d", n)
}

// SequenceName generates unique names.
func SequenceName() string {
	n := atomic.AddUint64(&nameSequence, 1)
	return fmt.Sprintf("name%d", n)
}

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// RandomString generates a random alphanumeric string.
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rng.Intn(len(charset))]
	}
	return string(b)
}

// RandomInt generates a random integer between min and max (inclusive).
func RandomInt(min, max int) int {
	return min + rng.Intn(max-min+1)
}

// NewDocumentFactory creates a factory for plain documents.
func NewDocumentFactory() *BaseFactory {
	return NewBaseFactory(map[string]interface{}{
		"_key":    SequenceKey,
		"name":    SequenceName,
		"created": time.Now,
		"active":  true,
	})
}

// NewEdgeFactory creates a factory for edges between two vertices.
func NewEdgeFactory(from, to string) *BaseFactory {
	return NewBaseFactory(map[string]interface{}{
		"_key":  SequenceKey,
		"_from": from,
		"_to":   to,
		"label": "knows",
	})
}

// BuildDocuments builds count plain documents.
func BuildDocuments(count int, options ...Option) []map[string]interface{} {
	return NewDocumentFactory().BuildList(count, options...)
}

// Rows converts documents into cursor rows.
func Rows(docs []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}

// NumberRows returns the rows first, first+1, ... first+n-1 as float64,
// the way decoded JSON numbers arrive.
func NumberRows(first, n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = float64(first + i)
	}
	return out
}
