package client

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/dan-strohschein/arangodb-drivers/mapper"
)

const maxKeyLength = 254

// Document is an ordered attribute container for a stored document.
// The internal attributes _id, _key and _rev are validated on Set.
type Document struct {
	keys   []string
	values map[string]interface{}
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{values: make(map[string]interface{})}
}

// NewDocumentFromMap creates a document from decoded JSON. Attributes are
// added in sorted key order.
func NewDocumentFromMap(m map[string]interface{}) (*Document, error) {
	d := NewDocument()
	if err := d.setAll(m, d.Set); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) setAll(m map[string]interface{}, set func(string, interface{}) error) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := set(k, m[k]); err != nil {
			return err
		}
	}
	return nil
}

// Set assigns an attribute, validating internal attributes.
func (d *Document) Set(key string, value interface{}) error {
	switch key {
	case "":
		return ErrInvalidDocument("attribute name must not be empty", nil)
	case mapper.AttrID:
		id, ok := value.(string)
		if !ok || !validDocumentID(id) {
			return ErrInvalidDocument("_id must have the form collection/key", map[string]interface{}{"value": value})
		}
	case mapper.AttrKey:
		k, ok := value.(string)
		if !ok || !validDocumentKey(k) {
			return ErrInvalidDocument("_key must be a non-empty string without '/'", map[string]interface{}{"value": value})
		}
	case mapper.AttrRev:
		if _, ok := value.(string); !ok {
			return ErrInvalidDocument("_rev must be a string", map[string]interface{}{"value": value})
		}
	}
	d.put(key, value)
	return nil
}

func (d *Document) put(key string, value interface{}) {
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Get returns an attribute value, or nil when absent.
func (d *Document) Get(key string) interface{} {
	return d.values[key]
}

// Has reports whether the attribute is set.
func (d *Document) Has(key string) bool {
	_, ok := d.values[key]
	return ok
}

// Unset removes an attribute.
func (d *Document) Unset(key string) {
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// Keys returns attribute names in insertion order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Len returns the number of attributes.
func (d *Document) Len() int {
	return len(d.keys)
}

// All returns a copy of every attribute.
func (d *Document) All() map[string]interface{} {
	out := make(map[string]interface{}, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// ForWrite returns the attributes to send on save or replace: everything
// except _id and _rev.
func (d *Document) ForWrite() map[string]interface{} {
	out := d.All()
	delete(out, mapper.AttrID)
	delete(out, mapper.AttrRev)
	return out
}

// ID returns _id or "".
func (d *Document) ID() string { return d.stringAttr(mapper.AttrID) }

// Key returns _key or "".
func (d *Document) Key() string { return d.stringAttr(mapper.AttrKey) }

// Rev returns _rev or "".
func (d *Document) Rev() string { return d.stringAttr(mapper.AttrRev) }

// Collection returns the collection part of _id, or "".
func (d *Document) Collection() string {
	id := d.ID()
	if i := strings.IndexByte(id, '/'); i > 0 {
		return id[:i]
	}
	return ""
}

func (d *Document) stringAttr(key string) string {
	s, _ := d.values[key].(string)
	return s
}

// MarshalJSON encodes attributes in insertion order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the document with a decoded JSON object.
func (d *Document) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	fresh := NewDocument()
	if err := fresh.setAll(m, fresh.Set); err != nil {
		return err
	}
	*d = *fresh
	return nil
}

// Edge is a document connecting two vertices through _from and _to.
type Edge struct {
	Document
}

// NewEdge creates an edge between two document ids.
func NewEdge(from, to string) (*Edge, error) {
	e := &Edge{Document: *NewDocument()}
	if err := e.Set(mapper.AttrFrom, from); err != nil {
		return nil, err
	}
	if err := e.Set(mapper.AttrTo, to); err != nil {
		return nil, err
	}
	return e, nil
}

// NewEdgeFromMap creates an edge from decoded JSON.
func NewEdgeFromMap(m map[string]interface{}) (*Edge, error) {
	e := &Edge{Document: *NewDocument()}
	if err := e.setAll(m, e.Set); err != nil {
		return nil, err
	}
	return e, nil
}

// Set assigns an attribute; _from and _to must be document ids.
func (e *Edge) Set(key string, value interface{}) error {
	if key == mapper.AttrFrom || key == mapper.AttrTo {
		id, ok := value.(string)
		if !ok || !validDocumentID(id) {
			return ErrInvalidDocument(key+" must have the form collection/key", map[string]interface{}{"value": value})
		}
		e.put(key, value)
		return nil
	}
	return e.Document.Set(key, value)
}

// From returns _from.
func (e *Edge) From() string { return e.stringAttr(mapper.AttrFrom) }

// To returns _to.
func (e *Edge) To() string { return e.stringAttr(mapper.AttrTo) }

// UnmarshalJSON replaces the edge with a decoded JSON object.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	fresh, err := NewEdgeFromMap(m)
	if err != nil {
		return err
	}
	*e = *fresh
	return nil
}

// rowToValue turns a decoded row into *Document, *Edge or leaves it as is,
// using the _key/_from/_to shape heuristic. Rows whose internal attributes
// do not validate, such as a projected _id that is not a handle, are
// returned unchanged: they are query results, not stored documents.
func rowToValue(m *mapper.ResponseMapper, row interface{}) (interface{}, error) {
	switch m.Shape(row) {
	case mapper.ShapeEdge:
		if e, err := NewEdgeFromMap(row.(map[string]interface{})); err == nil {
			return e, nil
		}
	case mapper.ShapeDocument:
		if d, err := NewDocumentFromMap(row.(map[string]interface{})); err == nil {
			return d, nil
		}
	}
	return row, nil
}

func validDocumentKey(k string) bool {
	return k != "" && len(k) <= maxKeyLength && !strings.ContainsRune(k, '/')
}

func validDocumentID(id string) bool {
	i := strings.IndexByte(id, '/')
	return i > 0 && validDocumentKey(id[i+1:])
}
