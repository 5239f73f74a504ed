package client

import (
	"context"
	"net/url"

	"github.com/dan-strohschein/arangodb-drivers/mapper"
)

// CollectionType distinguishes document and edge collections.
type CollectionType int

const (
	CollectionTypeDocument CollectionType = 2
	CollectionTypeEdge     CollectionType = 3
)

// Collection describes a collection as reported by the server.
type Collection struct {
	ID          string
	Name        string
	Type        CollectionType
	Status      int
	IsSystem    bool
	WaitForSync bool
}

// IsEdge reports whether the collection holds edges.
func (c *Collection) IsEdge() bool { return c.Type == CollectionTypeEdge }

func collectionFromMap(obj map[string]interface{}) *Collection {
	m := mapper.NewResponseMapper()
	c := &Collection{
		ID:          m.ToString(obj["id"]),
		Name:        m.ToString(obj["name"]),
		Type:        CollectionTypeDocument,
		IsSystem:    m.ToBoolDefault(obj["isSystem"], false),
		WaitForSync: m.ToBoolDefault(obj["waitForSync"], false),
	}
	if t, err := m.ToInt(obj["type"]); err == nil {
		c.Type = CollectionType(t)
	}
	if s, err := m.ToInt(obj["status"]); err == nil {
		c.Status = int(s)
	}
	return c
}

// CreateCollectionOptions configure a new collection.
type CreateCollectionOptions struct {
	Type        CollectionType
	WaitForSync bool
}

// CollectionHandler manages collections. While a batch captures, every
// method returns the captured *BatchPart as its error.
type CollectionHandler struct {
	conn *Connection
}

// NewCollectionHandler creates a handler bound to conn.
func NewCollectionHandler(conn *Connection) *CollectionHandler {
	return &CollectionHandler{conn: conn}
}

func collectionPath(name string) string {
	return "/_api/collection/" + url.PathEscape(name)
}

// Create creates a collection and returns its id.
func (h *CollectionHandler) Create(ctx context.Context, name string, opts *CreateCollectionOptions) (string, error) {
	if name == "" {
		return "", ErrInvalidOption("collection name", name, "must not be empty")
	}
	body := map[string]interface{}{"name": name}
	if opts != nil {
		if opts.Type != 0 {
			body["type"] = int(opts.Type)
		}
		if opts.WaitForSync {
			body["waitForSync"] = true
		}
	}
	resp, err := h.conn.Post(ctx, "/_api/collection", body)
	if err != nil {
		return "", err
	}
	obj, err := decodeObject(resp)
	if err != nil {
		return "", err
	}
	return collectionFromMap(obj).ID, nil
}

// Get fetches collection properties.
func (h *CollectionHandler) Get(ctx context.Context, name string) (*Collection, error) {
	resp, err := h.conn.Get(ctx, collectionPath(name))
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(resp)
	if err != nil {
		return nil, err
	}
	return collectionFromMap(obj), nil
}

// Has reports whether the collection exists.
func (h *CollectionHandler) Has(ctx context.Context, name string) (bool, error) {
	_, err := h.conn.Get(ctx, collectionPath(name))
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Count returns the number of documents in the collection.
func (h *CollectionHandler) Count(ctx context.Context, name string) (int64, error) {
	resp, err := h.conn.Get(ctx, collectionPath(name)+"/count")
	if err != nil {
		return 0, err
	}
	obj, err := decodeObject(resp)
	if err != nil {
		return 0, err
	}
	n, err := mapper.NewResponseMapper().ToInt(obj["count"])
	if err != nil {
		return 0, ErrMalformedResponse("collection count is not numeric", err)
	}
	return n, nil
}

// Truncate removes every document from the collection.
func (h *CollectionHandler) Truncate(ctx context.Context, name string) error {
	_, err := h.conn.Put(ctx, collectionPath(name)+"/truncate", nil)
	return err
}

// Drop deletes the collection.
func (h *CollectionHandler) Drop(ctx context.Context, name string) error {
	_, err := h.conn.Delete(ctx, collectionPath(name))
	return err
}
