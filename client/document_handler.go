package client

import (
	"context"
	"net/url"
	"strings"

	"github.com/dan-strohschein/arangodb-drivers/mapper"
)

// DocumentHandler reads and writes documents and edges. While a batch
// captures, every method returns the captured *BatchPart as its error and
// leaves the passed document untouched.
type DocumentHandler struct {
	conn *Connection
}

// NewDocumentHandler creates a handler bound to conn.
func NewDocumentHandler(conn *Connection) *DocumentHandler {
	return &DocumentHandler{conn: conn}
}

func documentPath(id string) (string, error) {
	if !validDocumentID(id) {
		return "", ErrInvalidDocument("document id must have the form collection/key", map[string]interface{}{"value": id})
	}
	i := strings.IndexByte(id, '/')
	return "/_api/document/" + url.PathEscape(id[:i]) + "/" + url.PathEscape(id[i+1:]), nil
}

// Save stores a new document and returns its _id. The server-assigned
// _id, _key and _rev are set on doc.
func (h *DocumentHandler) Save(ctx context.Context, collection string, doc *Document) (string, error) {
	return h.save(ctx, collection, doc)
}

// SaveEdge stores a new edge and returns its _id.
func (h *DocumentHandler) SaveEdge(ctx context.Context, collection string, edge *Edge) (string, error) {
	if edge.From() == "" || edge.To() == "" {
		return "", ErrInvalidDocument("edge needs _from and _to", nil)
	}
	return h.save(ctx, collection, &edge.Document)
}

func (h *DocumentHandler) save(ctx context.Context, collection string, doc *Document) (string, error) {
	if collection == "" {
		return "", ErrInvalidOption("collection", collection, "must not be empty")
	}
	resp, err := h.conn.Post(ctx, "/_api/document/"+url.PathEscape(collection), doc.ForWrite())
	if err != nil {
		return "", err
	}
	obj, err := decodeObject(resp)
	if err != nil {
		return "", err
	}
	if err := applyMeta(doc, obj); err != nil {
		return "", err
	}
	return doc.ID(), nil
}

// Get fetches a document by id. For an edge the embedded Document is
// returned; use GetEdge to read _from and _to.
func (h *DocumentHandler) Get(ctx context.Context, id string) (*Document, error) {
	v, err := h.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e, ok := v.(*Edge); ok {
		return &e.Document, nil
	}
	return v.(*Document), nil
}

// GetEdge fetches an edge by id.
func (h *DocumentHandler) GetEdge(ctx context.Context, id string) (*Edge, error) {
	v, err := h.get(ctx, id)
	if err != nil {
		return nil, err
	}
	e, ok := v.(*Edge)
	if !ok {
		return nil, ErrInvalidDocument("document is not an edge", map[string]interface{}{"id": id})
	}
	return e, nil
}

func (h *DocumentHandler) get(ctx context.Context, id string) (interface{}, error) {
	path, err := documentPath(id)
	if err != nil {
		return nil, err
	}
	resp, err := h.conn.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(resp)
	if err != nil {
		return nil, err
	}
	if mapper.NewResponseMapper().Shape(obj) == mapper.ShapeEdge {
		return NewEdgeFromMap(obj)
	}
	return NewDocumentFromMap(obj)
}

// Has reports whether a document exists.
func (h *DocumentHandler) Has(ctx context.Context, id string) (bool, error) {
	path, err := documentPath(id)
	if err != nil {
		return false, err
	}
	if _, err := h.conn.Do(ctx, "HEAD", path, nil); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Update merges the attributes of doc into the stored document and returns
// the new revision. When doc carries _rev the server rejects the update if
// the stored revision differs.
func (h *DocumentHandler) Update(ctx context.Context, doc *Document) (string, error) {
	return h.write(ctx, "PATCH", doc)
}

// Replace overwrites the stored document with doc and returns the new
// revision.
func (h *DocumentHandler) Replace(ctx context.Context, doc *Document) (string, error) {
	return h.write(ctx, "PUT", doc)
}

func (h *DocumentHandler) write(ctx context.Context, method string, doc *Document) (string, error) {
	path, err := documentPath(doc.ID())
	if err != nil {
		return "", err
	}
	body := doc.ForWrite()
	delete(body, mapper.AttrKey)

	req, err := h.conn.newRequest(method, path, body)
	if err != nil {
		return "", err
	}
	if rev := doc.Rev(); rev != "" {
		req.headers = map[string]string{"If-Match": rev}
	}
	resp, err := h.conn.do(ctx, req)
	if err != nil {
		return "", err
	}
	obj, err := decodeObject(resp)
	if err != nil {
		return "", err
	}
	if err := applyMeta(doc, obj); err != nil {
		return "", err
	}
	return doc.Rev(), nil
}

// Remove deletes a document. A non-empty rev makes the delete conditional.
func (h *DocumentHandler) Remove(ctx context.Context, id, rev string) error {
	path, err := documentPath(id)
	if err != nil {
		return err
	}
	req, err := h.conn.newRequest("DELETE", path, nil)
	if err != nil {
		return err
	}
	if rev != "" {
		req.headers = map[string]string{"If-Match": rev}
	}
	_, err = h.conn.do(ctx, req)
	return err
}

// applyMeta copies the server-assigned internal attributes onto doc.
func applyMeta(doc *Document, obj map[string]interface{}) error {
	for _, key := range []string{mapper.AttrID, mapper.AttrKey, mapper.AttrRev} {
		if v, ok := obj[key].(string); ok && v != "" {
			if err := doc.Set(key, v); err != nil {
				return err
			}
		}
	}
	return nil
}
