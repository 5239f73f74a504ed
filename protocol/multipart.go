package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// BatchBoundary separates the parts of a batch request and response
	BatchBoundary = "XXXsubpartXXX"

	// BatchPartContentType marks a part as an embedded HTTP message
	BatchPartContentType = "application/x-arango-batchpart"

	headerContentID = "Content-Id"
)

// BatchRequest is one embedded request of a batch
type BatchRequest struct {
	ContentID string
	Method    string
	Path      string
	Headers   map[string]string
	Body      []byte
}

// BatchResponse is one embedded response of a batch
type BatchResponse struct {
	ContentID  string
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// BatchContentType returns the outer Content-Type for a batch body
func BatchContentType(boundary string) string {
	if boundary == "" {
		boundary = BatchBoundary
	}
	return "multipart/form-data; boundary=" + boundary
}

// BoundaryFromContentType extracts the boundary parameter of a multipart
// Content-Type. It returns "" when the header names no boundary.
func BoundaryFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["boundary"]
}

// EncodeBatch serializes requests, in order, into one multipart body
func EncodeBatch(requests []BatchRequest, boundary string) ([]byte, error) {
	return encodeParts(len(requests), boundary, func(i int, w io.Writer) (string, error) {
		req := requests[i]
		if req.Method == "" || req.Path == "" {
			return "", MalformedBatchError("batch request needs a method and a path", map[string]interface{}{
				"index": i,
			})
		}
		fmt.Fprintf(w, "%s %s HTTP/1.1\r\n", strings.ToUpper(req.Method), req.Path)
		if err := writeEmbeddedHeaders(w, req.Headers, req.Body); err != nil {
			return "", err
		}
		_, err := w.Write(req.Body)
		return req.ContentID, err
	})
}

// EncodeBatchResponses serializes responses into a multipart body in the
// layout the server produces. Used to script batch replies.
func EncodeBatchResponses(responses []BatchResponse, boundary string) ([]byte, error) {
	return encodeParts(len(responses), boundary, func(i int, w io.Writer) (string, error) {
		resp := responses[i]
		fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", resp.StatusCode, http.StatusText(resp.StatusCode))
		if err := writeEmbeddedHeaders(w, resp.Headers, resp.Body); err != nil {
			return "", err
		}
		_, err := w.Write(resp.Body)
		return resp.ContentID, err
	})
}

// DecodeBatch splits a multipart response body into its embedded responses,
// preserving part order
func DecodeBatch(body []byte, boundary string) ([]BatchResponse, error) {
	var out []BatchResponse
	err := decodeParts(body, boundary, func(index int, contentID string, r *bufio.Reader) error {
		resp, err := http.ReadResponse(r, nil)
		if err != nil {
			return errors.Wrapf(err, "part %d: read embedded response", index)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrapf(err, "part %d: read embedded response body", index)
		}
		out = append(out, BatchResponse{
			ContentID:  contentID,
			StatusCode: resp.StatusCode,
			Headers:    flattenHeader(resp.Header),
			Body:       data,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeBatchRequests splits a multipart request body into its embedded
// requests, preserving part order
func DecodeBatchRequests(body []byte, boundary string) ([]BatchRequest, error) {
	var out []BatchRequest
	err := decodeParts(body, boundary, func(index int, contentID string, r *bufio.Reader) error {
		req, err := http.ReadRequest(r)
		if err != nil {
			return errors.Wrapf(err, "part %d: read embedded request", index)
		}
		defer req.Body.Close()

		data, err := io.ReadAll(req.Body)
		if err != nil {
			return errors.Wrapf(err, "part %d: read embedded request body", index)
		}
		out = append(out, BatchRequest{
			ContentID: contentID,
			Method:    req.Method,
			Path:      req.URL.RequestURI(),
			Headers:   flattenHeader(req.Header),
			Body:      data,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func encodeParts(n int, boundary string, write func(i int, w io.Writer) (string, error)) ([]byte, error) {
	if boundary == "" {
		boundary = BatchBoundary
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.SetBoundary(boundary); err != nil {
		return nil, MalformedBatchError("invalid boundary", map[string]interface{}{"boundary": boundary})
	}

	for i := 0; i < n; i++ {
		// The content id is only known after the callback ran, so the part is
		// staged first
		var part bytes.Buffer
		contentID, err := write(i, &part)
		if err != nil {
			return nil, err
		}

		header := textproto.MIMEHeader{}
		header.Set("Content-Type", BatchPartContentType)
		if contentID != "" {
			header.Set(headerContentID, contentID)
		}
		pw, err := mw.CreatePart(header)
		if err != nil {
			return nil, errors.Wrapf(err, "part %d: create", i)
		}
		if _, err := pw.Write(part.Bytes()); err != nil {
			return nil, errors.Wrapf(err, "part %d: write", i)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart writer")
	}
	return buf.Bytes(), nil
}

func decodeParts(body []byte, boundary string, read func(index int, contentID string, r *bufio.Reader) error) error {
	if boundary == "" {
		boundary = BatchBoundary
	}
	if !bytes.Contains(body, []byte("--"+boundary)) {
		return MalformedBatchError("batch body does not contain the boundary", map[string]interface{}{
			"boundary": boundary,
		})
	}

	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for index := 0; ; index++ {
		part, err := mr.NextRawPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return malformedBatch(errors.Wrapf(err, "part %d", index))
		}

		contentID := part.Header.Get(headerContentID)
		err = read(index, contentID, bufio.NewReader(part))
		part.Close()
		if err != nil {
			return malformedBatch(err)
		}
	}
}

func writeEmbeddedHeaders(w io.Writer, headers map[string]string, body []byte) error {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	if len(body) > 0 {
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}
	// Header.Write emits keys in sorted order
	if err := h.Write(w); err != nil {
		return errors.Wrap(err, "write embedded headers")
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func malformedBatch(cause error) *TransportError {
	err := MalformedBatchError("malformed batch body", nil)
	err.Cause = cause
	return err
}
