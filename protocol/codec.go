// Package protocol provides encoding/decoding for the ArangoDB HTTP API
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/dan-strohschein/arangodb-drivers/mapper"
)

// ContentTypeJSON is the content type of every JSON request body
const ContentTypeJSON = "application/json"

// Codec handles encoding of request bodies and decoding of response bodies
type Codec interface {
	// Encode serializes a request body
	Encode(v interface{}) ([]byte, error)

	// Decode parses a raw body into the standard response envelope
	Decode(data []byte) (*Envelope, error)

	// DecodeJSON parses a raw body into a generic JSON object
	DecodeJSON(data []byte) (map[string]interface{}, error)
}

// Envelope is the typed view of a server response body. Only the fields the
// driver consumes are lifted out; Raw holds the complete decoded object.
type Envelope struct {
	Result       []interface{}
	HasResult    bool
	HasMore      bool
	ID           string
	Count        int64
	HasCount     bool
	Extra        map[string]interface{}
	Cached       bool
	Error        bool
	Code         int
	ErrorNum     int
	ErrorMessage string
	Raw          map[string]interface{}
}

// JSONCodec implements Codec with encoding/json
type JSONCodec struct {
	// Buffer pool for encoding operations
	bufferPool sync.Pool
}

// NewCodec creates a new JSON codec
func NewCodec() Codec {
	return &JSONCodec{
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Encode serializes v as compact JSON without HTML escaping. A nil value
// encodes to an empty body.
func (c *JSONCodec) Encode(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.([]byte); ok {
		return raw, nil
	}

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	// Encoder appends a newline; strip it and copy out of the pooled buffer
	out := bytes.TrimRight(buf.Bytes(), "\n")
	result := make([]byte, len(out))
	copy(result, out)
	return result, nil
}

// DecodeJSON parses data as a JSON object
func (c *JSONCodec) DecodeJSON(data []byte) (map[string]interface{}, error) {
	return DecodeJSON(data)
}

// Decode parses data into an Envelope
func (c *JSONCodec) Decode(data []byte) (*Envelope, error) {
	return DecodeEnvelope(data)
}

// DecodeJSON parses data as a JSON object. Anything else, including an empty
// body, is a malformed result.
func DecodeJSON(data []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, MalformedResponseError("empty response body", nil)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, MalformedResponseError("response body is not a JSON object", err)
	}
	if out == nil {
		return nil, MalformedResponseError("response body is JSON null", nil)
	}
	return out, nil
}

// DecodeEnvelope parses data and lifts the envelope fields out of it
func DecodeEnvelope(data []byte) (*Envelope, error) {
	raw, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	return EnvelopeFromMap(raw)
}

// EnvelopeFromMap lifts the envelope fields out of an already decoded object
func EnvelopeFromMap(raw map[string]interface{}) (*Envelope, error) {
	m := mapper.NewResponseMapper()
	env := &Envelope{Raw: raw}

	if result, ok := raw["result"]; ok && result != nil {
		rows, isArray := result.([]interface{})
		if !isArray {
			return nil, MalformedResponseError(fmt.Sprintf("result has type %T, expected array", result), nil)
		}
		env.Result = rows
		env.HasResult = true
	}

	env.HasMore = m.ToBoolDefault(raw["hasMore"], false)
	env.Cached = m.ToBoolDefault(raw["cached"], false)
	env.Error = m.ToBoolDefault(raw["error"], false)

	if id, ok := raw["id"]; ok && id != nil {
		env.ID = m.ToString(id)
	}
	if count, ok := raw["count"]; ok && count != nil {
		n, err := m.ToInt(count)
		if err != nil {
			return nil, MalformedResponseError("count is not numeric", err)
		}
		env.Count = n
		env.HasCount = true
	}
	if extra, ok := raw["extra"].(map[string]interface{}); ok {
		env.Extra = extra
	}
	if code, ok := raw["code"]; ok {
		if n, err := m.ToInt(code); err == nil {
			env.Code = int(n)
		}
	}
	if num, ok := raw["errorNum"]; ok {
		if n, err := m.ToInt(num); err == nil {
			env.ErrorNum = int(n)
		}
	}
	env.ErrorMessage = m.ToString(raw["errorMessage"])

	return env, nil
}

// ServerFailure describes an error reported by the server for one response
type ServerFailure struct {
	HTTPCode int
	ErrorNum int
	Message  string
	Body     []byte
}

// ExtractServerError inspects a response and returns the server-reported
// failure, or nil when the response is a success. A response failed when its
// status lies outside 200..399 or its body carries "error": true.
func ExtractServerError(status int, body []byte) *ServerFailure {
	failed := status < 200 || status > 399
	valid := len(body) > 0 && gjson.ValidBytes(body)

	if valid && gjson.GetBytes(body, "error").Bool() {
		failed = true
	}
	if !failed {
		return nil
	}

	failure := &ServerFailure{HTTPCode: status, Body: body}
	if valid {
		if code := gjson.GetBytes(body, "code"); code.Exists() && status < 400 {
			// error:true with a success status; trust the envelope code
			failure.HTTPCode = int(code.Int())
		}
		failure.ErrorNum = int(gjson.GetBytes(body, "errorNum").Int())
		failure.Message = gjson.GetBytes(body, "errorMessage").String()
	}
	if failure.Message == "" {
		failure.Message = http.StatusText(failure.HTTPCode)
	}
	if failure.Message == "" {
		failure.Message = fmt.Sprintf("server returned status %d", failure.HTTPCode)
	}
	return failure
}
