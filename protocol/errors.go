// Package protocol provides error codes and types for the ArangoDB HTTP protocol
package protocol

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents standardized transport error codes
type ErrorCode int

const (
	// Connection errors (1000-1099)
	ErrorCodeConnectionRefused ErrorCode = 1001
	ErrorCodeTimeout           ErrorCode = 1002
	ErrorCodeInvalidEndpoint   ErrorCode = 1005

	// Protocol errors (2000-2099)
	ErrorCodeProtocolError     ErrorCode = 2001
	ErrorCodeMalformedResponse ErrorCode = 2002
	ErrorCodeMalformedBatch    ErrorCode = 2003
)

// Server error numbers the driver branches on. The full list is maintained by
// the server; only those with client-side meaning are named here.
const (
	ErrorNumArangoConflict      = 1200
	ErrorNumDocumentNotFound    = 1202
	ErrorNumCollectionNotFound  = 1203
	ErrorNumDuplicateName       = 1207
	ErrorNumUniqueConstraint    = 1210
	ErrorNumQueryParse          = 1501
	ErrorNumCursorNotFound      = 1600
	ErrorNumTransactionNotFound = 1655
)

// TransportError represents an error with structured error code
type TransportError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *TransportError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		detailsJSON, _ := json.Marshal(e.Details)
		msg = fmt.Sprintf("%s (details: %s)", msg, string(detailsJSON))
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Cause.Error())
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsConnectFailure reports whether the error means the server could not be reached.
func (e *TransportError) IsConnectFailure() bool {
	switch e.Code {
	case ErrorCodeConnectionRefused, ErrorCodeTimeout, ErrorCodeInvalidEndpoint:
		return true
	default:
		return false
	}
}

// NewTransportError creates a new transport error
func NewTransportError(code ErrorCode, message string, details map[string]interface{}) *TransportError {
	return &TransportError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ConnectionError creates a connection-related transport error
func ConnectionError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeConnectionRefused, message, details)
}

// TimeoutError creates a timeout transport error
func TimeoutError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeTimeout, message, details)
}

// InvalidEndpointError creates an error for an unusable endpoint URL
func InvalidEndpointError(endpoint string, cause error) *TransportError {
	err := NewTransportError(ErrorCodeInvalidEndpoint, "invalid endpoint", map[string]interface{}{
		"endpoint": endpoint,
	})
	err.Cause = cause
	return err
}

// MalformedResponseError creates an error for a body that could not be decoded
func MalformedResponseError(message string, cause error) *TransportError {
	err := NewTransportError(ErrorCodeMalformedResponse, message, nil)
	err.Cause = cause
	return err
}

// MalformedBatchError creates an error for an unusable multipart batch body
func MalformedBatchError(message string, details map[string]interface{}) *TransportError {
	return NewTransportError(ErrorCodeMalformedBatch, message, details)
}

// ToJSON serializes the error to JSON
func (e *TransportError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes a transport error from JSON
func FromJSON(data []byte) (*TransportError, error) {
	var err TransportError
	if unmarshalErr := json.Unmarshal(data, &err); unmarshalErr != nil {
		return nil, unmarshalErr
	}
	return &err, nil
}
