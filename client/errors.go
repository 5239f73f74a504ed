package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dan-strohschein/arangodb-drivers/protocol"
)

// Client error codes
const (
	CodeMalformedResponse = "E_MALFORMED_RESPONSE"
	CodeUnknownPart       = "E_UNKNOWN_PART"
	CodeBatchOverflow     = "E_BATCH_OVERFLOW"
	CodeDuplicatePart     = "E_DUPLICATE_PART"
	CodeInvalidRestrict   = "E_INVALID_RESTRICT"
	CodeInvalidBindVar    = "E_INVALID_BIND_VAR"
	CodeNotProcessed      = "E_NOT_PROCESSED"
	CodeEmptyBatch        = "E_EMPTY_BATCH"
	CodeInvalidState      = "E_INVALID_STATE"
	CodeAlreadyExecuted   = "E_ALREADY_EXECUTED"
	CodeInvalidDocument   = "E_INVALID_DOCUMENT"
	CodeCaptureActive     = "E_CAPTURE_ACTIVE"
	CodeInvalidOption     = "E_INVALID_OPTION"
)

// ConnectionError means the server could not be reached at all.
type ConnectionError struct {
	Code        string                 `json:"code"`
	Type        string                 `json:"type"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details"`
	Cause       error                  `json:"cause,omitempty"`
	StackTrace  []string               `json:"stack_trace,omitempty"`
	Timestamp   time.Time              `json:"timestamp,omitempty"`
	GoroutineID int                    `json:"goroutine_id,omitempty"`
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode setting.
// When debugMode=false: returns simple "CODE: message" format.
// When debugMode=true: returns full JSON with stack trace, timestamp, goroutine ID.
func (e *ConnectionError) FormatError(debugMode bool) string {
	if !debugMode {
		return shortFormat(e.Code, e.Message, e.Cause)
	}

	errorData := debugData(e.Code, e.Type, e.Message, e.Details, e.Cause, e.StackTrace, e.Timestamp)
	if e.GoroutineID > 0 {
		errorData["goroutine_id"] = e.GoroutineID
	}
	return indentJSON(errorData)
}

// Unwrap returns the underlying cause error for errors.Is and errors.As compatibility.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ClientError is a local contract violation: a malformed response, an
// unknown batch part, an invalid option. These are never retried.
type ClientError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *ClientError) FormatError(debugMode bool) string {
	if !debugMode {
		return shortFormat(e.Code, e.Message, e.Cause)
	}
	return indentJSON(debugData(e.Code, e.Type, e.Message, e.Details, e.Cause, e.StackTrace, e.Timestamp))
}

// Unwrap returns the underlying cause error.
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ServerError is a failure reported by the server: an HTTP status outside
// 200..399 or a body with "error": true.
type ServerError struct {
	Code       string    `json:"code"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	HTTPCode   int       `json:"http_code"`
	ErrorNum   int       `json:"error_num,omitempty"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	Body       []byte    `json:"-"`
	StackTrace []string  `json:"stack_trace,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *ServerError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.ErrorNum != 0 {
			return fmt.Sprintf("%s: %s (HTTP %d, errorNum %d)", e.Code, e.Message, e.HTTPCode, e.ErrorNum)
		}
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.HTTPCode)
	}

	errorData := debugData(e.Code, e.Type, e.Message, nil, nil, e.StackTrace, e.Timestamp)
	errorData["http_code"] = e.HTTPCode
	if e.ErrorNum != 0 {
		errorData["error_num"] = e.ErrorNum
	}
	if e.Method != "" {
		errorData["request"] = e.Method + " " + e.Path
	}
	if len(e.Body) > 0 {
		errorData["body"] = string(e.Body)
	}
	return indentJSON(errorData)
}

// IsNotFound reports a 404 response.
func (e *ServerError) IsNotFound() bool { return e.HTTPCode == http.StatusNotFound }

// IsConflict reports a 409 response.
func (e *ServerError) IsConflict() bool { return e.HTTPCode == http.StatusConflict }

// IsPreconditionFailed reports a 412 response, a revision mismatch.
func (e *ServerError) IsPreconditionFailed() bool {
	return e.HTTPCode == http.StatusPreconditionFailed
}

// TransactionError represents transaction-related errors.
type TransactionError struct {
	Code          string                 `json:"code"`
	Type          string                 `json:"type"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details"`
	TransactionID string                 `json:"transaction_id,omitempty"`
	State         string                 `json:"state,omitempty"`
	Cause         error                  `json:"cause,omitempty"`
	StackTrace    []string               `json:"stack_trace,omitempty"`
	Timestamp     time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *TransactionError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *TransactionError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (TX: %s, caused by: %s)", e.Code, e.Message, e.TransactionID, e.Cause.Error())
		}
		return fmt.Sprintf("%s: %s (TX: %s)", e.Code, e.Message, e.TransactionID)
	}

	errorData := debugData(e.Code, e.Type, e.Message, e.Details, e.Cause, e.StackTrace, e.Timestamp)
	if e.TransactionID != "" {
		errorData["transaction_id"] = e.TransactionID
	}
	if e.State != "" {
		errorData["state"] = e.State
	}
	return indentJSON(errorData)
}

// Unwrap returns the underlying cause error.
func (e *TransactionError) Unwrap() error {
	return e.Cause
}

func shortFormat(code, message string, cause error) string {
	if cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", code, message, cause.Error())
	}
	return fmt.Sprintf("%s: %s", code, message)
}

func debugData(code, typ, message string, details map[string]interface{}, cause error, stack []string, ts time.Time) map[string]interface{} {
	errorData := map[string]interface{}{
		"code":    code,
		"type":    typ,
		"message": message,
	}
	if len(details) > 0 {
		errorData["details"] = details
	}
	if cause != nil {
		errorData["cause"] = map[string]interface{}{"message": cause.Error()}
	}
	if len(stack) > 0 {
		errorData["stack_trace"] = stack
	}
	if !ts.IsZero() {
		errorData["timestamp"] = ts.Format(time.RFC3339Nano)
	}
	return errorData
}

func indentJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// newConnectionError wraps a transport failure.
func newConnectionError(method, path string, cause error) *ConnectionError {
	code := "E_CONNECTION"
	var te *protocol.TransportError
	if errors.As(cause, &te) && te.Code == protocol.ErrorCodeTimeout {
		code = "E_TIMEOUT"
	}
	return &ConnectionError{
		Code:    code,
		Type:    "CONNECTION_ERROR",
		Message: fmt.Sprintf("%s %s: server unreachable", method, path),
		Details: map[string]interface{}{
			"method": method,
			"path":   path,
		},
		Cause:       cause,
		StackTrace:  captureStackTrace(),
		Timestamp:   time.Now(),
		GoroutineID: getGoroutineID(),
	}
}

// newServerError builds a ServerError from an extracted failure.
func newServerError(method, path string, failure *protocol.ServerFailure) *ServerError {
	return &ServerError{
		Code:       "E_SERVER",
		Type:       "SERVER_ERROR",
		Message:    failure.Message,
		HTTPCode:   failure.HTTPCode,
		ErrorNum:   failure.ErrorNum,
		Method:     method,
		Path:       path,
		Body:       failure.Body,
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

func newClientError(code, message string, details map[string]interface{}) *ClientError {
	return &ClientError{
		Code:       code,
		Type:       "CLIENT_ERROR",
		Message:    message,
		Details:    details,
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// ErrMalformedResponse creates an error for a body that could not be decoded.
func ErrMalformedResponse(message string, cause error) *ClientError {
	err := newClientError(CodeMalformedResponse, message, nil)
	err.Cause = cause
	return err
}

// ErrUnknownPart creates an error for a lookup of a part that does not exist.
func ErrUnknownPart(id string) *ClientError {
	return newClientError(CodeUnknownPart, fmt.Sprintf("batch part %q does not exist", id), map[string]interface{}{
		"part": id,
	})
}

// ErrBatchOverflow creates an error for a capture beyond the fixed batch size.
func ErrBatchOverflow(size int) *ClientError {
	return newClientError(CodeBatchOverflow, "index invalid or out of range", map[string]interface{}{
		"size": size,
	})
}

// ErrDuplicatePart creates an error for a part id used twice in one batch.
func ErrDuplicatePart(id string) *ClientError {
	return newClientError(CodeDuplicatePart, fmt.Sprintf("batch part id %q is already in use", id), map[string]interface{}{
		"part": id,
	})
}

// ErrInvalidRestrict creates an error for an unusable export restriction.
func ErrInvalidRestrict(message string) *ClientError {
	return newClientError(CodeInvalidRestrict, message, nil)
}

// ErrInvalidBindVar creates an error for a bind variable of an unsupported type.
func ErrInvalidBindVar(name, path string, value interface{}) *ClientError {
	return newClientError(CodeInvalidBindVar,
		fmt.Sprintf("bind variable %q has unsupported value of type %T at %s", name, value, path),
		map[string]interface{}{
			"name": name,
			"path": path,
			"type": fmt.Sprintf("%T", value),
		})
}

// ErrNotProcessed creates an error for response access before Process.
func ErrNotProcessed(id string) *ClientError {
	return newClientError(CodeNotProcessed, fmt.Sprintf("batch part %q has no response, the batch was not processed", id), map[string]interface{}{
		"part": id,
	})
}

// ErrEmptyBatch creates an error for processing a batch without parts.
func ErrEmptyBatch() *ClientError {
	return newClientError(CodeEmptyBatch, "batch has no captured parts", nil)
}

// ErrInvalidState creates an error for an illegal batch state transition.
func ErrInvalidState(operation string, from, to BatchState) *ClientError {
	return newClientError(CodeInvalidState,
		fmt.Sprintf("%s: cannot move batch from %s to %s", operation, from, to),
		map[string]interface{}{
			"operation": operation,
			"from":      from.String(),
			"to":        to.String(),
		})
}

// ErrAlreadyExecuted creates an error for reuse of an executed statement.
func ErrAlreadyExecuted(query string) *ClientError {
	return newClientError(CodeAlreadyExecuted, "statement was already executed", map[string]interface{}{
		"query": query,
	})
}

// ErrInvalidDocument creates an error for a bad document attribute.
func ErrInvalidDocument(message string, details map[string]interface{}) *ClientError {
	return newClientError(CodeInvalidDocument, message, details)
}

// ErrCaptureActive creates an error when a second batch tries to capture on
// a connection that is already capturing.
func ErrCaptureActive(activeID string) *ClientError {
	return newClientError(CodeCaptureActive, "connection is already capturing for another batch", map[string]interface{}{
		"batch": activeID,
	})
}

// ErrInvalidOption creates an error for a rejected option value.
func ErrInvalidOption(name string, value interface{}, reason string) *ClientError {
	return newClientError(CodeInvalidOption, fmt.Sprintf("invalid option %s: %s", name, reason), map[string]interface{}{
		"option": name,
		"value":  fmt.Sprintf("%v", value),
	})
}

// ErrTransactionFinished creates an error for use of a committed or aborted transaction.
func ErrTransactionFinished(id, state string) *TransactionError {
	return &TransactionError{
		Code:          "E_TX_FINISHED",
		Type:          "TRANSACTION_ERROR",
		Message:       fmt.Sprintf("transaction is already %s", state),
		TransactionID: id,
		State:         state,
		StackTrace:    captureStackTrace(),
		Timestamp:     time.Now(),
	}
}

// IsNotFound reports whether err is a server 404.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.IsNotFound()
}

// IsConflict reports whether err is a server 409.
func IsConflict(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.IsConflict()
}

// IsPreconditionFailed reports whether err is a server 412.
func IsPreconditionFailed(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.IsPreconditionFailed()
}

// IsClientError reports whether err is a local contract violation, optionally
// with one of the given codes.
func IsClientError(err error, codes ...string) bool {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if ce.Code == c {
			return true
		}
	}
	return false
}

// IsConnectionError reports whether err means the server could not be reached.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// captureStackTrace captures the current stack trace for error reporting.
func captureStackTrace() []string {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(3, pcs) // Skip captureStackTrace, the error constructor, and runtime.Callers

	frames := make([]string, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := callersFrames.Next()
		frames = append(frames, fmt.Sprintf("%s (%s:%d)", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}
	return frames
}

// getGoroutineID extracts the goroutine ID for debugging.
func getGoroutineID() int {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Stack trace format: "goroutine <id> [<status>]:"
	var id int
	fmt.Sscanf(string(buf[:n]), "goroutine %d ", &id)
	return id
}

// FormatError is a helper to format any error with debug mode support.
func FormatError(err error, debugMode bool) string {
	if err == nil {
		return ""
	}

	type debugFormatter interface {
		FormatError(bool) string
	}

	var formatter debugFormatter
	if errors.As(err, &formatter) {
		return formatter.FormatError(debugMode)
	}
	return err.Error()
}
