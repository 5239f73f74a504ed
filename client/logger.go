package client

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a string to a LogLevel. Unknown names map to INFO.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value interface{}
}

// Helper functions for creating fields
func String(key, val string) Field          { return Field{Key: key, Value: val} }
func Int(key string, val int) Field         { return Field{Key: key, Value: val} }
func Int64(key string, val int64) Field     { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }
func Bool(key string, val bool) Field       { return Field{Key: key, Value: val} }
func Duration(key string, val time.Duration) Field {
	return Field{Key: key, Value: val.String()}
}
func Error(key string, err error) Field {
	if err == nil {
		return Field{Key: key, Value: nil}
	}
	return Field{Key: key, Value: err.Error()}
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// jsonLogger writes one JSON object per line.
type jsonLogger struct {
	logger     *log.Logger
	minLevel   LogLevel
	baseFields []Field
}

// NewLogger creates a JSON lines logger with the specified level and output.
func NewLogger(level string, output io.Writer) Logger {
	if output == nil {
		output = os.Stdout
	}

	return &jsonLogger{
		logger:   log.New(output, "", 0),
		minLevel: ParseLogLevel(level),
	}
}

// NewDefaultLogger creates a logger with INFO level writing to stdout.
func NewDefaultLogger() Logger {
	return NewLogger("INFO", os.Stdout)
}

func (l *jsonLogger) Debug(msg string, fields ...Field) {
	if l.minLevel <= DEBUG {
		l.log(DEBUG, msg, fields...)
	}
}

func (l *jsonLogger) Info(msg string, fields ...Field) {
	if l.minLevel <= INFO {
		l.log(INFO, msg, fields...)
	}
}

func (l *jsonLogger) Warn(msg string, fields ...Field) {
	if l.minLevel <= WARN {
		l.log(WARN, msg, fields...)
	}
}

func (l *jsonLogger) Error(msg string, fields ...Field) {
	if l.minLevel <= ERROR {
		l.log(ERROR, msg, fields...)
	}
}

func (l *jsonLogger) WithFields(fields ...Field) Logger {
	return &jsonLogger{
		logger:     l.logger,
		minLevel:   l.minLevel,
		baseFields: appendFields(l.baseFields, fields),
	}
}

func (l *jsonLogger) log(level LogLevel, msg string, fields ...Field) {
	logMap := make(map[string]interface{}, len(l.baseFields)+len(fields)+3)
	logMap["timestamp"] = time.Now().Format(time.RFC3339Nano)
	logMap["level"] = level.String()
	logMap["message"] = msg
	for _, field := range redactSensitiveFields(appendFields(l.baseFields, fields)) {
		logMap[field.Key] = field.Value
	}

	jsonBytes, err := json.Marshal(logMap)
	if err != nil {
		l.logger.Printf(`{"level":"ERROR","message":"failed to marshal log","error":%q}`, err.Error())
		return
	}
	l.logger.Println(string(jsonBytes))
}

func appendFields(base, extra []Field) []Field {
	out := make([]Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"passwd":        true,
	"token":         true,
	"jwt":           true,
	"secret":        true,
	"authorization": true,
	"auth":          true,
}

// redactSensitiveFields masks values for sensitive keys.
func redactSensitiveFields(fields []Field) []Field {
	result := make([]Field, len(fields))
	for i, field := range fields {
		if sensitiveKeys[strings.ToLower(field.Key)] {
			result[i] = Field{Key: field.Key, Value: "[REDACTED]"}
		} else {
			result[i] = field
		}
	}
	return result
}

// logrusLogger adapts a *logrus.Logger to Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps an existing logrus logger. A nil logger uses
// logrus.StandardLogger().
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) with(fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	data := make(logrus.Fields, len(fields))
	for _, f := range redactSensitiveFields(fields) {
		data[f.Key] = f.Value
	}
	return l.entry.WithFields(data)
}

func (l *logrusLogger) Debug(msg string, fields ...Field) { l.with(fields).Debug(msg) }
func (l *logrusLogger) Info(msg string, fields ...Field)  { l.with(fields).Info(msg) }
func (l *logrusLogger) Warn(msg string, fields ...Field)  { l.with(fields).Warn(msg) }
func (l *logrusLogger) Error(msg string, fields ...Field) { l.with(fields).Error(msg) }

func (l *logrusLogger) WithFields(fields ...Field) Logger {
	return &logrusLogger{entry: l.with(fields)}
}

// noopLogger implements Logger but does nothing.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, fields ...Field) {}
func (n *noopLogger) Info(msg string, fields ...Field)  {}
func (n *noopLogger) Warn(msg string, fields ...Field)  {}
func (n *noopLogger) Error(msg string, fields ...Field) {}
func (n *noopLogger) WithFields(fields ...Field) Logger { return n }

// NewNoopLogger creates a logger that discards all output.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

type contextKey string

const traceIDKey contextKey = "traceID"

// WithTraceID returns a context carrying a caller-chosen trace id. Requests
// issued with it log that id instead of a generated one.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// TraceIDFromContext returns the trace id stored by WithTraceID, or "".
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
