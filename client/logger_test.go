package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func TestJSONLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("WARN", &buf).WithFields(String("database", "_system"))

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept", Int("parts", 3), Duration("elapsed", 2*time.Millisecond))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "WARN" || entry["message"] != "kept" {
		t.Errorf("unexpected entry %v", entry)
	}
	if entry["database"] != "_system" {
		t.Errorf("expected base field database, got %v", entry["database"])
	}
	if entry["parts"] != float64(3) {
		t.Errorf("expected parts=3, got %v", entry["parts"])
	}
	if entry["elapsed"] != "2ms" {
		t.Errorf("expected elapsed=2ms, got %v", entry["elapsed"])
	}
}

func TestJSONLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("DEBUG", &buf)
	logger.Info("auth", String("password", "hunter2"), String("Authorization", "bearer x"), String("user", "root"))

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "bearer x") {
		t.Errorf("sensitive values leaked: %s", out)
	}
	if !strings.Contains(out, "root") {
		t.Errorf("expected non-sensitive value, got %s", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"Error":   ERROR,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestLogrusLogger(t *testing.T) {
	base, hook := logrustest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)

	logger := NewLogrusLogger(base).WithFields(String("component", "batch"))
	logger.Debug("part captured", String("part", "0"), String("token", "abc"))
	logger.Error("process failed", Error("error", errors.New("boom")))

	entries := hook.AllEntries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.Level != logrus.DebugLevel || first.Message != "part captured" {
		t.Errorf("unexpected first entry %v %q", first.Level, first.Message)
	}
	if first.Data["component"] != "batch" || first.Data["part"] != "0" {
		t.Errorf("expected inherited and call fields, got %v", first.Data)
	}
	if first.Data["token"] != "[REDACTED]" {
		t.Errorf("expected token to be redacted, got %v", first.Data["token"])
	}

	last := hook.LastEntry()
	if last.Level != logrus.ErrorLevel || last.Data["error"] != "boom" {
		t.Errorf("unexpected last entry %v %v", last.Level, last.Data)
	}
}

func TestLogrusLoggerOnConnection(t *testing.T) {
	base, hook := logrustest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)

	conn, err := NewConnection(&ConnectionOptions{Logger: NewLogrusLogger(base), Transport: nil})
	if err != nil {
		t.Fatal(err)
	}
	conn.EnableDebugMode()

	found := false
	for _, e := range hook.AllEntries() {
		if e.Message == "debug mode enabled" && e.Data["database"] == "_system" {
			found = true
		}
	}
	if !found {
		t.Error("expected the connection to log through logrus with its database field")
	}
}

func TestTraceID(t *testing.T) {
	if TraceIDFromContext(context.Background()) != "" {
		t.Error("expected no trace id")
	}
	ctx := WithTraceID(context.Background(), "abc")
	if TraceIDFromContext(ctx) != "abc" {
		t.Errorf("expected abc, got %q", TraceIDFromContext(ctx))
	}
}
