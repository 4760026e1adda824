package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelWarn))

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")
	logger.Error("error msg")

	entries := decodeEntries(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries above warn, got %d", len(entries))
	}
	if entries[0]["level"] != "warn" || entries[1]["level"] != "error" {
		t.Fatalf("unexpected levels: %v", entries)
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithService("testsvc"))

	logger.Info("scan finished", "platform", "linkedin", "buckets", 3)

	entries := decodeEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["service"] != "testsvc" {
		t.Fatalf("expected service testsvc, got %v", entry["service"])
	}
	fields, ok := entry["fields"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected fields map, got %v", entry["fields"])
	}
	if fields["platform"] != "linkedin" {
		t.Fatalf("expected platform field, got %v", fields)
	}
}

func TestLoggerCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf))

	ctx := WithCorrelationID(context.Background(), "corr-123")
	logger.InfoWithContext(ctx, "with context")
	logger.Info("explicit", "correlation_id", "corr-456")

	entries := decodeEntries(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["correlation_id"] != "corr-123" {
		t.Fatalf("expected context correlation id, got %v", entries[0]["correlation_id"])
	}
	if entries[1]["correlation_id"] != "corr-456" {
		t.Fatalf("expected explicit correlation id, got %v", entries[1]["correlation_id"])
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf))

	child := logger.With("platform", "youtube")
	child.Info("refresh ok", "credential_id", "cred-1")
	logger.Info("parent untouched")

	entries := decodeEntries(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	fields := entries[0]["fields"].(map[string]interface{})
	if fields["platform"] != "youtube" || fields["credential_id"] != "cred-1" {
		t.Fatalf("expected merged fields, got %v", fields)
	}
	if _, ok := entries[1]["fields"]; ok {
		t.Fatalf("parent logger must not inherit child fields: %v", entries[1])
	}
}

func TestCorrelationIDHelpers(t *testing.T) {
	ctx := context.Background()
	if GetCorrelationID(ctx) != "" {
		t.Fatalf("expected empty correlation id on fresh context")
	}

	id := MustGetCorrelationID(ctx)
	if !strings.HasPrefix(id, "req-") {
		t.Fatalf("expected generated correlation id with req- prefix, got %q", id)
	}

	ctx = WithCorrelationID(ctx, id)
	if MustGetCorrelationID(ctx) != id {
		t.Fatalf("expected existing correlation id to be returned")
	}
}
