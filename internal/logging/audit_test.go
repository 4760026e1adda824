package logging

import (
	"strings"
	"testing"
)

func TestAuditEventLifecycle(t *testing.T) {
	event := NewAuditEvent(CredentialRefresh, "refresh", StatusSuccess).
		WithUserID("user-1").
		WithIPAddress("127.0.0.1").
		WithResource("/api/v1/refresh").
		WithSeverity(SeverityInfo).
		WithDetails(map[string]interface{}{"platform": "youtube"})

	if event.UserID != "user-1" || event.IPAddress != "127.0.0.1" {
		t.Fatalf("expected user and ip to be set")
	}
	if event.Resource != "/api/v1/refresh" || event.Severity != SeverityInfo {
		t.Fatalf("expected resource and severity to be set")
	}
	if event.ID == "" {
		t.Fatalf("expected generated event id")
	}

	event.WithError("provider rejected grant")
	if event.Status != StatusFailure {
		t.Fatalf("expected status to be failure")
	}
	if event.ErrorMessage != "provider rejected grant" {
		t.Fatalf("expected error message")
	}

	jsonStr := event.ToJSON()
	if !strings.Contains(jsonStr, "refresh") {
		t.Fatalf("expected json output to contain action")
	}

	parsed, err := ParseAuditEvent(jsonStr)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if parsed.Action != event.Action {
		t.Fatalf("expected parsed action to match")
	}
	if parsed.EventType != CredentialRefresh {
		t.Fatalf("expected parsed event type to match")
	}
}

func TestAuditEventJSONErrors(t *testing.T) {
	event := NewAuditEvent(APIAccess, "call", StatusSuccess)
	event.Details = map[string]interface{}{"bad": func() {}}
	jsonStr := event.ToJSON()
	if !strings.Contains(jsonStr, "failed to marshal audit event") {
		t.Fatalf("expected marshal failure message")
	}

	if _, err := ParseAuditEvent("{invalid json"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEventTypeFromString(t *testing.T) {
	if EventTypeFromString(string(AuthFailure)) != AuthFailure {
		t.Fatalf("expected auth failure event type")
	}
	if EventTypeFromString(string(CredentialDisconnect)) != CredentialDisconnect {
		t.Fatalf("expected credential disconnect event type")
	}
	if EventTypeFromString("made-up") != APIAccess {
		t.Fatalf("expected fallback event type")
	}
}
