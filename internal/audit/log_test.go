package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"devforge.org/internal/obs"
	"devforge.org/internal/principal"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = principal.ContextWith(ctx, principal.Principal{
		Subject: "user-42", Role: principal.RoleSchoolAdmin, SchoolID: "school-1",
	})

	if err := LogEvent(ctx, "auth.login", map[string]any{"email_domain": "school1.test"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "auth.login" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["subject"] != "user-42" {
		t.Fatalf("unexpected subject: %v", entry["subject"])
	}
	if entry["school_id"] != "school-1" {
		t.Fatalf("unexpected school id: %v", entry["school_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["email_domain"] != "school1.test" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}
