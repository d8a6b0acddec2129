package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/example/groupsync/internal/realtime"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %q", buf.String())
	}
	buf.Reset()
	return entry
}

func TestRoomLogger_ScopesToRoomAndUser(t *testing.T) {
	var buf bytes.Buffer
	requestLogger := slog.New(slog.NewJSONHandler(&buf, nil)).With("request_id", "req-1")
	ctx := ContextWithLogger(context.Background(), requestLogger)
	key := realtime.GroupRoom("G")

	roomLogger(ctx, nil, key, realtime.Identity{}).Info("anonymous")
	entry := decodeLogLine(t, &buf)
	if entry["request_id"] != "req-1" || entry["handler"] != "RealtimeHandler" || entry["operation"] != "Serve" {
		t.Fatalf("expected request scope to be kept, got %v", entry)
	}
	if entry["namespace"] != "group" || entry["object_id"] != "G" {
		t.Fatalf("expected room attributes, got %v", entry)
	}
	if _, ok := entry["user_id"]; ok {
		t.Fatalf("did not expect user_id for an anonymous identity, got %v", entry)
	}

	roomLogger(ctx, nil, key, realtime.Identity{UserID: "alice"}).Info("identified")
	entry = decodeLogLine(t, &buf)
	if entry["user_id"] != "alice" {
		t.Fatalf("expected user_id, got %v", entry)
	}
}

func TestHandlerLogger_FallsBackWithoutRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	fallback := slog.New(slog.NewJSONHandler(&buf, nil))

	handlerLogger(context.Background(), fallback, "GroupHandler", "", "group_id", "G").Info("listed")
	entry := decodeLogLine(t, &buf)
	if entry["handler"] != "GroupHandler" || entry["group_id"] != "G" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["operation"]; ok {
		t.Fatalf("empty operation should be omitted, got %v", entry)
	}
}
