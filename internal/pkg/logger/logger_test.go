package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextLoggerReceivesFields(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := WithContext(context.Background(), &l)

	LogInfo(ctx, "points credited", "user_id", "u-1", "amount", 50, "dangling")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v; raw=%s", err, buf.String())
	}
	if entry["message"] != "points credited" {
		t.Fatalf("unexpected message %v", entry["message"])
	}
	if entry["user_id"] != "u-1" || entry["amount"] != float64(50) {
		t.Fatalf("missing fields in %v", entry)
	}
	if _, ok := entry["dangling"]; ok {
		t.Fatalf("odd trailing key must be ignored")
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected global logger")
	}
}
