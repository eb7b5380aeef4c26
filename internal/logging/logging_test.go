package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("component", "scheduler").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line at warn level, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["message"] != "kept" || entry["component"] != "scheduler" || entry["level"] != "warn" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatal("timestamp missing")
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "chatty"}, &buf)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "console"}, &buf)
	logger.Info().Msg("hello")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Fatalf("console format should not emit json: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("message missing: %q", buf.String())
	}
}
