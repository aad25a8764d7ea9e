package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"warn", "warn", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Trace", "Trace", LevelTrace},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLookupLevel_Unknown(t *testing.T) {
	if _, err := LookupLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := LookupLevel(" debug "); err != nil {
		t.Errorf("LookupLevel with spaces: %v", err)
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
		{"warn filters info", "warn", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "snapshot")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("trace level not labelled: %q", buf.String())
	}
}

func TestNewEventLogger_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	el := NewEventLogger(dir, "info")

	if el != nil {
		t.Error("expected nil EventLogger at info level")
	}

	// Nil logger should still be safe to use
	el.Log("phase_transition", map[string]any{"step": 1})

	if _, err := os.Stat(filepath.Join(dir, EventsFile)); err == nil {
		t.Errorf("%s should not exist at info level", EventsFile)
	}
}

func TestNewEventLogger_DebugLevel(t *testing.T) {
	dir := t.TempDir()
	el := NewEventLogger(dir, "debug")
	defer el.Close()

	el.Log("prune", map[string]any{"removed": 3, "rate": 0.25})

	data, err := os.ReadFile(filepath.Join(dir, EventsFile))
	if err != nil {
		t.Fatalf("failed to read %s: %v", EventsFile, err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	if entry["event"] != "prune" {
		t.Errorf("event = %v, want prune", entry["event"])
	}
	if entry["rate"] != 0.25 {
		t.Errorf("rate = %v, want 0.25", entry["rate"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in event entry")
	}
}

func TestEventLogger_MultipleWrites(t *testing.T) {
	var buf bytes.Buffer
	el := NewEventWriter(&buf)

	el.Log("first", nil)
	el.Log("second", map[string]any{"step": 2})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var first, second map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if first["event"] != "first" || second["event"] != "second" {
		t.Errorf("events = %v, %v", first["event"], second["event"])
	}
}

func TestEventLogger_NilSafety(t *testing.T) {
	var el *EventLogger
	el.Log("should_not_panic", nil)
	el.Close()
}

func TestEventLogger_DoesNotMutateCallerMap(t *testing.T) {
	el := NewEventWriter(&bytes.Buffer{})
	fields := map[string]any{"step": 1}
	el.Log("bloom", fields)

	if len(fields) != 1 {
		t.Errorf("Log() mutated caller's map: %v", fields)
	}
}

func TestEventLogger_LogAfterClose(t *testing.T) {
	var buf bytes.Buffer
	el := NewEventWriter(&buf)
	el.Close()
	el.Log("after_close", nil)
	if buf.Len() != 0 {
		t.Errorf("wrote after close: %q", buf.String())
	}
}

func TestNewEventLogger_CreatesDir(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "sub", "dir")

	el := NewEventLogger(nested, "trace")
	if el == nil {
		t.Fatal("expected non-nil EventLogger when dir needs creation")
	}
	defer el.Close()

	el.Log("dir_create_test", nil)

	info, err := os.Stat(filepath.Join(nested, EventsFile))
	if err != nil {
		t.Fatalf("%s should exist after dir creation: %v", EventsFile, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}
