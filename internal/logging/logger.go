// Package logging provides leveled logging and event tracing for bloomcascade.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An EventLogger for structured JSONL simulation events (<dir>/events.jsonl)
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every step's
// snapshot is logged.
const LevelTrace = slog.LevelDebug - 4

// EventsFile is the name of the JSONL file written by EventLogger.
const EventsFile = "events.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace"
// (case-insensitive). Unknown values default to info.
func ParseLevel(s string) slog.Level {
	lvl, err := LookupLevel(s)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// LookupLevel is ParseLevel with an error for unknown names. The empty
// string means info.
func LookupLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "debug":
		return slog.LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// EventLogger writes structured simulation events (phase transitions,
// blooms, prune reports, training results) to a JSONL file. It is safe for
// concurrent use. A nil EventLogger is safe to use; all methods are no-ops
// on a nil receiver.
type EventLogger struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewEventLogger creates an event logger writing to dir/events.jsonl.
// At "info" level and above it returns nil and no file is created.
// At "debug" or "trace" level the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewEventLogger(dir string, level string) *EventLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &EventLogger{w: f, c: f}
}

// NewEventWriter returns an event logger writing to w. Close does not
// close w.
func NewEventWriter(w io.Writer) *EventLogger {
	return &EventLogger{w: w}
}

// Log writes one event as a single JSONL line with "event" and "time"
// fields added. The caller's map is not mutated.
func (el *EventLogger) Log(event string, fields map[string]any) {
	if el == nil || el.w == nil {
		return
	}

	entry := make(map[string]any, len(fields)+2)
	maps.Copy(entry, fields)
	entry["event"] = event
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	el.mu.Lock()
	defer el.mu.Unlock()
	if el.w != nil {
		_, _ = el.w.Write(data)
	}
}

// Close closes the underlying file. Safe to call on nil receiver.
func (el *EventLogger) Close() {
	if el == nil {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	if el.c != nil {
		el.c.Close()
	}
	el.w, el.c = nil, nil
}
