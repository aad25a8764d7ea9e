package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditFile is the audit log written inside the audit directory.
const AuditFile = "audit.jsonl"

// AuditEntry represents a single audit log entry for an MCP tool invocation.
// It captures metadata about the call without echoing free-form input.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Step       int               `json:"step"` // engine step after the call
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger writes audit entries to a JSONL file. It is safe for
// concurrent use. A nil AuditLogger is safe to use; all methods are no-ops
// on nil receiver.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger creates an audit logger writing to dir/audit.jsonl.
// If the file cannot be created, a warning is printed to stderr and nil is
// returned (non-fatal).
func NewAuditLogger(dir string) *AuditLogger {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", dir, err)
		return nil
	}

	path := filepath.Join(dir, AuditFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log appends entry as a single JSON line. Safe to call on nil receiver.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return // silently skip malformed entries
	}
	data = append(data, '\n')
	_, _ = a.file.Write(data)
}

// Close closes the audit log file. Safe to call on nil receiver.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// sanitizeToolParams extracts safe metadata from tool parameters.
//
// Parameters are classified into three categories:
//   - Safe-value params: both key and value are safe to log (e.g., "steps", "phase")
//   - Presence-only params: key is logged but value is replaced with "(set)"
//   - Unknown params: not logged at all
//
// A "_param_count" key is always included to indicate how many params were provided.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	safeValueParams := map[string]bool{
		"steps":    true,
		"strength": true,
		"phase":    true,
		"metric":   true,
		"horizon":  true,
		"blooms":   true,
	}

	// Run names and ids are user-chosen; log only that they were given.
	presenceOnlyParams := map[string]bool{
		"name":     true,
		"run":      true,
		"schedule": true,
	}

	result := make(map[string]string)
	for key, val := range params {
		if safeValueParams[key] {
			result[key] = fmt.Sprintf("%v", val)
		} else if presenceOnlyParams[key] {
			result[key] = "(set)"
		}
	}

	result["_param_count"] = fmt.Sprintf("%d", len(params))

	return result
}

// auditTool logs a tool invocation to the audit log.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Step:       s.currentStep(),
		Params:     params,
	})
}
