package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func readAuditEntries(t *testing.T, dir string) []AuditEntry {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad audit line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan audit log: %v", err)
	}
	return entries
}

func TestNewAuditLogger_EmptyDir(t *testing.T) {
	if a := NewAuditLogger(""); a != nil {
		t.Error("expected nil logger for empty dir")
	}
}

func TestAuditLogger_NilSafe(t *testing.T) {
	var a *AuditLogger
	a.Log(AuditEntry{Tool: "bloom_status"})
	if err := a.Close(); err != nil {
		t.Errorf("Close on nil logger: %v", err)
	}
}

func TestAuditLogger_WritesJSONL(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditLogger(dir)
	if a == nil {
		t.Fatal("NewAuditLogger returned nil")
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.Log(AuditEntry{Timestamp: now, Tool: "bloom_step", Status: "success", Step: 3, Params: map[string]string{"steps": "3"}})
	a.Log(AuditEntry{Timestamp: now, Tool: "bloom_load", Status: "error", Error: "not found"})
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Writes after Close are dropped.
	a.Log(AuditEntry{Tool: "bloom_runs"})

	entries := readAuditEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Tool != "bloom_step" || entries[0].Step != 3 || entries[0].Params["steps"] != "3" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if !entries[0].Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", entries[0].Timestamp, now)
	}
	if entries[1].Status != "error" || entries[1].Error != "not found" {
		t.Errorf("second entry = %+v", entries[1])
	}

	info, err := os.Stat(filepath.Join(dir, AuditFile))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("audit file mode = %o, want 600", perm)
	}
}

func TestAuditLogger_Concurrent(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditLogger(dir)
	defer a.Close()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Log(AuditEntry{Tool: "bloom_status", Step: i})
		}()
	}
	wg.Wait()

	if got := len(readAuditEntries(t, dir)); got != 20 {
		t.Errorf("got %d entries, want 20", got)
	}
}

func TestSanitizeToolParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   map[string]string
	}{
		{
			name:   "nil",
			params: nil,
			want:   nil,
		},
		{
			name:   "safe values",
			params: map[string]any{"steps": 5, "phase": "bloom", "blooms": []int{2, 9}},
			want:   map[string]string{"steps": "5", "phase": "bloom", "blooms": "[2 9]", "_param_count": "3"},
		},
		{
			name:   "presence only",
			params: map[string]any{"name": "secret experiment", "run": "abc"},
			want:   map[string]string{"name": "(set)", "run": "(set)", "_param_count": "2"},
		},
		{
			name:   "unknown dropped",
			params: map[string]any{"token": "x", "horizon": 10},
			want:   map[string]string{"horizon": "10", "_param_count": "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeToolParams(tt.params)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("sanitizeToolParams (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAuditTool_RecordsCalls(t *testing.T) {
	server, dir := setupTestServer(t, false)
	ctx := context.Background()

	if _, _, err := server.handleStep(ctx, nil, StepInput{Steps: 2}); err != nil {
		t.Fatalf("handleStep failed: %v", err)
	}
	if _, _, err := server.handleTransition(ctx, nil, TransitionInput{Phase: "dormant"}); err == nil {
		t.Fatal("expected transition error")
	}
	if _, _, err := server.handleSave(ctx, nil, SaveInput{Name: "private"}); !errors.Is(err, ErrNoStore) {
		t.Fatalf("save err = %v, want ErrNoStore", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries := readAuditEntries(t, filepath.Join(dir, "logs"))
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	step := entries[0]
	if step.Tool != "bloom_step" || step.Status != "success" || step.Step != 2 || step.Params["steps"] != "2" {
		t.Errorf("step entry = %+v", step)
	}
	transition := entries[1]
	if transition.Tool != "bloom_transition" || transition.Status != "error" || transition.Error == "" {
		t.Errorf("transition entry = %+v", transition)
	}
	if transition.Params["phase"] != "dormant" {
		t.Errorf("transition params = %v", transition.Params)
	}
	save := entries[2]
	if save.Params["name"] != "(set)" {
		t.Errorf("save name logged as %q, want (set)", save.Params["name"])
	}
}
