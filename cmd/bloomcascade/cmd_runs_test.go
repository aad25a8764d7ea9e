package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/intentsim/bloomcascade/internal/analysis"
	"github.com/intentsim/bloomcascade/internal/forecast"
	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/store"
)

func TestRunsLifecycle(t *testing.T) {
	dir := isolateEnv(t)
	cfgPath := writeTestConfig(t, dir)
	run := func(args ...string) string {
		t.Helper()
		out, err := execute(t, append(args, "--config", cfgPath)...)
		if err != nil {
			t.Fatalf("%v failed: %v", args, err)
		}
		return out
	}

	out := run("runs", "list")
	if !strings.Contains(out, "No stored runs.") {
		t.Errorf("empty list output %q", out)
	}

	var saved runResult
	decodeJSON(t, run("run", "--steps", "10", "--blooms", "1", "--save", "first cascade", "--json"), &saved)
	if saved.Run == nil || saved.Run.Name != "first-cascade" || saved.Run.Step != 10 {
		t.Fatalf("saved run = %+v", saved.Run)
	}
	id := saved.Run.ID

	var continued runResult
	decodeJSON(t, run("run", "--from", "first-cascade", "--steps", "5", "--update", "--json"), &continued)
	if continued.Run == nil || continued.Run.ID != id || continued.Step != 15 {
		t.Fatalf("continued run = %+v at step %d", continued.Run, continued.Step)
	}
	if continued.Snapshots[0].Step != 11 {
		t.Errorf("continuation started at step %d, want 11", continued.Snapshots[0].Step)
	}

	var listed struct {
		Runs  []store.Run `json:"runs"`
		Count int         `json:"count"`
	}
	decodeJSON(t, run("runs", "list", "--json"), &listed)
	if listed.Count != 1 || listed.Runs[0].ID != id || listed.Runs[0].Step != 15 {
		t.Errorf("listed = %+v", listed)
	}

	out = run("runs", "show", "first-cascade")
	for _, want := range []string{"Name:        first-cascade", "Step:        15", "Snapshots:   15"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	out = run("runs", "validate", id)
	if !strings.Contains(out, "Run is consistent.") {
		t.Errorf("validate output %q", out)
	}

	var fc struct {
		Run       string            `json:"run"`
		Horizon   int               `json:"horizon"`
		Forecasts []forecast.Result `json:"forecasts"`
	}
	decodeJSON(t, run("forecast", "first-cascade", "--metric", "complexity", "--horizon", "3", "--json"), &fc)
	if fc.Run != id || len(fc.Forecasts) != 1 {
		t.Fatalf("forecast = %+v", fc)
	}
	if got := fc.Forecasts[0]; got.Metric != metrics.Complexity || got.Status != forecast.StatusTrained || len(got.Values) != 3 {
		t.Errorf("complexity forecast = %+v", got)
	}

	decodeJSON(t, run("forecast", "first-cascade", "--json"), &fc)
	if len(fc.Forecasts) != 5 {
		t.Errorf("got %d forecasts for all metrics, want 5", len(fc.Forecasts))
	}

	out = run("forecast", "first-cascade", "--metric", "energy")
	if !strings.Contains(out, "energy") || !strings.Contains(out, "10 steps ahead") {
		t.Errorf("forecast text output %q", out)
	}

	var analyzed analysisResult
	decodeJSON(t, run("analyze", "first-cascade", "--json"), &analyzed)
	if analyzed.Classification.Status != analysis.ClassScored {
		t.Errorf("classification status = %s, want scored", analyzed.Classification.Status)
	}
	if analyzed.Summary == nil || analyzed.Anomalies == nil {
		t.Errorf("analysis = %+v", analyzed)
	}

	out = run("analyze", "first-cascade")
	for _, want := range []string{"Trajectory:", "profile:", "Summary:", "Anomalies:"} {
		if !strings.Contains(out, want) {
			t.Errorf("analyze output missing %q:\n%s", want, out)
		}
	}

	out = run("runs", "delete", "first-cascade")
	if !strings.Contains(out, "Deleted run first-cascade") {
		t.Errorf("delete output %q", out)
	}
	out = run("runs", "list")
	if !strings.Contains(out, "No stored runs.") {
		t.Errorf("list after delete %q", out)
	}
}

func TestRunsCmd_NotFound(t *testing.T) {
	dir := isolateEnv(t)
	cfgPath := writeTestConfig(t, dir)

	for _, args := range [][]string{
		{"runs", "show", "missing"},
		{"runs", "delete", "missing"},
		{"runs", "validate", "missing"},
		{"analyze", "missing"},
		{"forecast", "missing"},
		{"run", "--from", "missing", "--steps", "1"},
	} {
		_, err := execute(t, append(args, "--config", cfgPath)...)
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("%v: err = %v, want ErrNotFound", args, err)
		}
	}
}

func TestForecastCmd_InvalidMetric(t *testing.T) {
	dir := isolateEnv(t)
	cfgPath := writeTestConfig(t, dir)

	tests := []struct {
		args []string
		want error
	}{
		{[]string{"--metric", "mood"}, metrics.ErrUnknownMetric},
		{[]string{"--metric", "resonance_bonds"}, forecast.ErrUntrainable},
	}
	for _, tt := range tests {
		args := append([]string{"forecast", "any", "--config", cfgPath}, tt.args...)
		if _, err := execute(t, args...); !errors.Is(err, tt.want) {
			t.Errorf("%v: err = %v, want %v", tt.args, err, tt.want)
		}
	}

	if _, err := execute(t, "forecast", "any", "--config", cfgPath, "--horizon", "0"); err == nil {
		t.Error("expected error for zero horizon")
	}
}
