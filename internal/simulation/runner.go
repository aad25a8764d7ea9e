package simulation

import (
	"context"
	"testing"

	"github.com/intentsim/bloomcascade/internal/logging"
	"github.com/intentsim/bloomcascade/internal/phase"
)

// Runner executes scenarios against a real engine. Engine events are
// written to an events.jsonl file in a per-test temporary directory.
type Runner struct {
	t   *testing.T
	dir string
}

// NewRunner creates a runner with an isolated event-log directory.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{t: t, dir: t.TempDir()}
}

// Dir returns the directory holding the runner's event log.
func (r *Runner) Dir() string { return r.dir }

// Run executes the scenario and returns the collected snapshots.
func (r *Runner) Run(scenario Scenario) Result {
	r.t.Helper()
	ctx := context.Background()

	cfg := DefaultConfig()
	if scenario.Config != nil {
		cfg = *scenario.Config
	}
	e, err := New(cfg)
	if err != nil {
		r.t.Fatalf("Run(%s): New: %v", scenario.Name, err)
	}
	events := logging.NewEventLogger(r.dir, "debug")
	r.t.Cleanup(events.Close)
	e.SetLogger(nil, events)

	schedule := scenario.schedule(e.Config().CascadeDelay)
	result := Result{Name: scenario.Name, Engine: e}

	if scenario.BeforeStep == nil {
		snaps, err := e.Run(ctx, scenario.Steps, schedule)
		if err != nil {
			r.t.Fatalf("Run(%s): %v", scenario.Name, err)
		}
		result.Snapshots = snaps
		return result
	}

	for i := range scenario.Steps {
		scenario.BeforeStep(i, e)
		var step phase.Schedule
		if p, ok := schedule[i]; ok {
			step = phase.Schedule{0: p}
		}
		snaps, err := e.Run(ctx, 1, step)
		if err != nil {
			r.t.Fatalf("Run(%s): step %d: %v", scenario.Name, i, err)
		}
		result.Snapshots = append(result.Snapshots, snaps...)
	}
	return result
}
