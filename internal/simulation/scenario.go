package simulation

import (
	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/phase"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string

	// Config, when nil, is DefaultConfig.
	Config *Config

	// Steps is the number of steps to run.
	Steps int

	// Schedule maps run-relative steps to phases. Ignored when Blooms is
	// non-nil.
	Schedule phase.Schedule

	// Blooms, when non-nil, builds a cascade schedule over Steps.
	Blooms []int

	// BeforeStep, when non-nil, is called with the run-relative step index
	// before each step executes. Use it to trigger blooms or transitions
	// mid-run.
	BeforeStep func(step int, e *Engine)
}

// schedule returns the effective phase schedule.
func (s Scenario) schedule(delay int) phase.Schedule {
	if s.Blooms != nil {
		return phase.CascadeSchedule(s.Steps, s.Blooms, delay)
	}
	return s.Schedule
}

// Result captures the snapshots of a run and the engine that produced them.
type Result struct {
	Name      string
	Snapshots []metrics.Snapshot
	Engine    *Engine
}

// Phases returns the phase of every recorded snapshot.
func (r Result) Phases() []phase.Phase {
	out := make([]phase.Phase, len(r.Snapshots))
	for i, s := range r.Snapshots {
		out[i] = s.Phase
	}
	return out
}
