package simulation_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/intentsim/bloomcascade/internal/logging"
	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/simulation"
)

func smallConfig(agents int) *simulation.Config {
	cfg := simulation.DefaultConfig()
	cfg.Agents.Count = agents
	cfg.Bounds.Width, cfg.Bounds.Height = 60, 60
	cfg.CascadeDelay = 10
	return &cfg
}

// TestE2EShortRun runs 50 agents for 10 steps with no schedule and checks
// the basic contracts of every snapshot.
func TestE2EShortRun(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:   "short-run",
		Config: smallConfig(50),
		Steps:  10,
	})

	if len(result.Snapshots) != 10 {
		t.Fatalf("got %d snapshots, want 10", len(result.Snapshots))
	}
	if result.Snapshots[0].Step != 1 {
		t.Errorf("first step = %d, want 1", result.Snapshots[0].Step)
	}
	simulation.AssertStepsIncreasing(t, result)
	simulation.AssertMetricsBounded(t, result)
	simulation.AssertAgentsInBounds(t, result)
	simulation.AssertNeighborsConsistent(t, result)
	for _, p := range result.Phases() {
		if p != phase.Initialization {
			t.Errorf("phase %s without a schedule", p)
		}
	}
}

// TestE2ECascade runs a full bloom cascade: bloom at 5, pruning at 15,
// resonance at 25 and stable from 50.
func TestE2ECascade(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:   "cascade",
		Config: smallConfig(40),
		Steps:  60,
		Blooms: []int{5},
	})

	simulation.AssertStepsIncreasing(t, result)
	simulation.AssertMetricsBounded(t, result)
	simulation.AssertPruningNeverGrows(t, result)
	simulation.AssertNeighborsConsistent(t, result)

	simulation.AssertPhaseAt(t, result, 5, phase.Initialization)
	simulation.AssertPhaseAt(t, result, 6, phase.Bloom)
	simulation.AssertPhaseAt(t, result, 16, phase.Pruning)
	simulation.AssertPhaseAt(t, result, 26, phase.Resonance)
	simulation.AssertPhaseAt(t, result, 51, phase.Stable)
	simulation.AssertPhaseAt(t, result, 60, phase.Stable)

	before := result.Snapshots[4].ConnectionCount
	if grown := result.Snapshots[5].ConnectionCount; grown < before {
		t.Errorf("bloom entry lost connections: %d -> %d", before, grown)
	}

	if got := result.Engine.Phase(); got != phase.Stable {
		t.Errorf("final phase = %s, want stable", got)
	}
	cp := result.Engine.CriticalPeriod()
	if cp <= 0 || cp >= 1 {
		t.Errorf("critical period %v should have decayed below 1", cp)
	}
}

// TestE2EEventsLogged checks that phase transitions reach the event log.
func TestE2EEventsLogged(t *testing.T) {
	r := simulation.NewRunner(t)
	r.Run(simulation.Scenario{
		Name:   "events",
		Config: smallConfig(20),
		Steps:  30,
		Blooms: []int{2},
	})

	f, err := os.Open(filepath.Join(r.Dir(), logging.EventsFile))
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()

	var phases []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("bad JSONL line %q: %v", sc.Text(), err)
		}
		if entry["event"] == "phase_transition" {
			phases = append(phases, entry["phase"].(string))
		}
	}
	if len(phases) < 2 || phases[0] != "bloom" || phases[1] != "pruning" {
		t.Errorf("phase events = %v, want bloom then pruning first", phases)
	}
}

// TestE2EManualBloom triggers a bloom mid-run through BeforeStep.
func TestE2EManualBloom(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:   "manual-bloom",
		Config: smallConfig(30),
		Steps:  8,
		BeforeStep: func(step int, e *simulation.Engine) {
			if step == 3 {
				if err := e.TriggerBloom(0.5); err != nil {
					t.Errorf("TriggerBloom: %v", err)
				}
			}
		},
		Schedule: phase.Schedule{6: phase.Pruning},
	})

	simulation.AssertPhaseAt(t, result, 3, phase.Initialization)
	simulation.AssertPhaseAt(t, result, 4, phase.Bloom)
	simulation.AssertPhaseAt(t, result, 7, phase.Pruning)
	simulation.AssertPruningNeverGrows(t, result)
	simulation.AssertNeighborsConsistent(t, result)
}
