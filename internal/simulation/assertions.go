package simulation

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/phase"
)

// AssertMetricsBounded asserts that every bounded metric of every snapshot
// lies in [0,1] and the counts are non-negative.
func AssertMetricsBounded(t *testing.T, result Result) {
	t.Helper()
	for _, s := range result.Snapshots {
		for _, m := range metrics.All() {
			v, _ := s.Value(m)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("AssertMetricsBounded: step %d: %s = %v", s.Step, m, v)
				continue
			}
			if m.Bounded() && (v < 0 || v > 1) {
				t.Errorf("AssertMetricsBounded: step %d: %s = %.6f not in [0, 1]", s.Step, m, v)
			}
		}
		if s.ResonanceBonds < 0 || s.MemoryInversions < 0 || s.ConnectionCount < 0 {
			t.Errorf("AssertMetricsBounded: step %d: negative count in %+v", s.Step, s)
		}
	}
}

// AssertStepsIncreasing asserts that snapshot steps are strictly
// increasing by one.
func AssertStepsIncreasing(t *testing.T, result Result) {
	t.Helper()
	for i := 1; i < len(result.Snapshots); i++ {
		prev, cur := result.Snapshots[i-1].Step, result.Snapshots[i].Step
		if cur != prev+1 {
			t.Errorf("AssertStepsIncreasing: snapshot %d has step %d after %d", i, cur, prev)
		}
	}
}

// AssertPruningNeverGrows asserts that the connection count never rises on
// a Pruning step and that pruning rates are only recorded while pruning.
func AssertPruningNeverGrows(t *testing.T, result Result) {
	t.Helper()
	for i, s := range result.Snapshots {
		if s.Phase != phase.Pruning {
			if s.PruningRate != 0 {
				t.Errorf("AssertPruningNeverGrows: step %d: pruning rate %.4f outside pruning", s.Step, s.PruningRate)
			}
			continue
		}
		if i > 0 && s.ConnectionCount > result.Snapshots[i-1].ConnectionCount {
			t.Errorf("AssertPruningNeverGrows: step %d: connections grew %d -> %d while pruning",
				s.Step, result.Snapshots[i-1].ConnectionCount, s.ConnectionCount)
		}
	}
}

// AssertPhaseAt asserts the phase recorded at the given absolute step.
func AssertPhaseAt(t *testing.T, result Result, step int, want phase.Phase) {
	t.Helper()
	for _, s := range result.Snapshots {
		if s.Step == step {
			if s.Phase != want {
				t.Errorf("AssertPhaseAt: step %d: phase %s, want %s", step, s.Phase, want)
			}
			return
		}
	}
	t.Errorf("AssertPhaseAt: step %d not recorded", step)
}

// AssertAgentsInBounds asserts that every agent of the result's engine lies
// inside the domain with resonance in [0,1].
func AssertAgentsInBounds(t *testing.T, result Result) {
	t.Helper()
	bounds := result.Engine.Config().Bounds
	for _, a := range result.Engine.Agents() {
		if !bounds.Contains(a.Position) {
			t.Errorf("AssertAgentsInBounds: agent %d at %+v outside %+v", a.ID, a.Position, bounds)
		}
		if a.Resonance < 0 || a.Resonance > 1 {
			t.Errorf("AssertAgentsInBounds: agent %d resonance %.6f not in [0, 1]", a.ID, a.Resonance)
		}
	}
}

// AssertNeighborsConsistent asserts that neighbor lists are symmetric and
// hold exactly the connected pairs.
func AssertNeighborsConsistent(t *testing.T, result Result) {
	t.Helper()
	agents := result.Engine.Agents()
	want := make([]map[int]bool, len(agents))
	for i := range want {
		want[i] = map[int]bool{}
	}
	for _, c := range result.Engine.Connections() {
		want[c.Source][c.Target] = true
		want[c.Target][c.Source] = true
	}
	for i, a := range agents {
		got := map[int]bool{}
		for _, n := range a.Neighbors {
			got[n] = true
		}
		if diff := cmp.Diff(want[i], got); diff != "" {
			t.Errorf("AssertNeighborsConsistent: agent %d neighbors (-connections +neighbors):\n%s", i, diff)
		}
	}
}

// AssertSameTrajectory asserts that two runs recorded identical snapshots.
func AssertSameTrajectory(t *testing.T, a, b []metrics.Snapshot) {
	t.Helper()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("AssertSameTrajectory: trajectories differ (-a +b):\n%s", diff)
	}
}
