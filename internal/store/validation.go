package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/intentsim/bloomcascade/internal/graph"
	"github.com/intentsim/bloomcascade/internal/simulation"
)

// ValidationError describes a consistency issue in a saved run.
type ValidationError struct {
	RunID string `json:"run_id"`
	Field string `json:"field"` // "connections", "neighbors", "history", "step"
	Ref   string `json:"ref"`   // The problematic element
	Issue string `json:"issue"` // "dangling", "self-reference", "duplicate", "mismatch"
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	return fmt.Sprintf("%s: run %s %s %s", e.Issue, e.RunID, e.Field, e.Ref)
}

// ValidateRun checks a saved run for consistency.
// Returns validation errors for:
// - Connections with endpoints outside the population
// - Self-connections and duplicate connections
// - Neighbor lists that disagree with the connections
// - A snapshots table that disagrees with the saved history
func (s *Store) ValidateRun(ctx context.Context, ref string) ([]ValidationError, error) {
	run, state, err := s.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	stored, err := s.History(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}

	issues := checkConnections(run.ID, state)
	issues = append(issues, checkNeighbors(run.ID, state)...)

	if run.Step != state.Step {
		issues = append(issues, ValidationError{
			RunID: run.ID, Field: "step", Ref: strconv.Itoa(state.Step), Issue: "mismatch",
		})
	}
	if len(stored) != len(state.History) {
		issues = append(issues, ValidationError{
			RunID: run.ID, Field: "history",
			Ref:   fmt.Sprintf("%d stored, %d saved", len(stored), len(state.History)),
			Issue: "mismatch",
		})
	} else {
		for i := range stored {
			if stored[i].Step != state.History[i].Step {
				issues = append(issues, ValidationError{
					RunID: run.ID, Field: "history", Ref: strconv.Itoa(stored[i].Step), Issue: "mismatch",
				})
				break
			}
		}
	}
	return issues, nil
}

// checkConnections reports dangling, self and duplicate connections.
func checkConnections(runID string, state *simulation.State) []ValidationError {
	n := len(state.Agents)
	seen := make(map[[2]int]bool, len(state.Connections))
	var issues []ValidationError
	for _, c := range state.Connections {
		ref := pairRef(c)
		switch {
		case c.Source < 0 || c.Source >= n || c.Target < 0 || c.Target >= n:
			issues = append(issues, ValidationError{RunID: runID, Field: "connections", Ref: ref, Issue: "dangling"})
		case c.Source == c.Target:
			issues = append(issues, ValidationError{RunID: runID, Field: "connections", Ref: ref, Issue: "self-reference"})
		default:
			key := [2]int{min(c.Source, c.Target), max(c.Source, c.Target)}
			if seen[key] {
				issues = append(issues, ValidationError{RunID: runID, Field: "connections", Ref: ref, Issue: "duplicate"})
			}
			seen[key] = true
		}
	}
	return issues
}

// checkNeighbors reports agents whose neighbor list differs from the set of
// valid connections touching them.
func checkNeighbors(runID string, state *simulation.State) []ValidationError {
	n := len(state.Agents)
	want := make([]map[int]bool, n)
	for i := range want {
		want[i] = map[int]bool{}
	}
	for _, c := range state.Connections {
		if c.Source < 0 || c.Source >= n || c.Target < 0 || c.Target >= n || c.Source == c.Target {
			continue
		}
		want[c.Source][c.Target] = true
		want[c.Target][c.Source] = true
	}

	var issues []ValidationError
	for i, a := range state.Agents {
		got := make(map[int]bool, len(a.Neighbors))
		for _, nb := range a.Neighbors {
			got[nb] = true
		}
		if !sameSet(got, want[i]) {
			issues = append(issues, ValidationError{
				RunID: runID, Field: "neighbors", Ref: strconv.Itoa(i), Issue: "mismatch",
			})
		}
	}
	return issues
}

func sameSet(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func pairRef(c graph.Connection) string {
	return fmt.Sprintf("%d-%d", c.Source, c.Target)
}
