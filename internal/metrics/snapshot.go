// Package metrics computes per-step analytics over the population and keeps
// the append-only history they are recorded in. Computing metrics never
// mutates simulation state or draws from the simulation RNG.
package metrics

import (
	"errors"
	"fmt"
	"slices"

	"github.com/intentsim/bloomcascade/internal/phase"
)

// ErrStepOrder is returned when a snapshot does not advance the history.
var ErrStepOrder = errors.New("snapshot step must be strictly increasing")

// ErrUnknownMetric is returned when a metric name cannot be parsed.
var ErrUnknownMetric = errors.New("unknown metric")

// Metric names a recorded series.
type Metric string

const (
	Coherence        Metric = "coherence"
	Entropy          Metric = "entropy"
	Complexity       Metric = "complexity"
	ResonanceBonds   Metric = "resonance_bonds"
	MemoryInversions Metric = "memory_inversions"
	Energy           Metric = "energy"
	FocusActivation  Metric = "focus_activation"
	SlowFastCoupling Metric = "slow_fast_coupling"
	PruningRate      Metric = "pruning_rate"
	CriticalPeriod   Metric = "critical_period"
	ConnectionCount  Metric = "connection_count"
)

// All returns every metric name.
func All() []Metric {
	return []Metric{
		Coherence, Entropy, Complexity, ResonanceBonds, MemoryInversions,
		Energy, FocusActivation, SlowFastCoupling, PruningRate, CriticalPeriod,
		ConnectionCount,
	}
}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if slices.Contains(All(), m) {
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// Bounded reports whether the metric lies in [0,1] by construction.
func (m Metric) Bounded() bool {
	switch m {
	case Coherence, Entropy, Complexity, FocusActivation, SlowFastCoupling, PruningRate:
		return true
	}
	return false
}

// Snapshot is one step's metrics. Snapshots are values; the history never
// hands out references to its own storage.
type Snapshot struct {
	Step             int         `json:"step"`
	Coherence        float64     `json:"coherence"`
	Entropy          float64     `json:"entropy"`
	Complexity       float64     `json:"complexity"`
	ResonanceBonds   int         `json:"resonance_bonds"`
	MemoryInversions int         `json:"memory_inversions"`
	Phase            phase.Phase `json:"phase"`
	Energy           float64     `json:"energy"`
	FocusActivation  float64     `json:"focus_activation"`
	SlowFastCoupling float64     `json:"slow_fast_coupling"`
	PruningRate      float64     `json:"pruning_rate"`
	CriticalPeriod   float64     `json:"critical_period"`
	ConnectionCount  int         `json:"connection_count"`
}

// Value returns the named metric as a float.
func (s Snapshot) Value(m Metric) (float64, bool) {
	switch m {
	case Coherence:
		return s.Coherence, true
	case Entropy:
		return s.Entropy, true
	case Complexity:
		return s.Complexity, true
	case ResonanceBonds:
		return float64(s.ResonanceBonds), true
	case MemoryInversions:
		return float64(s.MemoryInversions), true
	case Energy:
		return s.Energy, true
	case FocusActivation:
		return s.FocusActivation, true
	case SlowFastCoupling:
		return s.SlowFastCoupling, true
	case PruningRate:
		return s.PruningRate, true
	case CriticalPeriod:
		return s.CriticalPeriod, true
	case ConnectionCount:
		return float64(s.ConnectionCount), true
	}
	return 0, false
}

// History is the append-only, step-ordered metrics log.
type History struct {
	snaps []Snapshot
}

// NewHistory restores a history, validating step order.
func NewHistory(snaps []Snapshot) (*History, error) {
	h := &History{snaps: make([]Snapshot, 0, len(snaps))}
	for _, s := range snaps {
		if err := h.Append(s); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Append adds s. Its step must exceed the last recorded step.
func (h *History) Append(s Snapshot) error {
	if n := len(h.snaps); n > 0 && s.Step <= h.snaps[n-1].Step {
		return fmt.Errorf("%w: got %d after %d", ErrStepOrder, s.Step, h.snaps[n-1].Step)
	}
	h.snaps = append(h.snaps, s)
	return nil
}

// Len returns the number of snapshots.
func (h *History) Len() int { return len(h.snaps) }

// Last returns the most recent snapshot.
func (h *History) Last() (Snapshot, bool) {
	if len(h.snaps) == 0 {
		return Snapshot{}, false
	}
	return h.snaps[len(h.snaps)-1], true
}

// Snapshots returns a copy of every snapshot.
func (h *History) Snapshots() []Snapshot {
	return slices.Clone(h.snaps)
}

// Since returns a copy of the snapshots with step >= from.
func (h *History) Since(from int) []Snapshot {
	i, _ := slices.BinarySearchFunc(h.snaps, from, func(s Snapshot, step int) int {
		return s.Step - step
	})
	return slices.Clone(h.snaps[i:])
}

// Series returns the named metric across the history.
func (h *History) Series(m Metric) []float64 {
	out := make([]float64, len(h.snaps))
	for i, s := range h.snaps {
		out[i], _ = s.Value(m)
	}
	return out
}
