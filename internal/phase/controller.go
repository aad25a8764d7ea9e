package phase

import (
	"fmt"
	"maps"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Schedule maps a step to the phase that becomes active at that step.
type Schedule map[int]Phase

// Validate rejects negative steps and unknown phases.
func (s Schedule) Validate() error {
	for step, p := range s {
		if step < 0 {
			return fmt.Errorf("schedule step must be non-negative, got %d", step)
		}
		if !p.Valid() {
			return fmt.Errorf("schedule step %d: %w: %d", step, ErrInvalidPhase, int(p))
		}
	}
	return nil
}

// Steps returns the scheduled steps in ascending order.
func (s Schedule) Steps() []int {
	return slices.Sorted(maps.Keys(s))
}

// PhaseAt returns the phase in effect at step, starting from initial and
// applying every entry at or before step.
func (s Schedule) PhaseAt(step int, initial Phase) Phase {
	current := initial
	for _, k := range s.Steps() {
		if k > step {
			break
		}
		current = s[k]
	}
	return current
}

// CascadeSchedule builds a bloom cascade: each bloom step enters Bloom, then
// Pruning after delay, then Resonance after a second delay. Stable is forced
// at total-delay. Entries written later win on collision, so the Stable
// marker overrides any cascade entry at the same step.
func CascadeSchedule(total int, blooms []int, delay int) Schedule {
	s := make(Schedule, 3*len(blooms)+1)
	for _, b := range blooms {
		s[b] = Bloom
		s[b+delay] = Pruning
		s[b+2*delay] = Resonance
	}
	s[max(0, total-delay)] = Stable
	return s
}

// TrendGuard forces Pruning when the composite of coherence and complexity
// falls sharply.
type TrendGuard struct {
	// Enabled turns the guard on. Default: false.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Window is the number of recent composite values fitted. Default: 10.
	Window int `json:"window" yaml:"window"`

	// Threshold is the slope magnitude that counts as sharp. Default: 0.02.
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// DefaultTrendGuard returns a disabled guard with usable parameters.
func DefaultTrendGuard() TrendGuard {
	return TrendGuard{Window: 10, Threshold: 0.02}
}

// Validate checks the guard parameters when the guard is enabled.
func (g TrendGuard) Validate() error {
	if !g.Enabled {
		return nil
	}
	if g.Window < 3 {
		return fmt.Errorf("trend guard window must be at least 3, got %d", g.Window)
	}
	if g.Threshold <= 0 {
		return fmt.Errorf("trend guard threshold must be positive, got %v", g.Threshold)
	}
	return nil
}

// Controller tracks the active phase.
type Controller struct {
	current   Phase
	schedule  Schedule
	offset    int
	guard     TrendGuard
	composite []float64
}

// NewController returns a controller in the Initialization phase.
func NewController(guard TrendGuard) *Controller {
	return &Controller{current: Initialization, guard: guard}
}

// Current returns the active phase.
func (c *Controller) Current() Phase { return c.current }

// SetSchedule installs s with its keys relative to offset. A nil schedule
// clears any previous one.
func (c *Controller) SetSchedule(s Schedule, offset int) {
	c.schedule = maps.Clone(s)
	c.offset = offset
}

// Select returns the phase for step and whether it differs from the
// previous one. A schedule entry always wins; otherwise the trend guard
// may force Pruning. Stable is left only through the schedule or Transition.
func (c *Controller) Select(step int) (Phase, bool) {
	if p, ok := c.schedule[step-c.offset]; ok {
		return p, c.set(p)
	}
	if c.current != Stable && c.current != Pruning && c.declining() {
		return Pruning, c.set(Pruning)
	}
	return c.current, false
}

// Transition sets the phase directly and reports whether it changed.
func (c *Controller) Transition(p Phase) bool {
	return c.set(p)
}

// Observe records the latest coherence and complexity for the trend guard.
func (c *Controller) Observe(coherence, complexity float64) {
	if !c.guard.Enabled {
		return
	}
	c.composite = append(c.composite, (coherence+complexity)/2)
	if len(c.composite) > c.guard.Window {
		c.composite = c.composite[len(c.composite)-c.guard.Window:]
	}
}

// Restore sets the phase without reporting a transition.
func (c *Controller) Restore(p Phase) {
	c.current = p
	c.composite = nil
}

func (c *Controller) set(p Phase) bool {
	changed := c.current != p
	c.current = p
	if changed {
		c.composite = c.composite[:0]
	}
	return changed
}

func (c *Controller) declining() bool {
	if !c.guard.Enabled || len(c.composite) < c.guard.Window {
		return false
	}
	xs := make([]float64, len(c.composite))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, slope := stat.LinearRegression(xs, c.composite, nil, false)
	return slope < -c.guard.Threshold
}
