// Package agent owns per-agent state and the per-step update rule.
//
// Agents live in a single arena slice and reference each other by index.
// Updates are double-buffered: every agent's next state is computed from the
// same pre-step snapshot and committed only after all computations finish,
// so the result does not depend on iteration order.
package agent

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/intentsim/bloomcascade/internal/spatial"
)

// Agent is one simulated element.
type Agent struct {
	ID       int          `json:"id"`
	Position spatial.Vec2 `json:"position"`

	// Alignment drifts under field influence; unbounded.
	Alignment float64 `json:"alignment"`

	// Information is the information content in [0,1].
	Information float64 `json:"information"`

	// Variability scales the random component of movement, in [0,1].
	Variability float64 `json:"variability"`

	// Resonance is clamped to [0,1].
	Resonance float64 `json:"resonance"`

	SlowSensitivity    float64 `json:"slow_sensitivity"`
	FastSensitivity    float64 `json:"fast_sensitivity"`
	FocusParticipation float64 `json:"focus_participation"`
	PruningSensitivity float64 `json:"pruning_sensitivity"`

	// ExecutiveFunction in [0,1] damps alignment change by (2 - executive).
	ExecutiveFunction float64 `json:"executive_function"`

	Neighbors []int   `json:"neighbors"`
	History   History `json:"history"`

	// Displacement and PrevDisplacement are the last two movement vectors.
	Displacement     spatial.Vec2 `json:"displacement"`
	PrevDisplacement spatial.Vec2 `json:"prev_displacement"`
}

// History is the append-only per-step record of an agent.
type History struct {
	Alignment []float64 `json:"alignment"`
	Resonance []float64 `json:"resonance"`
}

// StateVector returns the (alignment, information, resonance) vector used by
// the metrics.
func (a *Agent) StateVector() [3]float64 {
	return [3]float64{a.Alignment, a.Information, a.Resonance}
}

// HasNeighbor reports whether id is in the neighbor list.
func (a *Agent) HasNeighbor(id int) bool {
	return slices.Contains(a.Neighbors, id)
}

// Clone returns a deep copy.
func (a *Agent) Clone() Agent {
	c := *a
	c.Neighbors = slices.Clone(a.Neighbors)
	c.History.Alignment = slices.Clone(a.History.Alignment)
	c.History.Resonance = slices.Clone(a.History.Resonance)
	return c
}

// Config holds population parameters.
type Config struct {
	// Count is the number of agents. Default: 150.
	Count int `json:"count" yaml:"count"`

	// IntentStrength scales neighbor forces, gradient following and field
	// influence on alignment. Default: 0.1.
	IntentStrength float64 `json:"intent_strength" yaml:"intent_strength"`

	// MovementSpeed converts net force into displacement. Default: 0.5.
	MovementSpeed float64 `json:"movement_speed" yaml:"movement_speed"`

	// EntropyFactor scales movement noise and shapes initial variability.
	// Default: 0.3.
	EntropyFactor float64 `json:"entropy_factor" yaml:"entropy_factor"`

	// ResonanceThreshold is the field level above which resonance grows.
	// Default: 0.1.
	ResonanceThreshold float64 `json:"resonance_threshold" yaml:"resonance_threshold"`

	// InformationDensity is the mean of the initial information
	// distribution, in (0,1). Default: 0.5.
	InformationDensity float64 `json:"information_density" yaml:"information_density"`

	// NarrativeSalience is the probability an agent's information is
	// reshaped at init, and that a new connection carries narrative
	// content. Default: 0.5.
	NarrativeSalience float64 `json:"narrative_salience" yaml:"narrative_salience"`

	// OverpruningRisk shifts and widens pruning sensitivity. Default: 0.
	OverpruningRisk float64 `json:"overpruning_risk" yaml:"overpruning_risk"`

	// Workers bounds per-step fan-out. Zero means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultConfig returns the default population configuration.
func DefaultConfig() Config {
	return Config{
		Count:              150,
		IntentStrength:     0.1,
		MovementSpeed:      0.5,
		EntropyFactor:      0.3,
		ResonanceThreshold: 0.1,
		InformationDensity: 0.5,
		NarrativeSalience:  0.5,
		OverpruningRisk:    0,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	if c.Count < 0 {
		return fmt.Errorf("agent count must be non-negative, got %d", c.Count)
	}
	if c.IntentStrength < 0 {
		return fmt.Errorf("intent_strength must be non-negative, got %v", c.IntentStrength)
	}
	if c.MovementSpeed < 0 {
		return fmt.Errorf("movement_speed must be non-negative, got %v", c.MovementSpeed)
	}
	if c.EntropyFactor < 0 || c.EntropyFactor > 1 {
		return fmt.Errorf("entropy_factor must be between 0 and 1, got %v", c.EntropyFactor)
	}
	if c.InformationDensity <= 0 || c.InformationDensity >= 1 {
		return fmt.Errorf("information_density must be strictly between 0 and 1, got %v", c.InformationDensity)
	}
	if c.NarrativeSalience < 0 || c.NarrativeSalience > 1 {
		return fmt.Errorf("narrative_salience must be between 0 and 1, got %v", c.NarrativeSalience)
	}
	if c.OverpruningRisk < 0 || c.OverpruningRisk > 1 {
		return fmt.Errorf("overpruning_risk must be between 0 and 1, got %v", c.OverpruningRisk)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// newAgent draws one agent's initial properties.
func newAgent(id int, cfg Config, bounds spatial.Bounds, rng *rand.Rand) Agent {
	pos := spatial.Vec2{X: rng.Float64() * bounds.Width, Y: rng.Float64() * bounds.Height}
	alignment := rng.NormFloat64() * 0.2

	d := cfg.InformationDensity
	information := betaSample(rng, 2*d, 2*(1-d))
	if rng.Float64() < cfg.NarrativeSalience {
		information *= betaSample(rng, 3, 1)
	}

	e := cfg.EntropyFactor
	variability := betaSample(rng, 1+5*e, 1+5*(1-e))

	slowSens := 1 + 0.2*rng.NormFloat64()
	fastSens := 1 + 0.2*rng.NormFloat64()
	participation := betaSample(rng, 2, 2)
	executive := betaSample(rng, 2, 2)

	risk := cfg.OverpruningRisk
	pruningSens := (1 + risk) + (0.2+0.3*risk)*rng.NormFloat64()

	return Agent{
		ID:                 id,
		Position:           bounds.Wrap(pos),
		Alignment:          alignment,
		Information:        clamp01(information),
		Variability:        clamp01(variability),
		SlowSensitivity:    slowSens,
		FastSensitivity:    fastSens,
		FocusParticipation: participation,
		PruningSensitivity: pruningSens,
		ExecutiveFunction:  executive,
		Neighbors:          []int{},
		History: History{
			Alignment: []float64{alignment},
			Resonance: []float64{0},
		},
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
