// Package field computes the scalar field produced by agent contributions.
//
// A Sampler is built once per step from a frozen copy of the contributing
// agents and the oscillator values at that step, so it is safe for
// concurrent reads while the population computes its next state.
package field

import (
	"fmt"
	"math"

	"github.com/intentsim/bloomcascade/internal/agent"
	"github.com/intentsim/bloomcascade/internal/spatial"
)

// Config holds field parameters.
type Config struct {
	// DecayRate is the exponential falloff rate. Default: 0.2.
	DecayRate float64 `json:"decay_rate" yaml:"decay_rate"`

	// PropagationSpeed divides distance before decay. Default: 1.0.
	PropagationSpeed float64 `json:"propagation_speed" yaml:"propagation_speed"`

	// RadiusScale sets the query radius as RadiusScale / DecayRate.
	// Default: 10.
	RadiusScale float64 `json:"radius_scale" yaml:"radius_scale"`

	// Stride is the coarse sampling stride of the grid. Default: 5.
	Stride int `json:"stride" yaml:"stride"`

	// Workers bounds grid fan-out. Zero means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultConfig returns the default field configuration.
func DefaultConfig() Config {
	return Config{
		DecayRate:        0.2,
		PropagationSpeed: 1.0,
		RadiusScale:      10,
		Stride:           5,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	if c.DecayRate <= 0 {
		return fmt.Errorf("decay_rate must be positive, got %v", c.DecayRate)
	}
	if c.PropagationSpeed <= 0 {
		return fmt.Errorf("propagation_speed must be positive, got %v", c.PropagationSpeed)
	}
	if c.RadiusScale <= 0 {
		return fmt.Errorf("radius_scale must be positive, got %v", c.RadiusScale)
	}
	if c.Stride < 1 {
		return fmt.Errorf("stride must be at least 1, got %d", c.Stride)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// Radius returns the contribution cut-off distance.
func (c Config) Radius() float64 {
	return c.RadiusScale / c.DecayRate
}

// Oscillator supplies the current slow and fast signal values.
type Oscillator interface {
	SlowValue() float64
	FastValue() float64
}

type contributor struct {
	pos      spatial.Vec2
	weight   float64 // alignment * (0.5 + information) * (1 + resonance)
	slowSens float64
	fastSens float64
}

// Sampler evaluates the field at arbitrary points.
type Sampler struct {
	cfg          Config
	index        *spatial.Index
	contributors []contributor
	slow, fast   float64
}

// NewSampler freezes the contributing agents and oscillator values. The
// index must have been built from the same agents' positions.
func NewSampler(cfg Config, index *spatial.Index, agents []agent.Agent, osc Oscillator) *Sampler {
	s := &Sampler{
		cfg:          cfg,
		index:        index,
		contributors: make([]contributor, len(agents)),
	}
	if osc != nil {
		s.slow, s.fast = osc.SlowValue(), osc.FastValue()
	}
	for i := range agents {
		a := &agents[i]
		s.contributors[i] = contributor{
			pos:      a.Position,
			weight:   a.Alignment * (0.5 + a.Information) * (1 + a.Resonance),
			slowSens: a.SlowSensitivity,
			fastSens: a.FastSensitivity,
		}
	}
	return s
}

// Sample returns the field at p, modulating each contribution by the
// contributor's own oscillation sensitivities.
func (s *Sampler) Sample(p spatial.Vec2) float64 {
	var sum float64
	s.each(p, func(c *contributor, decay float64) {
		sum += c.weight * decay * s.modulation(c.slowSens, c.fastSens)
	})
	return sum
}

// SampleAt returns the field at p as perceived by a querier with the given
// sensitivities.
func (s *Sampler) SampleAt(p spatial.Vec2, slowSensitivity, fastSensitivity float64) float64 {
	var sum float64
	s.each(p, func(c *contributor, decay float64) {
		sum += c.weight * decay
	})
	return sum * s.modulation(slowSensitivity, fastSensitivity)
}

func (s *Sampler) modulation(slowSens, fastSens float64) float64 {
	return 1 + s.slow*slowSens + s.fast*fastSens
}

func (s *Sampler) each(p spatial.Vec2, fn func(c *contributor, decay float64)) {
	if s == nil || s.index == nil {
		return
	}
	bounds := s.index.Bounds()
	for _, id := range s.index.QueryRadius(p, s.cfg.Radius()) {
		if id < 0 || id >= len(s.contributors) {
			continue
		}
		c := &s.contributors[id]
		fn(c, s.decay(bounds.Distance(p, c.pos)))
	}
}

// decay is exactly 1 at zero distance.
func (s *Sampler) decay(d float64) float64 {
	if d == 0 {
		return 1
	}
	return math.Exp(-s.cfg.DecayRate * d / s.cfg.PropagationSpeed)
}
