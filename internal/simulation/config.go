package simulation

import (
	"errors"
	"fmt"
	"math"

	"github.com/intentsim/bloomcascade/internal/agent"
	"github.com/intentsim/bloomcascade/internal/field"
	"github.com/intentsim/bloomcascade/internal/forecast"
	"github.com/intentsim/bloomcascade/internal/graph"
	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/oscillation"
	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/spatial"
)

// Config holds every engine parameter. The top-level Workers,
// NarrativeSalience and OverpruningRisk values are copied into the
// component configs that also carry them.
type Config struct {
	// Seed initializes the engine's generator. Runs with equal configs and
	// seeds are identical.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Bounds is the toroidal domain. Default: 100 x 100.
	Bounds spatial.Bounds `json:"bounds" yaml:"bounds"`

	// Workers bounds the per-step fan-out. 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`

	// NarrativeSalience is the chance an agent or connection is narrative.
	NarrativeSalience float64 `json:"narrative_salience" yaml:"narrative_salience"`

	// OverpruningRisk biases agents and the graph toward heavier pruning.
	OverpruningRisk float64 `json:"overpruning_risk" yaml:"overpruning_risk"`

	// CriticalPeriodFlexibility multiplies the per-step critical-period
	// decay. Must lie in (0, 1.5]. Default: 1.
	CriticalPeriodFlexibility float64 `json:"critical_period_flexibility" yaml:"critical_period_flexibility"`

	// CascadeDelay is the number of steps between bloom, pruning and
	// resonance in a cascade. Default: 50.
	CascadeDelay int `json:"cascade_delay" yaml:"cascade_delay"`

	Agents      agent.Config       `json:"agents" yaml:"agents"`
	Oscillation oscillation.Config `json:"oscillation" yaml:"oscillation"`
	Field       field.Config       `json:"field" yaml:"field"`
	Graph       graph.Config       `json:"graph" yaml:"graph"`
	Metrics     metrics.Config     `json:"metrics" yaml:"metrics"`
	Forecast    forecast.Config    `json:"forecast" yaml:"forecast"`
	TrendGuard  phase.TrendGuard   `json:"trend_guard" yaml:"trend_guard"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Seed:                      42,
		Bounds:                    spatial.Bounds{Width: 100, Height: 100},
		NarrativeSalience:         0.5,
		CriticalPeriodFlexibility: 1,
		CascadeDelay:              50,
		Agents:                    agent.DefaultConfig(),
		Oscillation:               oscillation.DefaultConfig(),
		Field:                     field.DefaultConfig(),
		Graph:                     graph.DefaultConfig(),
		Metrics:                   metrics.DefaultConfig(),
		Forecast:                  forecast.DefaultConfig(),
		TrendGuard:                phase.DefaultTrendGuard(),
	}
}

// Resolved returns c with the shared top-level values copied into the
// component configs.
func (c Config) Resolved() Config {
	c.Agents.Workers = c.Workers
	c.Field.Workers = c.Workers
	c.Agents.NarrativeSalience = c.NarrativeSalience
	c.Graph.NarrativeSalience = c.NarrativeSalience
	c.Agents.OverpruningRisk = c.OverpruningRisk
	c.Graph.OverpruningRisk = c.OverpruningRisk
	return c
}

// GridSize returns the field grid dimensions, one cell per unit of domain.
func (c Config) GridSize() (width, height int) {
	return int(math.Ceil(c.Bounds.Width)), int(math.Ceil(c.Bounds.Height))
}

// Validate checks the resolved configuration and reports every problem
// found.
func (c Config) Validate() error {
	r := c.Resolved()
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	add("bounds", r.Bounds.Validate())
	if r.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be non-negative, got %d", r.Workers))
	}
	if f := r.CriticalPeriodFlexibility; math.IsNaN(f) || f <= 0 || f > 1.5 {
		errs = append(errs, fmt.Errorf("critical_period_flexibility must be in (0, 1.5], got %v", f))
	}
	if r.CascadeDelay < 1 {
		errs = append(errs, fmt.Errorf("cascade_delay must be at least 1, got %d", r.CascadeDelay))
	}
	add("agents", r.Agents.Validate())
	add("oscillation", r.Oscillation.Validate())
	add("field", r.Field.Validate())
	add("graph", r.Graph.Validate())
	add("metrics", r.Metrics.Validate())
	add("forecast", r.Forecast.Validate())
	add("trend_guard", r.TrendGuard.Validate())
	return errors.Join(errs...)
}
