// Package graph maintains the weighted undirected connection set over agent
// ids. Connections are stored in one slice; agents mirror them in their
// neighbor lists, which the graph keeps in sync through the population.
package graph

import (
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/intentsim/bloomcascade/internal/agent"
	"github.com/intentsim/bloomcascade/internal/spatial"
)

// Content is the content-type flag of a connection.
type Content int

const (
	Factual Content = iota
	Narrative
)

// String returns "factual" or "narrative".
func (c Content) String() string {
	if c == Narrative {
		return "narrative"
	}
	return "factual"
}

// MarshalText implements encoding.TextMarshaler.
func (c Content) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Content) UnmarshalText(text []byte) error {
	switch string(text) {
	case "factual":
		*c = Factual
	case "narrative":
		*c = Narrative
	default:
		return fmt.Errorf("unknown content type %q", text)
	}
	return nil
}

// Connection is one undirected edge.
type Connection struct {
	Source  int     `json:"source"`
	Target  int     `json:"target"`
	Weight  float64 `json:"weight"`
	Age     int     `json:"age"`
	Content Content `json:"content"`
}

// Config holds graph construction and pruning parameters.
type Config struct {
	// HubFraction is the share of agents designated hubs. Default: 0.1.
	HubFraction float64 `json:"hub_fraction" yaml:"hub_fraction"`

	// Modules is the number of modules agents are assigned to. Default: 5.
	Modules int `json:"modules" yaml:"modules"`

	// BaseProbability is the baseline pair probability. Default: 0.05.
	BaseProbability float64 `json:"base_probability" yaml:"base_probability"`

	// ModuleBoost is added for same-module pairs. Default: 0.3.
	ModuleBoost float64 `json:"module_boost" yaml:"module_boost"`

	// HubBoost is added when either endpoint is a hub. Default: 0.2.
	HubBoost float64 `json:"hub_boost" yaml:"hub_boost"`

	// LongRangeChance is the per-pair chance of a long-range boost.
	// Default: 0.02.
	LongRangeChance float64 `json:"long_range_chance" yaml:"long_range_chance"`

	// LongRangeBoost is the long-range boost. Default: 0.3.
	LongRangeBoost float64 `json:"long_range_boost" yaml:"long_range_boost"`

	// ConnectivityFactor blends the modular baseline against distance
	// decay. Default: 0.6.
	ConnectivityFactor float64 `json:"connectivity_factor" yaml:"connectivity_factor"`

	// PruningThreshold is the base pruning threshold. Default: 0.05.
	PruningThreshold float64 `json:"pruning_threshold" yaml:"pruning_threshold"`

	// NarrativeSalience is the chance a new connection is narrative.
	// Default: 0.5.
	NarrativeSalience float64 `json:"narrative_salience" yaml:"narrative_salience"`

	// OverpruningRisk raises every pruning threshold by (1 + risk).
	// Default: 0.
	OverpruningRisk float64 `json:"overpruning_risk" yaml:"overpruning_risk"`
}

// DefaultConfig returns the default graph configuration.
func DefaultConfig() Config {
	return Config{
		HubFraction:        0.1,
		Modules:            5,
		BaseProbability:    0.05,
		ModuleBoost:        0.3,
		HubBoost:           0.2,
		LongRangeChance:    0.02,
		LongRangeBoost:     0.3,
		ConnectivityFactor: 0.6,
		PruningThreshold:   0.05,
		NarrativeSalience:  0.5,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	unit := map[string]float64{
		"hub_fraction":        c.HubFraction,
		"base_probability":    c.BaseProbability,
		"long_range_chance":   c.LongRangeChance,
		"connectivity_factor": c.ConnectivityFactor,
		"narrative_salience":  c.NarrativeSalience,
		"overpruning_risk":    c.OverpruningRisk,
	}
	for _, name := range slices.Sorted(maps.Keys(unit)) {
		if v := unit[name]; math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %v", name, v)
		}
	}
	if c.Modules < 1 {
		return fmt.Errorf("modules must be at least 1, got %d", c.Modules)
	}
	if c.ModuleBoost < 0 || c.HubBoost < 0 || c.LongRangeBoost < 0 {
		return fmt.Errorf("probability boosts must be non-negative")
	}
	if c.PruningThreshold < 0 {
		return fmt.Errorf("pruning_threshold must be non-negative, got %v", c.PruningThreshold)
	}
	return nil
}

// Graph owns the connection list.
type Graph struct {
	cfg   Config
	conns []Connection
}

// New returns an empty graph.
func New(cfg Config) *Graph {
	return &Graph{cfg: cfg}
}

// FromConnections restores a graph. Connections with endpoints outside the
// population are dropped, and every surviving pair is linked in the
// population's neighbor lists.
func FromConnections(cfg Config, conns []Connection, pop *agent.Population) *Graph {
	g := &Graph{cfg: cfg, conns: make([]Connection, 0, len(conns))}
	for _, c := range conns {
		if !valid(c, pop.Len()) {
			continue
		}
		c.Weight = math.Max(0, c.Weight)
		c.Age = max(0, c.Age)
		g.conns = append(g.conns, c)
		pop.Link(c.Source, c.Target)
	}
	return g
}

// Len returns the number of connections.
func (g *Graph) Len() int { return len(g.conns) }

// Connections returns a copy of the connection list.
func (g *Graph) Connections() []Connection {
	return slices.Clone(g.conns)
}

// TotalWeight returns the sum of connection weights.
func (g *Graph) TotalWeight() float64 {
	var sum float64
	for _, c := range g.conns {
		sum += c.Weight
	}
	return sum
}

// AgeAll increments the age of every connection.
func (g *Graph) AgeAll() {
	for i := range g.conns {
		g.conns[i].Age++
	}
}

// Weight returns the connection weight for a new edge between a and b.
func Weight(a, b *agent.Agent) float64 {
	w := (1 + a.Information) * (1 + b.Information) * (1 - 0.5*math.Abs(a.Alignment-b.Alignment))
	return math.Max(0, w)
}

// add appends a connection and links the endpoints. It reports false when
// the pair cannot be linked.
func (g *Graph) add(pop *agent.Population, src, dst int, rng *rand.Rand) bool {
	a, ok1 := pop.Get(src)
	b, ok2 := pop.Get(dst)
	if !ok1 || !ok2 {
		return false
	}
	w := Weight(a, b)
	content := Factual
	if rng.Float64() < g.cfg.NarrativeSalience {
		content = Narrative
	}
	if !pop.Link(src, dst) {
		return false
	}
	g.conns = append(g.conns, Connection{Source: src, Target: dst, Weight: w, Content: content})
	return true
}

// Grow adds up to count connections. Each attempt picks a random source,
// queries its spatial neighborhood for agents it is not yet connected to and
// links one of them at random. It returns the number of connections added.
func (g *Graph) Grow(pop *agent.Population, index *spatial.Index, radius float64, count int, rng *rand.Rand) int {
	n := pop.Len()
	if n < 2 || count <= 0 {
		return 0
	}
	added := 0
	for range count {
		src := rng.IntN(n)
		a, _ := pop.Get(src)
		var candidates []int
		for _, id := range index.QueryRadius(a.Position, radius) {
			if id != src && id < n && !a.HasNeighbor(id) {
				candidates = append(candidates, id)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		if g.add(pop, src, candidates[rng.IntN(len(candidates))], rng) {
			added++
		}
	}
	return added
}

func valid(c Connection, n int) bool {
	return c.Source >= 0 && c.Source < n && c.Target >= 0 && c.Target < n && c.Source != c.Target
}
