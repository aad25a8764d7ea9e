package agent

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/spatial"
)

// Field samples the scalar field as seen by an agent with the given
// oscillation sensitivities. Implementations must be safe for concurrent
// reads.
type Field interface {
	SampleAt(p spatial.Vec2, slowSensitivity, fastSensitivity float64) float64
}

// StepContext is everything a step reads from outside the population.
type StepContext struct {
	Coefficients   phase.Coefficients
	Field          Field
	SlowPhase      float64
	Focus          float64
	CriticalPeriod float64
}

// gradientOffset is the sampling distance for the field gradient.
const gradientOffset = 1.0

// Population owns the agent arena.
type Population struct {
	cfg    Config
	bounds spatial.Bounds
	agents []Agent
}

// NewPopulation draws cfg.Count agents from rng.
func NewPopulation(cfg Config, bounds spatial.Bounds, rng *rand.Rand) (*Population, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	if err := bounds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bounds: %w", err)
	}
	agents := make([]Agent, cfg.Count)
	for i := range agents {
		agents[i] = newAgent(i, cfg, bounds, rng)
	}
	return &Population{cfg: cfg, bounds: bounds, agents: agents}, nil
}

// FromAgents rebuilds a population from saved agents. Agents are copied and
// re-numbered by slice position; positions are wrapped and neighbor ids
// outside the arena are dropped.
func FromAgents(cfg Config, bounds spatial.Bounds, agents []Agent) (*Population, error) {
	if err := bounds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bounds: %w", err)
	}
	p := &Population{cfg: cfg, bounds: bounds, agents: make([]Agent, len(agents))}
	for i := range agents {
		a := agents[i].Clone()
		a.ID = i
		a.Position = bounds.Wrap(a.Position)
		a.Resonance = clamp01(a.Resonance)
		valid := a.Neighbors[:0]
		for _, n := range a.Neighbors {
			if n >= 0 && n < len(agents) && n != i {
				valid = append(valid, n)
			}
		}
		a.Neighbors = valid
		p.agents[i] = a
	}
	return p, nil
}

// Len returns the number of agents.
func (p *Population) Len() int { return len(p.agents) }

// Bounds returns the domain.
func (p *Population) Bounds() spatial.Bounds { return p.bounds }

// Config returns the population configuration.
func (p *Population) Config() Config { return p.cfg }

// All returns the live arena for read-only use inside the engine. Callers
// must not modify or retain it across steps.
func (p *Population) All() []Agent { return p.agents }

// Get returns the agent with id, bounds-checked.
func (p *Population) Get(id int) (*Agent, bool) {
	if id < 0 || id >= len(p.agents) {
		return nil, false
	}
	return &p.agents[id], true
}

// Snapshot returns a deep copy of every agent.
func (p *Population) Snapshot() []Agent {
	out := make([]Agent, len(p.agents))
	for i := range p.agents {
		out[i] = p.agents[i].Clone()
	}
	return out
}

// Positions returns the current positions indexed by agent id.
func (p *Population) Positions() []spatial.Vec2 {
	out := make([]spatial.Vec2, len(p.agents))
	for i := range p.agents {
		out[i] = p.agents[i].Position
	}
	return out
}

// Link adds b to a's neighbors and a to b's. It reports false when either
// id is invalid, the ids are equal, or the pair is already linked.
func (p *Population) Link(a, b int) bool {
	src, ok1 := p.Get(a)
	dst, ok2 := p.Get(b)
	if !ok1 || !ok2 || a == b || src.HasNeighbor(b) {
		return false
	}
	src.Neighbors = append(src.Neighbors, b)
	dst.Neighbors = append(dst.Neighbors, a)
	return true
}

// Unlink removes the pair from both neighbor lists. Invalid ids are
// ignored.
func (p *Population) Unlink(a, b int) {
	if src, ok := p.Get(a); ok {
		src.Neighbors = remove(src.Neighbors, b)
	}
	if dst, ok := p.Get(b); ok {
		dst.Neighbors = remove(dst.Neighbors, a)
	}
}

func remove(ids []int, id int) []int {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// MeanVariability returns the mean variability coefficient, or 0 for an
// empty population.
func (p *Population) MeanVariability() float64 {
	if len(p.agents) == 0 {
		return 0
	}
	var sum float64
	for i := range p.agents {
		sum += p.agents[i].Variability
	}
	return sum / float64(len(p.agents))
}

// next is the buffered result of one agent's update.
type next struct {
	position  spatial.Vec2
	moved     spatial.Vec2
	alignment float64
	resonance float64
}

// Step advances every agent by one step. Noise is drawn from rng
// sequentially before the fan-out, so results do not depend on scheduling.
func (p *Population) Step(ctx context.Context, sc StepContext, rng *rand.Rand) error {
	n := len(p.agents)
	if n == 0 {
		return nil
	}

	noise := make([]spatial.Vec2, n)
	for i := range noise {
		noise[i] = spatial.Vec2{X: rng.NormFloat64(), Y: rng.NormFloat64()}
	}

	out := make([]next, n)
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = p.compute(i, sc, noise[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("agent step: %w", err)
	}

	for i := range p.agents {
		a := &p.agents[i]
		a.Position = out[i].position
		a.PrevDisplacement = a.Displacement
		a.Displacement = out[i].moved
		a.Alignment = out[i].alignment
		a.Resonance = out[i].resonance
		a.History.Alignment = append(a.History.Alignment, a.Alignment)
		a.History.Resonance = append(a.History.Resonance, a.Resonance)
	}
	return nil
}

// compute reads only the pre-step arena and the frozen field.
func (p *Population) compute(i int, sc StepContext, z spatial.Vec2) next {
	a := &p.agents[i]
	coef := sc.Coefficients
	cfg := p.cfg

	sample := func(at spatial.Vec2) float64 {
		if sc.Field == nil {
			return 0
		}
		return sc.Field.SampleAt(p.bounds.Wrap(at), a.SlowSensitivity, a.FastSensitivity)
	}
	local := sample(a.Position)

	var force spatial.Vec2
	for _, id := range a.Neighbors {
		nb, ok := p.Get(id)
		if !ok {
			continue
		}
		d := p.bounds.Delta(a.Position, nb.Position)
		dist := d.Norm()
		if dist < 0.001 {
			continue
		}
		strength := coef.Force(phase.ForceInput{
			IntentStrength:     cfg.IntentStrength,
			Similarity:         1 - math.Abs(a.Alignment-nb.Alignment),
			CriticalPeriod:     sc.CriticalPeriod,
			PruningSensitivity: a.PruningSensitivity,
			Resonance:          a.Resonance,
		})
		force = force.Add(d.Scale(strength / dist))
	}

	grad := spatial.Vec2{
		X: sample(a.Position.Add(spatial.Vec2{X: gradientOffset})) - sample(a.Position.Add(spatial.Vec2{X: -gradientOffset})),
		Y: sample(a.Position.Add(spatial.Vec2{Y: gradientOffset})) - sample(a.Position.Add(spatial.Vec2{Y: -gradientOffset})),
	}
	if m := grad.Norm(); m > 0.001 {
		grad = grad.Scale(1 / m)
	}
	force = force.Add(grad.Scale(cfg.IntentStrength))

	sigma := a.Variability * cfg.EntropyFactor * coef.NoiseMultiplier
	sigma *= 1 - sc.Focus*a.FocusParticipation
	force = force.Add(z.Scale(sigma))

	moved := force.Scale(cfg.MovementSpeed)
	pos := p.bounds.Wrap(a.Position.Add(moved))

	change := coef.Adoption(phase.AdoptionInput{
		FieldInfluence:  local * cfg.IntentStrength,
		CriticalPeriod:  sc.CriticalPeriod,
		SlowSensitivity: a.SlowSensitivity,
		SlowPhase:       sc.SlowPhase,
		Resonance:       a.Resonance,
	})
	change *= 2 - a.ExecutiveFunction

	res := a.Resonance
	if local > cfg.ResonanceThreshold {
		res += (local - cfg.ResonanceThreshold) * 0.1 * (1 + math.Sin(sc.SlowPhase))
	} else {
		res *= 0.95
	}

	return next{
		position:  pos,
		moved:     moved,
		alignment: a.Alignment + change,
		resonance: clamp01(res),
	}
}

// ApplyBloom applies the bloom entry effect: alignment jitter with standard
// deviation 0.5*strength, variability damped by (1 - 0.3*strength) and
// resonance reset to zero. Strength must lie in [0,1].
func (p *Population) ApplyBloom(strength float64, rng *rand.Rand) error {
	if math.IsNaN(strength) || strength < 0 || strength > 1 {
		return fmt.Errorf("bloom strength must be between 0 and 1, got %v", strength)
	}
	for i := range p.agents {
		a := &p.agents[i]
		a.Alignment += rng.NormFloat64() * 0.5 * strength
		a.Variability = clamp01(a.Variability * (1 - 0.3*strength))
		a.Resonance = 0
	}
	return nil
}

// ApplyPruningEntry damps every agent's variability.
func (p *Population) ApplyPruningEntry() {
	for i := range p.agents {
		p.agents[i].Variability *= 0.7
	}
}

// ApplyResonanceEntry boosts resonance for agents whose local field
// exceeds the resonance threshold, and returns how many were boosted.
func (p *Population) ApplyResonanceEntry(field Field) int {
	if field == nil {
		return 0
	}
	boosted := 0
	for i := range p.agents {
		a := &p.agents[i]
		if field.SampleAt(a.Position, a.SlowSensitivity, a.FastSensitivity) > p.cfg.ResonanceThreshold {
			a.Resonance = clamp01(a.Resonance + 0.2)
			boosted++
		}
	}
	return boosted
}
