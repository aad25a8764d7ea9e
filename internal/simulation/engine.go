package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/intentsim/bloomcascade/internal/agent"
	"github.com/intentsim/bloomcascade/internal/field"
	"github.com/intentsim/bloomcascade/internal/forecast"
	"github.com/intentsim/bloomcascade/internal/graph"
	"github.com/intentsim/bloomcascade/internal/logging"
	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/oscillation"
	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/spatial"
)

// pcgStream is the second PCG word; the first is the configured seed.
const pcgStream = 0x9e3779b97f4a7c15

// Engine owns one simulation run. It is not safe for concurrent use;
// callers that share an engine must serialize access.
type Engine struct {
	cfg Config

	src *rand.PCG
	rng *rand.Rand

	osc     *oscillation.Engine
	pop     *agent.Population
	graph   *graph.Graph
	ctrl    *phase.Controller
	history *metrics.History

	step           int
	criticalPeriod float64
	focus          float64
	grid           *field.Grid

	models  map[metrics.Metric]*forecast.Model
	pending *forecast.Job

	logger *slog.Logger
	events *logging.EventLogger
}

// New validates cfg and builds a fresh engine: agents are drawn, the
// initial graph is bootstrapped and the phase is Initialization.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	cfg = cfg.Resolved()

	e := newEngine(cfg, rand.NewPCG(cfg.Seed, pcgStream))
	pop, err := agent.NewPopulation(cfg.Agents, cfg.Bounds, e.rng)
	if err != nil {
		return nil, err
	}
	e.pop = pop
	e.graph = graph.New(cfg.Graph)
	e.graph.Bootstrap(pop, e.rng)
	e.history, _ = metrics.NewHistory(nil)
	return e, nil
}

func newEngine(cfg Config, src *rand.PCG) *Engine {
	rng := rand.New(src)
	osc := oscillation.NewEngine(cfg.Oscillation, rng)
	return &Engine{
		cfg:            cfg,
		src:            src,
		rng:            rng,
		osc:            osc,
		ctrl:           phase.NewController(cfg.TrendGuard),
		criticalPeriod: 1,
		focus:          osc.InternalFocusLevel(),
		models:         map[metrics.Metric]*forecast.Model{},
		logger:         logging.Discard(),
	}
}

// SetLogger sets the structured logger and event logger for observability.
func (e *Engine) SetLogger(logger *slog.Logger, events *logging.EventLogger) {
	if logger == nil {
		logger = logging.Discard()
	}
	e.logger = logger
	e.events = events
}

// Config returns the resolved configuration.
func (e *Engine) Config() Config { return e.cfg }

// CurrentStep returns the number of completed steps.
func (e *Engine) CurrentStep() int { return e.step }

// Phase returns the active phase.
func (e *Engine) Phase() phase.Phase { return e.ctrl.Current() }

// CriticalPeriod returns the current critical-period plasticity in [0,1].
func (e *Engine) CriticalPeriod() float64 { return e.criticalPeriod }

// Agents returns a deep copy of the population.
func (e *Engine) Agents() []agent.Agent { return e.pop.Snapshot() }

// Connections returns a copy of the connection list.
func (e *Engine) Connections() []graph.Connection { return e.graph.Connections() }

// Grid returns a copy of the field grid computed by the last step, or nil
// before the first step.
func (e *Engine) Grid() *field.Grid {
	if e.grid == nil {
		return nil
	}
	g := *e.grid
	g.Values = append([]float64(nil), e.grid.Values...)
	return &g
}

// History returns a copy of every snapshot recorded so far.
func (e *Engine) History() []metrics.Snapshot { return e.history.Snapshots() }

// mark captures the state a step mutates before its last cancellation
// point.
type mark struct {
	osc            oscillation.State
	rng            []byte
	criticalPeriod float64
	focus          float64
}

func (e *Engine) mark() (mark, error) {
	b, err := e.src.MarshalBinary()
	if err != nil {
		return mark{}, fmt.Errorf("save generator state: %w", err)
	}
	return mark{osc: e.osc.State(), rng: b, criticalPeriod: e.criticalPeriod, focus: e.focus}, nil
}

func (e *Engine) rollback(m mark) {
	e.osc.Restore(m.osc)
	_ = e.src.UnmarshalBinary(m.rng)
	e.criticalPeriod = m.criticalPeriod
	e.focus = m.focus
}

// Step advances the simulation by one step and returns its snapshot.
//
// Order: phase selection (with entry effects), oscillation advance,
// critical-period decay, spatial index rebuild, field resample, agent
// update, pruning if the phase prunes, connection aging, snapshot.
// A step cancelled through ctx leaves agents, oscillators, the generator
// and the history unchanged; a phase change selected for it stays.
func (e *Engine) Step(ctx context.Context) (metrics.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return metrics.Snapshot{}, err
	}
	if p, changed := e.ctrl.Select(e.step); changed {
		if err := e.enter(p, 1); err != nil {
			return metrics.Snapshot{}, err
		}
	}
	m, err := e.mark()
	if err != nil {
		return metrics.Snapshot{}, err
	}

	current := e.ctrl.Current()
	coef := phase.For(current)

	e.osc.Advance()
	e.focus = clamp01(e.osc.InternalFocusLevel() * coef.FocusMultiplier)
	e.criticalPeriod = clamp01(e.criticalPeriod * coef.CriticalPeriodDecay * e.cfg.CriticalPeriodFlexibility)

	index := spatial.Build(e.pop.Bounds(), e.pop.Positions())
	sampler := field.NewSampler(e.cfg.Field, index, e.pop.All(), e.osc)
	w, h := e.cfg.GridSize()
	grid, err := sampler.ResampleAll(ctx, w, h)
	if err != nil {
		e.rollback(m)
		return metrics.Snapshot{}, err
	}

	sc := agent.StepContext{
		Coefficients:   coef,
		Field:          sampler,
		SlowPhase:      e.osc.SlowPhase(),
		Focus:          e.focus,
		CriticalPeriod: e.criticalPeriod,
	}
	if err := e.pop.Step(ctx, sc, e.rng); err != nil {
		e.rollback(m)
		return metrics.Snapshot{}, err
	}
	e.grid = grid

	var pruningRate float64
	if coef.Prunes {
		report := e.graph.Prune(e.pop)
		pruningRate = report.Rate
		if report.Removed > 0 {
			e.logger.Debug("pruned connections", "step", e.step+1, "before", report.Before, "removed", report.Removed)
			e.events.Log("prune", map[string]any{
				"step":    e.step + 1,
				"before":  report.Before,
				"removed": report.Removed,
				"rate":    report.Rate,
			})
		}
	}
	e.graph.AgeAll()
	e.step++

	snap := metrics.Compute(e.cfg.Metrics, metrics.Inputs{
		Step:           e.step,
		Seed:           e.cfg.Seed,
		Agents:         e.pop.All(),
		Bounds:         e.pop.Bounds(),
		Grid:           grid,
		TotalWeight:    e.graph.TotalWeight(),
		Connections:    e.graph.Len(),
		Phase:          current,
		Focus:          e.focus,
		Coupling:       e.osc.CouplingStrength(oscillation.Slow, oscillation.Fast),
		PruningRate:    pruningRate,
		CriticalPeriod: e.criticalPeriod,
	})
	if err := e.history.Append(snap); err != nil {
		return metrics.Snapshot{}, err
	}
	e.ctrl.Observe(snap.Coherence, snap.Complexity)

	e.logger.Log(ctx, logging.LevelTrace, "step",
		"step", snap.Step,
		"phase", snap.Phase,
		"coherence", snap.Coherence,
		"entropy", snap.Entropy,
		"complexity", snap.Complexity,
		"connections", snap.ConnectionCount,
	)
	return snap, nil
}

// Run advances steps times and returns the snapshots produced. Schedule
// keys are relative to the run start: key k applies before the run's
// (k+1)-th step. On error the snapshots completed so far are returned with
// it.
func (e *Engine) Run(ctx context.Context, steps int, schedule phase.Schedule) ([]metrics.Snapshot, error) {
	if steps < 0 {
		return nil, fmt.Errorf("steps must be non-negative, got %d", steps)
	}
	if err := schedule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	e.ctrl.SetSchedule(schedule, e.step)
	defer e.ctrl.SetSchedule(nil, 0)

	e.logger.Info("run started", "steps", steps, "from", e.step, "scheduled", len(schedule))
	out := make([]metrics.Snapshot, 0, steps)
	for range steps {
		snap, err := e.Step(ctx)
		if err != nil {
			return out, fmt.Errorf("step %d: %w", e.step+1, err)
		}
		out = append(out, snap)
	}
	e.logger.Info("run finished", "step", e.step, "phase", e.ctrl.Current())
	return out, nil
}

// RunCascade runs total steps under a cascade schedule built from the
// bloom steps with the configured delay.
func (e *Engine) RunCascade(ctx context.Context, total int, blooms []int) ([]metrics.Snapshot, error) {
	return e.Run(ctx, total, phase.CascadeSchedule(total, blooms, e.cfg.CascadeDelay))
}

// TriggerBloom enters Bloom immediately with the given strength in [0,1].
// The entry effect applies even if Bloom is already active.
func (e *Engine) TriggerBloom(strength float64) error {
	if math.IsNaN(strength) || strength < 0 || strength > 1 {
		return fmt.Errorf("bloom strength must be between 0 and 1, got %v", strength)
	}
	e.ctrl.Transition(phase.Bloom)
	return e.enter(phase.Bloom, strength)
}

// TransitionTo switches to p and applies its entry effect if the phase
// changed.
func (e *Engine) TransitionTo(p phase.Phase) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", phase.ErrInvalidPhase, int(p))
	}
	if !e.ctrl.Transition(p) {
		return nil
	}
	return e.enter(p, 1)
}

// enter applies the entry effect of p.
func (e *Engine) enter(p phase.Phase, strength float64) error {
	fields := map[string]any{"step": e.step, "phase": p.String()}
	switch p {
	case phase.Bloom:
		if err := e.pop.ApplyBloom(strength, e.rng); err != nil {
			return err
		}
		index := spatial.Build(e.pop.Bounds(), e.pop.Positions())
		count := int(float64(e.pop.Len()) * strength * 2)
		added := e.graph.Grow(e.pop, index, e.cfg.Field.Radius(), count, e.rng)
		fields["strength"] = strength
		fields["added"] = added
	case phase.Pruning:
		e.pop.ApplyPruningEntry()
	case phase.Resonance:
		index := spatial.Build(e.pop.Bounds(), e.pop.Positions())
		sampler := field.NewSampler(e.cfg.Field, index, e.pop.All(), e.osc)
		fields["boosted"] = e.pop.ApplyResonanceEntry(sampler)
	}
	e.logger.Debug("phase entered", "step", e.step, "phase", p)
	e.events.Log("phase_transition", fields)
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
