package simulation

import (
	"fmt"
	"math/rand/v2"

	"github.com/intentsim/bloomcascade/internal/agent"
	"github.com/intentsim/bloomcascade/internal/graph"
	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/oscillation"
	"github.com/intentsim/bloomcascade/internal/phase"
)

// State is a serializable snapshot of an engine: configuration, agents,
// connections, history, oscillator and generator state. Restoring it
// resumes stepping with identical results.
type State struct {
	Config         Config             `json:"config"`
	Step           int                `json:"step"`
	Phase          phase.Phase        `json:"phase"`
	CriticalPeriod float64            `json:"critical_period"`
	Focus          float64            `json:"focus"`
	Oscillation    oscillation.State  `json:"oscillation"`
	Generator      []byte             `json:"generator"`
	Agents         []agent.Agent      `json:"agents"`
	Connections    []graph.Connection `json:"connections"`
	History        []metrics.Snapshot `json:"history"`
}

// State returns a deep copy of the engine state. Trained forecast models
// and the trend guard's window are not part of it.
func (e *Engine) State() (*State, error) {
	gen, err := e.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("save generator state: %w", err)
	}
	return &State{
		Config:         e.cfg,
		Step:           e.step,
		Phase:          e.ctrl.Current(),
		CriticalPeriod: e.criticalPeriod,
		Focus:          e.focus,
		Oscillation:    e.osc.State(),
		Generator:      gen,
		Agents:         e.pop.Snapshot(),
		Connections:    e.graph.Connections(),
		History:        e.history.Snapshots(),
	}, nil
}

// Restore builds an engine from s. The configuration is validated again;
// connections with invalid endpoints are dropped and the history must be
// strictly increasing in step.
func Restore(s *State) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("restore: nil state")
	}
	if err := s.Config.Validate(); err != nil {
		return nil, fmt.Errorf("restore: invalid config: %w", err)
	}
	if !s.Phase.Valid() {
		return nil, fmt.Errorf("restore: %w: %d", phase.ErrInvalidPhase, int(s.Phase))
	}
	if s.Step < 0 {
		return nil, fmt.Errorf("restore: negative step %d", s.Step)
	}
	cfg := s.Config.Resolved()

	src := &rand.PCG{}
	if err := src.UnmarshalBinary(s.Generator); err != nil {
		return nil, fmt.Errorf("restore generator state: %w", err)
	}
	e := newEngine(cfg, src)
	e.step = s.Step
	e.criticalPeriod = clamp01(s.CriticalPeriod)
	e.focus = clamp01(s.Focus)
	e.osc.Restore(s.Oscillation)
	e.ctrl.Restore(s.Phase)

	pop, err := agent.FromAgents(cfg.Agents, cfg.Bounds, s.Agents)
	if err != nil {
		return nil, fmt.Errorf("restore agents: %w", err)
	}
	e.pop = pop
	e.graph = graph.FromConnections(cfg.Graph, s.Connections, pop)

	history, err := metrics.NewHistory(s.History)
	if err != nil {
		return nil, fmt.Errorf("restore history: %w", err)
	}
	e.history = history
	return e, nil
}
