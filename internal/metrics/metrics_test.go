package metrics

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/intentsim/bloomcascade/internal/agent"
	"github.com/intentsim/bloomcascade/internal/field"
	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/spatial"
)

func TestCoherenceOf(t *testing.T) {
	tests := []struct {
		name string
		vs   []Vector
		want float64
	}{
		{"empty", nil, 1},
		{"single", []Vector{{0.3, 0.2, 0.1}}, 1},
		{"identical", []Vector{{0.5, 0.5, 0}, {0.5, 0.5, 0}, {0.5, 0.5, 0}}, 1},
		{"all zero", []Vector{{}, {}}, 1},
		{"opposed", []Vector{{1, 0, 0}, {-1, 0, 0}}, 0},
		{"orthogonal", []Vector{{1, 0, 0}, {0, 1, 0}}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoherenceOf(tt.vs); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("CoherenceOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntropyOf(t *testing.T) {
	tests := []struct {
		name string
		vs   []Vector
		want float64
	}{
		{"empty", nil, 0},
		{"single", []Vector{{1, 0, 0}}, 0},
		{"identical", []Vector{{0.4, 0.3, 0}, {0.4, 0.3, 0}, {0.4, 0.3, 0}}, 0},
		{"all zero", []Vector{{}, {}, {}}, 0},
		{"one and three", []Vector{{1, 0, 0}, {0, 3, 0}}, -(0.25*math.Log(0.25) + 0.75*math.Log(0.75)) / math.Log(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EntropyOf(tt.vs); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("EntropyOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoherenceAndEntropyBounded(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(40)
		vs := make([]Vector, n)
		for i := range vs {
			vs[i] = Vector{rng.NormFloat64() * 3, rng.Float64(), rng.Float64()}
		}
		if c := CoherenceOf(vs); c < 0 || c > 1 {
			t.Fatalf("trial %d: coherence %v out of [0,1]", trial, c)
		}
		if e := EntropyOf(vs); e < 0 || e > 1 {
			t.Fatalf("trial %d: entropy %v out of [0,1]", trial, e)
		}
	}
}

func TestNormalizedEntropy(t *testing.T) {
	if got := NormalizedEntropy([]float64{2, 2, 2, 2}); math.Abs(got-1) > 1e-9 {
		t.Errorf("uniform = %v, want 1", got)
	}
	if got := NormalizedEntropy([]float64{-1, -1, -1}); math.Abs(got-1) > 1e-9 {
		t.Errorf("shifted uniform = %v, want 1", got)
	}
	if got := NormalizedEntropy([]float64{5}); got != 0 {
		t.Errorf("single value = %v, want 0", got)
	}
	if got := NormalizedEntropy([]float64{0, 0, 100}); got > 0.01 {
		t.Errorf("concentrated = %v, want near 0", got)
	}
}

func TestBonds(t *testing.T) {
	vs := []Vector{{1, 0, 0}, {2, 0, 0}, {0, 1, 0}, {}}
	if got := Bonds(vs, 0.9); got != 1 {
		t.Errorf("Bonds = %d, want 1", got)
	}
}

func TestBonds_DefaultThreshold(t *testing.T) {
	cfg := DefaultConfig()
	// cos = 0.8
	pair := []Vector{{1, 0, 0}, {0.8, 0.6, 0}}
	if got := Bonds(pair, cfg.BondThreshold); got != 1 {
		t.Errorf("Bonds at cosine 0.8 = %d, want 1", got)
	}
	// cos = 0.6
	weak := []Vector{{1, 0, 0}, {0.6, 0.8, 0}}
	if got := Bonds(weak, cfg.BondThreshold); got != 0 {
		t.Errorf("Bonds at cosine 0.6 = %d, want 0", got)
	}
}

func TestInversions(t *testing.T) {
	agents := []agent.Agent{
		{Displacement: spatial.Vec2{X: 1}, PrevDisplacement: spatial.Vec2{X: -1}},
		{Displacement: spatial.Vec2{X: 1}, PrevDisplacement: spatial.Vec2{X: 1}},
		{Displacement: spatial.Vec2{Y: 1}, PrevDisplacement: spatial.Vec2{X: 1}},
		{},
	}
	if got := Inversions(agents); got != 1 {
		t.Errorf("Inversions = %d, want 1", got)
	}
}

func TestEnergyOf(t *testing.T) {
	grid := &field.Grid{Width: 2, Height: 1, Values: []float64{-1, 2}}
	agents := []agent.Agent{{Alignment: -1, Information: 0.5}}
	// (3 + 1.5 + 2.5) / 2
	if got := EnergyOf(grid, agents, 2.5); math.Abs(got-3.5) > 1e-12 {
		t.Errorf("EnergyOf = %v, want 3.5", got)
	}
	if got := EnergyOf(nil, nil, 0); got != 0 {
		t.Errorf("EnergyOf(empty) = %v, want 0", got)
	}
}

func testAgents(t *testing.T, n int) []agent.Agent {
	t.Helper()
	cfg := agent.DefaultConfig()
	cfg.Count = n
	pop, err := agent.NewPopulation(cfg, spatial.Bounds{Width: 100, Height: 100}, rand.New(rand.NewPCG(5, 5)))
	if err != nil {
		t.Fatalf("NewPopulation: %v", err)
	}
	for i := 0; i < n; i++ {
		pop.Link(i, (i+1)%n)
		pop.Link(i, (i+2)%n)
	}
	return pop.Snapshot()
}

func TestComplexityOf(t *testing.T) {
	bounds := spatial.Bounds{Width: 100, Height: 100}
	agents := testAgents(t, 60)

	a := ComplexityOf(DefaultConfig(), agents, bounds, rand.New(rand.NewPCG(1, 2)))
	b := ComplexityOf(DefaultConfig(), agents, bounds, rand.New(rand.NewPCG(1, 2)))
	if a != b {
		t.Errorf("same sampling seed gave %v and %v", a, b)
	}
	if a <= 0 || a > 1 {
		t.Errorf("complexity %v out of (0,1]", a)
	}
	if got := ComplexityOf(DefaultConfig(), agents[:1], bounds, rand.New(rand.NewPCG(1, 2))); got != 0 {
		t.Errorf("single agent complexity = %v, want 0", got)
	}
}

func TestCompute_DoesNotMutate(t *testing.T) {
	agents := testAgents(t, 30)
	before := make([]agent.Agent, len(agents))
	for i := range agents {
		before[i] = agents[i].Clone()
	}
	snap := Compute(DefaultConfig(), Inputs{
		Step:   3,
		Seed:   42,
		Agents: agents,
		Bounds: spatial.Bounds{Width: 100, Height: 100},
		Phase:  phase.Bloom,
	})
	if diff := cmp.Diff(before, agents); diff != "" {
		t.Errorf("Compute mutated agents:\n%s", diff)
	}
	if snap.Step != 3 || snap.Phase != phase.Bloom {
		t.Errorf("snapshot = %+v", snap)
	}
	again := Compute(DefaultConfig(), Inputs{Step: 3, Seed: 42, Agents: agents, Bounds: spatial.Bounds{Width: 100, Height: 100}, Phase: phase.Bloom})
	if diff := cmp.Diff(snap, again); diff != "" {
		t.Errorf("Compute not reproducible:\n%s", diff)
	}
}

func TestHistory_AppendOrder(t *testing.T) {
	var h History
	if err := h.Append(Snapshot{Step: 1}); err != nil {
		t.Fatalf("Append(1): %v", err)
	}
	if err := h.Append(Snapshot{Step: 1}); !errors.Is(err, ErrStepOrder) {
		t.Errorf("Append duplicate step: err = %v, want ErrStepOrder", err)
	}
	if err := h.Append(Snapshot{Step: 0}); !errors.Is(err, ErrStepOrder) {
		t.Errorf("Append earlier step: err = %v, want ErrStepOrder", err)
	}
	if err := h.Append(Snapshot{Step: 5, Coherence: 0.4}); err != nil {
		t.Fatalf("Append(5): %v", err)
	}
	if h.Len() != 2 {
		t.Errorf("Len = %d, want 2", h.Len())
	}
}

func TestHistory_CopiesOut(t *testing.T) {
	h, err := NewHistory([]Snapshot{{Step: 1, Coherence: 0.1}, {Step: 2, Coherence: 0.2}, {Step: 4, Coherence: 0.4}})
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	snaps := h.Snapshots()
	snaps[0].Coherence = 99
	if diff := cmp.Diff([]float64{0.1, 0.2, 0.4}, h.Series(Coherence)); diff != "" {
		t.Errorf("Series mismatch (-want +got):\n%s", diff)
	}
	if got := h.Since(2); len(got) != 2 || got[0].Step != 2 {
		t.Errorf("Since(2) = %+v", got)
	}
	if got := h.Since(3); len(got) != 1 || got[0].Step != 4 {
		t.Errorf("Since(3) = %+v", got)
	}
	if _, err := NewHistory([]Snapshot{{Step: 2}, {Step: 2}}); !errors.Is(err, ErrStepOrder) {
		t.Errorf("NewHistory with duplicate steps: err = %v", err)
	}
}

func TestParseMetric(t *testing.T) {
	for _, m := range All() {
		got, err := ParseMetric(string(m))
		if err != nil || got != m {
			t.Errorf("ParseMetric(%q) = %q, %v", m, got, err)
		}
		if _, ok := (Snapshot{}).Value(m); !ok {
			t.Errorf("Snapshot.Value(%q) not handled", m)
		}
	}
	if _, err := ParseMetric("vibes"); !errors.Is(err, ErrUnknownMetric) {
		t.Errorf("ParseMetric(vibes): err = %v", err)
	}
}
