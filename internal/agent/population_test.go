package agent

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/spatial"
)

type constField float64

func (f constField) SampleAt(spatial.Vec2, float64, float64) float64 { return float64(f) }

// slopeField increases linearly along X.
type slopeField struct{}

func (slopeField) SampleAt(p spatial.Vec2, _, _ float64) float64 { return p.X * 0.01 }

var testBounds = spatial.Bounds{Width: 100, Height: 100}

func newTestPopulation(t *testing.T, count int, seed uint64) *Population {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Count = count
	p, err := NewPopulation(cfg, testBounds, rand.New(rand.NewPCG(seed, 99)))
	if err != nil {
		t.Fatalf("NewPopulation: %v", err)
	}
	return p
}

func TestNewPopulation_Ranges(t *testing.T) {
	p := newTestPopulation(t, 300, 1)
	if p.Len() != 300 {
		t.Fatalf("Len = %d, want 300", p.Len())
	}
	for _, a := range p.All() {
		if !testBounds.Contains(a.Position) {
			t.Errorf("agent %d: position %v out of bounds", a.ID, a.Position)
		}
		if a.Information < 0 || a.Information > 1 {
			t.Errorf("agent %d: information %f out of [0,1]", a.ID, a.Information)
		}
		if a.Variability < 0 || a.Variability > 1 {
			t.Errorf("agent %d: variability %f out of [0,1]", a.ID, a.Variability)
		}
		if a.Resonance != 0 {
			t.Errorf("agent %d: initial resonance %f, want 0", a.ID, a.Resonance)
		}
		if len(a.History.Alignment) != 1 || a.History.Alignment[0] != a.Alignment {
			t.Errorf("agent %d: history not seeded with initial alignment", a.ID)
		}
	}
}

func TestNewPopulation_Deterministic(t *testing.T) {
	a := newTestPopulation(t, 50, 7)
	b := newTestPopulation(t, 50, 7)
	if diff := cmp.Diff(a.Snapshot(), b.Snapshot()); diff != "" {
		t.Errorf("same seed produced different agents (-a +b):\n%s", diff)
	}
}

func TestNewPopulation_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InformationDensity = 1
	if _, err := NewPopulation(cfg, testBounds, rand.New(rand.NewPCG(1, 1))); err == nil {
		t.Error("expected error for information_density = 1")
	}
}

func linkRing(p *Population) {
	for i := 0; i < p.Len(); i++ {
		p.Link(i, (i+1)%p.Len())
	}
}

func TestStep_OrderIndependent(t *testing.T) {
	run := func(workers int) []Agent {
		cfg := DefaultConfig()
		cfg.Count = 80
		cfg.Workers = workers
		p, err := NewPopulation(cfg, testBounds, rand.New(rand.NewPCG(3, 3)))
		if err != nil {
			t.Fatalf("NewPopulation: %v", err)
		}
		linkRing(p)
		rng := rand.New(rand.NewPCG(5, 5))
		sc := StepContext{Coefficients: phase.For(phase.Bloom), Field: slopeField{}, SlowPhase: 1, Focus: 0.3, CriticalPeriod: 1}
		for i := 0; i < 5; i++ {
			if err := p.Step(context.Background(), sc, rng); err != nil {
				t.Fatalf("Step: %v", err)
			}
		}
		return p.Snapshot()
	}

	serial := run(1)
	parallel := run(8)
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("worker count changed results (-serial +parallel):\n%s", diff)
	}
}

func TestStep_InvariantsHold(t *testing.T) {
	p := newTestPopulation(t, 60, 11)
	linkRing(p)
	rng := rand.New(rand.NewPCG(2, 2))
	for i, ph := range phase.All() {
		sc := StepContext{Coefficients: phase.For(ph), Field: constField(5), SlowPhase: float64(i), Focus: 0.5, CriticalPeriod: 0.8}
		if err := p.Step(context.Background(), sc, rng); err != nil {
			t.Fatalf("Step(%v): %v", ph, err)
		}
	}
	for _, a := range p.All() {
		if !testBounds.Contains(a.Position) {
			t.Errorf("agent %d: position %v out of bounds", a.ID, a.Position)
		}
		if a.Resonance < 0 || a.Resonance > 1 {
			t.Errorf("agent %d: resonance %f out of [0,1]", a.ID, a.Resonance)
		}
		if got := len(a.History.Alignment); got != 6 {
			t.Errorf("agent %d: history length %d, want 6", a.ID, got)
		}
	}
}

func TestStep_ResonanceDecaysBelowThreshold(t *testing.T) {
	p := newTestPopulation(t, 3, 4)
	for i := range p.All() {
		p.All()[i].Resonance = 0.5
	}
	sc := StepContext{Coefficients: phase.For(phase.Stable), Field: constField(0)}
	if err := p.Step(context.Background(), sc, rand.New(rand.NewPCG(1, 1))); err != nil {
		t.Fatalf("Step: %v", err)
	}
	for _, a := range p.All() {
		if math.Abs(a.Resonance-0.475) > 1e-12 {
			t.Errorf("agent %d: resonance %f, want 0.475", a.ID, a.Resonance)
		}
	}
}

func TestStep_ResonanceGrowsAboveThreshold(t *testing.T) {
	p := newTestPopulation(t, 3, 4)
	sc := StepContext{Coefficients: phase.For(phase.Resonance), Field: constField(1.1), SlowPhase: math.Pi / 2}
	if err := p.Step(context.Background(), sc, rand.New(rand.NewPCG(1, 1))); err != nil {
		t.Fatalf("Step: %v", err)
	}
	// (1.1 - 0.1) * 0.1 * (1 + sin(pi/2)) = 0.2
	for _, a := range p.All() {
		if math.Abs(a.Resonance-0.2) > 1e-12 {
			t.Errorf("agent %d: resonance %f, want 0.2", a.ID, a.Resonance)
		}
	}
}

func TestStep_RecordsDisplacements(t *testing.T) {
	p := newTestPopulation(t, 10, 6)
	rng := rand.New(rand.NewPCG(8, 8))
	sc := StepContext{Coefficients: phase.For(phase.Initialization), Field: constField(0)}
	for i := 0; i < 2; i++ {
		if err := p.Step(context.Background(), sc, rng); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	for _, a := range p.All() {
		if a.Displacement.IsZero() || a.PrevDisplacement.IsZero() {
			t.Errorf("agent %d: displacements not recorded", a.ID)
		}
	}
}

func TestStep_Cancelled(t *testing.T) {
	p := newTestPopulation(t, 10, 6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := p.Snapshot()
	err := p.Step(ctx, StepContext{Coefficients: phase.For(phase.Stable)}, rand.New(rand.NewPCG(1, 1)))
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if diff := cmp.Diff(before, p.Snapshot()); diff != "" {
		t.Errorf("cancelled step committed changes:\n%s", diff)
	}
}

func TestApplyBloom(t *testing.T) {
	p := newTestPopulation(t, 20, 9)
	for i := range p.All() {
		p.All()[i].Resonance = 0.7
	}
	before := p.Snapshot()
	if err := p.ApplyBloom(1, rand.New(rand.NewPCG(1, 2))); err != nil {
		t.Fatalf("ApplyBloom: %v", err)
	}
	for i, a := range p.All() {
		if a.Resonance != 0 {
			t.Errorf("agent %d: resonance %f, want 0", i, a.Resonance)
		}
		if want := before[i].Variability * 0.7; math.Abs(a.Variability-want) > 1e-12 {
			t.Errorf("agent %d: variability %f, want %f", i, a.Variability, want)
		}
	}

	for _, s := range []float64{-0.1, 1.5, math.NaN()} {
		if err := p.ApplyBloom(s, rand.New(rand.NewPCG(1, 2))); err == nil {
			t.Errorf("ApplyBloom(%v): expected error", s)
		}
	}
}

func TestApplyResonanceEntry(t *testing.T) {
	p := newTestPopulation(t, 5, 2)
	if got := p.ApplyResonanceEntry(constField(0.5)); got != 5 {
		t.Errorf("boosted = %d, want 5", got)
	}
	for _, a := range p.All() {
		if math.Abs(a.Resonance-0.2) > 1e-12 {
			t.Errorf("agent %d: resonance %f, want 0.2", a.ID, a.Resonance)
		}
	}
	if got := p.ApplyResonanceEntry(constField(0)); got != 0 {
		t.Errorf("boosted = %d below threshold, want 0", got)
	}
}

func TestLinkUnlink(t *testing.T) {
	p := newTestPopulation(t, 4, 1)
	if !p.Link(0, 1) {
		t.Fatal("Link(0,1) = false")
	}
	if p.Link(1, 0) {
		t.Error("duplicate link accepted")
	}
	if p.Link(0, 0) || p.Link(0, 9) || p.Link(-1, 2) {
		t.Error("invalid link accepted")
	}
	p.Unlink(0, 1)
	p.Unlink(0, 42)
	a, _ := p.Get(0)
	b, _ := p.Get(1)
	if a.HasNeighbor(1) || b.HasNeighbor(0) {
		t.Error("Unlink left a neighbor reference")
	}
}

func TestFromAgents_DropsInvalidNeighbors(t *testing.T) {
	agents := []Agent{
		{Position: spatial.Vec2{X: 120, Y: -5}, Neighbors: []int{1, 7, 0}, Resonance: 3},
		{Neighbors: []int{0}},
	}
	p, err := FromAgents(DefaultConfig(), testBounds, agents)
	if err != nil {
		t.Fatalf("FromAgents: %v", err)
	}
	a, _ := p.Get(0)
	if diff := cmp.Diff([]int{1}, a.Neighbors); diff != "" {
		t.Errorf("neighbors mismatch (-want +got):\n%s", diff)
	}
	if !testBounds.Contains(a.Position) || a.Resonance != 1 {
		t.Errorf("restored agent not normalized: %+v", a)
	}
	if agents[0].Neighbors[1] != 7 {
		t.Error("FromAgents mutated its input")
	}
}

func TestBetaSample_Mean(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	tests := []struct {
		a, b, mean float64
	}{
		{2, 2, 0.5},
		{3, 1, 0.75},
		{0.4, 1.6, 0.2},
		{2.5, 4.5, 2.5 / 7},
	}
	for _, tt := range tests {
		const n = 20000
		var sum float64
		for i := 0; i < n; i++ {
			v := betaSample(rng, tt.a, tt.b)
			if v < 0 || v > 1 {
				t.Fatalf("Beta(%v,%v) sample %f out of [0,1]", tt.a, tt.b, v)
			}
			sum += v
		}
		if got := sum / n; math.Abs(got-tt.mean) > 0.02 {
			t.Errorf("Beta(%v,%v) mean = %f, want %f", tt.a, tt.b, got, tt.mean)
		}
	}
}
