package field

import (
	"context"
	"math"
	"testing"

	"github.com/intentsim/bloomcascade/internal/agent"
	"github.com/intentsim/bloomcascade/internal/spatial"
)

type fakeOsc struct{ slow, fast float64 }

func (o fakeOsc) SlowValue() float64 { return o.slow }
func (o fakeOsc) FastValue() float64 { return o.fast }

func newTestSampler(t *testing.T, cfg Config, bounds spatial.Bounds, agents []agent.Agent, osc Oscillator) *Sampler {
	t.Helper()
	positions := make([]spatial.Vec2, len(agents))
	for i, a := range agents {
		positions[i] = a.Position
	}
	return NewSampler(cfg, spatial.Build(bounds, positions), agents, osc)
}

func unitAgent(x, y float64) agent.Agent {
	// weight = 1 * (0.5 + 0.5) * (1 + 0) = 1
	return agent.Agent{Position: spatial.Vec2{X: x, Y: y}, Alignment: 1, Information: 0.5}
}

func TestSample_Decay(t *testing.T) {
	bounds := spatial.Bounds{Width: 200, Height: 200}
	s := newTestSampler(t, DefaultConfig(), bounds, []agent.Agent{unitAgent(10, 10)}, nil)

	tests := []struct {
		name string
		at   spatial.Vec2
		want float64
	}{
		{"at agent", spatial.Vec2{X: 10, Y: 10}, 1},
		{"distance 5", spatial.Vec2{X: 15, Y: 10}, math.Exp(-1)},
		{"outside radius", spatial.Vec2{X: 100, Y: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sample(tt.at); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Sample(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestSample_Toroidal(t *testing.T) {
	bounds := spatial.Bounds{Width: 100, Height: 100}
	s := newTestSampler(t, DefaultConfig(), bounds, []agent.Agent{unitAgent(1, 50)}, nil)
	want := math.Exp(-0.2 * 2)
	if got := s.Sample(spatial.Vec2{X: 99, Y: 50}); math.Abs(got-want) > 1e-12 {
		t.Errorf("Sample across edge = %v, want %v", got, want)
	}
}

func TestSampleAt_UsesQuerierSensitivity(t *testing.T) {
	bounds := spatial.Bounds{Width: 100, Height: 100}
	a := unitAgent(50, 50)
	a.SlowSensitivity = 2
	s := newTestSampler(t, DefaultConfig(), bounds, []agent.Agent{a}, fakeOsc{slow: 0.5})

	p := spatial.Vec2{X: 50, Y: 50}
	if got := s.Sample(p); math.Abs(got-2) > 1e-12 {
		t.Errorf("Sample = %v, want 2 (contributor sensitivity)", got)
	}
	if got := s.SampleAt(p, 0, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("SampleAt(0,0) = %v, want 1", got)
	}
	if got := s.SampleAt(p, 1, 5); math.Abs(got-1.5) > 1e-12 {
		t.Errorf("SampleAt(1,5) = %v, want 1.5 (fast value is zero)", got)
	}
}

func TestSample_FrozenAgainstMutation(t *testing.T) {
	bounds := spatial.Bounds{Width: 100, Height: 100}
	agents := []agent.Agent{unitAgent(50, 50)}
	s := newTestSampler(t, DefaultConfig(), bounds, agents, nil)
	agents[0].Alignment = 100
	if got := s.Sample(spatial.Vec2{X: 50, Y: 50}); got != 1 {
		t.Errorf("Sample = %v after caller mutation, want 1", got)
	}
}

func TestSample_Empty(t *testing.T) {
	s := newTestSampler(t, DefaultConfig(), spatial.Bounds{Width: 10, Height: 10}, nil, nil)
	if got := s.Sample(spatial.Vec2{X: 1, Y: 1}); got != 0 {
		t.Errorf("Sample on empty population = %v, want 0", got)
	}
}

func TestResampleAll_StrideOneMatchesSample(t *testing.T) {
	bounds := spatial.Bounds{Width: 12, Height: 9}
	cfg := DefaultConfig()
	cfg.Stride = 1
	s := newTestSampler(t, cfg, bounds, []agent.Agent{unitAgent(3, 4), unitAgent(10, 1)}, fakeOsc{slow: 0.2, fast: -0.1})

	grid, err := s.ResampleAll(context.Background(), 12, 9)
	if err != nil {
		t.Fatalf("ResampleAll: %v", err)
	}
	for y := 0; y < 9; y++ {
		for x := 0; x < 12; x++ {
			want := s.Sample(spatial.Vec2{X: float64(x), Y: float64(y)})
			if got := grid.At(x, y); math.Abs(got-want) > 1e-12 {
				t.Fatalf("At(%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestResampleAll_SmoothingPreservesMass(t *testing.T) {
	bounds := spatial.Bounds{Width: 40, Height: 40}
	agents := []agent.Agent{unitAgent(10, 10), unitAgent(30, 22)}

	coarseCfg := DefaultConfig()
	coarseCfg.Stride = 1
	s1 := newTestSampler(t, coarseCfg, bounds, agents, nil)
	raw, err := s1.ResampleAll(context.Background(), 40, 40)
	if err != nil {
		t.Fatalf("ResampleAll: %v", err)
	}

	smoothed := &Grid{Width: raw.Width, Height: raw.Height, Values: append([]float64(nil), raw.Values...)}
	smooth(smoothed, 2.5)

	var sumRaw, sumSmooth float64
	for i := range raw.Values {
		sumRaw += raw.Values[i]
		sumSmooth += smoothed.Values[i]
	}
	if math.Abs(sumRaw-sumSmooth) > 1e-9 {
		t.Errorf("smoothing changed total mass: %v -> %v", sumRaw, sumSmooth)
	}
}

func TestResampleAll_Dimensions(t *testing.T) {
	bounds := spatial.Bounds{Width: 100, Height: 100}
	s := newTestSampler(t, DefaultConfig(), bounds, []agent.Agent{unitAgent(50, 50)}, nil)
	grid, err := s.ResampleAll(context.Background(), 100, 100)
	if err != nil {
		t.Fatalf("ResampleAll: %v", err)
	}
	if grid.Width != 100 || grid.Height != 100 || len(grid.Values) != 10000 {
		t.Fatalf("grid dims %dx%d (%d values)", grid.Width, grid.Height, len(grid.Values))
	}
	if grid.At(50, 50) <= grid.At(0, 0) {
		t.Errorf("field should peak near the agent: center %v corner %v", grid.At(50, 50), grid.At(0, 0))
	}
	if grid.AbsSum() <= 0 {
		t.Error("AbsSum should be positive")
	}
}

func TestResampleAll_Cancelled(t *testing.T) {
	s := newTestSampler(t, DefaultConfig(), spatial.Bounds{Width: 50, Height: 50}, []agent.Agent{unitAgent(1, 1)}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ResampleAll(ctx, 50, 50); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestGaussianKernel_Normalized(t *testing.T) {
	for _, sigma := range []float64{0.5, 1, 2.5} {
		var sum float64
		k := gaussianKernel(sigma)
		for _, w := range k {
			sum += w
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("sigma %v: kernel sums to %v", sigma, sum)
		}
		if len(k)%2 != 1 {
			t.Errorf("sigma %v: kernel length %d is even", sigma, len(k))
		}
	}
}
