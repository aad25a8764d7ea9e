package spatial

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestBounds_Wrap(t *testing.T) {
	b := Bounds{Width: 100, Height: 50}
	tests := []struct {
		name string
		in   Vec2
		want Vec2
	}{
		{"inside", Vec2{10, 20}, Vec2{10, 20}},
		{"past right edge", Vec2{105, 20}, Vec2{5, 20}},
		{"negative", Vec2{-5, -10}, Vec2{95, 40}},
		{"exact edge", Vec2{100, 50}, Vec2{0, 0}},
		{"far negative", Vec2{-250, 120}, Vec2{50, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Wrap(tt.in)
			if math.Abs(got.X-tt.want.X) > 1e-9 || math.Abs(got.Y-tt.want.Y) > 1e-9 {
				t.Errorf("Wrap(%v) = %v, want %v", tt.in, got, tt.want)
			}
			if !b.Contains(got) {
				t.Errorf("Wrap(%v) = %v is outside bounds", tt.in, got)
			}
		})
	}
}

func TestBounds_WrapTinyNegative(t *testing.T) {
	b := Bounds{Width: 100, Height: 100}
	got := b.Wrap(Vec2{X: -1e-18, Y: 3})
	if !b.Contains(got) {
		t.Fatalf("Wrap produced %v outside bounds", got)
	}
}

func TestBounds_DeltaUsesMinimumImage(t *testing.T) {
	b := Bounds{Width: 100, Height: 100}
	d := b.Delta(Vec2{95, 50}, Vec2{5, 50})
	if math.Abs(d.X-10) > 1e-9 || d.Y != 0 {
		t.Errorf("Delta across edge = %v, want {10 0}", d)
	}
	if got := b.Distance(Vec2{1, 1}, Vec2{99, 99}); math.Abs(got-math.Sqrt2*2) > 1e-9 {
		t.Errorf("Distance across corner = %f, want %f", got, 2*math.Sqrt2)
	}
}

func TestIndex_Empty(t *testing.T) {
	ix := Build(Bounds{Width: 10, Height: 10}, nil)
	got := ix.QueryRadius(Vec2{5, 5}, 3)
	if got == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}

func TestIndex_MatchesBruteForce(t *testing.T) {
	b := Bounds{Width: 100, Height: 80}
	rng := rand.New(rand.NewPCG(7, 11))
	positions := make([]Vec2, 200)
	for i := range positions {
		positions[i] = Vec2{X: rng.Float64() * b.Width, Y: rng.Float64() * b.Height}
	}
	ix := Build(b, positions)

	queries := []Vec2{{50, 40}, {1, 1}, {99, 79}, {0, 40}, {50, 0}}
	for _, radius := range []float64{2, 7.5, 15, 45} {
		for _, q := range queries {
			var want []int
			for i, p := range positions {
				if b.Distance(q, p) <= radius {
					want = append(want, i)
				}
			}
			got := ix.QueryRadius(q, radius)
			if !slices.Equal(got, want) && !(len(got) == 0 && len(want) == 0) {
				t.Errorf("QueryRadius(%v, %v) = %v, want %v", q, radius, got, want)
			}
		}
	}
}

func TestIndex_CopiesPositions(t *testing.T) {
	b := Bounds{Width: 10, Height: 10}
	positions := []Vec2{{1, 1}, {9, 9}}
	ix := Build(b, positions)
	positions[0] = Vec2{5, 5}

	got := ix.QueryRadius(Vec2{1, 1}, 0.5)
	if len(got) != 1 || got[0] != 0 {
		t.Errorf("index observed caller mutation: %v", got)
	}
}
