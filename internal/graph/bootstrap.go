package graph

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/intentsim/bloomcascade/internal/agent"
)

// Baseline builds the symmetric hub-plus-module connection probability
// matrix. A fixed fraction of agents are hubs; every agent is assigned to
// one of cfg.Modules modules; a pair's probability starts at the base rate
// and is boosted for shared modules, hub endpoints and a rare long-range
// draw.
func (g *Graph) Baseline(n int, rng *rand.Rand) *mat.SymDense {
	if n == 0 {
		return nil
	}
	hubs := make([]bool, n)
	for _, id := range rng.Perm(n)[:int(float64(n)*g.cfg.HubFraction)] {
		hubs[id] = true
	}
	module := make([]int, n)
	for i := range module {
		module[i] = rng.IntN(g.cfg.Modules)
	}

	p := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := g.cfg.BaseProbability
			if module[i] == module[j] {
				v += g.cfg.ModuleBoost
			}
			if hubs[i] || hubs[j] {
				v += g.cfg.HubBoost
			}
			if rng.Float64() < g.cfg.LongRangeChance {
				v += g.cfg.LongRangeBoost
			}
			p.SetSym(i, j, v)
		}
	}
	return p
}

// Bootstrap creates the initial connections. The modular baseline is
// blended with a distance-decay term exp(-5 d/d_max) by the connectivity
// factor, and each pair is sampled once. It returns the number of
// connections created.
func (g *Graph) Bootstrap(pop *agent.Population, rng *rand.Rand) int {
	n := pop.Len()
	if n < 2 {
		return 0
	}
	base := g.Baseline(n, rng)

	agents := pop.All()
	bounds := pop.Bounds()
	dist := mat.NewSymDense(n, nil)
	var maxDist float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := bounds.Distance(agents[i].Position, agents[j].Position)
			dist.SetSym(i, j, d)
			maxDist = math.Max(maxDist, d)
		}
	}

	hcp := g.cfg.ConnectivityFactor
	created := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			decay := 1.0
			if maxDist > 0 {
				decay = math.Exp(-5 * dist.At(i, j) / maxDist)
			}
			prob := hcp*base.At(i, j) + (1-hcp)*decay
			if rng.Float64() < prob && g.add(pop, i, j, rng) {
				created++
			}
		}
	}
	return created
}
