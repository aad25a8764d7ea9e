package graph

import (
	"math"
	"sort"

	"github.com/intentsim/bloomcascade/internal/agent"
)

// PruneReport summarizes one pruning pass.
type PruneReport struct {
	Before  int     `json:"before"`
	Removed int     `json:"removed"`
	Rate    float64 `json:"rate"`
}

// Strength returns the composite strength of c:
//
//	similarity * (1+res_s)(1+res_t) * content factor * weight
//
// where similarity is 1 - |alignment difference| and narrative content
// counts 1.2. It reports false if either endpoint is not in the population.
func Strength(c Connection, pop *agent.Population) (float64, bool) {
	s, ok1 := pop.Get(c.Source)
	t, ok2 := pop.Get(c.Target)
	if !ok1 || !ok2 {
		return 0, false
	}
	similarity := 1 - math.Abs(s.Alignment-t.Alignment)
	resonance := (1 + s.Resonance) * (1 + t.Resonance)
	content := 1.0
	if c.Content == Narrative {
		content = 1.2
	}
	return similarity * resonance * content * c.Weight, true
}

// Threshold returns the pruning threshold for c: the base threshold times
// the endpoints' mean pruning sensitivity times (1 + overpruning risk).
func (g *Graph) Threshold(c Connection, pop *agent.Population) (float64, bool) {
	s, ok1 := pop.Get(c.Source)
	t, ok2 := pop.Get(c.Target)
	if !ok1 || !ok2 {
		return 0, false
	}
	sensitivity := (s.PruningSensitivity + t.PruningSensitivity) / 2
	return g.cfg.PruningThreshold * sensitivity * (1 + g.cfg.OverpruningRisk), true
}

// Prune removes every connection whose strength is below its threshold,
// weakest first, and unlinks the endpoints. Connections referencing agents
// outside the population are left alone.
func (g *Graph) Prune(pop *agent.Population) PruneReport {
	report := PruneReport{Before: len(g.conns)}
	if len(g.conns) == 0 {
		return report
	}

	type candidate struct {
		idx      int
		strength float64
	}
	var candidates []candidate
	for i, c := range g.conns {
		strength, ok := Strength(c, pop)
		if !ok {
			continue
		}
		threshold, _ := g.Threshold(c, pop)
		if strength < threshold {
			candidates = append(candidates, candidate{idx: i, strength: strength})
		}
	}
	if len(candidates) == 0 {
		return report
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].strength < candidates[j].strength
	})

	removed := make([]bool, len(g.conns))
	for _, cand := range candidates {
		if cand.idx >= len(g.conns) || removed[cand.idx] {
			continue
		}
		c := g.conns[cand.idx]
		pop.Unlink(c.Source, c.Target)
		removed[cand.idx] = true
		report.Removed++
	}

	kept := g.conns[:0]
	for i, c := range g.conns {
		if !removed[i] {
			kept = append(kept, c)
		}
	}
	g.conns = kept
	report.Rate = float64(report.Removed) / float64(report.Before)
	return report
}
