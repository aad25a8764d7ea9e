package metrics

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/intentsim/bloomcascade/internal/agent"
	"github.com/intentsim/bloomcascade/internal/field"
	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/spatial"
)

// Vector is an agent state vector (alignment, information, resonance).
type Vector = [3]float64

// Config holds metric parameters.
type Config struct {
	// BondThreshold is the cosine similarity above which a pair counts as a
	// resonance bond. Default: 0.7.
	BondThreshold float64 `json:"bond_threshold" yaml:"bond_threshold"`

	// ClusteringSample is the number of nodes sampled for mean local
	// clustering. Default: 20.
	ClusteringSample int `json:"clustering_sample" yaml:"clustering_sample"`

	// SpatialClusters is the number of spatial centers. Default: 5.
	SpatialClusters int `json:"spatial_clusters" yaml:"spatial_clusters"`
}

// DefaultConfig returns the default metric configuration.
func DefaultConfig() Config {
	return Config{BondThreshold: 0.7, ClusteringSample: 20, SpatialClusters: 5}
}

// Validate checks the metric parameters.
func (c Config) Validate() error {
	if math.IsNaN(c.BondThreshold) || c.BondThreshold < -1 || c.BondThreshold > 1 {
		return fmt.Errorf("bond_threshold must be between -1 and 1, got %v", c.BondThreshold)
	}
	if c.ClusteringSample < 1 {
		return fmt.Errorf("clustering_sample must be at least 1, got %d", c.ClusteringSample)
	}
	if c.SpatialClusters < 1 {
		return fmt.Errorf("spatial_clusters must be at least 1, got %d", c.SpatialClusters)
	}
	return nil
}

// Inputs is the read-only state a snapshot is computed from.
type Inputs struct {
	Step           int
	Seed           uint64
	Agents         []agent.Agent
	Bounds         spatial.Bounds
	Grid           *field.Grid
	TotalWeight    float64
	Connections    int
	Phase          phase.Phase
	Focus          float64
	Coupling       float64
	PruningRate    float64
	CriticalPeriod float64
}

// Compute returns the snapshot for in. Sampling uses a generator seeded from
// (Seed, Step), never the simulation's.
func Compute(cfg Config, in Inputs) Snapshot {
	vectors := make([]Vector, len(in.Agents))
	for i := range in.Agents {
		vectors[i] = in.Agents[i].StateVector()
	}
	rng := rand.New(rand.NewPCG(in.Seed, uint64(in.Step)))

	return Snapshot{
		Step:             in.Step,
		Coherence:        CoherenceOf(vectors),
		Entropy:          EntropyOf(vectors),
		Complexity:       ComplexityOf(cfg, in.Agents, in.Bounds, rng),
		ResonanceBonds:   Bonds(vectors, cfg.BondThreshold),
		MemoryInversions: Inversions(in.Agents),
		Phase:            in.Phase,
		Energy:           EnergyOf(in.Grid, in.Agents, in.TotalWeight),
		FocusActivation:  in.Focus,
		SlowFastCoupling: in.Coupling,
		PruningRate:      in.PruningRate,
		CriticalPeriod:   in.CriticalPeriod,
		ConnectionCount:  in.Connections,
	}
}

// CoherenceOf returns ‖Σv‖² / (N·Σ‖v‖²), which lies in [0,1]. It is 1 when
// fewer than two vectors exist or every vector is zero.
func CoherenceOf(vs []Vector) float64 {
	if len(vs) < 2 {
		return 1
	}
	var sum Vector
	var sq float64
	for _, v := range vs {
		for k := range v {
			sum[k] += v[k]
			sq += v[k] * v[k]
		}
	}
	if sq == 0 {
		return 1
	}
	return clamp01(dot(sum, sum) / (float64(len(vs)) * sq))
}

// EntropyOf returns the normalized Shannon entropy of the vector magnitude
// distribution. It is 0 when fewer than two vectors exist, when all
// magnitudes are zero, or when all magnitudes are equal.
func EntropyOf(vs []Vector) float64 {
	if len(vs) < 2 {
		return 0
	}
	mags := make([]float64, len(vs))
	for i, v := range vs {
		mags[i] = math.Sqrt(dot(v, v))
	}
	total := floats.Sum(mags)
	if total == 0 || floats.Max(mags) == floats.Min(mags) {
		return 0
	}
	floats.Scale(1/total, mags)
	return clamp01(stat.Entropy(mags) / math.Log(float64(len(vs))))
}

// NormalizedEntropy treats values as an unnormalized distribution after
// shifting them to be non-negative, and returns its entropy divided by
// ln(len). Empty or single-element input yields 0.
func NormalizedEntropy(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	p := make([]float64, len(values))
	copy(p, values)
	if lo := floats.Min(p); lo < 0 {
		floats.AddConst(-lo, p)
	}
	floats.AddConst(1e-10, p)
	total := floats.Sum(p)
	if !(total > 0) {
		return 0
	}
	floats.Scale(1/total, p)
	return clamp01(stat.Entropy(p) / math.Log(float64(len(p))))
}

// Bonds counts pairs whose cosine similarity exceeds threshold. Zero
// vectors never bond.
func Bonds(vs []Vector, threshold float64) int {
	norms := make([]float64, len(vs))
	for i, v := range vs {
		norms[i] = math.Sqrt(dot(v, v))
	}
	count := 0
	for i := range vs {
		if norms[i] == 0 {
			continue
		}
		for j := i + 1; j < len(vs); j++ {
			if norms[j] == 0 {
				continue
			}
			if dot(vs[i], vs[j])/(norms[i]*norms[j]) > threshold {
				count++
			}
		}
	}
	return count
}

// Inversions counts agents whose last two displacements point in opposing
// directions.
func Inversions(agents []agent.Agent) int {
	count := 0
	for i := range agents {
		if agents[i].Displacement.Dot(agents[i].PrevDisplacement) < 0 {
			count++
		}
	}
	return count
}

// EnergyOf returns (Σ|grid| + Σ|a|(1+I) + Σw) / (N+1).
func EnergyOf(grid *field.Grid, agents []agent.Agent, totalWeight float64) float64 {
	e := grid.AbsSum() + totalWeight
	for i := range agents {
		e += math.Abs(agents[i].Alignment) * (1 + agents[i].Information)
	}
	return e / float64(len(agents)+1)
}

// ComplexityOf blends network (0.4), spatial (0.3), alignment entropy (0.2)
// and information entropy (0.1), clamped to [0,1]. Fewer than two agents
// yield 0.
func ComplexityOf(cfg Config, agents []agent.Agent, bounds spatial.Bounds, rng *rand.Rand) float64 {
	n := len(agents)
	if n < 2 {
		return 0
	}
	alignment := make([]float64, n)
	information := make([]float64, n)
	for i := range agents {
		alignment[i] = agents[i].Alignment
		information[i] = agents[i].Information
	}
	c := 0.4*networkComplexity(cfg, agents, rng) +
		0.3*spatialComplexity(cfg, agents, bounds, rng) +
		0.2*NormalizedEntropy(alignment) +
		0.1*NormalizedEntropy(information)
	return clamp01(c)
}

// networkComplexity averages degree entropy with the mean local clustering
// of a node sample. A graph without edges scores 0.
func networkComplexity(cfg Config, agents []agent.Agent, rng *rand.Rand) float64 {
	n := len(agents)
	adj := make([]map[int]struct{}, n)
	edges := 0
	for i := range agents {
		adj[i] = make(map[int]struct{}, len(agents[i].Neighbors))
		for _, id := range agents[i].Neighbors {
			if id >= 0 && id < n && id != i {
				adj[i][id] = struct{}{}
			}
		}
		edges += len(adj[i])
	}
	if edges == 0 {
		return 0
	}

	degrees := make([]float64, n)
	for i := range adj {
		degrees[i] = float64(len(adj[i]))
	}
	degreeEntropy := NormalizedEntropy(degrees)

	var coeffs []float64
	for _, node := range rng.Perm(n)[:min(cfg.ClusteringSample, n)] {
		nbrs := make([]int, 0, len(adj[node]))
		for id := range adj[node] {
			nbrs = append(nbrs, id)
		}
		k := len(nbrs)
		if k < 2 {
			continue
		}
		links := 0
		for a := 0; a < k; a++ {
			for b := a + 1; b < k; b++ {
				if _, ok := adj[nbrs[a]][nbrs[b]]; ok {
					links++
				}
			}
		}
		coeffs = append(coeffs, float64(links)/float64(k*(k-1)/2))
	}
	var clustering float64
	if len(coeffs) > 0 {
		clustering = stat.Mean(coeffs, nil)
	}
	return (degreeEntropy + clustering) / 2
}

// spatialComplexity assigns agents to randomly chosen centers by toroidal
// distance and averages the entropy of cluster sizes with the mean cluster
// spread over the domain diagonal. Populations not larger than the cluster
// count score 0.
func spatialComplexity(cfg Config, agents []agent.Agent, bounds spatial.Bounds, rng *rand.Rand) float64 {
	n := len(agents)
	k := min(cfg.SpatialClusters, n)
	if k < 1 || n <= k {
		return 0
	}
	centers := make([]spatial.Vec2, k)
	for i, id := range rng.Perm(n)[:k] {
		centers[i] = agents[id].Position
	}

	members := make([][]spatial.Vec2, k)
	for i := range agents {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := bounds.Distance(agents[i].Position, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		members[best] = append(members[best], agents[i].Position)
	}

	counts := make([]float64, k)
	var spreads []float64
	for c, pts := range members {
		counts[c] = float64(len(pts))
		if len(pts) == 0 {
			continue
		}
		// Mean position taken relative to the seed center so the cluster
		// does not split across an edge.
		var offset spatial.Vec2
		for _, p := range pts {
			offset = offset.Add(bounds.Delta(centers[c], p))
		}
		mean := bounds.Wrap(centers[c].Add(offset.Scale(1 / float64(len(pts)))))
		var spread float64
		for _, p := range pts {
			spread += bounds.Distance(mean, p)
		}
		spreads = append(spreads, spread/float64(len(pts)))
	}

	var avgSpread float64
	if len(spreads) > 0 {
		avgSpread = stat.Mean(spreads, nil)
	}
	return (NormalizedEntropy(counts) + avgSpread/bounds.Diagonal()) / 2
}

func dot(a, b Vector) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
