package analysis

import (
	"math"
	"sort"

	"github.com/intentsim/bloomcascade/internal/metrics"
)

// Op is a rule comparator.
type Op string

const (
	OpGreater Op = "gt"      // value > A
	OpLess    Op = "lt"      // value < A
	OpBetween Op = "between" // A < value < B
	OpTrue    Op = "true"    // value != 0
	OpClose   Op = "close"   // max(0, 1 - 2|value - A|)
	OpCredit  Op = "credit"  // constant A
)

// Rule scores one feature. A rule whose feature is absent is skipped and
// does not count toward the maximum score.
type Rule struct {
	Feature string  `json:"feature"`
	Op      Op      `json:"op"`
	A       float64 `json:"a,omitempty"`
	B       float64 `json:"b,omitempty"`
	Weight  float64 `json:"weight"`
}

// score returns a value in [0,1].
func (r Rule) score(v float64) float64 {
	switch r.Op {
	case OpGreater:
		return boolf(v > r.A)
	case OpLess:
		return boolf(v < r.A)
	case OpBetween:
		return boolf(v > r.A && v < r.B)
	case OpTrue:
		return boolf(v != 0)
	case OpClose:
		return math.Max(0, 1-2*math.Abs(v-r.A))
	case OpCredit:
		return math.Max(0, math.Min(1, r.A))
	}
	return 0
}

// Profile is a static reference trajectory.
type Profile struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Rules       []Rule `json:"rules"`
}

// Score returns the weighted fraction of satisfied rules, in [0,1].
func (p Profile) Score(f Features) float64 {
	var score, total float64
	for _, r := range p.Rules {
		v, ok := f[r.Feature]
		if !ok {
			continue
		}
		score += r.Weight * r.score(v)
		total += r.Weight
	}
	if total == 0 {
		return 0
	}
	return score / total
}

func shape(feature string) Rule { return Rule{Feature: feature, Op: OpTrue, Weight: 2} }

func ratios(retention, efficiency, stability float64) []Rule {
	return []Rule{
		{Feature: FeatureRetention, Op: OpClose, A: retention, Weight: 1},
		{Feature: FeatureEfficiency, Op: OpClose, A: efficiency, Weight: 1},
		{Feature: FeatureStability, Op: OpClose, A: stability, Weight: 1},
	}
}

func profile(name, desc string, rules []Rule, summary []Rule) Profile {
	return Profile{Name: name, Description: desc, Rules: append(rules, summary...)}
}

// Library returns the built-in reference profiles.
func Library() []Profile {
	return []Profile{
		profile("typical", "complexity rises and levels off; coherence and focus increase; moderate pruning", []Rule{
			shape(FeatureSigmoidal),
			{Feature: FeatureCoherenceSlope, Op: OpGreater, A: 0.001, Weight: 1},
			{Feature: FeatureFocusSlope, Op: OpGreater, A: 0.001, Weight: 1},
			{Feature: FeaturePruningMax, Op: OpBetween, A: 0.05, B: 0.3, Weight: 1},
		}, ratios(0.8, 1.2, 0.8)),
		profile("hyper_retentive", "complexity plateaus early; low coherence; reduced focus and pruning", []Rule{
			shape(FeatureEarlyPlateau),
			{Feature: FeatureCoherenceMean, Op: OpLess, A: 0.5, Weight: 1},
			{Feature: FeatureFocusMean, Op: OpLess, A: 0.4, Weight: 1},
			{Feature: FeaturePruningMax, Op: OpLess, A: 0.1, Weight: 1},
		}, ratios(0.9, 0.9, 0.7)),
		profile("volatile", "complexity, coherence and focus fluctuate; pruning arrives late", []Rule{
			shape(FeatureVolatile),
			{Feature: FeatureCoherenceStd, Op: OpGreater, A: 0.15, Weight: 1},
			{Feature: FeatureFocusStd, Op: OpGreater, A: 0.15, Weight: 1},
			{Feature: FeaturePruningPeakPos, Op: OpGreater, A: 0.6, Weight: 1},
		}, ratios(0.7, 0.8, 0.5)),
		profile("over_pruned", "complexity declines after its peak; coherence falls; excessive focus and pruning", []Rule{
			shape(FeatureDeclining),
			{Feature: FeatureCoherenceSlope, Op: OpLess, A: -0.001, Weight: 1},
			{Feature: FeatureFocusMean, Op: OpGreater, A: 0.7, Weight: 1},
			{Feature: FeaturePruningMax, Op: OpGreater, A: 0.3, Weight: 1},
		}, ratios(0.5, 0.7, 0.4)),
		profile("under_activated", "complexity stays low; moderate coherence; excessive focus; moderate pruning", []Rule{
			shape(FeatureUnderActivated),
			{Feature: FeatureCoherenceMean, Op: OpCredit, A: 0.5, Weight: 1},
			{Feature: FeatureFocusMean, Op: OpGreater, A: 0.7, Weight: 1},
			{Feature: FeaturePruningMax, Op: OpBetween, A: 0.1, B: 0.2, Weight: 1},
		}, ratios(0.75, 0.8, 0.7)),
	}
}

// Unclassified is the profile name reported below the confidence floor.
const Unclassified = "unclassified"

// ConfidenceFloor is the score a profile must exceed to be reported.
const ConfidenceFloor = 0.6

// ClassStatus reports whether a classification had enough history.
type ClassStatus string

const (
	ClassScored           ClassStatus = "scored"
	ClassInsufficientData ClassStatus = "insufficient_data"
)

// Classification is the result of matching a trajectory.
type Classification struct {
	Status     ClassStatus        `json:"status"`
	Profile    string             `json:"profile"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
}

// Classify scores history against every profile. The best profile is
// reported if its score exceeds ConfidenceFloor; ties go to the earlier
// profile in the library.
func Classify(history []metrics.Snapshot, library []Profile) Classification {
	c := Classification{Status: ClassInsufficientData, Profile: Unclassified, Scores: map[string]float64{}}
	if len(history) <= MinHistory {
		return c
	}
	c.Status = ClassScored
	f := Extract(history)

	type scored struct {
		name  string
		score float64
	}
	ranked := make([]scored, len(library))
	for i, p := range library {
		s := p.Score(f)
		c.Scores[p.Name] = s
		ranked[i] = scored{p.Name, s}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > 0 && ranked[0].score > ConfidenceFloor {
		c.Profile = ranked[0].name
		c.Confidence = ranked[0].score
	}
	return c
}
