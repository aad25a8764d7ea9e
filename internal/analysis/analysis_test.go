package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/phase"
)

// overPruned builds a 40-step trajectory whose complexity peaks at step 10
// and then falls to a quarter of the peak, with heavy pruning and a
// steadily falling coherence.
func overPruned() []metrics.Snapshot {
	const energy = 0.2 / 0.7
	out := make([]metrics.Snapshot, 40)
	for i := range out {
		c := 0.5 + 0.03*float64(i)
		if i > 10 {
			c = math.Max(0.2, 0.8-0.6*float64(i-10)/26)
		}
		s := metrics.Snapshot{
			Step:             i + 1,
			Complexity:       c,
			Coherence:        0.95 - 0.02*float64(i),
			FocusActivation:  0.8,
			Energy:           energy,
			SlowFastCoupling: 0.6,
			CriticalPeriod:   math.Pow(0.995, float64(i)),
			Phase:            phase.Bloom,
		}
		if i >= 12 && i < 20 {
			s.Phase = phase.Pruning
			s.PruningRate = 0.4
		}
		out[i] = s
	}
	return out
}

func TestSummarize(t *testing.T) {
	_, ok := Summarize(overPruned()[:9])
	assert.False(t, ok)

	s, ok := Summarize(overPruned())
	require.True(t, ok)
	assert.Equal(t, 11, s.PeakStep)
	assert.InDelta(t, 0.8, s.PeakComplexity, 1e-9)
	assert.InDelta(t, 0.25, s.RetentionRatio, 1e-6)
	require.NotNil(t, s.EnergyEfficiency)
	assert.InDelta(t, 0.7, *s.EnergyEfficiency, 1e-6)
	assert.InDelta(t, 1, s.Stability, 1e-6)
	assert.InDelta(t, 0.8, s.FocusMean, 1e-9)
	assert.InDelta(t, 0.4, s.PruningMax, 1e-9)
	assert.True(t, s.Overpruning)
}

func TestSummarize_NoEnergy(t *testing.T) {
	h := overPruned()
	for i := range h {
		h[i].Energy = 0
	}
	s, ok := Summarize(h)
	require.True(t, ok)
	assert.Nil(t, s.EnergyEfficiency)
}

func TestExtract(t *testing.T) {
	assert.Empty(t, Extract(overPruned()[:10]))

	f := Extract(overPruned())
	assert.Equal(t, 1.0, f[FeatureDeclining])
	assert.Equal(t, 0.0, f[FeatureEarlyPlateau])
	assert.Equal(t, 0.0, f[FeatureUnderActivated])
	assert.InDelta(t, -0.02, f[FeatureCoherenceSlope], 1e-9)
	assert.InDelta(t, 0, f[FeatureFocusSlope], 1e-9)
	assert.InDelta(t, 0.4, f[FeaturePruningMax], 1e-9)
	assert.InDelta(t, 0, f[FeaturePruningPeakPos], 1e-9)
}

func TestExtract_FewPruningSteps(t *testing.T) {
	h := overPruned()
	for i := 15; i < 20; i++ {
		h[i].Phase = phase.Resonance
	}
	f := Extract(h)
	_, ok := f[FeaturePruningMax]
	assert.False(t, ok, "pruning features need more than five pruning steps")
}

func TestProfile_Score(t *testing.T) {
	typical := Library()[0]
	require.Equal(t, "typical", typical.Name)

	full := Features{
		FeatureSigmoidal:      1,
		FeatureCoherenceSlope: 0.01,
		FeatureFocusSlope:     0.01,
		FeaturePruningMax:     0.1,
		FeatureRetention:      0.8,
		FeatureEfficiency:     1.2,
		FeatureStability:      0.8,
	}
	assert.InDelta(t, 1, typical.Score(full), 1e-12)
	assert.InDelta(t, 1, typical.Score(Features{FeatureSigmoidal: 1}), 1e-12, "absent features are skipped")
	assert.Equal(t, 0.0, typical.Score(Features{}))
	assert.InDelta(t, 0.5, typical.Score(Features{FeatureSigmoidal: 1, FeatureCoherenceSlope: -1, FeatureFocusSlope: -1}), 1e-12)
}

func TestRule_Score(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		v    float64
		want float64
	}{
		{"gt met", Rule{Op: OpGreater, A: 0.1}, 0.2, 1},
		{"gt unmet", Rule{Op: OpGreater, A: 0.1}, 0.1, 0},
		{"lt", Rule{Op: OpLess, A: 0.5}, 0.4, 1},
		{"between inside", Rule{Op: OpBetween, A: 0.1, B: 0.2}, 0.15, 1},
		{"between edge", Rule{Op: OpBetween, A: 0.1, B: 0.2}, 0.2, 0},
		{"true", Rule{Op: OpTrue}, 1, 1},
		{"false", Rule{Op: OpTrue}, 0, 0},
		{"close exact", Rule{Op: OpClose, A: 0.8}, 0.8, 1},
		{"close partial", Rule{Op: OpClose, A: 0.8}, 0.6, 0.6},
		{"close far", Rule{Op: OpClose, A: 0.8}, 0, 0},
		{"credit", Rule{Op: OpCredit, A: 0.5}, 42, 0.5},
		{"unknown", Rule{Op: "nope"}, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.rule.score(tt.v), 1e-12)
		})
	}
}

func TestClassify_OverPruned(t *testing.T) {
	c := Classify(overPruned(), Library())
	require.Equal(t, ClassScored, c.Status)
	assert.Equal(t, "over_pruned", c.Profile)
	assert.InDelta(t, 6.5/8, c.Confidence, 1e-6)
	assert.Len(t, c.Scores, len(Library()))
	for name, s := range c.Scores {
		assert.GreaterOrEqual(t, s, 0.0, name)
		assert.LessOrEqual(t, s, c.Confidence, name)
	}
}

func TestClassify_InsufficientData(t *testing.T) {
	c := Classify(overPruned()[:10], Library())
	assert.Equal(t, ClassInsufficientData, c.Status)
	assert.Equal(t, Unclassified, c.Profile)
	assert.Zero(t, c.Confidence)
}

func TestClassify_BelowFloor(t *testing.T) {
	c := Classify(overPruned(), []Profile{{Name: "never", Rules: []Rule{{Feature: FeatureVolatile, Op: OpGreater, A: 5, Weight: 1}}}})
	assert.Equal(t, ClassScored, c.Status)
	assert.Equal(t, Unclassified, c.Profile)
	assert.Zero(t, c.Confidence)
	assert.Contains(t, c.Scores, "never")
}

func TestDetectAnomalies(t *testing.T) {
	got := DetectAnomalies(overPruned(), 40)
	require.Len(t, got, 2)
	assert.InDelta(t, 0.5, got[AnomalyExcessivePruning].Severity, 1e-9)
	assert.InDelta(t, 1, got[AnomalyDecliningCoherence].Severity, 1e-9)
	assert.NotEmpty(t, got[AnomalyDecliningCoherence].Description)
}

func TestDetectAnomalies_Conditions(t *testing.T) {
	closure := 1 - math.Pow(0.995, 39)

	tests := []struct {
		name   string
		mutate func([]metrics.Snapshot)
		step   int
		key    string
		want   float64
	}{
		{"weak coupling", func(h []metrics.Snapshot) {
			for i := range h {
				h[i].SlowFastCoupling = 0.15
			}
		}, 40, AnomalyWeakCoupling, 0.5},
		{"poor efficiency", func(h []metrics.Snapshot) {
			for i := range h {
				h[i].Energy = 1
			}
		}, 40, AnomalyPoorEfficiency, 0.6},
		{"prolonged critical period", func([]metrics.Snapshot) {}, 150, AnomalyProlongedCritical, 1 - closure/0.3},
		{"premature closure", func(h []metrics.Snapshot) {
			for i := range h {
				h[i].CriticalPeriod = 1 - 0.95*float64(i)/39
			}
		}, 30, AnomalyPrematureCriticalClose, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := overPruned()
			tt.mutate(h)
			got := DetectAnomalies(h, tt.step)
			require.Contains(t, got, tt.key)
			a := got[tt.key]
			assert.InDelta(t, tt.want, a.Severity, 1e-6)
			assert.GreaterOrEqual(t, a.Severity, 0.0)
			assert.LessOrEqual(t, a.Severity, 1.0)
		})
	}
}

func TestDetectAnomalies_ShortHistory(t *testing.T) {
	h := overPruned()[:15]
	got := DetectAnomalies(h, 15)
	assert.Equal(t, []string{AnomalyExcessivePruning}, keys(got))

	got = DetectAnomalies(overPruned()[:10], 10)
	assert.Empty(t, got)
}

func keys(m map[string]Anomaly) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
