// Package analysis scores accumulated metric trajectories against a static
// library of reference profiles and flags named developmental anomalies.
package analysis

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/phase"
)

// MinHistory is the number of snapshots needed before a trajectory is
// summarized or classified.
const MinHistory = 10

// Summary holds whole-run statistics.
type Summary struct {
	PeakComplexity   float64  `json:"peak_complexity"`
	PeakStep         int      `json:"peak_step"`
	FinalComplexity  float64  `json:"final_complexity"`
	RetentionRatio   float64  `json:"retention_ratio"`
	EnergyEfficiency *float64 `json:"energy_efficiency,omitempty"`
	Stability        float64  `json:"stability"`
	FocusMean        float64  `json:"focus_mean"`
	FocusStd         float64  `json:"focus_std"`
	PruningMean      float64  `json:"pruning_mean"`
	PruningMax       float64  `json:"pruning_max"`
	Overpruning      bool     `json:"overpruning"`
}

// Summarize returns run statistics, or false when the history is shorter
// than MinHistory.
func Summarize(history []metrics.Snapshot) (Summary, bool) {
	if len(history) < MinHistory {
		return Summary{}, false
	}
	complexity := series(history, metrics.Complexity)
	energy := series(history, metrics.Energy)
	focus := series(history, metrics.FocusActivation)
	n := len(complexity)

	var s Summary
	peak := floats.MaxIdx(complexity)
	s.PeakComplexity = complexity[peak]
	s.PeakStep = history[peak].Step
	s.FinalComplexity = complexity[n-1]
	if s.PeakComplexity > 0 {
		s.RetentionRatio = s.FinalComplexity / s.PeakComplexity
	}
	if floats.Max(energy) > 0 && energy[n-1] != 0 {
		eff := s.FinalComplexity / energy[n-1]
		s.EnergyEfficiency = &eff
	}

	tail := complexity[n-max(1, n/10):]
	if mean, std := stat.PopMeanStdDev(tail, nil); mean > 0 {
		s.Stability = 1 - std/mean
	}
	s.FocusMean, s.FocusStd = stat.PopMeanStdDev(focus, nil)

	if rates := pruningRates(history); len(rates) > 0 {
		s.PruningMean = stat.Mean(rates, nil)
		s.PruningMax = floats.Max(rates)
		s.Overpruning = s.PruningMax > 0.3
	}
	return s, true
}

// Feature names produced by Extract.
const (
	FeatureEarlyPlateau   = "early_plateau"
	FeatureDeclining      = "declining"
	FeatureVolatile       = "volatile"
	FeatureUnderActivated = "under_activated"
	FeatureSigmoidal      = "sigmoidal"
	FeatureCoherenceSlope = "coherence_slope"
	FeatureCoherenceMean  = "coherence_mean"
	FeatureCoherenceStd   = "coherence_std"
	FeatureFocusSlope     = "focus_slope"
	FeatureFocusMean      = "focus_mean"
	FeatureFocusStd       = "focus_std"
	FeaturePruningMax     = "pruning_max"
	FeaturePruningMean    = "pruning_mean"
	FeaturePruningPeakPos = "pruning_peak_position"
	FeatureRetention      = "retention_ratio"
	FeatureEfficiency     = "energy_efficiency"
	FeatureStability      = "stability"
)

// Features maps feature names to values. Boolean features are 0 or 1. A
// feature that could not be computed is absent.
type Features map[string]float64

// Extract computes trajectory features. Shape, coherence and focus features
// need more than MinHistory snapshots; pruning features need more than five
// pruning steps.
func Extract(history []metrics.Snapshot) Features {
	f := Features{}
	if len(history) <= MinHistory {
		return f
	}

	complexity := series(history, metrics.Complexity)
	n := len(complexity)
	lo, hi := floats.Min(complexity), floats.Max(complexity)
	norm := make([]float64, n)
	for i, v := range complexity {
		norm[i] = (v - lo) / (hi - lo + 1e-10)
	}

	plateau := false
	if n > 20 {
		earlyMean := stat.Mean(norm[:n/2], nil)
		_, lateStd := stat.PopMeanStdDev(norm[n/2:], nil)
		plateau = earlyMean > 0.7 && lateStd < 0.1
	}
	peak := floats.MaxIdx(complexity)
	declining := peak < n-10 && complexity[n-1] < 0.7*complexity[peak]
	_, normStd := stat.PopMeanStdDev(norm, nil)
	volatile := normStd > 0.25

	f[FeatureEarlyPlateau] = boolf(plateau)
	f[FeatureDeclining] = boolf(declining)
	f[FeatureVolatile] = boolf(volatile)
	f[FeatureUnderActivated] = boolf(hi < 0.4)
	f[FeatureSigmoidal] = boolf(!plateau && !declining && !volatile)

	coherence := series(history, metrics.Coherence)
	f[FeatureCoherenceSlope] = slope(coherence)
	f[FeatureCoherenceMean], f[FeatureCoherenceStd] = stat.PopMeanStdDev(coherence, nil)

	focus := series(history, metrics.FocusActivation)
	f[FeatureFocusSlope] = slope(focus)
	f[FeatureFocusMean], f[FeatureFocusStd] = stat.PopMeanStdDev(focus, nil)

	if rates := pruningRates(history); len(rates) > 5 {
		f[FeaturePruningMax] = floats.Max(rates)
		f[FeaturePruningMean] = stat.Mean(rates, nil)
		f[FeaturePruningPeakPos] = float64(floats.MaxIdx(rates)) / float64(len(rates))
	}

	if s, ok := Summarize(history); ok {
		f[FeatureRetention] = s.RetentionRatio
		f[FeatureStability] = s.Stability
		if s.EnergyEfficiency != nil {
			f[FeatureEfficiency] = *s.EnergyEfficiency
		}
	}
	return f
}

func series(history []metrics.Snapshot, m metrics.Metric) []float64 {
	out := make([]float64, len(history))
	for i, s := range history {
		out[i], _ = s.Value(m)
	}
	return out
}

// pruningRates returns the pruning rate of every step spent in Pruning.
func pruningRates(history []metrics.Snapshot) []float64 {
	var out []float64
	for _, s := range history {
		if s.Phase == phase.Pruning {
			out = append(out, s.PruningRate)
		}
	}
	return out
}

// slope returns the least-squares slope of ys against their index.
func slope(ys []float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return beta
}

func boolf(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
