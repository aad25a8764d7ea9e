package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/intentsim/bloomcascade/internal/metrics"
)

// Anomaly names.
const (
	AnomalyExcessivePruning       = "excessive_pruning"
	AnomalyDecliningCoherence     = "declining_coherence"
	AnomalyWeakCoupling           = "weak_oscillatory_coupling"
	AnomalyPoorEfficiency         = "poor_energy_efficiency"
	AnomalyProlongedCritical      = "prolonged_critical_period"
	AnomalyPrematureCriticalClose = "premature_critical_period_closure"
)

// Anomaly is one flagged condition.
type Anomaly struct {
	Severity    float64 `json:"severity"`
	Description string  `json:"description"`
}

// DetectAnomalies checks each condition independently. step is the
// engine's current step, used by the critical-period checks.
func DetectAnomalies(history []metrics.Snapshot, step int) map[string]Anomaly {
	out := map[string]Anomaly{}

	if rates := pruningRates(history); len(rates) > 0 {
		if peak := floats.Max(rates); peak > 0.3 {
			out[AnomalyExcessivePruning] = Anomaly{
				Severity:    severity((peak - 0.3) / 0.2),
				Description: "excessive pruning removed a large share of connections in a single step",
			}
		}
	}

	if len(history) <= MinHistory {
		return out
	}

	coherence := series(history, metrics.Coherence)
	if s := slope(coherence); s < -0.001 && coherence[len(coherence)-1] < 0.4 {
		out[AnomalyDecliningCoherence] = Anomaly{
			Severity:    severity(math.Abs(s) * 1000),
			Description: "coherence is trending down and ended low, suggesting network fragmentation",
		}
	}

	if mean := stat.Mean(series(history, metrics.SlowFastCoupling), nil); mean < 0.3 {
		out[AnomalyWeakCoupling] = Anomaly{
			Severity:    severity(1 - mean/0.3),
			Description: "weak slow/fast oscillation coupling",
		}
	}

	energy := series(history, metrics.Energy)
	if stat.Mean(energy, nil) > 0 && energy[len(energy)-1] != 0 {
		final := history[len(history)-1].Complexity / energy[len(energy)-1]
		if final < 0.5 {
			out[AnomalyPoorEfficiency] = Anomaly{
				Severity:    severity(1 - final/0.5),
				Description: "low complexity-to-energy ratio at the end of the run",
			}
		}
	}

	cp := series(history, metrics.CriticalPeriod)
	closure := (cp[0] - cp[len(cp)-1]) / math.Max(cp[0], 1e-10)
	switch {
	case closure < 0.3 && step > 100:
		out[AnomalyProlongedCritical] = Anomaly{
			Severity:    severity(1 - closure/0.3),
			Description: "critical period is closing too slowly, leaving excessive plasticity",
		}
	case closure > 0.8 && step < 50:
		out[AnomalyPrematureCriticalClose] = Anomaly{
			Severity:    severity((closure - 0.8) / 0.2),
			Description: "critical period closed too quickly, restricting later learning",
		}
	}
	return out
}

func severity(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
