package phase

import "math"

// Coefficients is one row of the phase table.
type Coefficients struct {
	Phase Phase

	// NoiseMultiplier scales the random component of agent movement.
	NoiseMultiplier float64

	// FocusMultiplier scales the oscillator's internal-focus level.
	FocusMultiplier float64

	// CriticalPeriodDecay is applied to the critical-period scalar once per
	// step while the phase is active.
	CriticalPeriodDecay float64

	// Prunes marks phases that run connection pruning each step.
	Prunes bool

	// Grows marks phases whose entry adds connections.
	Grows bool
}

var table = [Count]Coefficients{
	Initialization: {Phase: Initialization, NoiseMultiplier: 1.0, FocusMultiplier: 1.0, CriticalPeriodDecay: 1.0},
	Bloom:          {Phase: Bloom, NoiseMultiplier: 1.5, FocusMultiplier: 0.5, CriticalPeriodDecay: 0.999, Grows: true},
	Pruning:        {Phase: Pruning, NoiseMultiplier: 0.5, FocusMultiplier: 1.2, CriticalPeriodDecay: 0.995, Prunes: true},
	Resonance:      {Phase: Resonance, NoiseMultiplier: 1.0, FocusMultiplier: 1.5, CriticalPeriodDecay: 0.99},
	Stable:         {Phase: Stable, NoiseMultiplier: 1.0, FocusMultiplier: 1.0, CriticalPeriodDecay: 0.9975},
}

// For returns the coefficient row for p. Unknown phases get the
// initialization row.
func For(p Phase) Coefficients {
	if !p.Valid() {
		return table[Initialization]
	}
	return table[p]
}

// ForceInput carries what the neighbor force rule needs from one agent pair.
type ForceInput struct {
	IntentStrength     float64
	Similarity         float64 // 1 - |alignment difference|
	CriticalPeriod     float64
	PruningSensitivity float64
	Resonance          float64
}

// Force returns the signed attraction magnitude toward a neighbor.
// Negative values repel.
func (c Coefficients) Force(in ForceInput) float64 {
	switch c.Phase {
	case Bloom:
		return in.IntentStrength * in.Similarity * (1 + in.CriticalPeriod)
	case Pruning:
		return in.IntentStrength * (2*in.Similarity - 1) * in.PruningSensitivity
	case Resonance:
		return in.IntentStrength * in.Similarity * (1 + in.Resonance)
	default:
		return in.IntentStrength * in.Similarity
	}
}

// AdoptionInput carries what the alignment update rule needs for one agent.
type AdoptionInput struct {
	FieldInfluence  float64 // local field * intent strength
	CriticalPeriod  float64
	SlowSensitivity float64
	SlowPhase       float64
	Resonance       float64
}

// Adoption returns the alignment change before executive-function scaling.
func (c Coefficients) Adoption(in AdoptionInput) float64 {
	switch c.Phase {
	case Bloom:
		return in.FieldInfluence * in.CriticalPeriod * (1 + in.SlowSensitivity*math.Sin(in.SlowPhase))
	case Resonance:
		return in.FieldInfluence * in.Resonance * 0.5 * (1 + math.Sin(in.SlowPhase))
	default:
		return in.FieldInfluence * 0.1
	}
}
