// Package oscillation implements the slow/fast modulation signals that drive
// field sampling and the internal-focus activation level.
//
// The fast accumulator's increment is modulated by the slow phase
// (phase-amplitude coupling):
//
//	fast_increment = base_fast_increment * (1 + k * (0.5 + 0.5*sin(slow_phase)))
//
// Advancing is deterministic apart from the small focus noise, which is drawn
// from an injected *rand.Rand.
package oscillation

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
)

// Signal names one of the two oscillators.
type Signal int

const (
	// Slow is the low-frequency oscillator (theta-like band).
	Slow Signal = iota
	// Fast is the high-frequency oscillator (gamma-like band).
	Fast
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case Slow:
		return "slow"
	case Fast:
		return "fast"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Config holds oscillator parameters.
type Config struct {
	// SlowFrequency is the slow oscillator frequency in Hz. Default: 6.
	SlowFrequency float64 `json:"slow_frequency" yaml:"slow_frequency"`

	// FastFrequency is the fast oscillator frequency in Hz. Default: 40.
	FastFrequency float64 `json:"fast_frequency" yaml:"fast_frequency"`

	// SampleRate is the number of steps per simulated second. Default: 100.
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`

	// SlowStrength scales the slow signal amplitude. Default: 0.5.
	SlowStrength float64 `json:"slow_strength" yaml:"slow_strength"`

	// FastStrength scales the fast signal amplitude. Default: 0.7.
	FastStrength float64 `json:"fast_strength" yaml:"fast_strength"`

	// CouplingStrength (k) controls how strongly the slow phase speeds up
	// and amplifies the fast oscillator. Default: 0.8.
	CouplingStrength float64 `json:"coupling_strength" yaml:"coupling_strength"`

	// FocusBaseline is the resting internal-focus activation. Default: 0.3.
	FocusBaseline float64 `json:"focus_baseline" yaml:"focus_baseline"`

	// NoiseStdDev is the standard deviation of focus noise. Draws are
	// truncated to three standard deviations. Default: 0.02.
	NoiseStdDev float64 `json:"noise_std_dev" yaml:"noise_std_dev"`

	// Window is the number of recent phases kept for CouplingStrength.
	// Default: 100.
	Window int `json:"window" yaml:"window"`
}

// DefaultConfig returns the default oscillator configuration.
func DefaultConfig() Config {
	return Config{
		SlowFrequency:    6,
		FastFrequency:    40,
		SampleRate:       100,
		SlowStrength:     0.5,
		FastStrength:     0.7,
		CouplingStrength: 0.8,
		FocusBaseline:    0.3,
		NoiseStdDev:      0.02,
		Window:           100,
	}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %v", c.SampleRate)
	}
	if c.SlowFrequency <= 0 || c.FastFrequency <= 0 {
		return fmt.Errorf("frequencies must be positive, got slow=%v fast=%v", c.SlowFrequency, c.FastFrequency)
	}
	if c.SlowStrength < 0 || c.FastStrength < 0 {
		return fmt.Errorf("strengths must be non-negative, got slow=%v fast=%v", c.SlowStrength, c.FastStrength)
	}
	if c.CouplingStrength < 0 || c.CouplingStrength > 1 {
		return fmt.Errorf("coupling_strength must be between 0 and 1, got %v", c.CouplingStrength)
	}
	if c.FocusBaseline < 0 || c.FocusBaseline > 1 {
		return fmt.Errorf("focus_baseline must be between 0 and 1, got %v", c.FocusBaseline)
	}
	if c.NoiseStdDev < 0 {
		return fmt.Errorf("noise_std_dev must be non-negative, got %v", c.NoiseStdDev)
	}
	if c.Window < 1 {
		return fmt.Errorf("window must be at least 1, got %d", c.Window)
	}
	return nil
}

// State is the serializable oscillator state.
type State struct {
	SlowPhase  float64   `json:"slow_phase"`
	FastPhase  float64   `json:"fast_phase"`
	Focus      float64   `json:"focus"`
	SlowWindow []float64 `json:"slow_window,omitempty"`
	FastWindow []float64 `json:"fast_window,omitempty"`
}

// Engine advances the two oscillators one step at a time.
type Engine struct {
	cfg        Config
	rng        *rand.Rand
	slowInc    float64
	fastInc    float64
	slowPhase  float64
	fastPhase  float64
	focus      float64
	slowWindow []float64
	fastWindow []float64
}

// NewEngine creates an engine at phase zero with focus at the baseline.
// A nil rng disables focus noise.
func NewEngine(cfg Config, rng *rand.Rand) *Engine {
	return &Engine{
		cfg:     cfg,
		rng:     rng,
		slowInc: 2 * math.Pi * cfg.SlowFrequency / cfg.SampleRate,
		fastInc: 2 * math.Pi * cfg.FastFrequency / cfg.SampleRate,
		focus:   cfg.FocusBaseline,
	}
}

// Advance moves both oscillators forward by one step and refreshes the
// focus level.
func (e *Engine) Advance() {
	e.slowPhase = wrapPhase(e.slowPhase + e.slowInc)
	e.fastPhase = wrapPhase(e.fastPhase + e.FastIncrement())

	slowContrib := 0.6 * e.slowEnvelope() * e.cfg.SlowStrength
	fastContrib := -0.3 * e.FastAmplitude()
	e.focus = clamp01(e.cfg.FocusBaseline + slowContrib + fastContrib + e.noise())

	e.slowWindow = pushWindow(e.slowWindow, e.slowPhase, e.cfg.Window)
	e.fastWindow = pushWindow(e.fastWindow, e.fastPhase, e.cfg.Window)
}

// FastIncrement returns the coupled fast-phase increment for the current
// slow phase.
func (e *Engine) FastIncrement() float64 {
	return e.fastInc * (1 + e.cfg.CouplingStrength*e.slowEnvelope())
}

// SlowPhase returns the slow accumulator in [0, 2π).
func (e *Engine) SlowPhase() float64 { return e.slowPhase }

// FastPhase returns the fast accumulator in [0, 2π).
func (e *Engine) FastPhase() float64 { return e.fastPhase }

// SlowValue returns the current slow signal.
func (e *Engine) SlowValue() float64 {
	return e.cfg.SlowStrength * math.Sin(e.slowPhase)
}

// FastAmplitude returns the slow-modulated envelope of the fast signal.
func (e *Engine) FastAmplitude() float64 {
	return e.cfg.FastStrength * (1 + e.cfg.CouplingStrength*e.slowEnvelope())
}

// FastValue returns the current fast signal.
func (e *Engine) FastValue() float64 {
	return e.FastAmplitude() * math.Sin(e.fastPhase)
}

// InternalFocusLevel returns the focus activation in [0,1].
func (e *Engine) InternalFocusLevel() float64 { return e.focus }

// Modulation returns the multiplicative oscillation factor applied to a field
// contribution, given per-agent channel sensitivities.
func (e *Engine) Modulation(slowSensitivity, fastSensitivity float64) float64 {
	return 1 + e.SlowValue()*slowSensitivity + e.FastValue()*fastSensitivity
}

// CouplingStrength returns the phase-locking value between the recorded
// phase windows of a and b. It is 0 before the first Advance.
func (e *Engine) CouplingStrength(a, b Signal) float64 {
	return PhaseLockingValue(e.window(a), e.window(b))
}

func (e *Engine) window(s Signal) []float64 {
	if s == Fast {
		return e.fastWindow
	}
	return e.slowWindow
}

// State returns a copy of the engine state.
func (e *Engine) State() State {
	return State{
		SlowPhase:  e.slowPhase,
		FastPhase:  e.fastPhase,
		Focus:      e.focus,
		SlowWindow: append([]float64(nil), e.slowWindow...),
		FastWindow: append([]float64(nil), e.fastWindow...),
	}
}

// Restore overwrites the engine state.
func (e *Engine) Restore(s State) {
	e.slowPhase = wrapPhase(s.SlowPhase)
	e.fastPhase = wrapPhase(s.FastPhase)
	e.focus = clamp01(s.Focus)
	e.slowWindow = append([]float64(nil), s.SlowWindow...)
	e.fastWindow = append([]float64(nil), s.FastWindow...)
}

// PhaseLockingValue returns |mean(exp(i(a-b)))| over the common prefix of the
// two phase series, in [0,1]. Empty input yields 0.
func PhaseLockingValue(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum complex128
	for i := 0; i < n; i++ {
		sum += cmplx.Exp(complex(0, a[i]-b[i]))
	}
	return clamp01(cmplx.Abs(sum) / float64(n))
}

func (e *Engine) slowEnvelope() float64 {
	return 0.5 + 0.5*math.Sin(e.slowPhase)
}

func (e *Engine) noise() float64 {
	if e.rng == nil || e.cfg.NoiseStdDev == 0 {
		return 0
	}
	z := math.Max(-3, math.Min(3, e.rng.NormFloat64()))
	return z * e.cfg.NoiseStdDev
}

func pushWindow(w []float64, v float64, size int) []float64 {
	w = append(w, v)
	if len(w) > size {
		w = w[len(w)-size:]
	}
	return w
}

func wrapPhase(p float64) float64 {
	p = math.Mod(p, 2*math.Pi)
	if p < 0 {
		p += 2 * math.Pi
	}
	return p
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
