// Package forecast trains per-metric ridge regression models on lagged
// metric history and produces recursive multi-step forecasts.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/intentsim/bloomcascade/internal/metrics"
	"github.com/intentsim/bloomcascade/internal/phase"
)

// ErrUntrainable is returned for metrics no model can be trained for.
var ErrUntrainable = errors.New("metric cannot be forecast")

// Status reports whether a model was trained.
type Status string

const (
	StatusTrained          Status = "trained"
	StatusInsufficientData Status = "insufficient_data"
)

// Tracked lists the metrics whose same-step values feed every model.
var Tracked = []metrics.Metric{metrics.Coherence, metrics.Entropy, metrics.Complexity, metrics.Energy}

// Trainable reports whether a model can be trained for m.
func Trainable(m metrics.Metric) bool {
	return slices.Contains(Tracked, m) || m == metrics.FocusActivation
}

// Config holds model parameters.
type Config struct {
	// Lags is the number of past values of the target used as features.
	// Default: 5.
	Lags int `json:"lags" yaml:"lags"`

	// MinHistory is the minimum number of snapshots needed to train.
	// Default: 10.
	MinHistory int `json:"min_history" yaml:"min_history"`

	// Ridge is the L2 penalty on standardized coefficients. Default: 0.01.
	Ridge float64 `json:"ridge" yaml:"ridge"`

	// CriticalPeriodDecay is applied per forecast step. Default: 0.995.
	CriticalPeriodDecay float64 `json:"critical_period_decay" yaml:"critical_period_decay"`

	// PhaseCycle is the number of forecast steps per assumed phase
	// advance. Default: 20.
	PhaseCycle int `json:"phase_cycle" yaml:"phase_cycle"`
}

// DefaultConfig returns the default forecast configuration.
func DefaultConfig() Config {
	return Config{Lags: 5, MinHistory: 10, Ridge: 0.01, CriticalPeriodDecay: 0.995, PhaseCycle: 20}
}

// Validate reports the first out-of-range parameter.
func (c Config) Validate() error {
	if c.Lags < 1 {
		return fmt.Errorf("lags must be at least 1, got %d", c.Lags)
	}
	if c.MinHistory <= c.Lags {
		return fmt.Errorf("min_history must exceed lags, got %d <= %d", c.MinHistory, c.Lags)
	}
	if c.Ridge <= 0 {
		return fmt.Errorf("ridge must be positive, got %v", c.Ridge)
	}
	if c.CriticalPeriodDecay <= 0 || c.CriticalPeriodDecay > 1 {
		return fmt.Errorf("critical_period_decay must be in (0,1], got %v", c.CriticalPeriodDecay)
	}
	if c.PhaseCycle < 1 {
		return fmt.Errorf("phase_cycle must be at least 1, got %d", c.PhaseCycle)
	}
	return nil
}

// Model is one trained regression.
type Model struct {
	Metric  metrics.Metric `json:"metric"`
	Status  Status         `json:"status"`
	Samples int            `json:"samples"`
	MSE     float64        `json:"mse"`

	cfg       Config
	weights   []float64
	featMean  []float64
	featScale []float64
	yMean     float64
}

// Result is a forecast.
type Result struct {
	Metric metrics.Metric `json:"metric"`
	Status Status         `json:"status"`
	Values []float64      `json:"values"`
}

// aux is the non-lag part of a feature row.
type aux struct {
	others   []float64
	focus    float64
	cp       float64
	phaseOrd float64
}

func (m *Model) row(lags []float64, a aux) []float64 {
	out := make([]float64, 0, len(lags)+len(a.others)+3)
	// Most recent lag first.
	for i := len(lags) - 1; i >= 0; i-- {
		out = append(out, lags[i])
	}
	out = append(out, a.others...)
	if m.Metric != metrics.FocusActivation {
		out = append(out, a.focus)
	}
	return append(out, a.cp, a.phaseOrd)
}

func others(target metrics.Metric, s metrics.Snapshot) []float64 {
	var out []float64
	for _, t := range Tracked {
		if t == target {
			continue
		}
		v, _ := s.Value(t)
		out = append(out, v)
	}
	return out
}

// Train fits a model for target. Fewer than cfg.MinHistory snapshots yield
// a model with StatusInsufficientData rather than an error.
func Train(cfg Config, history []metrics.Snapshot, target metrics.Metric) (*Model, error) {
	if !Trainable(target) {
		return nil, fmt.Errorf("%w: %q", ErrUntrainable, target)
	}
	m := &Model{Metric: target, Status: StatusInsufficientData, cfg: cfg}
	if len(history) < cfg.MinHistory || len(history) <= cfg.Lags {
		return m, nil
	}

	series := make([]float64, len(history))
	for i, s := range history {
		series[i], _ = s.Value(target)
	}

	var rows [][]float64
	var ys []float64
	for i := cfg.Lags; i < len(history); i++ {
		s := history[i]
		rows = append(rows, m.row(series[i-cfg.Lags:i], aux{
			others:   others(target, s),
			focus:    s.FocusActivation,
			cp:       s.CriticalPeriod,
			phaseOrd: float64(s.Phase),
		}))
		ys = append(ys, series[i])
	}

	n, p := len(rows), len(rows[0])
	m.featMean = make([]float64, p)
	m.featScale = make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if !(std > 1e-12) {
			std = 1
		}
		m.featMean[j], m.featScale[j] = mean, std
	}
	m.yMean = stat.Mean(ys, nil)

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, r := range rows {
		for j, v := range r {
			x.Set(i, j, (v-m.featMean[j])/m.featScale[j])
		}
		y.SetVec(i, ys[i]-m.yMean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, x.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+cfg.Ridge*float64(n))
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, fmt.Errorf("train %s: normal equations not positive definite", target)
	}
	var xty, w mat.VecDense
	xty.MulVec(x.T(), y)
	if err := chol.SolveVecTo(&w, &xty); err != nil {
		return nil, fmt.Errorf("train %s: %w", target, err)
	}
	m.weights = make([]float64, p)
	for j := range m.weights {
		m.weights[j] = w.AtVec(j)
	}

	var sse float64
	for i, r := range rows {
		d := m.predict(r) - ys[i]
		sse += d * d
	}
	m.MSE = sse / float64(n)
	m.Samples = n
	m.Status = StatusTrained
	return m, nil
}

func (m *Model) predict(row []float64) float64 {
	y := m.yMean
	for j, v := range row {
		y += m.weights[j] * (v - m.featMean[j]) / m.featScale[j]
	}
	return y
}

// Forecast predicts horizon future values by feeding each prediction back as
// the newest lag. Other tracked metrics and focus are held at their last
// values, the critical period decays geometrically and the phase advances
// one ordinal every PhaseCycle steps. Bounded metrics are clamped to [0,1].
func (m *Model) Forecast(history []metrics.Snapshot, horizon int) Result {
	res := Result{Metric: m.Metric, Status: m.Status, Values: []float64{}}
	if m.Status != StatusTrained || len(history) < m.cfg.Lags {
		res.Status = StatusInsufficientData
		return res
	}
	if horizon <= 0 {
		return res
	}

	last := history[len(history)-1]
	lags := make([]float64, m.cfg.Lags)
	for i, s := range history[len(history)-m.cfg.Lags:] {
		lags[i], _ = s.Value(m.Metric)
	}
	held := others(m.Metric, last)
	cp := last.CriticalPeriod

	for i := 0; i < horizon; i++ {
		cp *= m.cfg.CriticalPeriodDecay
		ord := (int(last.Phase) + i/m.cfg.PhaseCycle) % phase.Count
		v := m.predict(m.row(lags, aux{others: held, focus: last.FocusActivation, cp: cp, phaseOrd: float64(ord)}))
		if m.Metric.Bounded() {
			v = math.Max(0, math.Min(1, v))
		}
		res.Values = append(res.Values, v)
		lags = append(lags[1:], v)
	}
	return res
}
