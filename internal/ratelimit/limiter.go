// Package ratelimit meters MCP tool calls against token-bucket budgets.
// Expensive tools are charged by the work they request: stepping tools by
// the number of steps, training by the number of metrics fitted.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/intentsim/bloomcascade/internal/constants"
)

var (
	// ErrLimited is returned when a pool lacks the tokens for a call right
	// now; the call may succeed after the pool refills.
	ErrLimited = errors.New("rate limit exceeded")

	// ErrOverBudget is returned when a call costs more than its pool can
	// ever hold.
	ErrOverBudget = errors.New("request exceeds rate limit budget")
)

// Budget configures a pool: it holds at most Burst tokens and refills at
// Rate tokens per second. A full pool is available at start.
type Budget struct {
	Rate  float64 `json:"rate" yaml:"rate"`
	Burst float64 `json:"burst" yaml:"burst"`
}

// Limiter is a single token bucket. It is safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	budget Budget
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewLimiter returns a full bucket for b.
func NewLimiter(b Budget) *Limiter {
	return newLimiter(b, time.Now)
}

func newLimiter(b Budget, now func() time.Time) *Limiter {
	return &Limiter{budget: b, tokens: b.Burst, last: now(), now: now}
}

// Take removes cost tokens and reports whether enough were available.
// Nothing is removed on failure.
func (l *Limiter) Take(cost float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	if cost > l.tokens {
		return false
	}
	l.tokens -= cost
	return true
}

// Available returns the tokens currently in the bucket.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

func (l *Limiter) refill() {
	now := l.now()
	if elapsed := now.Sub(l.last).Seconds(); elapsed > 0 {
		l.tokens = min(l.budget.Burst, l.tokens+l.budget.Rate*elapsed)
		l.last = now
	}
}

// Pool names. Tools in one pool drain the same bucket.
const (
	PoolSteps    = "steps"    // cost: steps executed
	PoolTraining = "training" // cost: metrics fitted
	PoolControl  = "control"  // bloom triggers and phase transitions
	PoolAnalysis = "analysis" // forecasts, classification, anomalies
	PoolRuns     = "runs"     // saves and loads
	PoolListing  = "listing"
)

var toolPools = map[string]string{
	"bloom_step":           PoolSteps,
	"bloom_run":            PoolSteps,
	"bloom_train_forecast": PoolTraining,
	"bloom_trigger":        PoolControl,
	"bloom_transition":     PoolControl,
	"bloom_forecast":       PoolAnalysis,
	"bloom_classify":       PoolAnalysis,
	"bloom_anomalies":      PoolAnalysis,
	"bloom_save":           PoolRuns,
	"bloom_load":           PoolRuns,
	"bloom_runs":           PoolListing,
}

// DefaultBudgets returns the budget of every pool. The step pool holds
// constants.MaxSteps so any single valid request fits a full pool.
func DefaultBudgets() map[string]Budget {
	return map[string]Budget{
		PoolSteps:    {Rate: 1000, Burst: constants.MaxSteps}, // 60k steps/minute
		PoolTraining: {Rate: 10.0 / 60.0, Burst: 10},          // 10 fits/minute
		PoolControl:  {Rate: 30.0 / 60.0, Burst: 5},
		PoolAnalysis: {Rate: 1.0, Burst: 10},
		PoolRuns:     {Rate: 10.0 / 60.0, Burst: 3},
		PoolListing:  {Rate: 1.0, Burst: 10},
	}
}

// ToolLimiters charges tool calls to their pools.
type ToolLimiters struct {
	pools map[string]*Limiter
}

// NewToolLimiters creates one bucket per budget. A nil map uses
// DefaultBudgets; pools missing from a non-nil map are unlimited.
func NewToolLimiters(budgets map[string]Budget) *ToolLimiters {
	if budgets == nil {
		budgets = DefaultBudgets()
	}
	pools := make(map[string]*Limiter, len(budgets))
	for name, b := range budgets {
		pools[name] = NewLimiter(b)
	}
	return &ToolLimiters{pools: pools}
}

// Charge debits cost tokens from the pool of tool. Costs below 1 are
// charged as 1. Tools without a limited pool are always allowed.
func (t *ToolLimiters) Charge(tool string, cost int) error {
	l, ok := t.pools[toolPools[tool]]
	if !ok {
		return nil
	}
	cost = max(cost, 1)
	if float64(cost) > l.budget.Burst {
		return fmt.Errorf("%w: %s costs %d but the %s pool holds at most %.0f",
			ErrOverBudget, tool, cost, toolPools[tool], l.budget.Burst)
	}
	if !l.Take(float64(cost)) {
		return fmt.Errorf("%w for %s: needs %d, %s pool has %.0f, please try again shortly",
			ErrLimited, tool, cost, toolPools[tool], l.Available())
	}
	return nil
}
