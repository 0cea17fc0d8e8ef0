// Package budget tracks the running cost of remote model calls and aborts
// further spending when a configured ceiling is crossed.
package budget

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBudgetExceeded is fatal for the current request. It is a cost safety
// mechanism and must never be silently swallowed.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Pricing is the USD cost per 1K tokens for one model.
type Pricing struct {
	Prompt     float64
	Completion float64
}

// DefaultPricing covers the models the engine calls by default. Unknown
// models fall back to the fallback model's pricing.
func DefaultPricing() map[string]Pricing {
	return map[string]Pricing{
		"text-embedding-3-large": {Prompt: 0.13, Completion: 0.13},
		"text-embedding-3-small": {Prompt: 0.02, Completion: 0.02},
		"gpt-4-turbo":            {Prompt: 0.01, Completion: 0.03},
		"gpt-4o-mini":            {Prompt: 0.003, Completion: 0.006},
	}
}

// FallbackModel prices unknown models.
const FallbackModel = "gpt-4o-mini"

// Tracker is a process-wide running cost counter. It is constructed once
// in main and passed by reference to every remote-call site. The total
// only grows; it resets with the process.
type Tracker struct {
	mu      sync.Mutex
	spent   float64
	ceiling float64
	pricing map[string]Pricing
}

// NewTracker creates a tracker with the given ceiling in USD.
// A ceiling of zero disables all remote spending.
func NewTracker(ceilingUSD float64, pricing map[string]Pricing) *Tracker {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Tracker{
		ceiling: ceilingUSD,
		pricing: pricing,
	}
}

// Price computes the USD cost of a call without recording it.
func (t *Tracker) Price(model string, promptTokens, completionTokens int64) float64 {
	p, ok := t.pricing[model]
	if !ok {
		p = t.pricing[FallbackModel]
	}
	return float64(promptTokens)/1000*p.Prompt + float64(completionTokens)/1000*p.Completion
}

// Add accumulates the cost of a completed call and checks the ceiling.
// The cost is recorded even when the ceiling is crossed, so the overrun
// is visible; the returned error ends the request.
func (t *Tracker) Add(model string, promptTokens, completionTokens int64) (float64, error) {
	cost := t.Price(model, promptTokens, completionTokens)

	t.mu.Lock()
	t.spent += cost
	spent := t.spent
	t.mu.Unlock()

	if spent > t.ceiling {
		return cost, fmt.Errorf("%w: $%.4f > $%.4f", ErrBudgetExceeded, spent, t.ceiling)
	}
	return cost, nil
}

// Spent returns the running total in USD.
func (t *Tracker) Spent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent
}

// Check returns ErrBudgetExceeded when the running total has crossed the
// ceiling. Remote-call sites consult it before issuing a new call.
func (t *Tracker) Check() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.spent > t.ceiling {
		return fmt.Errorf("%w: $%.4f > $%.4f", ErrBudgetExceeded, t.spent, t.ceiling)
	}
	return nil
}
