// Package limiter enforces a per-model token rate and a per-run spending cap on LLM calls.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"codegen/pkg/config"
)

var (
	// ErrBudgetExceeded is returned once a run has spent its cost cap.
	ErrBudgetExceeded = errors.New("run budget exceeded")
)

// Limiter holds one token bucket per model and the spend of every run.
type Limiter struct {
	cfg    config.LimitsConfig
	now    func() time.Time
	models map[string]*ModelLimiter
	spend  map[string]float64
	mu     sync.Mutex
}

// ModelLimiter is a token bucket refilled continuously at TokensPerMinute.
//
//nolint:govet // Struct layout optimization not critical for this use case
type ModelLimiter struct {
	mu            sync.Mutex
	name          string
	capacity      int
	currentTokens float64
	lastRefill    time.Time
}

// New creates a limiter.
func New(cfg config.LimitsConfig) *Limiter {
	return &Limiter{
		cfg:    cfg,
		now:    time.Now,
		models: make(map[string]*ModelLimiter),
		spend:  make(map[string]float64),
	}
}

// Enabled reports whether any limit is configured.
func (l *Limiter) Enabled() bool {
	return l.cfg.TokensPerMinute > 0 || l.cfg.MaxCostPerRunUSD > 0
}

func (l *Limiter) model(name string) *ModelLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	ml, ok := l.models[name]
	if !ok {
		ml = &ModelLimiter{
			name:          name,
			capacity:      l.cfg.TokensPerMinute,
			currentTokens: float64(l.cfg.TokensPerMinute), // start full
			lastRefill:    l.now(),
		}
		l.models[name] = ml
	}
	return ml
}

// Wait blocks until tokens can be taken from model's bucket or ctx is done.
// Requests larger than the bucket are clamped to its capacity.
func (l *Limiter) Wait(ctx context.Context, model string, tokens int) error {
	if l.cfg.TokensPerMinute <= 0 || tokens <= 0 {
		return nil
	}
	ml := l.model(model)
	for {
		wait := ml.reserve(tokens, l.now())
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for %s rate limit: %w", model, ctx.Err())
		case <-timer.C:
		}
	}
}

// reserve takes tokens if available and returns 0, or returns how long until they will be.
func (ml *ModelLimiter) reserve(tokens int, now time.Time) time.Duration {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.refill(now)
	need := float64(min(tokens, ml.capacity))
	if ml.currentTokens >= need {
		ml.currentTokens -= need
		return 0
	}
	perSecond := float64(ml.capacity) / 60
	wait := time.Duration((need - ml.currentTokens) / perSecond * float64(time.Second))
	return max(wait, 10*time.Millisecond)
}

func (ml *ModelLimiter) refill(now time.Time) {
	elapsed := now.Sub(ml.lastRefill)
	if elapsed <= 0 {
		return
	}
	ml.currentTokens += float64(elapsed) * float64(ml.capacity) / float64(time.Minute)
	if ml.currentTokens > float64(ml.capacity) {
		ml.currentTokens = float64(ml.capacity)
	}
	ml.lastRefill = now
}

// Available returns the tokens currently in model's bucket.
func (l *Limiter) Available(model string) int {
	ml := l.model(model)
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.refill(l.now())
	return int(ml.currentTokens)
}

// CheckBudget fails once runID has spent at least the configured cap.
func (l *Limiter) CheckBudget(runID string) error {
	if l.cfg.MaxCostPerRunUSD <= 0 {
		return nil
	}
	l.mu.Lock()
	spent := l.spend[runID]
	l.mu.Unlock()
	if spent >= l.cfg.MaxCostPerRunUSD {
		return fmt.Errorf("%w: run %s spent $%.4f of $%.4f", ErrBudgetExceeded, runID, spent, l.cfg.MaxCostPerRunUSD)
	}
	return nil
}

// Spend adds costUSD to runID's total.
func (l *Limiter) Spend(runID string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spend[runID] += costUSD
}

// Spent returns the total recorded for runID.
func (l *Limiter) Spent(runID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spend[runID]
}
