// Package bankroll guards the house's total exposure across all open
// channels and in-flight bets. Every bet the house could lose must be
// locked against the bankroll before the round is accepted, and
// released back once the round settles, so the house never signs a
// state update it cannot cover.
package bankroll

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// ErrExposureLimitExceeded is returned when locking an amount would push
// total outstanding exposure beyond the configured maximum.
var ErrExposureLimitExceeded = errors.New("bankroll: exposure limit exceeded")

// Guard tracks the house's single aggregate exposure counter. Unlike a
// per-cell position limiter, the casino has one undifferentiated
// liability pool: a bet lost on any game draws from the same bankroll.
type Guard struct {
	mu          sync.Mutex
	totalLocked *big.Int
	maxExposure *big.Int
}

// NewGuard creates a bankroll guard that refuses to lock more than
// maxExposure wei at once across all outstanding bets.
func NewGuard(maxExposure *big.Int) *Guard {
	return &Guard{
		totalLocked: big.NewInt(0),
		maxExposure: new(big.Int).Set(maxExposure),
	}
}

// Lock reserves amount wei of the bankroll against a potential house
// loss. Returns ErrExposureLimitExceeded without modifying state if the
// reservation would exceed the configured maximum.
func (g *Guard) Lock(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bankroll: amount must be non-negative")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	proposed := new(big.Int).Add(g.totalLocked, amount)
	if proposed.Cmp(g.maxExposure) > 0 {
		return fmt.Errorf("%w: %s locked + %s requested exceeds max %s", ErrExposureLimitExceeded, g.totalLocked, amount, g.maxExposure)
	}
	g.totalLocked = proposed
	return nil
}

// CanLock reports whether amount wei could be locked right now without
// exceeding the configured maximum, without reserving it. Callers that
// need to check-then-act atomically should call Lock directly instead;
// this is for callers that only want to ask.
func (g *Guard) CanLock(amount *big.Int) bool {
	if amount == nil || amount.Sign() < 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	proposed := new(big.Int).Add(g.totalLocked, amount)
	return proposed.Cmp(g.maxExposure) <= 0
}

// Unlock releases amount wei previously reserved by Lock, once the
// round that reserved it has settled. Unlock never fails: a round that
// over-releases relative to what it locked is a caller bug, not a
// guard-level condition, so the counter is clamped at zero rather than
// going negative.
func (g *Guard) Unlock(amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.totalLocked.Sub(g.totalLocked, amount)
	if g.totalLocked.Sign() < 0 {
		g.totalLocked.SetInt64(0)
	}
}

// TotalLocked returns the current aggregate exposure.
func (g *Guard) TotalLocked() *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.totalLocked)
}

// MaxExposure returns the configured exposure ceiling.
func (g *Guard) MaxExposure() *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.maxExposure)
}

// Available returns maxExposure - totalLocked, floored at zero.
func (g *Guard) Available() *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	avail := new(big.Int).Sub(g.maxExposure, g.totalLocked)
	if avail.Sign() < 0 {
		return big.NewInt(0)
	}
	return avail
}
