package bankroll_test

import (
	"math/big"
	"testing"

	"github.com/agentcasino/engine/internal/bankroll"
)

// P4: locking beyond the configured maximum is rejected.
func TestLock_RejectsOverLimit(t *testing.T) {
	g := bankroll.NewGuard(big.NewInt(100))
	if err := g.Lock(big.NewInt(60)); err != nil {
		t.Fatalf("Lock(60): %v", err)
	}
	if err := g.Lock(big.NewInt(50)); err == nil {
		t.Error("expected ErrExposureLimitExceeded locking past the max")
	}
	if got := g.TotalLocked(); got.Cmp(big.NewInt(60)) != 0 {
		t.Errorf("TotalLocked after rejected lock = %s, want 60 (unchanged)", got)
	}
}

// B2: locking exactly up to the boundary succeeds.
func TestLock_AllowsExactBoundary(t *testing.T) {
	g := bankroll.NewGuard(big.NewInt(100))
	if err := g.Lock(big.NewInt(100)); err != nil {
		t.Fatalf("Lock(100) at exact max: %v", err)
	}
	if err := g.Lock(big.NewInt(1)); err == nil {
		t.Error("expected error locking past an already-full bankroll")
	}
}

func TestUnlock_ReleasesExposure(t *testing.T) {
	g := bankroll.NewGuard(big.NewInt(100))
	_ = g.Lock(big.NewInt(80))
	g.Unlock(big.NewInt(30))
	if got := g.TotalLocked(); got.Cmp(big.NewInt(50)) != 0 {
		t.Errorf("TotalLocked after unlock = %s, want 50", got)
	}
	if err := g.Lock(big.NewInt(50)); err != nil {
		t.Errorf("Lock after unlock freed capacity: %v", err)
	}
}

func TestUnlock_ClampsAtZero(t *testing.T) {
	g := bankroll.NewGuard(big.NewInt(100))
	_ = g.Lock(big.NewInt(10))
	g.Unlock(big.NewInt(9999))
	if got := g.TotalLocked(); got.Sign() != 0 {
		t.Errorf("TotalLocked after over-unlock = %s, want 0", got)
	}
}

func TestLock_RejectsNegativeAmount(t *testing.T) {
	g := bankroll.NewGuard(big.NewInt(100))
	if err := g.Lock(big.NewInt(-1)); err == nil {
		t.Error("expected error for negative lock amount")
	}
}

func TestAvailable_ReflectsLocked(t *testing.T) {
	g := bankroll.NewGuard(big.NewInt(100))
	_ = g.Lock(big.NewInt(40))
	if got := g.Available(); got.Cmp(big.NewInt(60)) != 0 {
		t.Errorf("Available = %s, want 60", got)
	}
}
