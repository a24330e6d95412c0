package game_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/agentcasino/engine/internal/game"
	"github.com/agentcasino/engine/internal/model"
)

func TestSlots_CommitThenReveal(t *testing.T) {
	ctx := newFakeContext()
	s := game.NewSlots(5 * time.Minute)
	ch := newChannel(10000, 1_000_000)

	commitResult, err := s.HandleAction(ctx, ch, "spin", map[string]interface{}{"bet": "100"})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if commitResult.Commitment == "" {
		t.Fatal("commit result missing commitment")
	}
	if ch.Nonce != 0 {
		t.Errorf("nonce mutated on commit, got %d", ch.Nonce)
	}

	before := new(big.Int).Add(ch.AgentBalance, ch.HouseBalance)
	revealResult, err := s.HandleAction(ctx, ch, "spin", map[string]interface{}{"agentSeed": "agent-entropy"})
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if revealResult.Nonce != 1 {
		t.Errorf("nonce after reveal = %d, want 1", revealResult.Nonce)
	}
	after := new(big.Int).Add(ch.AgentBalance, ch.HouseBalance)
	if before.Cmp(after) != 0 {
		t.Errorf("conservation violated: before %s, after %s", before, after)
	}
	if len(ch.Games) != 1 {
		t.Errorf("games recorded = %d, want 1", len(ch.Games))
	}
}

// B3: a second commit while one is pending is rejected; a different
// game may still commit in parallel.
func TestSlots_DoubleCommitRejected(t *testing.T) {
	ctx := newFakeContext()
	s := game.NewSlots(5 * time.Minute)
	ch := newChannel(10000, 1_000_000)

	if _, err := s.HandleAction(ctx, ch, "spin", map[string]interface{}{"bet": "100"}); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if _, err := s.HandleAction(ctx, ch, "spin", map[string]interface{}{"bet": "100"}); err == nil {
		t.Error("expected rejection of a second commit while one is pending")
	}
}

func TestSlots_DifferentGameCommitsInParallel(t *testing.T) {
	ctx := newFakeContext()
	slots := game.NewSlots(5 * time.Minute)
	coinflip := game.NewCoinflip(5 * time.Minute)
	ch := newChannel(10000, 1_000_000)

	if _, err := slots.HandleAction(ctx, ch, "spin", map[string]interface{}{"bet": "100"}); err != nil {
		t.Fatalf("slots commit: %v", err)
	}
	if _, err := coinflip.HandleAction(ctx, ch, "flip", map[string]interface{}{"bet": "100", "choice": "heads"}); err != nil {
		t.Errorf("coinflip commit while slots pending: %v", err)
	}
}

// B4: a reveal after the commit timeout is rejected and the slot is
// cleared.
func TestSlots_RevealAfterTimeoutRejectedAndCleared(t *testing.T) {
	ctx := newFakeContext()
	s := game.NewSlots(5 * time.Minute)
	ch := newChannel(10000, 1_000_000)

	casinoSeed, commitment, err := ctx.GenerateCommit()
	if err != nil {
		t.Fatalf("GenerateCommit: %v", err)
	}
	ctx.SetPending(model.PendingCommit{
		Agent:      ch.Agent,
		Game:       "slots",
		CasinoSeed: casinoSeed,
		Commitment: commitment,
		BetAmount:  big.NewInt(100),
		Timestamp:  time.Now().Add(-10 * time.Minute),
	})

	if _, err := s.HandleAction(ctx, ch, "spin", map[string]interface{}{"agentSeed": "agent-entropy"}); err == nil {
		t.Error("expected rejection of reveal past the commit timeout")
	}
	if _, ok := ctx.GetPending(ch.Agent, "slots"); ok {
		t.Error("expired pending commit was not cleared")
	}
}
