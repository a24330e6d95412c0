package game_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/game"
	"github.com/agentcasino/engine/internal/model"
)

func newChannel(agentBalance, houseBalance int64) *model.Channel {
	return &model.Channel{
		Agent:        common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"),
		AgentDeposit: big.NewInt(agentBalance),
		HouseDeposit: big.NewInt(houseBalance),
		AgentBalance: big.NewInt(agentBalance),
		HouseBalance: big.NewInt(houseBalance),
		State:        model.ChannelOpen,
	}
}

func TestValidateBet_RejectsNonPositive(t *testing.T) {
	ch := newChannel(1000, 100000)
	if err := game.ValidateBet(ch, big.NewInt(0), 290, 2); err == nil {
		t.Error("expected error for zero bet")
	}
}

func TestValidateBet_RejectsInsufficientAgentBalance(t *testing.T) {
	ch := newChannel(100, 100000)
	if err := game.ValidateBet(ch, big.NewInt(1000), 290, 2); err == nil {
		t.Error("expected error for bet exceeding agent balance")
	}
}

// B2: bet == houseBalance/(maxMultiplier*safetyFactor) is accepted, one
// wei higher is rejected.
func TestValidateBet_HouseCoverageBoundary(t *testing.T) {
	ch := newChannel(1_000_000, 1160) // 1160 = 2*290*2
	if err := game.ValidateBet(ch, big.NewInt(2), 290, 2); err != nil {
		t.Errorf("bet at exact boundary rejected: %v", err)
	}
	ch2 := newChannel(1_000_000, 1160)
	if err := game.ValidateBet(ch2, big.NewInt(3), 290, 2); err == nil {
		t.Error("expected rejection one wei past the house-coverage boundary")
	}
}

func TestApplyRoundDelta_Loss(t *testing.T) {
	ch := newChannel(1000, 5000)
	game.ApplyRoundDelta(ch, big.NewInt(100), big.NewInt(0))
	if ch.AgentBalance.Cmp(big.NewInt(900)) != 0 {
		t.Errorf("agentBalance = %s, want 900", ch.AgentBalance)
	}
	if ch.HouseBalance.Cmp(big.NewInt(5100)) != 0 {
		t.Errorf("houseBalance = %s, want 5100", ch.HouseBalance)
	}
}

func TestApplyRoundDelta_Win(t *testing.T) {
	ch := newChannel(1000, 5000)
	game.ApplyRoundDelta(ch, big.NewInt(100), big.NewInt(250))
	if ch.AgentBalance.Cmp(big.NewInt(1150)) != 0 {
		t.Errorf("agentBalance = %s, want 1150", ch.AgentBalance)
	}
	if ch.HouseBalance.Cmp(big.NewInt(4850)) != 0 {
		t.Errorf("houseBalance = %s, want 4850", ch.HouseBalance)
	}
}

// P1: conservation holds across an arbitrary sequence of round deltas.
func TestApplyRoundDelta_PreservesConservation(t *testing.T) {
	ch := newChannel(10000, 10000)
	before := new(big.Int).Add(ch.AgentBalance, ch.HouseBalance)
	game.ApplyRoundDelta(ch, big.NewInt(500), big.NewInt(1200))
	game.ApplyRoundDelta(ch, big.NewInt(300), big.NewInt(0))
	after := new(big.Int).Add(ch.AgentBalance, ch.HouseBalance)
	if before.Cmp(after) != 0 {
		t.Errorf("conservation violated: before %s, after %s", before, after)
	}
}
