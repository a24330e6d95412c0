package engine_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/bankroll"
	"github.com/agentcasino/engine/internal/engine"
	"github.com/agentcasino/engine/internal/signer"
)

// fakeSigner is a throwaway signer.Port: it never needs to recover a
// real signature in these tests, only prove the engine calls Sign after
// every mutation and carries the result through.
type fakeSigner struct {
	addr common.Address
}

func (f fakeSigner) Address() common.Address { return f.addr }

func (f fakeSigner) Sign(signer.StateDigestInput) ([]byte, error) {
	sig := make([]byte, 65)
	sig[64] = 27
	return sig, nil
}

func (f fakeSigner) Recover(signer.StateDigestInput, []byte) (common.Address, error) {
	return f.addr, nil
}

func newTestEngine(maxChannels int, maxExposure int64, drawInterval time.Duration) *engine.Engine {
	guard := bankroll.NewGuard(big.NewInt(maxExposure))
	cfg := engine.Config{
		MaxChannels:   maxChannels,
		CommitTimeout: 5 * time.Minute,
		TicketPrice:   big.NewInt(10),
		DrawInterval:  drawInterval,
	}
	return engine.NewEngine(fakeSigner{addr: common.HexToAddress("0xcafe")}, guard, cfg, nil)
}

func testAgent(n byte) common.Address {
	var addr common.Address
	addr[19] = n
	return addr
}

func TestOpenChannel_RejectsDuplicate(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	agent := testAgent(1)
	if _, err := e.OpenChannel(agent, big.NewInt(1000), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("first OpenChannel: %v", err)
	}
	if _, err := e.OpenChannel(agent, big.NewInt(1000), big.NewInt(1_000_000)); err == nil {
		t.Error("expected rejection of a duplicate channel")
	}
}

func TestOpenChannel_RejectsMaxChannelsReached(t *testing.T) {
	e := newTestEngine(1, 1_000_000_000, time.Hour)
	if _, err := e.OpenChannel(testAgent(1), big.NewInt(1000), big.NewInt(1000)); err != nil {
		t.Fatalf("open first channel: %v", err)
	}
	if _, err := e.OpenChannel(testAgent(2), big.NewInt(1000), big.NewInt(1000)); err == nil {
		t.Error("expected rejection past the configured channel capacity")
	}
}

func TestGetStatus_ReturnsSnapshot(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	agent := testAgent(1)
	if _, err := e.OpenChannel(agent, big.NewInt(1000), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	snap, err := e.GetStatus(agent)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if snap.Nonce != 0 {
		t.Errorf("nonce = %d, want 0", snap.Nonce)
	}
	if snap.GamesPlayed != 0 {
		t.Errorf("gamesPlayed = %d, want 0", snap.GamesPlayed)
	}
}

func TestGetStatus_RejectsUnknownAgent(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	if _, err := e.GetStatus(testAgent(9)); err == nil {
		t.Error("expected rejection of an unopened channel")
	}
}

func TestHandleAction_RejectsWhenChannelNotFound(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	if _, err := e.HandleAction("coinflip_flip", testAgent(1), map[string]interface{}{"bet": "100", "choice": "heads"}); err == nil {
		t.Error("expected rejection with no open channel")
	}
}

func TestHandleAction_RejectsUnknownRoute(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	agent := testAgent(1)
	if _, err := e.OpenChannel(agent, big.NewInt(1000), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	if _, err := e.HandleAction("roulette_spin", agent, nil); err == nil {
		t.Error("expected rejection of an unregistered game route")
	}
}

// S2-style: slots commit/reveal round-trips through the engine, with
// conservation holding regardless of outcome and the bankroll headroom
// released once the round resolves.
func TestHandleAction_SlotsCommitThenRevealReleasesBankrollLock(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	agent := testAgent(1)
	if _, err := e.OpenChannel(agent, big.NewInt(1_000_000), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}

	before := e.BankrollAvailable()

	commit, err := e.HandleAction("slots_spin", agent, map[string]interface{}{"bet": "100"})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if commit.Commitment == "" {
		t.Error("expected a commitment from the commit phase")
	}
	if e.BankrollAvailable().Cmp(before) >= 0 {
		t.Error("expected the commit to reserve bankroll headroom")
	}

	reveal, err := e.HandleAction("slots_spin", agent, map[string]interface{}{"agentSeed": "test-seed"})
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if reveal.Nonce != 1 {
		t.Errorf("nonce = %d, want 1", reveal.Nonce)
	}
	sum := new(big.Int).Add(reveal.AgentBalance, reveal.HouseBalance)
	if sum.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Errorf("conservation violated, sum = %s", sum)
	}
	if e.BankrollAvailable().Cmp(before) != 0 {
		t.Errorf("bankroll headroom not fully released after reveal: before %s, after %s", before, e.BankrollAvailable())
	}
}

// B3 at the engine-routing level: a second commit for the same game
// while one is pending is rejected, but a different game commits in
// parallel without interference.
func TestHandleAction_DoubleCommitSameGameRejectedDifferentGameAllowed(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	agent := testAgent(1)
	if _, err := e.OpenChannel(agent, big.NewInt(1_000_000), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}

	if _, err := e.HandleAction("coinflip_flip", agent, map[string]interface{}{"bet": "100", "choice": "heads"}); err != nil {
		t.Fatalf("coinflip commit: %v", err)
	}
	if _, err := e.HandleAction("coinflip_flip", agent, map[string]interface{}{"bet": "100", "choice": "heads"}); err == nil {
		t.Error("expected rejection of a same-game double commit")
	}
	if _, err := e.HandleAction("slots_spin", agent, map[string]interface{}{"bet": "100"}); err != nil {
		t.Errorf("expected a different game's commit to succeed in parallel, got %v", err)
	}
}

func TestCloseChannel_ProducesSignedStateAndRemovesChannel(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	agent := testAgent(1)
	if _, err := e.OpenChannel(agent, big.NewInt(1_000_000), big.NewInt(1_000_000)); err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}

	result, err := e.CloseChannel(agent)
	if err != nil {
		t.Fatalf("CloseChannel: %v", err)
	}
	if len(result.Signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(result.Signature))
	}
	if _, err := e.GetStatus(agent); err == nil {
		t.Error("expected the channel to be gone after close")
	}
}

func TestCloseChannel_RejectsUnknownAgent(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	if _, err := e.CloseChannel(testAgent(9)); err == nil {
		t.Error("expected rejection of a close on an unopened channel")
	}
}

// S4-style: a lotto win spans RunScheduled's draw execution and folds
// into the still-open channel without the agent separately claiming.
// Ten agents each buy the full 10-ticket-per-draw allowance so their
// picks partition [1,100] between them, guaranteeing exactly one of
// them holds the winning number without exceeding lotto.go's per-agent
// cap the way a single agent covering the whole range would.
func TestRunScheduled_ExecutesDueDrawAndAppliesWinnings(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Millisecond)

	agents := make([]common.Address, 10)
	for i := 0; i < 10; i++ {
		agents[i] = testAgent(byte(i + 1))
		if _, err := e.OpenChannel(agents[i], big.NewInt(1_000_000), big.NewInt(10_000_000)); err != nil {
			t.Fatalf("OpenChannel agent %d: %v", i, err)
		}
		for j := 1; j <= 10; j++ {
			pick := i*10 + j
			if _, err := e.HandleAction("lotto_buy", agents[i], map[string]interface{}{"pickedNumber": pick, "ticketCount": 1}); err != nil {
				t.Fatalf("agent %d buy %d: %v", i, pick, err)
			}
		}
	}

	time.Sleep(2 * time.Millisecond)
	e.RunScheduled()

	var winnerFound bool
	for _, agent := range agents {
		snap, err := e.GetStatus(agent)
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if snap.Nonce > 10 {
			winnerFound = true
		}
	}
	if !winnerFound {
		t.Error("no agent's nonce advanced past its 10 buys; winnings were never applied")
	}
}

func TestOpenChannel_RejectsNegativeDeposit(t *testing.T) {
	e := newTestEngine(10, 1_000_000_000, time.Hour)
	if _, err := e.OpenChannel(testAgent(1), big.NewInt(-1), big.NewInt(1000)); err == nil {
		t.Error("expected rejection of a negative deposit")
	}
}
