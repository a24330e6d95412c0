package rng_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/rng"
)

var testAgent = common.HexToAddress("0xaaaa000000000000000000000000000000aaaa")

func TestLifecycle_RequestFulfillSettle(t *testing.T) {
	m := rng.NewMachine("provider-1", 5*time.Minute)

	round, err := m.Request("req-1", testAgent, big.NewInt(100), big.NewInt(1), "heads")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if round.State != rng.StateRequested {
		t.Errorf("state after Request = %s, want requested", round.State)
	}

	round, err = m.Fulfill("req-1", "provider-1", big.NewInt(42))
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if round.State != rng.StateFulfilled {
		t.Errorf("state after Fulfill = %s, want fulfilled", round.State)
	}

	round, err = m.Settle("req-1")
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if round.State != rng.StateSettled {
		t.Errorf("state after Settle = %s, want settled", round.State)
	}
	if round.Result != 0 {
		t.Errorf("result = %d, want 0 (42 mod 2)", round.Result)
	}
}

func TestRequest_RejectsDuplicateID(t *testing.T) {
	m := rng.NewMachine("provider-1", 5*time.Minute)
	if _, err := m.Request("req-1", testAgent, big.NewInt(100), big.NewInt(1), "heads"); err != nil {
		t.Fatalf("first Request: %v", err)
	}
	if _, err := m.Request("req-1", testAgent, big.NewInt(100), big.NewInt(1), "tails"); err == nil {
		t.Error("expected rejection of a duplicate request id")
	}
}

func TestFulfill_RejectsUnauthorizedProvider(t *testing.T) {
	m := rng.NewMachine("provider-1", 5*time.Minute)
	_, _ = m.Request("req-1", testAgent, big.NewInt(100), big.NewInt(1), "heads")
	if _, err := m.Fulfill("req-1", "provider-2", big.NewInt(42)); err == nil {
		t.Error("expected rejection of fulfillment from an unauthorized provider")
	}
}

func TestFulfill_RejectsSecondFulfillment(t *testing.T) {
	m := rng.NewMachine("provider-1", 5*time.Minute)
	_, _ = m.Request("req-1", testAgent, big.NewInt(100), big.NewInt(1), "heads")
	if _, err := m.Fulfill("req-1", "provider-1", big.NewInt(42)); err != nil {
		t.Fatalf("first Fulfill: %v", err)
	}
	if _, err := m.Fulfill("req-1", "provider-1", big.NewInt(7)); err == nil {
		t.Error("expected rejection of a second fulfillment")
	}
}

func TestExpire_RejectsBeforeTTL(t *testing.T) {
	m := rng.NewMachine("provider-1", 5*time.Minute)
	_, _ = m.Request("req-1", testAgent, big.NewInt(100), big.NewInt(1), "heads")
	if _, err := m.Expire("req-1", time.Now()); err == nil {
		t.Error("expected rejection of an expire before the TTL elapses")
	}
}

func TestExpire_AllowsAnyObserverAfterTTL(t *testing.T) {
	m := rng.NewMachine("provider-1", 5*time.Minute)
	_, _ = m.Request("req-1", testAgent, big.NewInt(100), big.NewInt(1), "heads")
	future := time.Now().Add(10 * time.Minute)
	round, err := m.Expire("req-1", future)
	if err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if round.State != rng.StateExpired {
		t.Errorf("state = %s, want expired", round.State)
	}
}

func TestSettle_RejectsUnfulfilledRound(t *testing.T) {
	m := rng.NewMachine("provider-1", 5*time.Minute)
	_, _ = m.Request("req-1", testAgent, big.NewInt(100), big.NewInt(1), "heads")
	if _, err := m.Settle("req-1"); err == nil {
		t.Error("expected rejection of Settle on an unfulfilled round")
	}
}

func TestFail_IsTerminal(t *testing.T) {
	m := rng.NewMachine("provider-1", 5*time.Minute)
	_, _ = m.Request("req-1", testAgent, big.NewInt(100), big.NewInt(1), "heads")
	round, err := m.Fail("req-1")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if round.State != rng.StateFailed {
		t.Errorf("state = %s, want failed", round.State)
	}
	if _, err := m.Fulfill("req-1", "provider-1", big.NewInt(42)); err == nil {
		t.Error("expected rejection of Fulfill on a failed round")
	}
}
