package insurance_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/insurance"
)

type fakeTransfer struct {
	failNext bool
	sent     map[common.Address]*big.Int
}

func newFakeTransfer() *fakeTransfer {
	return &fakeTransfer{sent: map[common.Address]*big.Int{}}
}

func (f *fakeTransfer) Send(to common.Address, amount *big.Int) error {
	if f.failNext {
		return errSendFailed
	}
	f.sent[to] = new(big.Int).Set(amount)
	return nil
}

var errSendFailed = &sendError{}

type sendError struct{}

func (*sendError) Error() string { return "fake transfer: send failed" }

func testAddr(n byte) common.Address {
	var addr common.Address
	addr[19] = n
	return addr
}

func TestDeposit_AccumulatesBalance(t *testing.T) {
	owner := testAddr(1)
	fund := insurance.NewTreasury(owner, newFakeTransfer())
	if err := fund.Deposit(big.NewInt(100)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if err := fund.Deposit(big.NewInt(50)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if got := fund.Balance(); got.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("Balance = %s, want 150", got)
	}
}

func TestRequestWithdrawal_RejectsNonOwner(t *testing.T) {
	owner := testAddr(1)
	fund := insurance.NewTreasury(owner, newFakeTransfer())
	_ = fund.Deposit(big.NewInt(100))
	if err := fund.RequestWithdrawal(testAddr(2), testAddr(3), big.NewInt(10)); err == nil {
		t.Error("expected rejection of a withdrawal request from a non-owner")
	}
}

func TestRequestWithdrawal_RejectsBeyondBalance(t *testing.T) {
	owner := testAddr(1)
	fund := insurance.NewTreasury(owner, newFakeTransfer())
	_ = fund.Deposit(big.NewInt(100))
	if err := fund.RequestWithdrawal(owner, owner, big.NewInt(101)); err == nil {
		t.Error("expected rejection of a withdrawal larger than the fund balance")
	}
}

func TestExecuteWithdrawal_RequiresTimelock(t *testing.T) {
	owner := testAddr(1)
	fund := insurance.NewTreasury(owner, newFakeTransfer())
	_ = fund.Deposit(big.NewInt(100))
	if err := fund.RequestWithdrawal(owner, owner, big.NewInt(50)); err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if _, err := fund.ExecuteWithdrawal(owner); err == nil {
		t.Error("expected rejection before the withdrawal timelock elapses")
	}
}

func TestCancelWithdrawal_ClearsPendingRequest(t *testing.T) {
	owner := testAddr(1)
	fund := insurance.NewTreasury(owner, newFakeTransfer())
	_ = fund.Deposit(big.NewInt(100))
	if err := fund.RequestWithdrawal(owner, owner, big.NewInt(50)); err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if err := fund.CancelWithdrawal(owner); err != nil {
		t.Fatalf("CancelWithdrawal: %v", err)
	}
	if _, err := fund.ExecuteWithdrawal(owner); err == nil {
		t.Error("expected no pending withdrawal left to execute after cancellation")
	}
}

func TestRequestWithdrawal_RejectsSecondWhilePending(t *testing.T) {
	owner := testAddr(1)
	fund := insurance.NewTreasury(owner, newFakeTransfer())
	_ = fund.Deposit(big.NewInt(100))
	if err := fund.RequestWithdrawal(owner, owner, big.NewInt(10)); err != nil {
		t.Fatalf("first RequestWithdrawal: %v", err)
	}
	if err := fund.RequestWithdrawal(owner, owner, big.NewInt(20)); err == nil {
		t.Error("expected rejection of a second withdrawal request while one is already pending")
	}
}

func TestBalance_ZeroOnFreshFund(t *testing.T) {
	fund := insurance.NewTreasury(testAddr(1), newFakeTransfer())
	if got := fund.Balance(); got.Sign() != 0 {
		t.Errorf("Balance on a fresh fund = %s, want 0", got)
	}
}
