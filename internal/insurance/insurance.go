// Package insurance holds the segregated treasury the settlement
// contract skims house profit into. Grounded on the same escrow.go
// timelocked-release idiom used for settlement's ownership rotation:
// a request/execute/cancel triple gated by a fixed timelock and, here,
// additionally bounded by the fund's own balance at execute time.
package insurance

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/metrics"
)

var (
	ErrUnauthorized            = errors.New("insurance: caller is not the fund owner")
	ErrInsufficientFunds       = errors.New("insurance: requested amount exceeds fund balance")
	ErrNoPendingWithdrawal     = errors.New("insurance: no pending withdrawal request")
	ErrTimelockNotElapsed      = errors.New("insurance: withdrawal timelock has not elapsed")
	ErrWithdrawalAlreadyQueued = errors.New("insurance: a withdrawal request is already pending")
)

// WithdrawalTimelock is the delay between requesting and executing an
// insurance withdrawal.
const WithdrawalTimelock = 72 * time.Hour

// TransferPort abstracts the value transfer ExecuteWithdrawal makes;
// the same interface shape settlement.TransferPort uses, kept separate
// since the two packages have no reason to share a dependency edge.
type TransferPort interface {
	Send(to common.Address, amount *big.Int) error
}

// Treasury is the segregated insurance fund: house profit flows in via
// Deposit (called by settlement.Contract.settle), and flows out only
// through the owner's timelocked withdrawal.
type Treasury struct {
	mu       sync.Mutex
	balance  *big.Int
	owner    common.Address
	transfer TransferPort
	logger   *slog.Logger

	pendingAmount    *big.Int
	pendingRecipient common.Address
	requestedAt      time.Time
}

// NewTreasury creates an empty insurance fund owned by owner.
func NewTreasury(owner common.Address, transfer TransferPort) *Treasury {
	return &Treasury{
		balance:  big.NewInt(0),
		owner:    owner,
		transfer: transfer,
		logger:   slog.Default(),
	}
}

// Deposit adds amount to the fund balance. Called by the settlement
// contract with the 10% BPS skim of house profit on channel close.
func (t *Treasury) Deposit(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("insurance: deposit amount must be positive")
	}
	t.mu.Lock()
	t.balance.Add(t.balance, amount)
	balance := new(big.Int).Set(t.balance)
	t.mu.Unlock()
	metrics.InsuranceFundBalance.Set(weiToFloat(balance))
	return nil
}

// weiToFloat renders a wei amount as a float64 gauge value; the same
// tradeoff engine.weiToFloat documents applies here.
func weiToFloat(wei *big.Int) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f
}

// Balance returns the fund's current balance.
func (t *Treasury) Balance() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance)
}

// RequestWithdrawal queues a withdrawal of amount to recipient, payable
// after WithdrawalTimelock. Only one request may be pending at a time.
func (t *Treasury) RequestWithdrawal(caller, recipient common.Address, amount *big.Int) error {
	if caller != t.owner {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("insurance: withdrawal amount must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pendingAmount != nil {
		return ErrWithdrawalAlreadyQueued
	}
	if amount.Cmp(t.balance) > 0 {
		return fmt.Errorf("%w: requested %s, balance %s", ErrInsufficientFunds, amount, t.balance)
	}
	t.pendingAmount = new(big.Int).Set(amount)
	t.pendingRecipient = recipient
	t.requestedAt = time.Now()
	return nil
}

// ExecuteWithdrawal pays out the pending request once the timelock has
// elapsed. The requested amount is reclamped against the balance at
// execute time, since deposits and other withdrawals may have moved it
// since the request was queued.
func (t *Treasury) ExecuteWithdrawal(caller common.Address) (*big.Int, error) {
	if caller != t.owner {
		return nil, ErrUnauthorized
	}
	t.mu.Lock()
	if t.pendingAmount == nil {
		t.mu.Unlock()
		return nil, ErrNoPendingWithdrawal
	}
	if time.Since(t.requestedAt) < WithdrawalTimelock {
		t.mu.Unlock()
		return nil, ErrTimelockNotElapsed
	}
	amount := t.pendingAmount
	if amount.Cmp(t.balance) > 0 {
		amount = new(big.Int).Set(t.balance)
	}
	recipient := t.pendingRecipient
	t.pendingAmount = nil
	t.pendingRecipient = common.Address{}
	t.balance.Sub(t.balance, amount)
	balance := new(big.Int).Set(t.balance)
	t.mu.Unlock()
	metrics.InsuranceFundBalance.Set(weiToFloat(balance))

	if err := t.transfer.Send(recipient, amount); err != nil {
		// The balance has already been debited; effects-before-
		// interactions means a failed transfer here cannot be
		// retried against fund state that a concurrent request
		// could have changed, so it is logged for manual
		// reconciliation rather than re-credited automatically.
		t.logger.Error("CRITICAL: insurance withdrawal transfer failed after balance debited",
			"recipient", recipient, "amount", amount, "err", err)
		return nil, fmt.Errorf("insurance: execute withdrawal: %w", err)
	}
	return amount, nil
}

// CancelWithdrawal lets the owner cancel a pending request at any time.
func (t *Treasury) CancelWithdrawal(caller common.Address) error {
	if caller != t.owner {
		return ErrUnauthorized
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingAmount = nil
	t.pendingRecipient = common.Address{}
	return nil
}
