// Package settlement implements the on-chain-style settlement contract:
// the two-party channel's authoritative deposit/balance/nonce ledger,
// its dispute/challenge resolution, and the pull-payment fallback for
// transfers that fail mid-settlement. Grounded on the escrow state
// machine in the pack's escrow.go: per-agent locking so concurrent
// operations on different channels never block each other, a status
// enum with a terminal check, and the "funds already moved, bookkeeping
// after it failed" logging discipline for the one leg (the insurance
// skim) that has no pull-payment fallback of its own.
package settlement

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/bankroll"
	"github.com/agentcasino/engine/internal/metrics"
	"github.com/agentcasino/engine/internal/model"
	"github.com/agentcasino/engine/internal/signer"
)

var (
	ErrChannelExists              = errors.New("settlement: channel already open for this agent")
	ErrChannelNotFound            = errors.New("settlement: no channel for this agent")
	ErrChannelNotOpen             = errors.New("settlement: channel is not open")
	ErrChannelNotDisputed         = errors.New("settlement: channel is not disputed")
	ErrDepositOutOfRange          = errors.New("settlement: deposit outside [minDeposit,maxDeposit]")
	ErrStaleNonce                 = errors.New("settlement: nonce must be strictly greater than the channel's current nonce")
	ErrInvariantViolation         = errors.New("settlement: agentBalance+casinoBalance does not match deposits")
	ErrSignatureInvalid           = errors.New("settlement: signature does not recover to the house address")
	ErrChallengeDeadlineNotPassed = errors.New("settlement: challenge deadline has not passed")
	ErrChallengeDeadlinePassed    = errors.New("settlement: challenge deadline has already passed")
	ErrEmergencyExitNotEligible   = errors.New("settlement: emergency exit requires nonce 0 and minimum channel duration")
	ErrOwnershipTransferBlocked   = errors.New("settlement: ownership transfer blocked while bankroll exposure is outstanding")
	ErrNoPendingOwnerTransfer     = errors.New("settlement: no pending ownership transfer")
	ErrOwnerTimelockNotElapsed    = errors.New("settlement: ownership timelock has not elapsed")
	ErrUnauthorized               = errors.New("settlement: caller is not authorized for this operation")
	ErrNoPendingWithdrawal        = errors.New("settlement: no pending withdrawal for this address")
)

const (
	ChallengePeriod    = 24 * time.Hour
	MinChannelDuration = 1 * time.Hour
	OwnershipTimelock  = 48 * time.Hour
	InsuranceBPS       = 1000 // 10%, of 10000
	bpsDenominator     = 10000
)

// MinDeposit and MaxDeposit bound OpenChannel's agent-payable amount, in
// wei: 0.001 ether and 10 ether.
var (
	MinDeposit = new(big.Int).Mul(big.NewInt(1e15), big.NewInt(1))
	MaxDeposit = new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18))
)

// TransferPort abstracts the value transfer a real settlement contract
// would make with an explicit `call` and success check. A failing Send
// reroutes the amount to pendingWithdrawals rather than failing the
// enclosing operation.
type TransferPort interface {
	Send(to common.Address, amount *big.Int) error
}

// InsuranceSink receives the house's profit skim. Unlike ordinary
// payouts, a failed deposit has no pull-payment fallback of its own —
// the funds have already left the channel's ledger, so a failure here
// is logged as a manual-reconciliation event rather than retried.
type InsuranceSink interface {
	Deposit(amount *big.Int) error
}

// Channel is the on-chain-authoritative record for one agent's payment
// channel. It duplicates the shape of model.Channel deliberately: per
// §3 Ownership the engine keeps its own off-chain mirror, and this type
// is the settlement contract's independent copy of the same fields plus
// the dispute bookkeeping the off-chain mirror never needs.
type Channel struct {
	Agent           common.Address
	AgentDeposit    *big.Int
	HouseDeposit    *big.Int
	AgentBalance    *big.Int
	HouseBalance    *big.Int
	Nonce           uint64
	State           model.ChannelState
	OpenedAt        time.Time
	DisputeDeadline time.Time

	// proposed* hold the state under dispute: the balances/nonce a
	// StartChallenge or CounterChallenge presented, settled only once
	// ResolveChallenge fires after the deadline elapses undisputed.
	proposedAgentBalance *big.Int
	proposedHouseBalance *big.Int
	proposedNonce        uint64
}

func (c *Channel) conservationOK(agentBalance, houseBalance *big.Int) bool {
	sum := new(big.Int).Add(agentBalance, houseBalance)
	deposits := new(big.Int).Add(c.AgentDeposit, c.HouseDeposit)
	return sum.Cmp(deposits) == 0
}

// Contract is the settlement contract. House is the address a
// closeChannel/startChallenge/counterChallenge signature must recover
// to; Owner is the operator address that can rotate ownership and
// withdraw insurance funds.
type Contract struct {
	locks     sync.Map // common.Address -> *sync.Mutex
	channels  sync.Map // common.Address -> *Channel
	openCount int64

	verifier  signer.Port
	transfer  TransferPort
	guard     *bankroll.Guard
	insurance InsuranceSink

	house common.Address

	pendingMu          sync.Mutex
	pendingWithdrawals map[common.Address]*big.Int

	ownerMu                sync.Mutex
	owner                  common.Address
	pendingOwner           common.Address
	ownerTransferRequested time.Time

	logger *slog.Logger
}

// NewContract wires a settlement contract against its dependencies.
// insurance may be nil at construction and set later via
// SetInsuranceFund, mirroring the construct-then-wire pattern the
// off-chain engine uses for its own cyclic dependencies.
func NewContract(owner, house common.Address, verifier signer.Port, transfer TransferPort, guard *bankroll.Guard) *Contract {
	return &Contract{
		verifier:           verifier,
		transfer:           transfer,
		guard:              guard,
		house:              house,
		owner:              owner,
		pendingWithdrawals: make(map[common.Address]*big.Int),
		logger:             slog.Default(),
	}
}

// SetInsuranceFund wires the insurance sink after construction.
func (c *Contract) SetInsuranceFund(sink InsuranceSink) {
	c.insurance = sink
}

func (c *Contract) channelLock(agent common.Address) *sync.Mutex {
	lock, _ := c.locks.LoadOrStore(agent, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (c *Contract) cleanupLock(agent common.Address) {
	c.locks.Delete(agent)
}

func (c *Contract) get(agent common.Address) (*Channel, bool) {
	v, ok := c.channels.Load(agent)
	if !ok {
		return nil, false
	}
	return v.(*Channel), true
}

// OpenChannel is the agent-payable entry point: amount must fall inside
// [MinDeposit, MaxDeposit] and no channel may already exist for agent.
func (c *Contract) OpenChannel(agent common.Address, amount *big.Int) (*Channel, error) {
	if amount == nil || amount.Cmp(MinDeposit) < 0 || amount.Cmp(MaxDeposit) > 0 {
		return nil, fmt.Errorf("%w: got %s", ErrDepositOutOfRange, amount)
	}

	lock := c.channelLock(agent)
	lock.Lock()
	defer lock.Unlock()

	if existing, ok := c.get(agent); ok && existing.State != model.ChannelClosed {
		return nil, ErrChannelExists
	}

	ch := &Channel{
		Agent:        agent,
		AgentDeposit: new(big.Int).Set(amount),
		HouseDeposit: big.NewInt(0),
		AgentBalance: new(big.Int).Set(amount),
		HouseBalance: big.NewInt(0),
		Nonce:        0,
		State:        model.ChannelOpen,
		OpenedAt:     time.Now(),
	}
	c.channels.Store(agent, ch)
	metrics.ChannelsOpened.Inc()
	metrics.OpenChannels.Set(float64(atomic.AddInt64(&c.openCount, 1)))
	c.logger.Info("settlement channel opened", "agent", agent, "deposit", amount)
	return ch, nil
}

// FundHouseSide is the house-payable entry point. It delegates to the
// bankroll guard before crediting the channel, so the house never funds
// a side it cannot cover out of its aggregate exposure ceiling.
func (c *Contract) FundHouseSide(agent common.Address, amount *big.Int) (*Channel, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("settlement: fund amount must be positive")
	}

	lock := c.channelLock(agent)
	lock.Lock()
	defer lock.Unlock()

	ch, ok := c.get(agent)
	if !ok {
		return nil, ErrChannelNotFound
	}
	if ch.State != model.ChannelOpen {
		return nil, ErrChannelNotOpen
	}
	if err := c.guard.Lock(amount); err != nil {
		return nil, err
	}

	ch.HouseDeposit.Add(ch.HouseDeposit, amount)
	ch.HouseBalance.Add(ch.HouseBalance, amount)
	c.logger.Info("settlement house side funded", "agent", agent, "amount", amount)
	return ch, nil
}

// verifySignedState checks nonce monotonicity, I1, and that houseSig
// recovers to the contract's house address, over the fresh channel
// snapshot ch plus the proposed (agentBalance, houseBalance, nonce).
func (c *Contract) verifySignedState(ch *Channel, agentBalance, houseBalance *big.Int, nonce uint64, houseSig []byte) error {
	if nonce <= ch.Nonce {
		return ErrStaleNonce
	}
	if !ch.conservationOK(agentBalance, houseBalance) {
		return ErrInvariantViolation
	}
	recovered, err := c.verifier.Recover(signer.StateDigestInput{
		Agent:         ch.Agent,
		AgentBalance:  agentBalance,
		CasinoBalance: houseBalance,
		Nonce:         nonce,
	}, houseSig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if recovered != c.house {
		return ErrSignatureInvalid
	}
	return nil
}

// CloseChannel settles the channel immediately at the agent-presented,
// house-signed state. Effects-before-interactions: the channel is
// closed and removed from the live table before any transfer is
// attempted, so a failed transfer can never be retried against a
// channel an attacker could still mutate.
func (c *Contract) CloseChannel(agent common.Address, agentBalance, houseBalance *big.Int, nonce uint64, houseSig []byte) error {
	lock := c.channelLock(agent)
	lock.Lock()
	ch, ok := c.get(agent)
	if !ok {
		lock.Unlock()
		return ErrChannelNotFound
	}
	if ch.State != model.ChannelOpen && ch.State != model.ChannelDisputed {
		lock.Unlock()
		return ErrChannelNotOpen
	}
	if err := c.verifySignedState(ch, agentBalance, houseBalance, nonce, houseSig); err != nil {
		lock.Unlock()
		return err
	}
	ch.State = model.ChannelClosed
	c.channels.Delete(agent)
	lock.Unlock()
	c.cleanupLock(agent)

	c.settle(ch, agentBalance, houseBalance)
	metrics.ChannelsClosed.WithLabelValues("false").Inc()
	metrics.OpenChannels.Set(float64(atomic.AddInt64(&c.openCount, -1)))
	c.logger.Info("settlement channel closed", "agent", agent, "nonce", nonce)
	return nil
}

// StartChallenge moves a channel into dispute at the presented state.
// The counterparty has ChallengePeriod to present a strictly higher
// nonce via CounterChallenge before ResolveChallenge can settle it.
func (c *Contract) StartChallenge(agent common.Address, agentBalance, houseBalance *big.Int, nonce uint64, houseSig []byte) (*Channel, error) {
	lock := c.channelLock(agent)
	lock.Lock()
	defer lock.Unlock()

	ch, ok := c.get(agent)
	if !ok {
		return nil, ErrChannelNotFound
	}
	if ch.State != model.ChannelOpen {
		return nil, ErrChannelNotOpen
	}
	if err := c.verifySignedState(ch, agentBalance, houseBalance, nonce, houseSig); err != nil {
		return nil, err
	}

	ch.State = model.ChannelDisputed
	ch.proposedAgentBalance = new(big.Int).Set(agentBalance)
	ch.proposedHouseBalance = new(big.Int).Set(houseBalance)
	ch.proposedNonce = nonce
	ch.DisputeDeadline = time.Now().Add(ChallengePeriod)
	metrics.SettlementChallenges.WithLabelValues("started").Inc()
	c.logger.Info("settlement challenge started", "agent", agent, "nonce", nonce, "deadline", ch.DisputeDeadline)
	return ch, nil
}

// CounterChallenge overrides the disputed proposal with a strictly
// higher nonce and resets the deadline, uncapped in how many times it
// may be called before the deadline finally elapses undisputed.
func (c *Contract) CounterChallenge(agent common.Address, agentBalance, houseBalance *big.Int, nonce uint64, houseSig []byte) (*Channel, error) {
	lock := c.channelLock(agent)
	lock.Lock()
	defer lock.Unlock()

	ch, ok := c.get(agent)
	if !ok {
		return nil, ErrChannelNotFound
	}
	if ch.State != model.ChannelDisputed {
		return nil, ErrChannelNotDisputed
	}
	if time.Now().After(ch.DisputeDeadline) {
		return nil, ErrChallengeDeadlinePassed
	}
	if nonce <= ch.proposedNonce {
		return nil, ErrStaleNonce
	}
	if !ch.conservationOK(agentBalance, houseBalance) {
		return nil, ErrInvariantViolation
	}
	recovered, err := c.verifier.Recover(signer.StateDigestInput{
		Agent:         ch.Agent,
		AgentBalance:  agentBalance,
		CasinoBalance: houseBalance,
		Nonce:         nonce,
	}, houseSig)
	if err != nil || recovered != c.house {
		return nil, ErrSignatureInvalid
	}

	ch.proposedAgentBalance = new(big.Int).Set(agentBalance)
	ch.proposedHouseBalance = new(big.Int).Set(houseBalance)
	ch.proposedNonce = nonce
	ch.DisputeDeadline = time.Now().Add(ChallengePeriod)
	metrics.SettlementChallenges.WithLabelValues("countered").Inc()
	c.logger.Info("settlement counter-challenge accepted", "agent", agent, "nonce", nonce, "deadline", ch.DisputeDeadline)
	return ch, nil
}

// ResolveChallenge settles a disputed channel at its last-proposed state
// once the challenge deadline has passed without a further counter.
func (c *Contract) ResolveChallenge(agent common.Address) error {
	lock := c.channelLock(agent)
	lock.Lock()
	ch, ok := c.get(agent)
	if !ok {
		lock.Unlock()
		return ErrChannelNotFound
	}
	if ch.State != model.ChannelDisputed {
		lock.Unlock()
		return ErrChannelNotDisputed
	}
	if time.Now().Before(ch.DisputeDeadline) {
		lock.Unlock()
		return ErrChallengeDeadlineNotPassed
	}

	agentBalance, houseBalance := ch.proposedAgentBalance, ch.proposedHouseBalance
	ch.State = model.ChannelClosed
	c.channels.Delete(agent)
	lock.Unlock()
	c.cleanupLock(agent)

	c.settle(ch, agentBalance, houseBalance)
	metrics.SettlementChallenges.WithLabelValues("resolved").Inc()
	metrics.ChannelsClosed.WithLabelValues("true").Inc()
	metrics.OpenChannels.Set(float64(atomic.AddInt64(&c.openCount, -1)))
	c.logger.Info("settlement challenge resolved", "agent", agent, "nonce", ch.proposedNonce)
	return nil
}

// EmergencyExit lets an agent recover deposits with no house
// cooperation, but only if no round has ever been signed (nonce 0) and
// the channel has been open at least MinChannelDuration — long enough
// that a house which never funded or serviced the channel cannot be
// griefed by an agent opening and immediately exiting in a loop.
func (c *Contract) EmergencyExit(agent common.Address) error {
	lock := c.channelLock(agent)
	lock.Lock()
	ch, ok := c.get(agent)
	if !ok {
		lock.Unlock()
		return ErrChannelNotFound
	}
	if ch.State != model.ChannelOpen {
		lock.Unlock()
		return ErrChannelNotOpen
	}
	if ch.Nonce != 0 || time.Since(ch.OpenedAt) < MinChannelDuration {
		lock.Unlock()
		return ErrEmergencyExitNotEligible
	}

	ch.State = model.ChannelClosed
	c.channels.Delete(agent)
	lock.Unlock()
	c.cleanupLock(agent)

	c.guard.Unlock(ch.HouseDeposit)
	c.payout(ch.Agent, ch.AgentDeposit)
	c.payout(c.house, ch.HouseDeposit)
	metrics.ChannelsClosed.WithLabelValues("false").Inc()
	metrics.OpenChannels.Set(float64(atomic.AddInt64(&c.openCount, -1)))
	c.logger.Info("settlement emergency exit", "agent", agent)
	return nil
}

// settle pays out the settled balances, skimming the house's profit
// into the insurance fund first. It is called only after the channel
// has already been removed from the live table (effects-before-
// interactions), so a payout failure can only ever reroute to
// pendingWithdrawals, never re-enter a still-mutable channel.
func (c *Contract) settle(ch *Channel, agentBalance, houseBalance *big.Int) {
	c.guard.Unlock(ch.HouseDeposit)

	housePayout := new(big.Int).Set(houseBalance)
	profit := new(big.Int).Sub(houseBalance, ch.HouseDeposit)
	if profit.Sign() > 0 {
		insuranceCut := new(big.Int).Mul(profit, big.NewInt(InsuranceBPS))
		insuranceCut.Div(insuranceCut, big.NewInt(bpsDenominator))
		if insuranceCut.Sign() > 0 {
			housePayout.Sub(housePayout, insuranceCut)
			if c.insurance != nil {
				if err := c.insurance.Deposit(insuranceCut); err != nil {
					// The skim has already been carved out of
					// housePayout; there is no pull-payment path for
					// the insurance leg, so this is unrecoverable
					// automatically and needs manual reconciliation.
					c.logger.Error("CRITICAL: insurance skim lost, funds already settled",
						"agent", ch.Agent, "amount", insuranceCut, "err", err)
				}
			} else {
				c.logger.Error("CRITICAL: insurance skim computed with no fund wired", "agent", ch.Agent, "amount", insuranceCut)
			}
		}
	}

	c.payout(ch.Agent, agentBalance)
	c.payout(c.house, housePayout)
}

// payout attempts an immediate transfer and reroutes to
// pendingWithdrawals on failure, exactly the fallback §5 requires for
// a failed on-chain `call`.
func (c *Contract) payout(to common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	if err := c.transfer.Send(to, amount); err != nil {
		c.logger.Error("settlement payout failed, credited to pending withdrawals", "to", to, "amount", amount, "err", err)
		c.creditPending(to, amount)
	}
}

func (c *Contract) creditPending(to common.Address, amount *big.Int) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	existing, ok := c.pendingWithdrawals[to]
	if !ok {
		existing = big.NewInt(0)
	}
	c.pendingWithdrawals[to] = new(big.Int).Add(existing, amount)
}

// WithdrawPending is the pull-payment fallback: the caller's credited
// balance is zeroed before the transfer is attempted (checks-effects-
// interactions), so a re-entrant call during Send observes nothing left
// to withdraw.
func (c *Contract) WithdrawPending(caller common.Address) (*big.Int, error) {
	c.pendingMu.Lock()
	amount, ok := c.pendingWithdrawals[caller]
	if !ok || amount.Sign() <= 0 {
		c.pendingMu.Unlock()
		return nil, ErrNoPendingWithdrawal
	}
	delete(c.pendingWithdrawals, caller)
	c.pendingMu.Unlock()

	if err := c.transfer.Send(caller, amount); err != nil {
		c.creditPending(caller, amount)
		return nil, fmt.Errorf("settlement: withdraw pending: %w", err)
	}
	return amount, nil
}

// PendingWithdrawal reports the amount currently credited to caller
// via the pull-payment fallback, without withdrawing it.
func (c *Contract) PendingWithdrawal(caller common.Address) *big.Int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if amount, ok := c.pendingWithdrawals[caller]; ok {
		return new(big.Int).Set(amount)
	}
	return big.NewInt(0)
}

// TransferOwnership starts a two-step, two-day-timelocked ownership
// handover. Blocked while the bankroll guard reports outstanding
// exposure, so an owner cannot rotate out from under funds still locked
// against open channels.
func (c *Contract) TransferOwnership(caller, newOwner common.Address) error {
	c.ownerMu.Lock()
	defer c.ownerMu.Unlock()
	if caller != c.owner {
		return ErrUnauthorized
	}
	if c.guard.TotalLocked().Sign() > 0 {
		return ErrOwnershipTransferBlocked
	}
	c.pendingOwner = newOwner
	c.ownerTransferRequested = time.Now()
	return nil
}

// AcceptOwnership completes a pending transfer once OwnershipTimelock
// has elapsed since it was requested.
func (c *Contract) AcceptOwnership(caller common.Address) error {
	c.ownerMu.Lock()
	defer c.ownerMu.Unlock()
	var zero common.Address
	if c.pendingOwner == zero {
		return ErrNoPendingOwnerTransfer
	}
	if caller != c.pendingOwner {
		return ErrUnauthorized
	}
	if time.Since(c.ownerTransferRequested) < OwnershipTimelock {
		return ErrOwnerTimelockNotElapsed
	}
	c.owner = c.pendingOwner
	c.pendingOwner = common.Address{}
	return nil
}

// CancelTransferOwnership lets the current owner cancel a pending
// handover at any time, timelocked or not.
func (c *Contract) CancelTransferOwnership(caller common.Address) error {
	c.ownerMu.Lock()
	defer c.ownerMu.Unlock()
	if caller != c.owner {
		return ErrUnauthorized
	}
	c.pendingOwner = common.Address{}
	return nil
}

// Owner returns the current operator address.
func (c *Contract) Owner() common.Address {
	c.ownerMu.Lock()
	defer c.ownerMu.Unlock()
	return c.owner
}

// Get returns the contract's own channel record for agent (not a
// copy), for status queries; a change made through the returned
// pointer changes the stored record.
func (c *Contract) Get(agent common.Address) (*Channel, bool) {
	return c.get(agent)
}
