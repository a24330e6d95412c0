// Package game defines the capability every casino game plugs into the
// channel engine through, and the shared bet-validation and
// balance-update helpers every game's two-phase commit/reveal round
// follows.
package game

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/model"
)

var (
	// ErrBetNotPositive is returned when a bet amount is zero or negative.
	ErrBetNotPositive = errors.New("game: bet must be positive")
	// ErrInsufficientBalance is returned when the agent's balance cannot
	// cover the requested bet.
	ErrInsufficientBalance = errors.New("game: insufficient agent balance")
	// ErrHouseCannotCover is returned when the house cannot safely cover
	// the bet's maximum possible payout.
	ErrHouseCannotCover = errors.New("game: house cannot cover max payout")
	// ErrPendingCommitExists is returned when a second commit is issued
	// for a (agent, game) pair that already has an unresolved pending
	// commit.
	ErrPendingCommitExists = errors.New("game: pending commit already exists")
	// ErrNoPendingCommit reports a reveal with no matching pending
	// commit on record. The built-in games do not return it: their
	// single action treats a call with no pending commit as a commit.
	ErrNoPendingCommit = errors.New("game: no pending commit")
	// ErrCommitExpired is returned when a reveal arrives after the
	// pending commit's timeout has elapsed. The pending commit is
	// cleared as part of returning this error.
	ErrCommitExpired = errors.New("game: pending commit expired")
	// ErrUnknownAction is returned for an action string a game does not
	// register in Actions().
	ErrUnknownAction = errors.New("game: unknown action")
)

// DefaultCommitTimeout is the window a pending commit survives before a
// reveal is refused and the slot is cleared.
const DefaultCommitTimeout = 5 * time.Minute

// Context is the slice of ChannelEngine state a game needs to run a
// commit/reveal round: seed generation and verification, the
// (agent, game)-keyed pending-commit slot, and house signing. The
// engine implements this interface; games never see channel storage or
// the bankroll guard directly.
type Context interface {
	GenerateCommit() (casinoSeed, commitment string, err error)
	VerifyCommitment(commitment, casinoSeed string) bool
	ComputeResult(casinoSeed, agentSeed string, nonce uint64) (rng *big.Int, proof string)
	GetPending(agent common.Address, game string) (model.PendingCommit, bool)
	SetPending(commit model.PendingCommit)
	ClearPending(agent common.Address, game string)
	Sign(agent common.Address, agentBalance, houseBalance *big.Int, nonce uint64) ([]byte, error)
}

// Result is what a game action returns to the engine after a successful
// (possibly partial, commit-only) step.
type Result struct {
	Commitment   string                 `json:"commitment,omitempty"`
	AgentBalance *big.Int               `json:"agentBalance,omitempty"`
	HouseBalance *big.Int               `json:"houseBalance,omitempty"`
	Nonce        uint64                 `json:"nonce,omitempty"`
	Signature    []byte                 `json:"signature,omitempty"`
	Round        *model.RoundRecord     `json:"round,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// Capability is the interface every concrete game implements.
type Capability interface {
	Name() string
	DisplayName() string
	RTP() float64
	MaxMultiplier() int64
	Actions() []string
	HandleAction(ctx Context, channel *model.Channel, action string, params map[string]interface{}) (*Result, error)
}

// ValidateBet enforces the shared pre-bet check: the bet must be
// positive, the agent must be able to cover it, and the house must be
// able to cover the worst case with a safetyFactor margin (2, per the
// capability contract) on top of the game's advertised max multiplier.
func ValidateBet(channel *model.Channel, betWei *big.Int, maxMultiplier int64, safetyFactor int64) error {
	if betWei == nil || betWei.Sign() <= 0 {
		return ErrBetNotPositive
	}
	if channel.AgentBalance.Cmp(betWei) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, channel.AgentBalance, betWei)
	}
	maxPayout := new(big.Int).Mul(betWei, big.NewInt(maxMultiplier))
	maxPayout.Mul(maxPayout, big.NewInt(safetyFactor))
	if maxPayout.Cmp(channel.HouseBalance) > 0 {
		return fmt.Errorf("%w: need headroom %s, house has %s", ErrHouseCannotCover, maxPayout, channel.HouseBalance)
	}
	return nil
}

// BetWeiFromParams extracts and parses the "bet" field that every
// commit-phase call carries, as an already-integer wei string (the
// engine's HTTP boundary has already run weimath.ToWei on the wire
// value).
func BetWeiFromParams(params map[string]interface{}) (*big.Int, error) {
	raw, ok := params["bet"]
	if !ok {
		return nil, fmt.Errorf("%w: missing bet", ErrBetNotPositive)
	}
	str, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: bet must be a wei string", ErrBetNotPositive)
	}
	bet, ok := new(big.Int).SetString(str, 10)
	if !ok {
		return nil, fmt.Errorf("%w: malformed bet %q", ErrBetNotPositive, str)
	}
	return bet, nil
}

// ApplyRoundDelta mutates the channel's balances by the standard
// symmetric update every round-resolving game uses: the house's gain is
// exactly the agent's loss. delta = bet - payout; a losing round has
// delta > 0 (house keeps the stake), a winning round has delta < 0
// (house pays out more than it collected).
func ApplyRoundDelta(channel *model.Channel, bet, payout *big.Int) {
	delta := new(big.Int).Sub(bet, payout)
	channel.AgentBalance.Sub(channel.AgentBalance, delta)
	channel.HouseBalance.Add(channel.HouseBalance, delta)
}

