package game

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/agentcasino/engine/internal/model"
)

const (
	coinflipMaxMultiplier = 2
	coinflipMultiplierNum = 19
	coinflipMultiplierDen = 10
)

// Coinflip is a single-round, two-outcome game: the agent calls heads
// or tails at commit time and the reveal resolves it from the parity of
// the first four bytes of the round's result hash (casino seed, agent
// seed and nonce combined).
type Coinflip struct {
	commitTimeout time.Duration
}

func NewCoinflip(commitTimeout time.Duration) *Coinflip {
	if commitTimeout <= 0 {
		commitTimeout = DefaultCommitTimeout
	}
	return &Coinflip{commitTimeout: commitTimeout}
}

func (c *Coinflip) Name() string        { return "coinflip" }
func (c *Coinflip) DisplayName() string { return "Coinflip" }
func (c *Coinflip) RTP() float64        { return float64(coinflipMultiplierNum) / float64(coinflipMultiplierDen) / 2 }
func (c *Coinflip) MaxMultiplier() int64 { return coinflipMaxMultiplier }
func (c *Coinflip) Actions() []string    { return []string{"flip"} }

func (c *Coinflip) HandleAction(ctx Context, channel *model.Channel, action string, params map[string]interface{}) (*Result, error) {
	if action != "flip" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	pending, ok := ctx.GetPending(channel.Agent, c.Name())
	if !ok {
		return c.commit(ctx, channel, params)
	}
	return c.reveal(ctx, channel, pending, params)
}

func (c *Coinflip) commit(ctx Context, channel *model.Channel, params map[string]interface{}) (*Result, error) {
	bet, err := BetWeiFromParams(params)
	if err != nil {
		return nil, err
	}
	if err := ValidateBet(channel, bet, c.MaxMultiplier(), 2); err != nil {
		return nil, err
	}

	choice, _ := params["choice"].(string)
	if choice != "heads" && choice != "tails" {
		return nil, fmt.Errorf("%w: choice must be heads or tails", ErrBetNotPositive)
	}

	casinoSeed, commitment, err := ctx.GenerateCommit()
	if err != nil {
		return nil, err
	}
	ctx.SetPending(model.PendingCommit{
		Agent:      channel.Agent,
		Game:       c.Name(),
		CasinoSeed: casinoSeed,
		Commitment: commitment,
		BetAmount:  bet,
		Params:     map[string]interface{}{"choice": choice},
		Timestamp:  timeNow(),
	})
	return &Result{Commitment: commitment}, nil
}

func (c *Coinflip) reveal(ctx Context, channel *model.Channel, pending model.PendingCommit, params map[string]interface{}) (*Result, error) {
	agentSeed, _ := params["agentSeed"].(string)
	if agentSeed == "" {
		return nil, ErrPendingCommitExists
	}
	if time.Since(pending.Timestamp) > c.commitTimeout {
		ctx.ClearPending(channel.Agent, c.Name())
		return nil, ErrCommitExpired
	}

	bet := pending.BetAmount
	choice, _ := pending.Params["choice"].(string)
	if err := ValidateBet(channel, bet, c.MaxMultiplier(), 2); err != nil {
		ctx.ClearPending(channel.Agent, c.Name())
		return nil, err
	}

	_, proof := ctx.ComputeResult(pending.CasinoSeed, agentSeed, channel.Nonce)
	hashBytes, err := hex.DecodeString(proof)
	if err != nil || len(hashBytes) < 4 {
		ctx.ClearPending(channel.Agent, c.Name())
		return nil, fmt.Errorf("game: malformed proof")
	}

	result := "tails"
	if binary.BigEndian.Uint32(hashBytes[0:4])%2 == 0 {
		result = "heads"
	}

	won := result == choice
	payout := big.NewInt(0)
	if won {
		payout = new(big.Int).Mul(bet, big.NewInt(coinflipMultiplierNum))
		payout.Div(payout, big.NewInt(coinflipMultiplierDen))
		maxPayout := new(big.Int).Add(channel.HouseBalance, bet)
		if payout.Cmp(maxPayout) > 0 {
			payout = maxPayout
		}
	}

	ApplyRoundDelta(channel, bet, payout)
	channel.Nonce++
	ctx.ClearPending(channel.Agent, c.Name())

	sig, err := ctx.Sign(channel.Agent, channel.AgentBalance, channel.HouseBalance, channel.Nonce)
	if err != nil {
		return nil, err
	}

	round := model.RoundRecord{
		Agent:     channel.Agent,
		Game:      c.Name(),
		Bet:       bet,
		Payout:    payout,
		Won:       won,
		Choice:    choice,
		Result:    result,
		Nonce:     channel.Nonce,
		Timestamp: timeNow(),
	}
	channel.Games = append(channel.Games, round)

	return &Result{
		AgentBalance: channel.AgentBalance,
		HouseBalance: channel.HouseBalance,
		Nonce:        channel.Nonce,
		Signature:    sig,
		Round:        &round,
	}, nil
}
