package game

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/agentcasino/engine/internal/model"
)

// slotsWeights and slotsPayouts are parallel: symbol i has weight
// slotsWeights[i] out of 100 and, on three-of-a-kind, pays
// bet*slotsPayouts[i].
var (
	slotsWeights = []int64{30, 25, 20, 15, 10}
	slotsPayouts = []int64{5, 10, 25, 50, 290}
)

const slotsMaxMultiplier = 290

// Slots is a three-reel game resolved entirely by one commit/reveal
// round: the agent's bet is validated and recorded at commit time, and
// balances move and the payout is determined the moment the agent's
// seed is revealed.
type Slots struct {
	commitTimeout time.Duration
}

// NewSlots constructs a Slots game with the given commit-to-reveal
// timeout (5 minutes in production, per the engine's COMMIT_TIMEOUT).
func NewSlots(commitTimeout time.Duration) *Slots {
	if commitTimeout <= 0 {
		commitTimeout = DefaultCommitTimeout
	}
	return &Slots{commitTimeout: commitTimeout}
}

func (s *Slots) Name() string          { return "slots" }
func (s *Slots) DisplayName() string   { return "Slots" }
func (s *Slots) RTP() float64          { return weightedRTP(slotsWeights, slotsPayouts) }
func (s *Slots) MaxMultiplier() int64  { return slotsMaxMultiplier }
func (s *Slots) Actions() []string     { return []string{"spin"} }

func (s *Slots) HandleAction(ctx Context, channel *model.Channel, action string, params map[string]interface{}) (*Result, error) {
	if action != "spin" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	pending, ok := ctx.GetPending(channel.Agent, s.Name())
	if !ok {
		return s.commit(ctx, channel, params)
	}
	return s.reveal(ctx, channel, pending, params)
}

func (s *Slots) commit(ctx Context, channel *model.Channel, params map[string]interface{}) (*Result, error) {
	bet, err := BetWeiFromParams(params)
	if err != nil {
		return nil, err
	}
	if err := ValidateBet(channel, bet, s.MaxMultiplier(), 2); err != nil {
		return nil, err
	}

	casinoSeed, commitment, err := ctx.GenerateCommit()
	if err != nil {
		return nil, err
	}
	ctx.SetPending(model.PendingCommit{
		Agent:      channel.Agent,
		Game:       s.Name(),
		CasinoSeed: casinoSeed,
		Commitment: commitment,
		BetAmount:  bet,
		Timestamp:  timeNow(),
	})
	return &Result{Commitment: commitment}, nil
}

func (s *Slots) reveal(ctx Context, channel *model.Channel, pending model.PendingCommit, params map[string]interface{}) (*Result, error) {
	agentSeed, _ := params["agentSeed"].(string)
	if agentSeed == "" {
		return nil, ErrPendingCommitExists
	}
	if time.Since(pending.Timestamp) > s.commitTimeout {
		ctx.ClearPending(channel.Agent, s.Name())
		return nil, ErrCommitExpired
	}

	bet := pending.BetAmount
	if err := ValidateBet(channel, bet, s.MaxMultiplier(), 2); err != nil {
		ctx.ClearPending(channel.Agent, s.Name())
		return nil, err
	}

	_, proof := ctx.ComputeResult(pending.CasinoSeed, agentSeed, channel.Nonce)
	hashBytes, err := hex.DecodeString(proof)
	if err != nil || len(hashBytes) < 12 {
		ctx.ClearPending(channel.Agent, s.Name())
		return nil, fmt.Errorf("game: malformed proof")
	}

	reels := [3]int{
		weightedSymbol(binary.BigEndian.Uint32(hashBytes[0:4])),
		weightedSymbol(binary.BigEndian.Uint32(hashBytes[4:8])),
		weightedSymbol(binary.BigEndian.Uint32(hashBytes[8:12])),
	}

	won := reels[0] == reels[1] && reels[1] == reels[2]
	payout := big.NewInt(0)
	if won {
		payout = new(big.Int).Mul(bet, big.NewInt(slotsPayouts[reels[0]]))
		if payout.Cmp(channel.HouseBalance) > 0 {
			payout = new(big.Int).Set(channel.HouseBalance)
		}
	}

	ApplyRoundDelta(channel, bet, payout)
	channel.Nonce++
	ctx.ClearPending(channel.Agent, s.Name())

	sig, err := ctx.Sign(channel.Agent, channel.AgentBalance, channel.HouseBalance, channel.Nonce)
	if err != nil {
		return nil, err
	}

	round := model.RoundRecord{
		Agent:     channel.Agent,
		Game:      s.Name(),
		Bet:       bet,
		Payout:    payout,
		Won:       won,
		Reels:     []int{reels[0], reels[1], reels[2]},
		Nonce:     channel.Nonce,
		Timestamp: timeNow(),
	}
	if won {
		round.Multiplier = fmt.Sprintf("%d", slotsPayouts[reels[0]])
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

// weightedSymbol maps a uniformly distributed value to a symbol index
// per slotsWeights' cumulative distribution.
func weightedSymbol(v uint32) int {
	n := int64(v % 100)
	var cumulative int64
	for i, w := range slotsWeights {
		cumulative += w
		if n < cumulative {
			return i
		}
	}
	return len(slotsWeights) - 1
}

// weightedRTP computes the game's return-to-player ratio from its
// weight/payout tables, for display purposes only — it never touches
// balance arithmetic. A win requires all three independently drawn
// reels to land on the same symbol, so symbol i's win probability is
// its per-reel draw probability cubed, not the draw probability itself.
func weightedRTP(weights, payouts []int64) float64 {
	var total int64
	for _, w := range weights {
		total += w
	}
	var expected float64
	for i, w := range weights {
		p := float64(w) / float64(total)
		expected += p * p * p * float64(payouts[i])
	}
	return expected
}

// timeNow is time.Now wrapped so round timestamps and commit timestamps
// go through a single call site.
func timeNow() time.Time { return time.Now() }
