package game

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/agentcasino/engine/internal/model"
)

const (
	lottoMaxMultiplier     = 85
	lottoMaxTicketsPerDraw = 10
	lottoRange             = 100
)

var (
	// ErrTicketsPerDrawExceeded is returned when a buy would push an
	// agent's ticket count in the current draw past the per-draw cap.
	ErrTicketsPerDrawExceeded = errors.New("lotto: tickets per draw exceeded")
	// ErrDrawAlreadyDrawn is returned by ExecuteDraw on a draw already
	// resolved.
	ErrDrawAlreadyDrawn = errors.New("lotto: draw already drawn")
	// ErrDrawNotFound is returned for an unknown draw id.
	ErrDrawNotFound = errors.New("lotto: draw not found")
	// ErrNothingUnclaimed is returned by Claim when the agent has no
	// unclaimed winnings on record.
	ErrNothingUnclaimed = errors.New("lotto: nothing unclaimed")
	// ErrPickOutOfRange is returned for a picked number outside [1,100].
	ErrPickOutOfRange = errors.New("lotto: picked number out of range")
)

// Lotto is a scheduled, many-agent drawing: agents buy tickets against
// an open draw, the draw resolves once on a timer, and winnings accrue
// to an unclaimed balance an agent pulls into its channel separately.
// Its draws and unclaimed-winnings ledger are process-wide shared state
// it owns outright, mirroring how BankrollGuard owns its own counter.
type Lotto struct {
	ticketPrice  *big.Int
	drawInterval time.Duration

	mu        sync.Mutex
	draws     map[string]*model.LottoDraw
	unclaimed map[common.Address]*big.Int
}

// NewLotto constructs a Lotto game with a fixed per-ticket price (wei)
// and drawing cadence.
func NewLotto(ticketPrice *big.Int, drawInterval time.Duration) *Lotto {
	if drawInterval <= 0 {
		drawInterval = 6 * time.Hour
	}
	return &Lotto{
		ticketPrice:  new(big.Int).Set(ticketPrice),
		drawInterval: drawInterval,
		draws:        make(map[string]*model.LottoDraw),
		unclaimed:    make(map[common.Address]*big.Int),
	}
}

func (l *Lotto) Name() string          { return "lotto" }
func (l *Lotto) DisplayName() string   { return "Lotto" }
func (l *Lotto) RTP() float64          { return float64(lottoMaxMultiplier) / float64(lottoRange) }
func (l *Lotto) MaxMultiplier() int64  { return lottoMaxMultiplier }
func (l *Lotto) Actions() []string     { return []string{"buy", "claim"} }

func (l *Lotto) HandleAction(ctx Context, channel *model.Channel, action string, params map[string]interface{}) (*Result, error) {
	switch action {
	case "buy":
		return l.buy(ctx, channel, params)
	case "claim":
		return l.claim(ctx, channel)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

// CurrentDraw returns the open (not-yet-drawn) draw, creating one via
// GenerateCommit if none exists. The casino seed for the draw is
// committed up front, before any tickets are sold, so the draw's
// outcome cannot be chosen after seeing the betting pool.
func (l *Lotto) CurrentDraw(ctx Context) (*model.LottoDraw, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentDrawLocked(ctx)
}

func (l *Lotto) currentDrawLocked(ctx Context) (*model.LottoDraw, error) {
	for _, d := range l.draws {
		if !d.Drawn {
			return d, nil
		}
	}
	casinoSeed, commitment, err := ctx.GenerateCommit()
	if err != nil {
		return nil, err
	}
	draw := &model.LottoDraw{
		DrawID:     uuid.NewString(),
		CasinoSeed: casinoSeed,
		Commitment: commitment,
		DrawTime:   timeNow().Add(l.drawInterval),
		Tickets:    make(map[common.Address][]int),
		TotalPool:  big.NewInt(0),
	}
	l.draws[draw.DrawID] = draw
	return draw, nil
}

func (l *Lotto) buy(ctx Context, channel *model.Channel, params map[string]interface{}) (*Result, error) {
	pickedNumber, ok := asInt(params["pickedNumber"])
	if !ok || pickedNumber < 1 || pickedNumber > lottoRange {
		return nil, ErrPickOutOfRange
	}
	ticketCount, ok := asInt(params["ticketCount"])
	if !ok || ticketCount <= 0 {
		return nil, fmt.Errorf("%w: ticketCount must be positive", ErrBetNotPositive)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	draw, err := l.currentDrawLocked(ctx)
	if err != nil {
		return nil, err
	}
	if len(draw.Tickets[channel.Agent])+ticketCount > lottoMaxTicketsPerDraw {
		return nil, ErrTicketsPerDrawExceeded
	}

	cost := new(big.Int).Mul(l.ticketPrice, big.NewInt(int64(ticketCount)))
	if channel.AgentBalance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, channel.AgentBalance, cost)
	}
	maxPayout := new(big.Int).Mul(l.ticketPrice, big.NewInt(lottoMaxMultiplier))
	maxPayout.Mul(maxPayout, big.NewInt(int64(ticketCount)))
	if maxPayout.Cmp(channel.HouseBalance) > 0 {
		return nil, fmt.Errorf("%w: need headroom %s, house has %s", ErrHouseCannotCover, maxPayout, channel.HouseBalance)
	}

	for i := 0; i < ticketCount; i++ {
		draw.Tickets[channel.Agent] = append(draw.Tickets[channel.Agent], pickedNumber)
	}
	draw.TotalPool.Add(draw.TotalPool, cost)

	ApplyRoundDelta(channel, cost, big.NewInt(0))
	channel.Nonce++

	sig, err := ctx.Sign(channel.Agent, channel.AgentBalance, channel.HouseBalance, channel.Nonce)
	if err != nil {
		return nil, err
	}

	round := model.RoundRecord{
		Agent:        channel.Agent,
		Game:         l.Name(),
		Bet:          cost,
		Payout:       big.NewInt(0),
		PickedNumber: pickedNumber,
		DrawID:       draw.DrawID,
		TicketCount:  ticketCount,
		Nonce:        channel.Nonce,
		Timestamp:    timeNow(),
	}
	channel.Games = append(channel.Games, round)

	return &Result{
		AgentBalance: channel.AgentBalance,
		HouseBalance: channel.HouseBalance,
		Nonce:        channel.Nonce,
		Signature:    sig,
		Round:        &round,
		Extra:        map[string]interface{}{"drawId": draw.DrawID},
	}, nil
}

// PendingDraws returns draws due to be executed (drawTime has passed
// and they have not been drawn), for RunScheduled.
func (l *Lotto) PendingDraws(now time.Time) []*model.LottoDraw {
	l.mu.Lock()
	defer l.mu.Unlock()
	var due []*model.LottoDraw
	for _, d := range l.draws {
		if !d.Drawn && !now.Before(d.DrawTime) {
			due = append(due, d)
		}
	}
	return due
}

// ExecuteDraw resolves drawID deterministically from its casino seed
// and the draw's public entropy (agent count and total pool), and
// accrues each winning agent's payout to UnclaimedWinnings. It does
// not touch any channel.
func (l *Lotto) ExecuteDraw(drawID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	draw, ok := l.draws[drawID]
	if !ok {
		return ErrDrawNotFound
	}
	if draw.Drawn {
		return ErrDrawAlreadyDrawn
	}

	entropy := fmt.Sprintf("%d:%s", len(draw.Tickets), draw.TotalPool.String())
	hash := sha256.Sum256([]byte(draw.CasinoSeed + ":" + entropy))
	winningNumber := int(binary.BigEndian.Uint32(hash[0:4])%lottoRange) + 1

	draw.Drawn = true
	draw.WinningNumber = winningNumber
	draw.DrawnAt = timeNow()

	for agent, picks := range draw.Tickets {
		matches := 0
		for _, p := range picks {
			if p == winningNumber {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		payout := new(big.Int).Mul(l.ticketPrice, big.NewInt(lottoMaxMultiplier))
		payout.Mul(payout, big.NewInt(int64(matches)))
		l.addUnclaimedLocked(agent, payout)
	}
	return nil
}

func (l *Lotto) addUnclaimedLocked(agent common.Address, amount *big.Int) {
	cur, ok := l.unclaimed[agent]
	if !ok {
		cur = big.NewInt(0)
	}
	l.unclaimed[agent] = new(big.Int).Add(cur, amount)
}

// Unclaimed returns the agent's current unclaimed winnings.
func (l *Lotto) Unclaimed(agent common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.unclaimed[agent]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(cur)
}

func (l *Lotto) claim(ctx Context, channel *model.Channel) (*Result, error) {
	l.mu.Lock()
	unclaimed, ok := l.unclaimed[channel.Agent]
	if !ok || unclaimed.Sign() <= 0 {
		l.mu.Unlock()
		return nil, ErrNothingUnclaimed
	}

	applied := new(big.Int).Set(unclaimed)
	if applied.Cmp(channel.HouseBalance) > 0 {
		applied = new(big.Int).Set(channel.HouseBalance)
	}
	l.unclaimed[channel.Agent] = new(big.Int).Sub(unclaimed, applied)
	l.mu.Unlock()

	ApplyRoundDelta(channel, big.NewInt(0), applied)
	channel.Nonce++

	sig, err := ctx.Sign(channel.Agent, channel.AgentBalance, channel.HouseBalance, channel.Nonce)
	if err != nil {
		return nil, err
	}

	round := model.RoundRecord{
		Agent:     channel.Agent,
		Game:      l.Name(),
		Bet:       big.NewInt(0),
		Payout:    applied,
		Won:       applied.Sign() > 0,
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

// ApplyWinnings folds an agent's unclaimed winnings into an already
// open channel, the RunScheduled-driven counterpart to an agent-
// initiated Claim. It applies exactly once per call regardless of how
// many tickets matched, per the spec's explicit resolution of that
// open question.
func (l *Lotto) ApplyWinnings(ctx Context, channel *model.Channel) (*model.RoundRecord, error) {
	result, err := l.claim(ctx, channel)
	if err != nil {
		if errors.Is(err, ErrNothingUnclaimed) {
			return nil, nil
		}
		return nil, err
	}
	return result.Round, nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
