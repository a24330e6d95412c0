package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/apperror"
	"github.com/agentcasino/engine/internal/bankroll"
	"github.com/agentcasino/engine/internal/commitreveal"
	"github.com/agentcasino/engine/internal/game"
	"github.com/agentcasino/engine/internal/metrics"
	"github.com/agentcasino/engine/internal/model"
	"github.com/agentcasino/engine/internal/route"
	"github.com/agentcasino/engine/internal/signer"
	"github.com/agentcasino/engine/internal/store"
	"github.com/agentcasino/engine/internal/weimath"
)

// ErrDuplicateChannel is returned by OpenChannel when the agent already
// has a channel open.
var ErrDuplicateChannel = errors.New("engine: channel already open for agent")

// ErrMaxChannelsReached is returned by OpenChannel when the engine's
// configured channel capacity is exhausted.
var ErrMaxChannelsReached = errors.New("engine: max open channels reached")

// ErrChannelNotFound is returned by GetStatus, HandleAction, and
// CloseChannel for an agent with no open channel on record.
var ErrChannelNotFound = errors.New("engine: channel not found")

// ErrChannelNotOpen is returned by HandleAction when the channel on
// record is not in the Open state.
var ErrChannelNotOpen = errors.New("engine: channel is not open")

// ErrInvariantViolation is returned by CloseChannel when I1 fails to
// hold — a bug in the mutation path, not a protocol violation by either
// party, so the channel is left untouched rather than settled.
var ErrInvariantViolation = errors.New("engine: conservation invariant violated")

// CloseResult is what CloseChannel hands back: the final signed state
// both parties need to settle on-chain.
type CloseResult struct {
	AgentBalance *big.Int
	HouseBalance *big.Int
	Nonce        uint64
	Signature    []byte
	TotalGames   int
}

// Engine is the off-chain ChannelEngine: the in-memory channel table,
// the pending-commit slots every game shares, the bankroll guard, and
// the house signer, wired together the way trade.Service wires a store,
// a position limiter, and a WebSocket hub.
type Engine struct {
	mu          sync.Mutex
	channels    map[common.Address]*model.Channel
	maxChannels int

	pendingMu sync.Mutex
	pending   map[string]model.PendingCommit

	guard     *bankroll.Guard
	signer    signer.Port
	games     map[string]game.Capability
	lotto     *game.Lotto
	hub       *EventHub
	store     store.Store
}

// Config is the engine's construction-time configuration, read once at
// startup from the environment per the ambient configuration surface.
type Config struct {
	MaxChannels   int
	CommitTimeout time.Duration
	TicketPrice   *big.Int
	DrawInterval  time.Duration
}

// NewEngine wires a ChannelEngine around signerPort (the house's signing
// capability) and guard (the shared bankroll exposure counter). hub may
// be nil if no WebSocket broadcasting is wanted.
func NewEngine(signerPort signer.Port, guard *bankroll.Guard, cfg Config, hub *EventHub) *Engine {
	maxChannels := cfg.MaxChannels
	if maxChannels <= 0 {
		maxChannels = 10000
	}
	commitTimeout := cfg.CommitTimeout
	if commitTimeout <= 0 {
		commitTimeout = game.DefaultCommitTimeout
	}
	ticketPrice := cfg.TicketPrice
	if ticketPrice == nil {
		ticketPrice = big.NewInt(0)
	}

	lotto := game.NewLotto(ticketPrice, cfg.DrawInterval)

	e := &Engine{
		channels:    make(map[common.Address]*model.Channel),
		maxChannels: maxChannels,
		pending:     make(map[string]model.PendingCommit),
		guard:       guard,
		signer:      signerPort,
		lotto:       lotto,
		hub:         hub,
	}
	e.games = map[string]game.Capability{
		route.GameSlots:    game.NewSlots(commitTimeout),
		route.GameCoinflip: game.NewCoinflip(commitTimeout),
		route.GameLotto:    lotto,
	}
	return e
}

// SetStore attaches the persistence layer. Store writes happen
// best-effort alongside every mutation: a write failure is logged but
// never fails the in-memory operation, since the in-memory
// ChannelEngine is authoritative and the store is a read-side
// projection for external consumers.
func (e *Engine) SetStore(s store.Store) {
	e.store = s
}

func (e *Engine) persistSnapshot(snap *model.Snapshot) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveSnapshot(context.Background(), snap); err != nil {
		slog.Error("persist snapshot failed", "agent", snap.Agent, "err", err)
	}
}

func (e *Engine) persistEvent(ev model.Event) {
	if e.store == nil {
		return
	}
	if err := e.store.InsertEvent(context.Background(), &ev); err != nil {
		slog.Error("persist event failed", "type", ev.Type, "err", err)
	}
}

func (e *Engine) persistRound(round *model.RoundRecord) {
	if e.store == nil {
		return
	}
	if err := e.store.InsertRound(context.Background(), round); err != nil {
		slog.Error("persist round failed", "agent", round.Agent, "game", round.Game, "err", err)
	}
}

func (e *Engine) persistDraw(draw *model.LottoDraw) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveLottoDraw(context.Background(), draw); err != nil {
		slog.Error("persist lotto draw failed", "drawId", draw.DrawID, "err", err)
	}
}

// --- game.Context implementation ---
//
// Engine implements game.Context directly; games never see the channel
// table or the bankroll guard, only these seven methods.

func (e *Engine) GenerateCommit() (casinoSeed, commitment string, err error) {
	return commitreveal.Commit()
}

func (e *Engine) VerifyCommitment(commitment, casinoSeed string) bool {
	return commitreveal.Verify(commitment, casinoSeed)
}

func (e *Engine) ComputeResult(casinoSeed, agentSeed string, nonce uint64) (*big.Int, string) {
	return commitreveal.ComputeResult(casinoSeed, agentSeed, nonce)
}

func (e *Engine) GetPending(agent common.Address, gameName string) (model.PendingCommit, bool) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	p, ok := e.pending[pendingKey(agent, gameName)]
	return p, ok
}

func (e *Engine) SetPending(commit model.PendingCommit) {
	e.pendingMu.Lock()
	e.pending[pendingKey(commit.Agent, commit.Game)] = commit
	e.pendingMu.Unlock()
	if e.store != nil {
		if err := e.store.SavePendingCommit(context.Background(), &commit); err != nil {
			slog.Error("persist pending commit failed", "agent", commit.Agent, "game", commit.Game, "err", err)
		}
	}
}

func (e *Engine) ClearPending(agent common.Address, gameName string) {
	e.pendingMu.Lock()
	delete(e.pending, pendingKey(agent, gameName))
	e.pendingMu.Unlock()
	if e.store != nil {
		if err := e.store.DeletePendingCommit(context.Background(), agent, gameName); err != nil {
			slog.Error("delete pending commit failed", "agent", agent, "game", gameName, "err", err)
		}
	}
}

func (e *Engine) Sign(agent common.Address, agentBalance, houseBalance *big.Int, nonce uint64) ([]byte, error) {
	return e.signer.Sign(signer.StateDigestInput{
		Agent:         agent,
		AgentBalance:  agentBalance,
		CasinoBalance: houseBalance,
		Nonce:         nonce,
	})
}

func pendingKey(agent common.Address, gameName string) string {
	return agent.Hex() + ":" + gameName
}

// weiToFloat renders a wei amount as a float64 gauge value. Precision
// loss above 2^53 wei (~9*10^6 ether) is acceptable for a metrics
// gauge; every balance computation elsewhere stays in *big.Int.
func weiToFloat(wei *big.Int) float64 {
	f, _ := new(big.Float).SetInt(wei).Float64()
	return f
}

// --- ChannelEngine operations ---

// OpenChannel creates a new channel for agent with the given starting
// deposits. Balances start equal to deposits; nonce starts at 0.
func (e *Engine) OpenChannel(agent common.Address, agentDeposit, houseDeposit *big.Int) (*model.Snapshot, error) {
	if agentDeposit == nil || agentDeposit.Sign() < 0 || houseDeposit == nil || houseDeposit.Sign() < 0 {
		return nil, apperror.New(apperror.Validation, fmt.Errorf("engine: deposits must be non-negative"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.channels[agent]; exists {
		return nil, apperror.New(apperror.Validation, fmt.Errorf("%w: %s", ErrDuplicateChannel, agent))
	}
	if len(e.channels) >= e.maxChannels {
		return nil, apperror.New(apperror.Policy, ErrMaxChannelsReached)
	}

	channel := &model.Channel{
		Agent:        agent,
		AgentDeposit: new(big.Int).Set(agentDeposit),
		HouseDeposit: new(big.Int).Set(houseDeposit),
		AgentBalance: new(big.Int).Set(agentDeposit),
		HouseBalance: new(big.Int).Set(houseDeposit),
		Nonce:        0,
		State:        model.ChannelOpen,
		OpenedAt:     time.Now(),
		Games:        []model.RoundRecord{},
	}
	e.channels[agent] = channel

	slog.Info("channel opened", "agent", agent, "agentDeposit", agentDeposit, "houseDeposit", houseDeposit)
	snap := snapshot(channel)
	e.persistSnapshot(snap)
	e.publish(model.Event{Type: "channel_opened", Agent: agent, Result: snap})
	return snap, nil
}

// GetStatus returns the current balances, nonce, and I1 check for agent.
func (e *Engine) GetStatus(agent common.Address) (*model.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	channel, ok := e.channels[agent]
	if !ok {
		return nil, apperror.New(apperror.Validation, fmt.Errorf("%w: %s", ErrChannelNotFound, agent))
	}
	return snapshot(channel), nil
}

// InvariantOK reports whether I1 currently holds for agent's channel.
func (e *Engine) InvariantOK(agent common.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	channel, ok := e.channels[agent]
	if !ok {
		return false, apperror.New(apperror.Validation, fmt.Errorf("%w: %s", ErrChannelNotFound, agent))
	}
	return channel.ConservationOK(), nil
}

// twoPhase reports whether gameName resolves over a commit/reveal pair
// (and therefore needs bankroll headroom reserved across the pair)
// rather than settling atomically in a single call, as Lotto's buy and
// claim do.
func twoPhase(gameName string) bool {
	return gameName == route.GameSlots || gameName == route.GameCoinflip
}

// headroom is the bankroll exposure a bet could create: the same
// bet*maxMultiplier*safetyFactor formula game.ValidateBet checks against
// the channel's own house balance, mirrored here against the
// process-wide bankroll ceiling.
func headroom(bet *big.Int, maxMultiplier int64) *big.Int {
	h := new(big.Int).Mul(bet, big.NewInt(maxMultiplier))
	h.Mul(h, big.NewInt(2))
	return h
}

// HandleAction routes "<game>_<action>" to the matching capability. For
// Slots and Coinflip, the headroom a pending bet could cost the house is
// locked against the bankroll guard at commit time and released once
// the pending commit is consumed — by a successful reveal, an expired
// reveal, or a failed commit attempt that never created one.
func (e *Engine) HandleAction(routeStr string, agent common.Address, params map[string]interface{}) (*game.Result, error) {
	start := time.Now()
	act, err := route.Parse(routeStr)
	if err != nil {
		return nil, apperror.New(apperror.Validation, err)
	}
	capability := e.games[act.Game]

	e.mu.Lock()
	defer e.mu.Unlock()

	channel, ok := e.channels[agent]
	if !ok {
		return nil, apperror.New(apperror.Validation, fmt.Errorf("%w: %s", ErrChannelNotFound, agent))
	}
	if channel.State != model.ChannelOpen {
		return nil, apperror.New(apperror.Validation, fmt.Errorf("%w: %s is %s", ErrChannelNotOpen, agent, channel.State))
	}

	pending, hadPending := e.GetPending(agent, act.Game)

	var lockAmount *big.Int
	if twoPhase(act.Game) {
		if !hadPending {
			if bet, betErr := game.BetWeiFromParams(params); betErr == nil {
				amount := headroom(bet, capability.MaxMultiplier())
				if lockErr := e.guard.Lock(amount); lockErr != nil {
					return nil, apperror.New(apperror.Policy, lockErr)
				}
				lockAmount = amount
			}
		} else {
			lockAmount = headroom(pending.BetAmount, capability.MaxMultiplier())
		}
	}

	result, err := capability.HandleAction(e, channel, act.Action, params)

	if lockAmount != nil {
		if _, stillPending := e.GetPending(agent, act.Game); !stillPending {
			e.guard.Unlock(lockAmount)
		}
	}

	if err != nil {
		wrapped := apperror.New(classify(err), err)
		slog.Error("action failed", "agent", agent, "route", routeStr, "category", apperror.CategoryOf(wrapped), "err", err)
		return nil, wrapped
	}

	slog.Info("action handled", "agent", agent, "route", routeStr, "nonce", channel.Nonce)
	if result.Round != nil {
		e.persistRound(result.Round)
		e.persistSnapshot(snapshot(channel))
		metrics.RoundsResolved.WithLabelValues(result.Round.Game, strconv.FormatBool(result.Round.Won)).Inc()

		latencyFrom := start
		if hadPending {
			latencyFrom = pending.Timestamp
		}
		metrics.RoundLatency.WithLabelValues(result.Round.Game).Observe(time.Since(latencyFrom).Seconds())
	}
	metrics.BankrollExposure.Set(weiToFloat(e.guard.TotalLocked()))
	metrics.BankrollAvailable.Set(weiToFloat(e.guard.Available()))
	e.publish(model.Event{Type: "action", Action: routeStr, Agent: agent, Result: result})
	return result, nil
}

// CloseChannel recomputes I1, refuses to settle if it fails, and
// otherwise produces the final signed state and removes the channel.
func (e *Engine) CloseChannel(agent common.Address) (*CloseResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	channel, ok := e.channels[agent]
	if !ok {
		return nil, apperror.New(apperror.Validation, fmt.Errorf("%w: %s", ErrChannelNotFound, agent))
	}
	if !channel.ConservationOK() {
		slog.Error("invariant violation on close", "agent", agent, "nonce", channel.Nonce,
			"agentBalance", channel.AgentBalance, "houseBalance", channel.HouseBalance)
		return nil, apperror.New(apperror.Integrity, fmt.Errorf("%w: agent %s", ErrInvariantViolation, agent))
	}

	sig, err := e.Sign(agent, channel.AgentBalance, channel.HouseBalance, channel.Nonce)
	if err != nil {
		return nil, apperror.New(apperror.Cryptographic, err)
	}

	result := &CloseResult{
		AgentBalance: new(big.Int).Set(channel.AgentBalance),
		HouseBalance: new(big.Int).Set(channel.HouseBalance),
		Nonce:        channel.Nonce,
		Signature:    sig,
		TotalGames:   len(channel.Games),
	}

	closingSnap := snapshot(channel)
	closingSnap.Status = model.ChannelClosed
	e.persistSnapshot(closingSnap)

	delete(e.channels, agent)
	for gameName := range e.games {
		e.ClearPending(agent, gameName)
	}

	slog.Info("channel closed", "agent", agent, "nonce", result.Nonce, "games", result.TotalGames)
	e.publish(model.Event{Type: "channel_closed", Agent: agent, Result: result})
	return result, nil
}

// RunScheduled executes every lotto draw whose draw time has elapsed and
// folds each open channel's winnings from those draws back into its
// balance. It is safe to call repeatedly on a timer; a draw that has
// already been executed is skipped.
func (e *Engine) RunScheduled() {
	now := time.Now()
	for _, draw := range e.lotto.PendingDraws(now) {
		if err := e.lotto.ExecuteDraw(draw.DrawID); err != nil {
			slog.Error("scheduled draw execution failed", "drawId", draw.DrawID, "err", err)
			continue
		}
		slog.Info("lotto draw executed", "drawId", draw.DrawID, "winningNumber", draw.WinningNumber)
		e.persistDraw(draw)
		e.publish(model.Event{Type: "lotto_draw", Result: draw})

		e.mu.Lock()
		for agent, channel := range e.channels {
			round, err := e.lotto.ApplyWinnings(e, channel)
			if err != nil {
				slog.Error("failed to apply lotto winnings", "agent", agent, "drawId", draw.DrawID, "err", err)
				continue
			}
			if round != nil {
				slog.Info("lotto winnings applied", "agent", agent, "drawId", draw.DrawID, "payout", round.Payout)
				e.persistRound(round)
				e.persistSnapshot(snapshot(channel))
				e.publish(model.Event{Type: "lotto_winnings_applied", Agent: agent, Result: round})
			}
		}
		e.mu.Unlock()
	}
}

// BankrollAvailable returns the bankroll guard's remaining exposure
// headroom, for status endpoints and metrics.
func (e *Engine) BankrollAvailable() *big.Int {
	return e.guard.Available()
}

func (e *Engine) publish(ev model.Event) {
	ev.Timestamp = time.Now()
	e.persistEvent(ev)
	if e.hub == nil {
		return
	}
	e.hub.Publish(ev)
}

// snapshot renders a channel for the wire: §6 requires every external
// quantity as a decimal-ether string even though the engine's own
// arithmetic stays in integer wei throughout.
func snapshot(c *model.Channel) *model.Snapshot {
	return &model.Snapshot{
		Agent:         c.Agent,
		Status:        c.State,
		AgentDeposit:  weimath.ToDecimal(c.AgentDeposit),
		CasinoDeposit: weimath.ToDecimal(c.HouseDeposit),
		AgentBalance:  weimath.ToDecimal(c.AgentBalance),
		CasinoBalance: weimath.ToDecimal(c.HouseBalance),
		Nonce:         c.Nonce,
		GamesPlayed:   len(c.Games),
		OpenedAt:      c.OpenedAt,
	}
}

// classify maps a game/route/bankroll sentinel error to its taxonomy
// category so HandleAction can wrap it without the games package
// needing to import apperror itself.
func classify(err error) apperror.Category {
	switch {
	case errors.Is(err, game.ErrCommitExpired):
		return apperror.Liveness
	case errors.Is(err, game.ErrInsufficientBalance),
		errors.Is(err, game.ErrHouseCannotCover),
		errors.Is(err, game.ErrPendingCommitExists),
		errors.Is(err, game.ErrTicketsPerDrawExceeded),
		errors.Is(err, game.ErrDrawAlreadyDrawn),
		errors.Is(err, bankroll.ErrExposureLimitExceeded):
		return apperror.Policy
	default:
		return apperror.Validation
	}
}
