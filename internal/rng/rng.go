// Package rng implements the verifiable-RNG round state machine: the
// alternate path for games that request randomness from an external
// provider instead of resolving a local commit/reveal. A round moves
// None -> Requested -> Fulfilled -> Settled, with Expired and Failed as
// the two ways a round can end without settling.
package rng

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type State string

const (
	StateRequested State = "requested"
	StateFulfilled State = "fulfilled"
	StateSettled   State = "settled"
	StateExpired   State = "expired"
	StateFailed    State = "failed"
)

var (
	// ErrAlreadyRequested is returned when a request id has already been
	// used — a request id maps to exactly one round for its lifetime.
	ErrAlreadyRequested = errors.New("rng: request id already in use")
	// ErrRoundNotFound is returned for an unknown request id.
	ErrRoundNotFound = errors.New("rng: round not found")
	// ErrNotRequested is returned when a fulfillment arrives for a round
	// not in the Requested state.
	ErrNotRequested = errors.New("rng: round is not in the requested state")
	// ErrNotFulfilled is returned when Settle is called on a round that
	// has not received its fulfillment yet.
	ErrNotFulfilled = errors.New("rng: round is not in the fulfilled state")
	// ErrUnauthorizedProvider is returned when a fulfillment's caller
	// does not match the round's configured provider.
	ErrUnauthorizedProvider = errors.New("rng: fulfillment from unauthorized provider")
	// ErrNotExpired is returned when Expire is called before the
	// round's TTL has elapsed.
	ErrNotExpired = errors.New("rng: round has not exceeded its TTL")
)

// Round is one verifiable-RNG request's lifecycle record.
type Round struct {
	RequestID   string
	Agent       common.Address
	Bet         *big.Int
	Choice      string
	Fee         *big.Int
	State       State
	RequestedAt time.Time
	RandomValue *big.Int
	Result      int
}

// Machine tracks all in-flight verifiable-RNG rounds. It is process-wide
// shared state, the same way PendingCommits and BankrollGuard are,
// and owns its own mutex.
type Machine struct {
	mu       sync.Mutex
	rounds   map[string]*Round
	provider string
	ttl      time.Duration
}

// NewMachine constructs a round state machine that accepts fulfillments
// only from provider and expires unfulfilled rounds after ttl.
func NewMachine(provider string, ttl time.Duration) *Machine {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Machine{
		rounds:   make(map[string]*Round),
		provider: provider,
		ttl:      ttl,
	}
}

// Request opens a new round under requestID. Per the contract, a
// request id maps to exactly one round for its lifetime: a second
// Request under the same id, regardless of that round's current state,
// is rejected.
func (m *Machine) Request(requestID string, agent common.Address, bet, fee *big.Int, choice string) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rounds[requestID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRequested, requestID)
	}
	round := &Round{
		RequestID:   requestID,
		Agent:       agent,
		Bet:         bet,
		Choice:      choice,
		Fee:         fee,
		State:       StateRequested,
		RequestedAt: time.Now(),
	}
	m.rounds[requestID] = round
	return round, nil
}

// Fulfill records the provider's random value for requestID. Exactly
// one fulfillment is accepted per round; the caller's identity must
// match the configured provider.
func (m *Machine) Fulfill(requestID, callerProvider string, randomValue *big.Int) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	round, ok := m.rounds[requestID]
	if !ok {
		return nil, ErrRoundNotFound
	}
	if callerProvider != m.provider {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorizedProvider, callerProvider)
	}
	if round.State != StateRequested {
		return nil, fmt.Errorf("%w: round %s is %s", ErrNotRequested, requestID, round.State)
	}
	round.RandomValue = new(big.Int).Set(randomValue)
	round.State = StateFulfilled
	return round, nil
}

// Settle marks a fulfilled round processed, computing its deterministic
// result (random mod 2, the coinflip-style reduction named in §4.7) and
// moving the round to Settled.
func (m *Machine) Settle(requestID string) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	round, ok := m.rounds[requestID]
	if !ok {
		return nil, ErrRoundNotFound
	}
	if round.State != StateFulfilled {
		return nil, fmt.Errorf("%w: round %s is %s", ErrNotFulfilled, requestID, round.State)
	}
	round.Result = int(new(big.Int).Mod(round.RandomValue, big.NewInt(2)).Int64())
	round.State = StateSettled
	return round, nil
}

// Expire marks a Requested-and-elapsed round Expired. Any observer may
// call it; it is not restricted to the provider or the requesting
// agent.
func (m *Machine) Expire(requestID string, now time.Time) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	round, ok := m.rounds[requestID]
	if !ok {
		return nil, ErrRoundNotFound
	}
	if round.State != StateRequested {
		return nil, fmt.Errorf("%w: round %s is %s", ErrNotRequested, requestID, round.State)
	}
	if now.Sub(round.RequestedAt) <= m.ttl {
		return nil, ErrNotExpired
	}
	round.State = StateExpired
	return round, nil
}

// Fail moves requestID to the terminal Failed state, used when a
// provider request itself could not be dispatched or a fulfillment
// comes back malformed.
func (m *Machine) Fail(requestID string) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	round, ok := m.rounds[requestID]
	if !ok {
		return nil, ErrRoundNotFound
	}
	round.State = StateFailed
	return round, nil
}

// Get returns the round at requestID, if any.
func (m *Machine) Get(requestID string) (*Round, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	round, ok := m.rounds[requestID]
	return round, ok
}
