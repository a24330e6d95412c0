// Package model defines the core domain types shared across the casino
// engine. All balance, deposit, and payout fields are integer base units
// ("wei") — never float64, never decimal.Decimal. decimal.Decimal is used
// only at the wire/display boundary by package weimath.
package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChannelState is the off-chain lifecycle of a two-party payment channel.
type ChannelState string

const (
	ChannelNone     ChannelState = "none"
	ChannelOpen     ChannelState = "open"
	ChannelDisputed ChannelState = "disputed"
	ChannelClosed   ChannelState = "closed"
)

// RoundRecord is a non-authoritative record of one resolved game round,
// kept in a channel's Games slice and emitted for external persistence.
// The signed channel state, not this record, is authoritative.
type RoundRecord struct {
	Agent        common.Address `json:"agent"`
	Game         string         `json:"game"`
	Bet          *big.Int       `json:"bet"`
	Payout       *big.Int       `json:"payout"`
	Won          bool           `json:"won"`
	Multiplier   string         `json:"multiplier,omitempty"`
	Reels        []int          `json:"reels,omitempty"`
	Choice       string         `json:"choice,omitempty"`
	Result       string         `json:"result,omitempty"`
	PickedNumber int            `json:"pickedNumber,omitempty"`
	DrawID       string         `json:"drawId,omitempty"`
	TicketCount  int            `json:"ticketCount,omitempty"`
	Nonce        uint64         `json:"nonce"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Channel is the two-party escrow and its mutable off-chain balances.
// Holds both the off-chain mirror fields and the on-chain-equivalent
// deposit/balance/nonce tuple; SettlementContract keeps its own copy of
// the on-chain-authoritative fields, this is the engine's mirror.
type Channel struct {
	Agent           common.Address `json:"agent"`
	AgentDeposit    *big.Int       `json:"agentDeposit"`
	HouseDeposit    *big.Int       `json:"houseDeposit"`
	AgentBalance    *big.Int       `json:"agentBalance"`
	HouseBalance    *big.Int       `json:"houseBalance"`
	Nonce           uint64         `json:"nonce"`
	State           ChannelState   `json:"state"`
	OpenedAt        time.Time      `json:"openedAt"`
	DisputeDeadline time.Time      `json:"disputeDeadline,omitempty"`
	Games           []RoundRecord  `json:"games"`
}

// ConservationOK reports whether invariant I1 holds for the channel:
// agentBalance + houseBalance == agentDeposit + houseDeposit.
func (c *Channel) ConservationOK() bool {
	sum := new(big.Int).Add(c.AgentBalance, c.HouseBalance)
	deposits := new(big.Int).Add(c.AgentDeposit, c.HouseDeposit)
	return sum.Cmp(deposits) == 0
}

// Snapshot is the consumer-owned per-channel record emitted after every
// mutation, per the persisted state layout. JSON keys follow the wire
// naming (casinoDeposit/casinoBalance) even though the Go-side Channel
// type above calls the same quantities HouseDeposit/HouseBalance.
type Snapshot struct {
	Agent         common.Address `json:"agent"`
	Status        ChannelState   `json:"status"`
	AgentDeposit  string         `json:"agentDeposit"`
	CasinoDeposit string         `json:"casinoDeposit"`
	AgentBalance  string         `json:"agentBalance"`
	CasinoBalance string         `json:"casinoBalance"`
	Nonce         uint64         `json:"nonce"`
	GamesPlayed   int            `json:"gamesPlayed"`
	OpenedAt      time.Time      `json:"openedAt"`
}

// PendingCommit is the provably-fair commit awaiting reveal, keyed by
// (agent, game) at the store layer.
type PendingCommit struct {
	Agent      common.Address         `json:"agent"`
	Game       string                 `json:"game"`
	CasinoSeed string                 `json:"casinoSeed"`
	Commitment string                 `json:"commitment"`
	BetAmount  *big.Int               `json:"betAmount"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// LottoDraw is one scheduled drawing of the lotto game.
type LottoDraw struct {
	DrawID        string                   `json:"drawId"`
	CasinoSeed    string                   `json:"casinoSeed"`
	Commitment    string                   `json:"commitment"`
	DrawTime      time.Time                `json:"drawTime"`
	Tickets       map[common.Address][]int `json:"tickets"`
	TotalPool     *big.Int                 `json:"totalPool"`
	Drawn         bool                     `json:"drawn"`
	WinningNumber int                      `json:"winningNumber"`
	DrawnAt       time.Time                `json:"drawnAt,omitempty"`
}

// Event is a per-mutation notification broadcast over the event hub and
// offered to consumer-owned dashboards.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Type      string         `json:"type"`
	Action    string         `json:"action,omitempty"`
	Agent     common.Address `json:"agent"`
	Result    interface{}    `json:"result,omitempty"`
}
