// Package store defines the persistence interface for the casino
// engine's consumer-owned records: per-channel snapshots, per-round
// records, in-flight PendingCommits, Lotto draws, and per-mutation
// events. None of this is authoritative — the in-memory ChannelEngine
// and settlement.Contract own the live state per §3 Ownership — this
// is the read-side projection external consumers (dashboards,
// reconciliation jobs, audit trails) query against.
package store

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of
// truth for the persisted layer; Redis provides a read-through cache.
type Store interface {
	// --- Channel snapshots ---

	// SaveSnapshot upserts the per-channel snapshot emitted after every
	// mutation.
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) error

	// GetSnapshot retrieves the most recently saved snapshot for agent.
	GetSnapshot(ctx context.Context, agent common.Address) (*model.Snapshot, error)

	// ListSnapshots returns every channel snapshot on record.
	ListSnapshots(ctx context.Context) ([]model.Snapshot, error)

	// --- Round records (immutable, append-only) ---

	// InsertRound appends one resolved round to the record.
	InsertRound(ctx context.Context, round *model.RoundRecord) error

	// GetRoundsByAgent returns every round recorded for agent, ordered
	// by timestamp.
	GetRoundsByAgent(ctx context.Context, agent common.Address) ([]model.RoundRecord, error)

	// --- Pending commits ---

	// SavePendingCommit upserts the commit awaiting reveal for
	// (agent, game).
	SavePendingCommit(ctx context.Context, commit *model.PendingCommit) error

	// GetPendingCommit retrieves the pending commit for (agent, game),
	// if any.
	GetPendingCommit(ctx context.Context, agent common.Address, game string) (*model.PendingCommit, error)

	// DeletePendingCommit removes the pending commit for (agent, game).
	DeletePendingCommit(ctx context.Context, agent common.Address, game string) error

	// --- Lotto draws ---

	// SaveLottoDraw upserts a scheduled or executed draw.
	SaveLottoDraw(ctx context.Context, draw *model.LottoDraw) error

	// GetLottoDraw retrieves a draw by its id.
	GetLottoDraw(ctx context.Context, drawID string) (*model.LottoDraw, error)

	// ListPendingDraws returns undrawn draws scheduled at or before at.
	ListPendingDraws(ctx context.Context, at time.Time) ([]model.LottoDraw, error)

	// --- Events (append-only, for dashboards/audit) ---

	// InsertEvent appends one per-mutation event.
	InsertEvent(ctx context.Context, ev *model.Event) error

	// GetEventsByAgent returns every event recorded for agent, ordered
	// by timestamp.
	GetEventsByAgent(ctx context.Context, agent common.Address) ([]model.Event, error)
}
