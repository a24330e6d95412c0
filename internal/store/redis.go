package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/agentcasino/engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary store and then refresh
// the cached copy (a deleted pending commit is evicted); reads check
// Redis first then fall back to the primary.
// Only snapshots and pending commits are cached — the two record types
// read on the hot path (status queries and commit/reveal); rounds,
// draws and events are append-mostly and read far less often, so they
// pass straight through.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, refresh cache) ---

func (s *CachedStore) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if err := s.primary.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cacheSnapshot(ctx, snap)
	return nil
}

func (s *CachedStore) SavePendingCommit(ctx context.Context, c *model.PendingCommit) error {
	if err := s.primary.SavePendingCommit(ctx, c); err != nil {
		return err
	}
	s.cachePendingCommit(ctx, c)
	return nil
}

func (s *CachedStore) DeletePendingCommit(ctx context.Context, agent common.Address, game string) error {
	if err := s.primary.DeletePendingCommit(ctx, agent, game); err != nil {
		return err
	}
	s.rdb.Del(ctx, pendingCacheKey(agent, game))
	return nil
}

func (s *CachedStore) InsertRound(ctx context.Context, r *model.RoundRecord) error {
	return s.primary.InsertRound(ctx, r)
}

func (s *CachedStore) SaveLottoDraw(ctx context.Context, d *model.LottoDraw) error {
	return s.primary.SaveLottoDraw(ctx, d)
}

func (s *CachedStore) InsertEvent(ctx context.Context, ev *model.Event) error {
	return s.primary.InsertEvent(ctx, ev)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSnapshot(ctx context.Context, agent common.Address) (*model.Snapshot, error) {
	data, err := s.rdb.Get(ctx, snapshotCacheKey(agent)).Bytes()
	if err == nil {
		var snap model.Snapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	snap, err := s.primary.GetSnapshot(ctx, agent)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

func (s *CachedStore) GetPendingCommit(ctx context.Context, agent common.Address, game string) (*model.PendingCommit, error) {
	data, err := s.rdb.Get(ctx, pendingCacheKey(agent, game)).Bytes()
	if err == nil {
		var c model.PendingCommit
		if json.Unmarshal(data, &c) == nil {
			return &c, nil
		}
	}

	c, err := s.primary.GetPendingCommit(ctx, agent, game)
	if err != nil {
		return nil, err
	}
	s.cachePendingCommit(ctx, c)
	return c, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	return s.primary.ListSnapshots(ctx)
}

func (s *CachedStore) GetRoundsByAgent(ctx context.Context, agent common.Address) ([]model.RoundRecord, error) {
	return s.primary.GetRoundsByAgent(ctx, agent)
}

func (s *CachedStore) GetLottoDraw(ctx context.Context, drawID string) (*model.LottoDraw, error) {
	return s.primary.GetLottoDraw(ctx, drawID)
}

func (s *CachedStore) ListPendingDraws(ctx context.Context, at time.Time) ([]model.LottoDraw, error) {
	return s.primary.ListPendingDraws(ctx, at)
}

func (s *CachedStore) GetEventsByAgent(ctx context.Context, agent common.Address) ([]model.Event, error) {
	return s.primary.GetEventsByAgent(ctx, agent)
}

// --- Cache helpers ---

func (s *CachedStore) cacheSnapshot(ctx context.Context, snap *model.Snapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, snapshotCacheKey(snap.Agent), data, s.ttl)
	}
}

func (s *CachedStore) cachePendingCommit(ctx context.Context, c *model.PendingCommit) {
	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, pendingCacheKey(c.Agent, c.Game), data, s.ttl)
	}
}

func snapshotCacheKey(agent common.Address) string { return fmt.Sprintf("snapshot:%s", agent.Hex()) }
func pendingCacheKey(agent common.Address, game string) string {
	return fmt.Sprintf("pending:%s:%s", agent.Hex(), game)
}
