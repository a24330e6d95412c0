package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[common.Address]*model.Snapshot
	rounds    []model.RoundRecord
	pending   map[string]*model.PendingCommit
	draws     map[string]*model.LottoDraw
	events    []model.Event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[common.Address]*model.Snapshot),
		pending:   make(map[string]*model.PendingCommit),
		draws:     make(map[string]*model.LottoDraw),
	}
}

func pendingKey(agent common.Address, game string) string {
	return agent.Hex() + ":" + game
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *snap
	s.snapshots[snap.Agent] = &copy
	return nil
}

func (s *MemoryStore) GetSnapshot(_ context.Context, agent common.Address) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[agent]
	if !ok {
		return nil, fmt.Errorf("store: no snapshot for agent %s", agent)
	}
	copy := *snap
	return &copy, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context) ([]model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := make([]model.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		snaps = append(snaps, *snap)
	}
	return snaps, nil
}

func (s *MemoryStore) InsertRound(_ context.Context, round *model.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, *round)
	return nil
}

func (s *MemoryStore) GetRoundsByAgent(_ context.Context, agent common.Address) ([]model.RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []model.RoundRecord
	for _, r := range s.rounds {
		if r.Agent == agent {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *MemoryStore) SavePendingCommit(_ context.Context, commit *model.PendingCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *commit
	s.pending[pendingKey(commit.Agent, commit.Game)] = &copy
	return nil
}

func (s *MemoryStore) GetPendingCommit(_ context.Context, agent common.Address, game string) (*model.PendingCommit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	commit, ok := s.pending[pendingKey(agent, game)]
	if !ok {
		return nil, fmt.Errorf("store: no pending commit for %s/%s", agent, game)
	}
	copy := *commit
	return &copy, nil
}

func (s *MemoryStore) DeletePendingCommit(_ context.Context, agent common.Address, game string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, pendingKey(agent, game))
	return nil
}

func (s *MemoryStore) SaveLottoDraw(_ context.Context, draw *model.LottoDraw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *draw
	s.draws[draw.DrawID] = &copy
	return nil
}

func (s *MemoryStore) GetLottoDraw(_ context.Context, drawID string) (*model.LottoDraw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	draw, ok := s.draws[drawID]
	if !ok {
		return nil, fmt.Errorf("store: no lotto draw %s", drawID)
	}
	copy := *draw
	return &copy, nil
}

func (s *MemoryStore) ListPendingDraws(_ context.Context, at time.Time) ([]model.LottoDraw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []model.LottoDraw
	for _, d := range s.draws {
		if !d.Drawn && !d.DrawTime.After(at) {
			result = append(result, *d)
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertEvent(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *MemoryStore) GetEventsByAgent(_ context.Context, agent common.Address) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []model.Event
	for _, e := range s.events {
		if e.Agent == agent {
			result = append(result, e)
		}
	}
	return result, nil
}
