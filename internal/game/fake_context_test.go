package game_test

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agentcasino/engine/internal/commitreveal"
	"github.com/agentcasino/engine/internal/model"
)

// fakeContext is a minimal, single-process game.Context used by the
// game tests: it delegates seed generation/verification to the real
// commitreveal package and signs with a no-op "signature" so tests can
// assert on its shape without a real key.
type fakeContext struct {
	mu      sync.Mutex
	pending map[string]model.PendingCommit
}

func newFakeContext() *fakeContext {
	return &fakeContext{pending: make(map[string]model.PendingCommit)}
}

func pendingKey(agent common.Address, gameName string) string {
	return agent.Hex() + ":" + gameName
}

func (f *fakeContext) GenerateCommit() (string, string, error) {
	return commitreveal.Commit()
}

func (f *fakeContext) VerifyCommitment(commitment, casinoSeed string) bool {
	return commitreveal.Verify(commitment, casinoSeed)
}

func (f *fakeContext) ComputeResult(casinoSeed, agentSeed string, nonce uint64) (*big.Int, string) {
	return commitreveal.ComputeResult(casinoSeed, agentSeed, nonce)
}

func (f *fakeContext) GetPending(agent common.Address, gameName string) (model.PendingCommit, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[pendingKey(agent, gameName)]
	return p, ok
}

func (f *fakeContext) SetPending(commit model.PendingCommit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[pendingKey(commit.Agent, commit.Game)] = commit
}

func (f *fakeContext) ClearPending(agent common.Address, gameName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, pendingKey(agent, gameName))
}

func (f *fakeContext) Sign(agent common.Address, agentBalance, houseBalance *big.Int, nonce uint64) ([]byte, error) {
	return []byte("fake-signature-fake-signature-65"), nil
}
