package commitreveal_test

import (
	"testing"

	"github.com/agentcasino/engine/internal/commitreveal"
)

func TestCommitThenVerify(t *testing.T) {
	seed, commitment, err := commitreveal.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !commitreveal.Verify(commitment, seed) {
		t.Error("Verify rejected the seed that produced its own commitment")
	}
}

func TestVerify_RejectsWrongSeed(t *testing.T) {
	_, commitment, _ := commitreveal.Commit()
	if commitreveal.Verify(commitment, "not-the-seed") {
		t.Error("Verify accepted a seed that does not match the commitment")
	}
}

func TestComputeResult_Deterministic(t *testing.T) {
	seed, _, _ := commitreveal.Commit()
	rng1, proof1 := commitreveal.ComputeResult(seed, "agent-seed", 1)
	rng2, proof2 := commitreveal.ComputeResult(seed, "agent-seed", 1)
	if proof1 != proof2 {
		t.Errorf("ComputeResult not deterministic: %s != %s", proof1, proof2)
	}
	if rng1.Cmp(rng2) != 0 {
		t.Error("ComputeResult rng not deterministic")
	}
}

func TestComputeResult_ChangesWithNonce(t *testing.T) {
	seed, _, _ := commitreveal.Commit()
	_, proofA := commitreveal.ComputeResult(seed, "agent-seed", 1)
	_, proofB := commitreveal.ComputeResult(seed, "agent-seed", 2)
	if proofA == proofB {
		t.Error("ComputeResult produced the same proof for two different nonces")
	}
}

func TestComputeResult_ChangesWithAgentSeed(t *testing.T) {
	seed, _, _ := commitreveal.Commit()
	_, proofA := commitreveal.ComputeResult(seed, "agent-seed-a", 1)
	_, proofB := commitreveal.ComputeResult(seed, "agent-seed-b", 1)
	if proofA == proofB {
		t.Error("ComputeResult produced the same proof for two different agent seeds")
	}
}

func TestVerifyResult_Success(t *testing.T) {
	seed, commitment, _ := commitreveal.Commit()
	_, proof := commitreveal.ComputeResult(seed, "agent-seed", 7)
	if err := commitreveal.VerifyResult(commitment, seed, "agent-seed", 7, proof); err != nil {
		t.Errorf("VerifyResult: %v", err)
	}
}

func TestVerifyResult_RejectsBadCommitment(t *testing.T) {
	seed, _, _ := commitreveal.Commit()
	_, otherCommitment, _ := commitreveal.Commit()
	_, proof := commitreveal.ComputeResult(seed, "agent-seed", 7)
	if err := commitreveal.VerifyResult(otherCommitment, seed, "agent-seed", 7, proof); err == nil {
		t.Error("expected error for mismatched commitment")
	}
}

func TestVerifyResult_RejectsTamperedProof(t *testing.T) {
	seed, commitment, _ := commitreveal.Commit()
	if err := commitreveal.VerifyResult(commitment, seed, "agent-seed", 7, "deadbeef"); err == nil {
		t.Error("expected error for tampered proof")
	}
}
