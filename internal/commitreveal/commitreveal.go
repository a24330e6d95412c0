// Package commitreveal implements the provably-fair commit-reveal scheme
// used to derive game randomness without either party controlling the
// outcome. The house commits to a secret seed before the agent's bet is
// known to be final; the seed is revealed only after the round settles,
// and anyone holding the commitment can verify the reveal matches it.
package commitreveal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

// ErrCommitmentMismatch is returned by Verify when a revealed seed does
// not hash to the commitment it is claimed to satisfy.
var ErrCommitmentMismatch = errors.New("commitreveal: commitment mismatch")

// seedBytes is the width of a generated casino seed, in bytes.
const seedBytes = 32

// Commit generates a fresh casino seed and returns it alongside its
// commitment, sha256(casinoSeed) hex-encoded. The seed is held back by
// the caller (the house) and only disclosed once the round that used it
// has settled.
func Commit() (casinoSeed string, commitment string, err error) {
	buf := make([]byte, seedBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("commitreveal: generate seed: %w", err)
	}
	casinoSeed = hex.EncodeToString(buf)
	commitment = hashSeed(casinoSeed)
	return casinoSeed, commitment, nil
}

// Verify reports whether casinoSeed is the preimage of commitment.
func Verify(commitment, casinoSeed string) bool {
	return hashSeed(casinoSeed) == commitment
}

// ComputeResult derives the round's randomness hash and numeric value
// from the revealed casino seed, the agent's contributed seed, and the
// round nonce: hash = SHA256(casinoSeed + ":" + agentSeed + ":" + nonce).
// rng is the hash's big-endian unsigned-integer interpretation, for
// games to reduce modulo their outcome space. proof is the hex-encoded
// hash, suitable for the agent to independently recompute and check.
func ComputeResult(casinoSeed, agentSeed string, nonce uint64) (rng *big.Int, proof string) {
	input := fmt.Sprintf("%s:%s:%d", casinoSeed, agentSeed, nonce)
	sum := sha256.Sum256([]byte(input))
	proof = hex.EncodeToString(sum[:])
	rng = new(big.Int).SetBytes(sum[:])
	return rng, proof
}

// VerifyResult recomputes ComputeResult from a revealed seed and checks
// both that the seed satisfies the original commitment and that the
// claimed proof matches the recomputation.
func VerifyResult(commitment, casinoSeed, agentSeed string, nonce uint64, claimedProof string) error {
	if !Verify(commitment, casinoSeed) {
		return fmt.Errorf("%w: seed does not hash to commitment", ErrCommitmentMismatch)
	}
	_, proof := ComputeResult(casinoSeed, agentSeed, nonce)
	if proof != claimedProof {
		return fmt.Errorf("%w: proof %s does not match recomputed %s", ErrCommitmentMismatch, claimedProof, proof)
	}
	return nil
}

func hashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
