// Package signer implements the EIP-712 typed-data signing and recovery
// used to authenticate off-chain channel state updates. The house signs
// the channel-state digest; SettlementContract accepts a state
// transition only if that signature recovers to the house address on
// record.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// domainSeparator is the EIP-712 domain hash: keccak256 of the ABI-style
// encoding of the domain's name, version, chain ID and verifying
// contract address. It is fixed for
// the lifetime of a deployment and mixed into every state digest so a
// signature cannot be replayed against a different chain or contract
// version.
type domainSeparator [32]byte

// Port is the signing and recovery capability used by the channel engine
// and the settlement contract. A production deployment backs it with an
// in-process ecdsa.PrivateKey (the house's hot key) or a remote signer;
// tests back it with a throwaway key.
type Port interface {
	// Address is the address this port signs on behalf of.
	Address() common.Address
	// Sign returns a 65-byte [R || S || V] signature over the EIP-712
	// digest of a channel state.
	Sign(state StateDigestInput) ([]byte, error)
	// Recover returns the address that produced signature over the
	// EIP-712 digest of a channel state, or an error if the signature
	// is malformed.
	Recover(state StateDigestInput, signature []byte) (common.Address, error)
}

// StateDigestInput is the set of fields the channel-state typed-data
// struct covers. Every signed state update commits to exactly these
// fields, so a party cannot be bound to terms it never saw. Field order
// matches the on-chain ChannelState struct: address agent, uint256
// agentBalance, uint256 casinoBalance, uint256 nonce.
type StateDigestInput struct {
	Agent         common.Address
	AgentBalance  *big.Int
	CasinoBalance *big.Int
	Nonce         uint64
}

// LocalSigner signs with an in-memory private key. Used by the house's
// hot-signing path; HOUSE_PRIVATE_KEY is loaded once at startup.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	domain  domainSeparator
}

// NewLocalSigner derives the domain separator from chainID and the
// settlement contract address and wraps key for signing.
func NewLocalSigner(key *ecdsa.PrivateKey, chainID *big.Int, contract common.Address) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		domain:  computeDomainSeparator(chainID, contract),
	}
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) Sign(state StateDigestInput) ([]byte, error) {
	digest := stateDigest(s.domain, state)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("signer: sign: %w", err)
	}
	return sig, nil
}

func (s *LocalSigner) Recover(state StateDigestInput, signature []byte) (common.Address, error) {
	return recoverAddress(s.domain, state, signature)
}

// RemoteVerifier only recovers signatures against a fixed domain; it
// never holds a private key, so it is safe for the agent side of the
// channel where the house never signs on the agent's behalf.
type RemoteVerifier struct {
	domain domainSeparator
}

func NewRemoteVerifier(chainID *big.Int, contract common.Address) *RemoteVerifier {
	return &RemoteVerifier{domain: computeDomainSeparator(chainID, contract)}
}

func (v *RemoteVerifier) Recover(state StateDigestInput, signature []byte) (common.Address, error) {
	return recoverAddress(v.domain, state, signature)
}

func recoverAddress(domain domainSeparator, state StateDigestInput, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("signer: signature must be 65 bytes, got %d", len(signature))
	}
	digest := stateDigest(domain, state)
	// crypto.SigToPub expects a recovery ID in [0,3); EIP-712 tooling
	// commonly produces V in {27,28} so normalize before recovery.
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("signer: recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// computeDomainSeparator hashes a minimal EIP-712 domain: name, version,
// chain ID and the verifying contract address.
func computeDomainSeparator(chainID *big.Int, contract common.Address) domainSeparator {
	typeHash := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	nameHash := crypto.Keccak256([]byte("AgentCasino"))
	versionHash := crypto.Keccak256([]byte("1"))

	chainIDBytes := make([]byte, 32)
	chainID.FillBytes(chainIDBytes)

	contractBytes := make([]byte, 32)
	copy(contractBytes[12:], contract.Bytes())

	packed := append([]byte{}, typeHash...)
	packed = append(packed, nameHash...)
	packed = append(packed, versionHash...)
	packed = append(packed, chainIDBytes...)
	packed = append(packed, contractBytes...)

	var out domainSeparator
	copy(out[:], crypto.Keccak256(packed))
	return out
}

// stateDigest hashes the channel-state struct per the EIP-712 encoding
// and mixes in the domain separator: keccak256("\x19\x01" || domain ||
// structHash).
func stateDigest(domain domainSeparator, state StateDigestInput) []byte {
	typeHash := crypto.Keccak256([]byte("ChannelState(address agent,uint256 agentBalance,uint256 casinoBalance,uint256 nonce)"))

	agentBytes := make([]byte, 32)
	copy(agentBytes[12:], state.Agent.Bytes())

	agentBalanceBytes := make([]byte, 32)
	if state.AgentBalance != nil {
		state.AgentBalance.FillBytes(agentBalanceBytes)
	}
	casinoBalanceBytes := make([]byte, 32)
	if state.CasinoBalance != nil {
		state.CasinoBalance.FillBytes(casinoBalanceBytes)
	}
	nonceBytes := make([]byte, 32)
	new(big.Int).SetUint64(state.Nonce).FillBytes(nonceBytes)

	structPacked := append([]byte{}, typeHash...)
	structPacked = append(structPacked, agentBytes...)
	structPacked = append(structPacked, agentBalanceBytes...)
	structPacked = append(structPacked, casinoBalanceBytes...)
	structPacked = append(structPacked, nonceBytes...)
	structHash := crypto.Keccak256(structPacked)

	prefixed := append([]byte{0x19, 0x01}, domain[:]...)
	prefixed = append(prefixed, structHash...)
	return crypto.Keccak256(prefixed)
}
