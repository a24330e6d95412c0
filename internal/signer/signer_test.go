package signer_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/agentcasino/engine/internal/signer"
)

func testState() signer.StateDigestInput {
	return signer.StateDigestInput{
		Agent:    common.HexToAddress("0xaaaa000000000000000000000000000000aaaa"),
		AgentBalance: big.NewInt(1000),
		CasinoBalance: big.NewInt(2000),
		Nonce:        3,
	}
}

// P7: a signature produced by Sign recovers to the signer's own address.
func TestSignThenRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	chainID := big.NewInt(1337)
	contract := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")
	s := signer.NewLocalSigner(key, chainID, contract)

	state := testState()
	sig, err := s.Sign(state)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}

	recovered, err := s.Recover(state, sig)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered != s.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), s.Address().Hex())
	}
}

func TestRecover_DifferentStateDoesNotMatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	chainID := big.NewInt(1337)
	contract := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")
	s := signer.NewLocalSigner(key, chainID, contract)

	state := testState()
	sig, _ := s.Sign(state)

	tampered := state
	tampered.Nonce = state.Nonce + 1
	recovered, err := s.Recover(tampered, sig)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered == s.Address() {
		t.Error("recovery succeeded against a tampered state, want mismatch")
	}
}

func TestRemoteVerifier_MatchesLocalSigner(t *testing.T) {
	key, _ := crypto.GenerateKey()
	chainID := big.NewInt(1337)
	contract := common.HexToAddress("0xbbbb000000000000000000000000000000bbbb")
	s := signer.NewLocalSigner(key, chainID, contract)
	v := signer.NewRemoteVerifier(chainID, contract)

	state := testState()
	sig, _ := s.Sign(state)

	recovered, err := v.Recover(state, sig)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered != s.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), s.Address().Hex())
	}
}

func TestRecover_RejectsShortSignature(t *testing.T) {
	v := signer.NewRemoteVerifier(big.NewInt(1337), common.HexToAddress("0xbbbb000000000000000000000000000000bbbb"))
	if _, err := v.Recover(testState(), []byte{1, 2, 3}); err == nil {
		t.Error("expected error for short signature")
	}
}

func TestDomainSeparator_ChangesAcrossContracts(t *testing.T) {
	key, _ := crypto.GenerateKey()
	chainID := big.NewInt(1337)
	s1 := signer.NewLocalSigner(key, chainID, common.HexToAddress("0xbbbb000000000000000000000000000000bbbb"))
	s2 := signer.NewLocalSigner(key, chainID, common.HexToAddress("0xcccc000000000000000000000000000000cccc"))

	state := testState()
	sig, _ := s1.Sign(state)

	recovered, err := s2.Recover(state, sig)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered == s1.Address() {
		t.Error("signature verified across a different verifying contract, want domain separation")
	}
}
