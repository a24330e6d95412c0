package settlement

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// These handlers expose the on-chain call surface (§6) as HTTP for a
// deployment with no real chain client wired in: an agent or relayer
// posts the same fields a chain transaction would carry, signed the
// same way, and Contract enforces the identical invariants either way.

type openChannelRequest struct {
	Agent  string `json:"agent"`
	Amount string `json:"amount"`
}

func (c *Contract) HandleOpenChannel(w http.ResponseWriter, r *http.Request) {
	var req openChannelRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeErr(w, "amount must be a base-10 wei integer", http.StatusBadRequest)
		return
	}
	ch, err := c.OpenChannel(common.HexToAddress(req.Agent), amount)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ch)
}

type fundHouseSideRequest struct {
	Agent  string `json:"agent"`
	Amount string `json:"amount"`
}

func (c *Contract) HandleFundHouseSide(w http.ResponseWriter, r *http.Request) {
	var req fundHouseSideRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeErr(w, "amount must be a base-10 wei integer", http.StatusBadRequest)
		return
	}
	ch, err := c.FundHouseSide(common.HexToAddress(req.Agent), amount)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

type signedStateRequest struct {
	Agent        string `json:"agent"`
	AgentBalance string `json:"agentBalance"`
	HouseBalance string `json:"houseBalance"`
	Nonce        uint64 `json:"nonce"`
	Signature    string `json:"signature"` // hex-encoded, 0x-prefixed
}

func (req *signedStateRequest) parse() (common.Address, *big.Int, *big.Int, []byte, error) {
	agentBalance, ok := new(big.Int).SetString(req.AgentBalance, 10)
	if !ok {
		return common.Address{}, nil, nil, nil, errors.New("agentBalance must be a base-10 wei integer")
	}
	houseBalance, ok := new(big.Int).SetString(req.HouseBalance, 10)
	if !ok {
		return common.Address{}, nil, nil, nil, errors.New("houseBalance must be a base-10 wei integer")
	}
	sig, err := hexToBytes(req.Signature)
	if err != nil {
		return common.Address{}, nil, nil, nil, err
	}
	return common.HexToAddress(req.Agent), agentBalance, houseBalance, sig, nil
}

func (c *Contract) HandleCloseChannel(w http.ResponseWriter, r *http.Request) {
	var req signedStateRequest
	if !decode(w, r, &req) {
		return
	}
	agent, agentBalance, houseBalance, sig, err := req.parse()
	if err != nil {
		writeErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := c.CloseChannel(agent, agentBalance, houseBalance, req.Nonce, sig); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (c *Contract) HandleStartChallenge(w http.ResponseWriter, r *http.Request) {
	var req signedStateRequest
	if !decode(w, r, &req) {
		return
	}
	agent, agentBalance, houseBalance, sig, err := req.parse()
	if err != nil {
		writeErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	ch, err := c.StartChallenge(agent, agentBalance, houseBalance, req.Nonce, sig)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ch)
}

func (c *Contract) HandleCounterChallenge(w http.ResponseWriter, r *http.Request) {
	var req signedStateRequest
	if !decode(w, r, &req) {
		return
	}
	agent, agentBalance, houseBalance, sig, err := req.parse()
	if err != nil {
		writeErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	ch, err := c.CounterChallenge(agent, agentBalance, houseBalance, req.Nonce, sig)
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ch)
}

type agentRequest struct {
	Agent string `json:"agent"`
}

func (c *Contract) HandleResolveChallenge(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := c.ResolveChallenge(common.HexToAddress(req.Agent)); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (c *Contract) HandleEmergencyExit(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if !decode(w, r, &req) {
		return
	}
	if err := c.EmergencyExit(common.HexToAddress(req.Agent)); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "exited"})
}

func (c *Contract) HandleWithdrawPending(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := c.WithdrawPending(common.HexToAddress(req.Agent))
	if err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

type ownershipRequest struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner,omitempty"`
}

func (c *Contract) HandleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if !decode(w, r, &req) {
		return
	}
	if err := c.TransferOwnership(common.HexToAddress(req.Caller), common.HexToAddress(req.NewOwner)); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requested"})
}

func (c *Contract) HandleAcceptOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if !decode(w, r, &req) {
		return
	}
	if err := c.AcceptOwnership(common.HexToAddress(req.Caller)); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (c *Contract) HandleCancelTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if !decode(w, r, &req) {
		return
	}
	if err := c.CancelTransferOwnership(common.HexToAddress(req.Caller)); err != nil {
		writeSettlementError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// --- shared HTTP plumbing, same shape as engine/http.go's ---

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeSettlementError maps the sentinel errors this package returns to
// an HTTP status. Unlike engine's apperror-categorized errors,
// settlement returns plain sentinels, so this switches on errors.Is
// directly instead of a taxonomy category.
func writeSettlementError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, ErrChannelNotFound), errors.Is(err, ErrNoPendingOwnerTransfer), errors.Is(err, ErrNoPendingWithdrawal):
		status = http.StatusNotFound
	case errors.Is(err, ErrChannelExists), errors.Is(err, ErrChannelNotOpen), errors.Is(err, ErrChannelNotDisputed),
		errors.Is(err, ErrChallengeDeadlineNotPassed), errors.Is(err, ErrChallengeDeadlinePassed),
		errors.Is(err, ErrEmergencyExitNotEligible), errors.Is(err, ErrOwnershipTransferBlocked),
		errors.Is(err, ErrOwnerTimelockNotElapsed):
		status = http.StatusConflict
	case errors.Is(err, ErrSignatureInvalid), errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrInvariantViolation):
		status = http.StatusInternalServerError
	case errors.Is(err, ErrStaleNonce), errors.Is(err, ErrDepositOutOfRange):
		status = http.StatusBadRequest
	}
	writeErr(w, err.Error(), status)
}

func hexToBytes(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		var b byte
		for j := 0; j < 2; j++ {
			c := s[i*2+j]
			b <<= 4
			switch {
			case c >= '0' && c <= '9':
				b |= c - '0'
			case c >= 'a' && c <= 'f':
				b |= c - 'a' + 10
			case c >= 'A' && c <= 'F':
				b |= c - 'A' + 10
			default:
				return nil, errors.New("signature must be a hex string")
			}
		}
		out[i] = b
	}
	if len(s)%2 != 0 {
		return nil, errors.New("signature hex string has odd length")
	}
	return out, nil
}
