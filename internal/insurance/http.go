package insurance

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// HandleBalance reports the fund's current balance, used by monitoring
// and by the house to decide when to top it up via Deposit.
func (t *Treasury) HandleBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"balance": t.Balance().String()})
}

type withdrawalRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

func (t *Treasury) HandleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if !decode(w, r, &req) {
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeErr(w, "amount must be a base-10 wei integer", http.StatusBadRequest)
		return
	}
	if err := t.RequestWithdrawal(common.HexToAddress(req.Caller), common.HexToAddress(req.Recipient), amount); err != nil {
		writeInsuranceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (t *Treasury) HandleExecuteWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := t.ExecuteWithdrawal(common.HexToAddress(req.Caller))
	if err != nil {
		writeInsuranceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

func (t *Treasury) HandleCancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !decode(w, r, &req) {
		return
	}
	if err := t.CancelWithdrawal(common.HexToAddress(req.Caller)); err != nil {
		writeInsuranceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// --- shared HTTP plumbing, same shape as settlement/http.go's ---

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

func writeInsuranceError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, ErrNoPendingWithdrawal):
		status = http.StatusNotFound
	case errors.Is(err, ErrWithdrawalAlreadyQueued), errors.Is(err, ErrTimelockNotElapsed):
		status = http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrInsufficientFunds):
		status = http.StatusBadRequest
	}
	writeErr(w, err.Error(), status)
}
