package engine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/agentcasino/engine/internal/apperror"
	"github.com/agentcasino/engine/internal/model"
	"github.com/agentcasino/engine/internal/weimath"
)

// OpenChannelRequest is the JSON body for POST /api/v1/channel/open.
type OpenChannelRequest struct {
	Agent        string `json:"agent"`
	AgentDeposit string `json:"agentDeposit"`
	HouseDeposit string `json:"houseDeposit"`
}

// HandleOpenChannel handles POST /api/v1/channel/open.
func (e *Engine) HandleOpenChannel(w http.ResponseWriter, r *http.Request) {
	var req OpenChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	agentDeposit, err := weimath.ToWei(req.AgentDeposit)
	if err != nil {
		writeError(w, "agentDeposit must be a decimal ether or integer wei amount", http.StatusBadRequest)
		return
	}
	houseDeposit, err := weimath.ToWei(req.HouseDeposit)
	if err != nil {
		writeError(w, "houseDeposit must be a decimal ether or integer wei amount", http.StatusBadRequest)
		return
	}

	snap, err := e.OpenChannel(common.HexToAddress(req.Agent), agentDeposit, houseDeposit)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// CloseChannelRequest is the JSON body for POST /api/v1/channel/close.
type CloseChannelRequest struct {
	Agent string `json:"agent"`
}

// HandleCloseChannel handles POST /api/v1/channel/close.
func (e *Engine) HandleCloseChannel(w http.ResponseWriter, r *http.Request) {
	var req CloseChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := e.CloseChannel(common.HexToAddress(req.Agent))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleChannelStatus handles GET /api/v1/channel/status?agent=0x...
func (e *Engine) HandleChannelStatus(w http.ResponseWriter, r *http.Request) {
	agentParam := r.URL.Query().Get("agent")
	if agentParam == "" {
		writeError(w, "agent query parameter is required", http.StatusBadRequest)
		return
	}

	snap, err := e.GetStatus(common.HexToAddress(agentParam))
	if err != nil {
		writeAppError(w, err)
		return
	}

	ok, err := e.InvariantOK(common.HexToAddress(agentParam))
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:       snap.Status,
		AgentBalance: snap.AgentBalance,
		HouseBalance: snap.CasinoBalance,
		Nonce:        snap.Nonce,
		GamesPlayed:  snap.GamesPlayed,
		InvariantOK:  ok,
	})
}

// statusResponse is the wire shape §6 names for channel_status:
// {status, agentBalance, houseBalance, nonce, gamesPlayed, invariantOk}.
type statusResponse struct {
	Status       model.ChannelState `json:"status"`
	AgentBalance string             `json:"agentBalance"`
	HouseBalance string             `json:"houseBalance"`
	Nonce        uint64             `json:"nonce"`
	GamesPlayed  int                `json:"gamesPlayed"`
	InvariantOK  bool               `json:"invariantOk"`
}

// HandleGameAction handles POST /api/v1/game/{game}/{action}.
func (e *Engine) HandleGameAction(w http.ResponseWriter, r *http.Request) {
	game := chi.URLParam(r, "game")
	action := chi.URLParam(r, "action")

	var body struct {
		Agent  string                 `json:"agent"`
		Params map[string]interface{} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if raw, ok := body.Params["bet"]; ok {
		str, ok := raw.(string)
		if !ok {
			writeError(w, "bet must be a decimal ether or integer wei string", http.StatusBadRequest)
			return
		}
		betWei, err := weimath.ToWei(str)
		if err != nil {
			writeError(w, "bet must be a decimal ether or integer wei string", http.StatusBadRequest)
			return
		}
		body.Params["bet"] = betWei.String()
	}

	route := game + "_" + action
	result, err := e.HandleAction(route, common.HexToAddress(body.Agent), body.Params)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleWebSocket handles GET /api/v1/ws.
func (e *Engine) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if e.hub == nil {
		writeError(w, "event stream not configured", http.StatusServiceUnavailable)
		return
	}
	e.hub.HandleWS(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps an apperror.Category to an HTTP status the way
// trade.Service.writeError mapped internal errors to JSON responses,
// replacing that function's string matching with a single switch over
// the taxonomy category.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch apperror.CategoryOf(err) {
	case apperror.Validation:
		status = http.StatusBadRequest
	case apperror.Policy:
		status = http.StatusConflict
	case apperror.Liveness:
		status = http.StatusGone
	case apperror.Integrity:
		status = http.StatusInternalServerError
	case apperror.Cryptographic:
		status = http.StatusUnauthorized
	case apperror.Transfer:
		status = http.StatusAccepted
	case apperror.Provider:
		status = http.StatusBadGateway
	}

	var appErr *apperror.Error
	msg := err.Error()
	if errors.As(err, &appErr) {
		msg = appErr.Error()
	}
	writeError(w, msg, status)
}
