package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/eigerco/blocksim/internal/crypto"
	"github.com/eigerco/blocksim/internal/pipeline"
	"github.com/eigerco/blocksim/pkg/log"
)

const maxBodyBytes = 1 << 20

type stakeRequest struct {
	WalletID string  `json:"wallet_id"`
	Amount   float64 `json:"amount"`
}

type stakeResponse struct {
	Status string   `json:"status"`
	Amount *float64 `json:"amount,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

type walletResponse struct {
	WalletID string   `json:"wallet_id"`
	Balance  float64  `json:"balance"`
	Devices  []string `json:"devices"`
}

type latestBlockResponse struct {
	Height    uint64      `json:"height"`
	BlockHash crypto.Hash `json:"block_hash"`
	Logs      int         `json:"logs"`
	MinedAt   time.Time   `json:"mined_at"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.WalletID == "" {
		writeJSON(w, http.StatusBadRequest, stakeResponse{Status: "error", Reason: "missing_wallet_id"})
		return
	}
	if err := s.svc.Stake(req.WalletID, req.Amount); err != nil {
		writeJSON(w, http.StatusBadRequest, stakeResponse{Status: "error", Reason: "stake_failed"})
		return
	}
	writeJSON(w, http.StatusOK, stakeResponse{Status: "staked", Amount: &req.Amount})
}

func (s *Server) handleDeployFirmware(w http.ResponseWriter, r *http.Request) {
	var req pipeline.DeploymentRequest
	if !decode(w, r, &req) {
		return
	}
	res := s.deployer.Deploy(req)
	status := http.StatusOK
	if res.Error == pipeline.ReasonUnauthorizedDeployer {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, res)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SubmitRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.submitter.Submit(req))
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet_id"]
	writeJSON(w, http.StatusOK, walletResponse{
		WalletID: wallet,
		Balance:  s.svc.Balance(wallet),
		Devices:  s.svc.DevicesOf(wallet),
	})
}

func (s *Server) handleLatestBlock(w http.ResponseWriter, _ *http.Request) {
	b, ok, err := s.svc.LatestBlock()
	if err != nil {
		log.Server.Error().Err(err).Msg("failed to load latest block")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Status: "error", Error: "failed to load latest block"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Status: "error", Error: "no blocks mined"})
		return
	}
	writeJSON(w, http.StatusOK, latestBlockResponse{
		Height:    b.Height,
		BlockHash: b.Hash,
		Logs:      len(b.Logs),
		MinedAt:   b.MinedAt,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Status: "error", Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Server.Error().Err(err).Msg("failed to write response")
	}
}
