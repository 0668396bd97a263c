package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"stakepool/native/staking"
)

type chargeParams struct {
	Funder string `json:"funder"`
	Amount string `json:"amount"`
}

type stakeParams struct {
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

type addressParams struct {
	Address string `json:"address"`
}

type evacuateParams struct {
	Asset     string `json:"asset"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type claimResult struct {
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
}

type withdrawResult struct {
	Principal string `json:"principal"`
}

type positionResult struct {
	Principal string `json:"principal"`
	StartTime int64  `json:"startTime"`
	Open      bool   `json:"open"`
}

type previewResult struct {
	Reward string `json:"reward"`
}

type poolInfoResult struct {
	StakedAsset          string `json:"stakedAsset"`
	TotalStaked          string `json:"totalStaked"`
	MinimumStake         string `json:"minimumStake"`
	DailyYieldRateScaled string `json:"dailyYieldRateScaled"`
	Mode                 string `json:"mode"`
	Locked               bool   `json:"locked"`
	Emergency            bool   `json:"emergency"`
}

func parseAmount(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return value, nil
}

func parseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(trimmed), nil
}

// decodeSingleParam enforces the one-parameter-object convention shared by
// every method.
func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params chargeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	funder, err := parseAddress(params.Funder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.run(w, req, "charge", func() (interface{}, error) {
		if err := s.engine.ChargeStaking(s.engine.Owner(), funder, amount); err != nil {
			return nil, err
		}
		return map[string]bool{"charged": true}, nil
	})
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params stakeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	depositor, err := parseAddress(params.Depositor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.run(w, req, "stake", func() (interface{}, error) {
		if err := s.engine.Stake(depositor, amount); err != nil {
			return nil, err
		}
		return map[string]bool{"staked": true}, nil
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	depositor, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.run(w, req, "claim", func() (interface{}, error) {
		principal, reward, err := s.engine.Claim(depositor)
		if err != nil {
			return nil, err
		}
		s.metrics.AddRewardPaid(reward)
		return claimResult{Principal: principal.String(), Reward: reward.String()}, nil
	})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	depositor, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.run(w, req, "emergencyWithdraw", func() (interface{}, error) {
		principal, err := s.engine.EmergencyWithdraw(depositor)
		if err != nil {
			return nil, err
		}
		return withdrawResult{Principal: principal.String()}, nil
	})
}

func (s *Server) handleDeclareEmergency(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	s.run(w, req, "declareEmergency", func() (interface{}, error) {
		if err := s.engine.DeclareEmergency(s.engine.Owner()); err != nil {
			return nil, err
		}
		return map[string]bool{"emergency": true}, nil
	})
}

func (s *Server) handleEvacuate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params evacuateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	asset, err := parseAddress(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	recipient, err := parseAddress(params.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.run(w, req, "evacuate", func() (interface{}, error) {
		if err := s.engine.Evacuate(s.engine.Owner(), asset, recipient, amount); err != nil {
			return nil, err
		}
		return map[string]bool{"evacuated": true}, nil
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.run(w, req, "position", func() (interface{}, error) {
		pos, err := s.engine.PositionOf(addr)
		if err != nil {
			return nil, err
		}
		return positionResult{
			Principal: pos.Principal.String(),
			StartTime: pos.StartTime,
			Open:      pos.Open(),
		}, nil
	})
}

func (s *Server) handlePreviewReward(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	s.run(w, req, "previewReward", func() (interface{}, error) {
		reward, err := s.engine.PreviewReward(addr)
		if err != nil {
			return nil, err
		}
		return previewResult{Reward: reward.String()}, nil
	})
}

func (s *Server) handlePoolInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	s.run(w, req, "poolInfo", func() (interface{}, error) {
		pool, err := s.engine.PoolInfo()
		if err != nil {
			return nil, err
		}
		s.metrics.SetTotalStaked(pool.TotalStaked)
		return poolInfoResult{
			StakedAsset:          pool.StakedAsset.Hex(),
			TotalStaked:          pool.TotalStaked.String(),
			MinimumStake:         pool.MinimumStake.String(),
			DailyYieldRateScaled: pool.DailyYieldRateScaled.String(),
			Mode:                 pool.Mode.String(),
			Locked:               pool.Mode.Locked(),
			Emergency:            pool.Mode.Emergency(),
		}, nil
	})
}

// run executes one ledger operation, recording metrics and translating
// engine failures into RPC errors.
func (s *Server) run(w http.ResponseWriter, req *RPCRequest, operation string, fn func() (interface{}, error)) {
	started := time.Now()
	result, err := fn()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveOperation(operation, outcome, time.Since(started).Seconds())

	if err != nil {
		status, code := classify(err)
		s.logger.Warn("ledger operation failed",
			"operation", operation, "error", err.Error())
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	if pool, perr := s.engine.PoolInfo(); perr == nil {
		s.metrics.SetTotalStaked(pool.TotalStaked)
	}
	writeResult(w, req.ID, result)
}

func classify(err error) (httpStatus, rpcCode int) {
	switch {
	case errors.Is(err, staking.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, staking.ErrInvalidConfig),
		errors.Is(err, staking.ErrBelowMinimum):
		return http.StatusBadRequest, codeInvalidParams
	default:
		return http.StatusOK, codeServerError
	}
}
