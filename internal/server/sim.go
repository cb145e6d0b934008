package server

import (
	"context"
	"math/big"
	"net/http"

	"github.com/betbot/sharefund/internal/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// Faucet 模拟模式下给账户发币、推动收益场所计息
type Faucet interface {
	Mint(ctx context.Context, holder common.Address, amount *big.Int, approve bool) error
	Accrue(ctx context.Context, bps int64) error
}

// LedgerFaucet 基于内存账本的水龙头
type LedgerFaucet struct {
	Ledger *ledger.Ledger
	Asset  common.Address
	// Spender 铸币后授权给谁（基金账户）
	Spender common.Address
}

// Mint 铸币；approve=true 时在原授权额度上追加 amount
func (f *LedgerFaucet) Mint(ctx context.Context, holder common.Address, amount *big.Int, approve bool) error {
	if err := f.Ledger.Mint(f.Asset, holder, amount); err != nil {
		return err
	}
	if !approve {
		return nil
	}
	// Atomically 持有账本事务锁，避免与进行中的基金操作交错进入其撤销日志
	return f.Ledger.Atomically(func() error {
		allowed := new(big.Int).Add(f.Ledger.Allowance(f.Asset, holder, f.Spender), amount)
		return f.Ledger.Approve(ctx, f.Asset, holder, f.Spender, allowed)
	})
}

func (f *LedgerFaucet) Accrue(_ context.Context, bps int64) error {
	return f.Ledger.Accrue(f.Asset, bps)
}

type simMintRequest struct {
	Holder  string `json:"holder"`
	Amount  string `json:"amount"`
	Approve *bool  `json:"approve,omitempty"`
}

func (s *Server) handleSimMint(w http.ResponseWriter, r *http.Request) {
	var req simMintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holder, err := parseAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	approve := req.Approve == nil || *req.Approve
	if err := s.cfg.Faucet.Mint(r.Context(), holder, amount, approve); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holder": holder, "minted": s.amount(amount), "approved": approve})
}

type simAccrueRequest struct {
	Bps int64 `json:"bps"`
}

func (s *Server) handleSimAccrue(w http.ResponseWriter, r *http.Request) {
	var req simAccrueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.cfg.Faucet.Accrue(r.Context(), req.Bps); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accrued_bps": req.Bps})
}
