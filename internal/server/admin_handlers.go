package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

type adminRequest struct {
	Amount  string `json:"amount,omitempty"`
	Bps     *int   `json:"bps,omitempty"`
	Address string `json:"address,omitempty"`
}

// owner 管理接口以当前 owner 身份调用（鉴权已由 X-Admin-Key 完成）
func (s *Server) owner() common.Address {
	return s.cfg.Fund.Params().Owner
}

func (s *Server) decodeAdminBps(w http.ResponseWriter, r *http.Request) (uint16, bool) {
	var req adminRequest
	if !decodeBody(w, r, &req) {
		return 0, false
	}
	if req.Bps == nil || *req.Bps < 0 || *req.Bps > 0xffff {
		writeError(w, http.StatusBadRequest, "bps is required")
		return 0, false
	}
	return uint16(*req.Bps), true
}

func (s *Server) decodeAdminAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	var req adminRequest
	if !decodeBody(w, r, &req) {
		return common.Address{}, false
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return common.Address{}, false
	}
	return addr, true
}

func (s *Server) handleSetMinInvestment(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cfg.Fund.SetMinInvestment(r.Context(), s.owner(), amount); err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Fund.Params())
}

func (s *Server) handleSetBuyFee(w http.ResponseWriter, r *http.Request) {
	bps, ok := s.decodeAdminBps(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Fund.SetBuyFee(r.Context(), s.owner(), bps); err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Fund.Params())
}

func (s *Server) handleSetSellFee(w http.ResponseWriter, r *http.Request) {
	bps, ok := s.decodeAdminBps(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Fund.SetSellFee(r.Context(), s.owner(), bps); err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Fund.Params())
}

func (s *Server) handleSetFeeCollector(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.decodeAdminAddress(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Fund.SetFeeCollector(r.Context(), s.owner(), addr); err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Fund.Params())
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.decodeAdminAddress(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Fund.TransferOwnership(r.Context(), s.owner(), addr); err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Fund.Params())
}

func (s *Server) handleSetReceipt(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.decodeAdminAddress(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Fund.SetReceiptToken(r.Context(), s.owner(), addr); err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"receipt": addr.Hex()})
}

func (s *Server) handleVenueDeposit(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cfg.Fund.DepositToVenue(r.Context(), s.owner(), amount); err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deposited": s.amount(amount)})
}

func (s *Server) handleVenueWithdraw(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := s.parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	got, err := s.cfg.Fund.WithdrawFromVenue(r.Context(), s.owner(), amount)
	if err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"withdrawn": s.amount(got)})
}
