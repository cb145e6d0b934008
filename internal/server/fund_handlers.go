package server

import (
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/betbot/sharefund/internal/journal"
	"github.com/betbot/sharefund/pkg/sharemath"
	"github.com/ethereum/go-ethereum/common"
)

// Amount 最小单位原值 + 展示值
type Amount struct {
	Raw     string `json:"raw"`
	Display string `json:"display"`
}

func (s *Server) amount(v *big.Int) Amount {
	if v == nil {
		v = new(big.Int)
	}
	return Amount{Raw: v.String(), Display: sharemath.FormatUnits(v, s.cfg.Fund.Decimals())}
}

// parseAmount 接受 "1.25" 这种十进制（按资产精度换算）
func (s *Server) parseAmount(v string) (*big.Int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, fmt.Errorf("amount is required")
	}
	return sharemath.ParseUnits(v, s.cfg.Fund.Decimals())
}

func parseAddress(v string) (common.Address, error) {
	v = strings.TrimSpace(v)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("invalid address %q", v)
	}
	return common.HexToAddress(v), nil
}

type FundStatus struct {
	Account        common.Address `json:"account"`
	Asset          common.Address `json:"asset"`
	Decimals       uint8          `json:"decimals"`
	Strategy       string         `json:"strategy"`
	Receipt        string         `json:"receipt,omitempty"`
	Equity         Amount         `json:"equity"`
	OnHand         Amount         `json:"on_hand"`
	InVenue        Amount         `json:"in_venue"`
	TotalShares    Amount         `json:"total_shares"`
	SharePrice     Amount         `json:"share_price"`
	LastSharePrice Amount         `json:"last_share_price"`
	MinInvestment  Amount         `json:"min_investment"`
	BuyFeeBps      uint16         `json:"buy_fee_bps"`
	SellFeeBps     uint16         `json:"sell_fee_bps"`
	FeeCollector   common.Address `json:"fee_collector"`
	Owner          common.Address `json:"owner"`
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	f := s.cfg.Fund
	ctx := r.Context()
	onHand, err := f.OnHand(ctx)
	if err != nil {
		writeFundError(w, err)
		return
	}
	inVenue, err := f.VenueBalance(ctx)
	if err != nil {
		writeFundError(w, err)
		return
	}
	equity, err := f.Equity(ctx)
	if err != nil {
		writeFundError(w, err)
		return
	}
	price, err := f.SharePrice(ctx)
	if err != nil {
		writeFundError(w, err)
		return
	}
	p := f.Params()
	st := FundStatus{
		Account:        f.Account(),
		Asset:          f.AssetAddress(),
		Decimals:       f.Decimals(),
		Strategy:       f.StrategyName(),
		Equity:         s.amount(equity),
		OnHand:         s.amount(onHand),
		InVenue:        s.amount(inVenue),
		TotalShares:    s.amount(f.TotalShares()),
		SharePrice:     s.amount(price),
		LastSharePrice: s.amount(f.LastSharePrice()),
		MinInvestment:  s.amount(p.MinInvestment),
		BuyFeeBps:      p.BuyFeeBps,
		SellFeeBps:     p.SellFeeBps,
		FeeCollector:   p.FeeCollector,
		Owner:          p.Owner,
	}
	if rc, ok := f.Receipt(); ok {
		st.Receipt = rc.Hex()
	}
	writeJSON(w, http.StatusOK, st)
}

type HolderStatus struct {
	Holder common.Address `json:"holder"`
	Shares Amount         `json:"shares"`
	Value  Amount         `json:"value"`
}

func (s *Server) handleHolder(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress(pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	value, err := s.cfg.Fund.SharesValue(r.Context(), holder)
	if err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HolderStatus{
		Holder: holder,
		Shares: s.amount(s.cfg.Fund.SharesBalance(holder)),
		Value:  s.amount(value),
	})
}

type buyRequest struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

type BuyResponse struct {
	Holder       common.Address `json:"holder"`
	Amount       Amount         `json:"amount"`
	Fee          Amount         `json:"fee"`
	EquityChange Amount         `json:"equity_change"`
	SharesMinted Amount         `json:"shares_minted"`
	SharePrice   Amount         `json:"share_price"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
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
	res, err := s.cfg.Fund.BuyShares(r.Context(), holder, amount)
	if err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BuyResponse{
		Holder:       holder,
		Amount:       s.amount(res.Amount),
		Fee:          s.amount(res.Fee),
		EquityChange: s.amount(res.EquityChange),
		SharesMinted: s.amount(res.SharesMinted),
		SharePrice:   s.amount(res.SharePrice),
	})
}

type sellRequest struct {
	Holder string `json:"holder"`
	Shares string `json:"shares"`
}

type SellResponse struct {
	Holder       common.Address `json:"holder"`
	SharesBurned Amount         `json:"shares_burned"`
	AmountToPay  Amount         `json:"amount_to_pay"`
	Fee          Amount         `json:"fee"`
	AmountPaid   Amount         `json:"amount_paid"`
	SharePrice   Amount         `json:"share_price"`
	FeeRetained  bool           `json:"fee_retained,omitempty"`
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holder, err := parseAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shares, err := s.parseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.cfg.Fund.SellShares(r.Context(), holder, shares)
	if err != nil {
		writeFundError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SellResponse{
		Holder:       holder,
		SharesBurned: s.amount(res.SharesBurned),
		AmountToPay:  s.amount(res.AmountToPay),
		Fee:          s.amount(res.Fee),
		AmountPaid:   s.amount(res.AmountPaid),
		SharePrice:   s.amount(res.SharePrice),
		FeeRetained:  res.FeeRetained,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	f := journal.EventFilter{
		Type:  r.URL.Query().Get("type"),
		Limit: queryLimit(r, 200),
	}
	if h := r.URL.Query().Get("holder"); h != "" {
		addr, err := parseAddress(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Holder = addr
	}
	events, err := s.cfg.Journal.ListEvents(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleEquitySnapshots(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	snaps, err := s.cfg.Journal.ListEquitySnapshots(r.Context(), queryLimit(r, 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}
