package fund

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State 基金全部可持久化状态（相当于合约存储）
type State struct {
	Decimals       uint8                       `json:"decimals"`
	TotalShares    *big.Int                    `json:"total_shares"`
	LastSharePrice *big.Int                    `json:"last_share_price"`
	SharesOf       map[common.Address]*big.Int `json:"shares_of"`
	MinInvestment  *big.Int                    `json:"min_investment"`
	BuyFeeBps      uint16                      `json:"buy_fee_bps"`
	SellFeeBps     uint16                      `json:"sell_fee_bps"`
	FeeCollector   common.Address              `json:"fee_collector"`
	Owner          common.Address              `json:"owner"`
	// Receipt 收益凭证地址（仅 yield 策略）
	Receipt common.Address `json:"receipt,omitempty"`
}

// Clone 深拷贝
func (s State) Clone() State {
	out := s
	out.TotalShares = cloneInt(s.TotalShares)
	out.LastSharePrice = cloneInt(s.LastSharePrice)
	out.MinInvestment = cloneInt(s.MinInvestment)
	out.SharesOf = make(map[common.Address]*big.Int, len(s.SharesOf))
	for k, v := range s.SharesOf {
		out.SharesOf[k] = cloneInt(v)
	}
	return out
}

// Validate 校验恢复进来的状态：份额守恒、价格为正、费率在界内
func (s State) Validate() error {
	if s.TotalShares == nil || s.TotalShares.Sign() < 0 {
		return fmt.Errorf("%w: total shares", ErrInvalidState)
	}
	if s.LastSharePrice == nil || s.LastSharePrice.Sign() <= 0 {
		return fmt.Errorf("%w: last share price must be positive", ErrInvalidState)
	}
	if s.MinInvestment == nil || s.MinInvestment.Sign() < 0 {
		return fmt.Errorf("%w: min investment", ErrInvalidState)
	}
	if s.BuyFeeBps > MaxFeeBps || s.SellFeeBps > MaxFeeBps {
		return fmt.Errorf("%w: %w", ErrInvalidState, ErrFeeTooHigh)
	}
	if s.FeeCollector == (common.Address{}) || s.Owner == (common.Address{}) {
		return fmt.Errorf("%w: %w", ErrInvalidState, ErrZeroAddress)
	}
	sum := new(big.Int)
	for holder, bal := range s.SharesOf {
		if bal == nil || bal.Sign() < 0 {
			return fmt.Errorf("%w: balance of %s", ErrInvalidState, holder.Hex())
		}
		sum.Add(sum, bal)
	}
	if sum.Cmp(s.TotalShares) != 0 {
		return fmt.Errorf("%w: holder balances sum %s != total shares %s", ErrInvalidState, sum, s.TotalShares)
	}
	return nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
