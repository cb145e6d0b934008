package fund

import (
	"context"
	"math/big"
)

const (
	StrategyHold  = "hold"
	StrategyYield = "yield"
)

// HoldStrategy 资金全部留在基金账户，权益 = 账户余额
type HoldStrategy struct{}

// NewHoldStrategy 创建持有策略
func NewHoldStrategy() *HoldStrategy { return &HoldStrategy{} }

func (s *HoldStrategy) Name() string { return StrategyHold }

func (s *HoldStrategy) Equity(ctx context.Context, h Holdings) (*big.Int, error) {
	return h.Asset.BalanceOf(ctx, h.Account)
}

func (s *HoldStrategy) AfterBuy(context.Context, Holdings) error { return nil }

func (s *HoldStrategy) BeforePayout(context.Context, Holdings, *big.Int) error { return nil }
