package fund

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/betbot/sharefund/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// ReceiptLookup 收益凭证发现结果。发现失败不是错误：Available=false 时基金照常运行，只是不计入场所余额。
type ReceiptLookup struct {
	Address   common.Address
	Available bool
	Err       error
}

// DiscoverReceipt 查询 asset 在 venue 上的收益凭证地址（getReserveData），失败被吞掉并记录在 Err 里
func DiscoverReceipt(ctx context.Context, venue YieldVenue, asset common.Address) ReceiptLookup {
	if venue == nil {
		return ReceiptLookup{Err: fmt.Errorf("no venue")}
	}
	addr, err := venue.ReserveReceipt(ctx, asset)
	if err != nil {
		return ReceiptLookup{Err: err}
	}
	if addr == (common.Address{}) {
		return ReceiptLookup{Err: fmt.Errorf("reserve %s has no receipt token", asset.Hex())}
	}
	return ReceiptLookup{Address: addr, Available: true}
}

// YieldOptions 收益策略参数
type YieldOptions struct {
	ReferralCode uint16
	// Receipt 非零时跳过自动发现
	Receipt common.Address
}

// YieldStrategy 把闲置资金存入外部借贷市场：
// 权益 = 账户余额 + 场所凭证余额；买入后全额存入；赎回前只取出缺口部分。
type YieldStrategy struct {
	venue    YieldVenue
	referral uint16

	mu      sync.RWMutex
	receipt common.Address
}

// NewYieldStrategy 创建收益策略并尽力解析收益凭证地址
func NewYieldStrategy(ctx context.Context, venue YieldVenue, asset common.Address, opts YieldOptions) *YieldStrategy {
	s := &YieldStrategy{venue: venue, referral: opts.ReferralCode}
	if opts.Receipt != (common.Address{}) {
		s.receipt = opts.Receipt
		return s
	}
	lookup := DiscoverReceipt(ctx, venue, asset)
	if lookup.Available {
		s.receipt = lookup.Address
		fundLog.Infof("收益凭证已解析: %s", lookup.Address.Hex())
	} else {
		fundLog.Warnf("收益凭证不可用，权益只计账户余额（可稍后手动设置）: %v", lookup.Err)
	}
	return s
}

func (s *YieldStrategy) Name() string { return StrategyYield }

// Receipt 当前凭证地址
func (s *YieldStrategy) Receipt() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.receipt, s.receipt != (common.Address{})
}

// SetReceipt 替换凭证地址
func (s *YieldStrategy) SetReceipt(receipt common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipt = receipt
}

// VenueBalance 凭证余额（本金 + 应计利息）；未解析凭证时为 0
func (s *YieldStrategy) VenueBalance(ctx context.Context, h Holdings) (*big.Int, error) {
	receipt, ok := s.Receipt()
	if !ok {
		return new(big.Int), nil
	}
	bal, err := s.venue.ReceiptBalanceOf(ctx, receipt, h.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: receipt balance: %v", ErrVenueFailed, err)
	}
	return bal, nil
}

func (s *YieldStrategy) Equity(ctx context.Context, h Holdings) (*big.Int, error) {
	onHand, err := h.Asset.BalanceOf(ctx, h.Account)
	if err != nil {
		return nil, err
	}
	inVenue, err := s.VenueBalance(ctx, h)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(onHand, inVenue), nil
}

// AfterBuy 把账户余额 100% 存入场所
func (s *YieldStrategy) AfterBuy(ctx context.Context, h Holdings) error {
	if _, ok := s.Receipt(); !ok {
		// 没有凭证就无法计量场所余额，存进去的钱会从权益里“消失”
		fundLog.Warn("收益凭证未解析，跳过存入")
		return nil
	}
	onHand, err := h.Asset.BalanceOf(ctx, h.Account)
	if err != nil {
		return err
	}
	if onHand.Sign() == 0 {
		return nil
	}
	if err := s.supply(ctx, h, onHand); err != nil {
		return err
	}
	metrics.VenueSweeps.Add(1)
	return nil
}

// BeforePayout 账户余额不足以支付时，只从场所取出缺口
func (s *YieldStrategy) BeforePayout(ctx context.Context, h Holdings, payout *big.Int) error {
	onHand, err := h.Asset.BalanceOf(ctx, h.Account)
	if err != nil {
		return err
	}
	if onHand.Cmp(payout) >= 0 {
		return nil
	}
	shortfall := new(big.Int).Sub(payout, onHand)
	if _, err := s.withdraw(ctx, h, shortfall); err != nil {
		return err
	}
	metrics.VenueWithdrawals.Add(1)
	return nil
}

// DepositToVenue 手动存入
func (s *YieldStrategy) DepositToVenue(ctx context.Context, h Holdings, amount *big.Int) error {
	if _, ok := s.Receipt(); !ok {
		return fmt.Errorf("%w: receipt token not resolved", ErrVenueFailed)
	}
	return s.supply(ctx, h, amount)
}

// WithdrawFromVenue 手动取出
func (s *YieldStrategy) WithdrawFromVenue(ctx context.Context, h Holdings, amount *big.Int) (*big.Int, error) {
	return s.withdraw(ctx, h, amount)
}

func (s *YieldStrategy) supply(ctx context.Context, h Holdings, amount *big.Int) error {
	if err := h.Asset.Approve(ctx, s.venue.Address(), amount); err != nil {
		return fmt.Errorf("%w: approve venue: %v", ErrTransferFailed, err)
	}
	if err := s.venue.Supply(ctx, h.Asset.Address(), amount, h.Account, s.referral); err != nil {
		return fmt.Errorf("%w: supply %s: %v", ErrVenueFailed, amount, err)
	}
	return nil
}

func (s *YieldStrategy) withdraw(ctx context.Context, h Holdings, amount *big.Int) (*big.Int, error) {
	got, err := s.venue.Withdraw(ctx, h.Asset.Address(), amount, h.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: withdraw %s: %v", ErrVenueFailed, amount, err)
	}
	if got == nil || got.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: asked %s, got %v", ErrVenueShortfall, amount, got)
	}
	return got, nil
}

var (
	_ Strategy     = (*YieldStrategy)(nil)
	_ VenueManager = (*YieldStrategy)(nil)
	_ Strategy     = (*HoldStrategy)(nil)
)
