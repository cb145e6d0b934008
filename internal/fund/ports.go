package fund

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Asset 基础资产（ERC20 语义），视角固定为基金账户：
// Transfer/Approve 以基金账户为发起方，TransferFrom 以基金账户为 spender。
// 返回 error 即视为转账失败，整次操作中止。
type Asset interface {
	Address() common.Address
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, spender common.Address, amount *big.Int) error
}

// YieldVenue 外部借贷市场（Aave 风格 Pool）
type YieldVenue interface {
	Address() common.Address
	Supply(ctx context.Context, asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) error
	Withdraw(ctx context.Context, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error)
	// ReserveReceipt 对应 getReserveData(asset).aTokenAddress
	ReserveReceipt(ctx context.Context, asset common.Address) (common.Address, error)
	ReceiptBalanceOf(ctx context.Context, receipt, holder common.Address) (*big.Int, error)
}

// Atomic 由能整体回滚的协作方实现（内存账本）。
// fn 返回错误时，协作方必须撤销 fn 期间发生的全部余额变动。
type Atomic interface {
	Atomically(fn func() error) error
}

// Holdings 策略看到的基金账户视图
type Holdings struct {
	Asset   Asset
	Account common.Address
}

// Strategy 决定权益来源与买卖前后的资金调度
type Strategy interface {
	Name() string
	// Equity 每次调用都重新测量，不做跨操作缓存
	Equity(ctx context.Context, h Holdings) (*big.Int, error)
	AfterBuy(ctx context.Context, h Holdings) error
	BeforePayout(ctx context.Context, h Holdings, payout *big.Int) error
}

// VenueManager 带收益场所的策略额外提供的管理操作
type VenueManager interface {
	Receipt() (common.Address, bool)
	SetReceipt(receipt common.Address)
	VenueBalance(ctx context.Context, h Holdings) (*big.Int, error)
	DepositToVenue(ctx context.Context, h Holdings, amount *big.Int) error
	WithdrawFromVenue(ctx context.Context, h Holdings, amount *big.Int) (*big.Int, error)
}

// EventSink 接收已提交的基金事件；在操作互斥释放之后调用
type EventSink interface {
	HandleFundEvent(ev Event)
}

// StateSaver 每次成功变更后持久化状态快照
type StateSaver interface {
	SaveState(st State) error
}

// Pool 基金对外能力
type Pool interface {
	Equity(ctx context.Context) (*big.Int, error)
	SharePrice(ctx context.Context) (*big.Int, error)
	BuyShares(ctx context.Context, caller common.Address, amount *big.Int) (*BuyResult, error)
	SellShares(ctx context.Context, caller common.Address, shares *big.Int) (*SellResult, error)
	SharesBalance(holder common.Address) *big.Int
	SharesValue(ctx context.Context, holder common.Address) (*big.Int, error)
	LastSharePrice() *big.Int
	SetMinInvestment(ctx context.Context, caller common.Address, amount *big.Int) error
	SetBuyFee(ctx context.Context, caller common.Address, bps uint16) error
	SetSellFee(ctx context.Context, caller common.Address, bps uint16) error
	SetFeeCollector(ctx context.Context, caller common.Address, collector common.Address) error
}

var _ Pool = (*Fund)(nil)
