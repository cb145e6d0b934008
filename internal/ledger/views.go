package ledger

import (
	"context"
	"math/big"

	"github.com/betbot/sharefund/internal/fund"
	"github.com/ethereum/go-ethereum/common"
)

// AssetView 以某个账户为 msg.sender 的 ERC20 句柄，实现 fund.Asset 与 fund.Atomic
type AssetView struct {
	l      *Ledger
	token  common.Address
	sender common.Address
}

// Asset 返回 sender 视角的资产句柄
func (l *Ledger) Asset(token, sender common.Address) *AssetView {
	return &AssetView{l: l, token: token, sender: sender}
}

func (a *AssetView) Address() common.Address { return a.token }

func (a *AssetView) Decimals(context.Context) (uint8, error) { return a.l.Decimals(a.token) }

func (a *AssetView) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return a.l.BalanceOf(ctx, a.token, account)
}

func (a *AssetView) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return a.l.Transfer(ctx, a.token, a.sender, to, amount)
}

func (a *AssetView) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return a.l.TransferFrom(ctx, a.token, a.sender, from, to, amount)
}

func (a *AssetView) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	return a.l.Approve(ctx, a.token, a.sender, spender, amount)
}

func (a *AssetView) Atomically(fn func() error) error { return a.l.Atomically(fn) }

// PoolView 以某个账户为 msg.sender 的借贷池句柄，实现 fund.YieldVenue
type PoolView struct {
	l      *Ledger
	sender common.Address
}

// Pool 返回 sender 视角的借贷池句柄
func (l *Ledger) Pool(sender common.Address) *PoolView {
	return &PoolView{l: l, sender: sender}
}

func (p *PoolView) Address() common.Address { return PoolAddress }

func (p *PoolView) Supply(ctx context.Context, asset common.Address, amount *big.Int, onBehalfOf common.Address, _ uint16) error {
	return p.l.Supply(ctx, p.sender, asset, amount, onBehalfOf)
}

func (p *PoolView) Withdraw(ctx context.Context, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	return p.l.Withdraw(ctx, p.sender, asset, amount, to)
}

func (p *PoolView) ReserveReceipt(ctx context.Context, asset common.Address) (common.Address, error) {
	return p.l.ReserveReceipt(ctx, asset)
}

func (p *PoolView) ReceiptBalanceOf(ctx context.Context, receipt, holder common.Address) (*big.Int, error) {
	return p.l.ReceiptBalanceOf(ctx, receipt, holder)
}

var (
	_ fund.Asset      = (*AssetView)(nil)
	_ fund.Atomic     = (*AssetView)(nil)
	_ fund.YieldVenue = (*PoolView)(nil)
)
