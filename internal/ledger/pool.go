package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RAY Aave 的 27 位定点
var RAY = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)

// PoolAddress 模拟借贷池地址
var PoolAddress = DeriveAddress("lending-pool")

// reserve 单个资产在借贷池里的储备：凭证余额 = scaled * index / RAY（随利息增长）
type reserve struct {
	asset   common.Address
	receipt common.Address
	index   *big.Int
	scaled  map[common.Address]*big.Int
}

// ListReserve 上架资产，返回其收益凭证地址
func (l *Ledger) ListReserve(asset common.Address) (common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.token(asset); err != nil {
		return common.Address{}, err
	}
	if r, ok := l.reserves[asset]; ok {
		return r.receipt, nil
	}
	r := &reserve{
		asset:   asset,
		receipt: DeriveAddress("receipt:" + asset.Hex()),
		index:   new(big.Int).Set(RAY),
		scaled:  make(map[common.Address]*big.Int),
	}
	l.reserves[asset] = r
	return r.receipt, nil
}

func (l *Ledger) setScaled(r *reserve, acct common.Address, v *big.Int) {
	old, had := r.scaled[acct]
	l.record(func() {
		if had {
			r.scaled[acct] = old
		} else {
			delete(r.scaled, acct)
		}
	})
	r.scaled[acct] = v
}

func (r *reserve) balanceOf(acct common.Address) *big.Int {
	s, ok := r.scaled[acct]
	if !ok {
		return new(big.Int)
	}
	v := new(big.Int).Mul(s, r.index)
	return v.Quo(v, RAY)
}

func (r *reserve) totalBalance() *big.Int {
	sum := new(big.Int)
	for acct := range r.scaled {
		sum.Add(sum, r.balanceOf(acct))
	}
	return sum
}

// Supply sender 存入 amount（需事先授权借贷池），凭证记到 onBehalfOf
func (l *Ledger) Supply(ctx context.Context, sender, asset common.Address, amount *big.Int, onBehalfOf common.Address) error {
	if err := l.trackCall(OpSupply); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reserves[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReserve, asset.Hex())
	}
	t, err := l.token(asset)
	if err != nil {
		return err
	}
	allowed := new(big.Int)
	if v, ok := t.allowances[sender][PoolAddress]; ok {
		allowed = v
	}
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: pool allowance %s < %s", ErrInsufficientAllow, allowed, amount)
	}
	if err := l.move(t, sender, PoolAddress, amount); err != nil {
		return err
	}
	l.setAllowance(t, sender, PoolAddress, new(big.Int).Sub(allowed, amount))

	add := new(big.Int).Mul(amount, RAY)
	add.Quo(add, r.index)
	cur := new(big.Int)
	if v, ok := r.scaled[onBehalfOf]; ok {
		cur = v
	}
	l.setScaled(r, onBehalfOf, new(big.Int).Add(cur, add))
	return nil
}

// Withdraw sender 取出 amount 到 to，返回实际取出数量
func (l *Ledger) Withdraw(ctx context.Context, sender, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	if err := l.trackCall(OpWithdraw); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reserves[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownReserve, asset.Hex())
	}
	t, err := l.token(asset)
	if err != nil {
		return nil, err
	}
	bal := r.balanceOf(sender)
	if bal.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: receipt balance %s < %s", ErrInsufficientBalance, bal, amount)
	}
	// scaled 扣减向上取整，舍入有利于池子
	burn := new(big.Int).Mul(amount, RAY)
	burn.Add(burn, new(big.Int).Sub(r.index, big.NewInt(1)))
	burn.Quo(burn, r.index)
	left := new(big.Int).Sub(r.scaled[sender], burn)
	if left.Sign() < 0 {
		left.SetInt64(0)
	}
	l.setScaled(r, sender, left)
	if err := l.move(t, PoolAddress, to, amount); err != nil {
		return nil, err
	}
	return new(big.Int).Set(amount), nil
}

// ReserveReceipt getReserveData(asset).aTokenAddress
func (l *Ledger) ReserveReceipt(ctx context.Context, asset common.Address) (common.Address, error) {
	if err := l.trackCall(OpReserveData); err != nil {
		return common.Address{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reserves[asset]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownReserve, asset.Hex())
	}
	return r.receipt, nil
}

// ReceiptBalanceOf 凭证余额（本金 + 利息）
func (l *Ledger) ReceiptBalanceOf(ctx context.Context, receipt, holder common.Address) (*big.Int, error) {
	if err := l.trackCall(OpReceiptBalance); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.reserves {
		if r.receipt == receipt {
			return r.balanceOf(holder), nil
		}
	}
	return nil, fmt.Errorf("%w: receipt %s", ErrUnknownReserve, receipt.Hex())
}

// Accrue 按 bps 增长储备利率指数（模拟被动收益），并给池子补足对应的底层资产
func (l *Ledger) Accrue(asset common.Address, bps int64) error {
	if bps < 0 {
		return ErrNegativeAmount
	}
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.reserves[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReserve, asset.Hex())
	}
	t, err := l.token(asset)
	if err != nil {
		return err
	}
	before := r.totalBalance()
	idx := new(big.Int).Mul(r.index, big.NewInt(10_000+bps))
	r.index = idx.Quo(idx, big.NewInt(10_000))
	interest := new(big.Int).Sub(r.totalBalance(), before)
	l.setBalance(t, PoolAddress, new(big.Int).Add(balanceOf(t, PoolAddress), interest))
	return nil
}
