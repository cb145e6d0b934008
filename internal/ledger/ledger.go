// Package ledger 内存链：ERC20 余额/授权 + Aave 风格借贷池，供模拟模式与测试使用。
// 顶层写事务可整体回滚（Atomically），用来模拟合约调用失败即 revert 的语义。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownToken        = errors.New("ledger: unknown token")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrInsufficientAllow   = errors.New("ledger: insufficient allowance")
	ErrUnknownReserve      = errors.New("ledger: reserve not listed")
	ErrNegativeAmount      = errors.New("ledger: negative amount")
)

// 可注入失败的操作名
const (
	OpBalanceOf      = "balanceOf"
	OpTransfer       = "transfer"
	OpTransferFrom   = "transferFrom"
	OpApprove        = "approve"
	OpSupply         = "supply"
	OpWithdraw       = "withdraw"
	OpReserveData    = "getReserveData"
	OpReceiptBalance = "receiptBalanceOf"
)

type tokenData struct {
	symbol     string
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// Ledger 内存账本
type Ledger struct {
	txMu sync.Mutex // 串行化顶层写事务（不可嵌套）

	mu       sync.Mutex
	tokens   map[common.Address]*tokenData
	reserves map[common.Address]*reserve // asset -> reserve
	inTx     bool
	journal  []func()

	// 失败注入（对齐 mock client 的 ErrorOnNext 用法）
	errorOnNext map[string]error
	calls       map[string]int
	hooks       []func(op string)
}

// New 创建空账本
func New() *Ledger {
	return &Ledger{
		tokens:      make(map[common.Address]*tokenData),
		reserves:    make(map[common.Address]*reserve),
		errorOnNext: make(map[string]error),
		calls:       make(map[string]int),
	}
}

// DeriveAddress 由标签确定性生成地址（模拟合约/账户地址）
func DeriveAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label)))
}

// CreateToken 部署一个 ERC20
func (l *Ledger) CreateToken(symbol string, decimals uint8) common.Address {
	addr := DeriveAddress("token:" + symbol)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tokens[addr]; !ok {
		l.tokens[addr] = &tokenData{
			symbol:     symbol,
			decimals:   decimals,
			balances:   make(map[common.Address]*big.Int),
			allowances: make(map[common.Address]map[common.Address]*big.Int),
		}
	}
	return addr
}

// FailNext 下一次 op 调用返回 err
func (l *Ledger) FailNext(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorOnNext[op] = err
}

// OnCall 注册调用钩子（在操作生效之前、不持锁调用）；测试用来模拟回调型攻击
func (l *Ledger) OnCall(fn func(op string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, fn)
}

// Calls 返回某操作被调用的次数
func (l *Ledger) Calls(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[op]
}

func (l *Ledger) trackCall(op string) error {
	l.mu.Lock()
	l.calls[op]++
	hooks := append([]func(string){}, l.hooks...)
	err, ok := l.errorOnNext[op]
	if ok {
		delete(l.errorOnNext, op)
	}
	l.mu.Unlock()
	for _, h := range hooks {
		h(op)
	}
	if ok {
		return err
	}
	return nil
}

// Atomically 顶层写事务：fn 出错时撤销期间的全部变动
func (l *Ledger) Atomically(fn func() error) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	l.mu.Lock()
	l.inTx = true
	l.journal = l.journal[:0]
	l.mu.Unlock()

	err := fn()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		for i := len(l.journal) - 1; i >= 0; i-- {
			l.journal[i]()
		}
	}
	l.inTx = false
	l.journal = nil
	return err
}

// record 在事务内记录撤销动作；调用方持有 mu
func (l *Ledger) record(undo func()) {
	if l.inTx {
		l.journal = append(l.journal, undo)
	}
}

func (l *Ledger) token(addr common.Address) (*tokenData, error) {
	t, ok := l.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
	}
	return t, nil
}

func (l *Ledger) setBalance(t *tokenData, acct common.Address, v *big.Int) {
	old, had := t.balances[acct]
	l.record(func() {
		if had {
			t.balances[acct] = old
		} else {
			delete(t.balances, acct)
		}
	})
	t.balances[acct] = v
}

func (l *Ledger) setAllowance(t *tokenData, owner, spender common.Address, v *big.Int) {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	old, had := m[spender]
	l.record(func() {
		if had {
			m[spender] = old
		} else {
			delete(m, spender)
		}
	})
	m[spender] = v
}

func balanceOf(t *tokenData, acct common.Address) *big.Int {
	if v, ok := t.balances[acct]; ok {
		return v
	}
	return new(big.Int)
}

func (l *Ledger) move(t *tokenData, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromBal := balanceOf(t, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal, t.symbol, amount)
	}
	l.setBalance(t, from, new(big.Int).Sub(fromBal, amount))
	l.setBalance(t, to, new(big.Int).Add(balanceOf(t, to), amount))
	return nil
}

// Mint 直接给账户铸币（水龙头）
func (l *Ledger) Mint(token, to common.Address, amount *big.Int) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.token(token)
	if err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.setBalance(t, to, new(big.Int).Add(balanceOf(t, to), amount))
	return nil
}

// BalanceOf 查询余额
func (l *Ledger) BalanceOf(ctx context.Context, token, acct common.Address) (*big.Int, error) {
	if err := l.trackCall(OpBalanceOf); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.token(token)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(balanceOf(t, acct)), nil
}

// Allowance 查询授权额度
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[token]
	if !ok {
		return new(big.Int)
	}
	if v, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// Decimals 精度
func (l *Ledger) Decimals(token common.Address) (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.token(token)
	if err != nil {
		return 0, err
	}
	return t.decimals, nil
}

// Transfer sender -> to
func (l *Ledger) Transfer(ctx context.Context, token, sender, to common.Address, amount *big.Int) error {
	if err := l.trackCall(OpTransfer); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.token(token)
	if err != nil {
		return err
	}
	return l.move(t, sender, to, amount)
}

// TransferFrom spender 代 from 转账，消耗授权
func (l *Ledger) TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error {
	if err := l.trackCall(OpTransferFrom); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.token(token)
	if err != nil {
		return err
	}
	allowed := new(big.Int)
	if v, ok := t.allowances[from][spender]; ok {
		allowed = v
	}
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s only %s", ErrInsufficientAllow, from.Hex(), spender.Hex(), allowed)
	}
	if err := l.move(t, from, to, amount); err != nil {
		return err
	}
	l.setAllowance(t, from, spender, new(big.Int).Sub(allowed, amount))
	return nil
}

// Approve owner 授权 spender
func (l *Ledger) Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error {
	if err := l.trackCall(OpApprove); err != nil {
		return err
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	t, err := l.token(token)
	if err != nil {
		return err
	}
	l.setAllowance(t, owner, spender, new(big.Int).Set(amount))
	return nil
}
