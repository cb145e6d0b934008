package chain

import (
	"context"
	"math/big"

	"github.com/betbot/sharefund/internal/fund"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Token ERC20 句柄，写操作以 Transactor 的账户发起
type Token struct {
	address common.Address
	tx      *Transactor
}

// NewToken 绑定代币地址
func NewToken(address common.Address, tx *Transactor) *Token {
	return &Token{address: address, tx: tx}
}

func (t *Token) Address() common.Address { return t.address }

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	raw, err := t.tx.call(ctx, t.address, data)
	if err != nil {
		return 0, errors.Wrap(err, "decimals")
	}
	var d uint8
	if err := erc20ABI.UnpackIntoInterface(&d, "decimals", raw); err != nil {
		return 0, errors.Wrap(err, "unpack decimals")
	}
	return d, nil
}

func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return erc20Balance(ctx, t.tx, t.address, account)
}

// Allowance 查询授权
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	raw, err := t.tx.call(ctx, t.address, data)
	if err != nil {
		return nil, errors.Wrap(err, "allowance")
	}
	out := new(big.Int)
	if err := erc20ABI.UnpackIntoInterface(&out, "allowance", raw); err != nil {
		return nil, errors.Wrap(err, "unpack allowance")
	}
	return out, nil
}

func (t *Token) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return t.boolTx(ctx, "transfer", to, amount)
}

func (t *Token) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return t.boolTx(ctx, "transferFrom", from, to, amount)
}

func (t *Token) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	return t.boolTx(ctx, "approve", spender, amount)
}

// boolTx 先模拟：返回 false 视同失败（部分代币失败不 revert 而是返回 false）；无返回值的老代币按成功处理
func (t *Token) boolTx(ctx context.Context, method string, args ...interface{}) error {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return err
	}
	raw, err := t.tx.call(ctx, t.address, data)
	if err != nil {
		return errors.Wrapf(err, "simulate %s", method)
	}
	if len(raw) > 0 {
		var ok bool
		if err := erc20ABI.UnpackIntoInterface(&ok, method, raw); err != nil {
			return errors.Wrapf(err, "unpack %s", method)
		}
		if !ok {
			return errors.Wrapf(ErrCallFailed, "%s on %s", method, t.address.Hex())
		}
	}
	if _, err := t.tx.send(ctx, t.address, data); err != nil {
		return errors.Wrap(err, method)
	}
	return nil
}

func erc20Balance(ctx context.Context, tx *Transactor, token, account common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	raw, err := tx.call(ctx, token, data)
	if err != nil {
		return nil, errors.Wrap(err, "balanceOf")
	}
	out := new(big.Int)
	if err := erc20ABI.UnpackIntoInterface(&out, "balanceOf", raw); err != nil {
		return nil, errors.Wrap(err, "unpack balanceOf")
	}
	return out, nil
}

var _ fund.Asset = (*Token)(nil)
