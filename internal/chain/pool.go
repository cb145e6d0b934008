package chain

import (
	"context"
	"math/big"

	"github.com/betbot/sharefund/internal/fund"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Pool Aave v3 Pool 句柄
type Pool struct {
	address common.Address
	tx      *Transactor
}

// NewPool 绑定 Pool 地址
func NewPool(address common.Address, tx *Transactor) *Pool {
	return &Pool{address: address, tx: tx}
}

func (p *Pool) Address() common.Address { return p.address }

func (p *Pool) Supply(ctx context.Context, asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) error {
	data, err := poolABI.Pack("supply", asset, amount, onBehalfOf, referralCode)
	if err != nil {
		return err
	}
	if _, err := p.tx.send(ctx, p.address, data); err != nil {
		return errors.Wrap(err, "supply")
	}
	return nil
}

// Withdraw 先模拟拿到实际可取数量，再发送交易
func (p *Pool) Withdraw(ctx context.Context, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	data, err := poolABI.Pack("withdraw", asset, amount, to)
	if err != nil {
		return nil, err
	}
	raw, err := p.tx.call(ctx, p.address, data)
	if err != nil {
		return nil, errors.Wrap(err, "simulate withdraw")
	}
	got := new(big.Int)
	if err := poolABI.UnpackIntoInterface(&got, "withdraw", raw); err != nil {
		return nil, errors.Wrap(err, "unpack withdraw")
	}
	if _, err := p.tx.send(ctx, p.address, data); err != nil {
		return nil, errors.Wrap(err, "withdraw")
	}
	return got, nil
}

func (p *Pool) ReserveReceipt(ctx context.Context, asset common.Address) (common.Address, error) {
	data, err := poolABI.Pack("getReserveData", asset)
	if err != nil {
		return common.Address{}, err
	}
	raw, err := p.tx.call(ctx, p.address, data)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "getReserveData")
	}
	out, err := poolABI.Unpack("getReserveData", raw)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "unpack getReserveData")
	}
	if len(out) <= reserveATokenIndex {
		return common.Address{}, errors.Errorf("getReserveData: %d outputs", len(out))
	}
	addr, ok := out[reserveATokenIndex].(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("getReserveData: unexpected aTokenAddress type %T", out[reserveATokenIndex])
	}
	return addr, nil
}

func (p *Pool) ReceiptBalanceOf(ctx context.Context, receipt, holder common.Address) (*big.Int, error) {
	return erc20Balance(ctx, p.tx, receipt, holder)
}

var _ fund.YieldVenue = (*Pool)(nil)
