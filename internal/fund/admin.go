package fund

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/betbot/sharefund/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// 管理接口：仅 owner 可调用，和买卖一样经过 guard。

func (f *Fund) onlyOwner(caller common.Address) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if caller != f.state.Owner {
		return ErrNotOwner
	}
	return nil
}

func (f *Fund) setParam(ctx context.Context, caller common.Address, name string, apply func(st *State) (oldV, newV string, err error)) error {
	return f.execute(ctx, "set_"+name, func(tx *opTx) error {
		if err := f.onlyOwner(caller); err != nil {
			return err
		}
		f.mu.Lock()
		oldV, newV, err := apply(&f.state)
		f.mu.Unlock()
		if err != nil {
			return err
		}
		fundLog.WithField("param", name).Infof("参数变更: %s -> %s", oldV, newV)
		tx.emit(&ParamChangedEvent{Meta: newMeta(EventParamChanged), Param: name, OldValue: oldV, NewValue: newV})
		return nil
	})
}

// SetMinInvestment 设置最小投资额
func (f *Fund) SetMinInvestment(ctx context.Context, caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: min investment must be non-negative", ErrZeroAmount)
	}
	return f.setParam(ctx, caller, "min_investment", func(st *State) (string, string, error) {
		old := st.MinInvestment.String()
		st.MinInvestment = new(big.Int).Set(amount)
		return old, amount.String(), nil
	})
}

// SetBuyFee 设置买入费率（bps，≤1000）
func (f *Fund) SetBuyFee(ctx context.Context, caller common.Address, bps uint16) error {
	if bps > MaxFeeBps {
		return fmt.Errorf("%w: buy fee %d > %d", ErrFeeTooHigh, bps, MaxFeeBps)
	}
	return f.setParam(ctx, caller, "buy_fee_bps", func(st *State) (string, string, error) {
		old := st.BuyFeeBps
		st.BuyFeeBps = bps
		return strconv.Itoa(int(old)), strconv.Itoa(int(bps)), nil
	})
}

// SetSellFee 设置卖出费率（bps，≤1000）
func (f *Fund) SetSellFee(ctx context.Context, caller common.Address, bps uint16) error {
	if bps > MaxFeeBps {
		return fmt.Errorf("%w: sell fee %d > %d", ErrFeeTooHigh, bps, MaxFeeBps)
	}
	return f.setParam(ctx, caller, "sell_fee_bps", func(st *State) (string, string, error) {
		old := st.SellFeeBps
		st.SellFeeBps = bps
		return strconv.Itoa(int(old)), strconv.Itoa(int(bps)), nil
	})
}

// SetFeeCollector 设置手续费接收地址
func (f *Fund) SetFeeCollector(ctx context.Context, caller common.Address, collector common.Address) error {
	if collector == (common.Address{}) {
		return ErrZeroAddress
	}
	return f.setParam(ctx, caller, "fee_collector", func(st *State) (string, string, error) {
		old := st.FeeCollector
		st.FeeCollector = collector
		return old.Hex(), collector.Hex(), nil
	})
}

// TransferOwnership 转移 owner
func (f *Fund) TransferOwnership(ctx context.Context, caller common.Address, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return ErrZeroAddress
	}
	return f.setParam(ctx, caller, "owner", func(st *State) (string, string, error) {
		old := st.Owner
		st.Owner = newOwner
		return old.Hex(), newOwner.Hex(), nil
	})
}

// SetReceiptToken 手动设置收益凭证地址（自动发现失败时使用）
func (f *Fund) SetReceiptToken(ctx context.Context, caller common.Address, receipt common.Address) error {
	vm, ok := f.strategy.(VenueManager)
	if !ok {
		return ErrVenueUnsupported
	}
	if receipt == (common.Address{}) {
		return ErrZeroAddress
	}
	return f.execute(ctx, "set_receipt", func(tx *opTx) error {
		if err := f.onlyOwner(caller); err != nil {
			return err
		}
		old, _ := vm.Receipt()
		vm.SetReceipt(receipt)
		tx.emit(&ParamChangedEvent{Meta: newMeta(EventParamChanged), Param: "receipt", OldValue: old.Hex(), NewValue: receipt.Hex()})
		return nil
	})
}

// DepositToVenue 手动把基金账户上的 amount 存入收益场所
func (f *Fund) DepositToVenue(ctx context.Context, caller common.Address, amount *big.Int) error {
	vm, ok := f.strategy.(VenueManager)
	if !ok {
		return ErrVenueUnsupported
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return f.execute(ctx, "venue_deposit", func(tx *opTx) error {
		if err := f.onlyOwner(caller); err != nil {
			return err
		}
		if err := vm.DepositToVenue(ctx, f.holdings(), amount); err != nil {
			return err
		}
		metrics.VenueSweeps.Add(1)
		tx.emit(&VenueEvent{Meta: newMeta(EventVenue), Action: "deposit", Amount: new(big.Int).Set(amount)})
		return nil
	})
}

// WithdrawFromVenue 手动从收益场所取回 amount 到基金账户
func (f *Fund) WithdrawFromVenue(ctx context.Context, caller common.Address, amount *big.Int) (*big.Int, error) {
	vm, ok := f.strategy.(VenueManager)
	if !ok {
		return nil, ErrVenueUnsupported
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	var withdrawn *big.Int
	err := f.execute(ctx, "venue_withdraw", func(tx *opTx) error {
		if err := f.onlyOwner(caller); err != nil {
			return err
		}
		got, err := vm.WithdrawFromVenue(ctx, f.holdings(), amount)
		if err != nil {
			return err
		}
		withdrawn = got
		metrics.VenueWithdrawals.Add(1)
		tx.emit(&VenueEvent{Meta: newMeta(EventVenue), Action: "withdraw", Amount: cloneInt(got)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}
