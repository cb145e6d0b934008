package fund

import (
	"context"
	"fmt"
	"math/big"

	"github.com/betbot/sharefund/internal/metrics"
	"github.com/betbot/sharefund/pkg/sharemath"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// BuyResult 买入结果
type BuyResult struct {
	Amount       *big.Int `json:"amount"`
	Fee          *big.Int `json:"fee"`
	EquityChange *big.Int `json:"equity_change"`
	SharesMinted *big.Int `json:"shares_minted"`
	SharePrice   *big.Int `json:"share_price"`
}

// SellResult 卖出结果
type SellResult struct {
	SharesBurned *big.Int `json:"shares_burned"`
	AmountToPay  *big.Int `json:"amount_to_pay"`
	Fee          *big.Int `json:"fee"`
	AmountPaid   *big.Int `json:"amount_paid"`
	SharePrice   *big.Int `json:"share_price"`
	// FeeRetained 手续费转出失败、留在基金内（仅非原子协作方）
	FeeRetained  bool     `json:"fee_retained,omitempty"`
}

// BuyShares 存入 amount 单位资产换取份额。
//
// 份额按“实际权益增量”定价：先快照权益，拉取资金后重新测量，
// 用到账差值扣掉买入费（而非名义金额）计算铸造数量。
func (f *Fund) BuyShares(ctx context.Context, caller common.Address, amount *big.Int) (*BuyResult, error) {
	if caller == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	amount = new(big.Int).Set(amount)

	var res *BuyResult
	err := f.execute(ctx, "buy", func(tx *opTx) error {
		p := f.Params()
		if amount.Cmp(p.MinInvestment) < 0 {
			return fmt.Errorf("%w: %s < %s", ErrBelowMinInvestment, amount, p.MinInvestment)
		}
		fee, err := sharemath.Fee(amount, p.BuyFeeBps)
		if err != nil {
			return err
		}

		h := f.holdings()
		equityBefore, err := f.strategy.Equity(ctx, h)
		if err != nil {
			return fmt.Errorf("measure equity before buy: %w", err)
		}

		if err := f.asset.TransferFrom(ctx, caller, f.account, amount); err != nil {
			return fmt.Errorf("%w: pull %s from %s: %v", ErrTransferFailed, amount, caller.Hex(), err)
		}
		// 非原子协作方：买入费转出之前的任何失败都全额退回
		refund := new(big.Int).Set(amount)
		tx.onRollback(func(ctx context.Context) error {
			if refund.Sign() == 0 {
				return nil
			}
			return f.asset.Transfer(ctx, caller, refund)
		})

		// 权益增量 = 实际到账 - 买入费。
		// 所有可能失败的计算都放在买入费转出之前，费用一旦转出就不再有失败分支。
		equityPulled, err := f.strategy.Equity(ctx, h)
		if err != nil {
			return fmt.Errorf("measure equity after pull: %w", err)
		}
		equityChange := new(big.Int).Sub(equityPulled, equityBefore)
		equityChange.Sub(equityChange, fee)
		if equityChange.Sign() <= 0 {
			return fmt.Errorf("%w: before=%s after=%s fee=%s", ErrNoEquityChange, equityBefore, equityPulled, fee)
		}

		f.mu.RLock()
		minted, newPrice, err := sharemath.SharesToMintAndPrice(equityChange, equityBefore, f.state.TotalShares, f.state.LastSharePrice, f.state.Decimals)
		last := cloneInt(f.state.LastSharePrice)
		f.mu.RUnlock()
		if err != nil {
			return err
		}
		if minted.Sign() == 0 {
			return ErrNothingMinted
		}
		newPrice = positivePrice(newPrice, last)

		if fee.Sign() > 0 {
			if err := f.asset.Transfer(ctx, p.FeeCollector, fee); err != nil {
				return fmt.Errorf("%w: buy fee to %s: %v", ErrTransferFailed, p.FeeCollector.Hex(), err)
			}
			refund.Sub(refund, fee)
		}

		f.mu.Lock()
		f.state.LastSharePrice = newPrice
		f.state.SharesOf[caller] = new(big.Int).Add(zeroIfNil(f.state.SharesOf[caller]), minted)
		f.state.TotalShares = new(big.Int).Add(f.state.TotalShares, minted)
		f.mu.Unlock()

		if err := f.strategy.AfterBuy(ctx, h); err != nil {
			if tx.atomic {
				return err
			}
			// 份额已铸造、费用已转出：存入失败只是资金留在账户，权益不变，不能再回滚
			metrics.VenueSweepFailures.Add(1)
			fundLog.WithField("holder", caller.Hex()).Warnf("买入后存入收益场所失败，资金留在账户: %v", err)
		}

		res = &BuyResult{
			Amount:       amount,
			Fee:          fee,
			EquityChange: equityChange,
			SharesMinted: minted,
			SharePrice:   cloneInt(newPrice),
		}
		tx.emit(&DepositEvent{
			Meta:         newMeta(EventDeposit),
			Holder:       caller,
			Amount:       amount,
			SharesMinted: cloneInt(minted),
			EquityChange: cloneInt(equityChange),
			Fee:          cloneInt(fee),
			SharePrice:   cloneInt(newPrice),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.BuysTotal.Add(1)
	fundLog.WithFields(logrus.Fields{
		"holder": caller.Hex(),
		"amount": res.Amount.String(),
		"fee":    res.Fee.String(),
		"minted": res.SharesMinted.String(),
		"price":  res.SharePrice.String(),
	}).Info("买入份额")
	return res, nil
}

// SellShares 赎回份额。
//
// 价格取本次操作内实时测得的权益；状态（份额、总份额、价格）在任何资产转出之前落定。
func (f *Fund) SellShares(ctx context.Context, caller common.Address, shares *big.Int) (*SellResult, error) {
	if caller == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroShares
	}
	shares = new(big.Int).Set(shares)

	var res *SellResult
	err := f.execute(ctx, "sell", func(tx *opTx) error {
		if bal := f.SharesBalance(caller); bal.Cmp(shares) < 0 {
			return fmt.Errorf("%w: have %s, want %s", ErrInsufficientShares, bal, shares)
		}
		p := f.Params()

		h := f.holdings()
		equity, err := f.strategy.Equity(ctx, h)
		if err != nil {
			return fmt.Errorf("measure equity before sell: %w", err)
		}

		f.mu.RLock()
		total, last, d := cloneInt(f.state.TotalShares), cloneInt(f.state.LastSharePrice), f.state.Decimals
		f.mu.RUnlock()

		price, err := sharemath.SharePrice(equity, total, last, d)
		if err != nil {
			return err
		}
		amountToPay, newPrice, err := sharemath.RedemptionAmountAndPrice(shares, equity, total, price, d)
		if err != nil {
			return err
		}
		newPrice = positivePrice(newPrice, last)

		if err := f.strategy.BeforePayout(ctx, h, amountToPay); err != nil {
			return err
		}

		fee, err := sharemath.Fee(amountToPay, p.SellFeeBps)
		if err != nil {
			return err
		}
		net := new(big.Int).Sub(amountToPay, fee)

		f.mu.Lock()
		f.state.LastSharePrice = newPrice
		remaining := new(big.Int).Sub(f.state.SharesOf[caller], shares)
		if remaining.Sign() == 0 {
			delete(f.state.SharesOf, caller)
		} else {
			f.state.SharesOf[caller] = remaining
		}
		f.state.TotalShares = new(big.Int).Sub(f.state.TotalShares, shares)
		f.mu.Unlock()

		// 先付持有人再付手续费：付款失败时手续费还没转出，整次操作可以干净中止
		if net.Sign() > 0 {
			if err := f.asset.Transfer(ctx, caller, net); err != nil {
				return fmt.Errorf("%w: payout %s to %s: %v", ErrTransferFailed, net, caller.Hex(), err)
			}
		}
		feeRetained := false
		if fee.Sign() > 0 {
			if err := f.asset.Transfer(ctx, p.FeeCollector, fee); err != nil {
				if tx.atomic {
					return fmt.Errorf("%w: sell fee to %s: %v", ErrTransferFailed, p.FeeCollector.Hex(), err)
				}
				// 持有人已收款，无法撤回；手续费留在基金里归剩余持有人
				feeRetained = true
				metrics.FeeTransferFailures.Add(1)
				fundLog.WithField("collector", p.FeeCollector.Hex()).Errorf("卖出手续费转出失败，留在基金内: %v", err)
			}
		}

		res = &SellResult{
			SharesBurned: shares,
			AmountToPay:  amountToPay,
			Fee:          fee,
			AmountPaid:   net,
			SharePrice:   cloneInt(newPrice),
			FeeRetained:  feeRetained,
		}
		tx.emit(&WithdrawalEvent{
			Meta:         newMeta(EventWithdrawal),
			Holder:       caller,
			SharesBurned: cloneInt(shares),
			AmountToPay:  cloneInt(amountToPay),
			Fee:          cloneInt(fee),
			AmountPaid:   cloneInt(net),
			SharePrice:   cloneInt(newPrice),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.SellsTotal.Add(1)
	fundLog.WithFields(logrus.Fields{
		"holder": caller.Hex(),
		"shares": res.SharesBurned.String(),
		"paid":   res.AmountPaid.String(),
		"fee":    res.Fee.String(),
		"price":  res.SharePrice.String(),
	}).Info("赎回份额")
	return res, nil
}

// positivePrice 重算价格为 0（权益亏损后向下取整）时沿用上次价格，回退价格始终为正
func positivePrice(price, last *big.Int) *big.Int {
	if price.Sign() > 0 || last == nil || last.Sign() <= 0 {
		return price
	}
	return new(big.Int).Set(last)
}
