package sharemath

import (
	"errors"
	"math/big"
)

// 份额定价库：无状态、纯整数运算。
//
// 说明：
// - 所有金额/份额/价格均为 *big.Int（无符号 256 位语义），价格按 decimals 定点。
// - 所有除法向零取整；舍入产生的尘埃留在基金内（归剩余持有人），不归操作方。
// - 入参一律不修改，返回值均为新分配的 *big.Int。

// BpsDenominator 基点分母（10000 bps = 100%）
const BpsDenominator = 10_000

// MaxDecimals 10^decimals 必须能放进 256 位
const MaxDecimals = 77

var (
	ErrNegative           = errors.New("sharemath: negative value")
	ErrNilValue           = errors.New("sharemath: nil value")
	ErrZeroEquity         = errors.New("sharemath: shares outstanding but equity is zero")
	ErrSharesExceedSupply = errors.New("sharemath: shares exceed total supply")
	ErrFeeOutOfRange      = errors.New("sharemath: fee bps out of range")
	ErrDecimalsTooLarge   = errors.New("sharemath: decimals too large")
)

var bpsDen = big.NewInt(BpsDenominator)

// Pow10 返回 10^decimals
func Pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// CheckDecimals 校验精度可用
func CheckDecimals(decimals uint8) error {
	if decimals > MaxDecimals {
		return ErrDecimalsTooLarge
	}
	return nil
}

func checkNonNegative(vals ...*big.Int) error {
	for _, v := range vals {
		if v == nil {
			return ErrNilValue
		}
		if v.Sign() < 0 {
			return ErrNegative
		}
	}
	return nil
}

// mulDiv floor(a*b/c)，c 必须为正
func mulDiv(a, b, c *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// bootstrapPrice 空池定价：fallbackPrice 为 0 时退回 1:1（10^d）
func bootstrapPrice(fallbackPrice *big.Int, decimals uint8) *big.Int {
	if fallbackPrice.Sign() == 0 {
		return Pow10(decimals)
	}
	return new(big.Int).Set(fallbackPrice)
}

// SharePrice 计算当前份额价格。
// totalShares 为 0 时没有有意义的比例，返回 fallbackPrice（上次价格或初始 1:1 价格），
// 否则 equity * 10^d / totalShares。
func SharePrice(equity, totalShares, fallbackPrice *big.Int, decimals uint8) (*big.Int, error) {
	if err := checkNonNegative(equity, totalShares, fallbackPrice); err != nil {
		return nil, err
	}
	if totalShares.Sign() == 0 {
		return bootstrapPrice(fallbackPrice, decimals), nil
	}
	return mulDiv(equity, Pow10(decimals), totalShares), nil
}

// SharesToMintAndPrice 由实际权益增量计算应铸造份额与新价格。
//
// 驱动量是 equityChange（扣费、转账副作用之后重新测得的权益增量），
// 而不是投资人的名义投入金额。
//
//   - totalShares == 0：按 fallbackPrice 铸造 equityChange * 10^d / fallbackPrice，价格保持 fallbackPrice。
//     从未有过份额的基金 fallbackPrice 即 10^d，也就是 1 份 = 1 单位资产的冷启动；
//     fallbackPrice 为 0 时同样按 10^d 冷启动。
//   - 否则：shares = equityChange * totalShares / equityBefore，
//     newPrice = (equityBefore + equityChange) * 10^d / (totalShares + shares)。
func SharesToMintAndPrice(equityChange, equityBefore, totalShares, fallbackPrice *big.Int, decimals uint8) (shares, newPrice *big.Int, err error) {
	if err := checkNonNegative(equityChange, equityBefore, totalShares, fallbackPrice); err != nil {
		return nil, nil, err
	}
	unit := Pow10(decimals)
	if totalShares.Sign() == 0 {
		price := bootstrapPrice(fallbackPrice, decimals)
		return mulDiv(equityChange, unit, price), price, nil
	}
	if equityBefore.Sign() == 0 {
		return nil, nil, ErrZeroEquity
	}
	shares = mulDiv(equityChange, totalShares, equityBefore)
	equityAfter := new(big.Int).Add(equityBefore, equityChange)
	supplyAfter := new(big.Int).Add(totalShares, shares)
	newPrice = mulDiv(equityAfter, unit, supplyAfter)
	return shares, newPrice, nil
}

// RedemptionAmountAndPrice 计算赎回应付金额与赎回后的价格。
//
// equity 为赎回前测得的权益。amountToPay = shares * currentPrice / 10^d。
// 池子仍有剩余份额时，用剩余权益 (equity - amountToPay) 除以剩余份额重算价格；
// 全部赎回时保留 currentPrice 作为回退价格。
// 权益亏损后重算值可能为 0；调用方不得把 0 存为回退价格。
func RedemptionAmountAndPrice(shares, equity, totalShares, currentPrice *big.Int, decimals uint8) (amountToPay, newPrice *big.Int, err error) {
	if err := checkNonNegative(shares, equity, totalShares, currentPrice); err != nil {
		return nil, nil, err
	}
	if shares.Cmp(totalShares) > 0 {
		return nil, nil, ErrSharesExceedSupply
	}
	unit := Pow10(decimals)
	amountToPay = mulDiv(shares, currentPrice, unit)

	if totalShares.Cmp(shares) > 0 {
		remaining := new(big.Int).Sub(equity, amountToPay)
		if remaining.Sign() < 0 {
			// 价格来自同一权益读数时不会发生；外部传入陈旧价格时兜底为 0
			remaining.SetInt64(0)
		}
		supplyAfter := new(big.Int).Sub(totalShares, shares)
		return amountToPay, mulDiv(remaining, unit, supplyAfter), nil
	}
	return amountToPay, new(big.Int).Set(currentPrice), nil
}

// CheckFeeBps 校验费率（0..10000）
func CheckFeeBps(bps uint16) error {
	if bps > BpsDenominator {
		return ErrFeeOutOfRange
	}
	return nil
}

// Fee amount * bps / 10000（向下取整）
func Fee(amount *big.Int, bps uint16) (*big.Int, error) {
	if err := checkNonNegative(amount); err != nil {
		return nil, err
	}
	if err := CheckFeeBps(bps); err != nil {
		return nil, err
	}
	return mulDiv(amount, big.NewInt(int64(bps)), bpsDen), nil
}

// AmountAfterFee amount - Fee(amount, bps)
func AmountAfterFee(amount *big.Int, bps uint16) (*big.Int, error) {
	fee, err := Fee(amount, bps)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(amount, fee), nil
}
