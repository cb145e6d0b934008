package sharemath

import (
	"errors"
	"math/big"
	"testing"
	"testing/quick"
)

func bi(v int64) *big.Int { return big.NewInt(v) }

func TestSharePrice(t *testing.T) {
	p, err := SharePrice(bi(1_500_000), bi(1_500_000), bi(1_000_000), 6)
	if err != nil {
		t.Fatalf("SharePrice error: %v", err)
	}
	if p.Cmp(bi(1_000_000)) != 0 {
		t.Fatalf("price got=%s want=%d", p, 1_000_000)
	}

	// 空池返回回退价格，而不是 0
	p, err = SharePrice(bi(7), bi(0), bi(2_000_000), 6)
	if err != nil {
		t.Fatalf("SharePrice error: %v", err)
	}
	if p.Cmp(bi(2_000_000)) != 0 {
		t.Fatalf("empty pool price got=%s want=%d", p, 2_000_000)
	}

	if _, err := SharePrice(bi(-1), bi(1), bi(1), 6); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected ErrNegative, got %v", err)
	}
	if _, err := SharePrice(nil, bi(1), bi(1), 6); !errors.Is(err, ErrNilValue) {
		t.Fatalf("expected ErrNilValue, got %v", err)
	}
}

func TestSharesToMintAndPrice(t *testing.T) {
	cases := []struct {
		name                         string
		change, before, supply, fall int64
		wantShares, wantPrice        int64
	}{
		{"bootstrap 1:1", 1_000_000, 0, 0, 1_000_000, 1_000_000, 1_000_000},
		{"empty pool uses preserved price", 1_000_000, 3, 0, 2_000_000, 500_000, 2_000_000},
		{"second deposit at par", 500_000, 1_000_000, 1_000_000, 1, 500_000, 1_000_000},
		{"after yield accrual", 550_000, 1_100_000, 1_000_000, 1, 500_000, 1_100_000},
		// 2/3 份向下取整为 0，尘埃留给现有持有人
		{"rounding dust to fund", 1, 3, 2, 1, 0, 2_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shares, price, err := SharesToMintAndPrice(bi(tc.change), bi(tc.before), bi(tc.supply), bi(tc.fall), 6)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if shares.Cmp(bi(tc.wantShares)) != 0 {
				t.Fatalf("shares got=%s want=%d", shares, tc.wantShares)
			}
			if price.Cmp(bi(tc.wantPrice)) != 0 {
				t.Fatalf("price got=%s want=%d", price, tc.wantPrice)
			}
		})
	}

	if _, _, err := SharesToMintAndPrice(bi(1), bi(0), bi(1), bi(1), 6); !errors.Is(err, ErrZeroEquity) {
		t.Fatalf("expected ErrZeroEquity, got %v", err)
	}
	// 回退价格为 0 时按 1:1 冷启动，空池永远能接受存款
	shares, price, err := SharesToMintAndPrice(bi(250), bi(0), bi(0), bi(0), 6)
	if err != nil {
		t.Fatalf("zero fallback: %v", err)
	}
	if shares.Cmp(bi(250)) != 0 || price.Cmp(bi(1_000_000)) != 0 {
		t.Fatalf("zero fallback got shares=%s price=%s", shares, price)
	}
	if p, _ := SharePrice(bi(0), bi(0), bi(0), 6); p.Cmp(bi(1_000_000)) != 0 {
		t.Fatalf("empty pool price with zero fallback got=%s", p)
	}
}

func TestRedemptionAmountAndPrice(t *testing.T) {
	// 1.5M 权益 / 1.5M 份，赎回 1M 份
	pay, price, err := RedemptionAmountAndPrice(bi(1_000_000), bi(1_500_000), bi(1_500_000), bi(1_000_000), 6)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if pay.Cmp(bi(1_000_000)) != 0 || price.Cmp(bi(1_000_000)) != 0 {
		t.Fatalf("pay=%s price=%s", pay, price)
	}

	// 全部赎回：保留当前价格
	pay, price, err = RedemptionAmountAndPrice(bi(500_000), bi(600_000), bi(500_000), bi(1_200_000), 6)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if pay.Cmp(bi(600_000)) != 0 || price.Cmp(bi(1_200_000)) != 0 {
		t.Fatalf("full redemption pay=%s price=%s", pay, price)
	}

	// 10 权益 / 3 份：价格 3333333，赎回 1 份只付 3，剩余持有人价格上升
	pay, price, err = RedemptionAmountAndPrice(bi(1), bi(10), bi(3), bi(3_333_333), 6)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if pay.Cmp(bi(3)) != 0 {
		t.Fatalf("dust pay got=%s want=3", pay)
	}
	if price.Cmp(bi(3_500_000)) != 0 {
		t.Fatalf("dust price got=%s want=3500000", price)
	}

	if _, _, err := RedemptionAmountAndPrice(bi(2), bi(10), bi(1), bi(1), 6); !errors.Is(err, ErrSharesExceedSupply) {
		t.Fatalf("expected ErrSharesExceedSupply, got %v", err)
	}
}

func TestFee(t *testing.T) {
	fee, err := Fee(bi(1_000_000), 50)
	if err != nil {
		t.Fatalf("Fee error: %v", err)
	}
	if fee.Cmp(bi(5_000)) != 0 {
		t.Fatalf("fee got=%s want=5000", fee)
	}
	// 199 * 50 / 10000 向下取整为 0
	net, err := AmountAfterFee(bi(199), 50)
	if err != nil {
		t.Fatalf("AmountAfterFee error: %v", err)
	}
	if net.Cmp(bi(199)) != 0 {
		t.Fatalf("net got=%s want=199", net)
	}
	if _, err := Fee(bi(1), BpsDenominator+1); !errors.Is(err, ErrFeeOutOfRange) {
		t.Fatalf("expected ErrFeeOutOfRange, got %v", err)
	}
}

func TestUnits(t *testing.T) {
	if got := FormatUnits(bi(1_500_000), 6); got != "1.500000" {
		t.Fatalf("FormatUnits got=%q", got)
	}
	v, err := ParseUnits("1.25", 6)
	if err != nil {
		t.Fatalf("ParseUnits error: %v", err)
	}
	if v.Cmp(bi(1_250_000)) != 0 {
		t.Fatalf("ParseUnits got=%s", v)
	}
	if _, err := ParseUnits("0.0000001", 6); err == nil {
		t.Fatalf("expected precision error")
	}
	if _, err := ParseUnits("-1", 6); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected ErrNegative, got %v", err)
	}
}

// 新铸造的份额立即按新价格赎回，拿回的金额不超过真实注入的权益增量
func TestProperty_MintThenRedeemNeverProfits(t *testing.T) {
	property := func(change, before, supply uint32) bool {
		if before == 0 || supply == 0 {
			return true
		}
		c, e, s := bi(int64(change)), bi(int64(before)), bi(int64(supply))
		minted, price, err := SharesToMintAndPrice(c, e, s, bi(1), 6)
		if err != nil {
			t.Logf("mint err: %v", err)
			return false
		}
		equityAfter := new(big.Int).Add(e, c)
		supplyAfter := new(big.Int).Add(s, minted)
		pay, _, err := RedemptionAmountAndPrice(minted, equityAfter, supplyAfter, price, 6)
		if err != nil {
			t.Logf("redeem err: %v", err)
			return false
		}
		if pay.Cmp(c) > 0 {
			t.Logf("profit: change=%s pay=%s", c, pay)
			return false
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 2000}); err != nil {
		t.Fatal(err)
	}
}
