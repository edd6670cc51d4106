package leverage

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFlashLoanAmount(t *testing.T) {
	// 100 at 7500 bps => 300 (4x total exposure)
	loan := FlashLoanAmount(decimal.NewFromInt(100), 7500)
	if !loan.Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected loan 300, got %s", loan)
	}

	// 100 at 5000 bps => 100 (2x)
	loan = FlashLoanAmount(decimal.NewFromInt(100), 5000)
	if !loan.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected loan 100, got %s", loan)
	}

	// Zero target means no loop
	if !FlashLoanAmount(decimal.NewFromInt(100), 0).IsZero() {
		t.Error("zero target ltv should size to zero")
	}

	// Degenerate targets size to zero, not error
	if !FlashLoanAmount(decimal.NewFromInt(100), BPS).IsZero() {
		t.Error("ltv == BPS should size to zero")
	}
	if !FlashLoanAmount(decimal.NewFromInt(100), BPS+500).IsZero() {
		t.Error("ltv > BPS should size to zero")
	}
}

func TestFlashLoanAmount_Ratio(t *testing.T) {
	// loan/deposit == ltv/(BPS-ltv) across the valid range
	deposit := decimal.NewFromInt(1_000_000)
	for _, ltv := range []int64{1, 100, 2500, 5000, 7500, 9000, 9999} {
		loan := FlashLoanAmount(deposit, ltv)
		want := deposit.Mul(decimal.NewFromInt(ltv)).Div(decimal.NewFromInt(BPS - ltv))
		if !loan.Sub(want).Abs().LessThan(decimal.NewFromFloat(0.0001)) {
			t.Errorf("ltv=%d: loan %s, want %s", ltv, loan, want)
		}
	}
}

func TestLtvToLeverage(t *testing.T) {
	cases := []struct {
		ltvBps int64
		want   int64
	}{
		{0, 100},
		{5000, 200},
		{7500, 400},
		{9000, 1000},
	}
	for _, c := range cases {
		if got := LtvToLeverage(c.ltvBps); got != c.want {
			t.Errorf("LtvToLeverage(%d) = %d, want %d", c.ltvBps, got, c.want)
		}
	}

	if LtvToLeverage(BPS) != MaxLeverage {
		t.Error("ltv at BPS should map to MaxLeverage")
	}
	if LtvToLeverage(BPS+1) != MaxLeverage {
		t.Error("ltv beyond BPS should map to MaxLeverage")
	}
}

func TestLtv(t *testing.T) {
	if got := Ltv(decimal.NewFromInt(400), decimal.NewFromInt(300)); got != 7500 {
		t.Errorf("expected 7500 bps, got %d", got)
	}
	if got := Ltv(decimal.Zero, decimal.NewFromInt(300)); got != 0 {
		t.Errorf("zero collateral should read as no position, got %d", got)
	}
	if got := Ltv(decimal.NewFromInt(100), decimal.Zero); got != 0 {
		t.Errorf("zero debt should be 0 bps, got %d", got)
	}
}

func TestHealthFactor(t *testing.T) {
	hf := HealthFactor(decimal.NewFromInt(400), decimal.NewFromInt(300))
	want := decimal.NewFromFloat(4.0 / 3.0)
	if hf.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
		t.Errorf("expected hf ~1.3333, got %s", hf)
	}

	if !HealthFactor(decimal.NewFromInt(400), decimal.Zero).Equal(Unbounded) {
		t.Error("zero debt should be unbounded health")
	}
}

func TestNetValue(t *testing.T) {
	if !NetValue(decimal.NewFromInt(400), decimal.NewFromInt(300)).Equal(decimal.NewFromInt(100)) {
		t.Error("net value should be 100")
	}
	// Underwater positions floor at zero, never negative
	if !NetValue(decimal.NewFromInt(300), decimal.NewFromInt(400)).IsZero() {
		t.Error("underwater net value should floor at zero")
	}
	if !NetValue(decimal.Zero, decimal.Zero).IsZero() {
		t.Error("empty position has zero net value")
	}
}

func TestSharePrice(t *testing.T) {
	sp := SharePrice(decimal.NewFromInt(110), decimal.NewFromInt(100))
	if !sp.Equal(decimal.NewFromFloat(1.1)) {
		t.Errorf("expected 1.1, got %s", sp)
	}
	// Bootstrap case
	if !SharePrice(decimal.Zero, decimal.Zero).Equal(decimal.NewFromInt(1)) {
		t.Error("zero shares should bootstrap at 1.0")
	}
}

func TestNeedsRebalance_Boundary(t *testing.T) {
	// At target: nothing to do regardless of threshold
	for _, th := range []int64{0, 1, 100, 5000} {
		needs, over := NeedsRebalance(7500, 7500, th)
		if needs || over {
			t.Errorf("threshold %d: at-target should be (false,false)", th)
		}
	}

	// Exactly at the threshold does not trigger
	needs, _ := NeedsRebalance(7500+200, 7500, 200)
	if needs {
		t.Error("diff == threshold must not trigger rebalance")
	}

	// One past the threshold triggers, over-leveraged direction
	needs, over := NeedsRebalance(7500+201, 7500, 200)
	if !needs || !over {
		t.Error("diff == threshold+1 must trigger as over-leveraged")
	}

	// Under-leveraged direction
	needs, over = NeedsRebalance(7500-201, 7500, 200)
	if !needs || over {
		t.Error("drift below target must trigger as under-leveraged")
	}
}

func TestRebalanceDeltas(t *testing.T) {
	collateral := decimal.NewFromInt(400)

	// Over target: repaying 120 also releases 120 of collateral, landing
	// 210/280 exactly on 7500 bps.
	amt := DeleverageAmount(collateral, decimal.NewFromInt(330), 7500)
	if !amt.Equal(decimal.NewFromInt(120)) {
		t.Errorf("expected deleverage 120, got %s", amt)
	}
	// Under target deleverage floors at zero
	if !DeleverageAmount(collateral, decimal.NewFromInt(250), 7500).IsZero() {
		t.Error("deleverage should floor at zero when under target")
	}

	// Under target: borrowing 200 adds 200 of collateral, landing 450/600
	// exactly on 7500 bps.
	amt = ReleverageAmount(collateral, decimal.NewFromInt(250), 7500)
	if !amt.Equal(decimal.NewFromInt(200)) {
		t.Errorf("expected releverage 200, got %s", amt)
	}
	if !ReleverageAmount(collateral, decimal.NewFromInt(330), 7500).IsZero() {
		t.Error("releverage should floor at zero when over target")
	}

	// Deleverage to zero target repays the full debt
	if !DeleverageAmount(collateral, decimal.NewFromInt(330), 0).Equal(decimal.NewFromInt(330)) {
		t.Error("zero target should repay all debt")
	}
	// Degenerate targets size to zero in both directions
	if !DeleverageAmount(collateral, decimal.NewFromInt(330), BPS).IsZero() {
		t.Error("ltv == BPS should size deleverage to zero")
	}
	if !ReleverageAmount(collateral, decimal.NewFromInt(250), BPS).IsZero() {
		t.Error("ltv == BPS should size releverage to zero")
	}
}

func TestValidateSharePrice(t *testing.T) {
	if !ValidateSharePrice(decimal.NewFromFloat(1.05), decimal.NewFromInt(1)) {
		t.Error("1.05 >= 1.0 should pass")
	}
	if !ValidateSharePrice(decimal.NewFromInt(1), decimal.NewFromInt(1)) {
		t.Error("floor itself should pass")
	}
	if ValidateSharePrice(decimal.NewFromFloat(0.99), decimal.NewFromInt(1)) {
		t.Error("below floor should fail")
	}
}
