package curve

import (
	"errors"
	"testing"
)

func TestPurchaseReturnBootstrap(t *testing.T) {
	cases := []struct {
		reserve uint64
		ratio   uint8
		deposit uint64
	}{
		{reserve: 0, ratio: 1, deposit: 1_000},
		{reserve: 100_000_000, ratio: 50, deposit: 10_000_000},
		{reserve: 7, ratio: 33, deposit: 999_999},
		{reserve: 0, ratio: 100, deposit: 1},
	}

	for _, tc := range cases {
		got, err := PurchaseReturn(0, tc.reserve, tc.ratio, tc.deposit)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := tc.deposit * uint64(tc.ratio) / 100
		if got != want {
			t.Fatalf("bootstrap ratio=%d deposit=%d: got %d want %d", tc.ratio, tc.deposit, got, want)
		}
	}
}

func TestPurchaseReturnReserveZeroUsesBootstrap(t *testing.T) {
	got, err := PurchaseReturn(5_000_000, 0, 50, 10_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 5_000_000 {
		t.Fatalf("got %d want 5000000", got)
	}
}

func TestPurchaseReturnZeroDeposit(t *testing.T) {
	got, err := PurchaseReturn(1_000, 1_000, 50, 0)
	if err != nil || got != 0 {
		t.Fatalf("got %d, %v", got, err)
	}
}

func TestPurchaseReturnFullRatioIsLinear(t *testing.T) {
	// ratio 100 means price is constant: tokens scale with reserve share.
	got, err := PurchaseReturn(1_000_000, 2_000_000, 100, 500_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 250_000 {
		t.Fatalf("got %d want 250000", got)
	}
}

func TestPurchaseReturnSquareRoot(t *testing.T) {
	// deposit triples the reserve: base 4.0, ratio 50 -> sqrt -> 2.0, tokens = supply.
	got, err := PurchaseReturn(1_000_000, 1_000_000, 50, 3_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1_000_000 {
		t.Fatalf("got %d want 1000000", got)
	}
}

func TestSaleReturnInsufficientSupply(t *testing.T) {
	_, err := SaleReturn(100, 1_000, 50, 101)
	if !errors.Is(err, ErrInsufficientSupply) {
		t.Fatalf("expected insufficient supply, got %v", err)
	}
}

func TestSaleReturnZero(t *testing.T) {
	if got, err := SaleReturn(100, 1_000, 50, 0); err != nil || got != 0 {
		t.Fatalf("zero amount: got %d, %v", got, err)
	}
	if got, err := SaleReturn(0, 1_000, 50, 0); err != nil || got != 0 {
		t.Fatalf("zero supply: got %d, %v", got, err)
	}
}

func TestSaleReturnWholeSupplyReleasesReserve(t *testing.T) {
	got, err := SaleReturn(5_000_000, 10_000_000, 50, 5_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10_000_000 {
		t.Fatalf("got %d want 10000000", got)
	}
}

func TestSaleReturnHalfSupplySquare(t *testing.T) {
	// selling half at ratio 50: (1-0.5)^2 = 0.25 -> 75% of reserve.
	got, err := SaleReturn(2_000_000, 8_000_000, 50, 1_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 6_000_000 {
		t.Fatalf("got %d want 6000000", got)
	}
}

func TestRoundTripCreatesNoValue(t *testing.T) {
	ratios := []uint8{1, 10, 33, 50, 77, 100}
	deposits := []uint64{1, 999, 1_000_000, 123_456_789, 5_000_000_000}
	const supply = 1_000_000_000
	const reserve = 500_000_000

	for _, ratio := range ratios {
		for _, deposit := range deposits {
			tokens, err := PurchaseReturn(supply, reserve, ratio, deposit)
			if err != nil {
				t.Fatalf("purchase ratio=%d deposit=%d: %v", ratio, deposit, err)
			}
			back, err := SaleReturn(supply+tokens, reserve+deposit, ratio, tokens)
			if err != nil {
				t.Fatalf("sale ratio=%d deposit=%d: %v", ratio, deposit, err)
			}
			if back > deposit {
				t.Fatalf("value created ratio=%d deposit=%d: got back %d", ratio, deposit, back)
			}
		}
	}
}

func TestLinearRoundTripOverpays(t *testing.T) {
	const supply, reserve, deposit = 1_000_000_000, 500_000_000, 100_000_000

	tokens, err := Linear.PurchaseReturn(supply, reserve, 50, deposit)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if tokens != 100_000_000 {
		t.Fatalf("linear tokens: got %d want 100000000", tokens)
	}
	back, err := Linear.SaleReturn(supply+tokens, reserve+deposit, 50, tokens)
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if back <= deposit {
		t.Fatalf("expected linear approximation to overpay, got %d", back)
	}
}

func TestCurrentPrice(t *testing.T) {
	if got, err := CurrentPrice(0, 10, 50); err != nil || got != 0 {
		t.Fatalf("zero supply: got %d, %v", got, err)
	}
	got, err := CurrentPrice(5_000_000, 10_000_000, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 4*Precision {
		t.Fatalf("got %d want %d", got, 4*Precision)
	}
}

func TestCurrentPriceRisesAlongCurve(t *testing.T) {
	for _, ratio := range []uint8{5, 50, 100} {
		supply, reserve := uint64(0), uint64(0)
		var last uint64
		for i := 0; i < 50; i++ {
			deposit := uint64(1_000_000 + i*37_000)
			tokens, err := PurchaseReturn(supply, reserve, ratio, deposit)
			if err != nil {
				t.Fatalf("purchase: %v", err)
			}
			supply += tokens
			reserve += deposit
			price, err := CurrentPrice(supply, reserve, ratio)
			if err != nil {
				t.Fatalf("price: %v", err)
			}
			if price < last {
				t.Fatalf("ratio=%d step=%d: price fell from %d to %d", ratio, i, last, price)
			}
			last = price
		}
	}
}

func TestInvalidRatio(t *testing.T) {
	for _, ratio := range []uint8{0, 101, 255} {
		if _, err := PurchaseReturn(1, 1, ratio, 1); !errors.Is(err, ErrInvalidRatio) {
			t.Fatalf("purchase ratio=%d: got %v", ratio, err)
		}
		if _, err := SaleReturn(1, 1, ratio, 1); !errors.Is(err, ErrInvalidRatio) {
			t.Fatalf("sale ratio=%d: got %v", ratio, err)
		}
		if _, err := CurrentPrice(1, 1, ratio); !errors.Is(err, ErrInvalidRatio) {
			t.Fatalf("price ratio=%d: got %v", ratio, err)
		}
	}
}
