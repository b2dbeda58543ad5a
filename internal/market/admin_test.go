package market

import (
	"context"
	"errors"
	"testing"

	"curveLaunch/internal/ledger"
	"curveLaunch/internal/model"
)

func TestAdminOperationsRequireAdmin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pool := h.createPool(t, defaultPoolParams())
	enabled := false

	checks := []struct {
		name string
		call func() error
	}{
		{"set_admin", func() error { return h.engine.SetAdmin(ctx, strangerAddr, strangerAddr) }},
		{"set_treasury", func() error { return h.engine.SetTreasury(ctx, strangerAddr, strangerAddr) }},
		{"update_fee", func() error { return h.engine.UpdateFee(ctx, strangerAddr, 10, 10) }},
		{"update_pool_settings", func() error {
			return h.engine.UpdatePoolSettings(ctx, strangerAddr, pool.ID, PoolSettingsUpdate{TradingEnabled: &enabled})
		}},
		{"admin_withdraw", func() error { return h.engine.AdminWithdraw(ctx, strangerAddr, pool.ID, 1) }},
		{"update_oracle_price", func() error { return h.engine.UpdateOraclePrice(ctx, strangerAddr, 100, "manual") }},
		{"force_migrate", func() error { return h.engine.ForceMigrate(ctx, strangerAddr, pool.ID) }},
		{"migrate_liquidity", func() error {
			_, err := h.engine.MigrateLiquidity(ctx, strangerAddr, pool.ID, ledger.NewMemoryDEX(strangerAddr, h.ledger, reserveAsset))
			return err
		}},
	}

	before := h.engine.Journal().Len()
	for _, c := range checks {
		err := c.call()
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", c.name, err)
		}
		var opErr *OpError
		if !errors.As(err, &opErr) || opErr.Op != c.name {
			t.Fatalf("%s: unexpected op error %v", c.name, err)
		}
	}
	if h.engine.Journal().Len() != before {
		t.Fatalf("rejected calls emitted events")
	}
	if got := h.pool(t, pool.ID); !got.Tradable() {
		t.Fatalf("pool state changed by rejected calls")
	}
}

func TestSetAdminTransfersRights(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.engine.SetAdmin(ctx, adminAddr, strangerAddr); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if h.engine.GetAdmin() != strangerAddr {
		t.Fatalf("admin not updated")
	}
	if err := h.engine.UpdateFee(ctx, adminAddr, 1, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old admin kept rights: %v", err)
	}
	if err := h.engine.UpdateFee(ctx, strangerAddr, 1, 1); err != nil {
		t.Fatalf("new admin rejected: %v", err)
	}

	changed := h.engine.Journal().Filter(model.EventAdminChanged)
	if len(changed) != 1 {
		t.Fatalf("expected one AdminChanged event, got %d", len(changed))
	}
	payload := changed[0].Payload.(model.AdminChangedEvent)
	if payload.OldAdmin != adminAddr || payload.NewAdmin != strangerAddr {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestUpdateFee(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.engine.UpdateFee(ctx, adminAddr, 1001, 0); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected fee too high, got %v", err)
	}
	if err := h.engine.UpdateFee(ctx, adminAddr, 0, 1001); !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("expected fee too high, got %v", err)
	}
	if err := h.engine.UpdateFee(ctx, adminAddr, 1000, 250); err != nil {
		t.Fatalf("update fee: %v", err)
	}
	fees := h.engine.GetFees()
	if fees.BuyFeeBps != 1000 || fees.SellFeeBps != 250 || fees.Treasury != treasuryAddr {
		t.Fatalf("unexpected fees: %+v", fees)
	}

	pool := h.createPool(t, defaultPoolParams())
	quote, err := h.engine.CalculatePurchaseReturn(ctx, pool.ID, 1_000_000)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Fee != 100_000 || quote.Net != 900_000 {
		t.Fatalf("quote ignores new fee: %+v", quote)
	}
}

func TestSetTreasuryRedirectsFees(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.BuyFeeBps = 500 })
	ctx := context.Background()
	pool := h.createPool(t, defaultPoolParams())

	if err := h.engine.SetTreasury(ctx, adminAddr, strangerAddr); err != nil {
		t.Fatalf("set treasury: %v", err)
	}
	if _, err := h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 1_000_000}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if got := h.balance(t, reserveAsset, strangerAddr); got != 10_000_000_000+50_000 {
		t.Fatalf("new treasury balance: %d", got)
	}
	if got := h.balance(t, reserveAsset, treasuryAddr); got != 0 {
		t.Fatalf("old treasury received fees: %d", got)
	}
}

func TestUpdatePoolSettingsThreshold(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pool := h.createPool(t, defaultPoolParams())
	zero, threshold := uint64(0), uint64(1_000)

	err := h.engine.UpdatePoolSettings(ctx, adminAddr, pool.ID, PoolSettingsUpdate{MarketCapThresholdUSD: &zero})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := h.engine.UpdatePoolSettings(ctx, adminAddr, pool.ID, PoolSettingsUpdate{MarketCapThresholdUSD: &threshold}); err != nil {
		t.Fatalf("update threshold: %v", err)
	}
	got := h.pool(t, pool.ID)
	if got.Settings.MarketCapThresholdUSD != 1_000 || !got.Settings.TradingEnabled {
		t.Fatalf("unexpected settings: %+v", got.Settings)
	}
	updates := h.engine.Journal().Filter(model.EventPoolSettingsUpdated)
	if len(updates) != 1 || updates[0].Address != pool.ID {
		t.Fatalf("expected one settings event for the pool, got %+v", updates)
	}
}

func TestAdminWithdrawDrawsLockedSeedFirst(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pool := h.createPool(t, defaultPoolParams())
	if _, err := h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 10_000_000}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	if err := h.engine.AdminWithdraw(ctx, adminAddr, pool.ID, 120_000_000); !errors.Is(err, ErrInsufficientReserve) {
		t.Fatalf("expected insufficient reserve, got %v", err)
	}
	if err := h.engine.AdminWithdraw(ctx, adminAddr, pool.ID, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := h.engine.AdminWithdraw(ctx, adminAddr, pool.ID, 30_000_000); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	got := h.pool(t, pool.ID)
	if got.Curve.ReserveBalance != 80_000_000 || got.Curve.LockedReserve != 70_000_000 {
		t.Fatalf("unexpected reserve after withdraw: %+v", got.Curve)
	}
	if got.Curve.CurveReserve() != 10_000_000 {
		t.Fatalf("curve reserve touched: %d", got.Curve.CurveReserve())
	}
	if bal := h.balance(t, reserveAsset, adminAddr); bal != 30_000_000 {
		t.Fatalf("admin balance: %d", bal)
	}
	if bal := h.balance(t, reserveAsset, pool.ID); bal != 80_000_000 {
		t.Fatalf("pool custody: %d", bal)
	}
	if paid := h.engine.GetLiquidity().TotalPaidOut; paid != 30_000_000 {
		t.Fatalf("paid out: %d", paid)
	}

	if err := h.engine.AdminWithdraw(ctx, adminAddr, pool.ID, 75_000_000); err != nil {
		t.Fatalf("withdraw past seed: %v", err)
	}
	got = h.pool(t, pool.ID)
	if got.Curve.LockedReserve != 0 || got.Curve.ReserveBalance != 5_000_000 {
		t.Fatalf("unexpected reserve after second withdraw: %+v", got.Curve)
	}
}

func TestUpdateOraclePrice(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if h.engine.GetOracle().IsSet() {
		t.Fatalf("oracle set before first update")
	}
	if err := h.engine.UpdateOraclePrice(ctx, adminAddr, 0, "manual"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := h.engine.UpdateOraclePrice(ctx, adminAddr, 15_000, "  coingecko "); err != nil {
		t.Fatalf("update oracle: %v", err)
	}
	oracle := h.engine.GetOracle()
	if oracle.PriceUSDCents != 15_000 || oracle.Source != "coingecko" || !oracle.LastUpdate.Equal(h.clock.Now()) {
		t.Fatalf("unexpected oracle: %+v", oracle)
	}
	if n := len(h.engine.Journal().Filter(model.EventOraclePriceUpdated)); n != 1 {
		t.Fatalf("expected one oracle event, got %d", n)
	}
}
