package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"curveLaunch/internal/ledger"
	"curveLaunch/internal/model"
)

var custodyAddr = common.HexToAddress("0x000000000000000000000000000000000000d0e5")

// lowThresholdPool creates a pool that migrates once its curve reserve
// reaches about 50 whole reserve units at an oracle price of one dollar.
func lowThresholdPool(t *testing.T, h *harness) *model.Pool {
	t.Helper()
	params := defaultPoolParams()
	threshold := uint64(100)
	params.MarketCapThresholdUSD = &threshold
	pool := h.createPool(t, params)
	if err := h.engine.UpdateOraclePrice(context.Background(), adminAddr, 100, "manual"); err != nil {
		t.Fatalf("oracle: %v", err)
	}
	return pool
}

func TestMigrationTriggersExactlyOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pool := lowThresholdPool(t, h)

	migratedAt := 0
	for i := 1; i <= 10; i++ {
		res, err := h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 10_000_000})
		if migratedAt != 0 {
			if !errors.Is(err, ErrTradingDisabled) {
				t.Fatalf("buy %d after migration: expected trading disabled, got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
		if res.MigrationReady {
			migratedAt = i
		}
	}

	if migratedAt < 5 || migratedAt > 6 {
		t.Fatalf("migration at buy %d, expected the fifth or sixth", migratedAt)
	}
	ready := h.engine.Journal().Filter(model.EventMigrationReady)
	if len(ready) != 1 {
		t.Fatalf("expected one MigrationReady event, got %d", len(ready))
	}
	payload := ready[0].Payload.(model.MigrationReadyEvent)
	if payload.Forced || payload.MarketCapCents < 10_000 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	got := h.pool(t, pool.ID)
	if got.Curve.IsActive || !got.Settings.MigrationCompleted || got.Settings.MigrationTimestamp == nil {
		t.Fatalf("unexpected migrated state: %+v %+v", got.Curve, got.Settings)
	}
	if _, err := h.engine.Sell(ctx, buyerAddr, SellParams{Pool: pool.ID, SellAmount: 1}); !errors.Is(err, ErrTradingDisabled) {
		t.Fatalf("sell after migration: %v", err)
	}
	if err := h.engine.ForceMigrate(ctx, adminAddr, pool.ID); !errors.Is(err, ErrMigrationState) {
		t.Fatalf("force after migration: %v", err)
	}
}

func TestStaleOracleNeverMigrates(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.OracleMaxAge = time.Hour })
	ctx := context.Background()
	pool := lowThresholdPool(t, h)

	h.clock.Advance(2 * time.Hour)
	res, err := h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 100_000_000})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.MigrationReady {
		t.Fatalf("stale oracle triggered migration")
	}
	reached, err := h.engine.IsMigrationThresholdReached(ctx, pool.ID)
	if err != nil || reached {
		t.Fatalf("threshold reached on stale price: %v %v", reached, err)
	}
	capCents, err := h.engine.GetMarketCapCents(ctx, pool.ID)
	if err != nil || capCents < 10_000 {
		t.Fatalf("market cap should still be reported: %d %v", capCents, err)
	}

	if err := h.engine.UpdateOraclePrice(ctx, adminAddr, 100, "manual"); err != nil {
		t.Fatalf("refresh oracle: %v", err)
	}
	res, err = h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 1_000})
	if err != nil {
		t.Fatalf("buy after refresh: %v", err)
	}
	if !res.MigrationReady {
		t.Fatalf("fresh oracle did not trigger migration")
	}
}

func TestNoOracleNoMigration(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	params := defaultPoolParams()
	threshold := uint64(1)
	params.MarketCapThresholdUSD = &threshold
	pool := h.createPool(t, params)

	res, err := h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 500_000_000})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.MigrationReady {
		t.Fatalf("migration without an oracle price")
	}
	usd, err := h.engine.GetMarketCapUSD(ctx, pool.ID)
	if err != nil || !usd.IsZero() {
		t.Fatalf("market cap without oracle: %s %v", usd, err)
	}
}

func TestMarketCapUSD(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pool := h.createPool(t, defaultPoolParams())
	if err := h.engine.UpdateOraclePrice(ctx, adminAddr, 250, "manual"); err != nil {
		t.Fatalf("oracle: %v", err)
	}
	if _, err := h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 10_000_000}); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// 5M tokens at 4 reserve units each is 20 whole reserve units, $50 at $2.50.
	usd, err := h.engine.GetMarketCapUSD(ctx, pool.ID)
	if err != nil {
		t.Fatalf("market cap: %v", err)
	}
	if !usd.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("market cap %s, want 50", usd)
	}
}

func TestForceMigrate(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pool := h.createPool(t, defaultPoolParams())

	if err := h.engine.ForceMigrate(ctx, adminAddr, pool.ID); err != nil {
		t.Fatalf("force migrate: %v", err)
	}
	if err := h.engine.ForceMigrate(ctx, adminAddr, pool.ID); !errors.Is(err, ErrMigrationState) {
		t.Fatalf("second force: expected migration state error, got %v", err)
	}
	if _, err := h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 1_000}); !errors.Is(err, ErrTradingDisabled) {
		t.Fatalf("buy after force: %v", err)
	}

	ready := h.engine.Journal().Filter(model.EventMigrationReady)
	if len(ready) != 1 || !ready[0].Payload.(model.MigrationReadyEvent).Forced {
		t.Fatalf("expected one forced MigrationReady event, got %+v", ready)
	}
}

func TestMigrateLiquidity(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pool := h.createPool(t, defaultPoolParams())
	dex := ledger.NewMemoryDEX(custodyAddr, h.ledger, reserveAsset)

	if _, err := h.engine.MigrateLiquidity(ctx, adminAddr, pool.ID, dex); !errors.Is(err, ErrMigrationState) {
		t.Fatalf("migrate before threshold: %v", err)
	}
	if _, err := h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 10_000_000}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := h.engine.ForceMigrate(ctx, adminAddr, pool.ID); err != nil {
		t.Fatalf("force migrate: %v", err)
	}

	res, err := h.engine.MigrateLiquidity(ctx, adminAddr, pool.ID, dex)
	if err != nil {
		t.Fatalf("migrate liquidity: %v", err)
	}
	if res.Reserve != 110_000_000 || res.Tokens != 27_500_000 {
		t.Fatalf("unexpected result: %+v", res)
	}
	pos, ok := dex.Position(pool.ID)
	if !ok || pos.Reference != res.DexPool {
		t.Fatalf("dex position missing: %+v", pos)
	}
	if got := h.balance(t, reserveAsset, custodyAddr); got != 110_000_000 {
		t.Fatalf("custody reserve: %d", got)
	}
	if got := h.balance(t, pool.ID, custodyAddr); got != 27_500_000 {
		t.Fatalf("custody tokens: %d", got)
	}
	if got := h.balance(t, reserveAsset, pool.ID); got != 0 {
		t.Fatalf("pool still holds reserve: %d", got)
	}
	if got := h.supply(t, pool.ID); got != 32_500_000 {
		t.Fatalf("supply: %d", got)
	}

	after := h.pool(t, pool.ID)
	if after.Curve.ReserveBalance != 0 || after.Curve.LockedReserve != 0 {
		t.Fatalf("reserve not cleared: %+v", after.Curve)
	}
	if after.Settings.DexPoolReference == nil || *after.Settings.DexPoolReference != res.DexPool {
		t.Fatalf("dex reference not recorded")
	}
	if paid := h.engine.GetLiquidity().TotalPaidOut; paid != 110_000_000 {
		t.Fatalf("paid out: %d", paid)
	}
	if n := len(h.engine.Journal().Filter(model.EventMigrationCompleted)); n != 1 {
		t.Fatalf("expected one MigrationCompleted event, got %d", n)
	}

	if _, err := h.engine.MigrateLiquidity(ctx, adminAddr, pool.ID, dex); !errors.Is(err, ErrMigrationState) {
		t.Fatalf("second migration: %v", err)
	}
}

func TestMigrateLiquidityCompensatesOnRejection(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	pool := h.createPool(t, defaultPoolParams())
	dex := ledger.NewMemoryDEX(custodyAddr, h.ledger, reserveAsset)
	if _, err := h.engine.Buy(ctx, buyerAddr, BuyParams{Pool: pool.ID, DepositAmount: 10_000_000}); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := h.engine.ForceMigrate(ctx, adminAddr, pool.ID); err != nil {
		t.Fatalf("force migrate: %v", err)
	}

	dex.SetReject(true)
	if _, err := h.engine.MigrateLiquidity(ctx, adminAddr, pool.ID, dex); !errors.Is(err, ledger.ErrDexRejected) {
		t.Fatalf("expected dex rejection, got %v", err)
	}
	if got := h.balance(t, reserveAsset, pool.ID); got != 110_000_000 {
		t.Fatalf("reserve not returned: %d", got)
	}
	if got := h.balance(t, reserveAsset, custodyAddr); got != 0 {
		t.Fatalf("custody kept reserve: %d", got)
	}
	if got := h.supply(t, pool.ID); got != 5_000_000 {
		t.Fatalf("minted tokens not burned: %d", got)
	}
	if got := h.pool(t, pool.ID); got.Settings.DexPoolReference != nil || got.Curve.ReserveBalance != 110_000_000 {
		t.Fatalf("pool state changed: %+v", got)
	}

	dex.SetReject(false)
	if _, err := h.engine.MigrateLiquidity(ctx, adminAddr, pool.ID, dex); err != nil {
		t.Fatalf("retry: %v", err)
	}
}
