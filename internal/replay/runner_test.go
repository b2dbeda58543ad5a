package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"curveLaunch/internal/config"
	"curveLaunch/internal/curve"
	"curveLaunch/internal/market"
	"curveLaunch/internal/model"
	"curveLaunch/internal/storage"
)

const (
	admin   = "0x000000000000000000000000000000000000ad01"
	trader  = "0x2222222222222222222222222222222222222222"
	reserve = "0x00000000000000000000000000000000000000aa"
)

type memorySink struct {
	mu      sync.Mutex
	batches [][]model.LogRecord
	fail    int
}

func (m *memorySink) PutLogBatch(_ context.Context, logs []model.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return errors.New("sink unavailable")
	}
	m.batches = append(m.batches, logs)
	return nil
}

func (m *memorySink) records() []model.LogRecord {
	var out []model.LogRecord
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func testConfig() RunConfig {
	return RunConfig{
		Market: market.Options{
			Address:             common.HexToAddress("0x000000000000000000000000000000000000c0de"),
			Admin:               common.HexToAddress(admin),
			Treasury:            common.HexToAddress(admin),
			ReserveAsset:        common.HexToAddress(reserve),
			ReserveDecimals:     6,
			DefaultThresholdUSD: 69_000,
		},
		DexCustody:   common.HexToAddress("0x000000000000000000000000000000000000de00"),
		AutoMigrate:  true,
		BatchSize:    4,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

func writeScript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func setupLines() []string {
	return []string{
		`{"op":"fund","account":"` + trader + `","amount":"1000000000"}`,
		`{"op":"oracle","price_cents":100,"source":"manual","at":1700000000}`,
		`{"op":"create_pool","creator":"` + trader + `","as":"moon","name":"Moon","ticker":"MOON","decimals":6,"reserve_ratio":50,"initial_reserve":"100000000","threshold_usd":100}`,
	}
}

func TestReplayAutoMigratesAndStoresLogs(t *testing.T) {
	lines := setupLines()
	for i := 0; i < 10; i++ {
		lines = append(lines, `{"op":"buy","trader":"`+trader+`","pool":"moon","amount":"10000000","at":"2023-11-14T22:15:00Z"}`)
	}
	path := writeScript(t, lines...)

	sink := &memorySink{fail: 1}
	r, err := NewRunner(testConfig(), sink, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	stats, err := r.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if stats.Commands != 13 || stats.Applied+stats.Rejected != 13 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Migrated != 1 {
		t.Fatalf("expected one migration, got %d", stats.Migrated)
	}
	// Trading stops once the pool migrates.
	if stats.Rejected < 4 {
		t.Fatalf("expected buys after migration to be rejected: %+v", stats)
	}

	pools := r.Pools()
	if len(pools) != 1 {
		t.Fatalf("pools: %d", len(pools))
	}
	pool := pools[0]
	if pool.Settings.DexPoolReference == nil || pool.Curve.ReserveBalance != 0 {
		t.Fatalf("pool not handed to dex: %+v", pool.Settings)
	}
	pos, ok := r.DEX().Position(pool.ID)
	if !ok || pos.Reserve == 0 || pos.Tokens == 0 || pos.Reference != *pool.Settings.DexPoolReference {
		t.Fatalf("dex position: %+v %v", pos, ok)
	}

	records := sink.records()
	if len(records) != r.Engine().Journal().Len() || stats.Logs != len(records) {
		t.Fatalf("stored %d logs, journal has %d", len(records), r.Engine().Journal().Len())
	}
	for i, rec := range records {
		if rec.Seq != uint64(i+1) {
			t.Fatalf("record %d has seq %d", i, rec.Seq)
		}
	}
	for _, b := range sink.batches {
		if len(b) > 4 {
			t.Fatalf("batch of %d exceeds batch size", len(b))
		}
	}
	last := records[len(records)-1]
	if last.Timestamp != 1700000100 {
		t.Fatalf("last log timestamp %d", last.Timestamp)
	}
}

func TestReplayRejectsBadCommands(t *testing.T) {
	lines := append(setupLines(),
		`not json`,
		`{"op":"teleport"}`,
		`{"op":"buy","trader":"`+trader+`","pool":"nope","amount":"1"}`,
		`{"op":"buy","trader":"`+trader+`","pool":"moon","amount":"-5"}`,
		`{"op":"update_fee","caller":"`+trader+`","buy_bps":10,"sell_bps":10}`,
		`{"op":"oracle","price_cents":100,"at":1600000000}`,
		`{"op":"buy","trader":"`+trader+`","pool":"moon","amount":"10000000","min_out":"999999999"}`,
		`{"op":"sell","trader":"`+trader+`","pool":"moon","amount":"1","deadline":1699999999}`,
	)
	path := writeScript(t, lines...)

	r, err := NewRunner(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	stats, err := r.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Applied != 3 || stats.Rejected != 8 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if fees := r.Engine().GetFees(); fees.BuyFeeBps != 0 {
		t.Fatalf("fee changed by non-admin: %+v", fees)
	}
}

func TestReplayFailFast(t *testing.T) {
	lines := append(setupLines(),
		`{"op":"buy","trader":"0x3333333333333333333333333333333333333333","pool":"moon","amount":"10"}`,
		`{"op":"buy","trader":"`+trader+`","pool":"moon","amount":"10"}`,
	)
	path := writeScript(t, lines...)

	cfg := testConfig()
	cfg.FailFast = true
	r, err := NewRunner(cfg, nil, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	stats, err := r.Run(context.Background(), path)
	if !errors.Is(err, market.ErrInsufficientBalance) || !strings.Contains(err.Error(), "line 4") {
		t.Fatalf("expected insufficient balance on line 4, got %v", err)
	}
	if stats.Applied != 3 || stats.Commands != 4 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestReplayAdminCommands(t *testing.T) {
	treasury := "0x000000000000000000000000000000000000be11"
	newAdmin := "0x000000000000000000000000000000000000ad02"
	lines := append(setupLines(),
		`{"op":"update_fee","buy_bps":100,"sell_bps":200}`,
		`{"op":"set_treasury","treasury":"`+treasury+`"}`,
		`{"op":"buy","trader":"`+trader+`","pool":"moon","amount":"10000000"}`,
		`{"op":"update_pool_settings","pool":"moon","trading_enabled":false,"threshold_usd":"500"}`,
		`{"op":"admin_withdraw","pool":"moon","amount":"30000000"}`,
		`{"op":"set_admin","admin":"`+newAdmin+`"}`,
		`{"op":"force_migrate","pool":"moon"}`,
	)
	path := writeScript(t, lines...)

	cfg := testConfig()
	cfg.AutoMigrate = false
	r, err := NewRunner(cfg, nil, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	stats, err := r.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Rejected != 0 || stats.Migrated != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	ctx := context.Background()
	fee, err := r.Ledger().BalanceOf(ctx, common.HexToAddress(reserve), common.HexToAddress(treasury))
	if err != nil || fee != 100_000 {
		t.Fatalf("treasury balance %d %v", fee, err)
	}
	if r.Engine().GetAdmin() != common.HexToAddress(newAdmin) {
		t.Fatalf("admin not transferred")
	}

	pool := r.Pools()[0]
	if pool.Settings.TradingEnabled || pool.Settings.MarketCapThresholdUSD != 500 {
		t.Fatalf("settings: %+v", pool.Settings)
	}
	if pool.Curve.LockedReserve != 70_000_000 || pool.Curve.IsActive || !pool.Settings.MigrationCompleted {
		t.Fatalf("curve: %+v", pool.Curve)
	}
	if pool.Settings.DexPoolReference != nil {
		t.Fatalf("liquidity moved without auto-migrate")
	}

	// The new admin can now hand the pool to the DEX.
	res, err := r.Engine().MigrateLiquidity(ctx, common.HexToAddress(newAdmin), pool.ID, r.DEX())
	if err != nil || res.Reserve != pool.Curve.ReserveBalance {
		t.Fatalf("migrate: %+v %v", res, err)
	}
}

func TestWriteSnapshot(t *testing.T) {
	path := writeScript(t, setupLines()...)
	r, err := NewRunner(testConfig(), nil, nil)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	if _, err := r.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := filepath.Join(t.TempDir(), "snap", "pools.jsonl")
	if err := r.WriteSnapshot(out); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	lines := 0
	if err := storage.ScanFile(out, func(_ int, line []byte) error {
		lines++
		if !strings.Contains(string(line), `"ticker":"MOON"`) {
			t.Fatalf("unexpected snapshot line: %s", line)
		}
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if lines != 1 {
		t.Fatalf("snapshot lines: %d", lines)
	}
}

func TestMarketOptions(t *testing.T) {
	opts, err := MarketOptions(config.MarketConfig{
		EngineAddress:       "0x000000000000000000000000000000000000c0de",
		Admin:               admin,
		ReserveAsset:        reserve,
		DefaultThresholdUSD: 69_000,
		Linear:              true,
	})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Treasury != opts.Admin {
		t.Fatalf("treasury should default to admin")
	}
	linear, err := opts.Pricer.PurchaseReturn(1_000_000, 1_000_000, 50, 500_000)
	if err != nil {
		t.Fatalf("linear quote: %v", err)
	}
	if want, _ := curve.Linear.PurchaseReturn(1_000_000, 1_000_000, 50, 500_000); linear != want {
		t.Fatalf("expected the linear pricer, got %d want %d", linear, want)
	}

	if _, err := MarketOptions(config.MarketConfig{EngineAddress: "0xc0de", Admin: admin, ReserveAsset: reserve}); err == nil {
		t.Fatalf("expected invalid engine address error")
	}
	if _, err := MarketOptions(config.MarketConfig{EngineAddress: "0x000000000000000000000000000000000000c0de", ReserveAsset: reserve}); err == nil {
		t.Fatalf("expected missing admin error")
	}
}
