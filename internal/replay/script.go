package replay

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tidwall/gjson"

	"curveLaunch/internal/config"
	"curveLaunch/internal/market"
)

// Script commands. Every line is a JSON object with an "op" field and an
// optional "at" timestamp (unix seconds or RFC3339) that advances the
// engine clock before the command runs. Admin commands act as the current
// admin unless "caller" is given. Pools may be referenced by the alias given
// in create_pool's "as" field.
const (
	OpFund               = "fund"
	OpOracle             = "oracle"
	OpCreatePool         = "create_pool"
	OpBuy                = "buy"
	OpSell               = "sell"
	OpUpdateFee          = "update_fee"
	OpSetAdmin           = "set_admin"
	OpSetTreasury        = "set_treasury"
	OpUpdatePoolSettings = "update_pool_settings"
	OpAdminWithdraw      = "admin_withdraw"
	OpForceMigrate       = "force_migrate"
	OpMigrateLiquidity   = "migrate_liquidity"
)

type handler func(r *Runner, ctx context.Context, cmd gjson.Result) error

var handlers = map[string]handler{
	OpFund:               (*Runner).fund,
	OpOracle:             (*Runner).oracle,
	OpCreatePool:         (*Runner).createPool,
	OpBuy:                (*Runner).buy,
	OpSell:               (*Runner).sell,
	OpUpdateFee:          (*Runner).updateFee,
	OpSetAdmin:           (*Runner).setAdmin,
	OpSetTreasury:        (*Runner).setTreasury,
	OpUpdatePoolSettings: (*Runner).updatePoolSettings,
	OpAdminWithdraw:      (*Runner).adminWithdraw,
	OpForceMigrate:       (*Runner).forceMigrate,
	OpMigrateLiquidity:   (*Runner).migrateLiquidity,
}

func opName(line []byte) string {
	return gjson.GetBytes(line, "op").String()
}

func (r *Runner) dispatch(ctx context.Context, line []byte) error {
	if !gjson.ValidBytes(line) {
		return fmt.Errorf("invalid json")
	}
	cmd := gjson.ParseBytes(line)
	if !cmd.IsObject() {
		return fmt.Errorf("command must be an object")
	}

	op := cmd.Get("op").String()
	h, ok := handlers[op]
	if !ok {
		return fmt.Errorf("unknown op %q", op)
	}

	if at, ok, err := timeField(cmd, "at"); err != nil {
		return err
	} else if ok {
		if err := r.setClock(at); err != nil {
			return err
		}
	}
	return h(r, ctx, cmd)
}

func (r *Runner) fund(_ context.Context, cmd gjson.Result) error {
	account, err := r.account(cmd, "account")
	if err != nil {
		return err
	}
	amount, err := uintField(cmd, "amount", true)
	if err != nil {
		return err
	}
	return r.ledger.Fund(r.cfg.Market.ReserveAsset, account, amount)
}

func (r *Runner) oracle(ctx context.Context, cmd gjson.Result) error {
	caller, err := r.caller(cmd)
	if err != nil {
		return err
	}
	price, err := uintField(cmd, "price_cents", true)
	if err != nil {
		return err
	}
	return r.engine.UpdateOraclePrice(ctx, caller, price, cmd.Get("source").String())
}

func (r *Runner) createPool(ctx context.Context, cmd gjson.Result) error {
	creator, err := r.account(cmd, "creator")
	if err != nil {
		return err
	}
	decimals, err := uintField(cmd, "decimals", false)
	if err != nil {
		return err
	}
	if decimals > 36 {
		return fmt.Errorf("decimals %d out of range", decimals)
	}
	ratio, err := uintField(cmd, "reserve_ratio", true)
	if err != nil {
		return err
	}
	if ratio > 255 {
		return fmt.Errorf("reserve_ratio %d out of range", ratio)
	}
	initial, err := uintField(cmd, "initial_reserve", true)
	if err != nil {
		return err
	}
	maxSupply, err := optionalUint(cmd, "max_supply")
	if err != nil {
		return err
	}
	threshold, err := optionalUint(cmd, "threshold_usd")
	if err != nil {
		return err
	}

	alias := strings.ToLower(strings.TrimSpace(cmd.Get("as").String()))
	if alias != "" {
		if _, taken := r.aliases[alias]; taken {
			return fmt.Errorf("pool alias %q already used", alias)
		}
	}

	pool, err := r.engine.CreatePool(ctx, creator, market.CreatePoolParams{
		Name:                  cmd.Get("name").String(),
		Ticker:                cmd.Get("ticker").String(),
		ImageURI:              cmd.Get("image_uri").String(),
		Description:           optionalString(cmd, "description"),
		Twitter:               optionalString(cmd, "twitter"),
		Telegram:              optionalString(cmd, "telegram"),
		Website:               optionalString(cmd, "website"),
		Decimals:              uint8(decimals),
		MaxSupply:             maxSupply,
		ReserveRatio:          uint8(ratio),
		InitialReserve:        initial,
		MarketCapThresholdUSD: threshold,
	})
	if err != nil {
		return err
	}
	if alias != "" {
		r.aliases[alias] = pool.ID
	}
	return nil
}

func (r *Runner) buy(ctx context.Context, cmd gjson.Result) error {
	trader, err := r.account(cmd, "trader")
	if err != nil {
		return err
	}
	pool, err := r.pool(cmd)
	if err != nil {
		return err
	}
	amount, err := uintField(cmd, "amount", true)
	if err != nil {
		return err
	}
	minOut, err := uintField(cmd, "min_out", false)
	if err != nil {
		return err
	}
	deadline, _, err := timeField(cmd, "deadline")
	if err != nil {
		return err
	}

	res, err := r.engine.Buy(ctx, trader, market.BuyParams{
		Pool:          pool,
		DepositAmount: amount,
		MinTokensOut:  minOut,
		Deadline:      deadline,
	})
	if err != nil {
		return err
	}
	if res.MigrationReady {
		r.pending = append(r.pending, pool)
	}
	return nil
}

func (r *Runner) sell(ctx context.Context, cmd gjson.Result) error {
	trader, err := r.account(cmd, "trader")
	if err != nil {
		return err
	}
	pool, err := r.pool(cmd)
	if err != nil {
		return err
	}
	amount, err := uintField(cmd, "amount", true)
	if err != nil {
		return err
	}
	minOut, err := uintField(cmd, "min_out", false)
	if err != nil {
		return err
	}
	deadline, _, err := timeField(cmd, "deadline")
	if err != nil {
		return err
	}

	_, err = r.engine.Sell(ctx, trader, market.SellParams{
		Pool:          pool,
		SellAmount:    amount,
		MinDepositOut: minOut,
		Deadline:      deadline,
	})
	return err
}

func (r *Runner) updateFee(ctx context.Context, cmd gjson.Result) error {
	caller, err := r.caller(cmd)
	if err != nil {
		return err
	}
	buyBps, err := uintField(cmd, "buy_bps", true)
	if err != nil {
		return err
	}
	sellBps, err := uintField(cmd, "sell_bps", true)
	if err != nil {
		return err
	}
	if buyBps > 0xffff || sellBps > 0xffff {
		return fmt.Errorf("fee bps out of range")
	}
	return r.engine.UpdateFee(ctx, caller, uint16(buyBps), uint16(sellBps))
}

func (r *Runner) setAdmin(ctx context.Context, cmd gjson.Result) error {
	caller, err := r.caller(cmd)
	if err != nil {
		return err
	}
	admin, err := r.account(cmd, "admin")
	if err != nil {
		return err
	}
	return r.engine.SetAdmin(ctx, caller, admin)
}

func (r *Runner) setTreasury(ctx context.Context, cmd gjson.Result) error {
	caller, err := r.caller(cmd)
	if err != nil {
		return err
	}
	treasury, err := r.account(cmd, "treasury")
	if err != nil {
		return err
	}
	return r.engine.SetTreasury(ctx, caller, treasury)
}

func (r *Runner) updatePoolSettings(ctx context.Context, cmd gjson.Result) error {
	caller, err := r.caller(cmd)
	if err != nil {
		return err
	}
	pool, err := r.pool(cmd)
	if err != nil {
		return err
	}
	threshold, err := optionalUint(cmd, "threshold_usd")
	if err != nil {
		return err
	}
	update := market.PoolSettingsUpdate{MarketCapThresholdUSD: threshold}
	if v := cmd.Get("trading_enabled"); v.Exists() {
		if !v.IsBool() {
			return fmt.Errorf("trading_enabled must be a boolean")
		}
		enabled := v.Bool()
		update.TradingEnabled = &enabled
	}
	return r.engine.UpdatePoolSettings(ctx, caller, pool, update)
}

func (r *Runner) adminWithdraw(ctx context.Context, cmd gjson.Result) error {
	caller, err := r.caller(cmd)
	if err != nil {
		return err
	}
	pool, err := r.pool(cmd)
	if err != nil {
		return err
	}
	amount, err := uintField(cmd, "amount", true)
	if err != nil {
		return err
	}
	return r.engine.AdminWithdraw(ctx, caller, pool, amount)
}

func (r *Runner) forceMigrate(ctx context.Context, cmd gjson.Result) error {
	caller, err := r.caller(cmd)
	if err != nil {
		return err
	}
	pool, err := r.pool(cmd)
	if err != nil {
		return err
	}
	if err := r.engine.ForceMigrate(ctx, caller, pool); err != nil {
		return err
	}
	r.pending = append(r.pending, pool)
	return nil
}

func (r *Runner) migrateLiquidity(ctx context.Context, cmd gjson.Result) error {
	caller, err := r.caller(cmd)
	if err != nil {
		return err
	}
	pool, err := r.pool(cmd)
	if err != nil {
		return err
	}
	if _, err := r.engine.MigrateLiquidity(ctx, caller, pool, r.dex); err != nil {
		return err
	}
	r.stats.Migrated++
	return nil
}

func (r *Runner) account(cmd gjson.Result, field string) (common.Address, error) {
	return ParseAddress(field, cmd.Get(field).String())
}

func (r *Runner) caller(cmd gjson.Result) (common.Address, error) {
	if !cmd.Get("caller").Exists() {
		return r.engine.GetAdmin(), nil
	}
	return r.account(cmd, "caller")
}

// pool resolves the "pool" field as an alias first, then as an address.
func (r *Runner) pool(cmd gjson.Result) (common.Address, error) {
	ref := strings.TrimSpace(cmd.Get("pool").String())
	if id, ok := r.aliases[strings.ToLower(ref)]; ok {
		return id, nil
	}
	return ParseAddress("pool", ref)
}

// uintField reads a non-negative integer given as a JSON number or a
// decimal string. Large amounts should be strings to survive JSON tooling.
func uintField(cmd gjson.Result, field string, required bool) (uint64, error) {
	v := cmd.Get(field)
	if !v.Exists() {
		if required {
			return 0, fmt.Errorf("%s is required", field)
		}
		return 0, nil
	}

	var raw string
	switch v.Type {
	case gjson.Number:
		raw = v.Raw
	case gjson.String:
		raw = strings.TrimSpace(v.Str)
	default:
		return 0, fmt.Errorf("%s must be an integer", field)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	return n, nil
}

func optionalUint(cmd gjson.Result, field string) (*uint64, error) {
	if !cmd.Get(field).Exists() {
		return nil, nil
	}
	n, err := uintField(cmd, field, true)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func optionalString(cmd gjson.Result, field string) *string {
	v := cmd.Get(field)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	s := v.String()
	return &s
}

// timeField reads unix seconds or an RFC3339 string.
func timeField(cmd gjson.Result, field string) (time.Time, bool, error) {
	v := cmd.Get(field)
	if !v.Exists() {
		return time.Time{}, false, nil
	}

	var raw string
	switch v.Type {
	case gjson.Number:
		raw = v.Raw
	case gjson.String:
		raw = strings.TrimSpace(v.Str)
	default:
		return time.Time{}, false, fmt.Errorf("%s must be a timestamp", field)
	}
	secs, err := config.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s: %w", field, err)
	}
	if secs == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(int64(secs), 0).UTC(), true, nil
}
