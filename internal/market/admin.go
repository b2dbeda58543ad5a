package market

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveLaunch/internal/ledger"
	"curveLaunch/internal/model"
)

// SetAdmin hands admin rights to newAdmin.
func (e *Engine) SetAdmin(ctx context.Context, caller, newAdmin common.Address) error {
	const op = "set_admin"
	e.govMu.Lock()
	defer e.govMu.Unlock()

	old := e.admin
	if caller != old {
		return opErr(op, common.Address{}, ErrUnauthorized, "caller %s", caller.Hex())
	}
	if newAdmin == (common.Address{}) {
		return opErr(op, common.Address{}, ErrValidation, "admin must be non-zero")
	}
	e.admin = newAdmin

	e.emit(model.EventAdminChanged, e.address, model.AdminChangedEvent{OldAdmin: old, NewAdmin: newAdmin})
	e.logger.Info("admin changed", zap.String("old", old.Hex()), zap.String("new", newAdmin.Hex()))
	return nil
}

// SetTreasury changes the fee recipient.
func (e *Engine) SetTreasury(ctx context.Context, caller, treasury common.Address) error {
	const op = "set_treasury"
	e.govMu.Lock()
	defer e.govMu.Unlock()

	if caller != e.admin {
		return opErr(op, common.Address{}, ErrUnauthorized, "caller %s", caller.Hex())
	}
	if treasury == (common.Address{}) {
		return opErr(op, common.Address{}, ErrValidation, "treasury must be non-zero")
	}
	old := e.fees.Treasury
	e.fees.Treasury = treasury

	e.emit(model.EventTreasuryChanged, e.address, model.TreasuryChangedEvent{OldTreasury: old, NewTreasury: treasury})
	e.logger.Info("treasury changed", zap.String("old", old.Hex()), zap.String("new", treasury.Hex()))
	return nil
}

// UpdateFee replaces both fee rates.
func (e *Engine) UpdateFee(ctx context.Context, caller common.Address, buyBps, sellBps uint16) error {
	const op = "update_fee"
	e.govMu.Lock()
	defer e.govMu.Unlock()

	if caller != e.admin {
		return opErr(op, common.Address{}, ErrUnauthorized, "caller %s", caller.Hex())
	}
	if buyBps > model.MaxFeeBps || sellBps > model.MaxFeeBps {
		return opErr(op, common.Address{}, ErrFeeTooHigh, "buy=%d sell=%d max=%d", buyBps, sellBps, model.MaxFeeBps)
	}
	e.fees.BuyFeeBps = buyBps
	e.fees.SellFeeBps = sellBps

	e.emit(model.EventFeeUpdated, e.address, model.FeeUpdatedEvent{BuyFeeBps: buyBps, SellFeeBps: sellBps})
	e.logger.Info("fees updated", zap.Uint16("buy_bps", buyBps), zap.Uint16("sell_bps", sellBps))
	return nil
}

// PoolSettingsUpdate carries the settings to change; nil fields are kept.
type PoolSettingsUpdate struct {
	MarketCapThresholdUSD *uint64
	TradingEnabled        *bool
}

// UpdatePoolSettings changes a pool's threshold or pause flag.
func (e *Engine) UpdatePoolSettings(ctx context.Context, caller, id common.Address, update PoolSettingsUpdate) error {
	const op = "update_pool_settings"
	if err := e.requireAdmin(op, id, caller); err != nil {
		return err
	}
	if update.MarketCapThresholdUSD != nil && *update.MarketCapThresholdUSD == 0 {
		return opErr(op, id, ErrValidation, "market cap threshold must be > 0")
	}
	entry, ok := e.entry(id)
	if !ok {
		return opErr(op, id, ErrPoolNotFound, "")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.load().Clone()
	if update.MarketCapThresholdUSD != nil {
		next.Settings.MarketCapThresholdUSD = *update.MarketCapThresholdUSD
	}
	if update.TradingEnabled != nil {
		next.Settings.TradingEnabled = *update.TradingEnabled
	}
	entry.snap.Store(next)

	e.emit(model.EventPoolSettingsUpdated, id, model.PoolSettingsUpdatedEvent{
		Pool:           id,
		Threshold:      next.Settings.MarketCapThresholdUSD,
		TradingEnabled: next.Settings.TradingEnabled,
	})
	e.logger.Info("pool settings updated",
		zap.String("pool", id.Hex()),
		zap.Uint64("threshold_usd", next.Settings.MarketCapThresholdUSD),
		zap.Bool("trading_enabled", next.Settings.TradingEnabled),
	)
	return nil
}

// AdminWithdraw pays amount of a pool's reserve to the admin. The locked
// seed is drawn before the curve reserve.
func (e *Engine) AdminWithdraw(ctx context.Context, caller, id common.Address, amount uint64) error {
	const op = "admin_withdraw"
	if err := e.requireAdmin(op, id, caller); err != nil {
		return err
	}
	if amount == 0 {
		return opErr(op, id, ErrValidation, "amount must be > 0")
	}
	entry, ok := e.entry(id)
	if !ok {
		return opErr(op, id, ErrPoolNotFound, "")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	current := entry.load()
	if amount > current.Curve.ReserveBalance {
		return opErr(op, id, ErrInsufficientReserve, "reserve %d < amount %d", current.Curve.ReserveBalance, amount)
	}

	if err := e.ledger.Settle(ctx, ledger.NewBatch().Transfer(e.reserveAsset, id, caller, amount)); err != nil {
		return settleErr(op, id, err)
	}

	next := current.Clone()
	next.Curve.ReserveBalance -= amount
	if amount >= next.Curve.LockedReserve {
		next.Curve.LockedReserve = 0
	} else {
		next.Curve.LockedReserve -= amount
	}
	entry.snap.Store(next)
	e.addPaidOut(amount)

	e.emit(model.EventAdminWithdrawal, id, model.AdminWithdrawalEvent{Pool: id, Admin: caller, Amount: amount})
	e.logger.Info("admin withdrawal", zap.String("pool", id.Hex()), zap.Uint64("amount", amount))
	return nil
}

// UpdateOraclePrice publishes the USD price in cents of one whole reserve unit.
func (e *Engine) UpdateOraclePrice(ctx context.Context, caller common.Address, priceUSDCents uint64, source string) error {
	const op = "update_oracle_price"
	if err := e.requireAdmin(op, common.Address{}, caller); err != nil {
		return err
	}
	if priceUSDCents == 0 {
		return opErr(op, common.Address{}, ErrValidation, "price must be > 0")
	}
	source = strings.TrimSpace(source)

	e.oracleMu.Lock()
	defer e.oracleMu.Unlock()
	e.oracle = model.OracleState{
		PriceUSDCents: priceUSDCents,
		LastUpdate:    e.now().UTC(),
		Source:        source,
	}

	e.emit(model.EventOraclePriceUpdated, e.address, model.OraclePriceUpdatedEvent{PriceUSDCents: priceUSDCents, Source: source})
	e.logger.Info("oracle price updated", zap.Uint64("price_usd_cents", priceUSDCents), zap.String("source", source))
	return nil
}
