package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveLaunch/internal/curve"
	"curveLaunch/internal/ledger"
	"curveLaunch/internal/model"
)

var (
	hundred      = big.NewInt(100)
	precisionBig = new(big.Int).SetUint64(curve.Precision)
	maxUint64Big = new(big.Int).SetUint64(^uint64(0))
)

// marketCapCents returns supply*price*oracle/(Precision*10^reserveDecimals),
// saturated to uint64.
func (e *Engine) marketCapCents(pool *model.Pool, supply, oracleCents uint64) (uint64, error) {
	price, err := curve.CurrentPrice(supply, pool.Curve.CurveReserve(), pool.Curve.ReserveRatio)
	if err != nil {
		return 0, err
	}
	num := new(big.Int).SetUint64(supply)
	num.Mul(num, new(big.Int).SetUint64(price))
	num.Mul(num, new(big.Int).SetUint64(oracleCents))

	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(e.reserveDecimals)), nil)
	den.Mul(den, precisionBig)
	num.Quo(num, den)

	if num.Cmp(maxUint64Big) > 0 {
		return ^uint64(0), nil
	}
	return num.Uint64(), nil
}

// thresholdReached compares against a fresh oracle price only.
func (e *Engine) thresholdReached(pool *model.Pool, supply uint64) (bool, uint64, error) {
	oracle := e.GetOracle()
	if !oracle.Fresh(e.now(), e.oracleMaxAge) {
		return false, 0, nil
	}
	capCents, err := e.marketCapCents(pool, supply, oracle.PriceUSDCents)
	if err != nil {
		return false, 0, err
	}
	threshold := new(big.Int).SetUint64(pool.Settings.MarketCapThresholdUSD)
	threshold.Mul(threshold, hundred)
	return new(big.Int).SetUint64(capCents).Cmp(threshold) >= 0, capCents, nil
}

// checkMigration runs after a committed buy with the pool lock held.
func (e *Engine) checkMigration(entry *poolEntry, supply uint64) bool {
	current := entry.load()
	if !current.Curve.IsActive {
		return false
	}
	reached, capCents, err := e.thresholdReached(current, supply)
	if err != nil {
		e.logger.Warn("market cap evaluation failed", zap.String("pool", current.ID.Hex()), zap.Error(err))
		return false
	}
	if !reached {
		return false
	}
	e.markMigrated(entry, current, supply, capCents, false)
	return true
}

func (e *Engine) markMigrated(entry *poolEntry, current *model.Pool, supply, capCents uint64, forced bool) {
	next := current.Clone()
	ts := e.now().UTC()
	next.Curve.IsActive = false
	next.Settings.MigrationCompleted = true
	next.Settings.MigrationTimestamp = &ts
	entry.snap.Store(next)

	e.emit(model.EventMigrationReady, next.ID, model.MigrationReadyEvent{
		Pool:           next.ID,
		MarketCapCents: capCents,
		ReserveAmount:  next.Curve.ReserveBalance,
		TokenAmount:    supply,
		Forced:         forced,
	})
	e.logger.Info("pool ready for migration",
		zap.String("pool", next.ID.Hex()),
		zap.Uint64("market_cap_cents", capCents),
		zap.Uint64("reserve", next.Curve.ReserveBalance),
		zap.Bool("forced", forced),
	)
}

// ForceMigrate disables curve trading on an active pool regardless of its
// market cap.
func (e *Engine) ForceMigrate(ctx context.Context, caller, id common.Address) error {
	const op = "force_migrate"
	if err := e.requireAdmin(op, id, caller); err != nil {
		return err
	}
	entry, ok := e.entry(id)
	if !ok {
		return opErr(op, id, ErrPoolNotFound, "")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	current := entry.load()
	if !current.Curve.IsActive {
		return opErr(op, id, ErrMigrationState, "pool already migrated")
	}
	supply, err := e.ledger.Supply(ctx, id)
	if err != nil {
		return opErr(op, id, err, "read supply")
	}

	var capCents uint64
	if oracle := e.GetOracle(); oracle.IsSet() {
		capCents, err = e.marketCapCents(current, supply, oracle.PriceUSDCents)
		if err != nil {
			return mathErr(op, id, err)
		}
	}
	e.markMigrated(entry, current, supply, capCents, true)
	return nil
}

// MigrationResult reports a completed DEX hand-off.
type MigrationResult struct {
	DexPool string
	Reserve uint64
	Tokens  uint64
}

// MigrateLiquidity moves a migrated pool's reserve, plus tokens matching the
// final curve price, to the migrator and records the DEX pool it returns.
func (e *Engine) MigrateLiquidity(ctx context.Context, caller, id common.Address, migrator ledger.Migrator) (*MigrationResult, error) {
	const op = "migrate_liquidity"
	if err := e.requireAdmin(op, id, caller); err != nil {
		return nil, err
	}
	if migrator == nil {
		return nil, opErr(op, id, ErrValidation, "migrator is nil")
	}
	entry, ok := e.entry(id)
	if !ok {
		return nil, opErr(op, id, ErrPoolNotFound, "")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	current := entry.load()
	if current.Curve.IsActive || !current.Settings.MigrationCompleted {
		return nil, opErr(op, id, ErrMigrationState, "pool has not reached migration")
	}
	if current.Settings.DexPoolReference != nil {
		return nil, opErr(op, id, ErrMigrationState, "liquidity already migrated to %s", *current.Settings.DexPoolReference)
	}

	supply, err := e.ledger.Supply(ctx, id)
	if err != nil {
		return nil, opErr(op, id, err, "read supply")
	}
	tokens, err := e.matchingTokens(current, supply)
	if err != nil {
		return nil, mathErr(op, id, err)
	}
	reserve := current.Curve.ReserveBalance
	custody := migrator.Custody()

	move := ledger.NewBatch().
		Transfer(e.reserveAsset, id, custody, reserve).
		Mint(id, custody, tokens)
	if err := e.ledger.Settle(ctx, move); err != nil {
		return nil, settleErr(op, id, err)
	}

	ref, err := migrator.DepositLiquidity(ctx, id, reserve, tokens)
	if err != nil {
		undo := ledger.NewBatch().
			Burn(id, custody, tokens).
			Transfer(e.reserveAsset, custody, id, reserve)
		if uerr := e.ledger.Settle(context.WithoutCancel(ctx), undo); uerr != nil {
			e.logger.Error("migration compensation failed",
				zap.String("pool", id.Hex()),
				zap.Uint64("reserve", reserve),
				zap.Uint64("tokens", tokens),
				zap.Error(uerr),
			)
			return nil, opErr(op, id, errors.Join(err, uerr), "compensation failed")
		}
		return nil, opErr(op, id, fmt.Errorf("deposit liquidity: %w", err), "")
	}

	next := current.Clone()
	next.Curve.ReserveBalance = 0
	next.Curve.LockedReserve = 0
	next.Settings.DexPoolReference = &ref
	entry.snap.Store(next)
	e.addPaidOut(reserve)

	e.emit(model.EventMigrationCompleted, id, model.MigrationCompletedEvent{
		Pool:          id,
		DexPool:       ref,
		ReserveAmount: reserve,
		TokenAmount:   tokens,
	})
	e.logger.Info("liquidity migrated",
		zap.String("pool", id.Hex()),
		zap.String("dex_pool", ref),
		zap.Uint64("reserve", reserve),
		zap.Uint64("tokens", tokens),
	)

	return &MigrationResult{DexPool: ref, Reserve: reserve, Tokens: tokens}, nil
}

// matchingTokens prices the whole reserve at the final curve price, capped by
// any remaining max supply.
func (e *Engine) matchingTokens(pool *model.Pool, supply uint64) (uint64, error) {
	price, err := curve.CurrentPrice(supply, pool.Curve.CurveReserve(), pool.Curve.ReserveRatio)
	if err != nil {
		return 0, err
	}
	if price == 0 || pool.Curve.ReserveBalance == 0 {
		return 0, nil
	}
	tokens, err := curve.MulDiv(pool.Curve.ReserveBalance, curve.Precision, price)
	if err != nil {
		return 0, err
	}
	if pool.MaxSupply != nil {
		room := uint64(0)
		if *pool.MaxSupply > supply {
			room = *pool.MaxSupply - supply
		}
		if tokens > room {
			tokens = room
		}
	}
	return tokens, nil
}
