package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"curveLaunch/internal/curve"
	"curveLaunch/internal/model"
)

// Quote is a priced but unexecuted trade.
type Quote struct {
	Amount uint64 `json:"amount,string"`
	Fee    uint64 `json:"fee,string"`
	Net    uint64 `json:"net,string"`
	Out    uint64 `json:"out,string"`
}

// GetPool returns a copy of the last committed pool state.
func (e *Engine) GetPool(id common.Address) (*model.Pool, error) {
	entry, ok := e.entry(id)
	if !ok {
		return nil, opErr("get_pool", id, ErrPoolNotFound, "")
	}
	return entry.load().Clone(), nil
}

// GetPools returns every pool in creation order.
func (e *Engine) GetPools() []*model.Pool {
	e.regMu.RLock()
	entries := make([]*poolEntry, 0, len(e.registry))
	for _, id := range e.registry {
		entries = append(entries, e.pools[id])
	}
	e.regMu.RUnlock()

	out := make([]*model.Pool, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.load().Clone())
	}
	return out
}

// PoolIDs returns the registry in creation order.
func (e *Engine) PoolIDs() []common.Address {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	out := make([]common.Address, len(e.registry))
	copy(out, e.registry)
	return out
}

func (e *Engine) poolAndSupply(ctx context.Context, op string, id common.Address) (*model.Pool, uint64, error) {
	entry, ok := e.entry(id)
	if !ok {
		return nil, 0, opErr(op, id, ErrPoolNotFound, "")
	}
	pool := entry.load()
	supply, err := e.ledger.Supply(ctx, id)
	if err != nil {
		return nil, 0, opErr(op, id, err, "read supply")
	}
	return pool, supply, nil
}

// GetCurrentPrice returns the marginal price of one token base unit in
// Precision-scaled reserve base units.
func (e *Engine) GetCurrentPrice(ctx context.Context, id common.Address) (uint64, error) {
	const op = "get_current_price"
	pool, supply, err := e.poolAndSupply(ctx, op, id)
	if err != nil {
		return 0, err
	}
	price, err := curve.CurrentPrice(supply, pool.Curve.CurveReserve(), pool.Curve.ReserveRatio)
	if err != nil {
		return 0, mathErr(op, id, err)
	}
	return price, nil
}

// CalculatePurchaseReturn quotes a buy of deposit against current state.
func (e *Engine) CalculatePurchaseReturn(ctx context.Context, id common.Address, deposit uint64) (Quote, error) {
	const op = "calculate_purchase_return"
	pool, supply, err := e.poolAndSupply(ctx, op, id)
	if err != nil {
		return Quote{}, err
	}
	fee := bpsFee(deposit, e.feeConfig().BuyFeeBps)
	net := deposit - fee
	out, err := e.pricer.PurchaseReturn(supply, pool.Curve.CurveReserve(), pool.Curve.ReserveRatio, net)
	if err != nil {
		return Quote{}, mathErr(op, id, err)
	}
	return Quote{Amount: deposit, Fee: fee, Net: net, Out: out}, nil
}

// CalculateSaleReturn quotes a sale of amount tokens against current state.
func (e *Engine) CalculateSaleReturn(ctx context.Context, id common.Address, amount uint64) (Quote, error) {
	const op = "calculate_sale_return"
	pool, supply, err := e.poolAndSupply(ctx, op, id)
	if err != nil {
		return Quote{}, err
	}
	gross, err := e.pricer.SaleReturn(supply, pool.Curve.CurveReserve(), pool.Curve.ReserveRatio, amount)
	if err != nil {
		return Quote{}, mathErr(op, id, err)
	}
	fee := bpsFee(gross, e.feeConfig().SellFeeBps)
	return Quote{Amount: amount, Fee: fee, Net: gross - fee, Out: gross - fee}, nil
}

// GetFees returns the current fee schedule.
func (e *Engine) GetFees() model.FeeConfig {
	return e.feeConfig()
}

func (e *Engine) GetAdmin() common.Address {
	e.govMu.RLock()
	defer e.govMu.RUnlock()
	return e.admin
}

func (e *Engine) GetTreasury() common.Address {
	return e.feeConfig().Treasury
}

func (e *Engine) GetOracle() model.OracleState {
	e.oracleMu.RLock()
	defer e.oracleMu.RUnlock()
	return e.oracle
}

func (e *Engine) GetLiquidity() model.LiquidityTotals {
	e.liqMu.Lock()
	defer e.liqMu.Unlock()
	return e.liquidity
}

// GetMarketCapCents values the pool's supply at the current price and the
// last oracle price, stale or not. It is zero until a price is published.
func (e *Engine) GetMarketCapCents(ctx context.Context, id common.Address) (uint64, error) {
	const op = "get_market_cap_usd"
	pool, supply, err := e.poolAndSupply(ctx, op, id)
	if err != nil {
		return 0, err
	}
	oracle := e.GetOracle()
	if !oracle.IsSet() {
		return 0, nil
	}
	capCents, err := e.marketCapCents(pool, supply, oracle.PriceUSDCents)
	if err != nil {
		return 0, mathErr(op, id, err)
	}
	return capCents, nil
}

// GetMarketCapUSD is GetMarketCapCents in dollars.
func (e *Engine) GetMarketCapUSD(ctx context.Context, id common.Address) (decimal.Decimal, error) {
	capCents, err := e.GetMarketCapCents(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(capCents), -2), nil
}

// IsMigrationThresholdReached reports whether the pool's market cap at a
// fresh oracle price meets its threshold.
func (e *Engine) IsMigrationThresholdReached(ctx context.Context, id common.Address) (bool, error) {
	const op = "is_migration_threshold_reached"
	pool, supply, err := e.poolAndSupply(ctx, op, id)
	if err != nil {
		return false, err
	}
	reached, _, err := e.thresholdReached(pool, supply)
	if err != nil {
		return false, mathErr(op, id, err)
	}
	return reached, nil
}
