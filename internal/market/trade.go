package market

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveLaunch/internal/curve"
	"curveLaunch/internal/ledger"
	"curveLaunch/internal/model"
)

// BuyParams is a purchase request. A zero Deadline is not enforced.
type BuyParams struct {
	Pool          common.Address
	DepositAmount uint64
	MinTokensOut  uint64
	Deadline      time.Time
}

// SellParams is a sale request. A zero Deadline is not enforced.
type SellParams struct {
	Pool          common.Address
	SellAmount    uint64
	MinDepositOut uint64
	Deadline      time.Time
}

// BuyResult reports an executed purchase.
type BuyResult struct {
	TokensOut      uint64
	Fee            uint64
	NetDeposit     uint64
	NewPrice       uint64
	NewSupply      uint64
	MigrationReady bool
}

// SellResult reports an executed sale.
type SellResult struct {
	GrossReturn uint64
	Fee         uint64
	NetReturn   uint64
	NewPrice    uint64
	NewSupply   uint64
}

func (e *Engine) checkDeadline(op string, pool common.Address, deadline time.Time) error {
	if deadline.IsZero() {
		return nil
	}
	if now := e.now(); now.After(deadline) {
		return opErr(op, pool, ErrDeadlineExceeded, "now %s after deadline %s", now.UTC().Format(time.RFC3339), deadline.UTC().Format(time.RFC3339))
	}
	return nil
}

// tradable resolves the pool entry and checks it accepts trades.
func (e *Engine) tradable(op string, id common.Address) (*poolEntry, error) {
	entry, ok := e.entry(id)
	if !ok {
		return nil, opErr(op, id, ErrPoolNotFound, "")
	}
	pool := entry.load()
	if !pool.Tradable() {
		return nil, opErr(op, id, ErrTradingDisabled, "active=%t enabled=%t", pool.Curve.IsActive, pool.Settings.TradingEnabled)
	}
	return entry, nil
}

// Buy deposits reserve into a pool and mints tokens to the buyer.
func (e *Engine) Buy(ctx context.Context, buyer common.Address, params BuyParams) (*BuyResult, error) {
	const op = "buy"
	id := params.Pool
	if err := e.checkDeadline(op, id, params.Deadline); err != nil {
		return nil, err
	}
	entry, err := e.tradable(op, id)
	if err != nil {
		return nil, err
	}
	if params.DepositAmount == 0 {
		return nil, opErr(op, id, ErrValidation, "deposit must be > 0")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Re-check under the pool lock; a migration may have committed meanwhile.
	current := entry.load()
	if !current.Tradable() {
		return nil, opErr(op, id, ErrTradingDisabled, "active=%t enabled=%t", current.Curve.IsActive, current.Settings.TradingEnabled)
	}

	supply, err := e.ledger.Supply(ctx, id)
	if err != nil {
		return nil, opErr(op, id, err, "read supply")
	}

	fees := e.feeConfig()
	fee := bpsFee(params.DepositAmount, fees.BuyFeeBps)
	net := params.DepositAmount - fee

	curveReserve := current.Curve.CurveReserve()
	tokensOut, err := e.pricer.PurchaseReturn(supply, curveReserve, current.Curve.ReserveRatio, net)
	if err != nil {
		return nil, mathErr(op, id, err)
	}
	if tokensOut < params.MinTokensOut {
		return nil, opErr(op, id, ErrSlippageExceeded, "tokens out %d < min %d", tokensOut, params.MinTokensOut)
	}
	if supply > ^uint64(0)-tokensOut || current.Curve.ReserveBalance > ^uint64(0)-net {
		return nil, opErr(op, id, curve.ErrOverflow, "")
	}
	newSupply := supply + tokensOut
	if current.MaxSupply != nil && newSupply > *current.MaxSupply {
		return nil, opErr(op, id, ErrMaxSupplyExceeded, "supply %d exceeds max %d", newSupply, *current.MaxSupply)
	}

	balance, err := e.ledger.BalanceOf(ctx, e.reserveAsset, buyer)
	if err != nil {
		return nil, opErr(op, id, err, "read buyer balance")
	}
	if balance < params.DepositAmount {
		return nil, opErr(op, id, ErrInsufficientBalance, "buyer holds %d, needs %d", balance, params.DepositAmount)
	}

	next := current.Clone()
	next.Curve.ReserveBalance += net
	newPrice, err := curve.CurrentPrice(newSupply, next.Curve.CurveReserve(), next.Curve.ReserveRatio)
	if err != nil {
		return nil, mathErr(op, id, err)
	}

	batch := ledger.NewBatch().
		Transfer(e.reserveAsset, buyer, id, net).
		Transfer(e.reserveAsset, buyer, fees.Treasury, fee).
		Mint(id, buyer, tokensOut)
	if err := e.ledger.Settle(ctx, batch); err != nil {
		return nil, settleErr(op, id, err)
	}

	entry.snap.Store(next)
	e.addCollected(net)
	e.emit(model.EventBuyExecuted, id, model.BuyExecutedEvent{
		Pool:          id,
		Buyer:         buyer,
		DepositAmount: params.DepositAmount,
		TokensOut:     tokensOut,
		Fee:           fee,
		NewPrice:      newPrice,
		NewSupply:     newSupply,
	})
	e.logger.Debug("buy executed",
		zap.String("pool", id.Hex()),
		zap.String("buyer", buyer.Hex()),
		zap.Uint64("deposit", params.DepositAmount),
		zap.Uint64("tokens_out", tokensOut),
		zap.Uint64("fee", fee),
	)

	result := &BuyResult{
		TokensOut:  tokensOut,
		Fee:        fee,
		NetDeposit: net,
		NewPrice:   newPrice,
		NewSupply:  newSupply,
	}
	result.MigrationReady = e.checkMigration(entry, newSupply)
	return result, nil
}

// Sell burns tokens from the seller and pays out reserve from the curve.
func (e *Engine) Sell(ctx context.Context, seller common.Address, params SellParams) (*SellResult, error) {
	const op = "sell"
	id := params.Pool
	if err := e.checkDeadline(op, id, params.Deadline); err != nil {
		return nil, err
	}
	entry, err := e.tradable(op, id)
	if err != nil {
		return nil, err
	}
	if params.SellAmount == 0 {
		return nil, opErr(op, id, ErrValidation, "sell amount must be > 0")
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	current := entry.load()
	if !current.Tradable() {
		return nil, opErr(op, id, ErrTradingDisabled, "active=%t enabled=%t", current.Curve.IsActive, current.Settings.TradingEnabled)
	}

	held, err := e.ledger.BalanceOf(ctx, id, seller)
	if err != nil {
		return nil, opErr(op, id, err, "read seller balance")
	}
	if held < params.SellAmount {
		return nil, opErr(op, id, ErrInsufficientBalance, "seller holds %d, sells %d", held, params.SellAmount)
	}

	supply, err := e.ledger.Supply(ctx, id)
	if err != nil {
		return nil, opErr(op, id, err, "read supply")
	}

	curveReserve := current.Curve.CurveReserve()
	gross, err := e.pricer.SaleReturn(supply, curveReserve, current.Curve.ReserveRatio, params.SellAmount)
	if err != nil {
		return nil, mathErr(op, id, err)
	}

	fees := e.feeConfig()
	fee := bpsFee(gross, fees.SellFeeBps)
	net := gross - fee
	if net < params.MinDepositOut {
		return nil, opErr(op, id, ErrSlippageExceeded, "deposit out %d < min %d", net, params.MinDepositOut)
	}
	if curveReserve < gross {
		return nil, opErr(op, id, ErrInsufficientReserve, "curve reserve %d < return %d", curveReserve, gross)
	}

	next := current.Clone()
	next.Curve.ReserveBalance -= gross
	newSupply := supply - params.SellAmount
	newPrice, err := curve.CurrentPrice(newSupply, next.Curve.CurveReserve(), next.Curve.ReserveRatio)
	if err != nil {
		return nil, mathErr(op, id, err)
	}

	batch := ledger.NewBatch().
		Burn(id, seller, params.SellAmount).
		Transfer(e.reserveAsset, id, seller, net).
		Transfer(e.reserveAsset, id, fees.Treasury, fee)
	if err := e.ledger.Settle(ctx, batch); err != nil {
		return nil, settleErr(op, id, err)
	}

	entry.snap.Store(next)
	e.addPaidOut(net)
	e.emit(model.EventSellExecuted, id, model.SellExecutedEvent{
		Pool:       id,
		Seller:     seller,
		SellAmount: params.SellAmount,
		DepositOut: net,
		Fee:        fee,
		NewPrice:   newPrice,
		NewSupply:  newSupply,
	})
	e.logger.Debug("sell executed",
		zap.String("pool", id.Hex()),
		zap.String("seller", seller.Hex()),
		zap.Uint64("sell_amount", params.SellAmount),
		zap.Uint64("deposit_out", net),
		zap.Uint64("fee", fee),
	)

	return &SellResult{
		GrossReturn: gross,
		Fee:         fee,
		NetReturn:   net,
		NewPrice:    newPrice,
		NewSupply:   newSupply,
	}, nil
}
