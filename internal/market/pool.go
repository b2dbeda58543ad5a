package market

import (
	"context"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"curveLaunch/internal/curve"
	"curveLaunch/internal/ledger"
	"curveLaunch/internal/model"
)

// CreatePoolParams describes a new pool. Nil optional fields are left unset;
// a nil threshold takes the engine default.
type CreatePoolParams struct {
	Name                  string
	Ticker                string
	ImageURI              string
	Description           *string
	Twitter               *string
	Telegram              *string
	Website               *string
	Decimals              uint8
	MaxSupply             *uint64
	ReserveRatio          uint8
	InitialReserve        uint64
	MarketCapThresholdUSD *uint64
}

func (p CreatePoolParams) validate() error {
	const op = "create_pool"
	if n := utf8.RuneCountInString(p.Ticker); n < 1 || n > model.MaxTickerLength {
		return opErr(op, common.Address{}, ErrValidation, "ticker length %d outside [1,%d]", n, model.MaxTickerLength)
	}
	if err := curve.ValidateRatio(p.ReserveRatio); err != nil {
		return opErr(op, common.Address{}, ErrValidation, "reserve ratio %d outside [1,100]", p.ReserveRatio)
	}
	if p.InitialReserve == 0 {
		return opErr(op, common.Address{}, ErrValidation, "initial reserve must be > 0")
	}
	if p.MarketCapThresholdUSD != nil && *p.MarketCapThresholdUSD == 0 {
		return opErr(op, common.Address{}, ErrValidation, "market cap threshold must be > 0")
	}
	if p.MaxSupply != nil && *p.MaxSupply == 0 {
		return opErr(op, common.Address{}, ErrValidation, "max supply must be > 0")
	}
	return nil
}

// CreatePool issues a new token, moves the creator's seed reserve into pool
// custody and registers the pool. Nothing is stored if any step fails.
func (e *Engine) CreatePool(ctx context.Context, creator common.Address, params CreatePoolParams) (*model.Pool, error) {
	const op = "create_pool"
	if err := params.validate(); err != nil {
		return nil, err
	}

	balance, err := e.ledger.BalanceOf(ctx, e.reserveAsset, creator)
	if err != nil {
		return nil, opErr(op, common.Address{}, err, "read creator balance")
	}
	if balance < params.InitialReserve {
		return nil, opErr(op, common.Address{}, ErrInsufficientBalance, "creator holds %d, needs %d", balance, params.InitialReserve)
	}

	threshold := e.defaultThreshold
	if params.MarketCapThresholdUSD != nil {
		threshold = *params.MarketCapThresholdUSD
	}

	// Registry position fixes the pool ID, so creation holds the registry lock.
	e.regMu.Lock()
	defer e.regMu.Unlock()

	id := crypto.CreateAddress(e.address, uint64(len(e.registry)))
	pool := &model.Pool{
		ID:      id,
		Creator: creator,
		Metadata: model.Metadata{
			Name:        params.Name,
			Ticker:      params.Ticker,
			ImageURI:    params.ImageURI,
			Description: params.Description,
			Twitter:     params.Twitter,
			Telegram:    params.Telegram,
			Website:     params.Website,
			CreatedAt:   e.now().UTC(),
		},
		Decimals:  params.Decimals,
		MaxSupply: params.MaxSupply,
		Curve: model.CurveState{
			ReserveRatio:   params.ReserveRatio,
			ReserveBalance: params.InitialReserve,
			LockedReserve:  params.InitialReserve,
			IsActive:       true,
		},
		Settings: model.PoolSettings{
			MarketCapThresholdUSD: threshold,
			TradingEnabled:        true,
		},
	}
	pool = pool.Clone()

	batch := ledger.NewBatch().
		Issue(id, params.Decimals, params.MaxSupply).
		Transfer(e.reserveAsset, creator, id, params.InitialReserve)
	if err := e.ledger.Settle(ctx, batch); err != nil {
		return nil, settleErr(op, id, err)
	}

	entry := &poolEntry{}
	entry.snap.Store(pool)
	e.pools[id] = entry
	e.registry = append(e.registry, id)
	e.addCollected(params.InitialReserve)

	e.emit(model.EventPoolCreated, id, model.PoolCreatedEvent{
		Pool:           id,
		Creator:        creator,
		Name:           params.Name,
		Ticker:         params.Ticker,
		Decimals:       params.Decimals,
		ReserveRatio:   params.ReserveRatio,
		InitialReserve: params.InitialReserve,
		Threshold:      threshold,
	})
	e.logger.Info("pool created",
		zap.String("pool", id.Hex()),
		zap.String("creator", creator.Hex()),
		zap.String("ticker", params.Ticker),
		zap.Uint8("reserve_ratio", params.ReserveRatio),
		zap.Uint64("initial_reserve", params.InitialReserve),
	)

	return pool.Clone(), nil
}
