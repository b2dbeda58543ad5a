package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MaxTickerLength bounds the ticker in runes.
const MaxTickerLength = 10

// Pool is a bonding-curve market for one issued token. ID is also the
// address of the issued asset and of the pool's reserve custody.
type Pool struct {
	ID        common.Address `json:"id"`
	Creator   common.Address `json:"creator"`
	Metadata  Metadata       `json:"metadata"`
	Decimals  uint8          `json:"decimals"`
	MaxSupply *uint64        `json:"max_supply,omitempty,string"`
	Curve     CurveState     `json:"curve"`
	Settings  PoolSettings   `json:"settings"`
}

// Metadata is descriptive token information fixed at creation.
type Metadata struct {
	Name        string    `json:"name"`
	Ticker      string    `json:"ticker"`
	ImageURI    string    `json:"image_uri"`
	Description *string   `json:"description,omitempty"`
	Twitter     *string   `json:"twitter,omitempty"`
	Telegram    *string   `json:"telegram,omitempty"`
	Website     *string   `json:"website,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CurveState holds the reserve side of the curve.
//
// ReserveBalance is everything held in pool custody. LockedReserve is the
// creator seed, which backs the pool but is not priced by the curve.
type CurveState struct {
	ReserveRatio   uint8  `json:"reserve_ratio"`
	ReserveBalance uint64 `json:"reserve_balance,string"`
	LockedReserve  uint64 `json:"locked_reserve,string"`
	IsActive       bool   `json:"is_active"`
}

// CurveReserve is the part of the reserve that trades against the curve.
func (c CurveState) CurveReserve() uint64 {
	if c.LockedReserve >= c.ReserveBalance {
		return 0
	}
	return c.ReserveBalance - c.LockedReserve
}

// PoolSettings are the admin-tunable knobs and the migration record.
type PoolSettings struct {
	MarketCapThresholdUSD uint64     `json:"market_cap_threshold_usd,string"`
	TradingEnabled        bool       `json:"trading_enabled"`
	MigrationCompleted    bool       `json:"migration_completed"`
	MigrationTimestamp    *time.Time `json:"migration_timestamp,omitempty"`
	DexPoolReference      *string    `json:"dex_pool_reference,omitempty"`
}

// Tradable reports whether buys and sells are accepted.
func (p *Pool) Tradable() bool {
	return p.Curve.IsActive && p.Settings.TradingEnabled
}

// Clone returns a deep copy so snapshots never share optional fields.
func (p *Pool) Clone() *Pool {
	out := *p
	out.MaxSupply = cloneUint64(p.MaxSupply)
	out.Metadata.Description = cloneString(p.Metadata.Description)
	out.Metadata.Twitter = cloneString(p.Metadata.Twitter)
	out.Metadata.Telegram = cloneString(p.Metadata.Telegram)
	out.Metadata.Website = cloneString(p.Metadata.Website)
	out.Settings.DexPoolReference = cloneString(p.Settings.DexPoolReference)
	if p.Settings.MigrationTimestamp != nil {
		ts := *p.Settings.MigrationTimestamp
		out.Settings.MigrationTimestamp = &ts
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUint64(n *uint64) *uint64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
