package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxFeeBps caps buy and sell fees at 10%.
	MaxFeeBps uint16 = 1000
	// BpsDenominator is the basis point scale.
	BpsDenominator uint64 = 10_000
)

// FeeConfig is the global fee schedule and its recipient.
type FeeConfig struct {
	BuyFeeBps  uint16         `json:"buy_fee_bps"`
	SellFeeBps uint16         `json:"sell_fee_bps"`
	Treasury   common.Address `json:"treasury"`
}

// OracleState is the admin-fed USD price of one whole reserve unit.
type OracleState struct {
	PriceUSDCents uint64    `json:"price_usd_cents,string"`
	LastUpdate    time.Time `json:"last_update"`
	Source        string    `json:"source"`
}

// IsSet reports whether a price has ever been published.
func (o OracleState) IsSet() bool {
	return o.PriceUSDCents > 0
}

// Fresh reports whether the price is set and not older than maxAge at now.
// A zero maxAge disables the age check.
func (o OracleState) Fresh(now time.Time, maxAge time.Duration) bool {
	if !o.IsSet() {
		return false
	}
	if maxAge <= 0 {
		return true
	}
	return now.Sub(o.LastUpdate) <= maxAge
}

// LiquidityTotals tracks reserve flow across all pools.
type LiquidityTotals struct {
	TotalCollected uint64 `json:"total_collected,string"`
	TotalPaidOut   uint64 `json:"total_paid_out,string"`
}

// Available is the reserve still held across pools.
func (l LiquidityTotals) Available() uint64 {
	if l.TotalPaidOut >= l.TotalCollected {
		return 0
	}
	return l.TotalCollected - l.TotalPaidOut
}
