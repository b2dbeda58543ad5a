package model

import "time"

// PoolWindowMetrics stores aggregated trade metrics for a pool window.
// Amounts are decimal strings scaled by the reserve or token decimals.
type PoolWindowMetrics struct {
	PoolAddress    string
	WindowSizeSecs int64
	WindowStart    time.Time
	WindowEnd      time.Time
	BuyCount       uint64
	SellCount      uint64
	ReserveIn      string
	ReserveOut     string
	TokensBought   string
	TokensSold     string
	Fees           string
	OpenPrice      *string
	ClosePrice     *string
	HighPrice      *string
	LowPrice       *string
	MigrationReady bool
}
