package aggregate

import (
	"encoding/json"
	"fmt"
	"math/big"

	"curveLaunch/internal/model"
)

// Accumulator holds trade totals for one pool window. Amounts are base
// units; prices are Precision-scaled.
type Accumulator struct {
	PoolAddress    string
	WindowStart    uint64
	WindowEnd      uint64
	BuyCount       uint64
	SellCount      uint64
	ReserveIn      *big.Int
	ReserveOut     *big.Int
	TokensBought   *big.Int
	TokensSold     *big.Int
	Fees           *big.Int
	Open           *big.Int
	Close          *big.Int
	High           *big.Int
	Low            *big.Int
	MigrationReady bool
	LastTS         uint64
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolAddress:  record.Address,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		ReserveIn:    big.NewInt(0),
		ReserveOut:   big.NewInt(0),
		TokensBought: big.NewInt(0),
		TokensSold:   big.NewInt(0),
		Fees:         big.NewInt(0),
		LastTS:       record.Timestamp,
	}
}

// AddEvent folds one typed event into the window. Events that carry no
// trade data are ignored.
func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
	}

	switch record.EventName {
	case model.EventBuyExecuted:
		var buy model.BuyExecutedEvent
		if err := json.Unmarshal(record.Decoded, &buy); err != nil {
			return fmt.Errorf("decode buy: %w", err)
		}
		a.BuyCount++
		addUint(a.ReserveIn, buy.DepositAmount)
		addUint(a.TokensBought, buy.TokensOut)
		addUint(a.Fees, buy.Fee)
		a.observePrice(buy.NewPrice)
	case model.EventSellExecuted:
		var sell model.SellExecutedEvent
		if err := json.Unmarshal(record.Decoded, &sell); err != nil {
			return fmt.Errorf("decode sell: %w", err)
		}
		a.SellCount++
		addUint(a.ReserveOut, sell.DepositOut)
		addUint(a.TokensSold, sell.SellAmount)
		addUint(a.Fees, sell.Fee)
		a.observePrice(sell.NewPrice)
	case model.EventMigrationReady:
		a.MigrationReady = true
	}
	return nil
}

func (a *Accumulator) observePrice(price uint64) {
	p := new(big.Int).SetUint64(price)
	if a.Open == nil {
		a.Open = p
	}
	a.Close = p
	if a.High == nil || p.Cmp(a.High) > 0 {
		a.High = p
	}
	if a.Low == nil || p.Cmp(a.Low) < 0 {
		a.Low = p
	}
}

// Empty reports whether the window saw no trades and no migration.
func (a *Accumulator) Empty() bool {
	return a.BuyCount == 0 && a.SellCount == 0 && !a.MigrationReady
}

func addUint(target *big.Int, v uint64) {
	target.Add(target, new(big.Int).SetUint64(v))
}
