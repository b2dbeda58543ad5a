package main

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"curveLaunch/internal/curve"
	"curveLaunch/internal/model"
)

type quoteParams struct {
	Side    string
	Supply  uint64
	Reserve uint64
	Ratio   uint8
	Amount  uint64
	FeeBps  uint16
	Linear  bool
}

type quoteResult struct {
	Side         string `json:"side"`
	Amount       uint64 `json:"amount,string"`
	Fee          uint64 `json:"fee,string"`
	Out          uint64 `json:"out,string"`
	PriceBefore  string `json:"price_before"`
	PriceAfter   string `json:"price_after"`
	SupplyAfter  uint64 `json:"supply_after,string"`
	ReserveAfter uint64 `json:"reserve_after,string"`
}

func runQuote(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	var p quoteParams
	p.Side, _ = flags.GetString("side")
	p.Supply, _ = flags.GetUint64("supply")
	p.Reserve, _ = flags.GetUint64("reserve")
	p.Ratio, _ = flags.GetUint8("ratio")
	p.Amount, _ = flags.GetUint64("amount")
	p.FeeBps, _ = flags.GetUint16("fee-bps")
	p.Linear, _ = flags.GetBool("linear")

	res, err := computeQuote(p)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// computeQuote prices one trade against explicit curve state, charging the
// fee on the deposit for buys and on the proceeds for sells.
func computeQuote(p quoteParams) (quoteResult, error) {
	if p.FeeBps > model.MaxFeeBps {
		return quoteResult{}, fmt.Errorf("fee-bps %d above %d", p.FeeBps, model.MaxFeeBps)
	}
	pricer := curve.Exact
	if p.Linear {
		pricer = curve.Linear
	}

	before, err := curve.CurrentPrice(p.Supply, p.Reserve, p.Ratio)
	if err != nil {
		return quoteResult{}, err
	}
	res := quoteResult{Side: p.Side, Amount: p.Amount, PriceBefore: formatCurvePrice(before)}

	switch p.Side {
	case "buy":
		fee, err := curve.MulDiv(p.Amount, uint64(p.FeeBps), model.BpsDenominator)
		if err != nil {
			return quoteResult{}, err
		}
		net := p.Amount - fee
		out, err := pricer.PurchaseReturn(p.Supply, p.Reserve, p.Ratio, net)
		if err != nil {
			return quoteResult{}, err
		}
		if p.Supply > ^uint64(0)-out || p.Reserve > ^uint64(0)-net {
			return quoteResult{}, curve.ErrOverflow
		}
		res.Fee, res.Out = fee, out
		res.SupplyAfter, res.ReserveAfter = p.Supply+out, p.Reserve+net
	case "sell":
		gross, err := pricer.SaleReturn(p.Supply, p.Reserve, p.Ratio, p.Amount)
		if err != nil {
			return quoteResult{}, err
		}
		if gross > p.Reserve {
			return quoteResult{}, fmt.Errorf("sale return %d exceeds reserve %d", gross, p.Reserve)
		}
		fee, err := curve.MulDiv(gross, uint64(p.FeeBps), model.BpsDenominator)
		if err != nil {
			return quoteResult{}, err
		}
		res.Fee, res.Out = fee, gross-fee
		res.SupplyAfter, res.ReserveAfter = p.Supply-p.Amount, p.Reserve-gross
	default:
		return quoteResult{}, fmt.Errorf("side must be buy or sell, got %q", p.Side)
	}

	after, err := curve.CurrentPrice(res.SupplyAfter, res.ReserveAfter, p.Ratio)
	if err != nil {
		return quoteResult{}, err
	}
	res.PriceAfter = formatCurvePrice(after)
	return res, nil
}

// formatCurvePrice renders a Precision-scaled price as reserve base units
// per token base unit.
func formatCurvePrice(price uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(price), -8).StringFixed(8)
}
