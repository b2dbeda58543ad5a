package aggregate

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// priceDecimals is the scale of curve prices (curve.Precision = 10^8).
const priceDecimals = 8

func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).StringFixed(int32(decimals))
}

// formatPrice converts a Precision-scaled price per token base unit into
// whole reserve units per whole token.
func formatPrice(price *big.Int, tokenDecimals, reserveDecimals uint8) *string {
	if price == nil {
		return nil
	}
	shift := int32(tokenDecimals) - int32(reserveDecimals)
	val := decimal.NewFromBigInt(price, -priceDecimals).Shift(shift)
	places := int32(priceDecimals) - shift
	if places < 0 {
		places = 0
	}
	text := val.StringFixed(places)
	return &text
}
