package replay

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"curveLaunch/internal/config"
	"curveLaunch/internal/curve"
	"curveLaunch/internal/market"
)

// ParseAddress converts a hex string into an address. Empty input is
// rejected with the field name.
func ParseAddress(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, fmt.Errorf("%s is required", field)
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", field, input)
	}
	return common.HexToAddress(input), nil
}

// MarketOptions builds engine options from config. The treasury defaults to
// the admin.
func MarketOptions(cfg config.MarketConfig) (market.Options, error) {
	engine, err := ParseAddress("engine-address", cfg.EngineAddress)
	if err != nil {
		return market.Options{}, err
	}
	admin, err := ParseAddress("admin", cfg.Admin)
	if err != nil {
		return market.Options{}, err
	}
	reserve, err := ParseAddress("reserve-asset", cfg.ReserveAsset)
	if err != nil {
		return market.Options{}, err
	}
	treasury := admin
	if strings.TrimSpace(cfg.Treasury) != "" {
		if treasury, err = ParseAddress("treasury", cfg.Treasury); err != nil {
			return market.Options{}, err
		}
	}

	pricer := curve.Exact
	if cfg.Linear {
		pricer = curve.Linear
	}

	return market.Options{
		Address:             engine,
		Admin:               admin,
		Treasury:            treasury,
		ReserveAsset:        reserve,
		ReserveDecimals:     cfg.ReserveDecimals,
		BuyFeeBps:           cfg.BuyFeeBps,
		SellFeeBps:          cfg.SellFeeBps,
		DefaultThresholdUSD: cfg.DefaultThresholdUSD,
		OracleMaxAge:        cfg.OracleMaxAge,
		Pricer:              pricer,
	}, nil
}
