package model

import "github.com/ethereum/go-ethereum/common"

// Event names as emitted by the market and carried in log topics.
const (
	EventPoolCreated         = "PoolCreated"
	EventBuyExecuted         = "BuyExecuted"
	EventSellExecuted        = "SellExecuted"
	EventFeeUpdated          = "FeeUpdated"
	EventPoolSettingsUpdated = "PoolSettingsUpdated"
	EventAdminChanged        = "AdminChanged"
	EventTreasuryChanged     = "TreasuryChanged"
	EventAdminWithdrawal     = "AdminWithdrawal"
	EventOraclePriceUpdated  = "OraclePriceUpdated"
	EventMigrationReady      = "MigrationReady"
	EventMigrationCompleted  = "MigrationCompleted"
)

// PoolCreatedEvent is the PoolCreated payload.
type PoolCreatedEvent struct {
	Pool           common.Address `json:"pool"`
	Creator        common.Address `json:"creator"`
	Name           string         `json:"name"`
	Ticker         string         `json:"ticker"`
	Decimals       uint8          `json:"decimals"`
	ReserveRatio   uint8          `json:"reserve_ratio"`
	InitialReserve uint64         `json:"initial_reserve,string"`
	Threshold      uint64         `json:"market_cap_threshold_usd,string"`
}

// BuyExecutedEvent is the BuyExecuted payload.
type BuyExecutedEvent struct {
	Pool          common.Address `json:"pool"`
	Buyer         common.Address `json:"buyer"`
	DepositAmount uint64         `json:"deposit_amount,string"`
	TokensOut     uint64         `json:"tokens_out,string"`
	Fee           uint64         `json:"fee,string"`
	NewPrice      uint64         `json:"new_price,string"`
	NewSupply     uint64         `json:"new_supply,string"`
}

// SellExecutedEvent is the SellExecuted payload.
type SellExecutedEvent struct {
	Pool       common.Address `json:"pool"`
	Seller     common.Address `json:"seller"`
	SellAmount uint64         `json:"sell_amount,string"`
	DepositOut uint64         `json:"deposit_out,string"`
	Fee        uint64         `json:"fee,string"`
	NewPrice   uint64         `json:"new_price,string"`
	NewSupply  uint64         `json:"new_supply,string"`
}

// FeeUpdatedEvent is the FeeUpdated payload.
type FeeUpdatedEvent struct {
	BuyFeeBps  uint16 `json:"buy_fee_bps"`
	SellFeeBps uint16 `json:"sell_fee_bps"`
}

// PoolSettingsUpdatedEvent is the PoolSettingsUpdated payload.
type PoolSettingsUpdatedEvent struct {
	Pool           common.Address `json:"pool"`
	Threshold      uint64         `json:"market_cap_threshold_usd,string"`
	TradingEnabled bool           `json:"trading_enabled"`
}

// AdminChangedEvent is the AdminChanged payload.
type AdminChangedEvent struct {
	OldAdmin common.Address `json:"old_admin"`
	NewAdmin common.Address `json:"new_admin"`
}

// TreasuryChangedEvent is the TreasuryChanged payload.
type TreasuryChangedEvent struct {
	OldTreasury common.Address `json:"old_treasury"`
	NewTreasury common.Address `json:"new_treasury"`
}

// AdminWithdrawalEvent is the AdminWithdrawal payload.
type AdminWithdrawalEvent struct {
	Pool   common.Address `json:"pool"`
	Admin  common.Address `json:"admin"`
	Amount uint64         `json:"amount,string"`
}

// OraclePriceUpdatedEvent is the OraclePriceUpdated payload.
type OraclePriceUpdatedEvent struct {
	PriceUSDCents uint64 `json:"price_usd_cents,string"`
	Source        string `json:"source"`
}

// MigrationReadyEvent is the MigrationReady payload.
type MigrationReadyEvent struct {
	Pool           common.Address `json:"pool"`
	MarketCapCents uint64         `json:"market_cap_cents,string"`
	ReserveAmount  uint64         `json:"reserve_amount,string"`
	TokenAmount    uint64         `json:"token_amount,string"`
	Forced         bool           `json:"forced"`
}

// MigrationCompletedEvent is the MigrationCompleted payload.
type MigrationCompletedEvent struct {
	Pool          common.Address `json:"pool"`
	DexPool       string         `json:"dex_pool"`
	ReserveAmount uint64         `json:"reserve_amount,string"`
	TokenAmount   uint64         `json:"token_amount,string"`
}
