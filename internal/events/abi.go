package events

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const marketABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"},
      {"indexed": false, "internalType": "string", "name": "name", "type": "string"},
      {"indexed": false, "internalType": "string", "name": "ticker", "type": "string"},
      {"indexed": false, "internalType": "uint8", "name": "decimals", "type": "uint8"},
      {"indexed": false, "internalType": "uint8", "name": "reserveRatio", "type": "uint8"},
      {"indexed": false, "internalType": "uint64", "name": "initialReserve", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "marketCapThresholdUsd", "type": "uint64"}
    ],
    "name": "PoolCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "buyer", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "depositAmount", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "tokensOut", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "fee", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "newPrice", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "newSupply", "type": "uint64"}
    ],
    "name": "BuyExecuted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "seller", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "sellAmount", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "depositOut", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "fee", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "newPrice", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "newSupply", "type": "uint64"}
    ],
    "name": "SellExecuted",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint16", "name": "buyFeeBps", "type": "uint16"},
      {"indexed": false, "internalType": "uint16", "name": "sellFeeBps", "type": "uint16"}
    ],
    "name": "FeeUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "marketCapThresholdUsd", "type": "uint64"},
      {"indexed": false, "internalType": "bool", "name": "tradingEnabled", "type": "bool"}
    ],
    "name": "PoolSettingsUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "oldAdmin", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "newAdmin", "type": "address"}
    ],
    "name": "AdminChanged",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "oldTreasury", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "newTreasury", "type": "address"}
    ],
    "name": "TreasuryChanged",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "admin", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "amount", "type": "uint64"}
    ],
    "name": "AdminWithdrawal",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": false, "internalType": "uint64", "name": "priceUsdCents", "type": "uint64"},
      {"indexed": false, "internalType": "string", "name": "source", "type": "string"}
    ],
    "name": "OraclePriceUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": false, "internalType": "uint64", "name": "marketCapCents", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "reserveAmount", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "tokenAmount", "type": "uint64"},
      {"indexed": false, "internalType": "bool", "name": "forced", "type": "bool"}
    ],
    "name": "MigrationReady",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "pool", "type": "address"},
      {"indexed": false, "internalType": "string", "name": "dexPool", "type": "string"},
      {"indexed": false, "internalType": "uint64", "name": "reserveAmount", "type": "uint64"},
      {"indexed": false, "internalType": "uint64", "name": "tokenAmount", "type": "uint64"}
    ],
    "name": "MigrationCompleted",
    "type": "event"
  }
]`

var (
	marketABI     abi.ABI
	marketABIOnce sync.Once
	marketABIErr  error
)

// MarketABI returns the parsed market event ABI.
func MarketABI() (abi.ABI, error) {
	marketABIOnce.Do(func() {
		marketABI, marketABIErr = abi.JSON(strings.NewReader(marketABIJSON))
	})
	return marketABI, marketABIErr
}
