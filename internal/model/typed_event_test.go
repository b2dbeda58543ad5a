package model

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestBuyExecutedJSONStringAmounts(t *testing.T) {
	payload := BuyExecutedEvent{
		Pool:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Buyer:         common.HexToAddress("0x2222222222222222222222222222222222222222"),
		DepositAmount: 18_446_744_073_709_551_615,
		TokensOut:     42,
		Fee:           1,
		NewPrice:      100_000_000,
		NewSupply:     5_000_000,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"deposit_amount", "tokens_out", "fee", "new_price", "new_supply"} {
		if _, ok := decoded[key].(string); !ok {
			t.Fatalf("%s should be string", key)
		}
	}
	if decoded["deposit_amount"] != "18446744073709551615" {
		t.Fatalf("deposit_amount mismatch: %v", decoded["deposit_amount"])
	}

	var back BuyExecutedEvent
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode back: %v", err)
	}
	if back != payload {
		t.Fatalf("round-trip mismatch: %+v", back)
	}
}

func TestPoolCloneIsDeep(t *testing.T) {
	desc := "first"
	max := uint64(10)
	ref := "dex-1"
	pool := &Pool{
		Metadata:  Metadata{Description: &desc},
		MaxSupply: &max,
		Settings:  PoolSettings{DexPoolReference: &ref},
	}

	clone := pool.Clone()
	*clone.Metadata.Description = "second"
	*clone.MaxSupply = 20
	*clone.Settings.DexPoolReference = "dex-2"

	if *pool.Metadata.Description != "first" || *pool.MaxSupply != 10 || *pool.Settings.DexPoolReference != "dex-1" {
		t.Fatalf("clone shares optional fields with original")
	}
}

func TestCurveReserveExcludesLockedSeed(t *testing.T) {
	state := CurveState{ReserveBalance: 110, LockedReserve: 100}
	if got := state.CurveReserve(); got != 10 {
		t.Fatalf("curve reserve: got %d want 10", got)
	}
	state.ReserveBalance = 50
	if got := state.CurveReserve(); got != 0 {
		t.Fatalf("curve reserve below seed: got %d want 0", got)
	}
}
