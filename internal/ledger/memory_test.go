package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	reserveAsset = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenAsset   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	alice        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob          = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newFundedLedger(t *testing.T) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger()
	if err := l.Register(reserveAsset, 6); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := l.Fund(reserveAsset, alice, 1_000); err != nil {
		t.Fatalf("fund: %v", err)
	}
	return l
}

func balance(t *testing.T, l *MemoryLedger, asset, owner common.Address) uint64 {
	t.Helper()
	v, err := l.BalanceOf(context.Background(), asset, owner)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return v
}

func TestSettleAppliesBatchInOrder(t *testing.T) {
	l := newFundedLedger(t)
	ctx := context.Background()

	batch := NewBatch().
		Issue(tokenAsset, 9, nil).
		Transfer(reserveAsset, alice, bob, 400).
		Mint(tokenAsset, alice, 50).
		Transfer(tokenAsset, alice, bob, 20)
	if err := l.Settle(ctx, batch); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if got := balance(t, l, reserveAsset, alice); got != 600 {
		t.Fatalf("alice reserve: got %d", got)
	}
	if got := balance(t, l, reserveAsset, bob); got != 400 {
		t.Fatalf("bob reserve: got %d", got)
	}
	if got := balance(t, l, tokenAsset, bob); got != 20 {
		t.Fatalf("bob tokens: got %d", got)
	}
	supply, err := l.Supply(ctx, tokenAsset)
	if err != nil || supply != 50 {
		t.Fatalf("supply: got %d, %v", supply, err)
	}
	if dec, err := l.Decimals(tokenAsset); err != nil || dec != 9 {
		t.Fatalf("decimals: got %d, %v", dec, err)
	}
}

func TestSettleIsAllOrNothing(t *testing.T) {
	l := newFundedLedger(t)
	ctx := context.Background()

	batch := NewBatch().
		Issue(tokenAsset, 9, nil).
		Transfer(reserveAsset, alice, bob, 400).
		Transfer(reserveAsset, alice, bob, 700)
	err := l.Settle(ctx, batch)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	if got := balance(t, l, reserveAsset, alice); got != 1_000 {
		t.Fatalf("alice reserve changed: %d", got)
	}
	if got := balance(t, l, reserveAsset, bob); got != 0 {
		t.Fatalf("bob reserve changed: %d", got)
	}
	if _, err := l.Supply(ctx, tokenAsset); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("issued asset leaked from failed batch: %v", err)
	}
}

func TestSettleSupplyCap(t *testing.T) {
	l := NewMemoryLedger()
	ctx := context.Background()
	limit := uint64(100)

	if err := l.Settle(ctx, NewBatch().Issue(tokenAsset, 0, &limit).Mint(tokenAsset, alice, 100)); err != nil {
		t.Fatalf("mint to cap: %v", err)
	}
	if err := l.Settle(ctx, NewBatch().Mint(tokenAsset, alice, 1)); !errors.Is(err, ErrSupplyCap) {
		t.Fatalf("expected supply cap, got %v", err)
	}
	if err := l.Settle(ctx, NewBatch().Burn(tokenAsset, alice, 40).Mint(tokenAsset, bob, 40)); err != nil {
		t.Fatalf("burn then mint: %v", err)
	}
	if supply, _ := l.Supply(ctx, tokenAsset); supply != 100 {
		t.Fatalf("supply: got %d", supply)
	}
}

func TestSettleRejectsDuplicateIssue(t *testing.T) {
	l := newFundedLedger(t)
	err := l.Settle(context.Background(), NewBatch().Issue(reserveAsset, 6, nil))
	if !errors.Is(err, ErrAssetExists) {
		t.Fatalf("expected asset exists, got %v", err)
	}
}

func TestSettleHonoursCancelledContext(t *testing.T) {
	l := newFundedLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Settle(ctx, NewBatch().Transfer(reserveAsset, alice, bob, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if got := balance(t, l, reserveAsset, alice); got != 1_000 {
		t.Fatalf("balance changed: %d", got)
	}
}

func TestBatchDropsZeroAmounts(t *testing.T) {
	b := NewBatch().Mint(tokenAsset, alice, 0).Burn(tokenAsset, alice, 0).Transfer(tokenAsset, alice, bob, 0)
	if b.Len() != 0 {
		t.Fatalf("expected empty batch, got %d ops", b.Len())
	}
}

func TestMemoryDEXRequiresCustody(t *testing.T) {
	l := newFundedLedger(t)
	ctx := context.Background()
	custody := common.HexToAddress("0x3333333333333333333333333333333333333333")
	dex := NewMemoryDEX(custody, l, reserveAsset)

	if _, err := dex.DepositLiquidity(ctx, tokenAsset, 10, 0); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	if err := l.Settle(ctx, NewBatch().Issue(tokenAsset, 0, nil).Transfer(reserveAsset, alice, custody, 10).Mint(tokenAsset, custody, 5)); err != nil {
		t.Fatalf("fund custody: %v", err)
	}
	ref, err := dex.DepositLiquidity(ctx, tokenAsset, 10, 5)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	pos, ok := dex.Position(tokenAsset)
	if !ok || pos.Reference != ref || pos.Reserve != 10 || pos.Tokens != 5 {
		t.Fatalf("position mismatch: %+v", pos)
	}

	dex.SetReject(true)
	if _, err := dex.DepositLiquidity(ctx, reserveAsset, 1, 1); !errors.Is(err, ErrDexRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}
