package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrDexRejected is returned by MemoryDEX when deposits are disabled.
var ErrDexRejected = errors.New("dex rejected deposit")

// DexPosition is the liquidity a MemoryDEX holds for one asset.
type DexPosition struct {
	Reference string
	Asset     common.Address
	Reserve   uint64
	Tokens    uint64
}

// MemoryDEX is an in-process Migrator. It checks that its custody account
// actually holds what is being deposited.
type MemoryDEX struct {
	custody common.Address
	ledger  Ledger
	reserve common.Address

	mu        sync.Mutex
	positions map[common.Address]DexPosition
	reject    bool
}

// NewMemoryDEX builds a DEX whose custody account lives on l.
func NewMemoryDEX(custody common.Address, l Ledger, reserveAsset common.Address) *MemoryDEX {
	return &MemoryDEX{
		custody:   custody,
		ledger:    l,
		reserve:   reserveAsset,
		positions: make(map[common.Address]DexPosition),
	}
}

func (d *MemoryDEX) Custody() common.Address {
	return d.custody
}

// SetReject makes subsequent deposits fail with ErrDexRejected.
func (d *MemoryDEX) SetReject(reject bool) {
	d.mu.Lock()
	d.reject = reject
	d.mu.Unlock()
}

func (d *MemoryDEX) DepositLiquidity(ctx context.Context, asset common.Address, reserve, tokens uint64) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reject {
		return "", ErrDexRejected
	}
	if _, ok := d.positions[asset]; ok {
		return "", fmt.Errorf("deposit %s: position exists", asset.Hex())
	}

	if err := d.requireHeld(ctx, d.reserve, reserve); err != nil {
		return "", err
	}
	if err := d.requireHeld(ctx, asset, tokens); err != nil {
		return "", err
	}

	ref := crypto.Keccak256Hash(d.custody.Bytes(), asset.Bytes()).Hex()
	d.positions[asset] = DexPosition{Reference: ref, Asset: asset, Reserve: reserve, Tokens: tokens}
	return ref, nil
}

// Position returns the liquidity recorded for asset.
func (d *MemoryDEX) Position(asset common.Address) (DexPosition, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pos, ok := d.positions[asset]
	return pos, ok
}

func (d *MemoryDEX) requireHeld(ctx context.Context, asset common.Address, amount uint64) error {
	if d.ledger == nil || amount == 0 {
		return nil
	}
	held, err := d.ledger.BalanceOf(ctx, asset, d.custody)
	if err != nil {
		return fmt.Errorf("custody balance: %w", err)
	}
	if held < amount {
		return fmt.Errorf("custody holds %d of %s, need %d: %w", held, asset.Hex(), amount, ErrInsufficientFunds)
	}
	return nil
}
