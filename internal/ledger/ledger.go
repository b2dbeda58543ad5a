package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownAsset      = errors.New("unknown asset")
	ErrAssetExists       = errors.New("asset already issued")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSupplyCap         = errors.New("max supply exceeded")
	ErrOverflow          = errors.New("balance overflow")
)

// Ledger is the asset custody collaborator. It owns balances and token
// supply; the market reads them and submits batches of movements.
type Ledger interface {
	Supply(ctx context.Context, asset common.Address) (uint64, error)
	BalanceOf(ctx context.Context, asset, owner common.Address) (uint64, error)
	// Settle applies every op of the batch or none of them.
	Settle(ctx context.Context, batch *Batch) error
}

// OpKind names a ledger movement.
type OpKind uint8

const (
	OpIssue OpKind = iota + 1
	OpMint
	OpBurn
	OpTransfer
)

func (k OpKind) String() string {
	switch k {
	case OpIssue:
		return "issue"
	case OpMint:
		return "mint"
	case OpBurn:
		return "burn"
	case OpTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Op is a single movement. Unused address fields are zero.
type Op struct {
	Kind      OpKind
	Asset     common.Address
	From      common.Address
	To        common.Address
	Amount    uint64
	Decimals  uint8
	MaxSupply *uint64
}

// Batch collects ops to be settled together, in order.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Issue registers a new asset with zero supply.
func (b *Batch) Issue(asset common.Address, decimals uint8, maxSupply *uint64) *Batch {
	var limit *uint64
	if maxSupply != nil {
		v := *maxSupply
		limit = &v
	}
	b.ops = append(b.ops, Op{Kind: OpIssue, Asset: asset, Decimals: decimals, MaxSupply: limit})
	return b
}

// Mint creates amount of asset for to. Zero amounts are dropped.
func (b *Batch) Mint(asset, to common.Address, amount uint64) *Batch {
	if amount == 0 {
		return b
	}
	b.ops = append(b.ops, Op{Kind: OpMint, Asset: asset, To: to, Amount: amount})
	return b
}

// Burn destroys amount of asset held by from. Zero amounts are dropped.
func (b *Batch) Burn(asset, from common.Address, amount uint64) *Batch {
	if amount == 0 {
		return b
	}
	b.ops = append(b.ops, Op{Kind: OpBurn, Asset: asset, From: from, Amount: amount})
	return b
}

// Transfer moves amount of asset from one owner to another. Zero amounts are dropped.
func (b *Batch) Transfer(asset, from, to common.Address, amount uint64) *Batch {
	if amount == 0 {
		return b
	}
	b.ops = append(b.ops, Op{Kind: OpTransfer, Asset: asset, From: from, To: to, Amount: amount})
	return b
}

// Ops returns a copy of the queued ops.
func (b *Batch) Ops() []Op {
	out := make([]Op, len(b.ops))
	copy(out, b.ops)
	return out
}

// Len returns the number of queued ops.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Migrator is the DEX collaborator that receives graduated liquidity.
type Migrator interface {
	// Custody is the account the market moves reserve and tokens into
	// before calling DepositLiquidity.
	Custody() common.Address
	DepositLiquidity(ctx context.Context, asset common.Address, reserve, tokens uint64) (string, error)
}
