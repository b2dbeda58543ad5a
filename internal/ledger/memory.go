package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type asset struct {
	decimals  uint8
	maxSupply *uint64
	supply    uint64
	balances  map[common.Address]uint64
}

// MemoryLedger is an in-process Ledger. Batches are staged against an
// overlay and committed only when every op succeeds.
type MemoryLedger struct {
	mu     sync.RWMutex
	assets map[common.Address]*asset
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{assets: make(map[common.Address]*asset)}
}

// Register adds an externally issued asset such as the reserve currency.
func (l *MemoryLedger) Register(addr common.Address, decimals uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.assets[addr]; ok {
		return fmt.Errorf("register %s: %w", addr.Hex(), ErrAssetExists)
	}
	l.assets[addr] = &asset{decimals: decimals, balances: make(map[common.Address]uint64)}
	return nil
}

// Fund mints amount of a registered asset to owner outside any batch.
func (l *MemoryLedger) Fund(addr, owner common.Address, amount uint64) error {
	return l.Settle(context.Background(), NewBatch().Mint(addr, owner, amount))
}

// Decimals returns the decimals an asset was registered or issued with.
func (l *MemoryLedger) Decimals(addr common.Address) (uint8, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[addr]
	if !ok {
		return 0, fmt.Errorf("decimals %s: %w", addr.Hex(), ErrUnknownAsset)
	}
	return a.decimals, nil
}

func (l *MemoryLedger) Supply(ctx context.Context, addr common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[addr]
	if !ok {
		return 0, fmt.Errorf("supply %s: %w", addr.Hex(), ErrUnknownAsset)
	}
	return a.supply, nil
}

func (l *MemoryLedger) BalanceOf(ctx context.Context, addr, owner common.Address) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[addr]
	if !ok {
		return 0, fmt.Errorf("balance %s: %w", addr.Hex(), ErrUnknownAsset)
	}
	return a.balances[owner], nil
}

func (l *MemoryLedger) Settle(ctx context.Context, batch *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	st := newStage(l.assets)
	for i, op := range batch.ops {
		if err := st.apply(op); err != nil {
			return fmt.Errorf("op %d %s: %w", i, op.Kind, err)
		}
	}
	st.commit(l.assets)
	return nil
}

type balanceKey struct {
	asset common.Address
	owner common.Address
}

// stage overlays pending supplies and balances on the committed state.
type stage struct {
	committed map[common.Address]*asset
	issued    map[common.Address]*asset
	supplies  map[common.Address]uint64
	balances  map[balanceKey]uint64
}

func newStage(committed map[common.Address]*asset) *stage {
	return &stage{
		committed: committed,
		issued:    make(map[common.Address]*asset),
		supplies:  make(map[common.Address]uint64),
		balances:  make(map[balanceKey]uint64),
	}
}

func (s *stage) lookup(addr common.Address) (*asset, bool) {
	if a, ok := s.issued[addr]; ok {
		return a, true
	}
	a, ok := s.committed[addr]
	return a, ok
}

func (s *stage) supply(addr common.Address, a *asset) uint64 {
	if v, ok := s.supplies[addr]; ok {
		return v
	}
	return a.supply
}

func (s *stage) balance(addr, owner common.Address, a *asset) uint64 {
	if v, ok := s.balances[balanceKey{addr, owner}]; ok {
		return v
	}
	return a.balances[owner]
}

func (s *stage) apply(op Op) error {
	if op.Kind == OpIssue {
		if _, ok := s.lookup(op.Asset); ok {
			return ErrAssetExists
		}
		s.issued[op.Asset] = &asset{
			decimals:  op.Decimals,
			maxSupply: op.MaxSupply,
			balances:  make(map[common.Address]uint64),
		}
		return nil
	}

	a, ok := s.lookup(op.Asset)
	if !ok {
		return ErrUnknownAsset
	}

	switch op.Kind {
	case OpMint:
		supply := s.supply(op.Asset, a)
		if supply > ^uint64(0)-op.Amount {
			return ErrOverflow
		}
		if a.maxSupply != nil && supply+op.Amount > *a.maxSupply {
			return ErrSupplyCap
		}
		s.supplies[op.Asset] = supply + op.Amount
		return s.credit(op.Asset, op.To, a, op.Amount)
	case OpBurn:
		if err := s.debit(op.Asset, op.From, a, op.Amount); err != nil {
			return err
		}
		s.supplies[op.Asset] = s.supply(op.Asset, a) - op.Amount
		return nil
	case OpTransfer:
		if err := s.debit(op.Asset, op.From, a, op.Amount); err != nil {
			return err
		}
		return s.credit(op.Asset, op.To, a, op.Amount)
	default:
		return fmt.Errorf("unsupported op %s", op.Kind)
	}
}

func (s *stage) credit(addr, owner common.Address, a *asset, amount uint64) error {
	bal := s.balance(addr, owner, a)
	if bal > ^uint64(0)-amount {
		return ErrOverflow
	}
	s.balances[balanceKey{addr, owner}] = bal + amount
	return nil
}

func (s *stage) debit(addr, owner common.Address, a *asset, amount uint64) error {
	bal := s.balance(addr, owner, a)
	if bal < amount {
		return ErrInsufficientFunds
	}
	s.balances[balanceKey{addr, owner}] = bal - amount
	return nil
}

func (s *stage) commit(committed map[common.Address]*asset) {
	for addr, a := range s.issued {
		committed[addr] = a
	}
	for addr, supply := range s.supplies {
		committed[addr].supply = supply
	}
	for key, bal := range s.balances {
		a := committed[key.asset]
		if bal == 0 {
			delete(a.balances, key.owner)
			continue
		}
		a.balances[key.owner] = bal
	}
}
