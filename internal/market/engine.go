package market

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveLaunch/internal/curve"
	"curveLaunch/internal/events"
	"curveLaunch/internal/ledger"
	"curveLaunch/internal/model"
)

// Options configures an Engine.
type Options struct {
	// Address identifies the engine. Pool IDs are derived from it and
	// global events are emitted from it.
	Address             common.Address
	Admin               common.Address
	Treasury            common.Address
	ReserveAsset        common.Address
	ReserveDecimals     uint8
	BuyFeeBps           uint16
	SellFeeBps          uint16
	DefaultThresholdUSD uint64
	// OracleMaxAge bounds how old a price may be to trigger migration.
	// Zero disables the check.
	OracleMaxAge time.Duration
	Pricer       curve.Pricer
	Clock        func() time.Time
	Logger       *zap.Logger
	Journal      *events.Journal
}

// Engine runs every pool of one market against a ledger.
type Engine struct {
	address          common.Address
	ledger           ledger.Ledger
	pricer           curve.Pricer
	reserveAsset     common.Address
	reserveDecimals  uint8
	defaultThreshold uint64
	oracleMaxAge     time.Duration
	now              func() time.Time
	logger           *zap.Logger
	journal          *events.Journal

	regMu    sync.RWMutex
	registry []common.Address
	pools    map[common.Address]*poolEntry

	govMu sync.RWMutex
	admin common.Address
	fees  model.FeeConfig

	oracleMu sync.RWMutex
	oracle   model.OracleState

	liqMu     sync.Mutex
	liquidity model.LiquidityTotals
}

// poolEntry serializes writers of one pool and publishes the last
// committed snapshot for lock-free readers.
type poolEntry struct {
	mu   sync.Mutex
	snap atomic.Pointer[model.Pool]
}

func (p *poolEntry) load() *model.Pool {
	return p.snap.Load()
}

// NewEngine builds an engine with no pools.
func NewEngine(l ledger.Ledger, opts Options) (*Engine, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if opts.ReserveAsset == (common.Address{}) {
		return nil, fmt.Errorf("reserve asset is required")
	}
	if opts.Admin == (common.Address{}) {
		return nil, fmt.Errorf("admin is required")
	}
	if opts.BuyFeeBps > model.MaxFeeBps || opts.SellFeeBps > model.MaxFeeBps {
		return nil, fmt.Errorf("fee above %d bps: %w", model.MaxFeeBps, ErrFeeTooHigh)
	}
	if opts.DefaultThresholdUSD == 0 {
		return nil, fmt.Errorf("default market cap threshold must be > 0")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Journal == nil {
		opts.Journal = events.NewJournal()
	}

	return &Engine{
		address:          opts.Address,
		ledger:           l,
		pricer:           opts.Pricer,
		reserveAsset:     opts.ReserveAsset,
		reserveDecimals:  opts.ReserveDecimals,
		defaultThreshold: opts.DefaultThresholdUSD,
		oracleMaxAge:     opts.OracleMaxAge,
		now:              opts.Clock,
		logger:           opts.Logger,
		journal:          opts.Journal,
		pools:            make(map[common.Address]*poolEntry),
		admin:            opts.Admin,
		fees: model.FeeConfig{
			BuyFeeBps:  opts.BuyFeeBps,
			SellFeeBps: opts.SellFeeBps,
			Treasury:   opts.Treasury,
		},
	}, nil
}

// Address returns the engine address.
func (e *Engine) Address() common.Address {
	return e.address
}

// ReserveAsset returns the asset pools are priced in.
func (e *Engine) ReserveAsset() common.Address {
	return e.reserveAsset
}

// Journal returns the event journal the engine appends to.
func (e *Engine) Journal() *events.Journal {
	return e.journal
}

func (e *Engine) entry(id common.Address) (*poolEntry, bool) {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	p, ok := e.pools[id]
	return p, ok
}

func (e *Engine) emit(name string, addr common.Address, payload interface{}) {
	entry := e.journal.Append(name, addr, e.now(), payload)
	e.logger.Debug("event", zap.String("event", name), zap.Uint64("seq", entry.Seq), zap.String("address", addr.Hex()))
}

func (e *Engine) requireAdmin(op string, pool common.Address, caller common.Address) error {
	e.govMu.RLock()
	admin := e.admin
	e.govMu.RUnlock()
	if caller != admin {
		return opErr(op, pool, ErrUnauthorized, "caller %s", caller.Hex())
	}
	return nil
}

func (e *Engine) feeConfig() model.FeeConfig {
	e.govMu.RLock()
	defer e.govMu.RUnlock()
	return e.fees
}

func (e *Engine) addCollected(amount uint64) {
	e.liqMu.Lock()
	e.liquidity.TotalCollected = saturatingAdd(e.liquidity.TotalCollected, amount)
	e.liqMu.Unlock()
}

func (e *Engine) addPaidOut(amount uint64) {
	e.liqMu.Lock()
	e.liquidity.TotalPaidOut = saturatingAdd(e.liquidity.TotalPaidOut, amount)
	e.liqMu.Unlock()
}

func saturatingAdd(a, b uint64) uint64 {
	if a > ^uint64(0)-b {
		return ^uint64(0)
	}
	return a + b
}

// bpsFee returns floor(amount*bps/10000).
func bpsFee(amount uint64, bps uint16) uint64 {
	fee, err := curve.MulDiv(amount, uint64(bps), model.BpsDenominator)
	if err != nil {
		// bps <= 10000 keeps the result within amount.
		return 0
	}
	return fee
}
