package replay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveLaunch/internal/events"
	"curveLaunch/internal/ledger"
	"curveLaunch/internal/market"
	"curveLaunch/internal/model"
	"curveLaunch/internal/storage"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	Market market.Options
	// DexCustody is the account migrated liquidity is moved into.
	DexCustody common.Address
	// AutoMigrate hands a pool's liquidity to the DEX as soon as it
	// reaches migration.
	AutoMigrate  bool
	FailFast     bool
	BatchSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Stats counts what one replay did.
type Stats struct {
	Commands int
	Applied  int
	Rejected int
	Migrated int
	Logs     int
}

// Runner applies a command script to an engine over an in-memory ledger and
// streams the resulting event logs to storage.
type Runner struct {
	cfg     RunConfig
	ledger  *ledger.MemoryLedger
	dex     *ledger.MemoryDEX
	engine  *market.Engine
	sink    storage.Storage
	logger  *zap.Logger
	clock   atomic.Int64
	flushed uint64
	aliases map[string]common.Address
	pending []common.Address
	stats   Stats
}

// NewRunner builds the ledger, DEX and engine for a replay. sink may be nil
// when the logs are not needed.
func NewRunner(cfg RunConfig, sink storage.Storage, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.DexCustody == (common.Address{}) {
		return nil, fmt.Errorf("dex custody address is required")
	}

	l := ledger.NewMemoryLedger()
	if err := l.Register(cfg.Market.ReserveAsset, cfg.Market.ReserveDecimals); err != nil {
		return nil, fmt.Errorf("register reserve asset: %w", err)
	}

	r := &Runner{
		cfg:     cfg,
		ledger:  l,
		dex:     ledger.NewMemoryDEX(cfg.DexCustody, l, cfg.Market.ReserveAsset),
		sink:    sink,
		logger:  logger,
		aliases: make(map[string]common.Address),
	}

	opts := cfg.Market
	opts.Clock = r.now
	opts.Logger = logger.Named("market")
	engine, err := market.NewEngine(l, opts)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	r.engine = engine
	return r, nil
}

func (r *Runner) Engine() *market.Engine {
	return r.engine
}

func (r *Runner) Ledger() *ledger.MemoryLedger {
	return r.ledger
}

func (r *Runner) DEX() *ledger.MemoryDEX {
	return r.dex
}

// Stats returns the counters accumulated so far.
func (r *Runner) Stats() Stats {
	return r.stats
}

// now is the engine clock: the last scripted time, or wall time before any
// command sets one.
func (r *Runner) now() time.Time {
	if ns := r.clock.Load(); ns != 0 {
		return time.Unix(0, ns).UTC()
	}
	return time.Now().UTC()
}

func (r *Runner) setClock(ts time.Time) error {
	if cur := r.clock.Load(); cur != 0 && ts.UnixNano() < cur {
		return fmt.Errorf("clock moved backwards to %s", ts.UTC().Format(time.RFC3339))
	}
	r.clock.Store(ts.UnixNano())
	return nil
}

// Run applies every command of the JSONL script at path and flushes the
// event logs.
func (r *Runner) Run(ctx context.Context, path string) (Stats, error) {
	sinceFlush := 0
	err := storage.ScanFile(path, func(lineNo int, line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.stats.Commands++

		if err := r.Apply(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.stats.Rejected++
			r.logger.Warn("command rejected", zap.Int("line", lineNo), zap.String("op", opName(line)), zap.Error(err))
			if r.cfg.FailFast {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			return nil
		}
		r.stats.Applied++

		sinceFlush++
		if sinceFlush >= r.cfg.BatchSize {
			sinceFlush = 0
			return r.Flush(ctx)
		}
		return nil
	})
	if err != nil {
		return r.stats, err
	}
	if err := r.Flush(ctx); err != nil {
		return r.stats, err
	}

	r.logger.Info("replay complete",
		zap.Int("commands", r.stats.Commands),
		zap.Int("applied", r.stats.Applied),
		zap.Int("rejected", r.stats.Rejected),
		zap.Int("migrated", r.stats.Migrated),
		zap.Int("logs", r.stats.Logs),
	)
	return r.stats, nil
}

// Apply executes one script command, then hands any pool that reached
// migration to the DEX when auto-migration is on.
func (r *Runner) Apply(ctx context.Context, line []byte) error {
	if err := r.dispatch(ctx, line); err != nil {
		r.pending = r.pending[:0]
		return err
	}
	return r.migratePending(ctx)
}

func (r *Runner) migratePending(ctx context.Context) error {
	pending := r.pending
	r.pending = nil
	if !r.cfg.AutoMigrate {
		return nil
	}

	var errs []error
	for _, id := range pending {
		pool, err := r.engine.GetPool(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if pool.Settings.DexPoolReference != nil {
			continue
		}
		res, err := r.engine.MigrateLiquidity(ctx, r.engine.GetAdmin(), id, r.dex)
		if err != nil {
			errs = append(errs, fmt.Errorf("auto migrate %s: %w", id.Hex(), err))
			continue
		}
		r.stats.Migrated++
		r.logger.Info("pool migrated", zap.String("pool", id.Hex()), zap.String("dex_pool", res.DexPool))
	}
	return errors.Join(errs...)
}

// Flush encodes journal entries not yet written and stores them in chunks
// of BatchSize.
func (r *Runner) Flush(ctx context.Context) error {
	base := r.flushed
	entries := r.engine.Journal().Since(base)
	if len(entries) == 0 {
		return nil
	}
	if r.sink == nil {
		r.flushed = base + uint64(len(entries))
		return nil
	}

	ranges, err := SplitRange(base+1, base+uint64(len(entries)), uint64(r.cfg.BatchSize))
	if err != nil {
		return err
	}
	ingestedAt := time.Now().UTC()
	for _, rg := range ranges {
		chunk := entries[rg.From-base-1 : rg.To-base]
		records, err := events.EncodeAll(chunk, ingestedAt)
		if err != nil {
			return fmt.Errorf("encode events %d-%d: %w", rg.From, rg.To, err)
		}
		err = withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			err := r.sink.PutLogBatch(ctx, records)
			if err != nil {
				r.logger.Warn("store logs failed", zap.Error(err), zap.Uint64("from", rg.From), zap.Uint64("to", rg.To))
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("store logs: %w", err)
		}
		r.flushed = rg.To
		r.stats.Logs += len(records)
		r.logger.Debug("logs stored", zap.Uint64("from", rg.From), zap.Uint64("to", rg.To))
	}
	return nil
}

// Pools returns every pool in creation order.
func (r *Runner) Pools() []*model.Pool {
	return r.engine.GetPools()
}

// WriteSnapshot writes one JSON line per pool to path.
func (r *Runner) WriteSnapshot(path string) error {
	w, err := storage.OpenJSONL(path, false)
	if err != nil {
		return err
	}
	for _, pool := range r.Pools() {
		if err := w.Write(pool); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
