package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"curveLaunch/internal/model"
	"curveLaunch/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds   uint64
	BatchSize       int
	RecomputeFrom   uint64
	StateStore      StateStore
	ReserveDecimals uint8
	// TokenDecimals applies to pools whose PoolCreated event is not in
	// the input.
	TokenDecimals uint8
}

// MetricsStore receives finished windows.
type MetricsStore interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Aggregator folds typed trade events into per-pool window metrics.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	logger       *zap.Logger
	decimals     *DecimalsCache
	accumulators map[string]*Accumulator
}

func NewAggregator(cfg Config, store MetricsStore, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		decimals:     NewDecimalsCache(cfg.TokenDecimals),
		accumulators: make(map[string]*Accumulator),
	}
}

// Stats counts what one run did with its input.
type Stats struct {
	Total   int
	Windows int
	Skipped int
	Failed  int
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Stats, error) {
	if a.store == nil {
		return Stats{}, fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return Stats{}, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return Stats{}, err
	}

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)
	maxTs := startTs
	var stats Stats

	err = storage.ScanFile(inputPath, func(lineNo int, line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.Failed++
			a.logger.Warn("decode typed event", zap.Int("line", lineNo), zap.Error(err))
			return nil
		}

		// Decimals are needed for any later window, even when the
		// creation itself is before the resume point.
		if record.EventName == model.EventPoolCreated {
			a.registerPool(record)
		}

		if record.Timestamp <= startTs {
			stats.Skipped++
			return nil
		}

		windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		windowEnd := windowStart + a.cfg.WindowSeconds

		accKey := poolKey(record.Address)
		acc := a.accumulators[accKey]
		if acc == nil {
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		} else if acc.WindowStart != windowStart {
			if metrics := a.flushAccumulator(acc); metrics != nil {
				batch = append(batch, *metrics)
				stats.Windows++
			}
			acc = NewAccumulator(record, windowStart, windowEnd)
			a.accumulators[accKey] = acc
		}

		if err := acc.AddEvent(record); err != nil {
			stats.Failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
			return nil
		}

		if record.Timestamp > maxTs {
			maxTs = record.Timestamp
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]

			if err := a.saveState(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	for _, acc := range a.accumulators {
		if metrics := a.flushAccumulator(acc); metrics != nil {
			batch = append(batch, *metrics)
			stats.Windows++
		}
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return stats, err
		}
	}

	a.cfg.RecomputeFrom = maxTs
	if err := a.saveState(ctx); err != nil {
		return stats, err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", stats.Total),
		zap.Int("windows", stats.Windows),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)

	return stats, nil
}

func (a *Aggregator) registerPool(record model.TypedEventRecord) {
	var created model.PoolCreatedEvent
	if err := json.Unmarshal(record.Decoded, &created); err != nil {
		a.logger.Warn("decode pool created", zap.String("pool", record.Address), zap.Error(err))
		return
	}
	a.decimals.Set(created.Pool, created.Decimals)
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) *model.PoolWindowMetrics {
	if acc == nil || acc.Empty() {
		return nil
	}

	if !common.IsHexAddress(acc.PoolAddress) {
		a.logger.Warn("invalid pool address", zap.String("pool", acc.PoolAddress))
		return nil
	}
	tokenDecimals, known := a.decimals.Get(common.HexToAddress(acc.PoolAddress))
	if !known {
		a.logger.Debug("pool decimals not announced, using default",
			zap.String("pool", acc.PoolAddress),
			zap.Uint8("decimals", tokenDecimals),
		)
	}
	reserveDecimals := a.cfg.ReserveDecimals

	return &model.PoolWindowMetrics{
		PoolAddress:    acc.PoolAddress,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		BuyCount:       acc.BuyCount,
		SellCount:      acc.SellCount,
		ReserveIn:      formatTokenAmount(acc.ReserveIn, reserveDecimals),
		ReserveOut:     formatTokenAmount(acc.ReserveOut, reserveDecimals),
		TokensBought:   formatTokenAmount(acc.TokensBought, tokenDecimals),
		TokensSold:     formatTokenAmount(acc.TokensSold, tokenDecimals),
		Fees:           formatTokenAmount(acc.Fees, reserveDecimals),
		OpenPrice:      formatPrice(acc.Open, tokenDecimals, reserveDecimals),
		ClosePrice:     formatPrice(acc.Close, tokenDecimals, reserveDecimals),
		HighPrice:      formatPrice(acc.High, tokenDecimals, reserveDecimals),
		LowPrice:       formatPrice(acc.Low, tokenDecimals, reserveDecimals),
		MigrationReady: acc.MigrationReady,
	}
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
