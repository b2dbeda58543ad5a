package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curveLaunch/internal/model"
)

// Store provides Postgres persistence for event logs, pool snapshots and
// window metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS market_logs (
		address TEXT NOT NULL,
		seq BIGINT NOT NULL,
		topic0 TEXT NOT NULL,
		topics TEXT[] NOT NULL,
		data TEXT NOT NULL,
		block_ts BIGINT NOT NULL,
		ingested_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (address, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS pools (
		pool_address TEXT PRIMARY KEY,
		creator TEXT NOT NULL,
		name TEXT NOT NULL,
		ticker TEXT NOT NULL,
		decimals SMALLINT NOT NULL,
		max_supply NUMERIC(20,0),
		reserve_ratio SMALLINT NOT NULL,
		reserve_balance NUMERIC(20,0) NOT NULL,
		locked_reserve NUMERIC(20,0) NOT NULL,
		is_active BOOLEAN NOT NULL,
		trading_enabled BOOLEAN NOT NULL,
		market_cap_threshold_usd NUMERIC(20,0) NOT NULL,
		migration_completed BOOLEAN NOT NULL,
		migration_ts TIMESTAMPTZ,
		dex_pool_ref TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pool_window_metrics (
		pool_address TEXT NOT NULL,
		window_size_seconds BIGINT NOT NULL,
		window_start_ts TIMESTAMPTZ NOT NULL,
		window_end_ts TIMESTAMPTZ NOT NULL,
		buy_count BIGINT NOT NULL,
		sell_count BIGINT NOT NULL,
		reserve_in NUMERIC NOT NULL,
		reserve_out NUMERIC NOT NULL,
		tokens_bought NUMERIC NOT NULL,
		tokens_sold NUMERIC NOT NULL,
		fees NUMERIC NOT NULL,
		open_price NUMERIC,
		close_price NUMERIC,
		high_price NUMERIC,
		low_price NUMERIC,
		migration_ready BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (pool_address, window_size_seconds, window_start_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_state (
		name TEXT PRIMARY KEY,
		last_processed_ts BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the tables the store writes to when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// PutLogBatch inserts encoded event logs; replays of the same logs are
// ignored.
func (s *Store) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	if len(logs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, l := range logs {
		ingestedAt, err := time.Parse(time.RFC3339Nano, l.IngestedAt)
		if err != nil {
			return fmt.Errorf("log %d ingested_at: %w", l.Seq, err)
		}
		batch.Queue(`
			INSERT INTO market_logs (address, seq, topic0, topics, data, block_ts, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (address, seq) DO NOTHING
		`,
			l.Address,
			int64(l.Seq),
			l.Topic0(),
			l.Topics,
			l.Data,
			int64(l.Timestamp),
			ingestedAt,
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertPools inserts or updates pool snapshots.
func (s *Store) UpsertPools(ctx context.Context, pools []*model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range pools {
		var maxSupply *string
		if p.MaxSupply != nil {
			v := strconv.FormatUint(*p.MaxSupply, 10)
			maxSupply = &v
		}
		batch.Queue(`
			INSERT INTO pools (
				pool_address, creator, name, ticker, decimals, max_supply, reserve_ratio,
				reserve_balance, locked_reserve, is_active, trading_enabled,
				market_cap_threshold_usd, migration_completed, migration_ts, dex_pool_ref,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8::numeric,$9::numeric,$10,$11,$12::numeric,$13,$14,$15,$16,now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				reserve_balance = EXCLUDED.reserve_balance,
				locked_reserve = EXCLUDED.locked_reserve,
				is_active = EXCLUDED.is_active,
				trading_enabled = EXCLUDED.trading_enabled,
				market_cap_threshold_usd = EXCLUDED.market_cap_threshold_usd,
				migration_completed = EXCLUDED.migration_completed,
				migration_ts = EXCLUDED.migration_ts,
				dex_pool_ref = EXCLUDED.dex_pool_ref,
				updated_at = now()
		`,
			p.ID.Hex(),
			p.Creator.Hex(),
			p.Metadata.Name,
			p.Metadata.Ticker,
			int16(p.Decimals),
			maxSupply,
			int16(p.Curve.ReserveRatio),
			strconv.FormatUint(p.Curve.ReserveBalance, 10),
			strconv.FormatUint(p.Curve.LockedReserve, 10),
			p.Curve.IsActive,
			p.Settings.TradingEnabled,
			strconv.FormatUint(p.Settings.MarketCapThresholdUSD, 10),
			p.Settings.MigrationCompleted,
			p.Settings.MigrationTimestamp,
			p.Settings.DexPoolReference,
			p.Metadata.CreatedAt,
		)
	}
	return s.sendBatch(ctx, batch)
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pool_address, window_size_seconds, window_start_ts, window_end_ts,
				buy_count, sell_count, reserve_in, reserve_out, tokens_bought, tokens_sold, fees,
				open_price, close_price, high_price, low_price, migration_ready, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7::numeric,$8::numeric,$9::numeric,$10::numeric,$11::numeric,
				$12::numeric,$13::numeric,$14::numeric,$15::numeric,$16,now(),now())
			ON CONFLICT (pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				buy_count = EXCLUDED.buy_count,
				sell_count = EXCLUDED.sell_count,
				reserve_in = EXCLUDED.reserve_in,
				reserve_out = EXCLUDED.reserve_out,
				tokens_bought = EXCLUDED.tokens_bought,
				tokens_sold = EXCLUDED.tokens_sold,
				fees = EXCLUDED.fees,
				open_price = EXCLUDED.open_price,
				close_price = EXCLUDED.close_price,
				high_price = EXCLUDED.high_price,
				low_price = EXCLUDED.low_price,
				migration_ready = EXCLUDED.migration_ready,
				updated_at = now()
		`,
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.BuyCount),
			int64(m.SellCount),
			m.ReserveIn,
			m.ReserveOut,
			m.TokensBought,
			m.TokensSold,
			m.Fees,
			m.OpenPrice,
			m.ClosePrice,
			m.HighPrice,
			m.LowPrice,
			m.MigrationReady,
		)
	}
	return s.sendBatch(ctx, batch)
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM pipeline_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
