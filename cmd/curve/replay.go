package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveLaunch/internal/config"
	"curveLaunch/internal/replay"
	"curveLaunch/internal/storage"
	"curveLaunch/internal/storage/postgres"
)

func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReplay(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = replayScript(ctx, cfg, logger)
	return err
}

// replayScript runs cfg.Script against a fresh market and stores its event
// logs, plus pool snapshots when requested.
func replayScript(ctx context.Context, cfg config.ReplayConfig, logger *zap.Logger) (*replay.Runner, error) {
	if cfg.Script == "" {
		return nil, fmt.Errorf("script path is required")
	}

	opts, err := replay.MarketOptions(cfg.Market)
	if err != nil {
		return nil, err
	}
	custody, err := replay.ParseAddress("dex-custody", cfg.DexCustody)
	if err != nil {
		return nil, err
	}

	var sinks storage.Fanout
	if cfg.Out != "" {
		// Each replay starts a fresh log file.
		w, err := storage.OpenJSONL(cfg.Out, false)
		if err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, store)
	}

	runner, err := replay.NewRunner(replay.RunConfig{
		Market:       opts,
		DexCustody:   custody,
		AutoMigrate:  cfg.AutoMigrate,
		FailFast:     cfg.FailFast,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, sinks, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("replay start",
		zap.String("script", cfg.Script),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("engine", opts.Address.Hex()),
		zap.String("admin", opts.Admin.Hex()),
		zap.String("reserve_asset", opts.ReserveAsset.Hex()),
		zap.Uint16("buy_fee_bps", opts.BuyFeeBps),
		zap.Uint16("sell_fee_bps", opts.SellFeeBps),
		zap.Bool("linear", cfg.Market.Linear),
		zap.Bool("auto_migrate", cfg.AutoMigrate),
	)

	if _, err := runner.Run(ctx, cfg.Script); err != nil {
		return nil, err
	}

	if cfg.Snapshot != "" {
		if err := runner.WriteSnapshot(cfg.Snapshot); err != nil {
			return nil, fmt.Errorf("write snapshot: %w", err)
		}
		logger.Info("snapshot written", zap.String("path", cfg.Snapshot))
	}
	if store != nil {
		pools := runner.Pools()
		if err := store.UpsertPools(ctx, pools); err != nil {
			return nil, fmt.Errorf("store pools: %w", err)
		}
		logger.Info("pools stored", zap.Int("pools", len(pools)))
	}

	return runner, nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
