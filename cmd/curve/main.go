package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"curveLaunch/internal/config"
)

func main() {
	root := &cobra.Command{
		Use:          "curve",
		Short:        "Bonding-curve launch market",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Apply a command script to a fresh market and store its event logs",
		RunE:  runReplay,
	}
	addReplayFlags(replayCmd.Flags())
	root.AddCommand(replayCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Replay a command script, then serve market queries over HTTP",
		RunE:  runServe,
	}
	addReplayFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins (comma-separated)")
	serveCmd.Flags().Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	serveCmd.Flags().Duration("write-timeout", 10*time.Second, "HTTP write timeout")
	root.AddCommand(serveCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode market event logs into typed events",
		RunE:  runDecode,
	}
	decodeCmd.Flags().String("in", "", "input event logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	addLogFlags(decodeCmd.Flags())
	root.AddCommand(decodeCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed trade events into per-pool window metrics",
		RunE:  runAggregate,
	}
	aggregateCmd.Flags().String("in", "", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().Uint8("reserve-decimals", 6, "reserve asset decimals")
	aggregateCmd.Flags().Uint8("token-decimals", 6, "token decimals for pools created outside the input")
	addLogFlags(aggregateCmd.Flags())
	root.AddCommand(aggregateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a buy or sell against explicit curve state",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("side", "buy", "buy or sell")
	quoteCmd.Flags().Uint64("supply", 0, "token supply in base units")
	quoteCmd.Flags().Uint64("reserve", 0, "curve reserve in base units")
	quoteCmd.Flags().Uint8("ratio", 50, "reserve ratio in percent")
	quoteCmd.Flags().Uint64("amount", 0, "deposit (buy) or token amount (sell) in base units")
	quoteCmd.Flags().Uint16("fee-bps", 0, "fee in basis points")
	quoteCmd.Flags().Bool("linear", false, "use the linear power approximation")
	root.AddCommand(quoteCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addLogFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this file, rotated by size")
}

func addReplayFlags(flags *pflag.FlagSet) {
	flags.String("script", "", "command script JSONL")
	flags.String("out", "./data/logs.jsonl", "output event logs JSONL")
	flags.String("pg-dsn", "", "optional Postgres DSN for event logs and pool snapshots")
	flags.String("snapshot", "", "optional pool snapshot JSONL written after the replay")
	flags.String("engine-address", "0x000000000000000000000000000000000000c0de", "market engine address")
	flags.String("admin", "", "initial admin address")
	flags.String("treasury", "", "fee treasury address (defaults to admin)")
	flags.String("reserve-asset", "", "reserve asset address")
	flags.Uint8("reserve-decimals", 6, "reserve asset decimals")
	flags.Uint16("buy-fee-bps", 100, "buy fee in basis points")
	flags.Uint16("sell-fee-bps", 100, "sell fee in basis points")
	flags.Uint64("default-threshold-usd", 69_000, "default migration market cap in USD")
	flags.Duration("oracle-max-age", time.Hour, "oldest oracle price that may trigger migration (0 disables)")
	flags.Bool("linear", false, "use the linear power approximation")
	flags.String("dex-custody", "0x000000000000000000000000000000000000de00", "DEX custody account for migrated liquidity")
	flags.Bool("auto-migrate", true, "hand pools to the DEX as soon as they migrate")
	flags.Bool("fail-fast", false, "stop at the first rejected command")
	flags.Int("batch-size", 500, "event logs per storage write")
	flags.Int("max-retries", 3, "maximum storage retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial storage retry backoff")
	addLogFlags(flags)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevel()
	if err := zcfg.Level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg.File == "" {
		return logger, nil
	}

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zcfg.EncoderConfig), sink, zcfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}
