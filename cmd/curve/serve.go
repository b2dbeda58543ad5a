package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveLaunch/internal/api"
	"curveLaunch/internal/config"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
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

	runner, err := replayScript(ctx, cfg.ReplayConfig, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(runner.Engine(), api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		Logger:         logger.Named("api"),
	})

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Int("pools", len(runner.Pools())),
	)
	return server.ListenAndServe(ctx, cfg.Listen)
}
