package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"curveLaunch/internal/config"
	"curveLaunch/internal/events"
	"curveLaunch/internal/model"
	"curveLaunch/internal/storage"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decoder, err := events.NewMarketDecoder()
	if err != nil {
		return err
	}

	outWriter, err := storage.OpenJSONL(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.OpenJSONL(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
	)

	stats, err := decodeLogs(ctx, cfg.In, decoder, outWriter, errWriter)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", stats.total),
		zap.Int("decoded", stats.decoded),
		zap.Int("skipped", stats.skipped),
		zap.Int("failed", stats.failed),
	)
	return nil
}

type decodeStats struct {
	total, decoded, skipped, failed int
}

type recordWriter interface {
	Write(value interface{}) error
}

func decodeLogs(ctx context.Context, path string, decoder events.Decoder, out, errs recordWriter) (decodeStats, error) {
	var stats decodeStats
	err := storage.ScanFile(path, func(_ int, line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			stats.failed++
			return writeDecodeError(errs, model.DecodeError{Error: err.Error()})
		}
		if record.Topic0() == "" {
			stats.failed++
			return writeDecodeError(errs, decodeErrorFromRecord(record, fmt.Errorf("missing topic0")))
		}
		if !decoder.CanDecode(record.Topic0()) {
			stats.skipped++
			return nil
		}

		event, err := decoder.Decode(record)
		if err != nil {
			stats.failed++
			return writeDecodeError(errs, decodeErrorFromRecord(record, err))
		}
		if err := out.Write(event); err != nil {
			return err
		}
		stats.decoded++
		return nil
	})
	return stats, err
}

func decodeErrorFromRecord(record model.LogRecord, err error) model.DecodeError {
	return model.DecodeError{
		Seq:     record.Seq,
		Address: record.Address,
		Topic0:  record.Topic0(),
		Error:   err.Error(),
	}
}

func writeDecodeError(w recordWriter, errRecord model.DecodeError) error {
	if w == nil {
		return nil
	}
	return w.Write(errRecord)
}
