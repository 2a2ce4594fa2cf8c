package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sensingclues/harmonie-grib/internal/adapter/grib1"
	"github.com/sensingclues/harmonie-grib/internal/adapter/httpadapter"
	kafkaadapter "github.com/sensingclues/harmonie-grib/internal/adapter/kafka"
	"github.com/sensingclues/harmonie-grib/internal/adapter/postgres"
	"github.com/sensingclues/harmonie-grib/internal/adapter/tool"
	"github.com/sensingclues/harmonie-grib/internal/config"
	"github.com/sensingclues/harmonie-grib/internal/observability"
	"github.com/sensingclues/harmonie-grib/internal/pipeline"
)

const pushJob = "harmonie"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one complete forecast run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		return runBatch(cmd.Context(), cfg, logger)
	},
}

func runBatch(parent context.Context, cfg *config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	cropper, compressor, err := newTools(cfg, logger, metrics)
	if err != nil {
		logger.Error("external tools unavailable", "error", err)
		return err
	}

	deps := pipeline.Deps{
		Codec:      grib1.NewCodec(),
		Cropper:    cropper,
		Compressor: compressor,
	}

	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		deps.Notifier = writer
		logger.Info("run notifications enabled", "topic", cfg.KafkaTopic)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL != "" {
		if ledger, err := openLedger(ctx, cfg.DatabaseURL, logger); err != nil {
			logger.Warn("run ledger disabled", "error", err)
		} else {
			defer ledger.Close()
			deps.Ledger = ledger
		}
	}

	p := pipeline.New(deps, pipeline.OptionsFromConfig(cfg), logger, metrics)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, p, metrics.Gatherer(), logger)
		defer srv.Serve(cfg.ShutdownTimeout)()
	}

	manifest, runErr := p.Run(ctx)

	if cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := metrics.Push(pushCtx, cfg.PushgatewayURL, pushJob, manifest.RunLabel); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		logger.Error("pipeline error", "error", runErr)
		return runErr
	}
	return nil
}

// newTools resolves the external programs. A missing compressor is fatal; a
// missing cropper only disables slicing, so the returned Cropper may be nil.
func newTools(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (pipeline.Cropper, *tool.Compressor, error) {
	opts := tool.RunnerOptions{Timeout: cfg.ToolTimeout, Retries: cfg.ToolRetries}

	compressPath, err := tool.Resolve(cfg.CompressTool)
	if err != nil {
		return nil, nil, err
	}
	compressor := tool.NewCompressor(tool.NewRunner(compressPath, opts, logger, metrics))

	cropPath, err := tool.Resolve(cfg.CropTool)
	if err != nil {
		logger.Warn("crop tool unavailable, regional slices will be skipped", "tool", cfg.CropTool, "error", err)
		return nil, compressor, nil
	}
	return tool.NewCropper(tool.NewRunner(cropPath, opts, logger, metrics)), compressor, nil
}

func openLedger(ctx context.Context, url string, logger *slog.Logger) (*postgres.Ledger, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ledger, err := postgres.Connect(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	if err := ledger.EnsureSchema(ctx); err != nil {
		ledger.Close()
		return nil, fmt.Errorf("run ledger: %w", err)
	}
	return ledger, nil
}
