package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"solanaetl/internal/chain"
	"solanaetl/internal/checkpoint"
	"solanaetl/internal/config"
	"solanaetl/internal/pipeline"
	"solanaetl/internal/server"
	"solanaetl/internal/storage"
	"solanaetl/internal/storage/postgres"
)

func main() {
	godotenv.Load()

	root := &cobra.Command{
		Use:          "etl",
		Short:        "Solana event ingestion pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("rpc", "", "Solana RPC URL")
	root.PersistentFlags().String("database", "", "Postgres connection string")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().Duration("rpc-timeout", 30*time.Second, "RPC request timeout")
	root.PersistentFlags().Float64("rpc-rate-limit", 10, "RPC requests per second")
	root.PersistentFlags().Int("max-retries", 5, "maximum retry attempts")
	root.PersistentFlags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.PersistentFlags().String("error-spill", "./data/errors.jsonl", "local error spill JSONL path")

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Backfill a historical slot range through checkpoints",
		RunE:  runBackfill,
	}
	backfillCmd.Flags().Uint64("from", 0, "start slot (inclusive)")
	backfillCmd.Flags().Uint64("to", 0, "end slot (inclusive), 0 drains open checkpoints only")
	backfillCmd.Flags().Uint64("chunk-size", 100, "slots per checkpoint")
	backfillCmd.Flags().Int("workers", 4, "concurrent checkpoint workers")
	root.AddCommand(backfillCmd)

	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Follow the confirmed chain tip",
		RunE:  runStream,
	}
	streamCmd.Flags().Duration("poll-interval", 2*time.Second, "tip poll interval")
	root.AddCommand(streamCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pipeline health and progress over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().String("listen", ":8080", "listen address")
	root.AddCommand(serveCmd)

	telemetryCmd := &cobra.Command{
		Use:   "telemetry <file.jsonl>",
		Short: "Ingest product telemetry records from a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE:  runTelemetry,
	}
	root.AddCommand(telemetryCmd)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check RPC and warehouse connectivity, then exit",
		RunE:  runHealth,
	}
	root.AddCommand(healthCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg    config.Config
	logger *zap.Logger
	client *chain.Client
	store  *postgres.Store
}

// setup wires the pieces every command shares.
func setup(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	client := chain.NewClient(cfg.RPCURL, chain.Options{
		Timeout:      cfg.RPCTimeout,
		RateLimit:    cfg.RPCRateLimit,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	})

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("connect warehouse: %w", err)
	}

	return &app{cfg: cfg, logger: logger, client: client, store: store}, nil
}

func (a *app) close() {
	a.store.Close()
	a.logger.Sync()
}

func (a *app) pipelineConfig() pipeline.Config {
	host, _ := os.Hostname()
	if host == "" {
		host = "etl"
	}
	return pipeline.Config{
		WorkerID:     fmt.Sprintf("%s-%d", host, os.Getpid()),
		Workers:      a.cfg.Workers,
		MaxRetries:   a.cfg.MaxRetries,
		RetryBackoff: a.cfg.RetryBackoff,
		PollInterval: a.cfg.PollInterval,
	}
}

func (a *app) capture() *pipeline.Capture {
	return pipeline.NewCapture(a.store, storage.NewErrorSpill(a.cfg.ErrorSpill), a.logger)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.ToSlot > 0 && a.cfg.ToSlot < a.cfg.FromSlot {
		return fmt.Errorf("to slot %d before from slot %d", a.cfg.ToSlot, a.cfg.FromSlot)
	}

	a.logger.Info("backfill start",
		zap.String("rpc", a.cfg.RPCURL),
		zap.Uint64("from", a.cfg.FromSlot),
		zap.Uint64("to", a.cfg.ToSlot),
		zap.Uint64("chunk_size", a.cfg.ChunkSize),
		zap.Int("workers", a.cfg.Workers),
	)

	coord := checkpoint.NewCoordinator(a.store, a.logger)
	backfill := pipeline.NewBackfill(a.pipelineConfig(), a.client, a.store, coord, a.capture(), a.logger)
	return backfill.Run(ctx, a.cfg.FromSlot, a.cfg.ToSlot, a.cfg.ChunkSize)
}

func runStream(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("stream start",
		zap.String("rpc", a.cfg.RPCURL),
		zap.Duration("poll_interval", a.cfg.PollInterval),
	)

	stream := pipeline.NewStream(a.pipelineConfig(), a.client, a.store, a.capture(), a.logger)
	if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(a.store, a.client, a.logger)
	return srv.Run(ctx, a.cfg.ListenAddr)
}

func runTelemetry(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ingester := pipeline.NewTelemetry(a.pipelineConfig(), a.store, a.capture(), a.logger)
	return ingester.IngestFile(ctx, args[0])
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.store.Ping(checkCtx); err != nil {
		return fmt.Errorf("warehouse: %w", err)
	}
	slot, err := a.client.GetSlot(checkCtx)
	if err != nil {
		return fmt.Errorf("rpc: %w", err)
	}

	a.logger.Info("healthy", zap.Uint64("chain_tip_slot", slot))
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
