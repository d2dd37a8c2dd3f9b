// Copyright (C) 2025, Lux Industries, Inc.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/messenger/api"
	"github.com/luxfi/messenger/config"
	"github.com/luxfi/messenger/database"
	"github.com/luxfi/messenger/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	databaseConnectRetries = 5

	shutdownTimeout = 5 * time.Second
	maxRelayLag     = 1024
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local devnet with a relayer and the verification API",
		Long: `Run an in-memory origin and destination chain with a relayer between them.
The destination's verification API is served on the API port and metrics on the
metrics port. Relayer progress is kept in the configured database.`,
		RunE: runServe,
	}
	cmd.Flags().AddFlagSet(config.BuildFlagSet())
	cmd.Flags().Duration("block-interval", 2*time.Second, "Interval between devnet blocks")
	cmd.Flags().Duration("deposit-interval", 0, "Interval between generated deposits, 0 to disable")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		config.DisplayUsageText()
		return err
	}
	blockInterval, _ := cmd.Flags().GetDuration("block-interval")
	depositInterval, _ := cmd.Flags().GetDuration("deposit-interval")

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("Initializing messenger devnet", zap.String("version", version))

	db, err := database.NewDatabase(logger, cfg.StorageLocation, cfg.RedisURL, []database.RelayerID{devRelayerID(&cfg)})
	if err != nil {
		return err
	}
	if err := waitForDatabase(logger, db); err != nil {
		return err
	}
	d, err := newDevnet(logger, &cfg, db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           api.NewRouter(logger.Named("api"), d.dest, nil, healthCheck(d, db)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle(api.MetricsPath, promhttp.HandlerFor(
		prometheus.Gatherers{d.registry, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	))
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return d.relayer.Run(ctx)
	})
	eg.Go(func() error {
		return serveUntilDone(ctx, logger, apiServer)
	})
	eg.Go(func() error {
		return serveUntilDone(ctx, logger, metricsServer)
	})
	eg.Go(func() error {
		produceBlocks(ctx, d, blockInterval)
		return nil
	})
	if depositInterval > 0 {
		eg.Go(func() error {
			generateDeposits(ctx, logger, d, depositInterval)
			return nil
		})
	}

	err = eg.Wait()
	if closer, ok := db.(interface{ Close() error }); ok {
		if closeErr := closer.Close(); closeErr != nil {
			logger.Error("Failed to close database", zap.Error(closeErr))
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Messenger devnet stopped")
	return nil
}

// waitForDatabase retries a remote database until it answers, so a Redis
// that is still starting does not fail the first checkpoint read.
func waitForDatabase(logger *zap.Logger, db database.RelayerDatabase) error {
	pinger, ok := db.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	err := utils.WithMaxRetries(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return pinger.Ping(ctx)
	}, databaseConnectRetries, logger)
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// healthCheck fails while the relayer is more than maxRelayLag messages
// behind the origin chain, or while a remote database is unreachable.
func healthCheck(d *devnet, db database.RelayerDatabase) func(context.Context) error {
	pinger, _ := db.(interface{ Ping(context.Context) error })
	return func(ctx context.Context) error {
		sent, next := d.origin.Nonce(), d.relayer.NextNonce()
		if sent > next+maxRelayLag {
			return fmt.Errorf("relayer is %d messages behind", sent-next)
		}
		if pinger != nil {
			if err := pinger.Ping(ctx); err != nil {
				return fmt.Errorf("database unreachable: %w", err)
			}
		}
		return nil
	}
}

func serveUntilDone(ctx context.Context, logger *zap.Logger, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("server %s stopped: %w", server.Addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func produceBlocks(ctx context.Context, d *devnet, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.advance(uint64(max(interval/time.Second, 1)))
		}
	}
}

func generateDeposits(ctx context.Context, logger *zap.Logger, d *devnet, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	recipient := common.BytesToAddress([]byte{0xbe})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := d.adapter.Deposit(ctx, devDepositor, recipient, uint256.NewInt(1_000_000_000)); err != nil {
				logger.Warn("Generated deposit failed", zap.Error(err))
			}
		}
	}
}
