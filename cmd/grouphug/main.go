// Command grouphug runs the transaction aggregation server: it collects
// SIGHASH_SINGLE | ANYONECANPAY signed transactions from clients, batches
// them into fee-rate groups and broadcasts each assembled group through an
// Electrum endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yourusername/grouphug/internal/config"
	"github.com/yourusername/grouphug/internal/metrics"
	"github.com/yourusername/grouphug/internal/oracle"
	"github.com/yourusername/grouphug/internal/server"
	"github.com/yourusername/grouphug/internal/txvalidation"
)

func main() {
	if len(os.Args) > 2 {
		fmt.Fprintln(os.Stderr, "Usage: grouphug [config-file]")
		os.Exit(1)
	}

	configPath := config.DefaultPath
	if len(os.Args) == 2 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	m := metrics.New()
	chain := oracle.NewElectrumOracle(cfg.Electrum.Endpoint, cfg.Electrum.CertificateValidation, m)
	validator := txvalidation.New(chain, cfg.Network.Name, cfg.Dust.Limit)

	// The registry is the only shared state; main owns it and hands it to
	// the frontend and the sweeper.
	registry := server.NewRegistry(validator, chain, cfg, logger, m)
	sweeper := server.NewSweeper(registry, chain, server.DefaultSweepInterval, logger, m)
	frontend := server.NewFrontend(registry, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx)

	logger.Info("grouphug server starting",
		zap.String("network", cfg.Network.Name),
		zap.String("electrum_endpoint", cfg.Electrum.Endpoint),
		zap.Int("group_max_size", cfg.Group.MaxSize),
		zap.Int64("group_max_time", cfg.Group.MaxTime))

	if err := frontend.ListenAndServe(ctx); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
