// Package server - Periodic closure sweeper
package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/grouphug/internal/metrics"
	"github.com/yourusername/grouphug/internal/oracle"
)

// DefaultSweepInterval is how often the sweeper wakes.
const DefaultSweepInterval = 60 * time.Second

// Sweeper periodically closes groups that aged out or whose bucket rate
// drifted above the market. It never touches group state outside the
// registry.
type Sweeper struct {
	registry *Registry
	chain    oracle.ChainOracle
	interval time.Duration

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewSweeper creates a sweeper with the given wake interval.
func NewSweeper(registry *Registry, chain oracle.ChainOracle, interval time.Duration, log *zap.Logger, m *metrics.Metrics) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		registry: registry,
		chain:    chain,
		interval: interval,
		log:      log.Named("sweeper"),
		metrics:  m,
	}
}

// Run loops until the context is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one wake: the time pass always runs; the drift pass is
// skipped when no market estimate is available this round.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.registry.SweepByTime(ctx, time.Now().Unix())

	marketRate, err := s.chain.EstimateFeeRate(ctx)
	if err != nil {
		s.log.Warn("fee estimate unavailable, skipping drift sweep", zap.Error(err))
		return
	}
	s.registry.SweepByFeeDrift(ctx, marketRate)

	if s.metrics != nil {
		s.log.Debug("sweep complete", zap.String("metrics", s.metrics.Export()))
	}
}
