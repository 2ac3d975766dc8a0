package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crossMarginSim/config"
	"crossMarginSim/internal/ledger"
	"crossMarginSim/internal/liquidation"
	"crossMarginSim/internal/ports"
)

// Service drives the simulation: on a fixed interval it captures one
// price snapshot from the feed and runs a liquidation sweep over the
// ledger. The ledger itself is single-threaded logic; this loop is its
// only periodic caller.
type Service struct {
	cfg     *config.Config
	logger  ports.Logger
	feed    ports.PriceFeed
	ledger  *ledger.Ledger
	sweeper *liquidation.Sweeper
}

// NewService creates the sweep scheduler.
func NewService(cfg *config.Config, logger ports.Logger, feed ports.PriceFeed, lgr *ledger.Ledger, sweeper *liquidation.Sweeper) (*Service, error) {
	if cfg == nil || logger == nil || feed == nil || lgr == nil || sweeper == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("configuration SweepInterval must be positive")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("configuration Symbols must not be empty")
	}
	return &Service{
		cfg:     cfg,
		logger:  logger,
		feed:    feed,
		ledger:  lgr,
		sweeper: sweeper,
	}, nil
}

// Start runs the sweep loop until the context is canceled or a shutdown
// signal arrives, then saves a final account snapshot.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting liquidation sweep loop", map[string]interface{}{
		"interval": s.cfg.SweepInterval.String(),
		"symbols":  s.cfg.Symbols,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// runSweep captures one snapshot and evaluates every open position
// against it. Feed errors skip the tick; the next tick retries naturally.
func (s *Service) runSweep(ctx context.Context) {
	prices, err := s.feed.GetPrices(ctx, s.cfg.Symbols)
	if err != nil {
		s.logger.Warn(ctx, "Price snapshot unavailable, skipping sweep",
			map[string]interface{}{"error": err.Error()})
		return
	}

	events, calls := s.sweeper.Sweep(ctx, prices)
	for _, ev := range events {
		s.logger.Warn(ctx, "Forced liquidation", map[string]interface{}{
			"symbol":     ev.Symbol,
			"side":       ev.Side,
			"markPrice":  ev.MarkPrice.String(),
			"pnlPercent": ev.PnlPercent.StringFixed(1),
		})
	}
	for _, call := range calls {
		s.logger.Warn(ctx, "Margin call risk", map[string]interface{}{
			"symbol":     call.Symbol,
			"side":       call.Side,
			"pnlPercent": call.PnlPercent.StringFixed(1),
			"critical":   call.Critical,
		})
	}

	summary := s.ledger.Summary(prices)
	s.logger.Debug(ctx, "Sweep complete", map[string]interface{}{
		"positions":       summary.PositionCount,
		"marginBalance":   summary.MarginBalance.StringFixed(2),
		"totalMarginUsed": summary.TotalMarginUsed.StringFixed(2),
		"unrealizedPnl":   summary.TotalUnrealizedPnl.StringFixed(2),
		"liquidations":    len(events),
		"marginCalls":     len(calls),
	})
}

// shutdown persists a final snapshot. Uses a fresh context: the loop
// context is already canceled by the time we get here.
func (s *Service) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info(ctx, "Sweep loop stopping, saving final state")
	if err := s.ledger.Save(ctx); err != nil {
		s.logger.Error(ctx, err, "Final state save failed")
		return err
	}

	summary := s.ledger.Summary(nil)
	s.logger.Info(ctx, "Final account state", map[string]interface{}{
		"marginBalance":   summary.MarginBalance.StringFixed(2),
		"totalMarginUsed": summary.TotalMarginUsed.StringFixed(2),
		"openPositions":   summary.PositionCount,
	})
	return nil
}
