package liquidation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"crossMarginSim/internal/domain"
	"crossMarginSim/internal/ledger"
	"crossMarginSim/internal/ports"
)

// Default thresholds, expressed as PnL percentage of margin used.
var (
	DefaultLiquidationThreshold = decimal.NewFromInt(-80)
	DefaultMarginCallThreshold  = decimal.NewFromInt(-50)
	DefaultCriticalThreshold    = decimal.NewFromInt(-70)
)

// Config holds the sweeper thresholds. Zero values fall back to the
// defaults above.
type Config struct {
	// LiquidationThreshold forces a close when the loss percentage
	// reaches it (default -80).
	LiquidationThreshold decimal.Decimal
	// MarginCallThreshold flags a position as margin-call risk without
	// closing it (default -50).
	MarginCallThreshold decimal.Decimal
	// CriticalThreshold marks the warning tier between margin call and
	// liquidation (default -70).
	CriticalThreshold decimal.Decimal
	Logger            ports.Logger
}

// Sweeper evaluates every open position against one consistent price
// snapshot and invokes ledger close operations when a liquidation
// condition fires. It holds no position state of its own.
type Sweeper struct {
	ledger               *ledger.Ledger
	logger               ports.Logger
	liquidationThreshold decimal.Decimal
	marginCallThreshold  decimal.Decimal
	criticalThreshold    decimal.Decimal
}

// Event records one forced liquidation performed during a sweep.
type Event struct {
	Symbol           string
	Side             domain.PositionSide
	Quantity         decimal.Decimal
	EntryPrice       decimal.Decimal
	LiquidationPrice decimal.Decimal // computed threshold price
	MarkPrice        decimal.Decimal // snapshot price the close executed at
	PnlPercent       decimal.Decimal
	RealizedPnl      decimal.Decimal
	Timestamp        time.Time
}

// MarginCall flags a position whose loss has passed the warning threshold
// but not yet the liquidation threshold.
type MarginCall struct {
	Symbol     string
	Side       domain.PositionSide
	PnlPercent decimal.Decimal
	MarkPrice  decimal.Decimal
	// Critical is set once the loss passes the secondary warning tier.
	Critical bool
}

// New creates a sweeper over the given ledger.
func New(l *ledger.Ledger, cfg Config) *Sweeper {
	s := &Sweeper{
		ledger:               l,
		logger:               cfg.Logger,
		liquidationThreshold: cfg.LiquidationThreshold,
		marginCallThreshold:  cfg.MarginCallThreshold,
		criticalThreshold:    cfg.CriticalThreshold,
	}
	if s.liquidationThreshold.IsZero() {
		s.liquidationThreshold = DefaultLiquidationThreshold
	}
	if s.marginCallThreshold.IsZero() {
		s.marginCallThreshold = DefaultMarginCallThreshold
	}
	if s.criticalThreshold.IsZero() {
		s.criticalThreshold = DefaultCriticalThreshold
	}
	return s
}

// Sweep runs one evaluation pass over all open positions. Each position
// with a snapshot price is checked against the loss threshold and the
// liquidation price; either condition is sufficient to force a close.
// Positions already removed by an earlier sweep are simply absent, so
// sweeping twice with the same snapshot never double-liquidates.
func (s *Sweeper) Sweep(ctx context.Context, prices map[string]decimal.Decimal) ([]Event, []MarginCall) {
	s.ledger.MarkToMarket(prices)

	var events []Event
	var calls []MarginCall

	for _, pos := range s.ledger.Positions() {
		price, ok := prices[pos.Symbol]
		if !ok || !price.IsPositive() {
			continue
		}

		pnl := ledger.CalculatePnl(pos, price)
		pnlPct := ledger.PnlPercent(pnl, pos.MarginUsed)
		liqPrice := ledger.CalculateLiquidationPrice(pos)

		if pnlPct.LessThanOrEqual(s.liquidationThreshold) || ledger.Crossed(pos.Side, price, liqPrice) {
			res, err := s.ledger.Liquidate(ctx, pos.Symbol, price, pnlPct)
			if err != nil {
				// The position may have been closed concurrently; skip it.
				s.logger.Error(ctx, err, "Liquidation close failed",
					map[string]interface{}{"symbol": pos.Symbol})
				continue
			}
			tx := res.Transactions[0]
			events = append(events, Event{
				Symbol:           pos.Symbol,
				Side:             pos.Side,
				Quantity:         pos.Quantity,
				EntryPrice:       pos.EntryPrice,
				LiquidationPrice: liqPrice,
				MarkPrice:        price,
				PnlPercent:       pnlPct,
				RealizedPnl:      tx.RealizedPnl,
				Timestamp:        tx.Timestamp,
			})
			continue
		}

		if pnlPct.LessThanOrEqual(s.marginCallThreshold) {
			call := MarginCall{
				Symbol:     pos.Symbol,
				Side:       pos.Side,
				PnlPercent: pnlPct,
				MarkPrice:  price,
				Critical:   pnlPct.LessThanOrEqual(s.criticalThreshold),
			}
			calls = append(calls, call)
			s.logger.Warn(ctx, "Margin call", map[string]interface{}{
				"symbol": pos.Symbol, "side": pos.Side,
				"pnlPercent": pnlPct.StringFixed(1), "critical": call.Critical,
			})
		}
	}

	return events, calls
}

// RiskSummary buckets open positions by loss severity for reporting.
type RiskSummary struct {
	HighRisk   []ledger.PositionRisk // at or past -60%
	MediumRisk []ledger.PositionRisk // at or past -30%
	LowRisk    []ledger.PositionRisk
	// TotalAtRisk is the absolute unrealized loss across high-risk
	// positions.
	TotalAtRisk decimal.Decimal
}

var (
	highRiskBound   = decimal.NewFromInt(-60)
	mediumRiskBound = decimal.NewFromInt(-30)
)

// Summarize classifies every priced position into risk buckets.
func (s *Sweeper) Summarize(prices map[string]decimal.Decimal) *RiskSummary {
	summary := &RiskSummary{TotalAtRisk: decimal.Zero}
	for _, info := range s.ledger.RiskInfo(prices) {
		switch {
		case info.PnlPercent.LessThanOrEqual(highRiskBound):
			summary.HighRisk = append(summary.HighRisk, info)
			summary.TotalAtRisk = summary.TotalAtRisk.Add(info.UnrealizedPnl.Abs())
		case info.PnlPercent.LessThanOrEqual(mediumRiskBound):
			summary.MediumRisk = append(summary.MediumRisk, info)
		default:
			summary.LowRisk = append(summary.LowRisk, info)
		}
	}
	return summary
}
