package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents one open cross-margin position. The ledger keeps at
// most one position per symbol; an opposite-direction request mutates or
// replaces this entry instead of creating a second one.
type Position struct {
	Symbol     string          // Trading symbol (e.g., "ETHUSDT")
	Side       PositionSide    // LONG or SHORT
	Quantity   decimal.Decimal // Leverage-scaled notional quantity, > 0
	EntryPrice decimal.Decimal // Quantity-weighted average cost basis, > 0
	Leverage   int             // Leverage multiplier, >= 1
	MarginUsed decimal.Decimal // Margin allocated to this position, > 0

	// UnrealizedPnl is a cache of the last mark-to-market value. It is
	// recomputed on every sweep and is never the ground truth.
	UnrealizedPnl decimal.Decimal

	OpenedAt time.Time // Timestamp when the position was first opened
}

// Notional returns the current notional value of the position at entry.
func (p *Position) Notional() decimal.Decimal {
	return p.Quantity.Mul(p.EntryPrice)
}

// Clone returns an independent copy of the position.
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}
