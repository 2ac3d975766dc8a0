package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarginAccount is the owned aggregate for one simulated cross-margin
// account. It exclusively owns the set of open positions; nothing outside
// the ledger mutates it directly.
//
// Invariant: TotalMarginUsed <= MarginBalance, enforced at open/add time.
// MarginBalance is never negative.
type MarginAccount struct {
	MarginBalance      decimal.Decimal
	TotalMarginUsed    decimal.Decimal
	TotalUnrealizedPnl decimal.Decimal // cache, recomputed every sweep
	Positions          []*Position
	LastUpdated        time.Time
}

// NewMarginAccount returns an empty account seeded with the given balance.
func NewMarginAccount(seedBalance decimal.Decimal) *MarginAccount {
	return &MarginAccount{
		MarginBalance:      seedBalance,
		TotalMarginUsed:    decimal.Zero,
		TotalUnrealizedPnl: decimal.Zero,
		Positions:          make([]*Position, 0),
		LastUpdated:        time.Now().UTC(),
	}
}

// AvailableMargin is the equity not currently backing an open position.
func (a *MarginAccount) AvailableMargin() decimal.Decimal {
	return a.MarginBalance.Sub(a.TotalMarginUsed)
}

// FindPosition returns the open position for symbol, or nil.
func (a *MarginAccount) FindPosition(symbol string) *Position {
	for _, p := range a.Positions {
		if p.Symbol == symbol {
			return p
		}
	}
	return nil
}

// RemovePosition deletes the open position for symbol, if present.
func (a *MarginAccount) RemovePosition(symbol string) {
	kept := a.Positions[:0]
	for _, p := range a.Positions {
		if p.Symbol != symbol {
			kept = append(kept, p)
		}
	}
	a.Positions = kept
}
