package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable journal entry recording one position
// lifecycle event. Entries are append-only and ordered by insertion; the
// ULID id preserves that order lexicographically.
type Transaction struct {
	ID     string          // ULID, time-sortable
	Type   TransactionType // OPEN, ADD, REVERSE, CLOSE or LIQUIDATION
	Symbol string
	Side   PositionSide

	Quantity   decimal.Decimal
	Price      decimal.Decimal // Execution price for OPEN/ADD entries
	EntryPrice decimal.Decimal // Average entry at the time of a close/reverse
	ClosePrice decimal.Decimal // Price the quantity was closed at
	Leverage   int

	MarginUsed     decimal.Decimal // Margin allocated by this event
	MarginReturned decimal.Decimal // Margin actually credited back on close
	RealizedPnl    decimal.Decimal // Unclamped realized profit or loss
	PnlPercent     decimal.Decimal // Loss percentage that triggered a liquidation

	Timestamp time.Time
}
