package domain

import "github.com/shopspring/decimal"

// PositionSide represents the direction of a leveraged position.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// IsValid reports whether the side is one of the known directions.
func (s PositionSide) IsValid() bool {
	return s == Long || s == Short
}

// Opposite returns the reverse direction.
func (s PositionSide) Opposite() PositionSide {
	if s == Long {
		return Short
	}
	return Long
}

// TransactionType identifies a position lifecycle event in the journal.
type TransactionType string

const (
	TxOpen        TransactionType = "OPEN"
	TxAdd         TransactionType = "ADD"
	TxReverse     TransactionType = "REVERSE"
	TxClose       TransactionType = "CLOSE"
	TxLiquidation TransactionType = "LIQUIDATION"
)

// RiskLevel classifies how close a position is to forced liquidation,
// based on its unrealized loss as a percentage of the margin backing it.
type RiskLevel string

const (
	RiskSafe       RiskLevel = "SAFE"
	RiskLow        RiskLevel = "LOW"
	RiskMedium     RiskLevel = "MEDIUM"
	RiskHigh       RiskLevel = "HIGH"
	RiskCritical   RiskLevel = "CRITICAL"
	RiskLiquidated RiskLevel = "LIQUIDATED"
)

var (
	riskLowBound      = decimal.NewFromInt(-10)
	riskMediumBound   = decimal.NewFromInt(-30)
	riskHighBound     = decimal.NewFromInt(-50)
	riskCriticalBound = decimal.NewFromInt(-70)
	riskLiquidBound   = decimal.NewFromInt(-80)
)

// ClassifyRisk maps an unrealized PnL percentage (relative to margin used)
// onto a risk tier. A price-based liquidation crossing is classified by the
// caller, which is the only place the mark price is known.
func ClassifyRisk(pnlPercent decimal.Decimal) RiskLevel {
	switch {
	case pnlPercent.LessThanOrEqual(riskLiquidBound):
		return RiskLiquidated
	case pnlPercent.LessThanOrEqual(riskCriticalBound):
		return RiskCritical
	case pnlPercent.LessThanOrEqual(riskHighBound):
		return RiskHigh
	case pnlPercent.LessThanOrEqual(riskMediumBound):
		return RiskMedium
	case pnlPercent.LessThanOrEqual(riskLowBound):
		return RiskLow
	default:
		return RiskSafe
	}
}
