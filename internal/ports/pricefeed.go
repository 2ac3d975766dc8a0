package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceFeed supplies the price snapshot consumed by one sweep cycle.
// A snapshot is immutable once captured; the sweeper never re-fetches
// mid-sweep.
type PriceFeed interface {
	// GetPrices returns the latest price for each requested symbol.
	// Symbols the feed cannot price are simply absent from the map.
	GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}
