package port

import (
	"context"

	"wallet_valuator/internal/domain/entity"
)

// PriceOracle is a market-data source returning price, liquidity and update time per mint.
// Both calls may fail; callers must never treat a failure as fatal.
type PriceOracle interface {
	// BatchQuote fetches quotes for many mints at once. Missing mints are simply absent from the map.
	BatchQuote(ctx context.Context, mints []string) (map[string]entity.PriceQuote, error)

	// SingleQuote fetches one mint. Used as a degraded fallback after a batch call.
	SingleQuote(ctx context.Context, mint string) (entity.PriceQuote, error)

	// Name identifies the oracle in logs and metrics.
	Name() string
}
