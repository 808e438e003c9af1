package port

import (
	"context"

	"wallet_valuator/internal/domain/entity"
)

// ValuationService is the caller-facing valuation API.
type ValuationService interface {
	// Value returns the USD valuation of owner. Only invalid-owner and balance-fetch
	// failures are returned as errors; price problems shrink the token list instead.
	Value(ctx context.Context, owner string, opts entity.ValuationOptions) (entity.ValuationResult, error)
}
