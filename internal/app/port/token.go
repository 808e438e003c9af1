package port

import (
	"context"

	"wallet_valuator/internal/domain/entity"
)

// TokenListProvider defines the interface for fetching static token definitions.
type TokenListProvider interface {
	// GetTokens returns the known tokens keyed by mint address.
	GetTokens() (map[string]entity.TokenInfo, error)
}

// MetadataProvider supplies display information for mints.
// Valuation never depends on it; a missing entry degrades to a truncated mint.
type MetadataProvider interface {
	TokenMetadata(ctx context.Context, mints []string) (map[string]entity.TokenMetadata, error)
}

// MetadataSource is one link of a metadata chain, e.g. DEXScreener token info.
type MetadataSource interface {
	LookupMetadata(ctx context.Context, mints []string) (map[string]entity.TokenMetadata, error)
}
