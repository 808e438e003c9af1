package port

import (
	"context"

	"wallet_valuator/internal/domain/entity"
)

// BalanceProvider reads the raw holdings of an owner address.
// Implementations will be specific to the chain client (e.g., Solana JSON-RPC).
type BalanceProvider interface {
	// ValidateOwner checks the owner address format. Returns an error wrapping entity.ErrInvalidOwnerAddress.
	ValidateOwner(owner string) error

	// FetchBalances returns the native balance and every token account of owner.
	// Any failure wraps entity.ErrBalanceFetch and is fatal to the valuation request.
	FetchBalances(ctx context.Context, owner string) (*entity.WalletBalances, error)

	// Definition returns the chain definition associated with this provider.
	Definition() entity.ChainDefinition
}
