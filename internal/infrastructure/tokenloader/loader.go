package tokenloader

import (
	"errors"
	"fmt"
	"io/fs"

	"wallet_valuator/internal/app/port"
	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/pkg/utils"
)

const defaultTokenListPath = "data/tokens/solana.json"

// TokenFileLoader implements the port.TokenListProvider interface.
type TokenFileLoader struct {
	filePath string
	logger   port.Logger
}

// NewTokenLoader creates a new TokenFileLoader. An empty path uses data/tokens/solana.json.
func NewTokenLoader(filePath string, logger port.Logger) *TokenFileLoader {
	if filePath == "" {
		filePath = defaultTokenListPath
	}
	return &TokenFileLoader{filePath: filePath, logger: logger}
}

// GetTokens reads the token list and returns it keyed by mint address.
// A missing file yields an empty list; a malformed one is an error.
// Entries without an address are skipped, and the first entry wins for a duplicated mint.
func (l *TokenFileLoader) GetTokens() (map[string]entity.TokenInfo, error) {
	tokens, err := utils.LoadTokensFromJSON(l.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Token list file not found, metadata will come from remote sources only", "path", l.filePath)
			return map[string]entity.TokenInfo{}, nil
		}
		return nil, fmt.Errorf("failed to load token list %s: %w", l.filePath, err)
	}

	byMint := make(map[string]entity.TokenInfo, len(tokens))
	skipped := 0
	for _, t := range tokens {
		if t.Address == "" {
			skipped++
			continue
		}
		if _, dup := byMint[t.Address]; dup {
			l.logger.Debug("Duplicate token in list, keeping first", "mint", t.Address, "symbol", t.Symbol)
			continue
		}
		byMint[t.Address] = t
	}
	if skipped > 0 {
		l.logger.Warn("Token list entries without address skipped", "path", l.filePath, "count", skipped)
	}
	l.logger.Info("Token list loaded", "path", l.filePath, "count", len(byMint))
	return byMint, nil
}
