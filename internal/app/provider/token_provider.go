package provider

import (
	"sync"

	"wallet_valuator/internal/app/port"
	"wallet_valuator/internal/domain/entity"
)

type tokenProviderImpl struct {
	source port.TokenListProvider
	logger port.Logger

	mu          sync.Mutex
	tokensCache map[string]entity.TokenInfo
}

// NewTokenProvider creates a TokenListProvider that loads source once and then serves
// the cached list.
func NewTokenProvider(source port.TokenListProvider, logger port.Logger) port.TokenListProvider {
	return &tokenProviderImpl{source: source, logger: logger}
}

// GetTokens caches the result after the first successful load. Failed loads are retried
// on the next call.
func (p *tokenProviderImpl) GetTokens() (map[string]entity.TokenInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tokensCache != nil {
		return p.tokensCache, nil
	}

	tokens, err := p.source.GetTokens()
	if err != nil {
		p.logger.Error("Failed to load token list", "error", err)
		return nil, err
	}
	if tokens == nil {
		tokens = map[string]entity.TokenInfo{}
	}
	p.tokensCache = tokens
	p.logger.Debug("Token list cached", "count", len(tokens))
	return tokens, nil
}
