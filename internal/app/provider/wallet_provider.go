package provider

import (
	"fmt"

	"wallet_valuator/internal/app/port"
)

type walletProviderImpl struct {
	source port.WalletProvider
	logger port.Logger
}

// NewWalletProvider creates a WalletProvider that fails when the source yields no owners.
func NewWalletProvider(source port.WalletProvider, logger port.Logger) port.WalletProvider {
	return &walletProviderImpl{source: source, logger: logger}
}

// GetWallets loads owner addresses for batch valuation.
func (p *walletProviderImpl) GetWallets() ([]string, error) {
	owners, err := p.source.GetWallets()
	if err != nil {
		p.logger.Error("Failed to load wallets", "error", err)
		return nil, err
	}
	if len(owners) == 0 {
		return nil, fmt.Errorf("no valid owner addresses to value")
	}
	p.logger.Debug("Wallets ready for valuation", "count", len(owners))
	return owners, nil
}
