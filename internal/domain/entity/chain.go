package entity

// ChainDefinition holds the configuration for a specific Solana cluster.
// This structure is defined at the domain level to be used across application and infrastructure layers.
type ChainDefinition struct {
	Cluster            string   `json:"cluster" yaml:"cluster"` // "mainnet-beta", "devnet"
	Name               string   `json:"name" yaml:"name"`
	NativeSymbol       string   `json:"nativeSymbol" yaml:"nativeSymbol"`
	NativeDecimals     uint8    `json:"nativeDecimals" yaml:"nativeDecimals"`
	NativeMint         string   `json:"nativeMint" yaml:"nativeMint"` // wrapped native mint, used for pricing
	StableSymbol       string   `json:"stableSymbol" yaml:"stableSymbol"`
	StableMint         string   `json:"stableMint" yaml:"stableMint"`
	StableDecimals     uint8    `json:"stableDecimals" yaml:"stableDecimals"`
	DEXScreenerChainID string   `json:"dexScreenerChainId" yaml:"dexScreenerChainId"`
	BirdeyeChain       string   `json:"birdeyeChain" yaml:"birdeyeChain"`
	PrimaryRPCURL      string   `json:"primaryRpcUrl" yaml:"primaryRpcUrl"`
	FallbackRPCURLs    []string `json:"fallbackRpcUrls" yaml:"fallbackRpcUrls"`
	ExplorerURL        string   `json:"explorerUrl,omitempty" yaml:"explorerUrl,omitempty"`
}

// Allowlist returns the gate-exempt mints of the chain.
func (c ChainDefinition) Allowlist() Allowlist {
	return Allowlist{
		NativeMint:     c.NativeMint,
		NativeDecimals: c.NativeDecimals,
		StableMint:     c.StableMint,
		StableDecimals: c.StableDecimals,
	}
}
