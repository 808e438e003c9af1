package networkdefinition

import (
	"fmt"
	"sort"
	"strings"

	"wallet_valuator/internal/app/port"
	"wallet_valuator/internal/domain/entity"
)

// Well-known mints.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMainnet    = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCDevnet     = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

// Predefined cluster definitions
var ( //nolint:gochecknoglobals // Global for definitions
	MainnetBeta = entity.ChainDefinition{
		Cluster:            "mainnet-beta",
		Name:               "Solana Mainnet Beta",
		NativeSymbol:       "SOL",
		NativeDecimals:     9,
		NativeMint:         WrappedSOLMint,
		StableSymbol:       "USDC",
		StableMint:         USDCMainnet,
		StableDecimals:     6,
		DEXScreenerChainID: "solana",
		BirdeyeChain:       "solana",
		PrimaryRPCURL:      "https://api.mainnet-beta.solana.com",
		FallbackRPCURLs:    []string{"https://solana-rpc.publicnode.com"},
		ExplorerURL:        "https://explorer.solana.com",
	}
	Devnet = entity.ChainDefinition{
		Cluster:            "devnet",
		Name:               "Solana Devnet",
		NativeSymbol:       "SOL",
		NativeDecimals:     9,
		NativeMint:         WrappedSOLMint,
		StableSymbol:       "USDC",
		StableMint:         USDCDevnet,
		StableDecimals:     6,
		DEXScreenerChainID: "solana", // DEX Screener has no devnet; quotes will mostly be missing
		BirdeyeChain:       "solana",
		PrimaryRPCURL:      "https://api.devnet.solana.com",
		FallbackRPCURLs:    []string{},
		ExplorerURL:        "https://explorer.solana.com/?cluster=devnet",
	}
)

var allKnownDefinitions = map[string]entity.ChainDefinition{
	MainnetBeta.Cluster: MainnetBeta,
	Devnet.Cluster:      Devnet,
}

// ChainDefinitionProvider resolves the active cluster definition.
type ChainDefinitionProvider struct {
	logger port.Logger
	active entity.ChainDefinition
}

// Clusters returns the names of all known clusters, sorted.
func Clusters() []string {
	names := make([]string, 0, len(allKnownDefinitions))
	for name := range allKnownDefinitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the predefined definition of cluster. "mainnet" is accepted as an alias.
func Lookup(cluster string) (entity.ChainDefinition, bool) {
	cluster = strings.ToLower(strings.TrimSpace(cluster))
	if cluster == "mainnet" {
		cluster = MainnetBeta.Cluster
	}
	def, ok := allKnownDefinitions[cluster]
	if !ok {
		return entity.ChainDefinition{}, false
	}
	def.FallbackRPCURLs = append([]string(nil), def.FallbackRPCURLs...)
	return def, true
}

// NewChainDefinitionProvider activates cluster. A non-empty rpcURL replaces the primary
// endpoint and the default primary is kept as the first fallback.
func NewChainDefinitionProvider(log port.Logger, cluster, rpcURL string, fallbackRPCURLs []string) (*ChainDefinitionProvider, error) {
	def, ok := Lookup(cluster)
	if !ok {
		return nil, fmt.Errorf("unknown cluster %q (known: %s)", cluster, strings.Join(Clusters(), ", "))
	}

	if rpcURL != "" && rpcURL != def.PrimaryRPCURL {
		def.FallbackRPCURLs = append([]string{def.PrimaryRPCURL}, def.FallbackRPCURLs...)
		def.PrimaryRPCURL = rpcURL
	}
	if len(fallbackRPCURLs) > 0 {
		def.FallbackRPCURLs = dedupeURLs(def.PrimaryRPCURL, append(append([]string(nil), fallbackRPCURLs...), def.FallbackRPCURLs...))
	}

	log.Info("Chain definition resolved",
		"cluster", def.Cluster,
		"rpc_primary", def.PrimaryRPCURL,
		"rpc_fallbacks", len(def.FallbackRPCURLs))
	return &ChainDefinitionProvider{logger: log, active: def}, nil
}

// Definition returns the active cluster definition.
func (p *ChainDefinitionProvider) Definition() entity.ChainDefinition {
	if p == nil {
		return entity.ChainDefinition{}
	}
	def := p.active
	def.FallbackRPCURLs = append([]string(nil), p.active.FallbackRPCURLs...)
	return def
}

func dedupeURLs(primary string, urls []string) []string {
	seen := map[string]struct{}{primary: {}}
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
