package entity

// TokenInfo holds the static details of a known mint, as loaded from a token list file.
type TokenInfo struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	LogoURI  string `json:"logoURI,omitempty"`
}

// TokenMetadata is display-only information about a mint.
// Valuation never depends on it.
type TokenMetadata struct {
	Mint    string `json:"mint"`
	Symbol  string `json:"symbol"`
	Name    string `json:"name"`
	LogoURI string `json:"logoURI,omitempty"`
	Source  string `json:"source"` // "tokenlist", "dexscreener", "fallback"
}

// Metadata sources.
const (
	MetadataSourceTokenList   = "tokenlist"
	MetadataSourceDEXScreener = "dexscreener"
	MetadataSourceFallback    = "fallback"
)

// ShortMint returns a truncated mint identifier used when no metadata is available,
// e.g. "EPjF…Dt1v".
func ShortMint(mint string) string {
	if len(mint) <= 10 {
		return mint
	}
	return mint[:4] + "…" + mint[len(mint)-4:]
}

// FallbackMetadata builds metadata from the mint alone.
func FallbackMetadata(mint string) TokenMetadata {
	short := ShortMint(mint)
	return TokenMetadata{
		Mint:   mint,
		Symbol: short,
		Name:   short,
		Source: MetadataSourceFallback,
	}
}
