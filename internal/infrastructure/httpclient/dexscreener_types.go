package httpclient

// DEXTokenPair is the wrapped response shape of DEX Screener ({"pairs": [...]}).
// The /tokens/v1 endpoint returns a bare array of PairData; both are accepted.
type DEXTokenPair struct {
	SchemaVersion string     `json:"schemaVersion"`
	Pairs         []PairData `json:"pairs"`
}

// PairData contains detailed information about a trading pair.
type PairData struct {
	ChainID       string        `json:"chainId"`
	DexID         string        `json:"dexId"`
	URL           string        `json:"url"`
	PairAddress   string        `json:"pairAddress"`
	BaseToken     DEXToken      `json:"baseToken"`
	QuoteToken    DEXToken      `json:"quoteToken"`
	PriceNative   string        `json:"priceNative"`
	PriceUsd      string        `json:"priceUsd"`
	Volume        PairVolume    `json:"volume"`
	Liquidity     *DEXLiquidity `json:"liquidity"` // Pointer to handle potential nulls
	Fdv           float64       `json:"fdv"`
	MarketCap     float64       `json:"marketCap"`
	PairCreatedAt int64         `json:"pairCreatedAt"`
	Info          *PairInfo     `json:"info,omitempty"`
}

// DEXToken represents a token in a trading pair.
type DEXToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// DEXLiquidity represents the liquidity information for a pair.
type DEXLiquidity struct {
	Usd   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

// PairVolume represents trading volume over different periods.
type PairVolume struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

// PairInfo carries the optional display data of the base token.
type PairInfo struct {
	ImageURL string `json:"imageUrl"`
}

func liquidityUSD(p *PairData) float64 {
	return safeLiquidity(p.Liquidity)
}
