package entity

import (
	"strconv"
	"strings"
)

// ValuedToken is one line of a wallet valuation.
type ValuedToken struct {
	Mint          string         `json:"mint"`
	Amount        float64        `json:"amount"`
	Decimals      uint8          `json:"decimals"`
	PriceUSD      float64        `json:"priceUSD"`
	ValueUSD      float64        `json:"valueUSD"`
	LiquidityUSD  float64        `json:"liquidityUSD"`
	UpdatedAtUnix int64          `json:"updatedAtUnix"`
	Reason        GateReason     `json:"reason"`
	Counted       bool           `json:"counted"` // false only for dust lines listed because of ShowAll
	Metadata      *TokenMetadata `json:"metadata,omitempty"`
}

// GateRejection records why a held mint was left out of the total.
type GateRejection struct {
	Mint         string     `json:"mint"`
	Reason       GateReason `json:"reason"`
	ValueUSD     float64    `json:"valueUSD"`
	FromCooldown bool       `json:"fromCooldown"`
}

// ValuationResult is an immutable valuation snapshot for one owner.
type ValuationResult struct {
	Owner          string          `json:"owner"`
	TotalValueUSD  float64         `json:"totalValueUSD"`
	Tokens         []ValuedToken   `json:"tokens"`
	Rejected       []GateRejection `json:"rejected,omitempty"`
	ComputedAtUnix int64           `json:"computedAtUnix"`
}

// ValuationOptions are the caller-facing switches of a valuation request.
type ValuationOptions struct {
	IncludeMeta   bool    `json:"includeMeta"`
	IncludeQuotes bool    `json:"includeQuotes"` // adds gate rejections to the result
	MinValueUSD   float64 `json:"minValueUSD"`   // display floor, does not change the total
	ShowAll       bool    `json:"showAll"`       // lists dust and ignores MinValueUSD
}

// CacheKey derives the result cache key. Every option that changes the output is part of it.
func (o ValuationOptions) CacheKey(owner string) string {
	var b strings.Builder
	b.Grow(len(owner) + 48)
	b.WriteString(owner)
	b.WriteString("|meta=")
	b.WriteString(strconv.FormatBool(o.IncludeMeta))
	b.WriteString("|quotes=")
	b.WriteString(strconv.FormatBool(o.IncludeQuotes))
	b.WriteString("|min=")
	b.WriteString(strconv.FormatFloat(o.MinValueUSD, 'f', -1, 64))
	b.WriteString("|all=")
	b.WriteString(strconv.FormatBool(o.ShowAll))
	return b.String()
}

// Allowlist holds the mints that bypass the quality gate.
type Allowlist struct {
	NativeMint     string
	NativeDecimals uint8
	StableMint     string
	StableDecimals uint8
}

// Contains reports whether mint is allow-listed.
func (a Allowlist) Contains(mint string) bool {
	return mint != "" && (mint == a.NativeMint || mint == a.StableMint)
}
