package entity

import "math"

// PriceQuote is a market quote for one mint. The zero value means "unknown".
type PriceQuote struct {
	Mint          string  `json:"mint"`
	PriceUSD      float64 `json:"priceUSD"`
	LiquidityUSD  float64 `json:"liquidityUSD"`
	UpdatedAtUnix int64   `json:"updatedAtUnix"`
}

// IsZero reports whether the quote carries no market data.
func (q PriceQuote) IsZero() bool {
	return q.PriceUSD == 0 && q.LiquidityUSD == 0 && q.UpdatedAtUnix == 0
}

// HasPrice reports whether the quote has a finite positive price.
func (q PriceQuote) HasPrice() bool {
	return q.PriceUSD > 0 && !math.IsInf(q.PriceUSD, 1)
}

// GateReason explains a quality gate decision.
type GateReason string

const (
	GateReasonOK          GateReason = "ok"
	GateReasonDust        GateReason = "dust"
	GateReasonIlliquid    GateReason = "illiquid"
	GateReasonStale       GateReason = "stale"
	GateReasonAllowlisted GateReason = "allowlisted"
)

// IsRejection reports whether the reason excludes a token from the total.
func (r GateReason) IsRejection() bool {
	switch r {
	case GateReasonDust, GateReasonIlliquid, GateReasonStale:
		return true
	}
	return false
}

// GateDecision is the outcome of running a quote through the quality gate.
type GateDecision struct {
	Included bool       `json:"included"`
	Reason   GateReason `json:"reason"`
}
