// Package valuation turns raw balances and untrusted market quotes into a wallet valuation.
package valuation

import (
	"math"

	"wallet_valuator/internal/domain/entity"
)

// Gate defaults.
const (
	DefaultDustThresholdUSD  = 0.05
	DefaultLiquidityFloorUSD = 1000.0
	DefaultMaxStalenessSec   = 21600
)

// GateConfig holds the quality gate thresholds.
type GateConfig struct {
	DustThresholdUSD  float64
	LiquidityFloorUSD float64
	MaxStalenessSec   int64
}

// DefaultGateConfig returns the default thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		DustThresholdUSD:  DefaultDustThresholdUSD,
		LiquidityFloorUSD: DefaultLiquidityFloorUSD,
		MaxStalenessSec:   DefaultMaxStalenessSec,
	}
}

// Evaluate decides whether a quote may count toward a valuation. Rules apply in order:
// allow-list, dust, liquidity floor, staleness. A liquidity of exactly 0 means unknown.
// A price or value that is not a finite number is treated as an unknown quote, i.e. dust.
func (g GateConfig) Evaluate(q entity.PriceQuote, uiAmount float64, isAllowlisted bool, now int64) entity.GateDecision {
	if isAllowlisted {
		return entity.GateDecision{Included: true, Reason: entity.GateReasonAllowlisted}
	}
	v := uiAmount * q.PriceUSD
	if !isFinite(q.PriceUSD) || !isFinite(v) || v < g.DustThresholdUSD {
		return entity.GateDecision{Reason: entity.GateReasonDust}
	}
	if q.LiquidityUSD > 0 && q.LiquidityUSD < g.LiquidityFloorUSD {
		return entity.GateDecision{Reason: entity.GateReasonIlliquid}
	}
	if q.UpdatedAtUnix == 0 || now-q.UpdatedAtUnix > g.MaxStalenessSec {
		return entity.GateDecision{Reason: entity.GateReasonStale}
	}
	return entity.GateDecision{Included: true, Reason: entity.GateReasonOK}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
