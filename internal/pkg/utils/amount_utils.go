package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundUSD rounds a USD amount to cents (half away from zero). NaN and ±Inf round to 0.
func RoundUSD(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// SumUSD adds values with decimal arithmetic and rounds the result to cents.
// NaN and ±Inf values are skipped.
func SumUSD(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// FormatTokenAmount renders raw base units as a human-readable decimal string.
// Example: raw=1234500000, decimals=9 => "1.2345"
func FormatTokenAmount(raw uint64, decimals uint8) string {
	d := decimal.NewFromUint64(raw).Shift(-int32(decimals))
	return d.String()
}
