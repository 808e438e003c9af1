package entity

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenBalance represents the amount of a single mint held by an owner.
// RawAmount is the on-chain integer amount, UIAmount is RawAmount / 10^Decimals.
type TokenBalance struct {
	Mint      string  `json:"mint"`
	RawAmount uint64  `json:"rawAmount"`
	Decimals  uint8   `json:"decimals"`
	UIAmount  float64 `json:"uiAmount"`
}

// NewTokenBalance builds a TokenBalance and derives UIAmount without going through
// float division on the raw amount.
func NewTokenBalance(mint string, rawAmount uint64, decimals uint8) TokenBalance {
	return TokenBalance{
		Mint:      mint,
		RawAmount: rawAmount,
		Decimals:  decimals,
		UIAmount:  ScaleRawAmount(rawAmount, decimals),
	}
}

// ScaleRawAmount converts an integer token amount into whole units.
func ScaleRawAmount(rawAmount uint64, decimals uint8) float64 {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(rawAmount), -int32(decimals))
	return d.InexactFloat64()
}

// WalletBalances is what a balance provider returns for one owner.
type WalletBalances struct {
	Owner  string         `json:"owner"`
	Native TokenBalance   `json:"native"` // Native.Mint is the chain's wrapped native mint
	Tokens []TokenBalance `json:"tokens"`
}
