package valuation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet_valuator/internal/domain/entity"
)

func newAggregator(t *testing.T) (*Aggregator, *CooldownTracker) {
	t.Helper()
	tr, err := NewCooldownTracker(64)
	require.NoError(t, err)
	return NewAggregator(AggregatorConfig{Gate: DefaultGateConfig(), CooldownSec: 3600}, tr, nil), tr
}

func wallet(nativeRaw uint64, tokens ...entity.TokenBalance) *entity.WalletBalances {
	return &entity.WalletBalances{
		Owner:  "owner",
		Native: entity.NewTokenBalance(testNative, nativeRaw, 9),
		Tokens: tokens,
	}
}

func mints(tokens []entity.ValuedToken) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Mint)
	}
	return out
}

func TestAggregate_EndToEndScenario(t *testing.T) {
	agg, _ := newAggregator(t)
	b := wallet(100_000_000_000,
		entity.NewTokenBalance(testStable, 50_000_000, 6),
		entity.NewTokenBalance("ILLQ", 1_000_000, 0),
	)
	holdings := MergeHoldings(b, testAllow)
	quotes := map[string]entity.PriceQuote{
		testNative: {Mint: testNative, PriceUSD: 20, UpdatedAtUnix: testNow},
		"ILLQ":     {Mint: "ILLQ", PriceUSD: 0.0000003, LiquidityUSD: 50, UpdatedAtUnix: testNow},
	}

	res := agg.Aggregate(holdings, quotes, testAllow, entity.ValuationOptions{IncludeQuotes: true}, testNow)

	assert.Equal(t, 2050.00, res.TotalValueUSD)
	require.Len(t, res.Tokens, 2)
	assert.Equal(t, []string{testNative, testStable}, mints(res.Tokens))
	assert.Equal(t, 2000.0, res.Tokens[0].ValueUSD)
	assert.Equal(t, 50.0, res.Tokens[1].ValueUSD)
	assert.Equal(t, 1.0, res.Tokens[1].PriceUSD)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, entity.GateRejection{Mint: "ILLQ", Reason: entity.GateReasonIlliquid, ValueUSD: 0.3}, res.Rejected[0])
}

func TestAggregate_AllowListBypass(t *testing.T) {
	agg, _ := newAggregator(t)
	b := wallet(5_000_000_000, entity.NewTokenBalance(testStable, 3_000_000, 6))

	res := agg.Aggregate(MergeHoldings(b, testAllow), map[string]entity.PriceQuote{}, testAllow, entity.ValuationOptions{}, testNow)

	require.Len(t, res.Tokens, 2)
	for _, tok := range res.Tokens {
		assert.True(t, tok.Counted)
		assert.Equal(t, entity.GateReasonAllowlisted, tok.Reason)
	}
	assert.Equal(t, 3.0, res.TotalValueUSD, "native with unknown price counts as zero, stable is pinned")
}

func TestAggregate_DustExcludedAndCooledDown(t *testing.T) {
	agg, tr := newAggregator(t)
	b := wallet(0, entity.NewTokenBalance("DUST", 1, 0))
	quotes := map[string]entity.PriceQuote{"DUST": {PriceUSD: 0.01, LiquidityUSD: 1e6, UpdatedAtUnix: testNow}}

	res := agg.Aggregate(MergeHoldings(b, testAllow), quotes, testAllow, entity.ValuationOptions{}, testNow)

	assert.NotContains(t, mints(res.Tokens), "DUST")
	assert.Nil(t, res.Rejected, "rejections are only reported with IncludeQuotes")
	e, ok := tr.Rejection("DUST", testNow+1)
	require.True(t, ok)
	assert.Equal(t, entity.GateReasonDust, e.Reason)
	assert.Equal(t, testNow+3600, e.Until)
}

func TestAggregate_LiquidityFloorAndStaleness(t *testing.T) {
	agg, _ := newAggregator(t)
	b := wallet(0,
		entity.NewTokenBalance("THIN", 1, 0),
		entity.NewTokenBalance("OLD", 10, 0),
		entity.NewTokenBalance("GOOD", 10, 0),
	)
	quotes := map[string]entity.PriceQuote{
		"THIN": {PriceUSD: 1, LiquidityUSD: 500, UpdatedAtUnix: testNow},
		"OLD":  {PriceUSD: 1, LiquidityUSD: 1e6, UpdatedAtUnix: testNow - 7*3600},
		"GOOD": {PriceUSD: 1, LiquidityUSD: 1e6, UpdatedAtUnix: testNow},
	}

	res := agg.Aggregate(MergeHoldings(b, testAllow), quotes, testAllow, entity.ValuationOptions{IncludeQuotes: true}, testNow)

	assert.Equal(t, []string{"GOOD", testStable, testNative}, mints(res.Tokens))
	assert.Equal(t, 10.0, res.TotalValueUSD)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, "OLD", res.Rejected[0].Mint)
	assert.Equal(t, entity.GateReasonStale, res.Rejected[0].Reason)
	assert.Equal(t, "THIN", res.Rejected[1].Mint)
	assert.Equal(t, entity.GateReasonIlliquid, res.Rejected[1].Reason)
}

func TestAggregate_CooledMintRejectedWithoutQuote(t *testing.T) {
	agg, tr := newAggregator(t)
	tr.RecordRejection("DUST", entity.GateReasonDust, testNow-10, 3600)
	b := wallet(0, entity.NewTokenBalance("DUST", 5, 0))
	holdings := MergeHoldings(b, testAllow)

	query, cooled := agg.PartitionMints(holdings, testAllow, testNow)
	assert.Empty(t, query)
	assert.Equal(t, 1, cooled)

	res := agg.Aggregate(holdings, map[string]entity.PriceQuote{}, testAllow, entity.ValuationOptions{IncludeQuotes: true, ShowAll: true}, testNow)
	require.Len(t, res.Rejected, 1)
	assert.True(t, res.Rejected[0].FromCooldown)

	require.Contains(t, mints(res.Tokens), "DUST")
	for _, tok := range res.Tokens {
		if tok.Mint == "DUST" {
			assert.False(t, tok.Counted)
			assert.Zero(t, tok.PriceUSD)
		}
	}
}

func TestAggregate_ShowAllListsDustWithoutCountingIt(t *testing.T) {
	agg, _ := newAggregator(t)
	b := wallet(0, entity.NewTokenBalance("DUST", 2, 0), entity.NewTokenBalance("GOOD", 1, 0))
	quotes := map[string]entity.PriceQuote{
		"DUST": {PriceUSD: 0.01, UpdatedAtUnix: testNow},
		"GOOD": {PriceUSD: 0.2, UpdatedAtUnix: testNow},
	}

	res := agg.Aggregate(MergeHoldings(b, testAllow), quotes, testAllow, entity.ValuationOptions{ShowAll: true, MinValueUSD: 100}, testNow)

	assert.Equal(t, []string{"GOOD", "DUST", testStable, testNative}, mints(res.Tokens))
	assert.False(t, res.Tokens[1].Counted)
	assert.Equal(t, 0.02, res.Tokens[1].ValueUSD)
	assert.Equal(t, 0.2, res.TotalValueUSD)
}

func TestAggregate_MinValueIsDisplayOnly(t *testing.T) {
	agg, _ := newAggregator(t)
	b := wallet(0, entity.NewTokenBalance("SMALL", 1, 0), entity.NewTokenBalance("BIG", 1, 0))
	quotes := map[string]entity.PriceQuote{
		"SMALL": {PriceUSD: 0.5, UpdatedAtUnix: testNow},
		"BIG":   {PriceUSD: 10, UpdatedAtUnix: testNow},
	}

	res := agg.Aggregate(MergeHoldings(b, testAllow), quotes, testAllow, entity.ValuationOptions{MinValueUSD: 1}, testNow)

	assert.Equal(t, []string{"BIG", testStable, testNative}, mints(res.Tokens), "allow-listed entries ignore the floor")
	assert.Equal(t, 10.5, res.TotalValueUSD)
}

func TestAggregate_DeterministicOrder(t *testing.T) {
	agg, _ := newAggregator(t)
	b := wallet(0,
		entity.NewTokenBalance("CCC", 1, 0),
		entity.NewTokenBalance("AAA", 1, 0),
		entity.NewTokenBalance("BBB", 2, 0),
	)
	quotes := map[string]entity.PriceQuote{
		"AAA": {PriceUSD: 1, UpdatedAtUnix: testNow},
		"BBB": {PriceUSD: 1, UpdatedAtUnix: testNow},
		"CCC": {PriceUSD: 1, UpdatedAtUnix: testNow},
	}
	holdings := MergeHoldings(b, testAllow)

	first := agg.Aggregate(holdings, quotes, testAllow, entity.ValuationOptions{}, testNow)
	assert.Equal(t, []string{"BBB", "AAA", "CCC", testStable, testNative}, mints(first.Tokens))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, agg.Aggregate(holdings, quotes, testAllow, entity.ValuationOptions{}, testNow))
	}
}

func TestAggregate_RoundsOnlyAtTheEnd(t *testing.T) {
	agg, _ := newAggregator(t)
	var tokens []entity.TokenBalance
	quotes := map[string]entity.PriceQuote{}
	for _, m := range []string{"T1", "T2", "T3"} {
		tokens = append(tokens, entity.NewTokenBalance(m, 1, 0))
		quotes[m] = entity.PriceQuote{PriceUSD: 0.064, UpdatedAtUnix: testNow}
	}

	res := agg.Aggregate(MergeHoldings(wallet(0, tokens...), testAllow), quotes, testAllow, entity.ValuationOptions{}, testNow)

	assert.Equal(t, 0.19, res.TotalValueUSD, "0.192 rounded once, not 3 x 0.06")
	assert.Equal(t, 0.06, res.Tokens[0].ValueUSD)
}

func TestMergeHoldings(t *testing.T) {
	b := wallet(2_000_000_000,
		entity.NewTokenBalance("A", 5, 2),
		entity.NewTokenBalance("A", 7, 2),
		entity.NewTokenBalance("Z", 0, 6),
		entity.NewTokenBalance(testNative, 500_000_000, 9),
	)

	h := MergeHoldings(b, testAllow)

	require.Len(t, h, 3)
	assert.Equal(t, testNative, h[0].Mint)
	assert.Equal(t, uint64(2_500_000_000), h[0].RawAmount, "wrapped native accounts fold into the native balance")
	assert.Equal(t, 2.5, h[0].UIAmount)
	assert.Equal(t, testStable, h[1].Mint)
	assert.Zero(t, h[1].RawAmount)
	assert.Equal(t, "A", h[2].Mint)
	assert.Equal(t, uint64(12), h[2].RawAmount)
	assert.Equal(t, 0.12, h[2].UIAmount)
}

func TestMergeHoldings_SaturatesOnOverflow(t *testing.T) {
	b := wallet(0,
		entity.NewTokenBalance("BIG", math.MaxUint64-10, 0),
		entity.NewTokenBalance("BIG", 25, 0),
		entity.NewTokenBalance("BIG", 1, 0),
	)

	h := MergeHoldings(b, testAllow)

	require.Len(t, h, 3)
	assert.Equal(t, "BIG", h[2].Mint)
	assert.Equal(t, uint64(math.MaxUint64), h[2].RawAmount)
}

func TestAggregate_NonFiniteQuotesDoNotPanic(t *testing.T) {
	tests := []struct {
		name  string
		raw   uint64
		quote entity.PriceQuote
	}{
		{"value overflows to +Inf", 2_000_000_000, entity.PriceQuote{PriceUSD: 1e300, LiquidityUSD: 5000, UpdatedAtUnix: testNow}},
		{"NaN price", 10, entity.PriceQuote{PriceUSD: math.NaN(), LiquidityUSD: 5000, UpdatedAtUnix: testNow}},
		{"+Inf price", 10, entity.PriceQuote{PriceUSD: math.Inf(1), LiquidityUSD: 5000, UpdatedAtUnix: testNow}},
		{"-Inf price", 10, entity.PriceQuote{PriceUSD: math.Inf(-1), LiquidityUSD: 5000, UpdatedAtUnix: testNow}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, _ := newAggregator(t)
			b := wallet(1_000_000_000, entity.NewTokenBalance("MintX", tt.raw, 0))
			quotes := map[string]entity.PriceQuote{
				testNative: {PriceUSD: 20, UpdatedAtUnix: testNow},
				"MintX":    tt.quote,
			}
			opts := entity.ValuationOptions{IncludeQuotes: true, ShowAll: true}

			var res entity.ValuationResult
			require.NotPanics(t, func() {
				res = agg.Aggregate(MergeHoldings(b, testAllow), quotes, testAllow, opts, testNow)
			})

			assert.Equal(t, 20.0, res.TotalValueUSD)
			require.Len(t, res.Rejected, 1)
			assert.Equal(t, entity.GateRejection{Mint: "MintX", Reason: entity.GateReasonDust}, res.Rejected[0])
			for _, tok := range res.Tokens {
				if tok.Mint == "MintX" {
					assert.False(t, tok.Counted)
					assert.Zero(t, tok.PriceUSD)
					assert.Zero(t, tok.ValueUSD)
				}
			}
		})
	}
}

func TestAggregate_NonFiniteNativeQuoteCountsAsZero(t *testing.T) {
	for _, price := range []float64{math.NaN(), math.Inf(1), 1e300} {
		agg, _ := newAggregator(t)
		b := wallet(math.MaxUint64, entity.NewTokenBalance(testStable, 2_000_000, 6))
		quotes := map[string]entity.PriceQuote{
			testNative: {PriceUSD: price, LiquidityUSD: math.NaN(), UpdatedAtUnix: testNow},
		}

		var res entity.ValuationResult
		require.NotPanics(t, func() {
			res = agg.Aggregate(MergeHoldings(b, testAllow), quotes, testAllow, entity.ValuationOptions{}, testNow)
		})

		assert.Equal(t, 2.0, res.TotalValueUSD, "price %v", price)
		require.Len(t, res.Tokens, 2)
		assert.Equal(t, testStable, res.Tokens[0].Mint)
		assert.Equal(t, testNative, res.Tokens[1].Mint)
		assert.Zero(t, res.Tokens[1].PriceUSD)
		assert.Zero(t, res.Tokens[1].LiquidityUSD)
		assert.Equal(t, entity.GateReasonAllowlisted, res.Tokens[1].Reason)
	}
}
