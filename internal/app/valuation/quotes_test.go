package valuation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/pkg/logger"
)

func newFetcher(t *testing.T, o *fakeOracle, cfg QuoteFetcherConfig) *QuoteFetcher {
	t.Helper()
	return NewQuoteFetcher(o, cfg, logger.NewZapAdapter(zaptest.NewLogger(t)), nil)
}

func TestGetQuotes_DedupesIntoOneBatch(t *testing.T) {
	o := &fakeOracle{batch: map[string]entity.PriceQuote{
		"a": {PriceUSD: 1, UpdatedAtUnix: testNow},
		"b": {PriceUSD: 2, UpdatedAtUnix: testNow},
	}}
	f := newFetcher(t, o, QuoteFetcherConfig{})

	got := f.GetQuotes(context.Background(), []string{"a", "b", "a", "", "b"})

	assert.Equal(t, int32(1), o.batchCalls.Load())
	assert.Equal(t, []string{"a", "b"}, o.lastBatch())
	assert.Equal(t, int32(0), o.singleCalls.Load())
	assert.Equal(t, 1.0, got["a"].PriceUSD)
	assert.Equal(t, "b", got["b"].Mint)
}

func TestGetQuotes_EmptyInputMakesNoCalls(t *testing.T) {
	o := &fakeOracle{}
	f := newFetcher(t, o, QuoteFetcherConfig{})
	assert.Empty(t, f.GetQuotes(context.Background(), nil))
	assert.Equal(t, int32(0), o.batchCalls.Load())
}

func TestGetQuotes_FallbackFillsMissing(t *testing.T) {
	o := &fakeOracle{
		batch:  map[string]entity.PriceQuote{"a": {PriceUSD: 1, UpdatedAtUnix: testNow}},
		single: map[string]entity.PriceQuote{"b": {PriceUSD: 5, LiquidityUSD: 9000, UpdatedAtUnix: testNow}},
	}
	f := newFetcher(t, o, QuoteFetcherConfig{MaxFallbackMints: 4})

	got := f.GetQuotes(context.Background(), []string{"a", "b", "c"})

	assert.Equal(t, int32(2), o.singleCalls.Load())
	assert.Equal(t, 5.0, got["b"].PriceUSD)
	assert.Equal(t, "b", got["b"].Mint)
	assert.True(t, got["c"].IsZero())
	assert.Equal(t, "c", got["c"].Mint)
}

func TestGetQuotes_BatchFailureNeverFails(t *testing.T) {
	o := &fakeOracle{
		batchErr:  errors.New("503"),
		singleErr: errors.New("503"),
	}
	f := newFetcher(t, o, QuoteFetcherConfig{MaxFallbackMints: 2})

	got := f.GetQuotes(context.Background(), []string{"a", "b", "c"})

	require.Len(t, got, 3)
	for _, q := range got {
		assert.True(t, q.IsZero())
	}
	assert.Equal(t, int32(2), o.singleCalls.Load(), "fallback is capped")
}

func TestGetQuotes_FallbackConcurrencyIsBounded(t *testing.T) {
	o := &fakeOracle{singleDelay: 20 * time.Millisecond, single: map[string]entity.PriceQuote{}}
	mints := make([]string, 12)
	for i := range mints {
		mints[i] = fmt.Sprintf("m%02d", i)
		o.single[mints[i]] = entity.PriceQuote{PriceUSD: 1, UpdatedAtUnix: testNow}
	}
	f := newFetcher(t, o, QuoteFetcherConfig{MaxFallbackMints: 12, FallbackConcurrency: 3})

	got := f.GetQuotes(context.Background(), mints)

	assert.Equal(t, int32(12), o.singleCalls.Load())
	assert.LessOrEqual(t, o.peak.Load(), int32(3))
	for _, m := range mints {
		assert.Equal(t, 1.0, got[m].PriceUSD)
	}
}

func TestGetQuotes_SlowFallbackTimesOutToZero(t *testing.T) {
	o := &fakeOracle{
		singleDelay: time.Second,
		single:      map[string]entity.PriceQuote{"slow": {PriceUSD: 1, UpdatedAtUnix: testNow}},
	}
	f := newFetcher(t, o, QuoteFetcherConfig{MaxFallbackMints: 1, FallbackTimeout: 20 * time.Millisecond})

	start := time.Now()
	got := f.GetQuotes(context.Background(), []string{"slow"})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, got["slow"].IsZero())
}

func TestNativePrice_CachedAndCoalesced(t *testing.T) {
	o := &fakeOracle{single: map[string]entity.PriceQuote{testNative: {PriceUSD: 150, UpdatedAtUnix: testNow}}}
	f := newFetcher(t, o, QuoteFetcherConfig{NativeMint: testNative, NativePriceTTL: time.Minute})

	q1 := f.NativePrice(context.Background())
	q2 := f.NativePrice(context.Background())

	assert.Equal(t, 150.0, q1.PriceUSD)
	assert.Equal(t, q1, q2)
	assert.Equal(t, int32(1), o.singleCalls.Load())
}

func TestNativePrice_FailureIsNotCached(t *testing.T) {
	o := &fakeOracle{singleErr: context.DeadlineExceeded}
	f := newFetcher(t, o, QuoteFetcherConfig{NativeMint: testNative})

	q := f.NativePrice(context.Background())
	assert.Equal(t, 0.0, q.PriceUSD)
	assert.Equal(t, testNative, q.Mint)

	o.singleErr = nil
	o.single = map[string]entity.PriceQuote{testNative: {PriceUSD: 20, UpdatedAtUnix: testNow}}
	assert.Equal(t, 20.0, f.NativePrice(context.Background()).PriceUSD)
	assert.Equal(t, int32(2), o.singleCalls.Load())
}

func TestClassifyQuoteError(t *testing.T) {
	assert.Nil(t, classifyQuoteError(nil))
	assert.ErrorIs(t, classifyQuoteError(context.DeadlineExceeded), entity.ErrUpstreamTimeout)
	assert.ErrorIs(t, classifyQuoteError(fmt.Errorf("wrap: %w", context.DeadlineExceeded)), entity.ErrUpstreamTimeout)
	assert.ErrorIs(t, classifyQuoteError(errors.New("bad json")), entity.ErrQuoteUnavailable)
	assert.Equal(t, "timeout", quoteErrorStatus(classifyQuoteError(context.DeadlineExceeded)))
	assert.Equal(t, "unavailable", quoteErrorStatus(classifyQuoteError(errors.New("x"))))
}
