package valuation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"wallet_valuator/internal/app/port"
	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/pkg/metrics"
	"wallet_valuator/internal/pkg/utils"
)

// Quote fetcher defaults.
const (
	DefaultBatchTimeout        = 4 * time.Second
	DefaultFallbackTimeout     = 1500 * time.Millisecond
	DefaultFallbackConcurrency = 4
	DefaultMaxFallbackMints    = 8
	DefaultNativePriceTTL      = 30 * time.Second
)

const nativeCacheKey = "native"

// QuoteFetcherConfig tunes batching, fallback and the native price cache.
type QuoteFetcherConfig struct {
	BatchTimeout        time.Duration
	FallbackTimeout     time.Duration
	FallbackConcurrency int
	MaxFallbackMints    int // 0 disables the single-mint fallback
	NativeMint          string
	NativePriceTTL      time.Duration
}

func (c *QuoteFetcherConfig) withDefaults() {
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = DefaultFallbackTimeout
	}
	if c.FallbackConcurrency <= 0 {
		c.FallbackConcurrency = DefaultFallbackConcurrency
	}
	if c.MaxFallbackMints < 0 {
		c.MaxFallbackMints = 0
	}
	if c.NativePriceTTL <= 0 {
		c.NativePriceTTL = DefaultNativePriceTTL
	}
}

// QuoteFetcher wraps a PriceOracle so that lookups never fail: every requested
// mint gets a quote, the zero quote when nothing usable came back.
type QuoteFetcher struct {
	oracle  port.PriceOracle
	cfg     QuoteFetcherConfig
	logger  port.Logger
	metrics *metrics.Metrics

	nativeCache *gocache.Cache
	nativeGroup singleflight.Group
}

// NewQuoteFetcher creates a QuoteFetcher. m may be nil.
func NewQuoteFetcher(oracle port.PriceOracle, cfg QuoteFetcherConfig, logger port.Logger, m *metrics.Metrics) *QuoteFetcher {
	cfg.withDefaults()
	return &QuoteFetcher{
		oracle:      oracle,
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		nativeCache: gocache.New(cfg.NativePriceTTL, 2*cfg.NativePriceTTL),
	}
}

// GetQuotes returns a quote for every distinct mint. It issues one batch call and then
// at most MaxFallbackMints single-mint calls for mints still lacking a price.
func (f *QuoteFetcher) GetQuotes(ctx context.Context, mints []string) map[string]entity.PriceQuote {
	unique := utils.DedupeStrings(mints)
	quotes := make(map[string]entity.PriceQuote, len(unique))
	if len(unique) == 0 {
		return quotes
	}
	for _, m := range unique {
		quotes[m] = entity.PriceQuote{Mint: m}
	}

	batchCtx, cancel := context.WithTimeout(ctx, f.cfg.BatchTimeout)
	batch, err := f.oracle.BatchQuote(batchCtx, unique)
	cancel()
	if err != nil {
		err = classifyQuoteError(err)
		f.metrics.OracleCall("batch", quoteErrorStatus(err))
		f.logger.Warn("Batch quote failed, falling back to single-mint lookups",
			"oracle", f.oracle.Name(), "mints", len(unique), "error", err)
	} else {
		f.metrics.OracleCall("batch", "ok")
	}
	for m, q := range batch {
		if _, wanted := quotes[m]; !wanted {
			continue
		}
		q.Mint = m
		quotes[m] = q
	}

	var missing []string
	for _, m := range unique {
		if !quotes[m].HasPrice() {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 || f.cfg.MaxFallbackMints == 0 {
		return quotes
	}
	if len(missing) > f.cfg.MaxFallbackMints {
		f.logger.Debug("Fallback capped", "missing", len(missing), "cap", f.cfg.MaxFallbackMints)
		missing = missing[:f.cfg.MaxFallbackMints]
	}

	var mu sync.Mutex
	_ = utils.ForEachLimited(ctx, f.cfg.FallbackConcurrency, missing, func(ctx context.Context, mint string) error {
		q, err := f.singleQuote(ctx, mint)
		if err != nil {
			f.logger.Debug("Single quote failed", "mint", mint, "error", err)
			return nil
		}
		mu.Lock()
		quotes[mint] = q
		mu.Unlock()
		return nil
	})
	return quotes
}

func (f *QuoteFetcher) singleQuote(ctx context.Context, mint string) (entity.PriceQuote, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.cfg.FallbackTimeout)
	defer cancel()

	q, err := f.oracle.SingleQuote(callCtx, mint)
	if err != nil {
		err = classifyQuoteError(err)
		f.metrics.OracleCall("single", quoteErrorStatus(err))
		return entity.PriceQuote{Mint: mint}, err
	}
	if !q.HasPrice() {
		f.metrics.OracleCall("single", "unavailable")
		return entity.PriceQuote{Mint: mint}, fmt.Errorf("%w: no price for %s", entity.ErrQuoteUnavailable, mint)
	}
	f.metrics.OracleCall("single", "ok")
	q.Mint = mint
	return q, nil
}

// NativePrice returns the native asset quote from a short-TTL cache, refreshing it
// with a single in-flight oracle call. A failed refresh yields the zero quote.
func (f *QuoteFetcher) NativePrice(ctx context.Context) entity.PriceQuote {
	if f.cfg.NativeMint == "" {
		return entity.PriceQuote{}
	}
	if v, ok := f.nativeCache.Get(nativeCacheKey); ok {
		return v.(entity.PriceQuote)
	}

	v, _, _ := f.nativeGroup.Do(nativeCacheKey, func() (any, error) {
		if v, ok := f.nativeCache.Get(nativeCacheKey); ok {
			return v, nil
		}
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.BatchTimeout)
		defer cancel()

		q, err := f.oracle.SingleQuote(callCtx, f.cfg.NativeMint)
		if err == nil && !q.HasPrice() {
			err = fmt.Errorf("%w: no native price", entity.ErrQuoteUnavailable)
		}
		if err != nil {
			err = classifyQuoteError(err)
			f.metrics.OracleCall("native", quoteErrorStatus(err))
			f.logger.Warn("Native price refresh failed", "mint", f.cfg.NativeMint, "error", err)
			return entity.PriceQuote{Mint: f.cfg.NativeMint}, nil
		}
		f.metrics.OracleCall("native", "ok")
		q.Mint = f.cfg.NativeMint
		f.nativeCache.SetDefault(nativeCacheKey, q)
		return q, nil
	})
	return v.(entity.PriceQuote)
}

// classifyQuoteError maps an oracle error onto ErrUpstreamTimeout or ErrQuoteUnavailable.
func classifyQuoteError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, entity.ErrUpstreamTimeout), errors.Is(err, entity.ErrQuoteUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", entity.ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("%w: %v", entity.ErrQuoteUnavailable, err)
	}
}

func quoteErrorStatus(err error) string {
	if errors.Is(err, entity.ErrUpstreamTimeout) {
		return "timeout"
	}
	return "unavailable"
}
