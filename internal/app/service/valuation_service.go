package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"wallet_valuator/internal/app/port"
	"wallet_valuator/internal/app/valuation"
	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/pkg/cache"
	"wallet_valuator/internal/pkg/metrics"
)

// Request outcomes reported to metrics.
const (
	outcomeOK           = "ok"
	outcomeInvalidOwner = "invalid_owner"
	outcomeBalanceError = "balance_error"
	outcomeCanceled     = "canceled"
	outcomeError        = "error"
)

// ValuationServiceConfig tunes the request pipeline around the valuation engine.
type ValuationServiceConfig struct {
	BalanceTimeout     time.Duration
	ResultCacheTTL     time.Duration
	ResultCacheMaxKeys int
	Now                func() time.Time // defaults to time.Now
}

// valuationServiceImpl implements port.ValuationService.
type valuationServiceImpl struct {
	balances   port.BalanceProvider
	quotes     *valuation.QuoteFetcher
	aggregator *valuation.Aggregator
	metadata   port.MetadataProvider
	results    *cache.Coalescer[entity.ValuationResult]
	allow      entity.Allowlist
	logger     port.Logger
	metrics    *metrics.Metrics

	balanceTimeout time.Duration
	now            func() time.Time
}

// NewValuationService wires the valuation pipeline. metadata and m may be nil.
func NewValuationService(
	bp port.BalanceProvider,
	qf *valuation.QuoteFetcher,
	agg *valuation.Aggregator,
	mp port.MetadataProvider,
	l port.Logger,
	m *metrics.Metrics,
	cfg ValuationServiceConfig,
) (port.ValuationService, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BalanceTimeout <= 0 {
		cfg.BalanceTimeout = 5 * time.Second
	}
	if cfg.ResultCacheTTL <= 0 {
		cfg.ResultCacheTTL = time.Second
	}
	if cfg.ResultCacheMaxKeys <= 0 {
		cfg.ResultCacheMaxKeys = 1024
	}

	results, err := cache.NewCoalescer[entity.ValuationResult](cfg.ResultCacheMaxKeys, cfg.ResultCacheTTL,
		cache.WithClock(cfg.Now), cache.WithLookupObserver(m.CacheLookup))
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}

	s := &valuationServiceImpl{
		balances:       bp,
		quotes:         qf,
		aggregator:     agg,
		metadata:       mp,
		results:        results,
		allow:          bp.Definition().Allowlist(),
		logger:         l,
		metrics:        m,
		balanceTimeout: cfg.BalanceTimeout,
		now:            cfg.Now,
	}
	l.Info("ValuationService успешно инициализирован.", "cluster", bp.Definition().Cluster,
		"resultCacheTTL", cfg.ResultCacheTTL.String())
	return s, nil
}

// Value implements port.ValuationService.
func (s *valuationServiceImpl) Value(ctx context.Context, owner string, opts entity.ValuationOptions) (entity.ValuationResult, error) {
	start := time.Now()
	owner = strings.TrimSpace(owner)

	if err := s.balances.ValidateOwner(owner); err != nil {
		s.metrics.ObserveRequest(outcomeInvalidOwner, start)
		if !errors.Is(err, entity.ErrInvalidOwnerAddress) {
			err = fmt.Errorf("%w: %v", entity.ErrInvalidOwnerAddress, err)
		}
		return entity.ValuationResult{}, err
	}
	if opts.MinValueUSD < 0 {
		opts.MinValueUSD = 0
	}

	res, err := s.results.GetOrCompute(ctx, opts.CacheKey(owner), func(ctx context.Context) (entity.ValuationResult, error) {
		return s.compute(ctx, owner, opts)
	})
	s.metrics.ObserveRequest(requestOutcome(err), start)
	if err != nil {
		return entity.ValuationResult{}, err
	}
	return res, nil
}

func (s *valuationServiceImpl) compute(ctx context.Context, owner string, opts entity.ValuationOptions) (entity.ValuationResult, error) {
	now := s.now().Unix()

	balanceCtx, cancel := context.WithTimeout(ctx, s.balanceTimeout)
	wb, err := s.balances.FetchBalances(balanceCtx, owner)
	cancel()
	if err != nil {
		s.metrics.BalanceFetch(false)
		s.logger.Warn("Balance fetch failed", "owner", owner, "error", err)
		if !errors.Is(err, entity.ErrBalanceFetch) {
			err = fmt.Errorf("%w: %v", entity.ErrBalanceFetch, err)
		}
		return entity.ValuationResult{}, err
	}
	s.metrics.BalanceFetch(true)

	holdings := valuation.MergeHoldings(wb, s.allow)
	query, cooled := s.aggregator.PartitionMints(holdings, s.allow, now)

	var (
		quotes map[string]entity.PriceQuote
		native entity.PriceQuote
	)
	var g errgroup.Group
	g.Go(func() error {
		quotes = s.quotes.GetQuotes(ctx, query)
		return nil
	})
	g.Go(func() error {
		native = s.quotes.NativePrice(ctx)
		return nil
	})
	_ = g.Wait()
	quotes[s.allow.NativeMint] = native

	res := s.aggregator.Aggregate(holdings, quotes, s.allow, opts, now)
	res.Owner = owner

	if opts.IncludeMeta {
		s.attachMetadata(ctx, res.Tokens)
	}

	s.logger.Debug("Valuation computed",
		"owner", owner,
		"holdings", len(holdings),
		"queried", len(query),
		"cooled", cooled,
		"listed", len(res.Tokens),
		"total_usd", res.TotalValueUSD)
	return res, nil
}

// attachMetadata decorates tokens in place. Missing metadata falls back to a truncated mint.
func (s *valuationServiceImpl) attachMetadata(ctx context.Context, tokens []entity.ValuedToken) {
	mints := make([]string, 0, len(tokens))
	for _, t := range tokens {
		mints = append(mints, t.Mint)
	}

	var found map[string]entity.TokenMetadata
	if s.metadata != nil && len(mints) > 0 {
		var err error
		found, err = s.metadata.TokenMetadata(ctx, mints)
		if err != nil {
			s.logger.Warn("Metadata lookup failed, using fallback names", "error", err)
		}
	}

	for i := range tokens {
		md, ok := found[tokens[i].Mint]
		if !ok {
			md = entity.FallbackMetadata(tokens[i].Mint)
		}
		tokens[i].Metadata = &md
	}
}

func requestOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, entity.ErrBalanceFetch):
		return outcomeBalanceError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeError
	}
}
