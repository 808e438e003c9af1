package httpclient

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/pkg/utils"
)

// MaxDEXScreenerAddresses is the number of token addresses DEX Screener accepts per request.
const MaxDEXScreenerAddresses = 30

var stablecoinSymbols = map[string]struct{}{
	"USDC": {},
	"USDT": {},
	"DAI":  {},
}

// DEXScreenerConfig configures the DEX Screener adapter.
type DEXScreenerConfig struct {
	BaseURL             string
	ChainID             string // e.g. "solana"
	Timeout             time.Duration
	MaxTokensPerRequest int
	RateLimitPerSecond  float64
	RateLimitBurst      int
	Now                 func() time.Time
}

// DEXScreenerClient is a DEX Screener backed price oracle and metadata source.
// It implements port.PriceOracle and port.MetadataSource.
type DEXScreenerClient struct {
	client              *fasthttp.Client
	limiter             *rate.Limiter
	baseURL             string
	chainID             string
	timeout             time.Duration
	logger              *zap.Logger
	maxTokensPerRequest int
	now                 func() time.Time
}

// NewDEXScreenerClient creates a new DEX Screener client.
func NewDEXScreenerClient(cfg DEXScreenerConfig, logger *zap.Logger) *DEXScreenerClient {
	if cfg.MaxTokensPerRequest <= 0 || cfg.MaxTokensPerRequest > MaxDEXScreenerAddresses {
		cfg.MaxTokensPerRequest = MaxDEXScreenerAddresses
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.dexscreener.com"
	}
	if cfg.ChainID == "" {
		cfg.ChainID = "solana"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DEXScreenerClient{
		client:              &fasthttp.Client{Name: "wallet-valuator"},
		limiter:             newLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		baseURL:             strings.TrimRight(cfg.BaseURL, "/"),
		chainID:             cfg.ChainID,
		timeout:             cfg.Timeout,
		logger:              logger.Named("DEXScreenerClient"),
		maxTokensPerRequest: cfg.MaxTokensPerRequest,
		now:                 cfg.Now,
	}
}

// Name implements port.PriceOracle.
func (c *DEXScreenerClient) Name() string { return "dexscreener" }

// GetTokenPairsByAddresses returns every pair DEX Screener knows for the given token addresses.
func (c *DEXScreenerClient) GetTokenPairsByAddresses(ctx context.Context, tokenAddresses []string) ([]PairData, error) {
	if len(tokenAddresses) == 0 {
		return nil, fmt.Errorf("tokenAddresses cannot be empty")
	}
	if len(tokenAddresses) > c.maxTokensPerRequest {
		c.logger.Warn("Number of token addresses exceeds maxTokensPerRequest",
			zap.Int("requestedCount", len(tokenAddresses)),
			zap.Int("maxAllowed", c.maxTokensPerRequest))
		return nil, fmt.Errorf("number of token addresses (%d) exceeds max tokens per request (%d)", len(tokenAddresses), c.maxTokensPerRequest)
	}

	requestURL := fmt.Sprintf("%s/tokens/v1/%s/%s", c.baseURL, c.chainID, strings.Join(tokenAddresses, ","))
	c.logger.Debug("Requesting token pairs from DEX Screener", zap.String("url", requestURL))

	rawBody, err := doGet(ctx, c.client, c.limiter, requestURL, nil, c.timeout, c.logger)
	if err != nil {
		return nil, err
	}

	var wrapper DEXTokenPair
	if err := json.Unmarshal(rawBody, &wrapper); err == nil && wrapper.Pairs != nil {
		c.logger.Debug("Unmarshalled DEX Screener response (wrapped object)", zap.Int("pairCount", len(wrapper.Pairs)))
		return wrapper.Pairs, nil
	}

	var directPairs []PairData
	if err := json.Unmarshal(rawBody, &directPairs); err != nil {
		c.logger.Error("Failed to unmarshal DEX Screener response",
			zap.String("url", requestURL),
			zap.ByteString("responseBody", truncate(rawBody, 512)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: failed to unmarshal DEX Screener response from %s: %v", entity.ErrQuoteUnavailable, requestURL, err)
	}
	if len(directPairs) == 0 {
		c.logger.Debug("DEX Screener returned no pairs", zap.Int("requestedCount", len(tokenAddresses)))
	}
	return directPairs, nil
}

// fetchPairs runs GetTokenPairsByAddresses over batches of at most maxTokensPerRequest
// addresses and groups the pairs by base token address. A batch failure only fails
// when every batch fails.
func (c *DEXScreenerClient) fetchPairs(ctx context.Context, mints []string) (map[string][]PairData, error) {
	batches := utils.BatchStrings(utils.DedupeStrings(mints), c.maxTokensPerRequest)
	byBase := make(map[string][]PairData, len(mints))

	var (
		mu       sync.Mutex
		failures int
		lastErr  error
	)
	_ = utils.ForEachLimited(ctx, 2, batches, func(ctx context.Context, batch []string) error {
		pairs, err := c.GetTokenPairsByAddresses(ctx, batch)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures++
			lastErr = err
			return nil
		}
		for _, p := range pairs {
			byBase[p.BaseToken.Address] = append(byBase[p.BaseToken.Address], p)
		}
		return nil
	})

	if len(batches) > 0 && failures == len(batches) {
		return nil, lastErr
	}
	if failures > 0 {
		c.logger.Warn("Some DEX Screener batches failed", zap.Int("failed", failures), zap.Int("batches", len(batches)), zap.Error(lastErr))
	}
	return byBase, nil
}

// BatchQuote implements port.PriceOracle.
func (c *DEXScreenerClient) BatchQuote(ctx context.Context, mints []string) (map[string]entity.PriceQuote, error) {
	byBase, err := c.fetchPairs(ctx, mints)
	if err != nil {
		return nil, err
	}

	fetchedAt := c.now().Unix()
	out := make(map[string]entity.PriceQuote, len(mints))
	for _, mint := range mints {
		best := selectBestPair(byBase[mint], mint)
		if best == nil {
			continue
		}
		price, err := strconv.ParseFloat(best.PriceUsd, 64)
		if err != nil || !isUsablePrice(price) {
			c.logger.Debug("Unusable priceUsd", zap.String("mint", mint), zap.String("priceUsd", best.PriceUsd))
			continue
		}
		out[mint] = entity.PriceQuote{
			Mint:          mint,
			PriceUSD:      price,
			LiquidityUSD:  liquidityUSD(best),
			UpdatedAtUnix: fetchedAt,
		}
	}
	return out, nil
}

// SingleQuote implements port.PriceOracle.
func (c *DEXScreenerClient) SingleQuote(ctx context.Context, mint string) (entity.PriceQuote, error) {
	quotes, err := c.BatchQuote(ctx, []string{mint})
	if err != nil {
		return entity.PriceQuote{}, err
	}
	q, ok := quotes[mint]
	if !ok {
		return entity.PriceQuote{}, fmt.Errorf("%w: no DEX Screener pair for %s", entity.ErrQuoteUnavailable, mint)
	}
	return q, nil
}

// LookupMetadata implements port.MetadataSource using the base token of the deepest pair.
func (c *DEXScreenerClient) LookupMetadata(ctx context.Context, mints []string) (map[string]entity.TokenMetadata, error) {
	byBase, err := c.fetchPairs(ctx, mints)
	if err != nil {
		return nil, err
	}
	out := make(map[string]entity.TokenMetadata, len(mints))
	for _, mint := range mints {
		best := selectBestPair(byBase[mint], mint)
		if best == nil || best.BaseToken.Symbol == "" {
			continue
		}
		md := entity.TokenMetadata{
			Mint:   mint,
			Symbol: best.BaseToken.Symbol,
			Name:   best.BaseToken.Name,
			Source: entity.MetadataSourceDEXScreener,
		}
		if best.Info != nil {
			md.LogoURI = best.Info.ImageURL
		}
		out[mint] = md
	}
	return out, nil
}

// selectBestPair picks the pair used to price baseTokenAddress.
// Priority: pairs quoted in a stablecoin (USDC, USDT, DAI) with the highest liquidity.
// Fallback: pair with highest liquidity overall.
func selectBestPair(pairs []PairData, baseTokenAddress string) *PairData {
	var bestOverall, bestStable *PairData

	for i := range pairs {
		pair := &pairs[i]
		// Solana addresses are case-sensitive
		if pair.BaseToken.Address != baseTokenAddress {
			continue
		}
		if price, err := strconv.ParseFloat(pair.PriceUsd, 64); err != nil || !isUsablePrice(price) {
			continue
		}

		if _, isStable := stablecoinSymbols[strings.ToUpper(pair.QuoteToken.Symbol)]; isStable {
			if bestStable == nil || liquidityUSD(pair) > liquidityUSD(bestStable) {
				bestStable = pair
			}
		}
		if bestOverall == nil || liquidityUSD(pair) > liquidityUSD(bestOverall) {
			bestOverall = pair
		}
	}

	if bestStable != nil {
		return bestStable
	}
	return bestOverall
}

// isUsablePrice rejects zero, negative and non-finite prices. strconv.ParseFloat
// accepts "NaN" and "Inf", so upstream strings can produce either.
func isUsablePrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
