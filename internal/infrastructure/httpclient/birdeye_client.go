package httpclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/pkg/utils"
)

// MaxBirdeyeAddresses is the number of addresses accepted by /defi/multi_price.
const MaxBirdeyeAddresses = 100

// BirdeyeConfig configures the Birdeye adapter.
type BirdeyeConfig struct {
	BaseURL             string
	APIKey              string
	Chain               string // x-chain header, e.g. "solana"
	Timeout             time.Duration
	MaxTokensPerRequest int
	RateLimitPerSecond  float64
	RateLimitBurst      int
}

type birdeyePrice struct {
	Value          float64  `json:"value"`
	UpdateUnixTime int64    `json:"updateUnixTime"`
	Liquidity      *float64 `json:"liquidity"`
}

type birdeyeMultiPriceResponse struct {
	Success bool                     `json:"success"`
	Message string                   `json:"message"`
	Data    map[string]*birdeyePrice `json:"data"`
}

type birdeyePriceResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *birdeyePrice `json:"data"`
}

// BirdeyeClient is a Birdeye backed price oracle. Unlike DEX Screener it reports the
// real update time of each price.
type BirdeyeClient struct {
	client              *fasthttp.Client
	limiter             *rate.Limiter
	baseURL             string
	headers             map[string]string
	timeout             time.Duration
	logger              *zap.Logger
	maxTokensPerRequest int
}

// NewBirdeyeClient creates a new Birdeye client.
func NewBirdeyeClient(cfg BirdeyeConfig, logger *zap.Logger) *BirdeyeClient {
	if cfg.MaxTokensPerRequest <= 0 || cfg.MaxTokensPerRequest > MaxBirdeyeAddresses {
		cfg.MaxTokensPerRequest = MaxBirdeyeAddresses
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://public-api.birdeye.so"
	}
	if cfg.Chain == "" {
		cfg.Chain = "solana"
	}
	return &BirdeyeClient{
		client:  &fasthttp.Client{Name: "wallet-valuator"},
		limiter: newLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: map[string]string{
			"X-API-KEY": cfg.APIKey,
			"x-chain":   cfg.Chain,
		},
		timeout:             cfg.Timeout,
		logger:              logger.Named("BirdeyeClient"),
		maxTokensPerRequest: cfg.MaxTokensPerRequest,
	}
}

// Name implements port.PriceOracle.
func (c *BirdeyeClient) Name() string { return "birdeye" }

// BatchQuote implements port.PriceOracle.
func (c *BirdeyeClient) BatchQuote(ctx context.Context, mints []string) (map[string]entity.PriceQuote, error) {
	batches := utils.BatchStrings(utils.DedupeStrings(mints), c.maxTokensPerRequest)
	out := make(map[string]entity.PriceQuote, len(mints))

	var (
		mu       sync.Mutex
		failures int
		lastErr  error
	)
	_ = utils.ForEachLimited(ctx, 2, batches, func(ctx context.Context, batch []string) error {
		quotes, err := c.multiPrice(ctx, batch)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures++
			lastErr = err
			return nil
		}
		for m, q := range quotes {
			out[m] = q
		}
		return nil
	})

	if len(batches) > 0 && failures == len(batches) {
		return nil, lastErr
	}
	return out, nil
}

func (c *BirdeyeClient) multiPrice(ctx context.Context, batch []string) (map[string]entity.PriceQuote, error) {
	q := url.Values{}
	q.Set("list_address", strings.Join(batch, ","))
	q.Set("include_liquidity", "true")
	requestURL := c.baseURL + "/defi/multi_price?" + q.Encode()

	body, err := doGet(ctx, c.client, c.limiter, requestURL, c.headers, c.timeout, c.logger)
	if err != nil {
		return nil, err
	}

	var resp birdeyeMultiPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal Birdeye multi_price response: %v", entity.ErrQuoteUnavailable, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: birdeye multi_price: %s", entity.ErrQuoteUnavailable, resp.Message)
	}

	out := make(map[string]entity.PriceQuote, len(resp.Data))
	for mint, p := range resp.Data {
		if p == nil || !isUsablePrice(p.Value) {
			continue
		}
		out[mint] = p.toQuote(mint)
	}
	c.logger.Debug("Birdeye multi_price", zap.Int("requested", len(batch)), zap.Int("priced", len(out)))
	return out, nil
}

// SingleQuote implements port.PriceOracle.
func (c *BirdeyeClient) SingleQuote(ctx context.Context, mint string) (entity.PriceQuote, error) {
	q := url.Values{}
	q.Set("address", mint)
	q.Set("include_liquidity", "true")
	requestURL := c.baseURL + "/defi/price?" + q.Encode()

	body, err := doGet(ctx, c.client, c.limiter, requestURL, c.headers, c.timeout, c.logger)
	if err != nil {
		return entity.PriceQuote{}, err
	}

	var resp birdeyePriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return entity.PriceQuote{}, fmt.Errorf("%w: failed to unmarshal Birdeye price response: %v", entity.ErrQuoteUnavailable, err)
	}
	if !resp.Success || resp.Data == nil || !isUsablePrice(resp.Data.Value) {
		return entity.PriceQuote{}, fmt.Errorf("%w: birdeye has no price for %s", entity.ErrQuoteUnavailable, mint)
	}
	return resp.Data.toQuote(mint), nil
}

func (p *birdeyePrice) toQuote(mint string) entity.PriceQuote {
	q := entity.PriceQuote{Mint: mint, PriceUSD: p.Value, UpdatedAtUnix: p.UpdateUnixTime}
	if p.Liquidity != nil {
		q.LiquidityUSD = *p.Liquidity
	}
	return q
}
