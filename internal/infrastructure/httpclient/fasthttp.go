package httpclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusError is returned for non-200 upstream responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// newLimiter returns nil when perSecond is not positive, which disables pacing.
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// doGet performs a GET honoring ctx's deadline (or the fallback timeout) and returns a copy of the body.
// Timeouts are reported as entity.ErrUpstreamTimeout.
func doGet(ctx context.Context, client *fasthttp.Client, limiter *rate.Limiter, requestURL string, headers map[string]string, timeout time.Duration, logger *zap.Logger) ([]byte, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", entity.ErrUpstreamTimeout, err)
		}
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = client.DoDeadline(req, resp, deadline)
	} else {
		err = client.DoTimeout(req, resp, timeout)
	}
	if err != nil {
		logger.Debug("Upstream request failed", zap.String("url", requestURL), zap.Error(err))
		if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
			return nil, fmt.Errorf("%w: %s: %v", entity.ErrUpstreamTimeout, requestURL, err)
		}
		return nil, fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
	}

	body := append([]byte(nil), resp.Body()...)
	if resp.StatusCode() != fasthttp.StatusOK {
		logger.Warn("Upstream returned non-200",
			zap.String("url", requestURL),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("responseBody", truncate(body, 512)))
		return nil, &StatusError{URL: requestURL, StatusCode: resp.StatusCode(), Body: string(truncate(body, 512))}
	}
	return body, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

func safeLiquidity(l *DEXLiquidity) float64 {
	return utils.SafeDerefFloat64(l, func(l DEXLiquidity) float64 { return l.Usd })
}
