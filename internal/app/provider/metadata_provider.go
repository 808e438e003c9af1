package provider

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"wallet_valuator/internal/app/port"
	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/pkg/cache"
)

// Metadata cache defaults.
const (
	DefaultMetadataTTL     = 10 * time.Minute
	DefaultMetadataMaxKeys = 10_000
	defaultLookupTimeout   = 2 * time.Second
)

// MetadataConfig tunes the metadata chain.
type MetadataConfig struct {
	TTL           time.Duration
	MaxKeys       int
	LookupTimeout time.Duration // per remote source
	Now           func() time.Time
}

// metadataChain resolves metadata from the token list first, then from each remote source
// in order. Mints nobody knows get the truncated-mint fallback. Remote answers, fallbacks
// included, are cached per mint.
type metadataChain struct {
	tokens  port.TokenListProvider
	sources []port.MetadataSource
	cache   *cache.Coalescer[entity.TokenMetadata]
	lookups singleflight.Group
	timeout time.Duration
	logger  port.Logger
}

// NewMetadataProvider creates a MetadataProvider. tokens may be nil.
func NewMetadataProvider(tokens port.TokenListProvider, sources []port.MetadataSource, cfg MetadataConfig, logger port.Logger) (port.MetadataProvider, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultMetadataTTL
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMetadataMaxKeys
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	c, err := cache.NewCoalescer[entity.TokenMetadata](cfg.MaxKeys, cfg.TTL, cache.WithClock(cfg.Now))
	if err != nil {
		return nil, err
	}
	return &metadataChain{
		tokens:  tokens,
		sources: sources,
		cache:   c,
		timeout: cfg.LookupTimeout,
		logger:  logger,
	}, nil
}

// TokenMetadata returns an entry for every distinct mint. It only fails when ctx ends.
func (m *metadataChain) TokenMetadata(ctx context.Context, mints []string) (map[string]entity.TokenMetadata, error) {
	out := make(map[string]entity.TokenMetadata, len(mints))

	var list map[string]entity.TokenInfo
	if m.tokens != nil {
		var err error
		if list, err = m.tokens.GetTokens(); err != nil {
			m.logger.Warn("Token list unavailable for metadata", "error", err)
		}
	}

	var missing []string
	for _, mint := range mints {
		if _, done := out[mint]; done {
			continue
		}
		if t, ok := list[mint]; ok && t.Symbol != "" {
			out[mint] = entity.TokenMetadata{
				Mint:    mint,
				Symbol:  t.Symbol,
				Name:    t.Name,
				LogoURI: t.LogoURI,
				Source:  entity.MetadataSourceTokenList,
			}
			continue
		}
		if md, ok := m.cache.Get(mint); ok {
			out[mint] = md
			continue
		}
		out[mint] = entity.TokenMetadata{} // placeholder, filled below
		missing = append(missing, mint)
	}
	if len(missing) == 0 {
		return out, nil
	}

	sort.Strings(missing)
	key := strings.Join(missing, ",")
	ch := m.lookups.DoChan(key, func() (any, error) {
		return m.resolveRemote(context.WithoutCancel(ctx), missing), nil
	})

	select {
	case res := <-ch:
		found := res.Val.(map[string]entity.TokenMetadata)
		for _, mint := range missing {
			out[mint] = found[mint]
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *metadataChain) resolveRemote(ctx context.Context, mints []string) map[string]entity.TokenMetadata {
	found := make(map[string]entity.TokenMetadata, len(mints))
	pending := mints
	failed := false

	for _, src := range m.sources {
		if len(pending) == 0 {
			break
		}
		callCtx, cancel := context.WithTimeout(ctx, m.timeout)
		got, err := src.LookupMetadata(callCtx, pending)
		cancel()
		if err != nil {
			failed = true
			m.logger.Warn("Metadata source failed", "mints", len(pending), "error", err)
			continue
		}

		next := pending[:0:0]
		for _, mint := range pending {
			md, ok := got[mint]
			if !ok || md.Symbol == "" {
				next = append(next, mint)
				continue
			}
			md.Mint = mint
			found[mint] = md
			m.cache.Set(mint, md)
		}
		pending = next
	}

	for _, mint := range pending {
		md := entity.FallbackMetadata(mint)
		found[mint] = md
		// A failed source may know the mint next time.
		if !failed {
			m.cache.Set(mint, md)
		}
	}
	return found
}
