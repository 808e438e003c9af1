package valuation

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"wallet_valuator/internal/domain/entity"
	"wallet_valuator/internal/pkg/metrics"
	"wallet_valuator/internal/pkg/utils"
)

// DefaultStablePriceUSD is the pinned price of the primary stable asset.
const DefaultStablePriceUSD = 1.0

// AggregatorConfig holds the gate thresholds and cooldown settings used while aggregating.
type AggregatorConfig struct {
	Gate           GateConfig
	CooldownSec    int64
	StablePriceUSD float64
}

// Aggregator combines holdings and quotes into a ValuationResult.
type Aggregator struct {
	cfg      AggregatorConfig
	cooldown *CooldownTracker
	metrics  *metrics.Metrics
}

// NewAggregator creates an Aggregator. m may be nil.
func NewAggregator(cfg AggregatorConfig, cooldown *CooldownTracker, m *metrics.Metrics) *Aggregator {
	if cfg.StablePriceUSD <= 0 {
		cfg.StablePriceUSD = DefaultStablePriceUSD
	}
	if cfg.CooldownSec <= 0 {
		cfg.CooldownSec = DefaultCooldownSec
	}
	return &Aggregator{cfg: cfg, cooldown: cooldown, metrics: m}
}

// MergeHoldings folds the native balance and every token account into one balance per
// mint. Zero token balances are dropped; native and stable entries always exist.
func MergeHoldings(b *entity.WalletBalances, allow entity.Allowlist) []entity.TokenBalance {
	type acc struct {
		raw      uint64
		decimals uint8
	}
	byMint := make(map[string]*acc)
	order := make([]string, 0, len(b.Tokens)+2)
	add := func(mint string, raw uint64, decimals uint8) {
		a, ok := byMint[mint]
		if !ok {
			a = &acc{decimals: decimals}
			byMint[mint] = a
			order = append(order, mint)
		}
		if raw > math.MaxUint64-a.raw {
			a.raw = math.MaxUint64
			return
		}
		a.raw += raw
	}

	nativeMint := allow.NativeMint
	if nativeMint == "" {
		nativeMint = b.Native.Mint
	}
	nativeDecimals := b.Native.Decimals
	if nativeDecimals == 0 {
		nativeDecimals = allow.NativeDecimals
	}
	add(nativeMint, b.Native.RawAmount, nativeDecimals)
	if allow.StableMint != "" {
		add(allow.StableMint, 0, allow.StableDecimals)
	}
	for _, t := range b.Tokens {
		if t.RawAmount == 0 || t.Mint == "" {
			continue
		}
		add(t.Mint, t.RawAmount, t.Decimals)
	}

	out := make([]entity.TokenBalance, 0, len(order))
	for _, m := range order {
		a := byMint[m]
		out = append(out, entity.NewTokenBalance(m, a.raw, a.decimals))
	}
	return out
}

// PartitionMints returns the non-allow-listed mints that must be sent to the oracle and
// how many were skipped because of an active cooldown.
func (a *Aggregator) PartitionMints(holdings []entity.TokenBalance, allow entity.Allowlist, now int64) (query []string, cooled int) {
	for _, h := range holdings {
		if allow.Contains(h.Mint) || h.RawAmount == 0 {
			continue
		}
		if a.cooldown != nil && !a.cooldown.ShouldQuery(h.Mint, now) {
			cooled++
			continue
		}
		query = append(query, h.Mint)
	}
	a.metrics.CooldownSkips(cooled)
	return query, cooled
}

type line struct {
	token entity.ValuedToken
	value float64 // full precision
}

// Aggregate values the holdings. quotes must hold the native asset quote and an entry for
// every mint that was queried; a mint absent from quotes under an active cooldown is
// rejected with the recorded reason. Rejections start a cooldown.
func (a *Aggregator) Aggregate(holdings []entity.TokenBalance, quotes map[string]entity.PriceQuote, allow entity.Allowlist, opts entity.ValuationOptions, now int64) entity.ValuationResult {
	var (
		lines    []line
		rejected []entity.GateRejection
		total    = decimal.Zero
	)

	for _, h := range holdings {
		switch h.Mint {
		case allow.NativeMint, allow.StableMint:
			q := quotes[h.Mint]
			if h.Mint == allow.StableMint {
				q = entity.PriceQuote{Mint: h.Mint, PriceUSD: a.cfg.StablePriceUSD, UpdatedAtUnix: now}
			}
			q, v := usable(q, h.UIAmount)
			d := a.cfg.Gate.Evaluate(q, h.UIAmount, true, now)
			lines = append(lines, line{token: valued(h, q, d.Reason, true), value: v})
			total = total.Add(decimal.NewFromFloat(v))
			continue
		}
		if h.RawAmount == 0 {
			continue
		}

		q, queried := quotes[h.Mint]
		if !queried && a.cooldown != nil {
			if e, cooling := a.cooldown.Rejection(h.Mint, now); cooling {
				rejected = append(rejected, entity.GateRejection{Mint: h.Mint, Reason: e.Reason, FromCooldown: true})
				if opts.ShowAll && e.Reason == entity.GateReasonDust {
					lines = append(lines, line{token: valued(h, entity.PriceQuote{Mint: h.Mint}, e.Reason, false)})
				}
				continue
			}
		}

		d := a.cfg.Gate.Evaluate(q, h.UIAmount, false, now)
		q, v := usable(q, h.UIAmount)
		if d.Included {
			lines = append(lines, line{token: valued(h, q, d.Reason, true), value: v})
			total = total.Add(decimal.NewFromFloat(v))
			continue
		}

		if a.cooldown != nil {
			a.cooldown.RecordRejection(h.Mint, d.Reason, now, a.cfg.CooldownSec)
		}
		a.metrics.GateRejection(string(d.Reason))
		rejected = append(rejected, entity.GateRejection{Mint: h.Mint, Reason: d.Reason, ValueUSD: utils.RoundUSD(v)})
		if opts.ShowAll && d.Reason == entity.GateReasonDust {
			lines = append(lines, line{token: valued(h, q, d.Reason, false), value: v})
		}
	}

	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].value != lines[j].value {
			return lines[i].value > lines[j].value
		}
		return lines[i].token.Mint < lines[j].token.Mint
	})

	tokens := make([]entity.ValuedToken, 0, len(lines))
	for _, l := range lines {
		if !opts.ShowAll && opts.MinValueUSD > 0 && l.token.Counted &&
			!allow.Contains(l.token.Mint) && l.value < opts.MinValueUSD {
			continue
		}
		t := l.token
		t.ValueUSD = utils.RoundUSD(l.value)
		tokens = append(tokens, t)
	}

	res := entity.ValuationResult{
		TotalValueUSD:  total.Round(2).InexactFloat64(),
		Tokens:         tokens,
		ComputedAtUnix: now,
	}
	if opts.IncludeQuotes {
		sort.Slice(rejected, func(i, j int) bool { return rejected[i].Mint < rejected[j].Mint })
		res.Rejected = rejected
	}
	return res
}

// usable returns q and its value for amount, replacing a quote whose price, liquidity
// or value is not a finite number with the unknown quote.
func usable(q entity.PriceQuote, amount float64) (entity.PriceQuote, float64) {
	v := amount * q.PriceUSD
	if !isFinite(q.PriceUSD) || !isFinite(v) {
		return entity.PriceQuote{Mint: q.Mint}, 0
	}
	if !isFinite(q.LiquidityUSD) {
		q.LiquidityUSD = 0
	}
	return q, v
}

func valued(h entity.TokenBalance, q entity.PriceQuote, reason entity.GateReason, counted bool) entity.ValuedToken {
	return entity.ValuedToken{
		Mint:          h.Mint,
		Amount:        h.UIAmount,
		Decimals:      h.Decimals,
		PriceUSD:      q.PriceUSD,
		LiquidityUSD:  q.LiquidityUSD,
		UpdatedAtUnix: q.UpdatedAtUnix,
		Reason:        reason,
		Counted:       counted,
	}
}
