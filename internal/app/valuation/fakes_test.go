package valuation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"wallet_valuator/internal/domain/entity"
)

const (
	testNative = "So11111111111111111111111111111111111111112"
	testStable = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testNow    = int64(1_700_000_000)
)

var testAllow = entity.Allowlist{
	NativeMint:     testNative,
	NativeDecimals: 9,
	StableMint:     testStable,
	StableDecimals: 6,
}

// fakeOracle is a scriptable port.PriceOracle.
type fakeOracle struct {
	mu          sync.Mutex
	batch       map[string]entity.PriceQuote
	single      map[string]entity.PriceQuote
	batchErr    error
	singleErr   error
	singleDelay time.Duration

	batchCalls  atomic.Int32
	singleCalls atomic.Int32
	batchMints  [][]string
	inFlight    atomic.Int32
	peak        atomic.Int32
}

func (f *fakeOracle) Name() string { return "fake" }

func (f *fakeOracle) BatchQuote(_ context.Context, mints []string) (map[string]entity.PriceQuote, error) {
	f.batchCalls.Add(1)
	f.mu.Lock()
	f.batchMints = append(f.batchMints, append([]string(nil), mints...))
	f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make(map[string]entity.PriceQuote)
	for _, m := range mints {
		if q, ok := f.batch[m]; ok {
			out[m] = q
		}
	}
	return out, nil
}

func (f *fakeOracle) SingleQuote(ctx context.Context, mint string) (entity.PriceQuote, error) {
	f.singleCalls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.peak.Load()
		if cur <= old || f.peak.CompareAndSwap(old, cur) {
			break
		}
	}

	if f.singleDelay > 0 {
		select {
		case <-time.After(f.singleDelay):
		case <-ctx.Done():
			return entity.PriceQuote{}, ctx.Err()
		}
	}
	if f.singleErr != nil {
		return entity.PriceQuote{}, f.singleErr
	}
	return f.single[mint], nil
}

func (f *fakeOracle) lastBatch() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batchMints) == 0 {
		return nil
	}
	return f.batchMints[len(f.batchMints)-1]
}
