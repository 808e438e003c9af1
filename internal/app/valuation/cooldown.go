package valuation

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"wallet_valuator/internal/domain/entity"
)

// Cooldown defaults.
const (
	DefaultCooldownSec        = 1440 * 60
	DefaultCooldownMaxEntries = 10000
)

// CooldownEntry suppresses oracle lookups for a mint until Until (unix seconds).
type CooldownEntry struct {
	Until  int64
	Reason entity.GateReason
}

// CooldownTracker remembers recently rejected mints. Expiry is lazy: entries are
// compared with the caller's clock on read and overwritten on the next rejection.
type CooldownTracker struct {
	mu      sync.Mutex
	entries *lru.Cache[string, CooldownEntry]
}

// NewCooldownTracker creates a tracker bounded to maxEntries mints.
func NewCooldownTracker(maxEntries int) (*CooldownTracker, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCooldownMaxEntries
	}
	entries, err := lru.New[string, CooldownEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("cooldown tracker: %w", err)
	}
	return &CooldownTracker{entries: entries}, nil
}

// ShouldQuery reports whether mint may be sent to the price oracle at now.
func (t *CooldownTracker) ShouldQuery(mint string, now int64) bool {
	_, cooling := t.Rejection(mint, now)
	return !cooling
}

// Rejection returns the active cooldown entry of mint, if any.
func (t *CooldownTracker) Rejection(mint string, now int64) (CooldownEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries.Peek(mint)
	if !ok || now >= e.Until {
		return CooldownEntry{}, false
	}
	return e, true
}

// RecordRejection starts a cooldown of cooldownSec for mint. Only dust, illiquid and
// stale rejections are recorded.
func (t *CooldownTracker) RecordRejection(mint string, reason entity.GateReason, now, cooldownSec int64) {
	if !reason.IsRejection() || cooldownSec <= 0 || mint == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries.Add(mint, CooldownEntry{Until: now + cooldownSec, Reason: reason})
}

// Len returns the number of stored entries, expired ones included.
func (t *CooldownTracker) Len() int {
	return t.entries.Len()
}
