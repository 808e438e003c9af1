package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet_valuator/internal/domain/entity"
)

func TestCooldown_SuppressesWithinWindow(t *testing.T) {
	tr, err := NewCooldownTracker(16)
	require.NoError(t, err)

	assert.True(t, tr.ShouldQuery("m", testNow))

	tr.RecordRejection("m", entity.GateReasonDust, testNow, 600)
	assert.False(t, tr.ShouldQuery("m", testNow+1))
	assert.False(t, tr.ShouldQuery("m", testNow+599))

	e, ok := tr.Rejection("m", testNow+10)
	require.True(t, ok)
	assert.Equal(t, entity.GateReasonDust, e.Reason)
	assert.Equal(t, testNow+600, e.Until)
}

func TestCooldown_LazyExpiryAndOverwrite(t *testing.T) {
	tr, err := NewCooldownTracker(16)
	require.NoError(t, err)

	tr.RecordRejection("m", entity.GateReasonStale, testNow, 60)
	assert.True(t, tr.ShouldQuery("m", testNow+60))
	assert.Equal(t, 1, tr.Len(), "expired entries stay until overwritten or evicted")

	tr.RecordRejection("m", entity.GateReasonIlliquid, testNow+60, 60)
	e, ok := tr.Rejection("m", testNow+61)
	require.True(t, ok)
	assert.Equal(t, entity.GateReasonIlliquid, e.Reason)
	assert.Equal(t, 1, tr.Len())
}

func TestCooldown_IgnoresNonRejections(t *testing.T) {
	tr, err := NewCooldownTracker(16)
	require.NoError(t, err)

	tr.RecordRejection("a", entity.GateReasonOK, testNow, 60)
	tr.RecordRejection("b", entity.GateReasonAllowlisted, testNow, 60)
	tr.RecordRejection("c", entity.GateReasonDust, testNow, 0)
	assert.Equal(t, 0, tr.Len())
}

func TestCooldown_BoundedByLRU(t *testing.T) {
	tr, err := NewCooldownTracker(2)
	require.NoError(t, err)

	tr.RecordRejection("a", entity.GateReasonDust, testNow, 60)
	tr.RecordRejection("b", entity.GateReasonDust, testNow, 60)
	tr.RecordRejection("c", entity.GateReasonDust, testNow, 60)

	assert.Equal(t, 2, tr.Len())
	assert.True(t, tr.ShouldQuery("a", testNow+1))
	assert.False(t, tr.ShouldQuery("c", testNow+1))
}
