package translate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// providerStats rolling-latency tiebreaker
// ────────────────────────────────────────────────────────────

func TestProviderStats_FlagsSlowOnlyAfterMinSamples(t *testing.T) {
	stats := newProviderStats()
	for i := 0; i < providerStatsMinSamples-1; i++ {
		stats.record("fast", time.Millisecond)
		stats.record("slow", 100*time.Millisecond)
	}
	assert.False(t, stats.isSlow("slow"), "must not demote a provider before it has enough samples")

	stats.record("fast", time.Millisecond)
	stats.record("slow", 100*time.Millisecond)
	assert.True(t, stats.isSlow("slow"))
	assert.False(t, stats.isSlow("fast"))
}

func TestProviderStats_UnknownProviderIsNeverSlow(t *testing.T) {
	stats := newProviderStats()
	assert.False(t, stats.isSlow("never-seen"))
}

func TestChain_DemotesConsistentlySlowProvider(t *testing.T) {
	slow := &fakeProvider{name: "commercial", kind: ProviderCommercial, healthy: true, delay: 20 * time.Millisecond}
	fast := &fakeProvider{name: "lightweight", kind: ProviderLightweight, healthy: true}

	chain := NewChain(slow, fast)
	ctx := context.Background()

	// The fallback provider is never reached while the first one succeeds,
	// so its rolling average is seeded directly.
	for i := 0; i < providerStatsMinSamples; i++ {
		chain.stats.record("lightweight", time.Millisecond)
	}

	// Warm up the first provider's rolling average; declared order (slow first)
	// still wins every call until enough samples justify demotion.
	for i := 0; i < providerStatsMinSamples; i++ {
		_, name, err := chain.Translate(ctx, "hola", "es", "en")
		require.NoError(t, err)
		assert.Equal(t, "commercial", name, "declared priority order wins before stats accumulate")
	}

	_, name, err := chain.Translate(ctx, "hola", "es", "en")
	require.NoError(t, err)
	assert.Equal(t, "lightweight", name, "rolling average demotes the consistently slower provider")
}

func TestChain_HealthFailureStillSkipsRegardlessOfStats(t *testing.T) {
	down := &fakeProvider{name: "commercial", kind: ProviderCommercial, healthy: false}
	up := &fakeProvider{name: "lightweight", kind: ProviderLightweight, healthy: true}

	chain := NewChain(down, up)
	_, name, err := chain.Translate(context.Background(), "hola", "es", "en")
	require.NoError(t, err)
	assert.Equal(t, "lightweight", name)
}
