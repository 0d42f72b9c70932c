package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────────────────
// L1-only behavior (no Redis, no database configured)
// ────────────────────────────────────────────────────────────

func TestTiered_L1OnlyRoundTrip(t *testing.T) {
	c, err := NewTiered(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, found, err := c.Get(ctx, "es", "en", "hola mundo")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, Entry{
		SourceHash:      HashText("hola mundo"),
		SourceLang:      "es",
		TargetLang:      "en",
		TranslatedText:  "hello world",
		Provider:        "commercial",
		ConfidenceScore: 0.95,
	}))

	entry, found, err := c.Get(ctx, "es", "en", "hola mundo")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hello world", entry.TranslatedText)
}

func TestTiered_L1ExpiresAfterTTL(t *testing.T) {
	c, err := NewTiered(Config{L1Size: 10, L1TTL: time.Millisecond, L2TTL: time.Hour}, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, Entry{SourceHash: HashText("hola"), SourceLang: "es", TargetLang: "en", TranslatedText: "hello"}))

	time.Sleep(5 * time.Millisecond)

	_, found, err := c.Get(ctx, "es", "en", "hola")
	require.NoError(t, err)
	assert.False(t, found, "entry should have expired from L1")
}

func TestTiered_GCWithoutDatabaseIsNoop(t *testing.T) {
	c, err := NewTiered(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	n, err := c.GC(context.Background(), 1, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// ────────────────────────────────────────────────────────────
// Key derivation
// ────────────────────────────────────────────────────────────

func TestKey_StableForSameInputs(t *testing.T) {
	k1 := Key("es", "en", "hola mundo")
	k2 := Key("es", "en", "hola mundo")
	assert.Equal(t, k1, k2)
}

func TestKey_DiffersByText(t *testing.T) {
	assert.NotEqual(t, Key("es", "en", "hola"), Key("es", "en", "adios"))
}

func TestHashText_Is64HexChars(t *testing.T) {
	h := HashText("hola mundo")
	assert.Len(t, h, 64)
}
