package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/basket/models"
)

func report(q string) *models.SearchReport {
	return &models.SearchReport{
		Query:   q,
		Results: models.AggregateResult{"rewe": {{Name: "Milch", Price: 1.09}}},
	}
}

func TestKey_NormalizesQuery(t *testing.T) {
	assert.Equal(t, Key("milch"), Key("  Milch "))
	assert.NotEqual(t, Key("milch"), Key("butter"))
	assert.Len(t, Key("milch"), 64)
}

func TestMemory_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Minute, 0)
	defer c.Close()

	_, ok := c.Get(ctx, Key("milch"))
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, Key("milch"), report("milch")))
	got, ok := c.Get(ctx, Key("milch"))
	require.True(t, ok)
	assert.Equal(t, "milch", got.Query)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Minute, 0)
	defer c.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", report("milch")))
	now = now.Add(59 * time.Second)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)

	c.evictExpired()
	assert.Equal(t, 0, c.Len())
}

func TestMemory_Capacity(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2, time.Minute, 0)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "a", report("a")))
	require.NoError(t, c.Set(ctx, "b", report("b")))
	require.NoError(t, c.Set(ctx, "b", report("b2")))
	assert.Equal(t, 2, c.Len(), "overwriting a key must not evict")

	require.NoError(t, c.Set(ctx, "c", report("c")))
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemory_CloseIsIdempotent(t *testing.T) {
	c := NewMemory(1, time.Minute, time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
