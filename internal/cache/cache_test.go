package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tangentleman/docpull/internal/kv/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestCacheSetThenGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	c := New(memory.NewStore(), clock)

	require.NoError(t, c.Set(ctx, "siteA", "/guide", "# Guide", "https://a.test/guide"))

	entry, err := c.Get(ctx, "siteA", "/guide", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "# Guide", entry.Content)
	require.Equal(t, "https://a.test/guide", entry.SourceURL)
	require.Equal(t, clock.now, entry.Timestamp)
}

func TestCacheGetMissesWhenStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	c := New(memory.NewStore(), clock)

	require.NoError(t, c.Set(ctx, "siteA", "/guide", "content", "https://a.test/guide"))

	clock.now = clock.now.Add(2 * time.Hour)
	_, err := c.Get(ctx, "siteA", "/guide", time.Hour)
	require.ErrorIs(t, err, ErrMiss)

	// Still fresh under a larger window.
	_, err = c.Get(ctx, "siteA", "/guide", 3*time.Hour)
	require.NoError(t, err)
}

func TestCacheGetZeroMaxAgeAlwaysMisses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	c := New(memory.NewStore(), clock)

	require.NoError(t, c.Set(ctx, "siteA", "/guide", "content", "https://a.test/guide"))

	_, err := c.Get(ctx, "siteA", "/guide", 0)
	require.ErrorIs(t, err, ErrMiss)
}

func TestCacheGetMissesWhenAbsent(t *testing.T) {
	t.Parallel()

	c := New(memory.NewStore(), &fakeClock{now: time.Unix(1000, 0).UTC()})
	_, err := c.Get(context.Background(), "siteA", "/missing", time.Hour)
	require.ErrorIs(t, err, ErrMiss)
}

func TestCacheSetOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0).UTC()}
	c := New(memory.NewStore(), clock)

	require.NoError(t, c.Set(ctx, "siteA", "/guide", "old", "https://a.test/guide"))
	clock.now = clock.now.Add(time.Minute)
	require.NoError(t, c.Set(ctx, "siteA", "/guide", "new", "https://a.test/guide"))

	entry, err := c.Get(ctx, "siteA", "/guide", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "new", entry.Content)
	require.Equal(t, clock.now, entry.Timestamp)
}

func TestCacheMarkAsset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(memory.NewStore(), &fakeClock{now: time.Unix(1000, 0).UTC()})

	isAsset, err := c.IsAsset(ctx, "siteA", "/logo.png")
	require.NoError(t, err)
	require.False(t, isAsset)

	require.NoError(t, c.MarkAsset(ctx, "siteA", "/logo.png", "https://a.test/logo.png"))

	isAsset, err = c.IsAsset(ctx, "siteA", "/logo.png")
	require.NoError(t, err)
	require.True(t, isAsset)

	// Asset markers do not collide with content entries.
	_, err = c.Get(ctx, "siteA", "/logo.png", time.Hour)
	require.ErrorIs(t, err, ErrMiss)
}
