package breaker

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

func newTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(10000, 0).UTC()}
	return New(memory.NewStore(), clock, DefaultThreshold, DefaultExpiry), clock
}

func TestTrackerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, _ := newTracker(t)

	for i := 0; i < DefaultThreshold-1; i++ {
		require.NoError(t, tracker.RecordFailure(ctx, "siteA", "/x", "boom"))
		skip, err := tracker.ShouldSkip(ctx, "siteA", "/x")
		require.NoError(t, err)
		require.False(t, skip)
	}

	require.NoError(t, tracker.RecordFailure(ctx, "siteA", "/x", "boom"))
	skip, err := tracker.ShouldSkip(ctx, "siteA", "/x")
	require.NoError(t, err)
	require.True(t, skip)
}

func TestTrackerSuccessResets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, _ := newTracker(t)

	for i := 0; i < DefaultThreshold; i++ {
		require.NoError(t, tracker.RecordFailure(ctx, "siteA", "/x", "boom"))
	}
	skip, err := tracker.ShouldSkip(ctx, "siteA", "/x")
	require.NoError(t, err)
	require.True(t, skip)

	require.NoError(t, tracker.RecordSuccess(ctx, "siteA", "/x"))
	skip, err = tracker.ShouldSkip(ctx, "siteA", "/x")
	require.NoError(t, err)
	require.False(t, skip)
}

func TestTrackerAutoExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, clock := newTracker(t)

	for i := 0; i < DefaultThreshold; i++ {
		require.NoError(t, tracker.RecordFailure(ctx, "siteA", "/x", "boom"))
	}

	clock.now = clock.now.Add(DefaultExpiry - time.Minute)
	skip, err := tracker.ShouldSkip(ctx, "siteA", "/x")
	require.NoError(t, err)
	require.True(t, skip)

	clock.now = clock.now.Add(2 * time.Minute)
	skip, err = tracker.ShouldSkip(ctx, "siteA", "/x")
	require.NoError(t, err)
	require.False(t, skip)
}

func TestTrackerFailureResetsExpiryWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, clock := newTracker(t)

	for i := 0; i < DefaultThreshold; i++ {
		require.NoError(t, tracker.RecordFailure(ctx, "siteA", "/x", "boom"))
	}

	// A new failure just before expiry keeps the path blocked for a
	// fresh window.
	clock.now = clock.now.Add(DefaultExpiry - time.Minute)
	require.NoError(t, tracker.RecordFailure(ctx, "siteA", "/x", "still failing"))

	clock.now = clock.now.Add(DefaultExpiry - time.Minute)
	skip, err := tracker.ShouldSkip(ctx, "siteA", "/x")
	require.NoError(t, err)
	require.True(t, skip)
}

func TestTrackerForceClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, _ := newTracker(t)

	for i := 0; i < DefaultThreshold; i++ {
		require.NoError(t, tracker.RecordFailure(ctx, "siteA", "/x", "boom"))
	}
	require.NoError(t, tracker.ForceClear(ctx, "siteA", "/x"))

	skip, err := tracker.ShouldSkip(ctx, "siteA", "/x")
	require.NoError(t, err)
	require.False(t, skip)
}

func TestTrackerKeysAreIndependent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker, _ := newTracker(t)

	for i := 0; i < DefaultThreshold; i++ {
		require.NoError(t, tracker.RecordFailure(ctx, "siteA", "/x", "boom"))
	}

	skip, err := tracker.ShouldSkip(ctx, "siteA", "/y")
	require.NoError(t, err)
	require.False(t, skip)

	skip, err = tracker.ShouldSkip(ctx, "siteB", "/x")
	require.NoError(t, err)
	require.False(t, skip)
}
