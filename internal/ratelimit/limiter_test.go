package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/lepinkainen/folio/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireDrainsBucket(t *testing.T) {
	clock := testutil.NewClock()
	l := NewWithBurst("OpenLibrary", 1, 3, WithClock(clock.Now))

	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	require.True(t, l.TryAcquire())
	require.False(t, l.TryAcquire(), "bucket should be empty after burst")
	require.InDelta(t, 0.0, l.Tokens(), 0.0001)
}

func TestTryAcquireRefills(t *testing.T) {
	clock := testutil.NewClock()
	l := NewWithBurst("GoogleBooks", 2, 1, WithClock(clock.Now))

	require.True(t, l.TryAcquire())
	require.False(t, l.TryAcquire())

	clock.Advance(500 * time.Millisecond)
	require.InDelta(t, 1.0, l.Tokens(), 0.0001)
	require.True(t, l.TryAcquire())
}

func TestTokensNeverExceedBurst(t *testing.T) {
	clock := testutil.NewClock()
	l := NewWithBurst("ISBNdb", 5, 2, WithClock(clock.Now))

	clock.Advance(time.Hour)
	require.InDelta(t, 2.0, l.Tokens(), 0.0001)
	require.Equal(t, 2, l.Burst())
	require.InDelta(t, 5.0, l.Rate(), 0.0001)
}

func TestNewUsesRateAsBurst(t *testing.T) {
	l := New("TMDB", 4)
	require.Equal(t, 4, l.Burst())
	require.Equal(t, "TMDB", l.Name())
}

func TestWaitCancelled(t *testing.T) {
	l := NewWithBurst("slow", 0.001, 1)
	require.True(t, l.TryAcquire())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limit wait for slow")
}
