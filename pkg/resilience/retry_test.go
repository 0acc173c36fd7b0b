package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "test", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryReturnsLastError(t *testing.T) {
	boom := errors.New("boom")
	err := Retry(context.Background(), "test", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestBackoffGrowsAndResets(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, Multiplier: 2, JitterFraction: 0.0001}
	assert.InDelta(t, float64(10*time.Millisecond), float64(computeDelay(1, cfg.withDefaults())), float64(time.Millisecond))
	assert.InDelta(t, float64(40*time.Millisecond), float64(computeDelay(5, cfg.withDefaults())), float64(time.Millisecond))

	b := NewBackoff(RetryConfig{InitialDelay: time.Millisecond})
	require.NoError(t, b.Wait(context.Background()))
	b.Reset()
	assert.Equal(t, 0, b.failures)
}

func TestBackoffHonoursCancellation(t *testing.T) {
	b := NewBackoff(RetryConfig{InitialDelay: time.Hour, MaxDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
}
