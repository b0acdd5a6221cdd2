package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vultuk/whatsapp-translator/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       false,
	}
}

func TestDefaultBackoffConfigMatchesStoreRetrySettings(t *testing.T) {
	cfg := DefaultBackoffConfig()
	assert.Equal(t, constants.DefaultRetryBackoffMs*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, constants.DefaultMaxBackoffMs*time.Millisecond, cfg.MaxDelay)
	assert.Equal(t, constants.DefaultDatabaseRetryAttempts, cfg.MaxAttempts)
	assert.True(t, cfg.Jitter)
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	b := NewBackoff(testConfig())

	calls := 0
	err := b.Retry(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	b := NewBackoff(testConfig())

	calls := 0
	err := b.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient failure %d", calls)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	b := NewBackoff(testConfig())

	calls := 0
	err := b.Retry(context.Background(), func() error {
		calls++
		return fmt.Errorf("persistent failure")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistent failure")
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
		MaxAttempts:  5,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := b.Retry(ctx, func() error {
		return fmt.Errorf("always failing")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelayGrowsExponentially(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       false,
	})

	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 400*time.Millisecond, b.Delay(3))
}

func TestDelayCapsAtMax(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  20,
		Jitter:       false,
	})

	assert.Equal(t, time.Second, b.Delay(10))
}

func TestDelayJitterStaysWithinBounds(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	})

	for i := 0; i < 50; i++ {
		d := b.Delay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}
