package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false, // predictable timing in tests
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(3), func() error {
		attempts++
		return errors.New("persistent")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_BackoffTiming(t *testing.T) {
	// With 4 attempts the total backoff is 10+20+40 = 70ms.
	start := time.Now()
	_ = Do(context.Background(), testConfig(4), func() error {
		return errors.New("always")
	})
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 70*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestDo_NonRetryableFailsFast(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), testConfig(5), func() error {
		attempts++
		return NonRetryable(errors.New("bad input"))
	})

	assert.Error(t, err)
	assert.True(t, IsNonRetryable(err))
	assert.Equal(t, 1, attempts)
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("never succeeds")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, attempts, 10)
}

func TestDoWithResult(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), testConfig(3), func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestDo_InvalidConfig(t *testing.T) {
	cfg := Config{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: time.Millisecond, Multiplier: 2.0}
	err := Do(context.Background(), cfg, func() error { return nil })
	assert.Error(t, err)
}
