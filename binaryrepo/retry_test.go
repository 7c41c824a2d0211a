package binaryrepo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("throttled")

func alwaysRetryable(error) bool { return true }

func testPolicy(retryable func(error) bool) (RetryPolicy, *[]time.Duration) {
	var slept []time.Duration
	p := RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   4 * time.Second,
		Retryable:  retryable,
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	return p, &slept
}

func TestRetrySucceedsWithoutRetrying(t *testing.T) {
	p, slept := testPolicy(alwaysRetryable)
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestRetryRecoversWithinBudget(t *testing.T) {
	p, slept := testPolicy(alwaysRetryable)
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
}

func TestRetryBudgetExhaustedReturnsOriginalError(t *testing.T) {
	p, slept := testPolicy(alwaysRetryable)
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return errTransient
	})
	// The final attempt's error comes back as-is, not wrapped in retry
	// bookkeeping.
	assert.Equal(t, errTransient, err)
	assert.Equal(t, 4, calls) // initial attempt + 3 retries
	assert.Len(t, *slept, 3)
}

func TestRetryNonRetryableFailsImmediately(t *testing.T) {
	permanent := errors.New("access denied")
	p, slept := testPolicy(func(err error) bool { return errors.Is(err, errTransient) })
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return permanent
	})
	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestRetryDelayIsCappedAndJittered(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.delay(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}

func TestRetryStopsWhenSleepFails(t *testing.T) {
	calls := 0
	p := RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		Retryable:  alwaysRetryable,
		sleep: func(ctx context.Context, _ time.Duration) error {
			return context.Canceled
		},
	}
	err := p.Do(context.Background(), func() error {
		calls++
		return errTransient
	})
	// An interrupted backoff surfaces the attempt's error, not the
	// cancellation.
	assert.Equal(t, errTransient, err)
	assert.Equal(t, 1, calls)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy(alwaysRetryable)
	assert.Equal(t, 5, p.MaxRetries)
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 20*time.Second, p.MaxDelay)
}
