package binaryrepo

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// RetryPolicy retries transient object-storage failures with jittered
// exponential backoff: delay = uniform(0,1) * BaseDelay * 2^attempt,
// capped at MaxDelay. The policy is an explicit value applied at the
// call site, so it is inspectable and testable on its own.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Retryable decides whether an error is transient. Non-retryable
	// errors are returned immediately.
	Retryable func(error) bool

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the production policy: 5 retries, 1s base
// delay, 20s cap.
func DefaultRetryPolicy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   20 * time.Second,
		Retryable:  retryable,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	jitterMu.Lock()
	u := jitterSource.Float64()
	jitterMu.Unlock()
	d := time.Duration(u * float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn, retrying transient failures until the retry budget is
// exhausted. The original error of the final attempt is returned
// unwrapped.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) || attempt >= p.MaxRetries {
			return err
		}
		if sleepErr := sleep(ctx, p.delay(attempt)); sleepErr != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
