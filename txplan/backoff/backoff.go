package backoff

import (
	"context"
	"errors"
	"fmt"
	"math"
	mrand "math/rand/v2"
	"time"
)

const maxShift = 62

// ErrInvalidPolicy is returned by Retry for a policy with no attempts.
var ErrInvalidPolicy = errors.New("backoff policy needs at least one attempt")

// Policy is a retry schedule: up to Attempts calls, waiting a jittered Base*2^n capped at Max
// between them.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultPolicy makes three attempts over roughly one second.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Base: 200 * time.Millisecond, Max: 2 * time.Second}
}

// Delay returns Base*2^attempt, capped at Max when Max is positive.
// Negative attempts count as 0.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt

	delay := time.Duration(math.MaxInt64)
	if int64(p.Base) <= math.MaxInt64/multiplier {
		delay = time.Duration(int64(p.Base) * multiplier)
	}

	if p.Max > 0 && delay > p.Max {
		return p.Max
	}

	return delay
}

// Jittered returns a random duration in [0, Delay(attempt)).
func (p Policy) Jittered(attempt int) time.Duration {
	delay := p.Delay(attempt)
	if delay <= 0 {
		return 0
	}

	return time.Duration(mrand.Int64N(int64(delay))) // #nosec G404 -- retry jitter
}

// Retry calls fn until it succeeds, the attempts run out or ctx is done. It returns the
// last error from fn, or the context error when ctx ended the wait.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.Attempts <= 0 {
		return ErrInvalidPolicy
	}

	var err error

	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if attempt == p.Attempts-1 {
			break
		}

		if sleepErr := Sleep(ctx, p.Jittered(attempt)); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
	}

	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context done: %w", err)
	}

	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
