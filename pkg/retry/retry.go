package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrAttemptsExhausted is returned (wrapped around the last error) when every attempt failed
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Policy describes an exponential backoff schedule
type Policy struct {
	// MaxAttempts counts the first call; 1 means no retries
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter is a 0..1 fraction added or subtracted from each wait
	Jitter float64
}

// DefaultPolicy is used for connecting to backing services at startup: 0.5s, 1s, 2s, 4s
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.1,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 500 * time.Millisecond
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	p.Jitter = math.Max(0, math.Min(1, p.Jitter))
	return p
}

// Backoff returns the wait after the given failed attempt (1-based)
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	wait := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.Jitter > 0 {
		wait += (rand.Float64()*2 - 1) * wait * p.Jitter
	}
	if wait > float64(p.MaxInterval) {
		wait = float64(p.MaxInterval)
	}
	if wait <= 0 {
		wait = float64(p.InitialInterval)
	}
	return time.Duration(wait)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent stops the retry loop and returns err as is
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Notify is called before each wait
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a permanent error, the attempts run out or ctx is done.
// It returns the number of attempts made.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify Notify) (int, error) {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, fmt.Errorf("%w: %w", err, lastErr)
			}
			return attempt - 1, err
		}

		err := op(ctx)
		if err == nil {
			return attempt, nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return attempt, pe.err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Backoff(attempt)
		if notify != nil {
			notify(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("%w: %w", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return p.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, p.MaxAttempts, lastErr)
}
