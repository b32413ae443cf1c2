package util

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Retrier is a wrapper around "github.com/cenkalti/backoff" which caps
// the number of tries and filters which errors are worth retrying.
type Retrier struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxElapsedTime      time.Duration
	MaxTries            int
	ShouldRetry         func(err error) bool
	Notify              func(err error, d time.Duration)
	// BackOff overrides the exponential schedule built from the fields
	// above. It is reset before each Retry call.
	BackOff backoff.BackOff
}

// NewRetrier creates a new Retrier instance tuned for commands sent over
// a flaky cluster connection: seven tries with exponential backoff growing
// from one second to a one minute ceiling.
func NewRetrier() *Retrier {
	return &Retrier{
		InitialInterval:     time.Second,
		MaxInterval:         time.Second * 60,
		Multiplier:          2.0,
		RandomizationFactor: 0,
		MaxElapsedTime:      0,
		MaxTries:            7,
		ShouldRetry:         nil,
	}
}

// NewLinearRetrier creates a Retrier for rereading flaky command output:
// up to maxTries tries, sleeping step, 2*step, 3*step... between them.
func NewLinearRetrier(maxTries int, step time.Duration) *Retrier {
	return &Retrier{
		MaxTries: maxTries,
		BackOff:  &LinearBackOff{Step: step},
	}
}

// Retry the function f until it does not return error or BackOff stops.
func (r *Retrier) Retry(ctx context.Context, f func() error) error {
	b := backoff.WithContext(r.withTries(), ctx)
	return backoff.RetryNotify(func() error { return r.checkErr(f()) }, b, r.notify)
}

func (r *Retrier) notify(err error, d time.Duration) {
	if r.Notify != nil {
		r.Notify(err, d)
	}
}

func (r *Retrier) checkErr(err error) error {
	switch {
	case err != nil && r.ShouldRetry != nil && !r.ShouldRetry(err):
		return &backoff.PermanentError{Err: err}
	case err != nil:
		return err
	default:
		return nil
	}
}

func (r *Retrier) withTries() backoff.BackOff {
	b := r.BackOff
	if b == nil {
		b = &backoff.ExponentialBackOff{
			InitialInterval:     r.InitialInterval,
			MaxInterval:         r.MaxInterval,
			Multiplier:          r.Multiplier,
			RandomizationFactor: r.RandomizationFactor,
			MaxElapsedTime:      r.MaxElapsedTime,
			Clock:               backoff.SystemClock,
		}
	}
	b.Reset()

	max := r.MaxTries - 1
	if max < 0 {
		max = 0
	}

	// Cap the number of retry attempts.
	return backoff.WithMaxRetries(b, uint64(max))
}

// LinearBackOff implements "github.com/cenkalti/backoff".BackOff with a
// schedule that grows by a fixed step on every attempt: step, 2*step,
// 3*step and so on.
type LinearBackOff struct {
	Step time.Duration
	n    int64
}

// NextBackOff returns the duration to wait before the next attempt.
func (l *LinearBackOff) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.Step
}

// Reset restarts the schedule.
func (l *LinearBackOff) Reset() {
	l.n = 0
}
