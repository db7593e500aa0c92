package network

import "time"

const (
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffMax  = 8 * time.Second
)

// Backoff computes an exponential delay before the next reconnect attempt:
//
//	delay(attempt) = min(Max, Base * 2^attempt)
//
// There is no cutoff on the number of attempts.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func NewBackoff(base, max time.Duration) Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max < base {
		max = base
	}
	return Backoff{Base: base, Max: max}
}

// Delay returns the delay for the given (zero-based) attempt.
// Big attempt values saturate at Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		if d >= b.Max || d > b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Retry keeps the attempt counter of a reconnect loop.
// The counter grows on every failure and goes back to zero on success.
type Retry struct {
	policy  Backoff
	attempt int
}

func NewRetry(policy Backoff) Retry { return Retry{policy: policy} }

// Fail returns the delay to wait for the current attempt and moves to the next one.
func (r *Retry) Fail() time.Duration { d := r.policy.Delay(r.attempt); r.attempt++; return d }
func (r *Retry) Success()            { r.attempt = 0 }
func (r *Retry) Attempt() int        { return r.attempt }
func (r *Retry) Time() time.Duration { return r.policy.Delay(r.attempt) }
