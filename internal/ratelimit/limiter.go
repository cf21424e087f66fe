package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a name for logging/debugging.
// It is a token bucket: Burst is the capacity, Rate the refill in tokens per second.
type Limiter struct {
	limiter *rate.Limiter
	name    string
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets a custom clock function (for testing).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New creates a new rate limiter with the given requests per second.
// The burst size equals the rate, allowing short bursts up to the rate limit.
func New(name string, requestsPerSecond int, opts ...Option) *Limiter {
	return NewWithBurst(name, float64(requestsPerSecond), requestsPerSecond, opts...)
}

// NewWithBurst creates a new rate limiter with custom burst size.
func NewWithBurst(name string, requestsPerSecond float64, burst int, opts ...Option) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		name:    name,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until the rate limiter allows a request to proceed.
// Returns an error if the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// TryAcquire takes one token if available and reports whether it did.
// It never blocks.
func (l *Limiter) TryAcquire() bool {
	return l.limiter.AllowN(l.now(), 1)
}

// Tokens returns the current number of available tokens. The value is an
// estimate: concurrent acquires may change it right after it is read.
func (l *Limiter) Tokens() float64 {
	return l.limiter.TokensAt(l.now())
}

// Rate returns the refill rate in tokens per second.
func (l *Limiter) Rate() float64 {
	return float64(l.limiter.Limit())
}

// Burst returns the bucket capacity.
func (l *Limiter) Burst() int {
	return l.limiter.Burst()
}

// Name returns the name of this rate limiter.
func (l *Limiter) Name() string {
	return l.name
}
