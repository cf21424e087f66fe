// Package breaker implements a per-source circuit breaker whose transitions
// are compare-and-swap updates of an immutable status value, so concurrent
// requests never serialize on a lock and a half-open breaker hands out at most
// one trial call at a time.
package breaker

import (
	"sync/atomic"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	Closed   State = iota // Normal operation, calls pass through.
	Open                  // Calls rejected immediately.
	HalfOpen              // One trial call allowed to test recovery.
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Defaults used by New.
const (
	DefaultThreshold    = 5
	DefaultWindow       = time.Minute
	DefaultOpenDuration = 30 * time.Second
)

// status is never mutated after it has been published.
type status struct {
	state       State
	failures    int
	windowStart time.Time
	openedAt    time.Time
	changedAt   time.Time
	trialBusy   bool
}

// Snapshot is a read-only view of a breaker.
type Snapshot struct {
	Name           string
	State          State
	Failures       int
	OpenedAt       time.Time
	LastTransition time.Time
}

// Breaker is a circuit breaker for a single external source.
type Breaker struct {
	name         string
	current      atomic.Pointer[status]
	threshold    int
	window       time.Duration
	openDuration time.Duration
	now          func() time.Time
	onChange     func(name string, from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithThreshold sets the consecutive failure count that trips the breaker open.
func WithThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithWindow sets the rolling window for consecutive failures. A failure
// arriving after the window has passed since the first failure of the streak
// starts a new streak. Zero disables the window.
func WithWindow(d time.Duration) Option {
	return func(b *Breaker) {
		if d >= 0 {
			b.window = d
		}
	}
}

// WithOpenDuration sets how long the breaker stays open before a trial call
// is allowed.
func WithOpenDuration(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.openDuration = d
		}
	}
}

// WithClock sets a custom clock function (for testing).
func WithClock(fn func() time.Time) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.now = fn
		}
	}
}

// WithOnStateChange registers a callback invoked after every successful transition.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// New creates a closed breaker with defaults of 5 failures inside one minute
// to open and 30s before a trial call.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:         name,
		threshold:    DefaultThreshold,
		window:       DefaultWindow,
		openDuration: DefaultOpenDuration,
		now:          time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	b.current.Store(&status{state: Closed, changedAt: b.now()})
	return b
}

// Name returns the source name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Allow reports whether a call may be dispatched now. In the half-open state
// only the caller that wins the trial slot gets true; everybody else is told
// the source is unavailable until the trial reports back.
func (b *Breaker) Allow() bool {
	for {
		cur := b.current.Load()
		switch cur.state {
		case Closed:
			return true
		case Open:
			now := b.now()
			if now.Before(cur.openedAt.Add(b.openDuration)) {
				return false
			}
			next := *cur
			next.state = HalfOpen
			next.trialBusy = true
			next.changedAt = now
			if b.current.CompareAndSwap(cur, &next) {
				b.notify(Open, HalfOpen)
				return true
			}
		case HalfOpen:
			if cur.trialBusy {
				return false
			}
			next := *cur
			next.trialBusy = true
			if b.current.CompareAndSwap(cur, &next) {
				return true
			}
		default:
			return false
		}
	}
}

// Release gives back a trial slot claimed by Allow when the caller decided
// not to dispatch after all. It does not count as success or failure.
func (b *Breaker) Release() {
	for {
		cur := b.current.Load()
		if cur.state != HalfOpen || !cur.trialBusy {
			return
		}
		next := *cur
		next.trialBusy = false
		if b.current.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// RecordSuccess records a well-formed response, including an empty one.
func (b *Breaker) RecordSuccess() {
	for {
		cur := b.current.Load()
		var next status
		switch cur.state {
		case Closed:
			if cur.failures == 0 {
				return
			}
			next = *cur
			next.failures = 0
			next.windowStart = time.Time{}
		case HalfOpen:
			next = status{state: Closed, changedAt: b.now()}
		default:
			// A straggler dispatched before the breaker opened; the open
			// period still has to run its course.
			return
		}
		if b.current.CompareAndSwap(cur, &next) {
			if cur.state != next.state {
				b.notify(cur.state, next.state)
			}
			return
		}
	}
}

// RecordFailure records a timeout, connection error or non-success response.
func (b *Breaker) RecordFailure() {
	for {
		cur := b.current.Load()
		now := b.now()
		next := *cur
		switch cur.state {
		case Closed:
			if cur.failures == 0 || (b.window > 0 && now.Sub(cur.windowStart) > b.window) {
				next.failures = 1
				next.windowStart = now
			} else {
				next.failures = cur.failures + 1
			}
			if next.failures >= b.threshold {
				next.state = Open
				next.openedAt = now
				next.changedAt = now
			}
		case HalfOpen:
			next.state = Open
			next.failures = cur.failures + 1
			next.openedAt = now
			next.changedAt = now
			next.trialBusy = false
		case Open:
			next.failures = cur.failures + 1
		}
		if b.current.CompareAndSwap(cur, &next) {
			if cur.state != next.state {
				b.notify(cur.state, next.state)
			}
			return
		}
	}
}

// State returns the current state without changing it. An open breaker whose
// open duration has elapsed is still reported as open until a caller claims
// the trial.
func (b *Breaker) State() State {
	return b.current.Load().state
}

// Snapshot returns a consistent read-only view of the breaker.
func (b *Breaker) Snapshot() Snapshot {
	cur := b.current.Load()
	return Snapshot{
		Name:           b.name,
		State:          cur.state,
		Failures:       cur.failures,
		OpenedAt:       cur.openedAt,
		LastTransition: cur.changedAt,
	}
}

// Reset forces the breaker back to closed state.
func (b *Breaker) Reset() {
	prev := b.current.Swap(&status{state: Closed, changedAt: b.now()})
	if prev.state != Closed {
		b.notify(prev.state, Closed)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
