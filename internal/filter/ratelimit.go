package filter

import (
	"fmt"
	"sync"
	"time"

	"towerbot/internal/record"
)

const (
	DefaultRate   = 5
	DefaultPeriod = 60 * time.Second
)

type rateEntry struct {
	count int
	start time.Time
}

// RateLimit suppresses repeats of the same rendered message. Within one
// period the first rate copies pass, the next one passes with a
// "(rate limited, repeated N times)" suffix and the rest are dropped.
//
// Windows are reset lazily: only when the same message is seen again after
// the period has elapsed. Entries are never expired by a timer.
type RateLimit struct {
	rate   int
	period time.Duration
	now    func() time.Time

	mu       sync.Mutex
	messages map[string]rateEntry
}

// RateLimitOption configures a RateLimit.
type RateLimitOption func(*RateLimit)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RateLimitOption {
	return func(f *RateLimit) {
		if now != nil {
			f.now = now
		}
	}
}

// NewRateLimit creates a rate limiter; non-positive arguments fall back to
// DefaultRate and DefaultPeriod.
func NewRateLimit(rate int, period time.Duration, opts ...RateLimitOption) *RateLimit {
	if rate <= 0 {
		rate = DefaultRate
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	f := &RateLimit{
		rate:     rate,
		period:   period,
		now:      time.Now,
		messages: map[string]rateEntry{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *RateLimit) Name() string { return "rate_limit" }

// SetLimits changes rate and period without touching the tracked windows.
// Non-positive arguments fall back to the defaults.
func (f *RateLimit) SetLimits(rate int, period time.Duration) {
	if rate <= 0 {
		rate = DefaultRate
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	f.mu.Lock()
	f.rate, f.period = rate, period
	f.mu.Unlock()
}

func (f *RateLimit) Evaluate(r record.Record) (record.Record, Decision) {
	msg := r.Message
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.messages[msg]
	if !ok {
		f.messages[msg] = rateEntry{count: 1, start: now}
		return r, Admit
	}
	if now.Sub(e.start) > f.period {
		f.messages[msg] = rateEntry{count: 1, start: now}
		return r, Admit
	}

	e.count++
	f.messages[msg] = e
	switch {
	case e.count <= f.rate:
		return r, Admit
	case e.count == f.rate+1:
		return r.WithMessage(fmt.Sprintf("%s (rate limited, repeated %d times)", msg, e.count)), Admit
	default:
		return r, Suppress
	}
}

// Tracked returns the number of distinct messages currently held.
func (f *RateLimit) Tracked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}
