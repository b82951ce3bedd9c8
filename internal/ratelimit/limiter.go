// Package ratelimit implements fixed-window request limiting keyed by client.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Store counts hits per key inside fixed windows.
type Store interface {
	// Hit records one hit for key and returns the count inside the current
	// window together with the time that window ends.
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (count int64, resetAt time.Time, err error)
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Count      int64
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the retry delay up to whole seconds, minimum 1.
func (d Decision) RetryAfterSeconds() int {
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Limiter admits at most Max hits per key per Window.
type Limiter struct {
	Name   string
	Window time.Duration
	Max    int
	Store  Store

	now       func() time.Time
	rejectLog *rate.Sometimes
	storeLog  *rate.Sometimes
}

func New(name string, window time.Duration, max int, store Store) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{
		Name:      name,
		Window:    window,
		Max:       max,
		Store:     store,
		now:       time.Now,
		rejectLog: &rate.Sometimes{First: 5, Interval: 10 * time.Second},
		storeLog:  &rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

// SetClock overrides the time source. Tests only.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }

// Allow records a hit for key. On a store error the returned decision admits
// the request and the error is returned for logging.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	count, resetAt, err := l.Store.Hit(ctx, l.Name+":"+key, l.Window, now)
	if err != nil {
		return Decision{Allowed: true, Limit: l.Max, Remaining: l.Max, ResetAt: now.Add(l.Window)},
			fmt.Errorf("rate limit store %s: %w", l.Name, err)
	}
	d := Decision{
		Allowed: count <= int64(l.Max),
		Limit:   l.Max,
		Count:   count,
		ResetAt: resetAt,
	}
	if rem := int64(l.Max) - count; rem > 0 {
		d.Remaining = int(rem)
	}
	if !d.Allowed {
		d.RetryAfter = resetAt.Sub(now)
	}
	return d, nil
}
