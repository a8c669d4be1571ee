// Package ratelimit spaces outbound requests from the END of the previous
// call rather than its start, which is what polite-crawl intervals mean for
// a target that measures gaps between page loads.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// jitterFraction is the spread applied around the configured interval, so
// request timing does not form a detectable steady beat.
const jitterFraction = 0.25

// Limiter enforces a minimum jittered gap between the completion of one
// call and the start of the next. Callers Wait before the request and Done
// after it; the zero interval disables waiting.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   bool
	last     time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New returns a limiter with the given base interval. With jitter enabled
// the gap is spread uniformly across +/-25% of the interval.
func New(interval time.Duration, jitter bool) *Limiter {
	return &Limiter{
		interval: interval,
		jitter:   jitter,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until the jittered interval since the previous Done has
// elapsed, and returns how long it actually slept. The first call never
// waits.
func (l *Limiter) Wait(ctx context.Context) (time.Duration, error) {
	l.mu.Lock()
	interval := l.interval
	last := l.last
	l.mu.Unlock()

	if interval <= 0 || last.IsZero() {
		return 0, nil
	}
	target := interval
	if l.jitter {
		target = jittered(interval)
	}
	wait := target - l.now().Sub(last)
	if wait <= 0 {
		return 0, nil
	}
	if err := l.sleep(ctx, wait); err != nil {
		return 0, err
	}
	return wait, nil
}

// Done records the completion time of a call; the next Wait measures its
// gap from this instant.
func (l *Limiter) Done() {
	l.mu.Lock()
	l.last = l.now()
	l.mu.Unlock()
}

// jittered spreads the interval uniformly across +/-25%.
func jittered(interval time.Duration) time.Duration {
	spread := float64(interval) * jitterFraction
	return interval + time.Duration((rand.Float64()*2-1)*spread)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
