// Package ratelimiter implements the global token-bucket bandwidth cap.
//
// The bucket is lock-free: limit, bucket capacity and the available token
// count are all held in atomic words and mutated with compare-and-swap
// loops rather than a mutex, the same technique the legacy speed limiter
// used for its own AtomicU64 bucket.
package ratelimiter

import (
	"context"
	"sync/atomic"
	"time"
)

// Limiter is a global, shared token bucket. All downloads acquire from the
// same Limiter, which naturally distributes bandwidth across concurrent
// transfers in proportion to demand.
type Limiter struct {
	limitBps atomic.Uint64 // 0 == unlimited
	burstBps atomic.Uint64 // bucket capacity, default 2x limitBps
	tokens   atomic.Uint64
	lastFill atomic.Uint64 // monotonic nanoseconds, arbitrary epoch

	start time.Time
}

// New constructs a Limiter. A limitBps of 0 means unlimited. burstBps of 0
// defaults the bucket capacity to 2x limitBps, per the configured default;
// pass a positive burstBps to override it.
func New(limitBps, burstBps uint64) *Limiter {
	if burstBps == 0 {
		burstBps = limitBps * 2
	}
	l := &Limiter{start: time.Now()}
	l.limitBps.Store(limitBps)
	l.burstBps.Store(burstBps)
	l.tokens.Store(burstBps)
	l.lastFill.Store(uint64(l.nowNanos()))
	return l
}

func (l *Limiter) nowNanos() int64 {
	return int64(time.Since(l.start))
}

// SetLimit replaces the limit and burst capacity atomically. In-flight
// waiters observe the new rate on their next refill check, not
// instantaneously — they are released only once the new rate has actually
// produced enough tokens to satisfy them.
func (l *Limiter) SetLimit(limitBps, burstBps uint64) {
	if burstBps == 0 {
		burstBps = limitBps * 2
	}
	oldBurst := l.burstBps.Swap(burstBps)
	l.limitBps.Store(limitBps)
	if burstBps > oldBurst {
		l.tokens.Add(burstBps - oldBurst)
	}
}

// Limit returns the current limit in bytes/sec, or 0 if unlimited.
func (l *Limiter) Limit() uint64 { return l.limitBps.Load() }

// Acquire blocks until n bytes worth of tokens are available, then
// consumes them. Returns immediately when unlimited or n is zero. Returns
// ctx.Err() if ctx is cancelled while waiting; the caller's bytes are not
// partially consumed in that case.
func (l *Limiter) Acquire(ctx context.Context, n uint64) error {
	if n == 0 {
		return nil
	}
	if l.limitBps.Load() == 0 {
		return nil
	}

	remaining := n
	for {
		limit := l.limitBps.Load()
		if limit == 0 {
			return nil
		}

		l.refill()

		current := l.tokens.Load()
		toConsume := remaining
		if current < toConsume {
			toConsume = current
		}

		if toConsume > 0 {
			if l.tokens.CompareAndSwap(current, current-toConsume) {
				remaining -= toConsume
				if remaining == 0 {
					return nil
				}
			}
			continue
		}

		waitMs := float64(remaining) / float64(limit) * 1000.0
		if waitMs < 10 {
			waitMs = 10
		} else if waitMs > 100 {
			waitMs = 100
		}

		select {
		case <-ctx.Done():
			if taken := n - remaining; taken > 0 {
				for {
					current := l.tokens.Load()
					next := current + taken
					if burst := l.burstBps.Load(); next > burst {
						next = burst
					}
					if l.tokens.CompareAndSwap(current, next) {
						break
					}
				}
			}
			return ctx.Err()
		case <-time.After(time.Duration(waitMs) * time.Millisecond):
		}
	}
}

func (l *Limiter) refill() {
	limit := l.limitBps.Load()
	if limit == 0 {
		return
	}

	now := uint64(l.nowNanos())
	last := l.lastFill.Load()

	elapsedSecs := float64(now-last) / 1e9
	toAdd := uint64(float64(limit) * elapsedSecs)
	if toAdd == 0 {
		return
	}

	if l.lastFill.CompareAndSwap(last, now) {
		burst := l.burstBps.Load()
		for {
			current := l.tokens.Load()
			next := current + toAdd
			if next > burst {
				next = burst
			}
			if l.tokens.CompareAndSwap(current, next) {
				return
			}
		}
	}
}
