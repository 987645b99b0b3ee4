// Package retry implements the exponential backoff policy used by the
// Download Engine's per-article retries. The Server Pool does not use it:
// its failover across servers applies no backoff.
package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// Policy is a static backoff configuration.
type Policy struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	MaxAttempts       int
	Jitter            bool
}

// DefaultPolicy mirrors the defaults carried by the legacy retry
// configuration: a one second initial delay doubling up to thirty
// seconds, five attempts, jitter on.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		MaxAttempts:       5,
		Jitter:            true,
	}
}

// Delay returns the sleep duration before the attempt-th retry (0-based),
// or ok=false once attempt has exhausted the configured budget. The base
// delay is initial_delay * multiplier^attempt, capped at max_delay; when
// jitter is enabled the result is scaled by a uniform factor in [0.5, 1.5]
// so concurrent retries don't all wake at once.
func (p Policy) Delay(attempt int) (d time.Duration, ok bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}

	base := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if capped := float64(p.MaxDelay); base > capped {
		base = capped
	}

	if p.Jitter {
		factor := 0.5 + rand.Float64()
		base *= factor
	}

	return time.Duration(base), true
}

// IsRetryable classifies an error into the transient/permanent split that
// drives the Download Engine's per-article retry loop. NNTP-layer sentinels and generic transient I/O
// conditions are retryable; everything else (auth, protocol-level,
// structural) is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, domain.ErrTransient):
		return true
	case errors.Is(err, domain.ErrProviderBusy):
		return true
	case errors.Is(err, domain.ErrArticleNotFound):
		// Not a retry on this server — the caller fails over instead of
		// consuming the retry budget.
		return false
	case errors.Is(err, domain.ErrAuthFailed):
		return false
	case errors.Is(err, domain.ErrProtocolError):
		return false
	default:
		return false
	}
}
