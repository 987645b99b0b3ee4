package retry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

func TestDelayGrowsExponentiallyWithoutJitter(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffMultiplier: 2.0, MaxAttempts: 5}

	d0, ok := p.Delay(0)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d0)

	d1, ok := p.Delay(1)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d1)

	d2, ok := p.Delay(2)
	assert.True(t, ok)
	assert.Equal(t, 4*time.Second, d2)
}

func TestDelayCapsAtMaxDelay(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffMultiplier: 2.0, MaxAttempts: 10}
	d, ok := p.Delay(5)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)
}

func TestDelayExhaustsAtMaxAttempts(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffMultiplier: 2.0, MaxAttempts: 3}
	_, ok := p.Delay(3)
	assert.False(t, ok)
}

func TestDelayWithJitterStaysWithinBounds(t *testing.T) {
	p := Policy{InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffMultiplier: 2.0, MaxAttempts: 5, Jitter: true}
	for i := 0; i < 50; i++ {
		d, ok := p.Delay(0)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestIsRetryableClassifiesTransientErrors(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", domain.ErrTransient)))
	assert.True(t, IsRetryable(domain.ErrProviderBusy))
}

func TestIsRetryableRejectsPermanentErrors(t *testing.T) {
	assert.False(t, IsRetryable(domain.ErrArticleNotFound))
	assert.False(t, IsRetryable(domain.ErrAuthFailed))
	assert.False(t, IsRetryable(domain.ErrProtocolError))
	assert.False(t, IsRetryable(nil))
}

func TestDefaultPolicyMatchesDocumentedDefaults(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.BackoffMultiplier)
	assert.Equal(t, 5, p.MaxAttempts)
	assert.True(t, p.Jitter)
}
