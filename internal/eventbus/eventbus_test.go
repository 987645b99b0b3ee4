package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

func TestSubscriberReceivesPublishedEvent(t *testing.T) {
	b := New(8)
	sub := b.Subscribe()

	b.Publish(domain.Queued{JobID: 1, Name: "job-1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt, lagged, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.False(t, lagged)
	assert.Equal(t, domain.Queued{JobID: 1, Name: "job-1"}, evt)
}

func TestSubscribeOnlySeesFutureEvents(t *testing.T) {
	b := New(8)
	b.Publish(domain.Queued{JobID: 1, Name: "before"})
	sub := b.Subscribe()
	b.Publish(domain.Queued{JobID: 2, Name: "after"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt, _, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Queued{JobID: 2, Name: "after"}, evt)
}

func TestSubscriberReportsLagWhenItFallsBehindCapacity(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(domain.Queued{JobID: int64(i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, lagged, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.True(t, lagged)
}

func TestNextReturnsContextErrorWhenNothingPublished(t *testing.T) {
	b := New(4)
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishNeverBlocksUnderConcurrentProducers(t *testing.T) {
	b := New(16)
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func(n int) {
			for j := 0; j < 50; j++ {
				b.Publish(domain.Queued{JobID: int64(n*50 + j)})
			}
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 4; i++ {
		<-done
	}
}
