// Package eventbus implements the bounded, lock-free, multi-producer
// broadcast channel of typed lifecycle events. Publish never blocks: a
// ring buffer of fixed capacity holds the most recent events, and a slow
// subscriber that falls behind the buffer loses the oldest ones and is
// told so via Lagged rather than stalling the publisher.
package eventbus

import (
	"context"
	"sync/atomic"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// DefaultCapacity is the ring buffer size.
const DefaultCapacity = 1024

type record struct {
	seq uint64
	evt domain.Event
}

// Bus is the process-wide event broadcaster. The Supervisor owns the
// sending half; every other component receives an already-constructed
// *Bus and only ever calls Publish or Subscribe.
type Bus struct {
	capacity uint64
	slots    []atomic.Pointer[record]
	head     atomic.Uint64 // next sequence number to write

	wake atomic.Pointer[chan struct{}]
}

// New constructs a Bus with the given ring capacity (rounded up to
// DefaultCapacity if zero).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{
		capacity: uint64(capacity),
		slots:    make([]atomic.Pointer[record], capacity),
	}
	ch := make(chan struct{})
	b.wake.Store(&ch)
	return b
}

// Publish appends an event to the ring and wakes any waiting
// subscribers. Never blocks.
func (b *Bus) Publish(evt domain.Event) {
	seq := b.head.Add(1) - 1
	b.slots[seq%b.capacity].Store(&record{seq: seq, evt: evt})

	old := b.wake.Load()
	next := make(chan struct{})
	if b.wake.CompareAndSwap(old, &next) {
		close(*old)
	}
}

// Subscriber is an independent read cursor over the bus.
type Subscriber struct {
	bus    *Bus
	cursor uint64
}

// Subscribe returns a Subscriber positioned at the current head — it only
// sees events published from this point forward.
func (b *Bus) Subscribe() *Subscriber {
	return &Subscriber{bus: b, cursor: b.head.Load()}
}

// Next blocks until the next event is available, ctx is cancelled, or the
// subscriber has fallen behind the ring buffer's capacity, in which case
// it returns (nil, true, nil): the caller lost events and should treat
// this as the lag indicator.
func (s *Subscriber) Next(ctx context.Context) (evt domain.Event, lagged bool, err error) {
	for {
		head := s.bus.head.Load()
		if s.cursor < head {
			if head-s.cursor > s.bus.capacity {
				// Fell behind the ring; jump to the oldest still-live slot.
				s.cursor = head - s.bus.capacity
				return nil, true, nil
			}
			rec := s.bus.slots[s.cursor%s.bus.capacity].Load()
			s.cursor++
			if rec == nil {
				continue
			}
			return rec.evt, false, nil
		}

		wake := s.bus.wake.Load()
		select {
		case <-*wake:
			continue
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}
