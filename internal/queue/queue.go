// Package queue implements the admission queue's priority ordering: a
// single container/heap priority queue behind one mutex, the same
// single-lock discipline the legacy QueueManager used over its linear
// slice scan, swapped for O(log n) admission/removal.
package queue

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// Queue is a thread-safe priority queue of domain.Job pointers. Ordering
// is by Priority descending, then CreatedAt ascending (FIFO within a
// priority band) — Force-priority jobs additionally bypass the
// Supervisor's concurrency permit entirely, which Queue does not decide;
// Queue only ever hands out the next-highest-priority pending job.
type Queue struct {
	mu sync.Mutex
	h  jobHeap
	// index lets Remove/Reprioritize find a job in O(1) instead of a
	// linear scan, mirroring the legacy manager's keyed lookups.
	index map[int64]*heapEntry
}

type heapEntry struct {
	job *domain.Job
	idx int
}

type jobHeap []*heapEntry

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	a, b := h[i].job, h[j].job
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx, h[j].idx = i, j
}

func (h *jobHeap) Push(x any) {
	e := x.(*heapEntry)
	e.idx = len(*h)
	*h = append(*h, e)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// New constructs an empty Queue.
func New() *Queue {
	return &Queue{index: make(map[int64]*heapEntry)}
}

// Push admits job into the queue.
func (q *Queue) Push(job *domain.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := &heapEntry{job: job}
	q.index[job.ID] = e
	heap.Push(&q.h, e)
}

// Pop removes and returns the highest-priority pending job, or nil if the
// queue is empty.
func (q *Queue) Pop() *domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return nil
	}
	e := heap.Pop(&q.h).(*heapEntry)
	delete(q.index, e.job.ID)
	return e.job
}

// Peek returns the highest-priority pending job without removing it.
func (q *Queue) Peek() *domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return nil
	}
	return q.h[0].job
}

// Remove pulls a job out of the queue by id, e.g. on user cancellation of
// a still-queued job. Reports whether the job was present.
func (q *Queue) Remove(id int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.index[id]
	if !ok {
		return false
	}
	heap.Remove(&q.h, e.idx)
	delete(q.index, id)
	return true
}

// Reprioritize updates a queued job's priority and re-heapifies it.
// Returns false if the job is not currently queued (e.g. already
// dispatched).
func (q *Queue) Reprioritize(id int64, p domain.Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.index[id]
	if !ok {
		return false
	}
	e.job.Priority = p
	heap.Fix(&q.h, e.idx)
	return true
}

// Len returns the number of jobs currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// Snapshot returns queued jobs in priority order without mutating the
// queue, for status reporting.
func (q *Queue) Snapshot() []*domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.Job, len(q.h))
	cp := make(jobHeap, len(q.h))
	copy(cp, q.h)
	sort.Slice(cp, func(i, j int) bool { return cp.Less(i, j) })
	for i := range cp {
		out[i] = cp[i].job
	}
	return out
}
