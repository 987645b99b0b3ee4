package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/infra/config"
	"github.com/jvz-devx/usenet-dl/internal/queue"
	"github.com/jvz-devx/usenet-dl/internal/ratelimiter"
	"github.com/jvz-devx/usenet-dl/internal/retry"
	"github.com/jvz-devx/usenet-dl/internal/store"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"), filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := &config.Config{
		TempDir:                filepath.Join(dir, "incomplete"),
		MaxConcurrentDownloads: 2,
	}

	s := New(cfg, st, queue.New(), eventbus.New(0), ratelimiter.New(0, 0), nil, retry.DefaultPolicy(), nil, nil)
	return s, st
}

func TestPauseAndResumeQueueToggleState(t *testing.T) {
	s, _ := newTestSupervisor(t)
	assert.False(t, s.isPaused())
	s.PauseQueue()
	assert.True(t, s.isPaused())
	s.ResumeQueue()
	assert.False(t, s.isPaused())
}

func TestRecoverDemotesRunningJobsAndReloadsQueue(t *testing.T) {
	s, st := newTestSupervisor(t)

	running := &domain.Job{Name: "running-job", Status: domain.StatusRunning, Priority: domain.PriorityNormal}
	require.NoError(t, st.InsertJob(running))

	queued := &domain.Job{Name: "queued-job", Status: domain.StatusQueued, Priority: domain.PriorityHigh}
	require.NoError(t, st.InsertJob(queued))

	complete := &domain.Job{Name: "done-job", Status: domain.StatusComplete, Priority: domain.PriorityNormal}
	require.NoError(t, st.InsertJob(complete))

	require.NoError(t, s.Recover())

	assert.Equal(t, 2, s.queue.Len())

	reloaded, err := st.GetJob(running.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, reloaded.Status)

	popped := s.queue.Pop()
	require.NotNil(t, popped)
	assert.Equal(t, "queued-job", popped.Name) // high priority dispatched first
}

func TestCancelRemovesQueuedJob(t *testing.T) {
	s, st := newTestSupervisor(t)

	job := &domain.Job{Name: "job", Status: domain.StatusQueued, Priority: domain.PriorityNormal}
	require.NoError(t, st.InsertJob(job))
	s.queue.Push(job)

	assert.True(t, s.Cancel(job.ID, false))
	assert.Equal(t, 0, s.queue.Len())

	reloaded, err := st.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRemoved, reloaded.Status)
}

func TestCancelReportsFalseForUnknownJob(t *testing.T) {
	s, _ := newTestSupervisor(t)
	assert.False(t, s.Cancel(999, false))
}

func TestReprioritizeUpdatesQueuedJob(t *testing.T) {
	s, st := newTestSupervisor(t)

	job := &domain.Job{Name: "job", Status: domain.StatusQueued, Priority: domain.PriorityNormal}
	require.NoError(t, st.InsertJob(job))
	s.queue.Push(job)

	assert.True(t, s.Reprioritize(job.ID, domain.PriorityHigh))
	assert.Equal(t, domain.PriorityHigh, s.queue.Peek().Priority)
}
