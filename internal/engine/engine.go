// Package engine implements the Download Engine: the per-job worker that
// fetches articles through the Server Pool, decodes and verifies their
// yEnc payload, and writes them at their target file offset.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jvz-devx/usenet-dl/internal/decoding"
	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/nntp"
	"github.com/jvz-devx/usenet-dl/internal/ratelimiter"
	"github.com/jvz-devx/usenet-dl/internal/retry"
	"github.com/jvz-devx/usenet-dl/internal/store"
)

// eventInterval caps how often progress events are published per job.
const eventInterval = 250 * time.Millisecond

// Engine downloads one Job's articles to disk. It owns nothing beyond
// its own run: the Supervisor constructs one per dispatched job and
// discards it once Run returns.
type Engine struct {
	job      *domain.Job
	files    []domain.File
	tempDir  string

	pool    *nntp.Pool
	limiter *ratelimiter.Limiter
	bus     *eventbus.Bus
	st      *store.Store
	retryP  retry.Policy

	writer *fileWriter

	// FileCompleted, if non-nil, receives the index of every file as it
	// finishes — the DirectUnpack Coordinator's subscription channel.
	FileCompleted chan int

	speed *ewma
	lastEvent time.Time
	eventMu   sync.Mutex
}

// New constructs an Engine for job over files, with articles already
// persisted (the Engine reads/updates article rows directly rather than
// holding its own copy, so concurrent control operations reading job
// progress see consistent state).
func New(job *domain.Job, files []domain.File, tempDir string, pool *nntp.Pool, limiter *ratelimiter.Limiter, bus *eventbus.Bus, st *store.Store, retryP retry.Policy) *Engine {
	return &Engine{
		job:     job,
		files:   files,
		tempDir: tempDir,
		pool:    pool,
		limiter: limiter,
		bus:     bus,
		st:      st,
		retryP:  retryP,
		writer:  newFileWriter(),
		speed:   newEWMA(10 * time.Second),
	}
}

func (e *Engine) filePath(index int) string {
	for _, f := range e.files {
		if f.Index == index {
			return filepath.Join(e.tempDir, fmt.Sprintf("%d_%03d_%s.part", e.job.ID, index, sanitizeBase(f.Name)))
		}
	}
	return filepath.Join(e.tempDir, fmt.Sprintf("%d_%03d.part", e.job.ID, index))
}

// Run dispatches every resumable article for the job, honoring pause and
// cancellation, and returns once all articles have resolved to Done or
// Failed, or the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ctx = domain.WithCancelReason(ctx, domain.CancelReasonNone)

	articles, err := e.st.ListResumable(e.job.ID)
	if err != nil {
		return fmt.Errorf("loading resumable articles: %w", err)
	}

	for i := range e.files {
		if !e.files[i].Completed && !e.files[i].IsAllocated() {
			if err := e.writer.PreAllocate(e.filePath(e.files[i].Index), e.files[i].Size); err != nil {
				return fmt.Errorf("preallocating %s: %w", e.files[i].Name, err)
			}
			e.files[i].MarkAllocated()
		}
	}

	workerCount := e.pool.TotalCapacity() + 2
	if workerCount < 1 {
		workerCount = 1
	}

	jobs := make(chan domain.Article)
	results := make(chan articleResult)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, jobs, results)
		}()
	}

	go func() {
		defer close(jobs)
		for _, a := range articles {
			for {
				if err := e.waitWhilePaused(ctx); err != nil {
					return
				}
				select {
				case jobs <- a:
				case <-ctx.Done():
					return
				}
				break
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(results)
		close(done)
	}()

	fileBytesRemaining := make(map[int]int64, len(e.files))
	for _, f := range e.files {
		fileBytesRemaining[f.Index] = f.Size - f.BytesWritten
	}

	for res := range results {
		e.applyResult(ctx, res, fileBytesRemaining)
	}
	<-done

	if ctx.Err() != nil {
		e.writer.CloseAll()
		if !e.job.CancelHandle().KeepFiles() {
			for _, f := range e.files {
				os.Remove(e.filePath(f.Index))
			}
		}
		return ctx.Err()
	}

	return nil
}

type articleResult struct {
	article domain.Article
	n       int64
	err     error
}

func (e *Engine) worker(ctx context.Context, jobs <-chan domain.Article, results chan<- articleResult) {
	for a := range jobs {
		e.st.UpdateArticleStatus(a.ID, domain.ArticleInFlight, a.Attempts, a.ServerID)
		n, err := e.downloadWithRetry(ctx, a)
		select {
		case results <- articleResult{article: a, n: n, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) downloadWithRetry(ctx context.Context, a domain.Article) (int64, error) {
	attempt := 0
	for {
		n, err := e.fetchOne(ctx, a)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !retry.IsRetryable(err) {
			return 0, err
		}

		delay, ok := e.retryP.Delay(attempt)
		if !ok {
			return 0, err
		}
		attempt++

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (e *Engine) fetchOne(ctx context.Context, a domain.Article) (int64, error) {
	groups := e.groupsForFile(a.FileIndex)

	reader, err := e.pool.Fetch(ctx, &a, groups)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	buf, err := decoding.DecodeArticle(reader, &a)
	if err != nil {
		return 0, err
	}

	if err := e.limiter.Acquire(ctx, uint64(len(buf))); err != nil {
		return 0, err
	}

	path := e.filePath(a.FileIndex)
	if err := e.writer.WriteAt(path, a.Offset, buf); err != nil {
		return 0, err
	}

	return int64(len(buf)), nil
}

func (e *Engine) groupsForFile(index int) []string {
	for _, f := range e.files {
		if f.Index == index {
			return f.Groups
		}
	}
	return nil
}

func (e *Engine) applyResult(ctx context.Context, res articleResult, remaining map[int]int64) {
	if res.err != nil {
		e.job.ArticlesFailed.Add(1)
		e.st.UpdateArticleStatus(res.article.ID, domain.ArticleFailed, res.article.Attempts+1, res.article.ServerID)
		e.maybePublishProgress(false)
		return
	}

	e.job.ArticlesSucceeded.Add(1)
	e.job.BytesWritten.Add(res.n)
	e.speed.Add(res.n)
	e.st.UpdateArticleStatus(res.article.ID, domain.ArticleDone, res.article.Attempts+1, res.article.ServerID)

	remaining[res.article.FileIndex] -= res.n
	if remaining[res.article.FileIndex] <= 0 {
		e.finishFile(res.article.FileIndex)
	}

	e.maybePublishProgress(false)
}

func (e *Engine) finishFile(index int) {
	for i := range e.files {
		if e.files[i].Index == index {
			e.files[i].Completed = true
			e.st.UpdateFileProgress(e.job.ID, index, e.files[i].Size, true)
			path := e.filePath(index)
			e.writer.Close(path, e.files[i].Size)
			e.bus.Publish(domain.FileCompleted{JobID: e.job.ID, FileName: e.files[i].Name})
			if e.FileCompleted != nil {
				select {
				case e.FileCompleted <- index:
				default:
				}
			}
			return
		}
	}
}

func (e *Engine) waitWhilePaused(ctx context.Context) error {
	h := e.job.CancelHandle()
	for h.Valid() && h.Paused() {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// maybePublishProgress emits a Downloading event at most once per
// eventInterval; force bypasses the throttle for terminal updates.
func (e *Engine) maybePublishProgress(force bool) {
	e.eventMu.Lock()
	defer e.eventMu.Unlock()
	if !force && time.Since(e.lastEvent) < eventInterval {
		return
	}
	e.lastEvent = time.Now()

	succeeded := e.job.ArticlesSucceeded.Load()
	failed := e.job.ArticlesFailed.Load()
	total := e.job.ArticlesTotal.Load()
	pendingInFlight := total - succeeded - failed
	if pendingInFlight < 0 {
		pendingInFlight = 0
	}

	denom := succeeded + failed + pendingInFlight
	health := 100.0
	if denom > 0 {
		health = 100.0 * float64(succeeded) / float64(denom)
	}

	percent := 0.0
	if e.job.TotalSize > 0 {
		percent = 100.0 * float64(e.job.BytesWritten.Load()) / float64(e.job.TotalSize)
	}

	e.bus.Publish(domain.Downloading{
		JobID:          e.job.ID,
		Percent:        percent,
		SpeedBps:       e.speed.Rate(),
		HealthPercent:  health,
		FailedArticles: failed,
		TotalArticles:  total,
	})
}

func sanitizeBase(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
