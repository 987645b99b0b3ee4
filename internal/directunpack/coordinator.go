// Package directunpack overlaps archive extraction with an in-progress
// download: it watches for completed files, renames them via PAR2
// metadata when DirectRename is enabled, and extracts first RAR volumes
// as soon as their sets are downloaded.
package directunpack

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/extraction"
	"github.com/jvz-devx/usenet-dl/internal/infra/config"
	"github.com/jvz-devx/usenet-dl/internal/store"
)

// Result is the outcome of a completed Coordinator run.
type Result struct {
	State          domain.DirectUnpackState
	ExtractedFiles []string
}

// Coordinator polls for completed files and extracts archives while a
// Job's Download Engine is still running.
type Coordinator struct {
	job    *domain.Job
	jobDir string

	cfg                 config.DirectUnpackConfig
	globalPasswordFile  string
	tryEmptyPassword    bool

	bus        *eventbus.Bus
	st         *store.Store
	dispatcher *extraction.Dispatcher

	// fileCompleted receives a file index every time the Engine finishes
	// writing a file; the Coordinator also wakes on its own ticker so a
	// slow or bursty completion stream never stalls extraction checks.
	fileCompleted <-chan int
}

// New builds a Coordinator for job, reading archives out of jobDir (the
// same temp directory the Engine writes into).
func New(job *domain.Job, jobDir string, cfg *config.Config, bus *eventbus.Bus, st *store.Store, dispatcher *extraction.Dispatcher, fileCompleted <-chan int) *Coordinator {
	return &Coordinator{
		job:                job,
		jobDir:             jobDir,
		cfg:                cfg.DirectUnpack,
		globalPasswordFile: cfg.GlobalPasswordFile,
		tryEmptyPassword:   cfg.TryEmptyPassword,
		bus:                bus,
		st:                 st,
		dispatcher:         dispatcher,
		fileCompleted:      fileCompleted,
	}
}

// Run drives the coordinator loop until the download completes, is
// cancelled, or an article failure is observed. It never returns an
// error: every failure mode is reported through the event bus and the
// persisted direct_unpack_state, and the normal Post-Process pipeline is
// always the fallback.
func (c *Coordinator) Run(ctx context.Context) Result {
	c.job.DirectUnpackState = domain.DirectUnpackActive
	if c.st != nil {
		c.st.UpdateDirectUnpackState(c.job.ID, domain.DirectUnpackActive, 0)
	}
	c.bus.Publish(domain.DirectUnpackStarted{JobID: c.job.ID})

	extractDest := filepath.Join(c.jobDir, "extracted")
	if err := os.MkdirAll(extractDest, 0755); err != nil {
		return c.cancel("failed to create extraction directory")
	}

	pollInterval := time.Duration(c.cfg.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	rename := newRenameState()
	var extractedFiles []string
	var pendingFirstVolumes []string
	processed := make(map[int]bool)

	for {
		select {
		case <-ctx.Done():
			return c.finishCancelled("cancelled", extractedFiles)

		case <-c.fileCompleted:
			if c.checkFailuresAndPoll(rename, processed, &pendingFirstVolumes, &extractedFiles, extractDest) {
				return c.finishCancelled("article failures detected", extractedFiles)
			}

		case <-ticker.C:
			if c.checkFailuresAndPoll(rename, processed, &pendingFirstVolumes, &extractedFiles, extractDest) {
				return c.finishCancelled("article failures detected", extractedFiles)
			}
			if c.downloadSettled(processed) && len(pendingFirstVolumes) == 0 {
				return c.finishCompleted(extractedFiles)
			}
		}
	}
}

// checkFailuresAndPoll returns true if a cancel-worthy article failure
// was observed; otherwise it pulls newly completed files from the store
// and processes each one (DirectRename, then first-RAR-volume
// extraction), and retries any volumes that weren't ready last time.
func (c *Coordinator) checkFailuresAndPoll(rename *renameState, processed map[int]bool, pending *[]string, extracted *[]string, extractDest string) bool {
	if c.job.ArticlesFailed.Load() > 0 {
		return true
	}

	files, err := c.st.ListFiles(c.job.ID)
	if err != nil {
		return false
	}

	for _, f := range files {
		if !f.Completed || processed[f.Index] {
			continue
		}
		processed[f.Index] = true

		if c.cfg.DirectRename && isPAR2File(f.Name) {
			par2Path := filepath.Join(c.jobDir, f.Name)
			if _, err := rename.loadMetadata(par2Path); err == nil {
				c.retroactiveRename(rename, files, processed)
			}
		}

		currentName := f.Name
		if c.cfg.DirectRename && !isPAR2File(f.Name) {
			if renamed := rename.tryRename(c.job.ID, f.Index, f.Name, c.jobDir, c.st, c.bus); renamed != "" {
				currentName = renamed
			}
		}

		if isFirstRARVolume(currentName) {
			switch c.tryExtract(currentName, extractDest, extracted) {
			case extractVolumeNotReady:
				*pending = append(*pending, currentName)
			}
		}
	}

	still := (*pending)[:0]
	for _, v := range *pending {
		if c.tryExtract(v, extractDest, extracted) == extractVolumeNotReady {
			still = append(still, v)
		}
	}
	*pending = still

	return false
}

// retroactiveRename re-attempts DirectRename on files that completed
// before PAR2 metadata became available.
func (c *Coordinator) retroactiveRename(rename *renameState, files []domain.File, processed map[int]bool) {
	for _, f := range files {
		if !processed[f.Index] || isPAR2File(f.Name) {
			continue
		}
		rename.tryRename(c.job.ID, f.Index, f.Name, c.jobDir, c.st, c.bus)
	}
}

type extractOutcome int

const (
	extractSuccess extractOutcome = iota
	extractVolumeNotReady
	extractFailed
)

// tryExtract attempts to extract a first RAR volume. A missing next
// volume is treated as "not ready yet" and retried on a later tick;
// any other failure is non-fatal here since normal Post-Process
// extraction is always the fallback.
func (c *Coordinator) tryExtract(filename, extractDest string, extracted *[]string) extractOutcome {
	archivePath := filepath.Join(c.jobDir, filename)
	if _, err := os.Stat(archivePath); err != nil {
		return extractFailed
	}

	c.bus.Publish(domain.DirectUnpackExtracting{JobID: c.job.ID, Archive: filename})

	cachedPassword := c.job.LastSuccessfulPassword
	if c.st != nil {
		if cands, err := c.st.GetPasswordCandidates(c.job.ID); err == nil && len(cands) > 0 && cachedPassword == "" {
			cachedPassword = cands[0]
		}
	}
	passwords := extraction.CollectPasswords(cachedPassword, c.job.Password, "", c.globalPasswordFile, c.tryEmptyPassword)

	files, usedPassword, err := c.dispatcher.ExtractRecursive(context.Background(), archivePath, extractDest, passwords, 0)
	if err != nil {
		if isVolumeNotReadyError(err.Error()) {
			return extractVolumeNotReady
		}
		return extractFailed
	}

	if usedPassword != "" && c.st != nil {
		c.st.UpdateLastSuccessfulPassword(c.job.ID, usedPassword)
		c.job.LastSuccessfulPassword = usedPassword
	}

	c.bus.Publish(domain.DirectUnpackExtracted{JobID: c.job.ID, Archive: filename})

	*extracted = append(*extracted, files...)
	c.job.DirectUnpackExtracted++
	return extractSuccess
}

// downloadSettled reports whether every article the job knows about has
// resolved (succeeded or failed) — the signal that no more files will
// ever complete, so the coordinator loop can stop.
func (c *Coordinator) downloadSettled(processed map[int]bool) bool {
	total := c.job.ArticlesTotal.Load()
	if total == 0 {
		return false
	}
	resolved := c.job.ArticlesSucceeded.Load() + c.job.ArticlesFailed.Load()
	return resolved >= total
}

func (c *Coordinator) cancel(reason string) Result {
	return c.finishCancelled(reason, nil)
}

func (c *Coordinator) finishCancelled(reason string, extracted []string) Result {
	c.job.DirectUnpackState = domain.DirectUnpackCancelledState
	if c.st != nil {
		c.st.UpdateDirectUnpackState(c.job.ID, domain.DirectUnpackCancelledState, c.job.DirectUnpackExtracted)
	}
	c.bus.Publish(domain.DirectUnpackCancelled{JobID: c.job.ID})
	return Result{State: domain.DirectUnpackCancelledState, ExtractedFiles: extracted}
}

func (c *Coordinator) finishCompleted(extracted []string) Result {
	c.job.DirectUnpackState = domain.DirectUnpackSucceeded
	if c.st != nil {
		c.st.UpdateDirectUnpackState(c.job.ID, domain.DirectUnpackSucceeded, c.job.DirectUnpackExtracted)
	}
	c.bus.Publish(domain.DirectUnpackComplete{JobID: c.job.ID, ExtractedCount: c.job.DirectUnpackExtracted})
	return Result{State: domain.DirectUnpackSucceeded, ExtractedFiles: extracted}
}

// isVolumeNotReadyError recognizes the extractor error text produced
// when the next RAR volume in a set hasn't been downloaded yet, so the
// coordinator knows to retry later rather than giving up on the set.
func isVolumeNotReadyError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "cannot find volume") ||
		strings.Contains(lower, "next volume") ||
		strings.Contains(lower, "missing volume") ||
		strings.Contains(lower, "no such file") ||
		strings.Contains(lower, "volume not found")
}
