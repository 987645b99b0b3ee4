// Package postprocess implements the verify-repair-extract-move-cleanup
// pipeline that runs once a Job's download (or DirectUnpack) has settled.
package postprocess

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/segmentio/ksuid"

	"github.com/jvz-devx/usenet-dl/internal/deobfuscate"
	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/extraction"
	"github.com/jvz-devx/usenet-dl/internal/infra/config"
	"github.com/jvz-devx/usenet-dl/internal/parity"
	"github.com/jvz-devx/usenet-dl/internal/store"
)

// Pipeline runs the mode-gated stage sequence for a single job.
type Pipeline struct {
	cfg        *config.Config
	bus        *eventbus.Bus
	st         *store.Store
	parityH    parity.Handler
	dispatcher *extraction.Dispatcher
}

func New(cfg *config.Config, bus *eventbus.Bus, st *store.Store, parityH parity.Handler, dispatcher *extraction.Dispatcher) *Pipeline {
	return &Pipeline{cfg: cfg, bus: bus, st: st, parityH: parityH, dispatcher: dispatcher}
}

// Run executes the prefix of verify/repair/extract/move/cleanup selected
// by job.PostProcess, operating on files under jobDir.
func (p *Pipeline) Run(ctx context.Context, job *domain.Job, jobDir string) error {
	p.setStatus(job, domain.StatusPostProcessing)

	// DirectUnpack already extracted every volume set with zero article
	// failures: verify/repair/extract would be redundant, so only move
	// and (if configured) cleanup run. extracted_count = 0 is treated as
	// a vacuous completion and falls through to the full pipeline.
	if job.PostProcess != domain.PostProcessNone &&
		job.DirectUnpackState == domain.DirectUnpackSucceeded && job.DirectUnpackExtracted > 0 {
		if err := p.move(ctx, job, jobDir); err != nil {
			return p.fail(job, domain.StageMove, err, true)
		}
		if job.PostProcess == domain.PostProcessUnpackAndCleanup {
			p.cleanup(job.ID, jobDir)
		}
		p.setStatus(job, domain.StatusComplete)
		p.bus.Publish(domain.Complete{JobID: job.ID, Path: job.Destination})
		return nil
	}

	if job.PostProcess == domain.PostProcessNone {
		if err := p.move(ctx, job, jobDir); err != nil {
			return p.fail(job, domain.StageMove, err, true)
		}
		p.setStatus(job, domain.StatusComplete)
		p.bus.Publish(domain.Complete{JobID: job.ID, Path: job.Destination})
		return nil
	}

	damaged, err := p.verify(ctx, job, jobDir)
	if err != nil {
		return p.fail(job, domain.StageVerify, err, true)
	}

	if job.PostProcess >= domain.PostProcessRepair && damaged {
		if err := p.repair(ctx, job, jobDir); err != nil {
			return p.fail(job, domain.StageRepair, err, true)
		}
	}

	if job.PostProcess >= domain.PostProcessUnpack {
		if err := p.extract(ctx, job, jobDir); err != nil {
			return p.fail(job, domain.StageExtract, err, true)
		}
	}

	if err := p.move(ctx, job, jobDir); err != nil {
		return p.fail(job, domain.StageMove, err, true)
	}

	if job.PostProcess == domain.PostProcessUnpackAndCleanup {
		p.cleanup(job.ID, jobDir)
	}

	p.setStatus(job, domain.StatusComplete)
	p.bus.Publish(domain.Complete{JobID: job.ID, Path: job.Destination})
	return nil
}

// Reprocess re-runs the full pipeline from Verify, used when an operator
// wants another pass after fixing something external to the job (e.g.
// adding missing PAR2 volumes to jobDir by hand).
func (p *Pipeline) Reprocess(ctx context.Context, job *domain.Job, jobDir string) error {
	return p.Run(ctx, job, jobDir)
}

// Reextract jumps straight to the Extract stage, skipping verify/repair —
// used when a password becomes available after an earlier AllPasswordsFailed.
func (p *Pipeline) Reextract(ctx context.Context, job *domain.Job, jobDir string) error {
	if err := p.extract(ctx, job, jobDir); err != nil {
		return p.fail(job, domain.StageExtract, err, true)
	}
	if err := p.move(ctx, job, jobDir); err != nil {
		return p.fail(job, domain.StageMove, err, true)
	}
	if job.PostProcess == domain.PostProcessUnpackAndCleanup {
		p.cleanup(job.ID, jobDir)
	}
	p.setStatus(job, domain.StatusComplete)
	p.bus.Publish(domain.Complete{JobID: job.ID, Path: job.Destination})
	return nil
}

func (p *Pipeline) fail(job *domain.Job, stage domain.PostProcessStage, err error, filesKept bool) error {
	job.LastError = err.Error()
	p.setStatus(job, domain.StatusFailed)
	p.bus.Publish(domain.Failed{JobID: job.ID, Stage: stage, Error: err.Error(), FilesKept: filesKept})
	return &domain.StageError{Stage: stage, Err: err, FilesKept: filesKept}
}

// setStatus updates job's in-memory status and persists it, swallowing
// store errors the same way the rest of this pipeline treats persistence
// as best-effort bookkeeping alongside the authoritative event stream.
func (p *Pipeline) setStatus(job *domain.Job, status domain.JobStatus) {
	job.Status = status
	if p.st != nil {
		p.st.UpdateJobStatus(job.ID, status, job.LastError)
	}
}

// verify dispatches to the configured ParityHandler and reports whether
// damage was found. Completeness is read from the parsed result, never
// inferred from a plain ok/error split.
func (p *Pipeline) verify(ctx context.Context, job *domain.Job, jobDir string) (bool, error) {
	p.bus.Publish(domain.Verifying{JobID: job.ID})

	if !p.parityH.Capabilities().CanVerify {
		p.bus.Publish(domain.VerifySkipped{JobID: job.ID})
		return false, nil
	}

	result, err := p.parityH.Verify(ctx, jobDir)
	if err != nil {
		return false, err
	}

	damaged := !result.IsComplete
	p.bus.Publish(domain.VerifyComplete{JobID: job.ID, Damaged: damaged})

	if damaged && !result.Repairable {
		return true, fmt.Errorf("%w", domain.ErrInsufficientRecoveryBlocks)
	}

	return damaged, nil
}

func (p *Pipeline) repair(ctx context.Context, job *domain.Job, jobDir string) error {
	p.bus.Publish(domain.Repairing{JobID: job.ID})

	if !p.parityH.Capabilities().CanRepair {
		p.bus.Publish(domain.RepairSkipped{JobID: job.ID})
		return nil
	}

	result, err := p.parityH.Repair(ctx, jobDir)
	if err != nil {
		return err
	}

	p.bus.Publish(domain.RepairComplete{JobID: job.ID, Success: result.Success})
	if !result.Success {
		return fmt.Errorf("par2 repair failed: %w", result.Error)
	}
	return nil
}

// extract walks jobDir for archives and tries each candidate password,
// recursing into nested archives, then runs the namer over the result.
func (p *Pipeline) extract(ctx context.Context, job *domain.Job, jobDir string) error {
	entries, err := os.ReadDir(jobDir)
	if err != nil {
		return err
	}

	passwords := extraction.CollectPasswords(
		job.LastSuccessfulPassword, job.Password, "", p.cfg.GlobalPasswordFile, p.cfg.TryEmptyPassword)
	if len(job.JobPasswordList) > 0 {
		merged := append([]string{}, passwords...)
		merged = append(merged, job.JobPasswordList...)
		passwords = dedupe(merged)
	}

	var allExtracted []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(jobDir, e.Name())
		if !extraction.IsArchive(path, p.cfg.Extraction.ArchiveExtensions) {
			continue
		}

		p.bus.Publish(domain.Extracting{JobID: job.ID, Archive: e.Name(), Percent: 0})

		// Each top-level archive gets its own extraction subdirectory, so
		// two archives that happen to produce same-named output files
		// never collide before Move has a chance to resolve collisions
		// per the configured policy.
		archiveDest := filepath.Join(jobDir, fmt.Sprintf("extracted_%s_%s",
			ksuid.New().String(), strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))))
		if err := os.MkdirAll(archiveDest, 0755); err != nil {
			return err
		}

		files, usedPassword, err := p.dispatcher.ExtractRecursive(ctx, path, archiveDest, passwords, 0)
		if err != nil {
			return err
		}
		allExtracted = append(allExtracted, files...)

		if usedPassword != "" && usedPassword != job.LastSuccessfulPassword {
			job.LastSuccessfulPassword = usedPassword
			if p.st != nil {
				p.st.UpdateLastSuccessfulPassword(job.ID, usedPassword)
			}
		}

		if p.cfg.Extraction.DeleteArchives {
			os.Remove(path)
		}
	}

	p.bus.Publish(domain.ExtractComplete{JobID: job.ID})

	if p.cfg.Deobfuscation.Enabled && len(allExtracted) > 0 {
		finalName := deobfuscate.DetermineFinalName(job.Name, job.NZBMetaName, allExtracted, p.cfg.Deobfuscation.MinLength)
		job.Name = finalName
	}

	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// move relocates every regular file under jobDir — at the top level and
// inside any per-archive extraction subdirectory Extract created — into
// the job's destination directory, resolving name collisions per
// cfg.FileCollision. Files are flattened to destination by base name,
// matching how extraction already disambiguates same-named output
// across archives via their own unique subdirectories.
func (p *Pipeline) move(ctx context.Context, job *domain.Job, jobDir string) error {
	p.bus.Publish(domain.Moving{JobID: job.ID})

	if err := os.MkdirAll(job.Destination, 0755); err != nil {
		return fmt.Errorf("%w: creating destination: %v", domain.ErrInvalidPath, err)
	}

	var srcs []string
	err := filepath.WalkDir(jobDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		srcs = append(srcs, path)
		return nil
	})
	if err != nil {
		return err
	}

	for _, src := range srcs {
		name := filepath.Base(src)
		dst, skip, err := resolveCollision(filepath.Join(job.Destination, name), p.cfg.FileCollision)
		if err != nil {
			return err
		}
		if skip {
			continue
		}
		if err := moveFile(src, dst); err != nil {
			return fmt.Errorf("moving %s: %w", name, err)
		}
	}

	return nil
}

// resolveCollision decides the destination path for dst under the given
// collision policy, returning skip=true when the Skip policy applies and
// an existing file should be preserved untouched.
func resolveCollision(dst, policy string) (string, bool, error) {
	if _, err := os.Stat(dst); os.IsNotExist(err) {
		return dst, false, nil
	} else if err != nil {
		return "", false, err
	}

	switch policy {
	case "overwrite":
		return dst, false, nil
	case "skip":
		return "", true, nil
	default: // rename
		ext := filepath.Ext(dst)
		base := strings.TrimSuffix(dst, ext)
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				return candidate, false, nil
			}
		}
	}
}

// moveFile renames src to dst, falling back to a copy-then-remove when
// the rename fails because they live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := copyBytes(out, in); err != nil {
		return err
	}
	return os.Remove(src)
}
