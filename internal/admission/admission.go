// Package admission turns a parsed Release into a persisted, queued Job:
// duplicate detection, category routing, a disk-space precheck, and the
// atomic job/files/articles insert that hands the Job to the Priority
// Queue.
package admission

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/infra/config"
	"github.com/jvz-devx/usenet-dl/internal/nzb"
	"github.com/jvz-devx/usenet-dl/internal/queue"
	"github.com/jvz-devx/usenet-dl/internal/store"
)

// Controller admits parsed Releases into the system.
type Controller struct {
	cfg   *config.Config
	st    *store.Store
	queue *queue.Queue
	bus   *eventbus.Bus
}

// New builds a Controller. cfg is read for every Admit call, so live
// config changes aside from server/scheduler fields would be picked up
// immediately, though nothing in this codebase currently reloads it.
func New(cfg *config.Config, st *store.Store, q *queue.Queue, bus *eventbus.Bus) *Controller {
	return &Controller{cfg: cfg, st: st, queue: q, bus: bus}
}

// Admit validates and persists a Release as a new Job, pushes it onto the
// Priority Queue, and emits Queued. category and password come from the
// admission source (watch folder, RSS feed, manual add) rather than the
// Release itself, since the caller may override either. On a blocked
// duplicate or a failed disk-space check it returns the corresponding
// typed error and admits nothing.
func (c *Controller) Admit(rel *domain.Release, rawName, category, password string, priority domain.Priority) (*domain.Job, error) {
	name := rel.Name
	if name == "" {
		name = rel.MetaName
	}
	if name == "" {
		name = rawName
	}

	if err := c.checkDuplicate(rel, rawName, name); err != nil {
		return nil, err
	}

	if category == "" && rel.RawCategory != "" {
		category = nzb.GetCategoryName(rel.RawCategory)
	}

	destination, postProcess := c.resolveCategory(category)

	size := rel.Size()
	if size == 0 {
		size = rel.TotalSize
	}
	if err := c.checkDiskSpace(destination, size); err != nil {
		return nil, err
	}

	if password == "" {
		password = rel.Password
	}

	job := &domain.Job{
		Name:           name,
		Category:       category,
		Destination:    destination,
		Priority:       priority,
		PostProcess:    postProcess,
		Password:       password,
		NZBContentHash: rel.ContentHash,
		NZBMetaName:    rel.MetaName,
		TotalSize:      size,
		Status:         domain.StatusQueued,
		CreatedAt:      time.Now(),
	}

	files, articles := buildFilesAndArticles(rel)

	if err := c.st.InsertJob(job); err != nil {
		return nil, fmt.Errorf("admission: insert job: %w", err)
	}
	for i := range files {
		files[i].JobID = job.ID
	}
	for i := range articles {
		articles[i].JobID = job.ID
	}
	if err := c.st.InsertFiles(job.ID, files); err != nil {
		return nil, fmt.Errorf("admission: insert files: %w", err)
	}
	if err := c.st.InsertArticles(job.ID, articles); err != nil {
		return nil, fmt.Errorf("admission: insert articles: %w", err)
	}
	job.ArticlesTotal.Store(int64(len(articles)))

	c.queue.Push(job)
	c.bus.Publish(domain.Queued{JobID: job.ID, Name: job.Name})

	return job, nil
}

// buildFilesAndArticles flattens a Release's ReleaseFiles/ReleaseSegments
// into the File/Article rows the store persists. File names come from
// each subject line's quoted filename convention rather than the subject
// itself.
func buildFilesAndArticles(rel *domain.Release) ([]domain.File, []domain.Article) {
	files := make([]domain.File, 0, len(rel.Files))
	var articles []domain.Article

	for _, rf := range rel.Files {
		segments := make([]domain.ReleaseSegment, len(rf.Segments))
		copy(segments, rf.Segments)
		sort.Slice(segments, func(i, j int) bool { return segments[i].Number < segments[j].Number })

		var size int64
		for _, seg := range segments {
			size += seg.Bytes
		}

		files = append(files, domain.File{
			Index:         rf.Index,
			Name:          nzb.ParseFilenameFromSubject(rf.Subject),
			Size:          size,
			TotalSegments: len(rf.Segments),
			Subject:       rf.Subject,
			Groups:        rf.Groups,
		})

		var offset int64
		for _, seg := range segments {
			articles = append(articles, domain.Article{
				FileIndex: rf.Index,
				MessageID: seg.MessageID,
				Number:    seg.Number,
				Offset:    offset,
				Length:    seg.Bytes,
				Status:    domain.ArticlePending,
			})
			offset += seg.Bytes
		}
	}

	return files, articles
}

// checkDuplicate tries each configured fingerprint method in order and
// applies the configured action on the first match.
func (c *Controller) checkDuplicate(rel *domain.Release, rawName, resolvedName string) error {
	methods := c.cfg.Duplicate.Methods
	if len(methods) == 0 {
		methods = []string{"nzb_hash", "nzb_name", "job_name"}
	}

	for _, method := range methods {
		var existing *domain.Job
		var err error

		switch method {
		case "nzb_hash":
			existing, err = c.st.FindByContentHash(rel.ContentHash)
		case "nzb_name":
			existing, err = c.st.FindByName(rawName)
		case "job_name":
			existing, err = c.st.FindByName(resolvedName)
		default:
			continue
		}

		if err != nil || existing == nil {
			continue
		}

		if domain.DuplicateAction(c.cfg.Duplicate.Action) == domain.DuplicateAllow {
			return nil
		}

		c.bus.Publish(domain.DuplicateDetected{
			JobName:      resolvedName,
			Method:       method,
			ExistingName: existing.Name,
		})

		switch domain.DuplicateAction(c.cfg.Duplicate.Action) {
		case domain.DuplicateBlock:
			return &domain.DuplicateError{Method: method, ExistingName: existing.Name}
		case domain.DuplicateAllow:
			return nil
		default: // warn, or unset
			return nil
		}
	}

	return nil
}

// resolveCategory looks up category in the configured category list,
// falling back to the top-level default destination and post-process
// mode for an unmatched or empty category.
func (c *Controller) resolveCategory(category string) (destination string, postProcess domain.PostProcessMode) {
	destination = c.cfg.DownloadDir
	postProcess = domain.ParsePostProcessMode(c.cfg.DefaultPostProcess)

	if category == "" {
		return destination, postProcess
	}

	for _, cat := range c.cfg.Persistence.Categories {
		if cat.Name != category {
			continue
		}
		if cat.Destination != "" {
			destination = cat.Destination
		}
		if cat.PostProcess != "" {
			postProcess = domain.ParsePostProcessMode(cat.PostProcess)
		}
		break
	}

	return destination, postProcess
}

// checkDiskSpace verifies free_bytes >= size*size_multiplier + min_free_bytes
// on the filesystem backing destination.
func (c *Controller) checkDiskSpace(destination string, size int64) error {
	if !c.cfg.DiskSpace.Enabled {
		return nil
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(destination, &stat); err != nil {
		// The destination may not exist yet; the Download Engine creates
		// it on dispatch, so a missing directory isn't itself a reason to
		// block admission.
		return nil
	}

	available := int64(stat.Bavail) * int64(stat.Bsize)

	multiplier := c.cfg.DiskSpace.SizeMultiplier
	if multiplier <= 0 {
		multiplier = 1.0
	}
	required := int64(float64(size)*multiplier) + c.cfg.DiskSpace.MinFreeBytes

	if available < required {
		return &domain.DiskSpaceError{RequiredBytes: required, AvailableBytes: available}
	}

	return nil
}
