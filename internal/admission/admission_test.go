package admission

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/infra/config"
	"github.com/jvz-devx/usenet-dl/internal/queue"
	"github.com/jvz-devx/usenet-dl/internal/store"
)

func newTestController(t *testing.T, cfg *config.Config) (*Controller, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"), filepath.Join(dir, "blobs"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if cfg == nil {
		cfg = &config.Config{
			DownloadDir:        dir,
			DefaultPostProcess: "unpack",
			Duplicate:          config.DuplicateConfig{Action: "block", Methods: []string{"nzb_hash", "job_name"}},
			DiskSpace:          config.DiskSpaceConfig{Enabled: false},
		}
	}

	return New(cfg, st, queue.New(), eventbus.New(0)), st
}

func sampleRelease() *domain.Release {
	return &domain.Release{
		Name:        "Some.Movie.2024",
		ContentHash: "abc123",
		Files: []domain.ReleaseFile{
			{
				Index:   0,
				Subject: `Some.Movie.2024 [01/02] - "Some.Movie.2024.part01.rar" yEnc (1/2)`,
				Groups:  []string{"alt.binaries.test"},
				Segments: []domain.ReleaseSegment{
					{Number: 2, Bytes: 500, MessageID: "<seg2@test>"},
					{Number: 1, Bytes: 500, MessageID: "<seg1@test>"},
				},
			},
		},
	}
}

func TestAdmitPersistsJobFilesAndArticles(t *testing.T) {
	c, st := newTestController(t, nil)

	job, err := c.Admit(sampleRelease(), "Some.Movie.2024.nzb", "", "", domain.PriorityNormal)
	require.NoError(t, err)
	assert.NotZero(t, job.ID)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, int64(1000), job.TotalSize)

	files, err := st.ListFiles(job.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "Some.Movie.2024.part01.rar", files[0].Name)

	assert.Equal(t, 1, c.queue.Len())
}

func TestAdmitOrdersArticlesBySegmentNumber(t *testing.T) {
	c, _ := newTestController(t, nil)

	job, err := c.Admit(sampleRelease(), "Some.Movie.2024.nzb", "", "", domain.PriorityNormal)
	require.NoError(t, err)

	articles, err := c.st.ListResumable(job.ID)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, "<seg1@test>", articles[0].MessageID)
	assert.Equal(t, int64(0), articles[0].Offset)
	assert.Equal(t, "<seg2@test>", articles[1].MessageID)
	assert.Equal(t, int64(500), articles[1].Offset)
}

func TestAdmitBlocksDuplicateByContentHash(t *testing.T) {
	c, _ := newTestController(t, nil)

	_, err := c.Admit(sampleRelease(), "Some.Movie.2024.nzb", "", "", domain.PriorityNormal)
	require.NoError(t, err)

	_, err = c.Admit(sampleRelease(), "Some.Movie.2024.nzb", "", "", domain.PriorityNormal)
	require.Error(t, err)
	var dupErr *domain.DuplicateError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "nzb_hash", dupErr.Method)
}

func TestAdmitAllowsDuplicateWhenActionIsAllow(t *testing.T) {
	cfg := &config.Config{
		DownloadDir:        t.TempDir(),
		DefaultPostProcess: "unpack",
		Duplicate:          config.DuplicateConfig{Action: "allow", Methods: []string{"nzb_hash"}},
		DiskSpace:          config.DiskSpaceConfig{Enabled: false},
	}
	c, _ := newTestController(t, cfg)

	_, err := c.Admit(sampleRelease(), "a.nzb", "", "", domain.PriorityNormal)
	require.NoError(t, err)

	_, err = c.Admit(sampleRelease(), "a.nzb", "", "", domain.PriorityNormal)
	assert.NoError(t, err)
}

func TestAdmitResolvesCategoryDestinationAndPostProcess(t *testing.T) {
	cfg := &config.Config{
		DownloadDir:        "/default",
		DefaultPostProcess: "unpack",
		Duplicate:          config.DuplicateConfig{Action: "warn"},
		DiskSpace:          config.DiskSpaceConfig{Enabled: false},
		Persistence: config.PersistenceConfig{
			Categories: []config.CategoryConfig{
				{Name: "movies", Destination: "/movies", PostProcess: "unpack_and_cleanup"},
			},
		},
	}
	c, _ := newTestController(t, cfg)

	job, err := c.Admit(sampleRelease(), "a.nzb", "movies", "", domain.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, "/movies", job.Destination)
	assert.Equal(t, domain.PostProcessUnpackAndCleanup, job.PostProcess)
}

func TestAdmitFallsBackToDefaultForUnknownCategory(t *testing.T) {
	cfg := &config.Config{
		DownloadDir:        "/default",
		DefaultPostProcess: "verify",
		Duplicate:          config.DuplicateConfig{Action: "warn"},
		DiskSpace:          config.DiskSpaceConfig{Enabled: false},
	}
	c, _ := newTestController(t, cfg)

	job, err := c.Admit(sampleRelease(), "a.nzb", "unknown", "", domain.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, "/default", job.Destination)
	assert.Equal(t, domain.PostProcessVerify, job.PostProcess)
}

func TestAdmitNormalizesNewznabCategoryWhenCallerGivesNone(t *testing.T) {
	cfg := &config.Config{
		DownloadDir:        "/default",
		DefaultPostProcess: "unpack",
		Duplicate:          config.DuplicateConfig{Action: "warn"},
		DiskSpace:          config.DiskSpaceConfig{Enabled: false},
		Persistence: config.PersistenceConfig{
			Categories: []config.CategoryConfig{
				{Name: "Movies > HD", Destination: "/movies-hd", PostProcess: "unpack_and_cleanup"},
			},
		},
	}
	c, _ := newTestController(t, cfg)

	rel := sampleRelease()
	rel.RawCategory = "2040"

	job, err := c.Admit(rel, "a.nzb", "", "", domain.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, "Movies > HD", job.Category)
	assert.Equal(t, "/movies-hd", job.Destination)
	assert.Equal(t, domain.PostProcessUnpackAndCleanup, job.PostProcess)
}

func TestAdmitPrefersExplicitCategoryOverNewznabMeta(t *testing.T) {
	c, _ := newTestController(t, nil)

	rel := sampleRelease()
	rel.RawCategory = "2040"

	job, err := c.Admit(rel, "a.nzb", "tv", "", domain.PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, "tv", job.Category)
}

func TestAdmitRejectsOnInsufficientDiskSpace(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DownloadDir:        dir,
		DefaultPostProcess: "unpack",
		Duplicate:          config.DuplicateConfig{Action: "warn"},
		DiskSpace:          config.DiskSpaceConfig{Enabled: true, MinFreeBytes: 1 << 62, SizeMultiplier: 1.0},
	}
	c, _ := newTestController(t, cfg)

	_, err := c.Admit(sampleRelease(), "a.nzb", "", "", domain.PriorityNormal)
	require.Error(t, err)
	var spaceErr *domain.DiskSpaceError
	require.ErrorAs(t, err, &spaceErr)
}
