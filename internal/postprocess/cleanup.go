package postprocess

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// cleanup deletes files matching the configured target and archive
// extensions and, if delete_samples is set, any sample-named directory.
// Errors here are warnings only — cleanup never fails the job.
func (p *Pipeline) cleanup(jobID int64, jobDir string) {
	p.bus.Publish(domain.Cleaning{JobID: jobID})

	entries, err := os.ReadDir(jobDir)
	if err != nil {
		return
	}

	for _, e := range entries {
		path := filepath.Join(jobDir, e.Name())

		if e.IsDir() {
			if p.cfg.DeleteSamples && matchesSampleFolder(e.Name(), p.cfg.Cleanup.SampleFolderNames) {
				os.RemoveAll(path)
			}
			continue
		}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(e.Name()), "."))
		if containsFold(p.cfg.Cleanup.TargetExtensions, ext) || containsFold(p.cfg.Cleanup.ArchiveExtensions, ext) {
			os.Remove(path)
		}
	}
}

func matchesSampleFolder(name string, candidates []string) bool {
	for _, c := range candidates {
		if name == c {
			return true
		}
	}
	return false
}

func containsFold(list []string, ext string) bool {
	for _, e := range list {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
