package directunpack

import (
	"os"
	"path/filepath"

	"github.com/jvz-devx/usenet-dl/internal/domain"
	"github.com/jvz-devx/usenet-dl/internal/eventbus"
	"github.com/jvz-devx/usenet-dl/internal/parity"
	"github.com/jvz-devx/usenet-dl/internal/store"
)

// renameState tracks the 16KB-MD5-to-filename mapping built from a job's
// PAR2 File Description packets, used to fix obfuscated filenames as
// their matching articles complete mid-download.
type renameState struct {
	hashToName     map[[16]byte]string
	metadataLoaded bool
}

func newRenameState() *renameState {
	return &renameState{hashToName: make(map[[16]byte]string)}
}

// loadMetadata parses a newly completed PAR2 file's File Description
// packets and merges them into the hash map. Safe to call once per PAR2
// file in a multi-PAR2-file set — entries accumulate.
func (r *renameState) loadMetadata(par2Path string) (int, error) {
	entries, err := parity.ParseFileEntries(filepath.Dir(par2Path))
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		r.hashToName[e.Hash16K] = e.Filename
	}
	r.metadataLoaded = true
	return len(entries), nil
}

// tryRename computes the 16KB MD5 of the file at tempDir/currentName and,
// if it matches a known PAR2 entry under a different name, renames it on
// disk and in persistence. Returns the new name, or "" if no rename
// happened.
func (r *renameState) tryRename(jobID int64, fileIndex int, currentName, tempDir string, st *store.Store, bus *eventbus.Bus) string {
	if !r.metadataLoaded || len(r.hashToName) == 0 {
		return ""
	}

	filePath := filepath.Join(tempDir, currentName)
	if _, err := os.Stat(filePath); err != nil {
		return ""
	}

	hash, err := parity.Compute16KMD5(filePath)
	if err != nil {
		return ""
	}

	realName, ok := r.hashToName[hash]
	if !ok || realName == currentName {
		return ""
	}

	newPath := filepath.Join(tempDir, realName)
	if err := os.Rename(filePath, newPath); err != nil {
		return ""
	}

	if st != nil {
		st.RenameFile(jobID, fileIndex, realName, true)
	}
	bus.Publish(domain.DirectRenamed{JobID: jobID, OldName: currentName, NewName: realName})

	return realName
}
