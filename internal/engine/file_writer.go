package engine

import (
	"fmt"
	"os"
	"sync"
)

// fileWriter serializes positional writes per output path behind its own
// mutex while letting unrelated files write concurrently — the same
// per-path-locked-handle-map technique as the legacy download engine's
// writer, adapted to work from absolute paths rather than DownloadFile
// pointers.
type fileWriter struct {
	mu      sync.RWMutex
	handles map[string]*fileHandle
}

type fileHandle struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

func newFileWriter() *fileWriter {
	return &fileWriter{handles: make(map[string]*fileHandle)}
}

func (w *fileWriter) getOrCreate(path string) (*fileHandle, error) {
	w.mu.RLock()
	h, ok := w.handles[path]
	w.mu.RUnlock()
	if ok {
		return h, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if h, ok = w.handles[path]; ok {
		return h, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	h = &fileHandle{f: f, path: path}
	w.handles[path] = h
	return h, nil
}

// PreAllocate sparse-allocates path to size exactly once; callers gate
// repeat calls behind domain.File's allocated flag so this never runs
// twice per file.
func (w *fileWriter) PreAllocate(path string, size int64) error {
	h, err := w.getOrCreate(path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.f.Truncate(size)
}

func (w *fileWriter) WriteAt(path string, offset int64, data []byte) error {
	h, err := w.getOrCreate(path)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.f.WriteAt(data, offset)
	return err
}

// Close finalizes and closes the handle for path, truncating it to
// finalSize when finalSize > 0 in case the last write landed short of
// the pre-allocated size (a truncated upstream article, for instance).
func (w *fileWriter) Close(path string, finalSize int64) error {
	w.mu.Lock()
	h, ok := w.handles[path]
	if ok {
		delete(w.handles, path)
	}
	w.mu.Unlock()
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if finalSize > 0 {
		if err := h.f.Truncate(finalSize); err != nil {
			h.f.Close()
			return err
		}
	}
	if err := h.f.Sync(); err != nil {
		h.f.Close()
		return err
	}
	return h.f.Close()
}

// CloseAll closes every still-open handle without truncation, used when a
// job is cancelled; on shutdown-cancel the temp files are kept as-is for a
// later resume.
func (w *fileWriter) CloseAll() {
	w.mu.RLock()
	paths := make([]string, 0, len(w.handles))
	for p := range w.handles {
		paths = append(paths, p)
	}
	w.mu.RUnlock()

	for _, p := range paths {
		w.Close(p, 0)
	}
}
