package parity

import (
	"os"
	"path/filepath"
	"strings"
)

// findPar2Indexes returns every top-level .par2 index file in dir (not the
// numbered volume files like foo.vol003+004.par2, just foo.par2).
func findPar2Indexes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".par2") {
			continue
		}
		if strings.Contains(strings.ToLower(name), ".vol") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// findAllPar2Files returns every .par2 file (index and recovery volumes)
// in dir, used by the metadata parser which needs to scan volumes too
// since File Description packets are duplicated across them.
func findAllPar2Files(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".par2") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
