package directunpack

import "strings"

// isFirstRARVolume reports whether filename names the first volume of a
// RAR set. DirectUnpack only ever triggers extraction from a first
// volume — unrar walks the rest of the set on its own from there.
//
// Recognized conventions:
//   - archive.rar (single file, or first volume of old-style naming)
//   - archive.part01.rar, archive.part001.rar (new-style multi-volume)
//   - archive.r00 is NOT first; archive.rar is, for old-style split sets
func isFirstRARVolume(filename string) bool {
	lower := strings.ToLower(filename)

	if !strings.HasSuffix(lower, ".rar") {
		return false
	}

	stem := strings.TrimSuffix(lower, ".rar")
	partIdx := strings.LastIndex(stem, ".part")
	if partIdx < 0 {
		return true
	}

	numStr := stem[partIdx+5:]
	if numStr == "" {
		return true
	}
	for _, c := range numStr {
		if c < '0' || c > '9' {
			return true
		}
	}

	num := 0
	for _, c := range numStr {
		num = num*10 + int(c-'0')
	}
	return num == 1
}

// isRARFile reports whether filename is any part of a RAR set, first
// volume or not.
func isRARFile(filename string) bool {
	lower := strings.ToLower(filename)
	if strings.HasSuffix(lower, ".rar") {
		return true
	}
	if len(lower) < 4 {
		return false
	}
	ext := lower[len(lower)-4:]
	if !strings.HasPrefix(ext, ".r") {
		return false
	}
	for _, c := range ext[2:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// isPAR2File reports whether filename is a PAR2 index or recovery volume.
func isPAR2File(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".par2")
}
