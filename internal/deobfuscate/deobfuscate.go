// Package deobfuscate detects meaningless release/file names and picks a
// better one from the other names a Job carries.
package deobfuscate

import (
	"os"
	"path/filepath"
	"strings"
)

// Minimum string length required to reliably detect high entropy; shorter
// strings can look uniform by chance.
const minEntropyStringLength = 24

// Balanced character-class-ratio bounds for the entropy heuristic: every
// character class (upper, lower, digit) must land close to 1/3 of the
// stem for it to read as genuinely random rather than a structured name.
const (
	entropyRatioLowerBound        = 0.28
	entropyRatioUpperBound        = 0.38
	entropyRatioLowerBoundLetters = 0.31
)

const minHexStringLength = 16

const minConsecutiveConsonants = 8

// IsObfuscated reports whether name looks like a meaningless release
// name rather than a human-chosen one, per the heuristics in minLength
// (below which a name is always considered legitimate).
func IsObfuscated(name string, minLength int) bool {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" {
		stem = name
	}
	if len(stem) < minLength {
		return false
	}

	return isHighEntropy(stem) ||
		looksLikeUUID(stem) ||
		(isHexString(stem) && len(stem) >= minHexStringLength) ||
		hasConsecutiveConsonants(stem, minConsecutiveConsonants)
}

// isHighEntropy requires all three of upper/lower/digit character
// classes to be present and each within a tight band around 1/3 of the
// total — the signature of a randomly generated string, not a
// structured release name like "EpisodeS01E01720pWEBDL".
func isHighEntropy(s string) bool {
	if len(s) < minEntropyStringLength {
		return false
	}

	var upper, lower, digit int
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
			upper++
		case c >= 'a' && c <= 'z':
			lower++
		case c >= '0' && c <= '9':
			digit++
		}
	}

	total := float64(upper + lower + digit)
	if total < float64(minEntropyStringLength) {
		return false
	}
	if upper == 0 || lower == 0 || digit == 0 {
		return false
	}

	upperRatio := float64(upper) / total
	lowerRatio := float64(lower) / total
	digitRatio := float64(digit) / total

	balancedUpper := upperRatio >= entropyRatioLowerBoundLetters && upperRatio <= entropyRatioUpperBound
	balancedLower := lowerRatio >= entropyRatioLowerBoundLetters && lowerRatio <= entropyRatioUpperBound
	balancedDigit := digitRatio >= entropyRatioLowerBound && digitRatio <= entropyRatioUpperBound

	return balancedUpper && balancedLower && balancedDigit
}

// looksLikeUUID matches both hyphenated (8-4-4-4-12) and bare 32-hex-digit
// UUID forms.
func looksLikeUUID(s string) bool {
	if len(s) == 36 && strings.Count(s, "-") == 4 {
		parts := strings.Split(s, "-")
		if len(parts) == 5 &&
			len(parts[0]) == 8 && len(parts[1]) == 4 && len(parts[2]) == 4 &&
			len(parts[3]) == 4 && len(parts[4]) == 12 {
			for _, p := range parts {
				if !isHexString(p) {
					return false
				}
			}
			return true
		}
	}

	if len(s) == 32 {
		return isHexString(s)
	}

	return false
}

func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if !isHexDigit(c) {
			return false
		}
	}
	return true
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// hasConsecutiveConsonants reports whether s contains a run of at least n
// consonant letters with no intervening vowel, digit, or separator.
func hasConsecutiveConsonants(s string, n int) bool {
	run := 0
	for _, c := range s {
		if isConsonant(c) {
			run++
			if run >= n {
				return true
			}
			continue
		}
		run = 0
	}
	return false
}

func isConsonant(c rune) bool {
	lower := c
	if c >= 'A' && c <= 'Z' {
		lower = c + ('a' - 'A')
	}
	if lower < 'a' || lower > 'z' {
		return false
	}
	switch lower {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	default:
		return true
	}
}

// DetermineFinalName picks the best display name for a completed job, in
// priority order: job name, then NZB meta title, then the largest
// extracted file's stem, falling back to the job name even if it's
// itself obfuscated.
func DetermineFinalName(jobName, nzbMetaName string, extractedFiles []string, minLength int) string {
	if !IsObfuscated(jobName, minLength) {
		return jobName
	}

	if nzbMetaName != "" && !IsObfuscated(nzbMetaName, minLength) {
		return nzbMetaName
	}

	if largest := FindLargestFile(extractedFiles); largest != "" {
		stem := strings.TrimSuffix(filepath.Base(largest), filepath.Ext(largest))
		if !IsObfuscated(stem, minLength) {
			return stem
		}
	}

	return jobName
}

// FindLargestFile returns the largest regular file among files, or "" if
// none stat successfully.
func FindLargestFile(files []string) string {
	var largest string
	var largestSize int64

	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil || info.IsDir() {
			continue
		}
		if largest == "" || info.Size() > largestSize {
			largest = f
			largestSize = info.Size()
		}
	}

	return largest
}
