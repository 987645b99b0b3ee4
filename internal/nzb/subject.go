package nzb

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// ParseFilenameFromSubject extracts the real output filename from a
// Usenet subject line. Subjects conventionally carry the filename in
// quotes, e.g. `Some.Movie.2024 [01/50] - "Some.Movie.2024.part01.rar"
// yEnc (1/100)`. If no quoted filename is found, a hash of the subject
// stands in for a stable, collision-resistant name.
func ParseFilenameFromSubject(subject string) string {
	if start := strings.IndexByte(subject, '"'); start >= 0 {
		rest := subject[start+1:]
		if end := strings.IndexByte(rest, '"'); end >= 0 {
			if filename := rest[:end]; filename != "" {
				return filename
			}
		}
	}

	h := fnv.New64a()
	h.Write([]byte(subject))
	return fmt.Sprintf("file_%x", h.Sum64())
}
