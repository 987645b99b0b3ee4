package extraction

import (
	"bufio"
	"os"
	"strings"
)

// CollectPasswords gathers candidate passwords in priority order —
// a previously-successful password, the job's own password, the NZB's
// embedded meta password, then every line of a global password file —
// de-duplicated, with an empty password appended last when tryEmpty is
// set and none of the sources already produced one.
func CollectPasswords(cachedCorrect, jobPassword, nzbMetaPassword string, globalFilePath string, tryEmpty bool) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(pw string) {
		if pw == "" || seen[pw] {
			return
		}
		seen[pw] = true
		out = append(out, pw)
	}

	add(cachedCorrect)
	add(jobPassword)
	add(nzbMetaPassword)

	if globalFilePath != "" {
		if f, err := os.Open(globalFilePath); err == nil {
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				add(strings.TrimSpace(scanner.Text()))
			}
			f.Close()
		}
	}

	if tryEmpty && !seen[""] {
		out = append(out, "")
	}

	return out
}
