package nzb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilenameFromSubjectQuoted(t *testing.T) {
	name := ParseFilenameFromSubject(`Some.Movie.2024 [01/50] - "Some.Movie.2024.part01.rar" yEnc (1/100)`)
	assert.Equal(t, "Some.Movie.2024.part01.rar", name)
}

func TestParseFilenameFromSubjectNoQuotesFallsBackToHash(t *testing.T) {
	name := ParseFilenameFromSubject("no quotes here at all")
	assert.True(t, strings.HasPrefix(name, "file_"))
	assert.Equal(t, name, ParseFilenameFromSubject("no quotes here at all"))
}
