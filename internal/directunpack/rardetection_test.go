package directunpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainRARIsFirstVolume(t *testing.T) {
	assert.True(t, isFirstRARVolume("movie.rar"))
	assert.True(t, isFirstRARVolume("Movie.RAR"))
	assert.True(t, isFirstRARVolume("some.file.name.rar"))
}

func TestPart01RARIsFirstVolume(t *testing.T) {
	assert.True(t, isFirstRARVolume("movie.part01.rar"))
	assert.True(t, isFirstRARVolume("movie.part001.rar"))
	assert.True(t, isFirstRARVolume("movie.part0001.rar"))
	assert.True(t, isFirstRARVolume("movie.part1.rar"))
	assert.True(t, isFirstRARVolume("Movie.Part01.RAR"))
}

func TestPart02RARIsNotFirstVolume(t *testing.T) {
	assert.False(t, isFirstRARVolume("movie.part02.rar"))
	assert.False(t, isFirstRARVolume("movie.part002.rar"))
	assert.False(t, isFirstRARVolume("movie.part10.rar"))
	assert.False(t, isFirstRARVolume("movie.part2.rar"))
}

func TestOldStyleSplitIsNotFirstVolume(t *testing.T) {
	assert.False(t, isFirstRARVolume("movie.r00"))
	assert.False(t, isFirstRARVolume("movie.r01"))
	assert.False(t, isFirstRARVolume("movie.r99"))
}

func TestNonRARFilesAreNotFirstVolume(t *testing.T) {
	assert.False(t, isFirstRARVolume("movie.mkv"))
	assert.False(t, isFirstRARVolume("movie.par2"))
	assert.False(t, isFirstRARVolume("movie.zip"))
	assert.False(t, isFirstRARVolume("movie.7z"))
}

func TestIsRARFileDetectsAllRARExtensions(t *testing.T) {
	assert.True(t, isRARFile("movie.rar"))
	assert.True(t, isRARFile("movie.part01.rar"))
	assert.True(t, isRARFile("movie.r00"))
	assert.True(t, isRARFile("movie.r01"))
	assert.True(t, isRARFile("movie.r99"))
	assert.True(t, isRARFile("Movie.RAR"))
}

func TestIsRARFileRejectsNonRAR(t *testing.T) {
	assert.False(t, isRARFile("movie.mkv"))
	assert.False(t, isRARFile("movie.par2"))
	assert.False(t, isRARFile("movie.zip"))
}

func TestIsPAR2FileWorks(t *testing.T) {
	assert.True(t, isPAR2File("movie.par2"))
	assert.True(t, isPAR2File("movie.vol00+01.PAR2"))
	assert.False(t, isPAR2File("movie.rar"))
	assert.False(t, isPAR2File("movie.par"))
}
