package directunpack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVolumeNotReadyError(t *testing.T) {
	assert.True(t, isVolumeNotReadyError("Cannot find volume movie.part02.rar"))
	assert.True(t, isVolumeNotReadyError("ERROR: next volume required"))
	assert.True(t, isVolumeNotReadyError("open movie.part02.rar: no such file or directory"))

	assert.False(t, isVolumeNotReadyError("wrong password"))
	assert.False(t, isVolumeNotReadyError("corrupt archive"))
}

func TestNewRenameStateStartsEmpty(t *testing.T) {
	r := newRenameState()
	assert.False(t, r.metadataLoaded)
	assert.Empty(t, r.hashToName)
	assert.Equal(t, "", r.tryRename(1, 0, "file.bin", t.TempDir(), nil, nil))
}
