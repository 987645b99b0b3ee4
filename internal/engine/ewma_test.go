package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEWMARateIsZeroBeforeAnySample(t *testing.T) {
	e := newEWMA(time.Second)
	assert.Equal(t, 0.0, e.Rate())
}

func TestEWMAFirstAddSeedsClockWithoutRate(t *testing.T) {
	e := newEWMA(time.Second)
	e.Add(1000)
	assert.Equal(t, 0.0, e.Rate())
}

func TestEWMARateDecaysToZeroAfterWindowElapses(t *testing.T) {
	e := newEWMA(10 * time.Millisecond)
	e.Add(1000)
	time.Sleep(5 * time.Millisecond)
	e.Add(1000)
	assert.Greater(t, e.Rate(), 0.0)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0.0, e.Rate())
}

func TestSanitizeBaseReplacesFilesystemUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeBase("a/b:c"))
	assert.Equal(t, "movie_2024_.mkv", sanitizeBase("movie<2024>.mkv"))
	assert.Equal(t, "plain.mkv", sanitizeBase("plain.mkv"))
}
