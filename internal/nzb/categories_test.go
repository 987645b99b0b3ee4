package nzb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCategoryNameMapsKnownIDs(t *testing.T) {
	assert.Equal(t, "Movies > HD", GetCategoryName("2040"))
	assert.Equal(t, "TV", GetCategoryName("5000"))
	assert.Equal(t, "XXX", GetCategoryName("6000"))
}

func TestGetCategoryNameFallsBackToOtherForUnknownID(t *testing.T) {
	assert.Equal(t, "Other", GetCategoryName("99999"))
	assert.Equal(t, "Other", GetCategoryName(""))
}
