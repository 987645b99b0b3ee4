package extraction

import (
	"errors"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// ErrUnknownArchiveType is returned when an archive's extension doesn't
// match any registered extractor.
var ErrUnknownArchiveType = errors.New("unknown archive type")

func isWrongPassword(err error) bool {
	return errors.Is(err, domain.ErrWrongPassword)
}
