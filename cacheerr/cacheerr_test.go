package cacheerr_test

import (
	"errors"
	"testing"

	"github.com/SemPozh/osi/cacheerr"
	"github.com/stretchr/testify/assert"
)

func TestCategoryWithMessage(t *testing.T) {
	err := cacheerr.ErrBadHandle.WithMessage("fd 17")
	assert.Equal(t, "bad file descriptor: fd 17", err.Error())
	assert.ErrorIs(t, err, cacheerr.ErrBadHandle)
}

func TestCategoryWrap(t *testing.T) {
	original := errors.New("pread failed")
	err := cacheerr.ErrIO.Wrap(original)

	assert.ErrorIs(t, err, cacheerr.ErrIO, "category must still be reachable")
	assert.ErrorIs(t, err, original, "original cause must still be reachable")
}

func TestCategoriesAreDistinct(t *testing.T) {
	err := cacheerr.ErrTooManyOpen.WithMessage("descriptor table full")
	assert.NotErrorIs(t, err, cacheerr.ErrIO)
	assert.NotErrorIs(t, err, cacheerr.ErrBadHandle)
}
