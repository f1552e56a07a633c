package vfs_test

import (
	"errors"
	"testing"

	"github.com/ButterDevelop/c-virtual-file-system"
	"github.com/stretchr/testify/assert"
)

func TestDriverErrorWithMessage(t *testing.T) {
	newErr := vfs.ErrExists.WithMessage("asdfqwerty")
	assert.Equal(t, "already exists: asdfqwerty", newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, vfs.ErrExists)
}

func TestDriverErrorWrap(t *testing.T) {
	originalErr := errors.New("original error")
	newErr := vfs.ErrNoSpace.WrapError(originalErr)
	expectedMessage := "no space left on device: original error"

	assert.EqualValues(t, expectedMessage, newErr.Error(), "error message is wrong")
	assert.ErrorIs(t, newErr, originalErr, "original error not set as cause")
}
