// Package vfstest provides an in-memory io.ReadWriteSeeker backing store
// for tests, grounded on testing/images.go's LoadDiskImage in the teacher
// driver — the same xaionaro-go/bytesextra-backed stream, without the
// compressed-fixture decoding that helper layers on top (this filesystem's
// tests synthesize images from scratch rather than loading fixtures).
package vfstest

import (
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// NewImage returns a fixed-size, zero-filled in-memory backing store large
// enough to host a filesystem of totalSize bytes, alongside the raw buffer
// backing it (for asserting on bytes directly after an operation).
func NewImage(totalSize int) (io.ReadWriteSeeker, []byte) {
	buf := make([]byte, totalSize)
	return bytesextra.NewReadWriteSeeker(buf), buf
}
