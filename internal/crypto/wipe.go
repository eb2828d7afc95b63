package crypto

import (
	"io"
	"runtime"
)

// Wipe erases b in two passes: a random overwrite followed by a zero fill.
func Wipe(b []byte) {
	if len(b) == 0 {
		return
	}
	_, _ = io.ReadFull(randReader, b)
	clear(b)
	runtime.KeepAlive(b)
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
