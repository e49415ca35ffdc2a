// Package zeroize wipes secret key material from memory once it is no longer
// needed. Sessions and handshake contexts call these helpers on teardown so
// keys cannot be recovered from memory dumps.
package zeroize

import (
	"runtime"
)

// Key wipes a 32-byte key in place.
//
// The byte-by-byte loop prevents the compiler from eliding the store, and
// runtime.KeepAlive pins the array until the wipe completes.
func Key(key *[32]byte) {
	if key == nil {
		return
	}

	for i := range key {
		key[i] = 0
	}

	runtime.KeepAlive(key)
}

// Bytes wipes a variable-length byte slice in place.
func Bytes(data []byte) {
	if len(data) == 0 {
		return
	}

	for i := range data {
		data[i] = 0
	}

	runtime.KeepAlive(data)
}

// IsZeroed reports whether every byte of data is zero. Test helper; checking
// a live key for zero may leak timing.
func IsZeroed(data []byte) bool {
	if data == nil {
		return false
	}

	for i := range data {
		if data[i] != 0 {
			return false
		}
	}

	return true
}
