package common

import "runtime"

// SecureZero overwrites b with zeros in a way the compiler will not elide.
// Used to scrub raw stat buffers before reuse.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b[0])
}
