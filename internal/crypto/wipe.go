package crypto

import "crypto/subtle"

// Wipe zeroes b in place. Copies the runtime or the caller made elsewhere
// are out of reach.
func Wipe(b []byte) {
	for len(b) > 0 {
		n := min(len(b), len(zeroPage))
		subtle.ConstantTimeCopy(1, b[:n], zeroPage[:n])
		b = b[n:]
	}
}

var zeroPage [256]byte
