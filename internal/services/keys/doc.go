// Package keys owns the root identity of a store and derives channel key
// pairs from it.
//
// The root secret key lives in the first 64 bytes of a ByteStorage blob. A
// missing or short blob is replaced with a fresh identity; anything else is
// loaded as-is. The blob is locked for the life of the Manager so a second
// process opening the same store cannot overwrite it.
//
// Seal and Unseal wrap a root secret in a passphrase-protected envelope for
// backup outside the store.
package keys
