// Package crypto exposes the key primitives used by channeler.
//
// Contents
//
//   - Root identity generation and expansion (GenerateIdentity,
//     IdentityFromSecret, Expand)
//   - Discovery keys: a keyed BLAKE2b-256 hash that names a core on the
//     network without revealing its public key (DiscoveryKey)
//   - Channel derivation by additive tweaking of Ed25519 keys
//     (DeriveWritable, DeriveReadable, TweakPublic, TweakSecret)
//   - Diffie-Hellman on the Edwards curve for private channels (SharedSecret)
//   - Ed25519 signing with expanded keys (Sign, Verify)
//   - Best-effort memory wiping (Wipe) and short fingerprints (Fingerprint)
//
// # Derivation
//
// A channel tweak t is HKDF-SHA512 over the optional shared secret, salted with
// the author's public key and bound to the channel name. The channel public key
// is A + t·G and its secret scalar a + t, so a reader who only knows A can
// compute the public key of any public channel. A private channel adds
// DH(author, peer) to the HKDF input; the author computes a·B, the peer b·A,
// and nobody else can produce either.
//
// # Notes
//
// Derived secret keys are expanded (scalar || prefix) and cannot be converted
// back to a seed, so signing goes through Sign rather than crypto/ed25519.
package crypto
