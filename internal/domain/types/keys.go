package types

import (
	"encoding/hex"
	"fmt"
)

const (
	// PublicKeySize is the size of an Ed25519 public key.
	PublicKeySize = 32
	// SecretKeySize is the size of a root secret key (seed || public key).
	SecretKeySize = 64
	// ExpandedSecretKeySize is the size of a derived signing key (scalar || prefix).
	ExpandedSecretKeySize = 64
	// DiscoveryKeySize is the size of a discovery key.
	DiscoveryKeySize = 32
)

// PublicKey is an Ed25519 public key.
type PublicKey [PublicKeySize]byte

// Slice returns the key as a []byte.
func (k PublicKey) Slice() []byte { return k[:] }

// String returns the lowercase hex form of the key.
func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }

// IsZero reports whether the key is unset.
func (k PublicKey) IsZero() bool { return k == PublicKey{} }

// SecretKey is a root Ed25519 private key in crypto/ed25519 layout.
type SecretKey [SecretKeySize]byte

// Slice returns the key as a []byte.
func (k SecretKey) Slice() []byte { return k[:] }

// Seed returns the 32-byte seed half of the key.
func (k SecretKey) Seed() []byte { return k[:32] }

// ExpandedSecretKey is a derived signing key: a reduced scalar followed by
// the 32-byte nonce prefix. It cannot be turned back into a seed.
type ExpandedSecretKey [ExpandedSecretKeySize]byte

// Slice returns the key as a []byte.
func (k ExpandedSecretKey) Slice() []byte { return k[:] }

// Scalar returns the scalar half of the key.
func (k ExpandedSecretKey) Scalar() []byte { return k[:32] }

// Prefix returns the nonce prefix half of the key.
func (k ExpandedSecretKey) Prefix() []byte { return k[32:] }

// DiscoveryKey is the network identifier of a core.
type DiscoveryKey [DiscoveryKeySize]byte

// Slice returns the key as a []byte.
func (k DiscoveryKey) Slice() []byte { return k[:] }

// String returns the lowercase hex form of the key.
func (k DiscoveryKey) String() string { return hex.EncodeToString(k[:]) }

// ParsePublicKey decodes a hex public key.
func ParsePublicKey(s string) (PublicKey, error) {
	var out PublicKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("%w: public key: %v", ErrInvalidKey, err)
	}
	return PublicKeyFromBytes(b)
}

// PublicKeyFromBytes copies b into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var out PublicKey
	if len(b) != PublicKeySize {
		return out, fmt.Errorf("%w: public key: want %d bytes, got %d", ErrInvalidKey, PublicKeySize, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// ParseSecretKey decodes a hex root secret key.
func ParseSecretKey(s string) (SecretKey, error) {
	var out SecretKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("%w: secret key: %v", ErrInvalidKey, err)
	}
	if len(b) != SecretKeySize {
		return out, fmt.Errorf("%w: secret key: want %d bytes, got %d", ErrInvalidKey, SecretKeySize, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// DiscoveryKeyFromBytes copies b into a DiscoveryKey.
func DiscoveryKeyFromBytes(b []byte) (DiscoveryKey, error) {
	var out DiscoveryKey
	if len(b) != DiscoveryKeySize {
		return out, fmt.Errorf("%w: discovery key: want %d bytes, got %d", ErrInvalidKey, DiscoveryKeySize, len(b))
	}
	copy(out[:], b)
	return out, nil
}
