package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/lukeburns/channeler/internal/domain"
)

// GenerateIdentity returns a fresh random root identity.
func GenerateIdentity() (domain.Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.Identity{}, err
	}
	var id domain.Identity
	copy(id.SecretKey[:], priv)
	copy(id.PublicKey[:], pub)
	Wipe(priv)
	return id, nil
}

// IdentityFromSecret rebuilds the identity for a stored secret key. The public
// half is recomputed from the seed rather than trusted from storage.
func IdentityFromSecret(sk domain.SecretKey) domain.Identity {
	priv := ed25519.NewKeyFromSeed(sk.Seed())
	defer Wipe(priv)

	var id domain.Identity
	copy(id.SecretKey[:], priv)
	copy(id.PublicKey[:], priv[32:])
	return id
}

// Expand turns a root secret key into its scalar and nonce prefix, the form
// derived channel keys are kept in.
func Expand(sk domain.SecretKey) domain.ExpandedSecretKey {
	h := sha512.Sum512(sk.Seed())
	defer Wipe(h[:])

	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		// SetBytesWithClamping only fails on a wrong input length.
		panic(fmt.Errorf("expand secret key: %w", err))
	}
	var out domain.ExpandedSecretKey
	copy(out[:32], s.Bytes())
	copy(out[32:], h[32:])
	return out
}

// PublicFromExpanded returns the public key matching an expanded secret key.
func PublicFromExpanded(sk domain.ExpandedSecretKey) (domain.PublicKey, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(sk.Scalar())
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}
	var out domain.PublicKey
	copy(out[:], new(edwards25519.Point).ScalarBaseMult(s).Bytes())
	return out, nil
}
