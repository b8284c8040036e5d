package crypto

import (
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/lukeburns/channeler/internal/domain"
)

// SignatureSize is the size of a signature produced by Sign.
const SignatureSize = ed25519.SignatureSize

// Sign produces a standard Ed25519 signature with an expanded secret key.
// Signatures verify with crypto/ed25519 against pub.
func Sign(sk domain.ExpandedSecretKey, pub domain.PublicKey, msg []byte) ([]byte, error) {
	a, err := edwards25519.NewScalar().SetCanonicalBytes(sk.Scalar())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}

	h := sha512.New()
	h.Write(sk.Prefix())
	h.Write(msg)
	r, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return nil, err
	}
	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	h.Reset()
	h.Write(R)
	h.Write(pub[:])
	h.Write(msg)
	k, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return nil, err
	}
	S := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	sig := make([]byte, 0, SignatureSize)
	sig = append(sig, R...)
	sig = append(sig, S.Bytes()...)
	return sig, nil
}

// Verify checks sig over msg with pub.
func Verify(pub domain.PublicKey, msg, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}
