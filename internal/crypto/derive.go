package crypto

import (
	"crypto/sha512"
	"fmt"
	"io"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/hkdf"

	"github.com/lukeburns/channeler/internal/domain"
)

const (
	publicInfo  = "channeler/v1/public/"
	privateInfo = "channeler/v1/private/"
)

// DeriveWritable derives the key pair root authors channel with. When peer is
// set the channel is private to that peer: the tweak mixes in the
// Diffie-Hellman value between root and peer, which only the two of them can
// compute.
func DeriveWritable(root domain.SecretKey, channel string, peer *domain.PublicKey) (domain.ChannelKeyPair, error) {
	id := IdentityFromSecret(root)
	sk := Expand(root)
	defer Wipe(sk[:])

	var shared []byte
	if peer != nil {
		s, err := SharedSecret(sk, *peer)
		if err != nil {
			return domain.ChannelKeyPair{}, err
		}
		shared = s[:]
		defer Wipe(shared)
	}

	t, err := channelTweak(id.PublicKey, channel, shared)
	if err != nil {
		return domain.ChannelKeyPair{}, err
	}
	pub, err := TweakPublic(id.PublicKey, t)
	if err != nil {
		return domain.ChannelKeyPair{}, err
	}
	secret, err := TweakSecret(sk, t)
	if err != nil {
		return domain.ChannelKeyPair{}, err
	}

	kp := domain.ChannelKeyPair{
		PublicKey:    pub,
		SecretKey:    &secret,
		DiscoveryKey: DiscoveryKey(pub),
		Channel:      channel,
		Private:      peer != nil,
	}
	if peer != nil {
		p := *peer
		kp.PeerKey = &p
	}
	return kp, nil
}

// DeriveReadable derives the read-side key matching author's writable
// derivation of channel. For a private channel self must be the reader's own
// root secret; the author's public key alone is not enough.
func DeriveReadable(author domain.PublicKey, channel string, self *domain.SecretKey) (domain.ChannelKeyPair, error) {
	var shared []byte
	if self != nil {
		sk := Expand(*self)
		s, err := SharedSecret(sk, author)
		Wipe(sk[:])
		if err != nil {
			return domain.ChannelKeyPair{}, err
		}
		shared = s[:]
		defer Wipe(shared)
	}

	t, err := channelTweak(author, channel, shared)
	if err != nil {
		return domain.ChannelKeyPair{}, err
	}
	pub, err := TweakPublic(author, t)
	if err != nil {
		return domain.ChannelKeyPair{}, err
	}

	a := author
	return domain.ChannelKeyPair{
		PublicKey:    pub,
		DiscoveryKey: DiscoveryKey(pub),
		Channel:      channel,
		PeerKey:      &a,
		Private:      self != nil,
	}, nil
}

// SharedSecret computes the cofactor-cleared Diffie-Hellman point between an
// expanded secret key and another party's Ed25519 public key.
func SharedSecret(sk domain.ExpandedSecretKey, other domain.PublicKey) ([32]byte, error) {
	var out [32]byte

	p, err := new(edwards25519.Point).SetBytes(other[:])
	if err != nil {
		return out, fmt.Errorf("%w: peer key is not a curve point", domain.ErrInvalidKey)
	}
	if new(edwards25519.Point).MultByCofactor(p).Equal(edwards25519.NewIdentityPoint()) == 1 {
		return out, fmt.Errorf("%w: peer key has small order", domain.ErrInvalidKey)
	}
	a, err := edwards25519.NewScalar().SetCanonicalBytes(sk.Scalar())
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}

	q := new(edwards25519.Point).ScalarMult(a, p)
	copy(out[:], new(edwards25519.Point).MultByCofactor(q).Bytes())
	return out, nil
}

// TweakPublic returns pub + t·G.
func TweakPublic(pub domain.PublicKey, t *edwards25519.Scalar) (domain.PublicKey, error) {
	p, err := new(edwards25519.Point).SetBytes(pub[:])
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("%w: public key is not a curve point", domain.ErrInvalidKey)
	}
	sum := new(edwards25519.Point).Add(p, new(edwards25519.Point).ScalarBaseMult(t))

	var out domain.PublicKey
	copy(out[:], sum.Bytes())
	return out, nil
}

// TweakSecret returns the expanded key for scalar a + t, with a nonce prefix
// bound to t so derived keys never share signing nonces with their parent.
func TweakSecret(sk domain.ExpandedSecretKey, t *edwards25519.Scalar) (domain.ExpandedSecretKey, error) {
	a, err := edwards25519.NewScalar().SetCanonicalBytes(sk.Scalar())
	if err != nil {
		return domain.ExpandedSecretKey{}, fmt.Errorf("%w: %v", domain.ErrInvalidKey, err)
	}
	a = edwards25519.NewScalar().Add(a, t)

	h := sha512.New()
	h.Write(sk.Prefix())
	h.Write(t.Bytes())
	prefix := h.Sum(nil)
	defer Wipe(prefix)

	var out domain.ExpandedSecretKey
	copy(out[:32], a.Bytes())
	copy(out[32:], prefix[:32])
	return out, nil
}

func channelTweak(author domain.PublicKey, channel string, shared []byte) (*edwards25519.Scalar, error) {
	info := publicInfo + channel
	if shared != nil {
		info = privateInfo + channel
	}
	r := hkdf.New(sha512.New, shared, author[:], []byte(info))

	var wide [64]byte
	if _, err := io.ReadFull(r, wide[:]); err != nil {
		return nil, err
	}
	defer Wipe(wide[:])
	return edwards25519.NewScalar().SetUniformBytes(wide[:])
}
