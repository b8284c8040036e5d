package keys

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/lukeburns/channeler/internal/crypto"
	"github.com/lukeburns/channeler/internal/domain"
)

const (
	// sealFormatVersion is the newest envelope version Unseal understands.
	sealFormatVersion = 1

	minPassphraseLength  = 12
	longPassphraseLength = 20
)

var (
	// ErrWrongPassphrase is returned when the passphrase is wrong or the
	// envelope was modified.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key")

	// ErrWeakPassphrase is returned when a passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"weak passphrase: use %d or more characters, or %d mixing three of upper, lower, digits and symbols",
		longPassphraseLength, minPassphraseLength,
	)
)

// envelope is the JSON form of a sealed root key.
type envelope struct {
	V         int    `json:"v"`
	PublicKey string `json:"public_key"`
	Salt      []byte `json:"salt"`
	N         int    `json:"scrypt_N"`
	R         int    `json:"scrypt_r"`
	P         int    `json:"scrypt_p"`
	Cipher    []byte `json:"cipher"`
}

// Tunables for scrypt key derivation.
var scryptN, scryptR, scryptP = 1 << 15, 8, 1

// Seal encrypts sk under passphrase. The public key is stored in the clear so
// a backup can be identified without unsealing it.
func Seal(passphrase string, sk domain.SecretKey) ([]byte, error) {
	if !isSecurePassphrase(passphrase) {
		return nil, ErrWeakPassphrase
	}

	var salt [16]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return nil, err
	}
	key, err := scrypt.Key([]byte(passphrase), salt[:], scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte // zero nonce; the salt makes the key unique
	ct := aead.Seal(nil, nonce[:], sk.Slice(), salt[:])

	return json.MarshalIndent(envelope{
		V:         sealFormatVersion,
		PublicKey: crypto.IdentityFromSecret(sk).PublicKey.String(),
		Salt:      salt[:],
		N:         scryptN,
		R:         scryptR,
		P:         scryptP,
		Cipher:    ct,
	}, "", "  ")
}

// Unseal decrypts an envelope produced by Seal.
func Unseal(passphrase string, b []byte) (domain.SecretKey, error) {
	var out domain.SecretKey

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return out, fmt.Errorf("%w: sealed key: %v", domain.ErrInvalidKey, err)
	}
	if env.V > sealFormatVersion {
		return out, fmt.Errorf("unsupported sealed key version %d", env.V)
	}

	key, err := scrypt.Key([]byte(passphrase), env.Salt, env.N, env.R, env.P, chacha20poly1305.KeySize)
	if err != nil {
		return out, err
	}
	defer crypto.Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return out, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	pt, err := aead.Open(nil, nonce[:], env.Cipher, env.Salt)
	if err != nil {
		return out, ErrWrongPassphrase
	}
	defer crypto.Wipe(pt)
	if len(pt) != domain.SecretKeySize {
		return out, fmt.Errorf("%w: sealed key has %d bytes", domain.ErrInvalidKey, len(pt))
	}
	copy(out[:], pt)

	if env.PublicKey != "" && crypto.IdentityFromSecret(out).PublicKey.String() != env.PublicKey {
		crypto.Wipe(out[:])
		return domain.SecretKey{}, fmt.Errorf("%w: sealed key does not match its public key", domain.ErrKeyMismatch)
	}
	return out, nil
}

// isSecurePassphrase accepts a long passphrase outright, or a shorter one
// that mixes at least three character classes.
func isSecurePassphrase(passphrase string) bool {
	n := utf8.RuneCountInString(passphrase)
	if n >= longPassphraseLength {
		return true
	}
	if n < minPassphraseLength {
		return false
	}

	var classes [4]bool
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			classes[0] = true
		case unicode.IsLower(r):
			classes[1] = true
		case unicode.IsDigit(r):
			classes[2] = true
		default:
			classes[3] = true
		}
	}
	mixed := 0
	for _, ok := range classes {
		if ok {
			mixed++
		}
	}
	return mixed >= 3
}
