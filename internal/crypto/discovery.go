package crypto

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/lukeburns/channeler/internal/domain"
)

var discoveryMessage = []byte("hypercore")

// DiscoveryKey returns the one-way network identifier for a public key: a
// BLAKE2b-256 MAC of a fixed message keyed by the public key.
func DiscoveryKey(pub domain.PublicKey) domain.DiscoveryKey {
	h, err := blake2b.New256(pub[:])
	if err != nil {
		// Only fails for keys longer than 64 bytes.
		panic(err)
	}
	h.Write(discoveryMessage)

	var out domain.DiscoveryKey
	copy(out[:], h.Sum(nil))
	return out
}

const fingerprintBytes = 10

// Fingerprint returns a short human-comparable digest of pub, as five
// dash-separated groups of four hex digits.
func Fingerprint(pub domain.PublicKey) string {
	h, _ := blake2b.New(fingerprintBytes, nil)
	h.Write(pub[:])
	digits := hex.EncodeToString(h.Sum(nil))

	groups := make([]string, 0, len(digits)/4)
	for i := 0; i < len(digits); i += 4 {
		groups = append(groups, digits[i:i+4])
	}
	return strings.Join(groups, "-")
}
