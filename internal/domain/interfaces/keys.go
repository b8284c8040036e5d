package interfaces

import domaintypes "github.com/lukeburns/channeler/internal/domain/types"

// KeyDeriver derives channel key pairs from a root identity.
type KeyDeriver interface {
	PublicKey() domaintypes.PublicKey
	DiscoveryKey() domaintypes.DiscoveryKey
	Writable(channel string, peer *domaintypes.PublicKey) (domaintypes.ChannelKeyPair, error)
	Readable(channel string, author domaintypes.PublicKey, private bool) (domaintypes.ChannelKeyPair, error)
	Close() error
}
