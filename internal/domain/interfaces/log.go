package interfaces

import (
	"context"

	domaintypes "github.com/lukeburns/channeler/internal/domain/types"
)

// Log is the append-only log capability the registry caches and replicates.
type Log interface {
	DiscoveryKey() domaintypes.DiscoveryKey
	PublicKey() domaintypes.PublicKey
	Writable() bool
	Metadata() domaintypes.Metadata

	Ready(ctx context.Context) error
	Append(ctx context.Context, data []byte) (uint64, error)
	Get(ctx context.Context, index uint64) ([]byte, error)
	Length() uint64
	Close() error
}
