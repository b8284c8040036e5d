package types

// Metadata keys recorded with every core created for a channel.
const (
	MetaChannel   = "channeler/name"
	MetaNamespace = "channeler/namespace"
	MetaPeerKey   = "channeler/peerkey"
	MetaPrivate   = "channeler/private"
)

// DefaultNamespace is used when a store is opened without one.
const DefaultNamespace = "channeler/default"

// Metadata is the introspection record stored alongside a core.
type Metadata map[string]string

// Clone returns a copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
