package types

import (
	"fmt"
	"strings"
)

// Scope selects between a public channel and one restricted to a peer pair.
type Scope int

const (
	ScopePublic Scope = iota
	ScopePrivate
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopePublic:
		return "public"
	case ScopePrivate:
		return "private"
	default:
		return "unknown"
	}
}

// ChannelKeyPair is a key pair derived for one channel. It is never stored;
// deriving it again from the same inputs yields the same value.
type ChannelKeyPair struct {
	PublicKey    PublicKey
	SecretKey    *ExpandedSecretKey
	DiscoveryKey DiscoveryKey
	Channel      string
	PeerKey      *PublicKey
	Private      bool
}

// Writable reports whether the pair carries signing material.
func (kp ChannelKeyPair) Writable() bool { return kp.SecretKey != nil }

// WriteRequest asks for a channel the local identity authors.
type WriteRequest struct {
	Channel string
	Scope   Scope
	Peer    PublicKey
}

// WritePublic requests the public channel name.
func WritePublic(channel string) WriteRequest {
	return WriteRequest{Channel: channel, Scope: ScopePublic}
}

// WritePrivate requests channel name readable only by peer.
func WritePrivate(channel string, peer PublicKey) WriteRequest {
	return WriteRequest{Channel: channel, Scope: ScopePrivate, Peer: peer}
}

// Validate checks the request without touching storage.
func (r WriteRequest) Validate() error {
	if strings.TrimSpace(r.Channel) == "" {
		return fmt.Errorf("%w: missing channel", ErrValidation)
	}
	switch r.Scope {
	case ScopePublic:
		if !r.Peer.IsZero() {
			return fmt.Errorf("%w: public channel cannot name a peer", ErrValidation)
		}
	case ScopePrivate:
		if r.Peer.IsZero() {
			return fmt.Errorf("%w: private channel requires a peer key", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown scope %d", ErrValidation, r.Scope)
	}
	return nil
}

// ReadRequest asks for a channel authored by someone else (or by ourselves).
type ReadRequest struct {
	Channel string
	Author  PublicKey
	Scope   Scope
}

// ReadPublic requests the public channel name authored by author.
func ReadPublic(channel string, author PublicKey) ReadRequest {
	return ReadRequest{Channel: channel, Author: author, Scope: ScopePublic}
}

// ReadPrivate requests the channel author wrote privately to us.
func ReadPrivate(channel string, author PublicKey) ReadRequest {
	return ReadRequest{Channel: channel, Author: author, Scope: ScopePrivate}
}

// Validate checks the request without touching storage.
func (r ReadRequest) Validate() error {
	if strings.TrimSpace(r.Channel) == "" {
		return fmt.Errorf("%w: missing channel", ErrValidation)
	}
	if r.Author.IsZero() {
		return fmt.Errorf("%w: missing author key", ErrValidation)
	}
	if r.Scope != ScopePublic && r.Scope != ScopePrivate {
		return fmt.Errorf("%w: unknown scope %d", ErrValidation, r.Scope)
	}
	return nil
}

// GetRequest looks a core up without declaring write or read intent.
//
// Exactly one addressing mode is used: a channel of the local identity, an
// explicit public key (optionally with its secret key), or a bare discovery
// key naming a core that already exists in storage.
type GetRequest struct {
	Channel      string
	PublicKey    []byte
	SecretKey    []byte
	DiscoveryKey []byte
}

// Validate checks the request without touching storage.
func (r GetRequest) Validate() error {
	if r.Channel != "" && len(r.SecretKey) > 0 {
		return fmt.Errorf("%w: cannot provide both a channel and a secret key", ErrValidation)
	}
	if r.Channel != "" && len(r.PublicKey) > 0 {
		return fmt.Errorf("%w: cannot provide both a channel and a public key", ErrValidation)
	}
	if len(r.PublicKey) > 0 && len(r.PublicKey) != PublicKeySize {
		return fmt.Errorf("%w: public key must be %d bytes", ErrValidation, PublicKeySize)
	}
	if len(r.SecretKey) > 0 && len(r.SecretKey) != SecretKeySize {
		return fmt.Errorf("%w: secret key must be %d bytes", ErrValidation, SecretKeySize)
	}
	if len(r.SecretKey) > 0 && len(r.PublicKey) == 0 {
		return fmt.Errorf("%w: secret key requires its public key", ErrValidation)
	}
	if len(r.DiscoveryKey) > 0 && len(r.DiscoveryKey) != DiscoveryKeySize {
		return fmt.Errorf("%w: discovery key must be %d bytes", ErrValidation, DiscoveryKeySize)
	}
	if r.Channel == "" && len(r.PublicKey) == 0 && len(r.DiscoveryKey) == 0 {
		return fmt.Errorf("%w: must provide either a channel or a public key", ErrValidation)
	}
	return nil
}
