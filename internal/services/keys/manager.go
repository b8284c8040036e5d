package keys

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/lukeburns/channeler/internal/crypto"
	"github.com/lukeburns/channeler/internal/domain"
)

// Options controls how FromStorage treats an existing root key.
type Options struct {
	// Overwrite replaces any stored key with a new one.
	Overwrite bool
	// SecretKey is written instead of a random key when a new key is needed.
	SecretKey *domain.SecretKey
}

// Manager derives channel key pairs from a root identity.
type Manager struct {
	mu      sync.RWMutex
	id      domain.Identity
	storage domain.ByteStorage
	closed  bool
}

var _ domain.KeyDeriver = (*Manager)(nil)

// New returns a Manager for id that is not backed by storage.
func New(id domain.Identity) *Manager {
	return &Manager{id: crypto.IdentityFromSecret(id.SecretKey)}
}

// FromStorage loads the root identity from s, creating it when the blob is
// missing, shorter than a secret key, or opts.Overwrite is set. The Manager
// takes ownership of s and closes it in Close.
func FromStorage(s domain.ByteStorage, opts Options) (*Manager, error) {
	m, err := fromStorage(s, opts)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return m, nil
}

func fromStorage(s domain.ByteStorage, opts Options) (*Manager, error) {
	if l, ok := s.(domain.Locker); ok {
		if err := l.Lock(); err != nil {
			if errors.Is(err, domain.ErrLocked) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: lock root key: %v", domain.ErrStorage, err)
		}
	}

	size, err := s.Stat()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: stat root key: %v", domain.ErrStorage, err)
	}

	if err != nil || size < domain.SecretKeySize || opts.Overwrite {
		var id domain.Identity
		if opts.SecretKey != nil {
			id = crypto.IdentityFromSecret(*opts.SecretKey)
		} else {
			id, err = crypto.GenerateIdentity()
			if err != nil {
				return nil, err
			}
		}
		if err := s.Write(0, id.SecretKey.Slice()); err != nil {
			return nil, fmt.Errorf("%w: write root key: %v", domain.ErrStorage, err)
		}
		return &Manager{id: id, storage: s}, nil
	}

	b, err := s.Read(0, domain.SecretKeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: read root key: %v", domain.ErrStorage, err)
	}
	defer crypto.Wipe(b)

	var sk domain.SecretKey
	copy(sk[:], b)
	m := &Manager{id: crypto.IdentityFromSecret(sk), storage: s}
	crypto.Wipe(sk[:])
	return m, nil
}

// PublicKey returns the root public key.
func (m *Manager) PublicKey() domain.PublicKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id.PublicKey
}

// DiscoveryKey returns the discovery key of the root public key.
func (m *Manager) DiscoveryKey() domain.DiscoveryKey {
	return crypto.DiscoveryKey(m.PublicKey())
}

// SecretKey returns a copy of the root secret key.
func (m *Manager) SecretKey() (domain.SecretKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return domain.SecretKey{}, fmt.Errorf("key manager: %w", domain.ErrClosed)
	}
	return m.id.SecretKey, nil
}

// Writable derives the key pair for a channel this identity authors. A nil
// peer selects the public channel.
func (m *Manager) Writable(channel string, peer *domain.PublicKey) (domain.ChannelKeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return domain.ChannelKeyPair{}, fmt.Errorf("key manager: %w", domain.ErrClosed)
	}
	return crypto.DeriveWritable(m.id.SecretKey, channel, peer)
}

// Readable derives the read-side key pair for author's channel. With private
// set the channel must have been written privately to this identity.
func (m *Manager) Readable(channel string, author domain.PublicKey, private bool) (domain.ChannelKeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return domain.ChannelKeyPair{}, fmt.Errorf("key manager: %w", domain.ErrClosed)
	}
	if !private {
		return crypto.DeriveReadable(author, channel, nil)
	}
	sk := m.id.SecretKey
	defer crypto.Wipe(sk[:])
	return crypto.DeriveReadable(author, channel, &sk)
}

// Fingerprint returns a short fingerprint of the root public key.
func (m *Manager) Fingerprint() string {
	pub := m.PublicKey()
	return crypto.Fingerprint(pub)
}

// Close wipes the secret key and releases the key storage. It is safe to call
// more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	crypto.Wipe(m.id.SecretKey[:])
	if m.storage == nil {
		return nil
	}
	if err := m.storage.Close(); err != nil {
		return fmt.Errorf("%w: close root key: %v", domain.ErrStorage, err)
	}
	return nil
}
