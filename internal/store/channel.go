package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/lukeburns/channeler/internal/core"
	"github.com/lukeburns/channeler/internal/crypto"
	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/services/keys"
)

// target is a resolved request: the key the core is cached under and what
// to open it with.
type target struct {
	dk      domain.DiscoveryKey
	keyPair *domain.ChannelKeyPair
	meta    domain.Metadata
}

type deriveFunc func(km *keys.Manager) (target, error)

// Channel is a validated request for a core. It is cheap to create; Open
// performs the resolution.
type Channel struct {
	store  *Store
	derive deriveFunc

	mu   sync.Mutex
	core *core.Core
}

// Open resolves the channel's core and waits until it is ready.
func (ch *Channel) Open(ctx context.Context) (*core.Core, error) {
	c, err := ch.store.resolveCore(ctx, ch.derive)
	if err != nil {
		return nil, err
	}
	ch.mu.Lock()
	ch.core = c
	ch.mu.Unlock()
	return c, nil
}

// Core returns the core from the last successful Open, or nil.
func (ch *Channel) Core() *core.Core {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.core
}

// Writable requests a channel authored by the store's identity.
func (s *Store) Writable(req domain.WriteRequest) (*Channel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &Channel{store: s, derive: func(km *keys.Manager) (target, error) {
		var peer *domain.PublicKey
		if req.Scope == domain.ScopePrivate {
			p := req.Peer
			peer = &p
		}
		kp, err := km.Writable(req.Channel, peer)
		if err != nil {
			return target{}, err
		}
		return s.channelTarget(kp), nil
	}}, nil
}

// Readable requests a channel authored by req.Author. A private read only
// matches a channel the author wrote privately to this store's identity.
func (s *Store) Readable(req domain.ReadRequest) (*Channel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &Channel{store: s, derive: func(km *keys.Manager) (target, error) {
		kp, err := km.Readable(req.Channel, req.Author, req.Scope == domain.ScopePrivate)
		if err != nil {
			return target{}, err
		}
		return s.channelTarget(kp), nil
	}}, nil
}

// Get requests a core without naming write or read intent: a public channel
// of this identity, an explicit key pair, or a discovery key that must
// already exist in storage.
func (s *Store) Get(req domain.GetRequest) (*Channel, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch {
	case req.Channel != "":
		return s.Writable(domain.WritePublic(req.Channel))

	case len(req.PublicKey) > 0:
		kp, err := explicitKeyPair(req)
		if err != nil {
			return nil, err
		}
		return &Channel{store: s, derive: func(*keys.Manager) (target, error) {
			return target{dk: kp.DiscoveryKey, keyPair: &kp, meta: s.baseMetadata()}, nil
		}}, nil

	default:
		dk, err := domain.DiscoveryKeyFromBytes(req.DiscoveryKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		return &Channel{store: s, derive: func(*keys.Manager) (target, error) {
			return target{dk: dk}, nil
		}}, nil
	}
}

func explicitKeyPair(req domain.GetRequest) (domain.ChannelKeyPair, error) {
	pub, err := domain.PublicKeyFromBytes(req.PublicKey)
	if err != nil {
		return domain.ChannelKeyPair{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	kp := domain.ChannelKeyPair{PublicKey: pub, DiscoveryKey: crypto.DiscoveryKey(pub)}

	if len(req.DiscoveryKey) > 0 && !bytes.Equal(req.DiscoveryKey, kp.DiscoveryKey[:]) {
		return domain.ChannelKeyPair{}, fmt.Errorf("%w: discovery key does not match public key", domain.ErrValidation)
	}
	if len(req.SecretKey) > 0 {
		var sk domain.ExpandedSecretKey
		copy(sk[:], req.SecretKey)
		if got, err := crypto.PublicFromExpanded(sk); err != nil || got != pub {
			return domain.ChannelKeyPair{}, fmt.Errorf("%w: secret key does not match public key", domain.ErrValidation)
		}
		kp.SecretKey = &sk
	}
	return kp, nil
}

func (s *Store) baseMetadata() domain.Metadata {
	return domain.Metadata{domain.MetaNamespace: s.opts.Namespace}
}

func (s *Store) channelTarget(kp domain.ChannelKeyPair) target {
	meta := s.baseMetadata()
	meta[domain.MetaChannel] = kp.Channel
	if kp.PeerKey != nil {
		meta[domain.MetaPeerKey] = kp.PeerKey.String()
		meta[domain.MetaPrivate] = strconv.FormatBool(kp.Private)
	}
	return target{dk: kp.DiscoveryKey, keyPair: &kp, meta: meta}
}

// corePath shards cores by the first two bytes of their discovery key.
func corePath(dk domain.DiscoveryKey) string {
	h := dk.String()
	return "cores/" + h[0:2] + "/" + h[2:4] + "/" + h
}

// resolveCore returns the live core for the request, creating it if needed.
func (s *Store) resolveCore(ctx context.Context, derive deriveFunc) (*core.Core, error) {
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	for {
		t, err := derive(s.keys)
		if err != nil {
			return nil, err
		}

		c, wait, err := s.lookupOrCreate(t)
		if err != nil {
			return nil, err
		}
		if wait == nil {
			err = c.Ready(ctx)
			switch {
			case err == nil && t.keyPair != nil && t.keyPair.Writable() && !c.Writable():
				// Cached without a secret key; write capability is fixed
				// when a core is built, so replace it.
				s.log.Debug().Str("dk", t.dk.String()).Msg("reopening read-only core for writing")
				if cerr := c.Close(); cerr != nil {
					s.log.Warn().Err(cerr).Str("dk", t.dk.String()).Msg("closing read-only core")
				}
			case err == nil:
				return c, nil
			case t.keyPair == nil || !errors.Is(err, domain.ErrCoreNotFound):
				return nil, err
			}
			// Otherwise a lookup by discovery key alone got there first and
			// found nothing on disk; it closes itself and we create the core.
			wait = c.Done()
		}

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// lookupOrCreate returns the cached core for t.dk or inserts a new one. When
// the cached core is closing it returns the channel to wait on instead.
func (s *Store) lookupOrCreate(t target) (*core.Core, <-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return nil, nil, fmt.Errorf("store: %w", domain.ErrClosed)
	}
	if c, ok := s.cores[t.dk]; ok {
		if c.Closing() {
			return nil, c.Done(), nil
		}
		return c, nil, nil
	}

	c := core.New(s.provider, corePath(t.dk), core.Options{
		KeyPair:         t.keyPair,
		DiscoveryKey:    t.dk,
		Metadata:        t.meta,
		CreateIfMissing: t.keyPair != nil,
	})
	s.cores[t.dk] = c
	for _, st := range s.streams {
		if _, err := c.Replicate(st); err != nil && !errors.Is(err, domain.ErrClosed) {
			s.log.Warn().Err(err).Str("stream", st.ID()).Msg("attach new core")
		}
	}
	c.OnClose(func() {
		s.mu.Lock()
		if s.cores[t.dk] == c {
			delete(s.cores, t.dk)
		}
		s.mu.Unlock()
	})

	s.log.Debug().
		Str("dk", t.dk.String()).
		Str("channel", t.meta[domain.MetaChannel]).
		Bool("lookup", t.keyPair == nil).
		Msg("core created")
	return c, nil, nil
}
