package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lukeburns/channeler/internal/crypto"
	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/logging"
	"github.com/lukeburns/channeler/internal/mux"
)

const (
	keyFile    = "key"
	secretFile = "secret_key"
	metaFile   = "meta"
	dataFile   = "data"
)

// Options selects the core to open. Either KeyPair or DiscoveryKey must be
// set; with only a discovery key the core must already exist in storage.
type Options struct {
	KeyPair         *domain.ChannelKeyPair
	DiscoveryKey    domain.DiscoveryKey
	Metadata        domain.Metadata
	CreateIfMissing bool
	Logger          *zerolog.Logger
}

// Core is a signed append-only log.
type Core struct {
	provider domain.StorageProvider
	dir      string
	opts     Options
	log      zerolog.Logger

	readyOnce sync.Once
	readyDone chan struct{}
	readyErr  error

	mu       sync.Mutex
	pub      domain.PublicKey
	secret   *domain.ExpandedSecretKey
	dk       domain.DiscoveryKey
	meta     domain.Metadata
	files    []domain.ByteStorage
	data     domain.ByteStorage
	entries  []entry
	head     [32]byte
	size     int64
	changed  chan struct{}
	peers    map[*mux.Session]*peer
	hooks    []func()
	hooksRan bool
	closing  bool

	// Session events wait in backlog until the core is open.
	gateMu   sync.Mutex
	backlog  []func()
	draining bool
	live     bool

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

var _ domain.Log = (*Core)(nil)

// New returns a handle on the core stored below dir. No I/O happens until
// Ready.
func New(provider domain.StorageProvider, dir string, opts Options) *Core {
	c := &Core{
		provider:  provider,
		dir:       dir,
		opts:      opts,
		readyDone: make(chan struct{}),
		changed:   make(chan struct{}),
		peers:     make(map[*mux.Session]*peer),
		done:      make(chan struct{}),
		dk:        opts.DiscoveryKey,
		meta:      opts.Metadata.Clone(),
	}
	if kp := opts.KeyPair; kp != nil {
		c.pub = kp.PublicKey
		c.dk = kp.DiscoveryKey
		if kp.SecretKey != nil {
			sk := *kp.SecretKey
			c.secret = &sk
		}
	}
	log := logging.Component("core")
	if opts.Logger != nil {
		log = *opts.Logger
	}
	c.log = log.With().Str("dk", c.dk.String()).Logger()
	return c
}

// DiscoveryKey returns the key the core is addressed by.
func (c *Core) DiscoveryKey() domain.DiscoveryKey { return c.dk }

// PublicKey returns the core's public key. For a core opened by discovery key
// alone it is zero until Ready succeeds.
func (c *Core) PublicKey() domain.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pub
}

// Writable reports whether the core holds its secret key.
func (c *Core) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secret != nil
}

// Metadata returns a copy of the core's metadata.
func (c *Core) Metadata() domain.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta.Clone()
}

// Length returns the number of entries.
func (c *Core) Length() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.entries))
}

// Ready opens the core's storage. Concurrent callers share one open; ctx only
// bounds how long this caller waits. A core that fails to open closes itself.
func (c *Core) Ready(ctx context.Context) error {
	c.readyOnce.Do(func() { go c.open() })
	select {
	case <-c.readyDone:
		return c.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Core) open() {
	err := c.load()
	if err != nil {
		c.readyErr = err
	}
	close(c.readyDone)

	if err != nil {
		c.log.Debug().Err(err).Msg("open failed")
		_ = c.Close()
		return
	}
	c.log.Debug().Uint64("length", c.Length()).Bool("writable", c.Writable()).Msg("core ready")
}

func (c *Core) openFile(name string) (domain.ByteStorage, error) {
	s, err := c.provider.Open(path.Join(c.dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStorage, name, err)
	}
	c.files = append(c.files, s)
	return s, nil
}

func (c *Core) load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing {
		return fmt.Errorf("core %s: %w", c.dk, domain.ErrClosed)
	}

	keyStore, err := c.openFile(keyFile)
	if err != nil {
		return err
	}
	stored, err := keyStore.Read(0, domain.PublicKeySize)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if c.opts.KeyPair == nil || !c.opts.CreateIfMissing {
			return fmt.Errorf("core %s: %w", c.dk, domain.ErrCoreNotFound)
		}
		if err := c.create(keyStore); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("%w: read key: %v", domain.ErrStorage, err)
	default:
		if err := c.loadExisting(stored); err != nil {
			return err
		}
	}

	c.data, err = c.openFile(dataFile)
	if err != nil {
		return err
	}
	return c.loadEntries()
}

func (c *Core) create(keyStore domain.ByteStorage) error {
	if err := keyStore.Write(0, c.pub[:]); err != nil {
		return fmt.Errorf("%w: write key: %v", domain.ErrStorage, err)
	}
	if c.secret != nil {
		if err := c.writeSecret(); err != nil {
			return err
		}
	}
	return c.writeMeta()
}

func (c *Core) loadExisting(stored []byte) error {
	pub, err := domain.PublicKeyFromBytes(stored)
	if err != nil {
		return err
	}
	if crypto.DiscoveryKey(pub) != c.dk {
		return fmt.Errorf("%w: stored key does not hash to %s", domain.ErrKeyMismatch, c.dk)
	}
	if c.opts.KeyPair != nil && pub != c.pub {
		return fmt.Errorf("%w: stored key %s, requested %s", domain.ErrKeyMismatch, pub, c.pub)
	}
	c.pub = pub

	secretStore, err := c.openFile(secretFile)
	if err != nil {
		return err
	}
	b, err := secretStore.Read(0, domain.ExpandedSecretKeySize)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if c.secret != nil {
			if err := c.writeSecret(); err != nil {
				return err
			}
		}
	case err != nil:
		return fmt.Errorf("%w: read secret key: %v", domain.ErrStorage, err)
	case c.secret == nil:
		var sk domain.ExpandedSecretKey
		copy(sk[:], b)
		crypto.Wipe(b)
		if got, err := crypto.PublicFromExpanded(sk); err != nil || got != c.pub {
			return fmt.Errorf("%w: stored secret key does not match", domain.ErrKeyMismatch)
		}
		c.secret = &sk
	default:
		crypto.Wipe(b)
	}

	metaStore, err := c.openFile(metaFile)
	if err != nil {
		return err
	}
	size, err := metaStore.Stat()
	if errors.Is(err, os.ErrNotExist) {
		return c.writeMeta()
	}
	if err != nil {
		return fmt.Errorf("%w: stat meta: %v", domain.ErrStorage, err)
	}
	raw, err := metaStore.Read(0, int(size))
	if err != nil {
		return fmt.Errorf("%w: read meta: %v", domain.ErrStorage, err)
	}
	var meta domain.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("%w: decode meta: %v", domain.ErrStorage, err)
	}
	for k, v := range c.meta {
		if _, ok := meta[k]; !ok {
			meta[k] = v
		}
	}
	c.meta = meta
	return nil
}

func (c *Core) writeSecret() error {
	s, err := c.openFile(secretFile)
	if err != nil {
		return err
	}
	if err := s.Write(0, c.secret[:]); err != nil {
		return fmt.Errorf("%w: write secret key: %v", domain.ErrStorage, err)
	}
	return nil
}

func (c *Core) writeMeta() error {
	if c.meta == nil {
		c.meta = domain.Metadata{}
	}
	b, err := json.Marshal(c.meta)
	if err != nil {
		return err
	}
	s, err := c.openFile(metaFile)
	if err != nil {
		return err
	}
	if err := s.Write(0, b); err != nil {
		return fmt.Errorf("%w: write meta: %v", domain.ErrStorage, err)
	}
	return nil
}

// OnClose registers fn to run when the core closes. If it already has, fn
// runs immediately.
func (c *Core) OnClose(fn func()) {
	c.mu.Lock()
	if c.hooksRan {
		c.mu.Unlock()
		fn()
		return
	}
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Closing reports whether Close has been called.
func (c *Core) Closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// Done is closed once the core has fully closed and its close hooks have
// returned.
func (c *Core) Done() <-chan struct{} { return c.done }

// Close ends every replication session, releases storage and runs close
// hooks. An open in progress finishes first. Every call returns the same
// result.
func (c *Core) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.mu.Unlock()

		c.readyOnce.Do(func() {
			c.readyErr = fmt.Errorf("core %s: %w", c.dk, domain.ErrClosed)
			close(c.readyDone)
		})
		<-c.readyDone

		c.mu.Lock()
		sessions := make([]*mux.Session, 0, len(c.peers))
		for sess := range c.peers {
			sessions = append(sessions, sess)
		}
		files := c.files
		c.files = nil
		c.mu.Unlock()

		for _, sess := range sessions {
			_ = sess.Close()
		}

		var errs []error
		for _, f := range files {
			if err := f.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		c.mu.Lock()
		if c.secret != nil {
			crypto.Wipe(c.secret[:])
		}
		c.mu.Unlock()
		if err := errors.Join(errs...); err != nil {
			c.closeErr = fmt.Errorf("%w: core %s: %w", domain.ErrStorage, c.dk, err)
		}

		c.mu.Lock()
		hooks := c.hooks
		c.hooks = nil
		c.hooksRan = true
		c.mu.Unlock()

		for _, fn := range hooks {
			fn()
		}
		close(c.done)
		c.log.Debug().Msg("core closed")
	})
	return c.closeErr
}
