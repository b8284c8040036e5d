package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lukeburns/channeler/internal/core"
	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/logging"
	"github.com/lukeburns/channeler/internal/mux"
	"github.com/lukeburns/channeler/internal/services/keys"
)

const (
	defaultKeyName  = "default"
	closeConcurrent = 16
)

// KeySource supplies the key manager when the caller owns it.
type KeySource func(ctx context.Context) (*keys.Manager, error)

// Options configures a Store.
type Options struct {
	Namespace string
	// KeyName selects the root key blob keys/<KeyName>.
	KeyName string
	// Keys overrides loading the root key from storage.
	Keys KeySource
	// Overwrite and SecretKey are passed to keys.FromStorage.
	Overwrite bool
	SecretKey *domain.SecretKey

	Limits mux.Limits
	Logger *zerolog.Logger
}

// Store is a registry of cores addressed by discovery key.
type Store struct {
	provider domain.StorageProvider
	opts     Options
	log      zerolog.Logger

	openOnce sync.Once
	openDone chan struct{}
	openErr  error
	keys     *keys.Manager

	mu      sync.Mutex
	cores   map[domain.DiscoveryKey]*core.Core
	streams []*mux.Stream
	closing bool

	closeOnce sync.Once
	closeErr  error
}

// New returns a store backed by provider. No I/O happens until Open.
func New(provider domain.StorageProvider, opts Options) *Store {
	if opts.Namespace == "" {
		opts.Namespace = domain.DefaultNamespace
	}
	if opts.KeyName == "" {
		opts.KeyName = defaultKeyName
	}
	log := logging.Component("store")
	if opts.Logger != nil {
		log = *opts.Logger
	}
	return &Store{
		provider: provider,
		opts:     opts,
		log:      log.With().Str("namespace", opts.Namespace).Logger(),
		openDone: make(chan struct{}),
		cores:    make(map[domain.DiscoveryKey]*core.Core),
	}
}

// Open loads the root identity. Concurrent and repeated calls share one
// attempt and its result; ctx only bounds how long this caller waits.
func (s *Store) Open(ctx context.Context) error {
	s.openOnce.Do(func() { go s.open() })
	select {
	case <-s.openDone:
		return s.openErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) open() {
	defer close(s.openDone)

	if s.opts.Keys != nil {
		s.keys, s.openErr = s.opts.Keys(context.Background())
		if s.openErr == nil && s.keys == nil {
			s.openErr = errors.New("store: key source returned no manager")
		}
	} else {
		s.keys, s.openErr = s.loadKeys()
	}
	if s.openErr != nil {
		s.log.Error().Err(s.openErr).Msg("open failed")
		return
	}
	s.log.Info().Str("key", s.keys.PublicKey().String()).Msg("store opened")
}

func (s *Store) loadKeys() (*keys.Manager, error) {
	st, err := s.provider.Open("keys/" + s.opts.KeyName)
	if err != nil {
		return nil, fmt.Errorf("%w: open root key: %v", domain.ErrStorage, err)
	}
	return keys.FromStorage(st, keys.Options{
		Overwrite: s.opts.Overwrite,
		SecretKey: s.opts.SecretKey,
	})
}

// Namespace returns the namespace recorded with every core.
func (s *Store) Namespace() string { return s.opts.Namespace }

// Keys returns the key manager, or nil before Open succeeds.
func (s *Store) Keys() *keys.Manager {
	select {
	case <-s.openDone:
		return s.keys
	default:
		return nil
	}
}

// PublicKey returns the root public key, or zero before Open succeeds.
func (s *Store) PublicKey() domain.PublicKey {
	if km := s.Keys(); km != nil {
		return km.PublicKey()
	}
	return domain.PublicKey{}
}

// DiscoveryKey returns the discovery key of the root public key, or zero
// before Open succeeds.
func (s *Store) DiscoveryKey() domain.DiscoveryKey {
	if km := s.Keys(); km != nil {
		return km.DiscoveryKey()
	}
	return domain.DiscoveryKey{}
}

// Cores returns the cached cores.
func (s *Store) Cores() []*core.Core {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.Core, 0, len(s.cores))
	for _, c := range s.cores {
		out = append(out, c)
	}
	return out
}

// Streams returns the number of tracked replication streams.
func (s *Store) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// Replicate multiplexes every cached core, and every core created later,
// over conn. Keys the remote end opens that are not cached are looked up on
// demand; keys with no local core are rejected without closing conn.
func (s *Store) Replicate(conn io.ReadWriteCloser) (*mux.Stream, error) {
	st := mux.New(conn, mux.Options{Limits: s.opts.Limits, OnDiscoveryKey: s.onDiscoveryKey})
	if err := s.track(st); err != nil {
		return nil, err
	}
	return st, nil
}

// ReplicateStream is Replicate for a stream the caller already created. It
// takes over the stream's discovery key callback.
func (s *Store) ReplicateStream(st *mux.Stream) error {
	st.HandleDiscoveryKeys(s.onDiscoveryKey)
	return s.track(st)
}

func (s *Store) track(st *mux.Stream) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		err := fmt.Errorf("store: %w", domain.ErrClosed)
		st.Destroy(err)
		return err
	}
	for _, c := range s.cores {
		if _, err := c.Replicate(st); err != nil && !errors.Is(err, domain.ErrClosed) {
			s.log.Warn().Err(err).Str("dk", c.DiscoveryKey().String()).Msg("attach core to new stream")
		}
	}
	s.streams = append(s.streams, st)
	n := len(s.cores)
	s.mu.Unlock()

	st.OnClose(func(error) { s.untrack(st) })
	s.log.Debug().Str("stream", st.ID()).Int("cores", n).Msg("stream tracked")
	return nil
}

func (s *Store) untrack(st *mux.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.streams {
		if x == st {
			s.streams = append(s.streams[:i], s.streams[i+1:]...)
			return
		}
	}
}

// onDiscoveryKey resolves a key the remote end opened and attaches it, or
// rejects it.
func (s *Store) onDiscoveryKey(st *mux.Stream, dk domain.DiscoveryKey) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-st.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	ch, err := s.Get(domain.GetRequest{DiscoveryKey: dk[:]})
	if err == nil {
		var c *core.Core
		if c, err = ch.Open(ctx); err == nil {
			_, err = c.Replicate(st)
		}
	}
	if err != nil {
		s.log.Debug().Err(err).Str("dk", dk.String()).Str("stream", st.ID()).Msg("rejecting unresolved key")
		st.Reject(dk)
	}
}

// Close closes every cached core, destroys every stream and releases the
// root key. Core failures do not stop the rest from closing; they are
// returned together, wrapped in domain.ErrClose. Every call returns the same
// result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.openOnce.Do(func() {
			s.openErr = fmt.Errorf("store: %w", domain.ErrClosed)
			close(s.openDone)
		})
		<-s.openDone

		s.mu.Lock()
		s.closing = true
		cores := make([]*core.Core, 0, len(s.cores))
		for _, c := range s.cores {
			cores = append(cores, c)
		}
		streams := append([]*mux.Stream(nil), s.streams...)
		s.mu.Unlock()

		errs := make([]error, len(cores))
		var g errgroup.Group
		g.SetLimit(closeConcurrent)
		for i, c := range cores {
			g.Go(func() error {
				errs[i] = c.Close()
				return nil
			})
		}
		_ = g.Wait()

		closed := fmt.Errorf("store: %w", domain.ErrClosed)
		for _, st := range streams {
			st.Destroy(closed)
		}
		for _, st := range streams {
			<-st.Done()
		}

		if s.keys != nil {
			errs = append(errs, s.keys.Close())
		}
		if err := errors.Join(errs...); err != nil {
			s.closeErr = fmt.Errorf("%w: %w", domain.ErrClose, err)
			s.log.Warn().Err(err).Msg("store closed with errors")
			return
		}
		s.log.Info().Int("cores", len(cores)).Int("streams", len(streams)).Msg("store closed")
	})
	return s.closeErr
}
