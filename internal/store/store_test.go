package store_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeburns/channeler/internal/core"
	"github.com/lukeburns/channeler/internal/crypto"
	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/logging"
	"github.com/lukeburns/channeler/internal/mux"
	"github.com/lukeburns/channeler/internal/services/keys"
	"github.com/lukeburns/channeler/internal/storage"
	"github.com/lukeburns/channeler/internal/store"
)

func init() { logging.ConfigureTests() }

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func openStore(t *testing.T, p domain.StorageProvider) *store.Store {
	t.Helper()
	s := store.New(p, store.Options{})
	require.NoError(t, s.Open(ctxT(t)))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func connect(t *testing.T, a, b *store.Store) (*mux.Stream, *mux.Stream) {
	t.Helper()
	ca, cb := net.Pipe()
	sa, err := a.Replicate(ca)
	require.NoError(t, err)
	sb, err := b.Replicate(cb)
	require.NoError(t, err)
	return sa, sb
}

func writable(t *testing.T, s *store.Store, req domain.WriteRequest) *core.Core {
	t.Helper()
	ch, err := s.Writable(req)
	require.NoError(t, err)
	c, err := ch.Open(ctxT(t))
	require.NoError(t, err)
	return c
}

func readable(t *testing.T, s *store.Store, req domain.ReadRequest) *core.Core {
	t.Helper()
	ch, err := s.Readable(req)
	require.NoError(t, err)
	c, err := ch.Open(ctxT(t))
	require.NoError(t, err)
	return c
}

func corePrefix(dk domain.DiscoveryKey) string {
	h := dk.String()
	return "cores/" + h[0:2] + "/" + h[2:4] + "/" + h
}

func TestOpenIsShared(t *testing.T) {
	s := store.New(storage.Memory(), store.Options{})
	defer s.Close()

	var wg sync.WaitGroup
	errs := make([]error, 50)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Open(context.Background())
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.False(t, s.PublicKey().IsZero())
	assert.Equal(t, crypto.DiscoveryKey(s.PublicKey()), s.DiscoveryKey())
}

func TestValidationHappensBeforeIO(t *testing.T) {
	p := storage.Memory()
	s := store.New(p, store.Options{})
	defer s.Close()

	_, err := s.Writable(domain.WriteRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = s.Writable(domain.WriteRequest{Channel: "/", Scope: domain.ScopePrivate})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = s.Readable(domain.ReadRequest{Channel: "/"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	for name, req := range map[string]domain.GetRequest{
		"empty":              {},
		"channel and secret": {Channel: "/", SecretKey: make([]byte, 64), PublicKey: make([]byte, 32)},
		"channel and public": {Channel: "/", PublicKey: make([]byte, 32)},
		"short discovery":    {DiscoveryKey: make([]byte, 5)},
		"short public":       {PublicKey: make([]byte, 31)},
		"secret alone":       {SecretKey: make([]byte, 64)},
	} {
		_, err := s.Get(req)
		assert.ErrorIs(t, err, domain.ErrValidation, name)
	}

	assert.Empty(t, p.Names())
	assert.True(t, s.PublicKey().IsZero())
}

func TestConcurrentResolveYieldsOneCore(t *testing.T) {
	s := openStore(t, storage.Memory())
	ctx := ctxT(t)

	const n = 64
	var wg sync.WaitGroup
	cores := make([]*core.Core, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := s.Writable(domain.WritePublic("/"))
			if err != nil {
				errs[i] = err
				return
			}
			cores[i], errs[i] = ch.Open(ctx)
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, cores[0], cores[i])
	}
	assert.Len(t, s.Cores(), 1)
}

func TestConcurrentLookupAndCreate(t *testing.T) {
	s := openStore(t, storage.Memory())
	ctx := ctxT(t)

	kp, err := s.Keys().Writable("/", nil)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	created := make([]*core.Core, n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch, err := s.Writable(domain.WritePublic("/"))
			if !assert.NoError(t, err) {
				return
			}
			c, err := ch.Open(ctx)
			assert.NoError(t, err)
			created[i] = c
		}()
		go func() {
			defer wg.Done()
			ch, err := s.Get(domain.GetRequest{DiscoveryKey: kp.DiscoveryKey[:]})
			if !assert.NoError(t, err) {
				return
			}
			if _, err := ch.Open(ctx); err != nil {
				assert.ErrorIs(t, err, domain.ErrCoreNotFound)
			}
		}()
	}
	wg.Wait()

	for _, c := range created {
		assert.Same(t, created[0], c)
	}
	assert.True(t, created[0].Writable())
}

func TestCloseThenResolveCreatesNewInstance(t *testing.T) {
	s := openStore(t, storage.Memory())
	ctx := ctxT(t)

	first := writable(t, s, domain.WritePublic("/"))
	_, err := first.Append(ctx, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, first.Close())
	assert.Empty(t, s.Cores())

	second := writable(t, s, domain.WritePublic("/"))
	assert.NotSame(t, first, second)
	assert.EqualValues(t, 1, second.Length())
	assert.Len(t, s.Cores(), 1)
}

func TestRootKeyPersistsAcrossStores(t *testing.T) {
	p := storage.Dir(t.TempDir())

	first := store.New(p, store.Options{})
	require.NoError(t, first.Open(ctxT(t)))
	pub := first.PublicKey()
	dk := writable(t, first, domain.WritePublic("/")).DiscoveryKey()
	require.NoError(t, first.Close())

	second := openStore(t, p)
	assert.Equal(t, pub, second.PublicKey())
	assert.Equal(t, dk, writable(t, second, domain.WritePublic("/")).DiscoveryKey())
}

func TestSecondStoreOnSameKeyIsRejected(t *testing.T) {
	p := storage.Dir(t.TempDir())
	openStore(t, p)

	other := store.New(p, store.Options{})
	defer other.Close()
	err := other.Open(ctxT(t))
	assert.ErrorIs(t, err, domain.ErrLocked)
}

func TestInjectedKeys(t *testing.T) {
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	s := store.New(storage.Memory(), store.Options{
		Keys: func(context.Context) (*keys.Manager, error) { return keys.New(id), nil },
	})
	defer s.Close()
	require.NoError(t, s.Open(ctxT(t)))
	assert.Equal(t, id.PublicKey, s.PublicKey())

	failing := store.New(storage.Memory(), store.Options{
		Keys: func(context.Context) (*keys.Manager, error) { return nil, errors.New("no keys") },
	})
	defer failing.Close()
	assert.Error(t, failing.Open(ctxT(t)))

	ch, err := failing.Writable(domain.WritePublic("/"))
	require.NoError(t, err)
	_, err = ch.Open(ctxT(t))
	assert.Error(t, err)
}

func TestChannelMetadata(t *testing.T) {
	s := store.New(storage.Memory(), store.Options{Namespace: "test"})
	defer s.Close()
	peer, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	c := writable(t, s, domain.WritePrivate("inbox", peer.PublicKey))
	meta := c.Metadata()
	assert.Equal(t, "inbox", meta[domain.MetaChannel])
	assert.Equal(t, "test", meta[domain.MetaNamespace])
	assert.Equal(t, peer.PublicKey.String(), meta[domain.MetaPeerKey])
	assert.Equal(t, "true", meta[domain.MetaPrivate])
	assert.True(t, c.Writable())

	pub := writable(t, s, domain.WritePublic("news")).Metadata()
	assert.Equal(t, "news", pub[domain.MetaChannel])
	assert.NotContains(t, pub, domain.MetaPeerKey)
	assert.NotContains(t, pub, domain.MetaPrivate)

	ro := readable(t, s, domain.ReadPublic("news", peer.PublicKey)).Metadata()
	assert.Equal(t, peer.PublicKey.String(), ro[domain.MetaPeerKey])
	assert.Equal(t, "false", ro[domain.MetaPrivate])
}

func TestGetByChannelAndKeys(t *testing.T) {
	s := openStore(t, storage.Memory())

	byWritable := writable(t, s, domain.WritePublic("/"))
	ch, err := s.Get(domain.GetRequest{Channel: "/"})
	require.NoError(t, err)
	byGet, err := ch.Open(ctxT(t))
	require.NoError(t, err)
	assert.Same(t, byWritable, byGet)

	other, err := crypto.GenerateIdentity()
	require.NoError(t, err)
	kp, err := crypto.DeriveWritable(other.SecretKey, "x", nil)
	require.NoError(t, err)

	ch, err = s.Get(domain.GetRequest{PublicKey: kp.PublicKey[:], SecretKey: kp.SecretKey[:]})
	require.NoError(t, err)
	explicit, err := ch.Open(ctxT(t))
	require.NoError(t, err)
	assert.True(t, explicit.Writable())
	assert.Equal(t, kp.DiscoveryKey, explicit.DiscoveryKey())

	wrong := make([]byte, 64)
	copy(wrong, kp.SecretKey[:])
	wrong[0] ^= 1
	_, err = s.Get(domain.GetRequest{PublicKey: kp.PublicKey[:], SecretKey: wrong})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReadOnlyCoreIsReplacedForWriting(t *testing.T) {
	s := openStore(t, storage.Memory())

	ro := readable(t, s, domain.ReadPublic("/", s.PublicKey()))
	assert.False(t, ro.Writable())

	rw := writable(t, s, domain.WritePublic("/"))
	assert.True(t, rw.Writable())
	assert.NotSame(t, ro, rw)
	assert.True(t, ro.Closing())
}

type failOnClose struct{ domain.ByteStorage }

func (f failOnClose) Close() error {
	_ = f.ByteStorage.Close()
	return errors.New("disk on fire")
}

type flakyProvider struct {
	domain.StorageProvider
	mu     sync.Mutex
	prefix string
}

func (p *flakyProvider) failUnder(prefix string) {
	p.mu.Lock()
	p.prefix = prefix
	p.mu.Unlock()
}

func (p *flakyProvider) Open(name string) (domain.ByteStorage, error) {
	s, err := p.StorageProvider.Open(name)
	p.mu.Lock()
	prefix := p.prefix
	p.mu.Unlock()
	if err != nil || prefix == "" || !strings.HasPrefix(name, prefix) {
		return s, err
	}
	return failOnClose{s}, nil
}

func TestCloseSettlesAllCores(t *testing.T) {
	mem := storage.Memory()
	p := &flakyProvider{StorageProvider: mem}
	s := store.New(p, store.Options{})
	require.NoError(t, s.Open(ctxT(t)))

	km := s.Keys()
	kp, err := km.Writable("bad", nil)
	require.NoError(t, err)
	p.failUnder(corePrefix(kp.DiscoveryKey))

	bad := writable(t, s, domain.WritePublic("bad"))
	good := writable(t, s, domain.WritePublic("good"))

	err = s.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrClose)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.True(t, err == s.Close(), "repeated close returns the same result")

	for _, c := range []*core.Core{bad, good} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("core %s still open", c.DiscoveryKey())
		}
	}
	_, err = km.Writable("/", nil)
	assert.ErrorIs(t, err, domain.ErrClosed)

	// The root key blob is unlocked again.
	again := store.New(mem, store.Options{})
	defer again.Close()
	require.NoError(t, again.Open(ctxT(t)))
}

func TestClosedStoreRefusesWork(t *testing.T) {
	a := openStore(t, storage.Memory())
	b := openStore(t, storage.Memory())
	sa, _ := connect(t, a, b)

	require.NoError(t, a.Close())
	select {
	case <-sa.Done():
	default:
		t.Fatal("stream not destroyed")
	}
	assert.Equal(t, 0, a.Streams())

	ch, err := a.Writable(domain.WritePublic("/"))
	require.NoError(t, err)
	_, err = ch.Open(ctxT(t))
	assert.ErrorIs(t, err, domain.ErrClosed)

	c1, c2 := net.Pipe()
	defer c2.Close()
	_, err = a.Replicate(c1)
	assert.ErrorIs(t, err, domain.ErrClosed)
}

func TestCloseBeforeOpen(t *testing.T) {
	s := store.New(storage.Memory(), store.Options{})
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Open(ctxT(t)), domain.ErrClosed)
}
