package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeburns/channeler/internal/app"
	"github.com/lukeburns/channeler/internal/config"
	"github.com/lukeburns/channeler/internal/crypto"
	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/logging"
	"github.com/lukeburns/channeler/internal/storage"
	"github.com/lukeburns/channeler/internal/transport"
)

func init() { logging.ConfigureTests() }

func TestNewValidatesSettings(t *testing.T) {
	_, err := app.New(app.Config{Settings: config.Default("")})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestOpenUsesSuppliedSecretKey(t *testing.T) {
	id, err := crypto.GenerateIdentity()
	require.NoError(t, err)

	a, err := app.New(app.Config{Settings: config.Default(t.TempDir()), SecretKey: &id.SecretKey})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Open(context.Background()))
	assert.Equal(t, id.PublicKey, a.Store.PublicKey())
}

func TestConnectToConfiguredPeers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server, err := app.New(app.Config{Settings: config.Default(t.TempDir()), Storage: storage.Memory()})
	require.NoError(t, err)
	defer server.Close()
	require.NoError(t, server.Open(ctx))

	ln, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = transport.NewServer(server.Store).Serve(ctx, ln) }()

	settings := config.Default(t.TempDir())
	settings.Peers = []string{ln.Addr().String()}
	client, err := app.New(app.Config{Settings: settings, Storage: storage.Memory()})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Open(ctx))

	streams, err := client.Connect(ctx)
	require.NoError(t, err)
	require.Len(t, streams, 1)

	ch, err := server.Store.Writable(domain.WritePublic("/"))
	require.NoError(t, err)
	w, err := ch.Open(ctx)
	require.NoError(t, err)
	_, err = w.Append(ctx, []byte("configured"))
	require.NoError(t, err)

	ch, err = client.Store.Readable(domain.ReadPublic("/", server.Store.PublicKey()))
	require.NoError(t, err)
	r, err := ch.Open(ctx)
	require.NoError(t, err)
	data, err := r.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "configured", string(data))

	_, err = client.Connect(ctx, "127.0.0.1:1")
	assert.Error(t, err)
}
