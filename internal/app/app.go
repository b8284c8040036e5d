package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/lukeburns/channeler/internal/config"
	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/mux"
	"github.com/lukeburns/channeler/internal/store"
	"github.com/lukeburns/channeler/internal/transport"
)

// App bundles the store and its transport for the CLI.
type App struct {
	Settings config.Config
	Storage  domain.StorageProvider
	Store    *store.Store
}

// Open loads the root identity.
func (a *App) Open(ctx context.Context) error {
	return a.Store.Open(ctx)
}

// Connect dials every address in peers, or the configured peers when peers
// is empty. It returns the streams that connected along with the joined
// dial errors.
func (a *App) Connect(ctx context.Context, peers ...string) ([]*mux.Stream, error) {
	if len(peers) == 0 {
		peers = a.Settings.Peers
	}
	var (
		streams []*mux.Stream
		errs    []error
	)
	for _, addr := range peers {
		st, err := transport.Dial(ctx, addr, a.Store)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		streams = append(streams, st)
	}
	return streams, errors.Join(errs...)
}

// Serve accepts peers on addr, or the configured listen address, until ctx
// is done.
func (a *App) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.Settings.Listen
	}
	if addr == "" {
		return fmt.Errorf("%w: no listen address", config.ErrInvalid)
	}
	ln, err := transport.Listen(addr)
	if err != nil {
		return err
	}
	return transport.NewServer(a.Store).Serve(ctx, ln)
}

// Close closes the store.
func (a *App) Close() error {
	return a.Store.Close()
}
