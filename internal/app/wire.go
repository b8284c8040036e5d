package app

import (
	"path/filepath"

	"github.com/lukeburns/channeler/internal/storage"
	"github.com/lukeburns/channeler/internal/store"
)

// DataDir is the directory under home that holds keys and cores.
const DataDir = "data"

// New constructs the dependency graph from cfg. Nothing touches storage
// until Open.
func New(cfg Config) (*App, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	provider := cfg.Storage
	if provider == nil {
		provider = storage.Dir(filepath.Join(cfg.Settings.Home, DataDir))
	}

	s := store.New(provider, store.Options{
		Namespace: cfg.Settings.Namespace,
		KeyName:   cfg.Settings.KeyName,
		Overwrite: cfg.Overwrite,
		SecretKey: cfg.SecretKey,
	})

	return &App{
		Settings: cfg.Settings,
		Storage:  provider,
		Store:    s,
	}, nil
}
