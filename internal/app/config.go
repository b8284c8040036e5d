package app

import (
	"github.com/lukeburns/channeler/internal/config"
	"github.com/lukeburns/channeler/internal/domain"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Settings  config.Config          // loaded channeler.toml plus flag overrides
	Overwrite bool                   // replace the stored root key
	SecretKey *domain.SecretKey      // root key to store instead of a random one
	Storage   domain.StorageProvider // optional; defaults to <home>/data
}
