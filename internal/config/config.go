// Package config loads and saves channeler.toml.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/logging"
)

// FileName is the config file name inside the home directory.
const FileName = "channeler.toml"

const (
	DefaultKeyName = "default"
	DefaultListen  = "127.0.0.1:4977"
)

// ErrInvalid marks a config value that failed validation.
var ErrInvalid = errors.New("invalid config")

// Config is the runtime configuration of a channeler home.
type Config struct {
	Home      string
	Namespace string
	KeyName   string
	Listen    string
	Peers     []string
	LogLevel  string
}

type fileConfig struct {
	Namespace string   `toml:"namespace"`
	KeyName   string   `toml:"key_name"`
	Listen    string   `toml:"listen"`
	Peers     []string `toml:"peers"`
	LogLevel  string   `toml:"log_level"`
}

// Default returns the configuration used when home has no config file.
func Default(home string) Config {
	return Config{
		Home:      home,
		Namespace: domain.DefaultNamespace,
		KeyName:   DefaultKeyName,
		Listen:    DefaultListen,
		Peers:     []string{},
		LogLevel:  "info",
	}
}

// DefaultHome returns ~/.channeler.
func DefaultHome() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".channeler"), nil
}

// Path returns the config file path for home.
func Path(home string) string { return filepath.Join(home, FileName) }

// Load reads home's config file over the defaults. A missing file is not an
// error.
func Load(home string) (Config, error) {
	cfg := Default(home)

	var raw fileConfig
	meta, err := toml.DecodeFile(Path(home), &raw)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("namespace") {
		cfg.Namespace = strings.TrimSpace(raw.Namespace)
	}
	if meta.IsDefined("key_name") {
		cfg.KeyName = strings.TrimSpace(raw.KeyName)
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("peers") {
		cfg.Peers = normalizePeers(raw.Peers)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		l := logging.Component("config")
		l.Warn().Stringer("key", undecoded[0]).Msg("ignoring unknown config key")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Home) == "" {
		return fmt.Errorf("%w: home is required", ErrInvalid)
	}
	if c.Namespace == "" {
		return fmt.Errorf("%w: namespace is required", ErrInvalid)
	}
	if c.KeyName == "" || strings.ContainsAny(c.KeyName, `/\`) || c.KeyName == "." || c.KeyName == ".." {
		return fmt.Errorf("%w: key_name %q", ErrInvalid, c.KeyName)
	}
	if c.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			return fmt.Errorf("%w: listen %q: %v", ErrInvalid, c.Listen, err)
		}
	}
	for _, p := range c.Peers {
		if _, _, err := net.SplitHostPort(p); err != nil {
			return fmt.Errorf("%w: peer %q: %v", ErrInvalid, p, err)
		}
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	return nil
}

// Save writes c to home's config file, creating home if needed.
func Save(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(c.Home, 0o700); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(fileConfig{
		Namespace: c.Namespace,
		KeyName:   c.KeyName,
		Listen:    c.Listen,
		Peers:     c.Peers,
		LogLevel:  c.LogLevel,
	}); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFile(Path(c.Home), buf.Bytes(), 0o600)
}

func normalizePeers(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// writeFile writes bytes via a temp file, then atomically replaces the target.
func writeFile(path string, b []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
