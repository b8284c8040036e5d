package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeburns/channeler/internal/config"
	"github.com/lukeburns/channeler/internal/domain"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := config.Load(home)
	require.NoError(t, err)
	assert.Equal(t, config.Default(home), cfg)
	assert.Equal(t, domain.DefaultNamespace, cfg.Namespace)
}

func TestLoadOverridesDefinedKeysOnly(t *testing.T) {
	home := t.TempDir()
	body := `
namespace = "work"
peers = ["10.0.0.1:4977", " ", "example.org:4977"]
log_level = "debug"
`
	require.NoError(t, os.WriteFile(filepath.Join(home, config.FileName), []byte(body), 0o600))

	cfg, err := config.Load(home)
	require.NoError(t, err)
	assert.Equal(t, "work", cfg.Namespace)
	assert.Equal(t, []string{"10.0.0.1:4977", "example.org:4977"}, cfg.Peers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, config.DefaultKeyName, cfg.KeyName)
	assert.Equal(t, config.DefaultListen, cfg.Listen)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"bad toml":    `namespace = `,
		"bad peer":    `peers = ["nope"]`,
		"bad level":   `log_level = "loud"`,
		"key escapes": `key_name = "../other"`,
		"empty ns":    `namespace = ""`,
		"bad listen":  `listen = "4977"`,
	} {
		t.Run(name, func(t *testing.T) {
			home := t.TempDir()
			require.NoError(t, os.WriteFile(config.Path(home), []byte(body), 0o600))
			_, err := config.Load(home)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested")
	cfg := config.Default(home)
	cfg.Namespace = "mine"
	cfg.Peers = []string{"127.0.0.1:5000"}
	cfg.Listen = ""

	require.NoError(t, config.Save(cfg))
	info, err := os.Stat(config.Path(home))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := config.Load(home)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	entries, err := os.ReadDir(home)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestSaveValidates(t *testing.T) {
	cfg := config.Default("")
	assert.ErrorIs(t, config.Save(cfg), config.ErrInvalid)
}
