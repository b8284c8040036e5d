package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeburns/channeler/internal/config"
	"github.com/lukeburns/channeler/internal/logging"
)

func init() { logging.ConfigureTests() }

func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--home", home, "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func field(t *testing.T, out, name string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, name+":"); ok {
			return strings.TrimSpace(v)
		}
	}
	t.Fatalf("no %q in output:\n%s", name, out)
	return ""
}

func TestInitWritesConfigAndKey(t *testing.T) {
	home := t.TempDir()
	out, err := run(t, home, "init")
	require.NoError(t, err)
	pub := field(t, out, "Public key")
	assert.Len(t, pub, 64)
	assert.FileExists(t, config.Path(home))
	assert.FileExists(t, filepath.Join(home, "data", "keys", "default"))

	out, err = run(t, home, "key")
	require.NoError(t, err)
	assert.Equal(t, pub, field(t, out, "Public key"))
}

func TestAppendThenRead(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, home, "init")
	require.NoError(t, err)

	out, err := run(t, home, "append", "notes", "one", "two")
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n", out)

	out, err = run(t, home, "read", "notes")
	require.NoError(t, err)
	assert.Equal(t, "0\tone\n1\ttwo\n", out)

	out, err = run(t, home, "read", "notes", "--index", "1")
	require.NoError(t, err)
	assert.Equal(t, "1\ttwo\n", out)
}

func TestDeriveMatchesBetweenAuthorAndReader(t *testing.T) {
	alice, bob := t.TempDir(), t.TempDir()
	out, err := run(t, alice, "init")
	require.NoError(t, err)
	alicePub := field(t, out, "Public key")
	out, err = run(t, bob, "init")
	require.NoError(t, err)
	bobPub := field(t, out, "Public key")

	written, err := run(t, alice, "derive", "dm", "--peer", bobPub)
	require.NoError(t, err)
	assert.Equal(t, "true", field(t, written, "Writable"))

	read, err := run(t, bob, "derive", "dm", "--author", alicePub, "--private")
	require.NoError(t, err)
	assert.Equal(t, "false", field(t, read, "Writable"))
	assert.Equal(t, field(t, written, "Discovery key"), field(t, read, "Discovery key"))

	_, err = run(t, bob, "derive", "dm", "--private")
	assert.Error(t, err)
}

func TestExportImport(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	out, err := run(t, src, "init")
	require.NoError(t, err)
	pub := field(t, out, "Public key")

	sealed := filepath.Join(t.TempDir(), "key.json")
	const pass = "Correct-Horse-42!"
	_, err = run(t, src, "export", "-p", pass, "-o", sealed)
	require.NoError(t, err)

	_, err = run(t, dst, "init")
	require.NoError(t, err)
	_, err = run(t, dst, "import", sealed, "-p", "Wrong-Horse-42!!")
	assert.Error(t, err)

	out, err = run(t, dst, "import", sealed, "-p", pass)
	require.NoError(t, err)
	assert.Contains(t, out, pub)

	out, err = run(t, dst, "key")
	require.NoError(t, err)
	assert.Equal(t, pub, field(t, out, "Public key"))
}

func TestInvalidFlagsAreRejected(t *testing.T) {
	home := t.TempDir()
	_, err := run(t, home, "--log-level", "loud", "key")
	assert.Error(t, err)
	_, err = run(t, home, "append", "notes", "x", "--peer", "zz")
	assert.Error(t, err)
}
