package storage_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukeburns/channeler/internal/domain"
	"github.com/lukeburns/channeler/internal/storage"
)

func providers(t *testing.T) map[string]domain.StorageProvider {
	return map[string]domain.StorageProvider{
		"dir":    storage.Dir(t.TempDir()),
		"memory": storage.Memory(),
	}
}

func TestMissingBlob(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			s, err := p.Open("keys/default")
			require.NoError(t, err)
			defer s.Close()

			_, err = s.Stat()
			assert.True(t, errors.Is(err, os.ErrNotExist), "stat: %v", err)
			_, err = s.Read(0, 64)
			assert.True(t, errors.Is(err, os.ErrNotExist), "read: %v", err)
		})
	}
}

func TestWriteReadReopen(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			s, err := p.Open("cores/ab/cd/abcd/data")
			require.NoError(t, err)
			require.NoError(t, s.Write(0, []byte("hello")))
			require.NoError(t, s.Write(5, []byte(" world")))

			size, err := s.Stat()
			require.NoError(t, err)
			assert.EqualValues(t, 11, size)
			require.NoError(t, s.Close())

			again, err := p.Open("cores/ab/cd/abcd/data")
			require.NoError(t, err)
			defer again.Close()

			got, err := again.Read(6, 5)
			require.NoError(t, err)
			assert.Equal(t, "world", string(got))

			_, err = again.Read(6, 6)
			assert.True(t, errors.Is(err, os.ErrNotExist))
		})
	}
}

func TestLockRejectsSecondHolder(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			first, err := p.Open("keys/default")
			require.NoError(t, err)
			require.NoError(t, first.(domain.Locker).Lock())

			second, err := p.Open("keys/default")
			require.NoError(t, err)
			defer second.Close()
			err = second.(domain.Locker).Lock()
			assert.True(t, errors.Is(err, domain.ErrLocked), "lock: %v", err)

			require.NoError(t, first.Close())
			require.NoError(t, second.(domain.Locker).Lock())
		})
	}
}

func TestClosedStorage(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			s, err := p.Open("meta")
			require.NoError(t, err)
			require.NoError(t, s.Close())
			require.NoError(t, s.Close())

			err = s.Write(0, []byte{1})
			assert.True(t, errors.Is(err, domain.ErrClosed))
		})
	}
}

func TestRejectsEscapingNames(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			for _, bad := range []string{"", "../x", "a/../../x", "a//b"} {
				_, err := p.Open(bad)
				assert.Error(t, err, bad)
			}
		})
	}
}

func TestDirCreatesParents(t *testing.T) {
	root := t.TempDir()
	p := storage.Dir(root)

	s, err := p.Open("cores/aa/bb/aabb/key")
	require.NoError(t, err)
	require.NoError(t, s.Write(0, make([]byte, 32)))
	require.NoError(t, s.Close())

	fi, err := os.Stat(filepath.Join(root, "cores", "aa", "bb", "aabb", "key"))
	require.NoError(t, err)
	assert.EqualValues(t, 32, fi.Size())
}

func TestMemoryNames(t *testing.T) {
	p := storage.Memory()
	s, err := p.Open("a")
	require.NoError(t, err)
	_, err = p.Open("b")
	require.NoError(t, err)
	require.NoError(t, s.Write(0, []byte{1}))

	assert.Equal(t, []string{"a"}, p.Names())
}
